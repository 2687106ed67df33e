// ABOUTME: Keyed mutex serializing event processing per chat
// ABOUTME: Different chats proceed in parallel; one chat's events run one at a time

package router

import "sync"

// chatLocks hands out one mutex per chat id. All state mutations and engine
// invocations for a chat run under its mutex, so a slow AI call only delays
// that chat's later events.
type chatLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newChatLocks() *chatLocks {
	return &chatLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the chat's mutex and returns its unlock func.
// Entries are never evicted; the map is bounded by the number of live chats.
func (l *chatLocks) Lock(chatID string) func() {
	l.mu.Lock()
	m, ok := l.locks[chatID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[chatID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
