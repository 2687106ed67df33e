// ABOUTME: Tests for the SQLite store implementation
// ABOUTME: Covers chat CRUD, history ordering, and atomic slot claiming

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetChat(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	chat, err := s.CreateChat(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, chat.ID)
	assert.False(t, chat.IsHumanEnabled)

	got, err := s.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, chat.ID, got.ID)
	assert.False(t, got.IsHumanEnabled)
}

func TestGetChat_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetChat(context.Background(), "no-such-chat")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetHumanEnabled(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	chat, err := s.CreateChat(ctx)
	require.NoError(t, err)

	require.NoError(t, s.SetHumanEnabled(ctx, chat.ID, true))
	got, err := s.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.True(t, got.IsHumanEnabled)

	require.NoError(t, s.SetHumanEnabled(ctx, chat.ID, false))
	got, err = s.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.False(t, got.IsHumanEnabled)
}

func TestSetHumanEnabled_NotFound(t *testing.T) {
	s := createTestStore(t)

	err := s.SetHumanEnabled(context.Background(), "no-such-chat", true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHistory_StrictOrdering(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	chat, err := s.CreateChat(ctx)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		_, err := s.AppendMessage(ctx, chat.ID, RoleHuman, fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}

	history, err := s.GetHistory(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, history, 20)

	for i, msg := range history {
		assert.Equal(t, fmt.Sprintf("message %d", i), msg.Text)
		if i > 0 {
			assert.Greater(t, msg.Seq, history[i-1].Seq)
		}
	}
}

func TestHistory_IsolatedPerChat(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	chatA, err := s.CreateChat(ctx)
	require.NoError(t, err)
	chatB, err := s.CreateChat(ctx)
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, chatA.ID, RoleHuman, "for A")
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, chatB.ID, RoleAI, "for B")
	require.NoError(t, err)

	history, err := s.GetHistory(ctx, chatA.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "for A", history[0].Text)
}

func TestListChats_NewestFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.CreateChat(ctx)
	require.NoError(t, err)
	_, err = s.CreateChat(ctx)
	require.NoError(t, err)

	chats, err := s.ListChats(ctx)
	require.NoError(t, err)
	assert.Len(t, chats, 2)
}

func TestListFreeSlots_FiltersDateWindow(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	today := time.Now()
	inWindow := today.AddDate(0, 0, 3).Format("2006-01-02")
	pastDate := today.AddDate(0, 0, -1).Format("2006-01-02")
	farDate := today.AddDate(0, 0, 30).Format("2006-01-02")

	_, err := s.CreateSlot(ctx, inWindow, "0900")
	require.NoError(t, err)
	_, err = s.CreateSlot(ctx, pastDate, "0900")
	require.NoError(t, err)
	_, err = s.CreateSlot(ctx, farDate, "0900")
	require.NoError(t, err)

	slots, err := s.ListFreeSlots(ctx, today, 14)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, inWindow, slots[0].Date)
}

func TestListFreeSlots_ExcludesClaimed(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	date := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	slot, err := s.CreateSlot(ctx, date, "0900")
	require.NoError(t, err)

	chat, err := s.CreateChat(ctx)
	require.NoError(t, err)
	_, err = s.ClaimSlot(ctx, slot.ID, chat.ID)
	require.NoError(t, err)

	slots, err := s.ListFreeSlots(ctx, time.Now(), 14)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestClaimSlot(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	date := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	slot, err := s.CreateSlot(ctx, date, "0900")
	require.NoError(t, err)

	chat, err := s.CreateChat(ctx)
	require.NoError(t, err)

	claimed, err := s.ClaimSlot(ctx, slot.ID, chat.ID)
	require.NoError(t, err)
	require.NotNil(t, claimed.ChatID)
	assert.Equal(t, chat.ID, *claimed.ChatID)
	assert.Equal(t, date, claimed.Date)
	assert.Equal(t, "0900", claimed.Time)
}

func TestClaimSlot_AlreadyClaimed(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	date := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	slot, err := s.CreateSlot(ctx, date, "0900")
	require.NoError(t, err)

	chatA, err := s.CreateChat(ctx)
	require.NoError(t, err)
	chatB, err := s.CreateChat(ctx)
	require.NoError(t, err)

	_, err = s.ClaimSlot(ctx, slot.ID, chatA.ID)
	require.NoError(t, err)

	_, err = s.ClaimSlot(ctx, slot.ID, chatB.ID)
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestClaimSlot_UnknownSlot(t *testing.T) {
	s := createTestStore(t)

	chat, err := s.CreateChat(context.Background())
	require.NoError(t, err)

	_, err = s.ClaimSlot(context.Background(), "no-such-slot", chat.ID)
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestClaimSlot_ConcurrentRace_ExactlyOneWinner(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	date := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	slot, err := s.CreateSlot(ctx, date, "0900")
	require.NoError(t, err)

	const racers = 8
	chats := make([]*Chat, racers)
	for i := range chats {
		chats[i], err = s.CreateChat(ctx)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	results := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = s.ClaimSlot(ctx, slot.ID, chats[i].ID)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, ErrSlotUnavailable)
		}
	}
	assert.Equal(t, 1, winners, "exactly one claim must succeed")
}
