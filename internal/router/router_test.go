// ABOUTME: Tests for the MessageRouter orchestration
// ABOUTME: Real store/registry/escalation with a mock engine; covers end-to-end scenarios and ordering

package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havana-uni/inquiry-gateway/internal/escalation"
	"github.com/havana-uni/inquiry-gateway/internal/registry"
	"github.com/havana-uni/inquiry-gateway/internal/reply"
	"github.com/havana-uni/inquiry-gateway/internal/store"
	"github.com/havana-uni/inquiry-gateway/internal/wire"
)

// mockEngine is a scriptable reply.Engine
type mockEngine struct {
	mu            sync.Mutex
	generateFn    func(history []*store.Message) (*reply.Reply, error)
	composeFn     func(prior *reply.Reply, results []reply.ToolResult) (string, error)
	generateCalls int
	gotResults    [][]reply.ToolResult
}

func (m *mockEngine) GenerateReply(_ context.Context, history []*store.Message) (*reply.Reply, error) {
	m.mu.Lock()
	m.generateCalls++
	fn := m.generateFn
	m.mu.Unlock()
	if fn == nil {
		return &reply.Reply{Text: "ai answer"}, nil
	}
	return fn(history)
}

func (m *mockEngine) ComposeFinal(_ context.Context, _ []*store.Message, prior *reply.Reply, results []reply.ToolResult) (string, error) {
	m.mu.Lock()
	m.gotResults = append(m.gotResults, results)
	fn := m.composeFn
	m.mu.Unlock()
	if fn == nil {
		return "final answer", nil
	}
	return fn(prior, results)
}

func (m *mockEngine) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generateCalls
}

// fakeConn records events sent directly or via broadcast
type fakeConn struct {
	id   string
	mu   sync.Mutex
	sent []wire.Event
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(ev wire.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, ev)
	return nil
}

func (c *fakeConn) events() []wire.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]wire.Event, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeConn) named(name string) []wire.Event {
	var out []wire.Event
	for _, ev := range c.events() {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	store  *store.SQLiteStore
	reg    *registry.Registry
	engine *mockEngine
	router *Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := registry.New(nil)
	engine := &mockEngine{}
	esc := escalation.New(st, reg, nil)
	return &fixture{
		store:  st,
		reg:    reg,
		engine: engine,
		router: New(st, engine, esc, reg, nil),
	}
}

// connectStudent runs StudentConnect and returns the chat id the conn ended up in
func (f *fixture) connectStudent(t *testing.T, conn *fakeConn, chatID string) string {
	t.Helper()
	require.NoError(t, f.router.StudentConnect(context.Background(), conn, chatID))
	events := conn.named(wire.EventStudentConnected)
	require.NotEmpty(t, events)
	return events[len(events)-1].Data.(wire.StudentConnected).ChatID
}

func TestStudentConnect_NewChat(t *testing.T) {
	f := newFixture(t)
	conn := newFakeConn("s1")

	require.NoError(t, f.router.StudentConnect(context.Background(), conn, ""))

	created := conn.named(wire.EventChatCreated)
	require.Len(t, created, 1)
	chatID := created[0].Data.(wire.ChatCreated).ChatID
	require.NotEmpty(t, chatID)

	connected := conn.named(wire.EventStudentConnected)
	require.Len(t, connected, 1)
	payload := connected[0].Data.(wire.StudentConnected)
	assert.Equal(t, chatID, payload.ChatID)
	assert.Empty(t, payload.History)
	assert.False(t, payload.IsAdminConnected)
	assert.False(t, payload.Chat.IsHumanEnabled)

	assert.True(t, f.reg.IsBound("s1", chatID, registry.RoleStudent))
}

func TestStudentConnect_ExistingChatWithHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	chat, err := f.store.CreateChat(ctx)
	require.NoError(t, err)
	_, err = f.store.AppendMessage(ctx, chat.ID, store.RoleHuman, "hello")
	require.NoError(t, err)
	_, err = f.store.AppendMessage(ctx, chat.ID, store.RoleAI, "hi there")
	require.NoError(t, err)

	admin := newFakeConn("a1")
	f.reg.Bind(admin, chat.ID, registry.RoleAdmin)

	conn := newFakeConn("s1")
	require.NoError(t, f.router.StudentConnect(ctx, conn, chat.ID))

	assert.Empty(t, conn.named(wire.EventChatCreated))
	connected := conn.named(wire.EventStudentConnected)
	require.Len(t, connected, 1)
	payload := connected[0].Data.(wire.StudentConnected)
	require.Len(t, payload.History, 2)
	assert.Equal(t, "hello", payload.History[0].Message)
	assert.Equal(t, store.RoleAI, payload.History[1].Role)
	assert.True(t, payload.IsAdminConnected)
}

func TestStudentConnect_UnknownChat(t *testing.T) {
	f := newFixture(t)
	conn := newFakeConn("s1")

	err := f.router.StudentConnect(context.Background(), conn, "no-such-chat")
	assert.ErrorIs(t, err, ErrChatNotFound)
	assert.Empty(t, conn.events(), "no reply events on failed connect")
}

func TestStudentMessage_AIReplies(t *testing.T) {
	f := newFixture(t)
	conn := newFakeConn("s1")
	chatID := f.connectStudent(t, conn, "")

	require.NoError(t, f.router.StudentMessage(context.Background(), conn, chatID, "what courses do you offer?"))

	messages := conn.named(wire.EventNewMessage)
	require.Len(t, messages, 2)
	first := messages[0].Data.(wire.Message)
	second := messages[1].Data.(wire.Message)
	assert.Equal(t, store.RoleHuman, first.Role)
	assert.Equal(t, "what courses do you offer?", first.Message)
	assert.Equal(t, store.RoleAI, second.Role)
	assert.Equal(t, "ai answer", second.Message)

	history, err := f.store.GetHistory(context.Background(), chatID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, store.RoleHuman, history[0].Role)
	assert.Equal(t, store.RoleAI, history[1].Role)
}

func TestStudentMessage_WithoutBindingRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	chat, err := f.store.CreateChat(ctx)
	require.NoError(t, err)

	conn := newFakeConn("s1") // never connected
	err = f.router.StudentMessage(ctx, conn, chat.ID, "hello?")
	assert.ErrorIs(t, err, ErrNotStudentBound)

	history, err := f.store.GetHistory(ctx, chat.ID)
	require.NoError(t, err)
	assert.Empty(t, history, "rejected message must not be persisted")
	assert.Equal(t, 0, f.engine.calls())
}

func TestStudentMessage_EmptyRejected(t *testing.T) {
	f := newFixture(t)
	conn := newFakeConn("s1")
	chatID := f.connectStudent(t, conn, "")

	err := f.router.StudentMessage(context.Background(), conn, chatID, "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestStudentMessage_HumanActiveSuppressesAI(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conn := newFakeConn("s1")
	chatID := f.connectStudent(t, conn, "")

	require.NoError(t, f.router.ToggleHumanEnabled(ctx, chatID, true))

	require.NoError(t, f.router.StudentMessage(ctx, conn, chatID, "anyone there?"))

	assert.Equal(t, 0, f.engine.calls(), "engine must not run while human is active")
	history, err := f.store.GetHistory(ctx, chatID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, store.RoleHuman, history[0].Role)
}

func TestStudentMessage_EngineFailureFallsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.engine.generateFn = func([]*store.Message) (*reply.Reply, error) {
		return nil, errors.New("model unavailable")
	}

	conn := newFakeConn("s1")
	chatID := f.connectStudent(t, conn, "")

	require.NoError(t, f.router.StudentMessage(ctx, conn, chatID, "hello"))

	history, err := f.store.GetHistory(ctx, chatID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, store.RoleAI, history[1].Role)
	assert.Equal(t, reply.FallbackText, history[1].Text)

	// Engine failure alone never escalates
	chat, err := f.store.GetChat(ctx, chatID)
	require.NoError(t, err)
	assert.False(t, chat.IsHumanEnabled)
}

func TestEscalationScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.engine.generateFn = func([]*store.Message) (*reply.Reply, error) {
		return &reply.Reply{ToolCalls: []reply.ToolCall{{
			ID:   "call-1",
			Name: reply.ToolHumanEscalation,
			Args: json.RawMessage(`{"reason":"student asked for a human"}`),
		}}}, nil
	}
	f.engine.composeFn = func(*reply.Reply, []reply.ToolResult) (string, error) {
		return "Let me connect you with one of our advisors.", nil
	}

	student := newFakeConn("s1")
	chatID := f.connectStudent(t, student, "")

	require.NoError(t, f.router.StudentMessage(ctx, student, chatID, "I want to talk to a human"))

	// Escalation was announced and persisted
	require.Len(t, student.named(wire.EventEscalationTriggered), 1)
	chat, err := f.store.GetChat(ctx, chatID)
	require.NoError(t, err)
	assert.True(t, chat.IsHumanEnabled)

	// The AI reply references the escalation
	messages := student.named(wire.EventNewMessage)
	require.Len(t, messages, 2)
	assert.Equal(t, "Let me connect you with one of our advisors.", messages[1].Data.(wire.Message).Message)

	// A subsequent admin message is now accepted and broadcast as human_operator
	admin := newFakeConn("a1")
	require.NoError(t, f.router.AdminConnect(ctx, admin, chatID))
	require.NoError(t, f.router.AdminMessage(ctx, admin, chatID, "Hi, how can I help?"))

	studentMsgs := student.named(wire.EventNewMessage)
	last := studentMsgs[len(studentMsgs)-1].Data.(wire.Message)
	assert.Equal(t, store.RoleHumanOperator, last.Role)
	assert.Equal(t, "Hi, how can I help?", last.Message)
}

func TestBookingScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	date := time.Now().AddDate(0, 0, 5).Format("2006-01-02")
	_, err := f.store.CreateSlot(ctx, date, "0900")
	require.NoError(t, err)

	bookArgs := json.RawMessage(fmt.Sprintf(`{"date":%q,"time":"9:00"}`, date))
	f.engine.generateFn = func([]*store.Message) (*reply.Reply, error) {
		return &reply.Reply{ToolCalls: []reply.ToolCall{{
			ID: "call-1", Name: reply.ToolBookTimeSlot, Args: bookArgs,
		}}}, nil
	}
	f.engine.composeFn = func(_ *reply.Reply, results []reply.ToolResult) (string, error) {
		require.Len(t, results, 1)
		if results[0].IsError {
			return "Sorry, that slot is taken.", nil
		}
		return "Your call is booked!", nil
	}

	student := newFakeConn("s1")
	chatID := f.connectStudent(t, student, "")

	require.NoError(t, f.router.StudentMessage(ctx, student, chatID, "book me the 9am on "+date))

	confirmed := student.named(wire.EventBookingConfirmed)
	require.Len(t, confirmed, 1)
	slot := confirmed[0].Data.(wire.BookingConfirmed).Slot
	assert.Equal(t, date, slot.Date)
	assert.Equal(t, "0900", slot.Time)

	messages := student.named(wire.EventNewMessage)
	assert.Equal(t, "Your call is booked!", messages[len(messages)-1].Data.(wire.Message).Message)

	// A second identical request loses: corrective reply, no duplicate booking
	require.NoError(t, f.router.StudentMessage(ctx, student, chatID, "book me the 9am on "+date))

	assert.Len(t, student.named(wire.EventBookingConfirmed), 1, "no duplicate booking_confirmed")
	messages = student.named(wire.EventNewMessage)
	assert.Equal(t, "Sorry, that slot is taken.", messages[len(messages)-1].Data.(wire.Message).Message)
}

func TestAdminMessage_RejectedWhileAIActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	student := newFakeConn("s1")
	chatID := f.connectStudent(t, student, "")

	admin := newFakeConn("a1")
	require.NoError(t, f.router.AdminConnect(ctx, admin, chatID))

	err := f.router.AdminMessage(ctx, admin, chatID, "let me jump in")
	assert.ErrorIs(t, err, ErrHumanNotEnabled)

	history, err := f.store.GetHistory(ctx, chatID)
	require.NoError(t, err)
	for _, msg := range history {
		assert.NotEqual(t, store.RoleHumanOperator, msg.Role,
			"no operator message may be persisted while AI is active")
	}
}

func TestAdminMessage_UnknownChat(t *testing.T) {
	f := newFixture(t)
	admin := newFakeConn("a1")

	err := f.router.AdminMessage(context.Background(), admin, "no-such-chat", "hello")
	assert.ErrorIs(t, err, ErrChatNotFound)
}

func TestAdminConnect_RepliesAndAnnounces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	student := newFakeConn("s1")
	chatID := f.connectStudent(t, student, "")
	require.NoError(t, f.router.StudentMessage(ctx, student, chatID, "hello"))

	admin := newFakeConn("a1")
	require.NoError(t, f.router.AdminConnect(ctx, admin, chatID))

	connected := admin.named(wire.EventAdminConnected)
	require.Len(t, connected, 1)
	payload := connected[0].Data.(wire.AdminConnected)
	assert.Equal(t, chatID, payload.ChatID)
	assert.Len(t, payload.History, 2)

	status := student.named(wire.EventAdminStatusChanged)
	require.Len(t, status, 1)
	assert.True(t, status[0].Data.(wire.AdminStatusChanged).IsAdminConnected)
}

func TestAdminDisconnect_FiresOnceAfterLastAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	student := newFakeConn("s1")
	chatID := f.connectStudent(t, student, "")

	admin1 := newFakeConn("a1")
	admin2 := newFakeConn("a2")
	require.NoError(t, f.router.AdminConnect(ctx, admin1, chatID))
	require.NoError(t, f.router.AdminConnect(ctx, admin2, chatID))

	offlineEvents := func() int {
		n := 0
		for _, ev := range student.named(wire.EventAdminStatusChanged) {
			if !ev.Data.(wire.AdminStatusChanged).IsAdminConnected {
				n++
			}
		}
		return n
	}

	f.router.AdminDisconnect("a1", chatID)
	assert.Equal(t, 0, offlineEvents(), "no offline event while another admin remains")

	f.router.AdminDisconnect("a2", chatID)
	assert.Equal(t, 1, offlineEvents(), "offline event fires exactly once after the last admin leaves")

	f.router.AdminDisconnect("a2", chatID) // already gone, must not re-fire
	assert.Equal(t, 1, offlineEvents())
}

func TestDisconnect_AnnouncesForAllWatchedChats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s1 := newFakeConn("s1")
	s2 := newFakeConn("s2")
	chatA := f.connectStudent(t, s1, "")
	chatB := f.connectStudent(t, s2, "")

	admin := newFakeConn("a1")
	require.NoError(t, f.router.AdminConnect(ctx, admin, chatA))
	require.NoError(t, f.router.AdminConnect(ctx, admin, chatB))

	f.router.Disconnect("a1")

	for _, student := range []*fakeConn{s1, s2} {
		offline := 0
		for _, ev := range student.named(wire.EventAdminStatusChanged) {
			if !ev.Data.(wire.AdminStatusChanged).IsAdminConnected {
				offline++
			}
		}
		assert.Equal(t, 1, offline)
	}
}

func TestToggleHumanEnabled_Broadcasts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	student := newFakeConn("s1")
	chatID := f.connectStudent(t, student, "")

	require.NoError(t, f.router.ToggleHumanEnabled(ctx, chatID, true))

	changed := student.named(wire.EventHumanEnabledChanged)
	require.Len(t, changed, 1)
	assert.True(t, changed[0].Data.(wire.HumanEnabledChanged).IsHumanEnabled)

	require.NoError(t, f.router.ToggleHumanEnabled(ctx, chatID, false))
	changed = student.named(wire.EventHumanEnabledChanged)
	require.Len(t, changed, 2)
	assert.False(t, changed[1].Data.(wire.HumanEnabledChanged).IsHumanEnabled)
}

func TestToggleHumanEnabled_UnknownChat(t *testing.T) {
	f := newFixture(t)

	err := f.router.ToggleHumanEnabled(context.Background(), "no-such-chat", true)
	assert.ErrorIs(t, err, ErrChatNotFound)
}

func TestConcurrentStudentMessages_StrictOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	student := newFakeConn("s1")
	chatID := f.connectStudent(t, student, "")

	const senders = 8
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := f.router.StudentMessage(ctx, student, chatID, fmt.Sprintf("message %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	history, err := f.store.GetHistory(ctx, chatID)
	require.NoError(t, err)
	require.Len(t, history, senders*2)

	// Per-chat serialization: every student message is immediately followed
	// by its AI reply, with no interleaving, and seq strictly increases.
	for i, msg := range history {
		if i%2 == 0 {
			assert.Equal(t, store.RoleHuman, msg.Role, "position %d", i)
		} else {
			assert.Equal(t, store.RoleAI, msg.Role, "position %d", i)
		}
		if i > 0 {
			assert.Greater(t, msg.Seq, history[i-1].Seq)
		}
	}
}

func TestConcurrentChats_ProceedIndependently(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const chats = 4
	var wg sync.WaitGroup
	for i := 0; i < chats; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := newFakeConn(fmt.Sprintf("s%d", i))
			require.NoError(t, f.router.StudentConnect(ctx, conn, ""))
			chatID := conn.named(wire.EventStudentConnected)[0].Data.(wire.StudentConnected).ChatID
			for j := 0; j < 3; j++ {
				assert.NoError(t, f.router.StudentMessage(ctx, conn, chatID, fmt.Sprintf("msg %d", j)))
			}
			history, err := f.store.GetHistory(ctx, chatID)
			require.NoError(t, err)
			assert.Len(t, history, 6)
		}(i)
	}
	wg.Wait()
}
