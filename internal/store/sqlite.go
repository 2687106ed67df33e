// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides chat/message/booking persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Single connection: SQLite allows one writer at a time, so funnel all
	// access through one conn instead of racing into SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS chats (
			id TEXT PRIMARY KEY,
			is_human_enabled INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			deleted_at TEXT
		);

		CREATE TABLE IF NOT EXISTS chat_history (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			chat_id TEXT NOT NULL,
			role TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at TEXT NOT NULL,
			deleted_at TEXT,
			FOREIGN KEY (chat_id) REFERENCES chats(id)
		);

		CREATE INDEX IF NOT EXISTS idx_chat_history_chat_seq
			ON chat_history(chat_id, seq);

		CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			date TEXT NOT NULL,
			time TEXT NOT NULL,
			chat_id TEXT,
			created_at TEXT NOT NULL,
			deleted_at TEXT
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_date_time
			ON bookings(date, time) WHERE deleted_at IS NULL;
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateChat inserts a new chat with AI active (is_human_enabled=false)
func (s *SQLiteStore) CreateChat(ctx context.Context) (*Chat, error) {
	chat := &Chat{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
	}

	query := `INSERT INTO chats (id, is_human_enabled, created_at) VALUES (?, 0, ?)`
	_, err := s.db.ExecContext(ctx, query, chat.ID, chat.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("inserting chat: %w", err)
	}

	s.logger.Debug("created chat", "id", chat.ID)
	return chat, nil
}

// GetChat retrieves a chat by ID.
// Returns ErrNotFound if the chat doesn't exist or is soft-deleted.
func (s *SQLiteStore) GetChat(ctx context.Context, id string) (*Chat, error) {
	query := `
		SELECT id, is_human_enabled, created_at
		FROM chats
		WHERE id = ? AND deleted_at IS NULL
	`

	var chat Chat
	var createdAtStr string

	err := s.db.QueryRowContext(ctx, query, id).Scan(&chat.ID, &chat.IsHumanEnabled, &createdAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying chat: %w", err)
	}

	chat.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &chat, nil
}

// ListChats returns all non-deleted chats, newest first
func (s *SQLiteStore) ListChats(ctx context.Context) ([]*Chat, error) {
	query := `
		SELECT id, is_human_enabled, created_at
		FROM chats
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying chats: %w", err)
	}
	defer rows.Close()

	var chats []*Chat
	for rows.Next() {
		var chat Chat
		var createdAtStr string
		if err := rows.Scan(&chat.ID, &chat.IsHumanEnabled, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning chat: %w", err)
		}
		chat.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		chats = append(chats, &chat)
	}
	return chats, rows.Err()
}

// SetHumanEnabled flips the is_human_enabled flag for a chat.
// Returns ErrNotFound if the chat doesn't exist.
func (s *SQLiteStore) SetHumanEnabled(ctx context.Context, chatID string, enabled bool) error {
	query := `UPDATE chats SET is_human_enabled = ? WHERE id = ? AND deleted_at IS NULL`

	res, err := s.db.ExecContext(ctx, query, enabled, chatID)
	if err != nil {
		return fmt.Errorf("updating chat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("human enabled updated", "chat_id", chatID, "enabled", enabled)
	return nil
}

// AppendMessage inserts a message at the end of a chat's history.
// The AUTOINCREMENT seq column gives messages their strict per-chat order.
func (s *SQLiteStore) AppendMessage(ctx context.Context, chatID, role, text string) (*Message, error) {
	msg := &Message{
		ID:        uuid.New().String(),
		ChatID:    chatID,
		Role:      role,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}

	query := `
		INSERT INTO chat_history (id, chat_id, role, message, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	res, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.ChatID, msg.Role, msg.Text, msg.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	msg.Seq, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading message seq: %w", err)
	}

	return msg, nil
}

// GetHistory returns all non-deleted messages for a chat in insertion order
func (s *SQLiteStore) GetHistory(ctx context.Context, chatID string) ([]*Message, error) {
	query := `
		SELECT seq, id, chat_id, role, message, created_at
		FROM chat_history
		WHERE chat_id = ? AND deleted_at IS NULL
		ORDER BY seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var createdAtStr string
		if err := rows.Scan(&msg.Seq, &msg.ID, &msg.ChatID, &msg.Role, &msg.Text, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// CreateSlot inserts a free booking slot. Date is YYYY-MM-DD, timeOfDay is HHMM.
func (s *SQLiteStore) CreateSlot(ctx context.Context, date, timeOfDay string) (*BookingSlot, error) {
	slot := &BookingSlot{
		ID:        uuid.New().String(),
		Date:      date,
		Time:      timeOfDay,
		CreatedAt: time.Now().UTC(),
	}

	query := `INSERT INTO bookings (id, date, time, created_at) VALUES (?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, slot.ID, slot.Date, slot.Time, slot.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("inserting slot: %w", err)
	}

	return slot, nil
}

// ListFreeSlots returns unclaimed slots from the given date forward, limited
// to the given number of days, ordered by date then time.
func (s *SQLiteStore) ListFreeSlots(ctx context.Context, from time.Time, days int) ([]*BookingSlot, error) {
	fromDate := from.Format("2006-01-02")
	untilDate := from.AddDate(0, 0, days).Format("2006-01-02")

	query := `
		SELECT id, date, time, created_at
		FROM bookings
		WHERE chat_id IS NULL AND deleted_at IS NULL AND date >= ? AND date < ?
		ORDER BY date ASC, time ASC
	`

	rows, err := s.db.QueryContext(ctx, query, fromDate, untilDate)
	if err != nil {
		return nil, fmt.Errorf("querying slots: %w", err)
	}
	defer rows.Close()

	var slots []*BookingSlot
	for rows.Next() {
		var slot BookingSlot
		var createdAtStr string
		if err := rows.Scan(&slot.ID, &slot.Date, &slot.Time, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning slot: %w", err)
		}
		slot.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		slots = append(slots, &slot)
	}
	return slots, rows.Err()
}

// ClaimSlot atomically assigns a free slot to a chat. The WHERE clause is the
// compare-and-swap: the update only lands if the slot is still unclaimed, so
// two chats racing for the same slot cannot both win.
func (s *SQLiteStore) ClaimSlot(ctx context.Context, slotID, chatID string) (*BookingSlot, error) {
	query := `
		UPDATE bookings
		SET chat_id = ?
		WHERE id = ? AND chat_id IS NULL AND deleted_at IS NULL
	`

	res, err := s.db.ExecContext(ctx, query, chatID, slotID)
	if err != nil {
		return nil, fmt.Errorf("claiming slot: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking claim result: %w", err)
	}
	if affected == 0 {
		return nil, ErrSlotUnavailable
	}

	var slot BookingSlot
	var createdAtStr string
	row := s.db.QueryRowContext(ctx,
		`SELECT id, date, time, chat_id, created_at FROM bookings WHERE id = ?`, slotID)
	if err := row.Scan(&slot.ID, &slot.Date, &slot.Time, &slot.ChatID, &createdAtStr); err != nil {
		return nil, fmt.Errorf("reading claimed slot: %w", err)
	}
	slot.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	s.logger.Info("slot claimed", "slot_id", slotID, "chat_id", chatID, "date", slot.Date, "time", slot.Time)
	return &slot, nil
}
