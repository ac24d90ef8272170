package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/connectus-realtime/internal/store"
)

//go:embed schema.sql
var schema string

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, ApplySchema)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests that seed fixtures right after the schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// ApplySchema creates all tables if they do not exist.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== Users ====

// CreateUser inserts a user profile.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, fullName, pictureURL string) (*store.User, error) {
	query := `
		INSERT INTO users (username, full_name, profile_picture_url)
		VALUES (?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, username, fullName, pictureURL)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, username, full_name, profile_picture_url, is_online, last_seen, created_at
		FROM users
		WHERE id = ?
	`
	var (
		user     store.User
		lastSeen sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Username,
		&user.FullName,
		&user.ProfilePictureURL,
		&user.IsOnline,
		&lastSeen,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	user.LastSeen = nullTimePtr(lastSeen)

	return &user, nil
}

// SetOnline records the user's presence at the given instant.
func (s *SQLiteStore) SetOnline(ctx context.Context, userID int64, online bool, at time.Time) error {
	query := `UPDATE users SET is_online = ?, last_seen = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, online, at.UTC(), userID)
	if err != nil {
		return fmt.Errorf("update presence: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %d: %w", userID, store.ErrNotFound)
	}
	return nil
}

// ==== Memberships ====

// AddGroupMember marks the user as an active member of the group.
func (s *SQLiteStore) AddGroupMember(ctx context.Context, groupID, userID int64) error {
	query := `
		INSERT INTO group_members (group_id, user_id, is_active) VALUES (?, ?, 1)
		ON CONFLICT (group_id, user_id) DO UPDATE SET is_active = 1
	`
	if _, err := s.db.ExecContext(ctx, query, groupID, userID); err != nil {
		return fmt.Errorf("insert group member: %w", err)
	}
	return nil
}

// RemoveGroupMember deactivates the membership without deleting history.
func (s *SQLiteStore) RemoveGroupMember(ctx context.Context, groupID, userID int64) error {
	query := `UPDATE group_members SET is_active = 0 WHERE group_id = ? AND user_id = ?`
	if _, err := s.db.ExecContext(ctx, query, groupID, userID); err != nil {
		return fmt.Errorf("deactivate group member: %w", err)
	}
	return nil
}

// AddChannelSubscriber marks the user as an active subscriber of the channel.
func (s *SQLiteStore) AddChannelSubscriber(ctx context.Context, channelID, userID int64) error {
	query := `
		INSERT INTO channel_subscribers (channel_id, user_id, is_active) VALUES (?, ?, 1)
		ON CONFLICT (channel_id, user_id) DO UPDATE SET is_active = 1
	`
	if _, err := s.db.ExecContext(ctx, query, channelID, userID); err != nil {
		return fmt.Errorf("insert channel subscriber: %w", err)
	}
	return nil
}

// ListActiveGroupIDs returns the groups the user is an active member of.
func (s *SQLiteStore) ListActiveGroupIDs(ctx context.Context, userID int64) ([]int64, error) {
	return s.listIDs(ctx,
		`SELECT group_id FROM group_members WHERE user_id = ? AND is_active = 1 ORDER BY group_id`,
		userID)
}

// ListActiveChannelIDs returns the channels the user actively subscribes to.
func (s *SQLiteStore) ListActiveChannelIDs(ctx context.Context, userID int64) ([]int64, error) {
	return s.listIDs(ctx,
		`SELECT channel_id FROM channel_subscribers WHERE user_id = ? AND is_active = 1 ORDER BY channel_id`,
		userID)
}

// IsActiveGroupMember checks active membership of a group.
func (s *SQLiteStore) IsActiveGroupMember(ctx context.Context, userID, groupID int64) (bool, error) {
	return s.exists(ctx,
		`SELECT 1 FROM group_members WHERE user_id = ? AND group_id = ? AND is_active = 1`,
		userID, groupID)
}

// IsActiveChannelSubscriber checks active subscription to a channel.
func (s *SQLiteStore) IsActiveChannelSubscriber(ctx context.Context, userID, channelID int64) (bool, error) {
	return s.exists(ctx,
		`SELECT 1 FROM channel_subscribers WHERE user_id = ? AND channel_id = ? AND is_active = 1`,
		userID, channelID)
}

func (s *SQLiteStore) listIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return ids, nil
}

func (s *SQLiteStore) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check existence: %w", err)
	}
	return true, nil
}

// ==== Messages ====

// SaveMessage persists a message and fills in its ID.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	query := `
		INSERT INTO messages (sender_id, receiver_id, group_id, channel_id, content, sent_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		msg.SenderID, msg.ReceiverID, msg.GroupID, msg.ChannelID, msg.Content, msg.SentAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	msg.ID = id
	return nil
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	query := `
		SELECT id, sender_id, receiver_id, group_id, channel_id, content,
		       is_read, read_at, is_delivered, sent_at
		FROM messages
		WHERE id = ?
	`
	var (
		msg                          store.Message
		receiverID, groupID, channel sql.NullInt64
		readAt                       sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID,
		&msg.SenderID,
		&receiverID,
		&groupID,
		&channel,
		&msg.Content,
		&msg.IsRead,
		&readAt,
		&msg.IsDelivered,
		&msg.SentAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	msg.ReceiverID = nullInt64Ptr(receiverID)
	msg.GroupID = nullInt64Ptr(groupID)
	msg.ChannelID = nullInt64Ptr(channel)
	msg.ReadAt = nullTimePtr(readAt)

	return &msg, nil
}

// MarkConversationRead marks unread direct messages from senderID to readerID as read.
func (s *SQLiteStore) MarkConversationRead(ctx context.Context, readerID, senderID int64, at time.Time) (int64, error) {
	query := `
		UPDATE messages
		SET is_read = 1, read_at = ?
		WHERE receiver_id = ? AND sender_id = ? AND is_read = 0
	`
	result, err := s.db.ExecContext(ctx, query, at.UTC(), readerID, senderID)
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return n, nil
}

// MarkDelivered flags a message as delivered.
func (s *SQLiteStore) MarkDelivered(ctx context.Context, messageID int64) error {
	query := `UPDATE messages SET is_delivered = 1 WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, messageID); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

// ==== Call logs ====

// CreateCallLog inserts a new call log.
func (s *SQLiteStore) CreateCallLog(ctx context.Context, log *store.CallLog) error {
	query := `
		INSERT INTO call_logs (id, caller_id, receiver_id, call_type, status,
		                       started_at, answered_at, ended_at, duration_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		log.ID, log.CallerID, log.ReceiverID, log.Type, log.Status,
		log.StartedAt, log.AnsweredAt, log.EndedAt, log.DurationSeconds)
	if err != nil {
		return fmt.Errorf("insert call log: %w", err)
	}
	return nil
}

// UpdateCallLog updates the mutable fields of a call log.
func (s *SQLiteStore) UpdateCallLog(ctx context.Context, log *store.CallLog) error {
	query := `
		UPDATE call_logs
		SET status = ?, answered_at = ?, ended_at = ?, duration_seconds = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		log.Status, log.AnsweredAt, log.EndedAt, log.DurationSeconds, log.ID)
	if err != nil {
		return fmt.Errorf("update call log: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("call log %s: %w", log.ID, store.ErrNotFound)
	}
	return nil
}

// GetCallLog retrieves a call log by ID.
func (s *SQLiteStore) GetCallLog(ctx context.Context, id string) (*store.CallLog, error) {
	query := `
		SELECT id, caller_id, receiver_id, call_type, status,
		       started_at, answered_at, ended_at, duration_seconds
		FROM call_logs
		WHERE id = ?
	`
	var (
		log                 store.CallLog
		answeredAt, endedAt sql.NullTime
		duration            sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&log.ID,
		&log.CallerID,
		&log.ReceiverID,
		&log.Type,
		&log.Status,
		&log.StartedAt,
		&answeredAt,
		&endedAt,
		&duration,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("call log %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query call log: %w", err)
	}
	log.AnsweredAt = nullTimePtr(answeredAt)
	log.EndedAt = nullTimePtr(endedAt)
	log.DurationSeconds = nullInt64Ptr(duration)

	return &log, nil
}

func nullTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func nullInt64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
