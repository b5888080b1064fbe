package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/commhub-server/internal/store"
	"github.com/vovakirdan/commhub-server/internal/store/migrations"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
}

// New opens the database at dbPath and applies pending migrations.
func New(ctx context.Context, dbPath string, logger *zerolog.Logger) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := migrations.Up(ctx, db, migrations.SQLite, logger)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single connection keeps :memory: databases alive and serialises writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate is a setup function that applies the embedded schema. Tests pass it
// to NewWithSetup.
func Migrate(db *sql.DB) error {
	_, err := migrations.Up(context.Background(), db, migrations.SQLite, nil)
	return err
}

// DB exposes the underlying handle, e.g. for migration status.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func notFound(what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return fmt.Errorf("query %s: %w", what, err)
}

type scanner interface {
	Scan(dest ...any) error
}

// ==== UserStore implementation ====

const userColumns = `id, username, email, password_hash, avatar_image, created_at`

func scanUser(row scanner) (*store.User, error) {
	var u store.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.AvatarImage, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLiteStore) queryUsers(ctx context.Context, query string, args ...any) ([]*store.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]*store.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateUser inserts a new user.
func (s *SQLiteStore) CreateUser(ctx context.Context, u *store.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO users (id, username, email, password_hash, avatar_image, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, u.ID, u.Username, u.Email, u.PasswordHash, u.AvatarImage, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert user %q: %w", u.Username, store.ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, notFound("user", err)
	}
	return u, nil
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username))
	if err != nil {
		return nil, notFound("user", err)
	}
	return u, nil
}

// ListUsers lists every user except excludeID.
func (s *SQLiteStore) ListUsers(ctx context.Context, excludeID string) ([]*store.User, error) {
	return s.queryUsers(ctx, `SELECT `+userColumns+` FROM users WHERE id <> ? ORDER BY username`, excludeID)
}

// SearchUsers searches for users by username.
func (s *SQLiteStore) SearchUsers(ctx context.Context, query, excludeID string) ([]*store.User, error) {
	q := `
		SELECT ` + userColumns + `
		FROM users
		WHERE LOWER(username) LIKE ? ESCAPE '\' AND id <> ?
		ORDER BY username
		LIMIT 20
	`
	return s.queryUsers(ctx, q, store.ContainsPattern(query), excludeID)
}

// ListDirectContacts lists users sharing a direct conversation with userID.
func (s *SQLiteStore) ListDirectContacts(ctx context.Context, userID string) ([]*store.User, error) {
	q := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id <> ? AND id IN (
			SELECT user_b FROM messages WHERE user_a = ?
			UNION
			SELECT user_a FROM messages WHERE user_b = ?
		)
		ORDER BY username
	`
	return s.queryUsers(ctx, q, userID, userID, userID)
}

// ==== ChannelStore implementation ====

const channelColumns = `id, name, description, parent_id, type, admin_id, created_at`

func scanChannel(row scanner) (*store.Channel, error) {
	var (
		ch     store.Channel
		parent sql.NullString
	)
	if err := row.Scan(&ch.ID, &ch.Name, &ch.Description, &parent, &ch.Type, &ch.AdminID, &ch.CreatedAt); err != nil {
		return nil, err
	}
	if parent.Valid {
		ch.ParentID = &parent.String
	}
	return &ch, nil
}

func (s *SQLiteStore) queryChannels(ctx context.Context, query string, args ...any) ([]*store.Channel, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	channels := make([]*store.Channel, 0)
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// CreateChannel inserts ch and makes its admin the first member.
func (s *SQLiteStore) CreateChannel(ctx context.Context, ch *store.Channel) error {
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	query := `
		INSERT INTO channels (id, name, description, parent_id, type, admin_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, query, ch.ID, ch.Name, ch.Description, ch.ParentID, ch.Type, ch.AdminID, ch.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert channel %q: %w", ch.Name, store.ErrConflict)
		}
		return fmt.Errorf("insert channel: %w", err)
	}

	memberQuery := `INSERT INTO channel_members (channel_id, user_id, joined_at) VALUES (?, ?, ?)`
	if _, err := tx.ExecContext(ctx, memberQuery, ch.ID, ch.AdminID, ch.CreatedAt); err != nil {
		return fmt.Errorf("add admin member: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetChannelByID retrieves a channel by ID.
func (s *SQLiteStore) GetChannelByID(ctx context.Context, id string) (*store.Channel, error) {
	ch, err := scanChannel(s.db.QueryRowContext(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = ?`, id))
	if err != nil {
		return nil, notFound("channel", err)
	}
	return ch, nil
}

// GetChannelByName retrieves a channel by name.
func (s *SQLiteStore) GetChannelByName(ctx context.Context, name string) (*store.Channel, error) {
	ch, err := scanChannel(s.db.QueryRowContext(ctx, `SELECT `+channelColumns+` FROM channels WHERE name = ?`, name))
	if err != nil {
		return nil, notFound("channel", err)
	}
	return ch, nil
}

// ListChannelsForUser lists channels visible to userID.
func (s *SQLiteStore) ListChannelsForUser(ctx context.Context, userID string) ([]*store.Channel, error) {
	q := `
		SELECT ` + channelColumns + `
		FROM channels
		WHERE type = 'public'
		   OR id IN (SELECT channel_id FROM channel_members WHERE user_id = ?)
		ORDER BY created_at, name
	`
	return s.queryChannels(ctx, q, userID)
}

// SearchChannels lists visible channels whose name contains query.
func (s *SQLiteStore) SearchChannels(ctx context.Context, query, userID string) ([]*store.Channel, error) {
	q := `
		SELECT ` + channelColumns + `
		FROM channels
		WHERE LOWER(name) LIKE ? ESCAPE '\'
		  AND (type = 'public' OR id IN (SELECT channel_id FROM channel_members WHERE user_id = ?))
		ORDER BY name
		LIMIT 20
	`
	return s.queryChannels(ctx, q, store.ContainsPattern(query), userID)
}

// DeleteUser removes a user in one transaction.
func (s *SQLiteStore) DeleteUser(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		`DELETE FROM channels WHERE admin_id = ?`,
		`DELETE FROM channel_members WHERE user_id = ?`,
		`DELETE FROM channel_join_requests WHERE user_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("delete user data: %w", err)
		}
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// DeleteChannel removes a channel; foreign keys cascade to sub-channels,
// members, join requests and messages.
func (s *SQLiteStore) DeleteChannel(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("channel %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// AddMember adds a user to a channel.
func (s *SQLiteStore) AddMember(ctx context.Context, userID, channelID string) error {
	query := `
		INSERT OR IGNORE INTO channel_members (channel_id, user_id, joined_at)
		VALUES (?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, channelID, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// RemoveMember removes a user from a channel.
func (s *SQLiteStore) RemoveMember(ctx context.Context, userID, channelID string) error {
	query := `DELETE FROM channel_members WHERE channel_id = ? AND user_id = ?`
	if _, err := s.db.ExecContext(ctx, query, channelID, userID); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

// IsMember checks if user is a member of the channel.
func (s *SQLiteStore) IsMember(ctx context.Context, userID, channelID string) (bool, error) {
	var exists int
	query := `SELECT 1 FROM channel_members WHERE channel_id = ? AND user_id = ?`
	err := s.db.QueryRowContext(ctx, query, channelID, userID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check membership: %w", err)
	}
	return true, nil
}

// ListMembers lists all members of a channel in join order.
func (s *SQLiteStore) ListMembers(ctx context.Context, channelID string) ([]*store.User, error) {
	q := `
		SELECT u.id, u.username, u.email, u.password_hash, u.avatar_image, u.created_at
		FROM channel_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.channel_id = ?
		ORDER BY m.joined_at, u.username
	`
	return s.queryUsers(ctx, q, channelID)
}

// AddJoinRequest records a pending join request.
func (s *SQLiteStore) AddJoinRequest(ctx context.Context, userID, channelID string) error {
	query := `
		INSERT OR IGNORE INTO channel_join_requests (channel_id, user_id, requested_at)
		VALUES (?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, channelID, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("add join request: %w", err)
	}
	return nil
}

// RemoveJoinRequest deletes a pending request.
func (s *SQLiteStore) RemoveJoinRequest(ctx context.Context, userID, channelID string) (bool, error) {
	query := `DELETE FROM channel_join_requests WHERE channel_id = ? AND user_id = ?`
	result, err := s.db.ExecContext(ctx, query, channelID, userID)
	if err != nil {
		return false, fmt.Errorf("remove join request: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return n > 0, nil
}

// ListJoinRequests lists users waiting for approval.
func (s *SQLiteStore) ListJoinRequests(ctx context.Context, channelID string) ([]*store.User, error) {
	q := `
		SELECT u.id, u.username, u.email, u.password_hash, u.avatar_image, u.created_at
		FROM channel_join_requests r
		JOIN users u ON u.id = r.user_id
		WHERE r.channel_id = ?
		ORDER BY r.requested_at, u.username
	`
	return s.queryUsers(ctx, q, channelID)
}

// ==== MessageStore implementation ====

const messageColumns = `seq, id, conversation, channel_id, user_a, user_b, sender_id, sender_name, avatar,
	type, text, audio_url, duration, file_url, file_name, file_size, created_at`

func scanMessage(row scanner) (*store.Message, error) {
	var (
		m                     store.Message
		channel, userA, userB sql.NullString
	)
	err := row.Scan(&m.Seq, &m.ID, &m.Conversation, &channel, &userA, &userB, &m.SenderID, &m.SenderName, &m.Avatar,
		&m.Type, &m.Text, &m.AudioURL, &m.Duration, &m.FileURL, &m.FileName, &m.FileSize, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	if channel.Valid {
		m.ChannelID = &channel.String
	}
	if userA.Valid {
		m.UserA = &userA.String
	}
	if userB.Valid {
		m.UserB = &userB.String
	}
	return &m, nil
}

// SaveMessage persists a message and assigns its sequence number.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO messages (id, conversation, channel_id, user_a, user_b, sender_id, sender_name, avatar,
			type, text, audio_url, duration, file_url, file_name, file_size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.Conversation, msg.ChannelID, msg.UserA, msg.UserB, msg.SenderID, msg.SenderName, msg.Avatar,
		msg.Type, msg.Text, msg.AudioURL, msg.Duration, msg.FileURL, msg.FileName, msg.FileSize, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	msg.Seq = seq
	return nil
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if err != nil {
		return nil, notFound("message", err)
	}
	return m, nil
}

// DeleteMessage removes a message by ID.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("message %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// ListMessages returns the newest q.Limit messages before q.BeforeSeq, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, q store.MessageQuery) ([]*store.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation = ?
	`
	args := []any{q.Conversation}
	if q.BeforeSeq > 0 {
		query += ` AND seq < ?`
		args = append(args, q.BeforeSeq)
	}
	query += ` ORDER BY seq DESC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
