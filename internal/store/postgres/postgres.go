// Package postgres implements store.Store on a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/commhub-server/internal/store"
	"github.com/vovakirdan/commhub-server/internal/store/migrations"
)

// Store implements store.Store for PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New connects to dsn, applies pending migrations and returns the store.
func New(ctx context.Context, dsn string, logger *zerolog.Logger) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	_, err = migrations.Up(ctx, sqlDB, migrations.Postgres, logger)
	// Closing the wrapper leaves the pool open.
	sqlDB.Close()
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool}, nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func notFound(what string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return fmt.Errorf("query %s: %w", what, err)
}

// ==== UserStore implementation ====

const userColumns = `id, username, email, password_hash, avatar_image, created_at`

func scanUser(row pgx.Row) (*store.User, error) {
	var u store.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.AvatarImage, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) queryUsers(ctx context.Context, query string, args ...any) ([]*store.User, error) {
	rows, err := s.pool.Query(ctx, query, args...)
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

func (s *Store) CreateUser(ctx context.Context, u *store.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, username, email, password_hash, avatar_image, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.AvatarImage, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert user %q: %w", u.Username, store.ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound("user", err)
	}
	return u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		return nil, notFound("user", err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context, excludeID string) ([]*store.User, error) {
	return s.queryUsers(ctx, `SELECT `+userColumns+` FROM users WHERE id <> $1 ORDER BY username`, excludeID)
}

func (s *Store) SearchUsers(ctx context.Context, query, excludeID string) ([]*store.User, error) {
	return s.queryUsers(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE LOWER(username) LIKE $1 ESCAPE '\' AND id <> $2
		ORDER BY username
		LIMIT 20`,
		store.ContainsPattern(query), excludeID)
}

func (s *Store) ListDirectContacts(ctx context.Context, userID string) ([]*store.User, error) {
	return s.queryUsers(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id <> $1 AND id IN (
			SELECT user_b FROM messages WHERE user_a = $1
			UNION
			SELECT user_a FROM messages WHERE user_b = $1
		)
		ORDER BY username`,
		userID)
}

// ==== ChannelStore implementation ====

const channelColumns = `id, name, description, parent_id, type, admin_id, created_at`

func scanChannel(row pgx.Row) (*store.Channel, error) {
	var (
		ch  store.Channel
		typ string
	)
	if err := row.Scan(&ch.ID, &ch.Name, &ch.Description, &ch.ParentID, &typ, &ch.AdminID, &ch.CreatedAt); err != nil {
		return nil, err
	}
	ch.Type = store.ChannelType(typ)
	return &ch, nil
}

func (s *Store) queryChannels(ctx context.Context, query string, args ...any) ([]*store.Channel, error) {
	rows, err := s.pool.Query(ctx, query, args...)
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

func (s *Store) CreateChannel(ctx context.Context, ch *store.Channel) error {
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now().UTC()
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO channels (id, name, description, parent_id, type, admin_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			ch.ID, ch.Name, ch.Description, ch.ParentID, string(ch.Type), ch.AdminID, ch.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert channel %q: %w", ch.Name, store.ErrConflict)
			}
			return fmt.Errorf("insert channel: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO channel_members (channel_id, user_id, joined_at) VALUES ($1, $2, $3)`,
			ch.ID, ch.AdminID, ch.CreatedAt)
		if err != nil {
			return fmt.Errorf("add admin member: %w", err)
		}
		return nil
	})
}

func (s *Store) GetChannelByID(ctx context.Context, id string) (*store.Channel, error) {
	ch, err := scanChannel(s.pool.QueryRow(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = $1`, id))
	if err != nil {
		return nil, notFound("channel", err)
	}
	return ch, nil
}

func (s *Store) GetChannelByName(ctx context.Context, name string) (*store.Channel, error) {
	ch, err := scanChannel(s.pool.QueryRow(ctx, `SELECT `+channelColumns+` FROM channels WHERE name = $1`, name))
	if err != nil {
		return nil, notFound("channel", err)
	}
	return ch, nil
}

func (s *Store) ListChannelsForUser(ctx context.Context, userID string) ([]*store.Channel, error) {
	return s.queryChannels(ctx, `
		SELECT `+channelColumns+`
		FROM channels
		WHERE type = 'public'
		   OR id IN (SELECT channel_id FROM channel_members WHERE user_id = $1)
		ORDER BY created_at, name`,
		userID)
}

func (s *Store) SearchChannels(ctx context.Context, query, userID string) ([]*store.Channel, error) {
	return s.queryChannels(ctx, `
		SELECT `+channelColumns+`
		FROM channels
		WHERE LOWER(name) LIKE $1 ESCAPE '\'
		  AND (type = 'public' OR id IN (SELECT channel_id FROM channel_members WHERE user_id = $2))
		ORDER BY name
		LIMIT 20`,
		store.ContainsPattern(query), userID)
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, q := range []string{
		`DELETE FROM channels WHERE admin_id = $1`,
		`DELETE FROM channel_members WHERE user_id = $1`,
		`DELETE FROM channel_join_requests WHERE user_id = $1`,
	} {
		if _, err := tx.Exec(ctx, q, id); err != nil {
			return fmt.Errorf("delete user data: %w", err)
		}
	}
	tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) DeleteChannel(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM channels WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("channel %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) AddMember(ctx context.Context, userID, channelID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO channel_members (channel_id, user_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`,
		channelID, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (s *Store) RemoveMember(ctx context.Context, userID, channelID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM channel_members WHERE channel_id = $1 AND user_id = $2`, channelID, userID); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

func (s *Store) IsMember(ctx context.Context, userID, channelID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM channel_members WHERE channel_id = $1 AND user_id = $2)`,
		channelID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

func (s *Store) ListMembers(ctx context.Context, channelID string) ([]*store.User, error) {
	return s.queryUsers(ctx, `
		SELECT u.id, u.username, u.email, u.password_hash, u.avatar_image, u.created_at
		FROM channel_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.channel_id = $1
		ORDER BY m.joined_at, u.username`,
		channelID)
}

func (s *Store) AddJoinRequest(ctx context.Context, userID, channelID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO channel_join_requests (channel_id, user_id, requested_at)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`,
		channelID, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("add join request: %w", err)
	}
	return nil
}

func (s *Store) RemoveJoinRequest(ctx context.Context, userID, channelID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM channel_join_requests WHERE channel_id = $1 AND user_id = $2`, channelID, userID)
	if err != nil {
		return false, fmt.Errorf("remove join request: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ListJoinRequests(ctx context.Context, channelID string) ([]*store.User, error) {
	return s.queryUsers(ctx, `
		SELECT u.id, u.username, u.email, u.password_hash, u.avatar_image, u.created_at
		FROM channel_join_requests r
		JOIN users u ON u.id = r.user_id
		WHERE r.channel_id = $1
		ORDER BY r.requested_at, u.username`,
		channelID)
}

// ==== MessageStore implementation ====

const messageColumns = `seq, id, conversation, channel_id, user_a, user_b, sender_id, sender_name, avatar,
	type, text, audio_url, duration, file_url, file_name, file_size, created_at`

func scanMessage(row pgx.Row) (*store.Message, error) {
	var m store.Message
	err := row.Scan(&m.Seq, &m.ID, &m.Conversation, &m.ChannelID, &m.UserA, &m.UserB, &m.SenderID, &m.SenderName, &m.Avatar,
		&m.Type, &m.Text, &m.AudioURL, &m.Duration, &m.FileURL, &m.FileName, &m.FileSize, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) SaveMessage(ctx context.Context, msg *store.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (id, conversation, channel_id, user_a, user_b, sender_id, sender_name, avatar,
			type, text, audio_url, duration, file_url, file_name, file_size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING seq`,
		msg.ID, msg.Conversation, msg.ChannelID, msg.UserA, msg.UserB, msg.SenderID, msg.SenderName, msg.Avatar,
		msg.Type, msg.Text, msg.AudioURL, msg.Duration, msg.FileURL, msg.FileName, msg.FileSize, msg.CreatedAt,
	).Scan(&msg.Seq)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	m, err := scanMessage(s.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if err != nil {
		return nil, notFound("message", err)
	}
	return m, nil
}

func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, q store.MessageQuery) ([]*store.Message, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation = $1 AND ($2::bigint = 0 OR seq < $2::bigint)
		ORDER BY seq DESC
		LIMIT $3`,
		q.Conversation, q.BeforeSeq, limit)
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

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
