// Package chatstore persists chat sessions and their messages for the
// front-end.
package chatstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AdrianHagen/chat-ollama/internal/config"
)

// Message roles accepted by AddMessage.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ErrChatNotFound is returned by mutations addressing a chat id that does not
// exist. Reads return nil instead.
var ErrChatNotFound = errors.New("chat not found")

// pgForeignKeyViolation is the SQLSTATE for a message whose chat is gone.
const pgForeignKeyViolation = "23503"

// ErrInvalidRole is returned by AddMessage for roles other than user,
// assistant and system.
var ErrInvalidRole = errors.New("invalid message role")

// Pool is the subset of *pgxpool.Pool used by Store. pgxmock's pool satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// Chat is one conversation. UpdatedAt moves whenever its messages change.
type Chat struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a single turn of a chat.
type Message struct {
	ID        int64     `json:"id"`
	ChatID    int64     `json:"chat_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store implements chat history persistence on Postgres.
type Store struct {
	pool Pool
}

// New returns a Store backed by pool.
func New(pool Pool) *Store {
	return &Store{pool: pool}
}

// Open creates a pgx pool for cfg and verifies connectivity.
func Open(ctx context.Context, cfg config.StoreConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing store DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging chat store: %w", err)
	}

	slog.InfoContext(ctx, "chat store connected", "host", cfg.Host, "port", cfg.Port, "db", cfg.DB)
	return pool, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS chats (
		id         BIGSERIAL PRIMARY KEY,
		title      TEXT NOT NULL,
		model      TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id         BIGSERIAL PRIMARY KEY,
		chat_id    BIGINT NOT NULL REFERENCES chats (id) ON DELETE CASCADE,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_chat_id ON messages (chat_id)`,
}

// InitSchema creates the chats and messages tables if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, stmt := range schema {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// CreateChat inserts a new chat and returns its id.
func (s *Store) CreateChat(ctx context.Context, title, model string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO chats (title, model) VALUES ($1, $2) RETURNING id`,
		title, model,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert chat: %w", err)
	}
	return id, nil
}

// ListChats returns all chats, most recently updated first.
func (s *Store) ListChats(ctx context.Context) ([]Chat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, model, created_at, updated_at FROM chats ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return scanChats(rows)
}

// GetChat fetches a chat by id. It returns nil, nil when no chat exists.
func (s *Store) GetChat(ctx context.Context, id int64) (*Chat, error) {
	c := &Chat{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, model, created_at, updated_at FROM chats WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Title, &c.Model, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat %d: %w", id, err)
	}
	return c, nil
}

// UpdateChatTitle renames a chat and bumps its updated_at. It returns
// ErrChatNotFound when no chat has the id.
func (s *Store) UpdateChatTitle(ctx context.Context, id int64, title string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE chats SET title = $1, updated_at = now() WHERE id = $2`,
		title, id,
	)
	if err != nil {
		return fmt.Errorf("update chat %d title: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update chat %d title: %w", id, ErrChatNotFound)
	}
	return nil
}

// DeleteChat removes a chat; its messages go with it via ON DELETE CASCADE.
func (s *Store) DeleteChat(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chats WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete chat %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete chat %d: %w", id, ErrChatNotFound)
	}
	return nil
}

// AddMessage appends a message to a chat and bumps the chat's updated_at in
// the same transaction. It returns ErrChatNotFound when the chat does not
// exist, including when it is deleted concurrently.
func (s *Store) AddMessage(ctx context.Context, chatID int64, role, content string) (int64, error) {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin add message tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO messages (chat_id, role, content) VALUES ($1, $2, $3) RETURNING id`,
		chatID, role, content,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return 0, fmt.Errorf("insert message into chat %d: %w", chatID, ErrChatNotFound)
		}
		return 0, fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE chats SET updated_at = now() WHERE id = $1`, chatID); err != nil {
		return 0, fmt.Errorf("touch chat %d: %w", chatID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit add message: %w", err)
	}
	return id, nil
}

// GetMessages returns a chat's messages, oldest first.
func (s *Store) GetMessages(ctx context.Context, chatID int64) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, chat_id, role, content, created_at
		FROM messages WHERE chat_id = $1 ORDER BY created_at ASC, id ASC`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("get messages for chat %d: %w", chatID, err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// ClearMessages deletes every message of a chat, keeping the chat itself.
func (s *Store) ClearMessages(ctx context.Context, chatID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin clear tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE chat_id = $1`, chatID); err != nil {
		return fmt.Errorf("delete messages for chat %d: %w", chatID, err)
	}
	if _, err := tx.Exec(ctx, `UPDATE chats SET updated_at = now() WHERE id = $1`, chatID); err != nil {
		return fmt.Errorf("touch chat %d: %w", chatID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit clear: %w", err)
	}
	return nil
}

// SearchChats returns chats whose title or any message contains query,
// case-insensitively, most recently updated first.
func (s *Store) SearchChats(ctx context.Context, query string) ([]Chat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT c.id, c.title, c.model, c.created_at, c.updated_at
		FROM chats c
		LEFT JOIN messages m ON c.id = m.chat_id
		WHERE c.title ILIKE $1 OR m.content ILIKE $1
		ORDER BY c.updated_at DESC`,
		"%"+query+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("search chats: %w", err)
	}
	return scanChats(rows)
}

func scanChats(rows pgx.Rows) ([]Chat, error) {
	defer rows.Close()

	chats := []Chat{}
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.Title, &c.Model, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}
	return chats, nil
}
