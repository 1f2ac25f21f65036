package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"

	"github.com/AdrianHagen/chat-ollama/internal/config"
	"github.com/AdrianHagen/chat-ollama/internal/sequencer"
)

const chatStoreProbeName = "chat-store"

// dbPinger abstracts the pgxpool.Pool methods used in Probe so that tests
// can inject a fake without standing up a real database.
type dbPinger interface {
	Ping(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// ChatStoreProber checks that the chat history database is reachable and its
// schema has been initialised.
type ChatStoreProber struct {
	cfg     config.StoreConfig
	cb      *gobreaker.CircuitBreaker
	connect func(ctx context.Context, cfg config.StoreConfig) (dbPinger, error)
}

// NewChatStoreProber creates a prober that opens a short-lived pool per probe.
// No connection is made at construction time.
func NewChatStoreProber(cfg config.StoreConfig, cb *gobreaker.CircuitBreaker) *ChatStoreProber {
	return &ChatStoreProber{
		cfg:     cfg,
		cb:      cb,
		connect: realConnect,
	}
}

// Probe pings the database and verifies the chats table exists. A reachable
// database without the schema is reported as not OK with a hint to run init-db.
func (c *ChatStoreProber) Probe(ctx context.Context) sequencer.ProbeResult {
	start := time.Now()

	_, err := c.cb.Execute(func() (any, error) {
		pool, err := c.connect(ctx, c.cfg)
		if err != nil {
			return nil, err
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping: %w", err)
		}

		var exists bool
		row := pool.QueryRow(ctx, "SELECT to_regclass('public.chats') IS NOT NULL")
		if err := row.Scan(&exists); err != nil {
			return nil, fmt.Errorf("checking chats table: %w", err)
		}
		if !exists {
			return nil, fmt.Errorf("chats table not found (run init-db)")
		}
		return nil, nil
	})

	latency := time.Since(start).Milliseconds()

	if err != nil {
		return sequencer.ProbeResult{
			Name:      chatStoreProbeName,
			OK:        false,
			LatencyMs: latency,
			Error:     breakerError(err),
		}
	}

	return sequencer.ProbeResult{
		Name:      chatStoreProbeName,
		OK:        true,
		LatencyMs: latency,
	}
}

// realConnect opens a pgxpool.Pool using the provided StoreConfig.
func realConnect(ctx context.Context, cfg config.StoreConfig) (dbPinger, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing store DSN: %w", err)
	}
	poolCfg.MaxConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("opening store pool: %w", err)
	}

	return pool, nil
}
