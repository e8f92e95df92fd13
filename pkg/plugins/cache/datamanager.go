// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"
)

// Entry is one cached question/answer pair.
type Entry struct {
	ID        string
	Question  string
	Answer    string
	CreatedAt time.Time
}

// DataManager stores entries by id. Get reports false for unknown or
// expired ids.
type DataManager interface {
	Put(ctx context.Context, e Entry) error
	Get(ctx context.Context, id string) (Entry, bool, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// NewDataManager opens the data manager described by cfg.
func NewDataManager(cfg DataManagerConfig) (DataManager, error) {
	switch cfg.Type {
	case BackendMemory, "":
		return newMemoryData(), nil
	case BackendSQLite:
		return openSQLite(cfg.Path)
	case BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.Address, DB: cfg.DB})
		return newRedisData(client, cfg.Prefix, time.Duration(cfg.TTLSeconds)*time.Second), nil
	default:
		return nil, fmt.Errorf("unknown cache data manager %q", cfg.Type)
	}
}

type memoryData struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func newMemoryData() *memoryData {
	return &memoryData{entries: make(map[string]Entry)}
}

func (m *memoryData) Put(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.ID] = e
	return nil
}

func (m *memoryData) Get(_ context.Context, id string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	return e, ok, nil
}

func (m *memoryData) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

func (m *memoryData) Close() error { return nil }

// sqliteData keeps entries in a single table.
type sqliteData struct {
	db *sql.DB
}

const sqliteSchema = `CREATE TABLE IF NOT EXISTS cache_entries (
	id         TEXT PRIMARY KEY,
	question   TEXT NOT NULL,
	answer     TEXT NOT NULL,
	created_at INTEGER NOT NULL
)`

func openSQLite(path string) (*sqliteData, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}
	return &sqliteData{db: db}, nil
}

func (s *sqliteData) Put(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (id, question, answer, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET question = excluded.question, answer = excluded.answer`,
		e.ID, e.Question, e.Answer, e.CreatedAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert cache entry: %w", err)
	}
	return nil
}

func (s *sqliteData) Get(ctx context.Context, id string) (Entry, bool, error) {
	var (
		e       Entry
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, question, answer, created_at FROM cache_entries WHERE id = ?`, id).
		Scan(&e.ID, &e.Question, &e.Answer, &created)
	if stderrors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("select cache entry: %w", err)
	}
	e.CreatedAt = time.UnixMilli(created).UTC()
	return e, true, nil
}

func (s *sqliteData) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return n, nil
}

func (s *sqliteData) Close() error { return s.db.Close() }

// redisData keeps each entry in a hash under prefix+id.
type redisData struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func newRedisData(client *redis.Client, prefix string, ttl time.Duration) *redisData {
	return &redisData{client: client, prefix: prefix, ttl: ttl}
}

func (r *redisData) key(id string) string { return r.prefix + id }

func (r *redisData) Put(ctx context.Context, e Entry) error {
	key := r.key(e.ID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"question":   e.Question,
		"answer":     e.Answer,
		"created_at": e.CreatedAt.UTC().UnixMilli(),
	})
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put %s: %w", key, err)
	}
	return nil
}

func (r *redisData) Get(ctx context.Context, id string) (Entry, bool, error) {
	var row struct {
		Question  string `redis:"question"`
		Answer    string `redis:"answer"`
		CreatedAt int64  `redis:"created_at"`
	}
	res := r.client.HGetAll(ctx, r.key(id))
	if err := res.Err(); err != nil {
		return Entry{}, false, fmt.Errorf("redis get %s: %w", id, err)
	}
	if len(res.Val()) == 0 {
		return Entry{}, false, nil
	}
	if err := res.Scan(&row); err != nil {
		return Entry{}, false, fmt.Errorf("redis decode %s: %w", id, err)
	}
	return Entry{
		ID:        id,
		Question:  row.Question,
		Answer:    row.Answer,
		CreatedAt: time.UnixMilli(row.CreatedAt).UTC(),
	}, true, nil
}

func (r *redisData) Count(ctx context.Context) (int, error) {
	var (
		cursor uint64
		n      int
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("redis scan: %w", err)
		}
		n += len(keys)
		if next == 0 {
			return n, nil
		}
		cursor = next
	}
}

func (r *redisData) Close() error { return r.client.Close() }
