package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zhouzirui/memchat/backend/internal/remote"
)

const postgresService = "postgres"

// PostgresStore is a self-hosted memory backend ranking recall with
// PostgreSQL full-text search.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, remote.Wrap(postgresService, "connect", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, remote.Wrap(postgresService, "init schema", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memchat_memories (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_memchat_memories_user_created ON memchat_memories (user_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_memchat_memories_fts ON memchat_memories USING GIN (to_tsvector('english', content));`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Remember(ctx context.Context, items []Message, userID string) ([]Record, error) {
	if len(items) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	records := make([]Record, 0, len(items))
	for _, item := range items {
		record := Record{ID: uuid.NewString(), Memory: item.Content, CreatedAt: now}
		batch.Queue(
			`INSERT INTO memchat_memories (id, user_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
			record.ID, userID, item.Role, item.Content, record.CreatedAt,
		)
		records = append(records, record)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range items {
		if _, err := results.Exec(); err != nil {
			return nil, remote.Wrap(postgresService, "add", fmt.Errorf("insert memory: %w", err))
		}
	}
	return records, nil
}

func (s *PostgresStore) Recall(ctx context.Context, query, userID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, content, ts_rank(to_tsvector('english', content), plainto_tsquery('english', $2)) AS score, created_at
		 FROM memchat_memories
		 WHERE user_id = $1 AND to_tsvector('english', content) @@ plainto_tsquery('english', $2)
		 ORDER BY score DESC, created_at DESC
		 LIMIT $3`,
		userID, query, limit,
	)
	if err != nil {
		return nil, remote.Wrap(postgresService, "search", fmt.Errorf("query memories: %w", err))
	}
	records, err := scanRecords(rows, true)
	if err != nil {
		return nil, remote.Wrap(postgresService, "search", err)
	}
	return records, nil
}

func (s *PostgresStore) ListAll(ctx context.Context, userID string) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, content, created_at FROM memchat_memories WHERE user_id = $1 ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, remote.Wrap(postgresService, "get_all", fmt.Errorf("query memories: %w", err))
	}
	records, err := scanRecords(rows, false)
	if err != nil {
		return nil, remote.Wrap(postgresService, "get_all", err)
	}
	return records, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanRecords(rows pgx.Rows, scored bool) ([]Record, error) {
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var err error
		if scored {
			var score float32
			err = rows.Scan(&r.ID, &r.Memory, &score, &r.CreatedAt)
			r.Score = float64(score)
		} else {
			err = rows.Scan(&r.ID, &r.Memory, &r.CreatedAt)
		}
		if err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory rows: %w", err)
	}
	return records, nil
}
