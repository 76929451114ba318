package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/bdougie/keyframer/internal/models"
)

// SearchResult is a stored keyframe ranked against a query vector.
type SearchResult struct {
	models.KeyframeRecord
	Similarity float64
}

// PostgresStore keeps keyframe records and their embeddings in PostgreSQL
// with the pgvector extension.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database at connString.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema creates the extension, tables and indexes if they do not exist.
// With dims > 0 the embedding column is fixed to that size and gets an
// approximate cosine index.
func (s *PostgresStore) InitSchema(ctx context.Context, dims int) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	vectorType := "vector"
	if dims > 0 {
		vectorType = fmt.Sprintf("vector(%d)", dims)
	}

	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS videos (
            id SERIAL PRIMARY KEY,
            name VARCHAR(255) NOT NULL UNIQUE,
            mode VARCHAR(16) NOT NULL,
            created_at TIMESTAMPTZ NOT NULL
        );

        CREATE TABLE IF NOT EXISTS keyframes (
            id SERIAL PRIMARY KEY,
            video_id INTEGER REFERENCES videos(id) ON DELETE CASCADE,
            shot INTEGER NOT NULL,
            start_frame INTEGER NOT NULL,
            end_frame INTEGER NOT NULL,
            start_time DOUBLE PRECISION NOT NULL,
            end_time DOUBLE PRECISION NOT NULL,
            keyframe_path TEXT NOT NULL,
            embedding %s,
            created_at TIMESTAMPTZ NOT NULL,
            UNIQUE(video_id, shot)
        );

        CREATE INDEX IF NOT EXISTS idx_keyframes_video_id ON keyframes(video_id);
    `, vectorType))
	if err != nil {
		return fmt.Errorf("failed to create database schema: %w", err)
	}

	if dims > 0 {
		_, err = s.pool.Exec(ctx, `
            CREATE INDEX IF NOT EXISTS idx_keyframes_embedding
            ON keyframes USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
        `)
		if err != nil {
			return fmt.Errorf("failed to create database indexes: %w", err)
		}
	}
	return nil
}

// Save replaces the stored keyframes of kf.VideoID in one transaction.
func (s *PostgresStore) Save(ctx context.Context, kf models.VideoKeyframes) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	var videoID int
	err = tx.QueryRow(ctx,
		`INSERT INTO videos (name, mode, created_at) VALUES ($1, $2, $3)
        ON CONFLICT (name) DO UPDATE SET mode = EXCLUDED.mode
        RETURNING id`,
		kf.VideoID, string(kf.Mode), now).Scan(&videoID)
	if err != nil {
		return fmt.Errorf("failed to upsert video %s: %w", kf.VideoID, err)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM keyframes WHERE video_id = $1", videoID); err != nil {
		return fmt.Errorf("failed to clear keyframes of %s: %w", kf.VideoID, err)
	}

	batch := &pgx.Batch{}
	for i, rec := range kf.Records {
		var embedding any
		if i < len(kf.Embeddings) && kf.Embeddings[i] != nil {
			embedding = pgvector.NewVector(kf.Embeddings[i])
		}
		batch.Queue(
			`INSERT INTO keyframes
            (video_id, shot, start_frame, end_frame, start_time, end_time, keyframe_path, embedding, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			videoID, rec.Shot, rec.StartFrame, rec.EndFrame, rec.StartTime, rec.EndTime, rec.KeyframePath, embedding, now)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to store keyframes of %s: %w", kf.VideoID, err)
	}

	return tx.Commit(ctx)
}

// SearchSimilar returns the keyframes closest to query by cosine distance.
// Keyframes stored without an embedding are never returned.
func (s *PostgresStore) SearchSimilar(ctx context.Context, query []float32, limit int) ([]SearchResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT v.name, k.shot, k.start_frame, k.end_frame, k.start_time, k.end_time, k.keyframe_path,
        1 - (k.embedding <=> $1) AS similarity
        FROM keyframes k
        JOIN videos v ON k.video_id = v.id
        WHERE k.embedding IS NOT NULL
        ORDER BY k.embedding <=> $1
        LIMIT $2`,
		pgvector.NewVector(query), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar keyframes: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.VideoID, &r.Shot, &r.StartFrame, &r.EndFrame,
			&r.StartTime, &r.EndTime, &r.KeyframePath, &r.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan search results: %w", err)
		}
		results = append(results, r)
	}

	return results, rows.Err()
}

// Keyframes returns the stored records of videoID ordered by shot.
func (s *PostgresStore) Keyframes(ctx context.Context, videoID string) ([]models.KeyframeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT v.name, k.shot, k.start_frame, k.end_frame, k.start_time, k.end_time, k.keyframe_path
        FROM keyframes k
        JOIN videos v ON k.video_id = v.id
        WHERE v.name = $1
        ORDER BY k.shot`,
		videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to query keyframes of %s: %w", videoID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.KeyframeRecord, error) {
		var r models.KeyframeRecord
		err := row.Scan(&r.VideoID, &r.Shot, &r.StartFrame, &r.EndFrame, &r.StartTime, &r.EndTime, &r.KeyframePath)
		return r, err
	})
}
