package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/menta2k/skin-analyzer/pkg/types"
)

// Postgres stores results in a PostgreSQL table, one JSONB document per row
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects and ensures the schema exists
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// initSchema creates the results table if it doesn't exist
func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS analysis_results (
			id TEXT PRIMARY KEY,
			origin TEXT NOT NULL,
			overall_score INT NOT NULL,
			provider TEXT NOT NULL DEFAULT '',
			mock BOOLEAN NOT NULL DEFAULT FALSE,
			result JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS analysis_results_created_at_idx ON analysis_results (created_at DESC);
	`
	_, err := pool.Exec(ctx, query)
	return err
}

func (p *Postgres) Save(ctx context.Context, origin string, r *types.AnalysisResult) error {
	if r == nil || r.ID == "" {
		return errors.New("history: result without id")
	}
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO analysis_results (id, origin, overall_score, provider, mock, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, r.ID, origin, r.OverallScore, r.Provenance.Provider, r.Provenance.Mock, doc, createdAt)
	if err != nil {
		return fmt.Errorf("failed to save result %s: %w", r.ID, err)
	}
	return nil
}

func (p *Postgres) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	rows, err := p.pool.Query(ctx, `
		SELECT origin, result FROM analysis_results
		ORDER BY created_at DESC, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (p *Postgres) Get(ctx context.Context, id string) (*Entry, error) {
	row := p.pool.QueryRow(ctx, "SELECT origin, result FROM analysis_results WHERE id = $1", id)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var (
		origin string
		doc    []byte
	)
	if err := row.Scan(&origin, &doc); err != nil {
		return nil, err
	}
	var r types.AnalysisResult
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, fmt.Errorf("failed to decode stored result: %w", err)
	}
	return &Entry{Origin: origin, Result: &r}, nil
}

// Reset drops the results table
func (p *Postgres) Reset(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, "DROP TABLE IF EXISTS analysis_results")
	return err
}

func (p *Postgres) Close() {
	p.pool.Close()
}
