package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kirillkom/cv-shortlist/internal/core/domain"
)

const defaultListLimit = 20

// BuildRepository records index builds in the index_builds table.
type BuildRepository struct {
	db *sql.DB
}

func NewBuildRepository(db *sql.DB) *BuildRepository {
	return &BuildRepository{db: db}
}

func (r *BuildRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026100101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS index_builds (
	id TEXT PRIMARY KEY,
	staging_path TEXT NOT NULL,
	status TEXT NOT NULL,
	documents INTEGER NOT NULL DEFAULT 0,
	chunks INTEGER NOT NULL DEFAULT 0,
	skipped INTEGER NOT NULL DEFAULT 0,
	message TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_index_builds_started_at ON index_builds(started_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *BuildRepository) CreateBuild(ctx context.Context, build *domain.IndexBuild) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO index_builds (id, staging_path, status, started_at)
VALUES ($1,$2,$3,$4)
`, build.ID, build.StagingPath, string(build.Status), build.StartedAt)
	if err != nil {
		return fmt.Errorf("insert index build: %w", err)
	}
	return nil
}

func (r *BuildRepository) FinishBuild(ctx context.Context, build *domain.IndexBuild) error {
	finishedAt := time.Now().UTC()
	if build.FinishedAt != nil {
		finishedAt = *build.FinishedAt
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE index_builds
SET status = $2, documents = $3, chunks = $4, skipped = $5, message = $6, finished_at = $7
WHERE id = $1
`, build.ID, string(build.Status), build.Documents, build.Chunks, build.Skipped, build.Message, finishedAt)
	if err != nil {
		return fmt.Errorf("update index build: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("index build rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrBuildNotFound, "finish index build", fmt.Errorf("id=%s", build.ID))
	}
	return nil
}

func (r *BuildRepository) ListBuilds(ctx context.Context, limit int) ([]domain.IndexBuild, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, staging_path, status, documents, chunks, skipped, message, started_at, finished_at
FROM index_builds
ORDER BY started_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query index builds: %w", err)
	}
	defer rows.Close()

	builds := make([]domain.IndexBuild, 0, limit)
	for rows.Next() {
		var (
			b          domain.IndexBuild
			status     string
			finishedAt sql.NullTime
		)
		if err := rows.Scan(&b.ID, &b.StagingPath, &status, &b.Documents, &b.Chunks, &b.Skipped, &b.Message, &b.StartedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan index build: %w", err)
		}
		b.Status = domain.BuildStatus(status)
		if finishedAt.Valid {
			t := finishedAt.Time
			b.FinishedAt = &t
		}
		builds = append(builds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate index builds: %w", err)
	}
	return builds, nil
}
