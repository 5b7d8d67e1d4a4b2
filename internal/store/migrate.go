package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EmbeddingDim is the fixed dimensionality of the embedding column.
// Matches text-embedding-3-small.
const EmbeddingDim = 1536

var schema = fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS principles (
	id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	text          TEXT NOT NULL,
	tags          JSONB NOT NULL DEFAULT '[]',
	triples       JSONB NOT NULL DEFAULT '[]',
	examples      JSONB NOT NULL DEFAULT '[]',
	use_count     DOUBLE PRECISION NOT NULL DEFAULT 0,
	success_count DOUBLE PRECISION NOT NULL DEFAULT 0,
	embedding     vector(%d),
	confidence    DOUBLE PRECISION,
	source        TEXT NOT NULL DEFAULT '',
	version       INTEGER NOT NULL DEFAULT 1,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS traces (
	id                    UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	task_summary          TEXT NOT NULL,
	problem_description   TEXT NOT NULL DEFAULT '',
	tool_calls            JSONB NOT NULL DEFAULT '[]',
	intermediate_thoughts JSONB NOT NULL DEFAULT '[]',
	final_answer          TEXT NOT NULL DEFAULT '',
	outcome               JSONB NOT NULL DEFAULT '{}',
	duration_ms           BIGINT NOT NULL DEFAULT 0,
	model_used            TEXT NOT NULL DEFAULT '',
	session_id            TEXT NOT NULL DEFAULT '',
	agent_id              TEXT NOT NULL DEFAULT '',
	tags                  JSONB NOT NULL DEFAULT '[]',
	triples               JSONB NOT NULL DEFAULT '[]',
	context               JSONB,
	distilled_at          TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS principle_usage (
	id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	principle_id   UUID NOT NULL REFERENCES principles(id) ON DELETE CASCADE,
	trace_id       UUID REFERENCES traces(id) ON DELETE SET NULL,
	was_successful BOOLEAN NOT NULL,
	credit         DOUBLE PRECISION NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_principle_usage_principle ON principle_usage (principle_id);
CREATE INDEX IF NOT EXISTS idx_traces_distilled ON traces (distilled_at) WHERE distilled_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_principles_updated ON principles (updated_at);
`, EmbeddingDim)

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
