// Package postgres persists FINAL transcript events in PostgreSQL.
//
// Drafts and status snapshots are not stored; only the authoritative result
// of each segment is. Rows are unique per (session_id, segment_id), so
// replaying a session is idempotent.
//
// Usage:
//
//	s, err := postgres.New(ctx, dsn)
//	if err != nil { … }
//	defer s.Close()
//
//	events, _ := s.Transcript(ctx, sessionID)
//	hits, _ := s.Search(ctx, "kubernetes", postgres.SearchOpts{SessionID: sessionID})
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlTranscriptEvents = `
CREATE TABLE IF NOT EXISTS transcript_events (
    id                     BIGSERIAL        PRIMARY KEY,
    session_id             TEXT             NOT NULL,
    segment_id             BIGINT           NOT NULL,
    seq                    BIGINT           NOT NULL,
    segment_start_ns       BIGINT           NOT NULL,
    segment_end_ns         BIGINT           NOT NULL,
    source_text            TEXT             NOT NULL,
    source_lang            TEXT             NOT NULL DEFAULT '',
    recognition_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
    translated_text        TEXT             NOT NULL DEFAULT '',
    target_lang            TEXT             NOT NULL DEFAULT '',
    translation_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
    corrections            TEXT[]           NOT NULL DEFAULT '{}',
    emitted_at             TIMESTAMPTZ      NOT NULL DEFAULT now(),
    UNIQUE (session_id, segment_id)
);

CREATE INDEX IF NOT EXISTS idx_transcript_events_emitted_at
    ON transcript_events (emitted_at);

CREATE INDEX IF NOT EXISTS idx_transcript_events_fts
    ON transcript_events USING GIN (to_tsvector('simple', source_text || ' ' || translated_text));
`

// Migrate creates the transcript table and indexes. It is idempotent and
// safe to call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlTranscriptEvents); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
