package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/voxbridge/pkg/sink"
	"github.com/MrWong99/voxbridge/pkg/types"
)

// defaultBuffer is the number of FINAL events held while the database is
// slow.
const defaultBuffer = 128

// Store is a [sink.Sink] writing FINAL events, plus read access for the
// HTTP transcript endpoint. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
	q    *sink.Queue[types.TranscriptEvent]
}

var _ sink.Sink = (*Store)(nil)

// New creates a connection pool for dsn, verifies it and runs [Migrate].
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	s := &Store{pool: pool}
	s.q = sink.NewQueue("postgres", defaultBuffer, s.insert)
	return s, nil
}

// Emit queues FINAL events for insertion. Drafts are ignored.
func (s *Store) Emit(ev types.TranscriptEvent) {
	if ev.Kind != types.KindFinal {
		return
	}
	s.q.Push(ev)
}

// EmitStatus is a no-op.
func (s *Store) EmitStatus(types.Status) {}

// Close flushes queued events and releases all connections.
func (s *Store) Close() error {
	s.q.Close()
	s.pool.Close()
	return nil
}

func (s *Store) insert(ev types.TranscriptEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Write(ctx, ev); err != nil {
		slog.Warn("postgres store: dropping event", "segment_id", ev.SegmentID, "err", err)
	}
}

// Write inserts ev synchronously. A second FINAL for the same segment of a
// session is ignored.
func (s *Store) Write(ctx context.Context, ev types.TranscriptEvent) error {
	const q = `
		INSERT INTO transcript_events
		    (session_id, segment_id, seq, segment_start_ns, segment_end_ns,
		     source_text, source_lang, recognition_confidence,
		     translated_text, target_lang, translation_confidence,
		     corrections, emitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (session_id, segment_id) DO NOTHING`

	corrections := ev.Corrections
	if corrections == nil {
		corrections = []string{}
	}
	emitted := ev.EmittedAt
	if emitted.IsZero() {
		emitted = time.Now()
	}
	_, err := s.pool.Exec(ctx, q,
		ev.SessionID,
		int64(ev.SegmentID),
		int64(ev.Seq),
		ev.SegmentStart.Nanoseconds(),
		ev.SegmentEnd.Nanoseconds(),
		ev.SourceText,
		ev.SourceLang,
		ev.RecognitionConfidence,
		ev.TranslatedText,
		ev.TargetLang,
		ev.TranslationConfidence,
		corrections,
		emitted,
	)
	if err != nil {
		return fmt.Errorf("postgres store: write event: %w", err)
	}
	return nil
}

// SearchOpts narrows [Store.Search].
type SearchOpts struct {
	SessionID string
	After     time.Time
	Limit     int
}

// Transcript returns every stored FINAL of sessionID in segment order.
func (s *Store) Transcript(ctx context.Context, sessionID string) ([]types.TranscriptEvent, error) {
	q := `SELECT ` + columns + `
		FROM   transcript_events
		WHERE  session_id = $1
		ORDER  BY segment_id`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: transcript: %w", err)
	}
	return collectEvents(rows)
}

// Search runs a full-text query over source and translated text.
func (s *Store) Search(ctx context.Context, query string, opts SearchOpts) ([]types.TranscriptEvent, error) {
	args := []any{query} // $1 = FTS query string
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{
		"to_tsvector('simple', source_text || ' ' || translated_text) @@ plainto_tsquery('simple', $1)",
	}
	if opts.SessionID != "" {
		conditions = append(conditions, "session_id = "+next(opts.SessionID))
	}
	if !opts.After.IsZero() {
		conditions = append(conditions, "emitted_at > "+next(opts.After))
	}

	q := `SELECT ` + columns + `
		FROM   transcript_events
		WHERE  ` + strings.Join(conditions, " AND ") + `
		ORDER  BY emitted_at`
	if opts.Limit > 0 {
		q += " LIMIT " + next(opts.Limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: search: %w", err)
	}
	return collectEvents(rows)
}

const columns = `session_id, segment_id, seq, segment_start_ns, segment_end_ns,
		       source_text, source_lang, recognition_confidence,
		       translated_text, target_lang, translation_confidence,
		       corrections, emitted_at`

func collectEvents(rows pgx.Rows) ([]types.TranscriptEvent, error) {
	defer rows.Close()
	var out []types.TranscriptEvent
	for rows.Next() {
		var (
			ev             types.TranscriptEvent
			segment, seq   int64
			startNs, endNs int64
		)
		if err := rows.Scan(
			&ev.SessionID, &segment, &seq, &startNs, &endNs,
			&ev.SourceText, &ev.SourceLang, &ev.RecognitionConfidence,
			&ev.TranslatedText, &ev.TargetLang, &ev.TranslationConfidence,
			&ev.Corrections, &ev.EmittedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres store: scan event: %w", err)
		}
		ev.Kind = types.KindFinal
		ev.SegmentID = uint64(segment)
		ev.Seq = uint64(seq)
		ev.SegmentStart = time.Duration(startNs)
		ev.SegmentEnd = time.Duration(endNs)
		if len(ev.Corrections) == 0 {
			ev.Corrections = nil
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: rows: %w", err)
	}
	return out, nil
}
