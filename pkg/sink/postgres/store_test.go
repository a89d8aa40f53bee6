package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/voxbridge/pkg/sink/postgres"
	"github.com/MrWong99/voxbridge/pkg/types"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if VOXBRIDGE_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("VOXBRIDGE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VOXBRIDGE_TEST_POSTGRES_DSN not set; skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] on a clean schema.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS transcript_events CASCADE"); err != nil {
		t.Fatalf("drop schema: %v", err)
	}

	store, err := postgres.New(ctx, dsn)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func final(session string, seg uint64, src, dst string) types.TranscriptEvent {
	return types.TranscriptEvent{
		Kind:           types.KindFinal,
		SessionID:      session,
		SegmentID:      seg,
		Seq:            seg * 2,
		SegmentStart:   time.Duration(seg) * time.Second,
		SegmentEnd:     time.Duration(seg)*time.Second + 800*time.Millisecond,
		SourceText:     src,
		SourceLang:     "en",
		TranslatedText: dst,
		TargetLang:     "de",
		EmittedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestStore_WriteAndTranscript(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ev2 := final("s1", 2, "deploy the cluster", "den Cluster bereitstellen")
	ev1 := final("s1", 1, "good morning", "guten Morgen")
	ev1.Corrections = []string{"kubernetis→Kubernetes"}
	other := final("s2", 1, "unrelated", "")

	for _, ev := range []types.TranscriptEvent{ev2, ev1, other} {
		if err := s.Write(ctx, ev); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	// Duplicate FINAL for the same segment is ignored.
	dup := ev1
	dup.SourceText = "overwritten"
	if err := s.Write(ctx, dup); err != nil {
		t.Fatalf("Write duplicate: %v", err)
	}

	got, err := s.Transcript(ctx, "s1")
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Transcript: got %d events, want 2", len(got))
	}
	if got[0].SegmentID != 1 || got[1].SegmentID != 2 {
		t.Errorf("order: got segments %d,%d, want 1,2", got[0].SegmentID, got[1].SegmentID)
	}
	if got[0].SourceText != "good morning" {
		t.Errorf("SourceText: got %q, want %q", got[0].SourceText, "good morning")
	}
	if got[0].SegmentEnd != ev1.SegmentEnd {
		t.Errorf("SegmentEnd: got %v, want %v", got[0].SegmentEnd, ev1.SegmentEnd)
	}
	if len(got[0].Corrections) != 1 {
		t.Errorf("Corrections: got %v", got[0].Corrections)
	}
	if got[1].Corrections != nil {
		t.Errorf("Corrections: got %v, want nil", got[1].Corrections)
	}
	if got[0].Kind != types.KindFinal {
		t.Errorf("Kind: got %q", got[0].Kind)
	}
}

func TestStore_Search(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, ev := range []types.TranscriptEvent{
		final("s1", 1, "restart the database", "die Datenbank neu starten"),
		final("s1", 2, "check the logs", "die Logs prüfen"),
		final("s2", 1, "database is down", "Datenbank ist ausgefallen"),
	} {
		if err := s.Write(ctx, ev); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	tests := []struct {
		name  string
		query string
		opts  postgres.SearchOpts
		want  int
	}{
		{name: "source text", query: "database", want: 2},
		{name: "translated text", query: "Datenbank", want: 2},
		{name: "session filter", query: "database", opts: postgres.SearchOpts{SessionID: "s2"}, want: 1},
		{name: "limit", query: "database", opts: postgres.SearchOpts{Limit: 1}, want: 1},
		{name: "future cutoff", query: "logs", opts: postgres.SearchOpts{After: time.Now().Add(time.Hour)}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Search(ctx, tt.query, tt.opts)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d results, want %d", len(got), tt.want)
			}
		})
	}
}

func TestStore_EmitQueuesFinalsOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	draft := final("s3", 1, "partial", "")
	draft.Kind = types.KindDraft
	s.Emit(draft)
	s.Emit(final("s3", 2, "complete sentence", ""))
	s.EmitStatus(types.Status{})

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := s.Transcript(ctx, "s3")
		if err != nil {
			t.Fatalf("Transcript: %v", err)
		}
		if len(got) == 1 {
			if got[0].SegmentID != 2 {
				t.Errorf("stored segment %d, want 2", got[0].SegmentID)
			}
			return
		}
		if len(got) > 1 || time.Now().After(deadline) {
			t.Fatalf("got %d stored events, want 1", len(got))
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestNew_BadDSN(t *testing.T) {
	t.Parallel()
	if _, err := postgres.New(context.Background(), "://not a dsn"); err == nil {
		t.Fatal("expected error for malformed DSN")
	}
}
