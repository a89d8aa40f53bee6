package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/voxbridge/internal/config"
	"github.com/MrWong99/voxbridge/internal/health"
	"github.com/MrWong99/voxbridge/internal/observe"
	"github.com/MrWong99/voxbridge/internal/pipeline"
	"github.com/MrWong99/voxbridge/pkg/sink/postgres"
	"github.com/MrWong99/voxbridge/pkg/types"
)

// TranscriptStore serves stored FINAL events. The postgres sink implements
// it; when one is configured /transcript is answered from it.
type TranscriptStore interface {
	Transcript(ctx context.Context, sessionID string) ([]types.TranscriptEvent, error)
	Search(ctx context.Context, query string, opts postgres.SearchOpts) ([]types.TranscriptEvent, error)
}

var _ TranscriptStore = (*postgres.Store)(nil)

const (
	controlTimeout     = 2 * time.Second
	defaultSearchLimit = 50
)

// routes builds the HTTP mux:
//
//	GET  /healthz              liveness
//	GET  /readyz               pipeline running, engines available
//	GET  /status               adaptation state and counters
//	POST /control/environment  {"environment": "noisy"}; "auto" or "" resets
//	POST /control/reset        reset noise adaptation
//	GET  /transcript           stored FINALs; ?q= searches
//	GET  /events               websocket event stream
//	GET  /metrics              Prometheus exposition
func (a *App) routes() *http.ServeMux {
	mux := http.NewServeMux()

	checkers := []health.Checker{health.Running("pipeline", a.pipe.Running)}
	if b, ok := a.providers.STT.(health.Breakers); ok {
		checkers = append(checkers, health.Engines("recognizer", b))
	}
	if b, ok := a.providers.Translator.(health.Breakers); ok {
		checkers = append(checkers, health.Engines("translator", b))
	}
	health.New(checkers...).Register(mux)

	mux.HandleFunc("GET /status", a.handleStatus)
	mux.HandleFunc("POST /control/environment", a.handleEnvironment)
	mux.HandleFunc("POST /control/reset", a.handleReset)

	for _, s := range a.out {
		if ts, ok := s.(TranscriptStore); ok {
			mux.HandleFunc("GET /transcript", a.transcriptHandler(ts))
			break
		}
	}
	for _, s := range a.out {
		if h, ok := s.(http.Handler); ok {
			mux.Handle("GET /events", h)
			break
		}
	}

	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.pipe.Status())
}

type environmentRequest struct {
	Environment config.EnvironmentName `json:"environment"`
}

func (a *App) handleEnvironment(w http.ResponseWriter, r *http.Request) {
	var req environmentRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<10)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	env := config.EnvironmentName(strings.ToLower(string(req.Environment)))

	ctx, cancel := context.WithTimeout(r.Context(), controlTimeout)
	defer cancel()

	var err error
	switch {
	case env == "" || env == "auto":
		err = a.pipe.ResetAdaptation(ctx)
	case env.IsValid():
		err = a.pipe.ForceEnvironment(ctx, env.Environment())
	default:
		writeError(w, http.StatusBadRequest, "unknown environment "+strconv.Quote(string(env))+"; valid values: quiet, moderate, noisy, very_noisy, auto")
		return
	}
	a.controlResult(w, r, "environment", err)
}

func (a *App) handleReset(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), controlTimeout)
	defer cancel()
	a.controlResult(w, r, "reset", a.pipe.ResetAdaptation(ctx))
}

func (a *App) controlResult(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case err == nil:
		observe.Logger(r.Context()).Info("control applied", "op", op)
		writeJSON(w, http.StatusOK, a.pipe.Status())
	case errors.Is(err, pipeline.ErrNotRunning):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

// transcriptHandler answers GET /transcript. Query parameters: session
// (defaults to the current session), q (full-text search), limit and after
// (RFC 3339) for searches.
func (a *App) transcriptHandler(ts TranscriptStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		sessionID := q.Get("session")
		if sessionID == "" {
			sessionID = a.cfg.Session.ID
		}

		var (
			events []types.TranscriptEvent
			err    error
		)
		if text := q.Get("q"); text != "" {
			opts := postgres.SearchOpts{SessionID: sessionID, Limit: defaultSearchLimit}
			if v := q.Get("limit"); v != "" {
				n, perr := strconv.Atoi(v)
				if perr != nil || n <= 0 {
					writeError(w, http.StatusBadRequest, "limit must be a positive integer")
					return
				}
				opts.Limit = n
			}
			if v := q.Get("after"); v != "" {
				t, perr := time.Parse(time.RFC3339, v)
				if perr != nil {
					writeError(w, http.StatusBadRequest, "after must be an RFC 3339 timestamp")
					return
				}
				opts.After = t
			}
			events, err = ts.Search(r.Context(), text, opts)
		} else {
			events, err = ts.Transcript(r.Context(), sessionID)
		}
		if err != nil {
			observe.Logger(r.Context()).Error("transcript query failed", "err", err)
			writeError(w, http.StatusInternalServerError, "transcript query failed")
			return
		}
		if events == nil {
			events = []types.TranscriptEvent{}
		}
		writeJSON(w, http.StatusOK, events)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
