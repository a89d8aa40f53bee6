package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxbridge/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
providers:
  stt:
    name: whisper
    base_url: http://localhost:8081
draft:
  cadence: 2s
`

const watcherUpdatedYAML = `
server:
  log_level: debug
providers:
  stt:
    name: whisper
    base_url: http://localhost:8081
vad:
  force_environment: noisy
draft:
  cadence: 1s
`

const watcherRestartOnlyYAML = `
server:
  log_level: info
providers:
  stt:
    name: deepgram
draft:
  cadence: 2s
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

// writeFile writes content and moves the mtime forward so coarse
// filesystem timestamps still register a change.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
	bump(t, path)
}

var (
	bumpMu sync.Mutex
	bumpAt = time.Now()
)

func bump(t *testing.T, path string) {
	t.Helper()
	bumpMu.Lock()
	bumpAt = bumpAt.Add(2 * time.Second)
	at := bumpAt
	bumpMu.Unlock()
	if err := os.Chtimes(path, at, at); err != nil {
		t.Fatalf("failed to touch file: %v", err)
	}
}

type changeRecorder struct {
	mu    sync.Mutex
	calls []config.ConfigDiff
	ch    chan struct{}
}

func newChangeRecorder() *changeRecorder {
	return &changeRecorder{ch: make(chan struct{}, 8)}
}

func (r *changeRecorder) onChange(_, _ *config.Config, diff config.ConfigDiff) {
	r.mu.Lock()
	r.calls = append(r.calls, diff)
	r.mu.Unlock()
	r.ch <- struct{}{}
}

func (r *changeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func startWatcher(t *testing.T, content string, rec *changeRecorder) (*config.Watcher, string) {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, content)

	var fn config.ChangeFunc
	if rec != nil {
		fn = rec.onChange
	}
	w, err := config.NewWatcher(cfgPath, fn, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return w, cfgPath
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	w, _ := startWatcher(t, watcherValidYAML, nil)

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() returned nil after initial load")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	rec := newChangeRecorder()
	w, cfgPath := startWatcher(t, watcherValidYAML, rec)

	writeFile(t, cfgPath, watcherUpdatedYAML)
	select {
	case <-rec.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("callback was not invoked within timeout")
	}

	rec.mu.Lock()
	d := rec.calls[0]
	rec.mu.Unlock()
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level diff: %+v", d)
	}
	if !d.EnvironmentChanged || d.NewEnvironment != config.EnvNoisy {
		t.Errorf("environment diff: %+v", d)
	}
	if !d.DraftChanged || d.NewDraftCadence != time.Second || !d.NewDraftEnabled {
		t.Errorf("draft diff: %+v", d)
	}
	if w.Current().Server.LogLevel != config.LogDebug {
		t.Errorf("Current() log_level: got %q, want debug", w.Current().Server.LogLevel)
	}
}

func TestWatcher_RestartOnlyChangeSkipsCallback(t *testing.T) {
	t.Parallel()
	rec := newChangeRecorder()
	w, cfgPath := startWatcher(t, watcherValidYAML, rec)

	writeFile(t, cfgPath, watcherRestartOnlyYAML)
	deadline := time.Now().Add(2 * time.Second)
	for w.Current().Providers.STT.Name != "deepgram" {
		if time.Now().After(deadline) {
			t.Fatal("watcher did not pick up the new file")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if n := rec.count(); n != 0 {
		t.Errorf("callback calls = %d, want 0", n)
	}
}

func TestWatcher_InvalidFileKeepsOldConfig(t *testing.T) {
	t.Parallel()
	rec := newChangeRecorder()
	w, cfgPath := startWatcher(t, watcherValidYAML, rec)

	writeFile(t, cfgPath, watcherInvalidYAML)
	time.Sleep(200 * time.Millisecond)

	if n := rec.count(); n != 0 {
		t.Errorf("callback should not be called for invalid config, got %d calls", n)
	}
	if cur := w.Current(); cur.Server.LogLevel != config.LogInfo {
		t.Errorf("Current() should still have old config, got log_level=%q", cur.Server.LogLevel)
	}
}

func TestWatcher_TouchWithoutContentChange(t *testing.T) {
	t.Parallel()
	rec := newChangeRecorder()
	_, cfgPath := startWatcher(t, watcherValidYAML, rec)

	bump(t, cfgPath)
	time.Sleep(200 * time.Millisecond)

	if n := rec.count(); n != 0 {
		t.Errorf("callback should not fire for touch-only, got %d calls", n)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher("/nonexistent/path.yaml", nil); err == nil {
		t.Fatal("expected error for non-existent file, got nil")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	w, _ := startWatcher(t, watcherValidYAML, nil)
	w.Stop()
	w.Stop()
}
