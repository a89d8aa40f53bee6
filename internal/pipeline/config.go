package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/voxbridge/internal/vad"
	"github.com/MrWong99/voxbridge/pkg/audio"
)

// Config holds the orchestrator parameters.
type Config struct {
	// SessionID is stamped on every event and status snapshot.
	SessionID string

	// Format is the segmentation and recognition format. Capture frames are
	// converted into it.
	Format audio.Format

	SourceLang string
	TargetLang string

	VAD vad.Config

	// Workers is the number of concurrent recognition calls.
	Workers int

	// CaptureQueue is the capture->VAD buffer in frames.
	CaptureQueue int

	// RecognitionQueue is the VAD->recognition depth. When full the oldest
	// unstarted task is dropped.
	RecognitionQueue int

	// TranslationQueue is the reorder->translation buffer. When full the
	// collector blocks.
	TranslationQueue int

	RecognitionTimeout time.Duration
	TranslationTimeout time.Duration

	// Watchdog is the capture stall interval reported as an underrun.
	Watchdog time.Duration

	// StatusInterval is how often a status snapshot is sent to the sink.
	// Zero disables periodic status.
	StatusInterval time.Duration

	Draft    DraftConfig
	Shutdown ShutdownConfig
}

// DraftConfig controls interim results for open segments.
type DraftConfig struct {
	Enabled bool
	Cadence time.Duration
}

// ShutdownConfig bounds Stop.
type ShutdownConfig struct {
	// Timeout is the hard upper bound for Stop.
	Timeout time.Duration

	// Grace is how long queued and in-flight work may drain before it is
	// dropped and cancelled.
	Grace time.Duration

	// ForceFinalize closes the open segment on Stop so it still gets a
	// FINAL.
	ForceFinalize bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Format:             audio.Format{SampleRate: 16000, Channels: 1},
		SourceLang:         "en",
		VAD:                vad.DefaultConfig(),
		Workers:            3,
		CaptureQueue:       50,
		RecognitionQueue:   10,
		TranslationQueue:   4,
		RecognitionTimeout: 10 * time.Second,
		TranslationTimeout: 5 * time.Second,
		Watchdog:           2 * time.Second,
		StatusInterval:     time.Second,
		Draft:              DraftConfig{Enabled: true, Cadence: 2 * time.Second},
		Shutdown: ShutdownConfig{
			Timeout: 5 * time.Second,
			Grace:   2500 * time.Millisecond,
		},
	}
}

// Validate reports every invalid field. Adaptation bound errors wrap
// [vad.ErrAdaptationOutOfBounds].
func (c Config) Validate() error {
	var errs []error
	if c.Format.SampleRate <= 0 || c.Format.Channels != 1 {
		errs = append(errs, fmt.Errorf("pipeline: format must be mono with a positive sample rate, got %s", c.Format))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("pipeline: workers must be at least 1, got %d", c.Workers))
	}
	for name, v := range map[string]int{
		"capture_queue":     c.CaptureQueue,
		"recognition_queue": c.RecognitionQueue,
		"translation_queue": c.TranslationQueue,
	} {
		if v < 1 {
			errs = append(errs, fmt.Errorf("pipeline: %s must be at least 1, got %d", name, v))
		}
	}
	for name, v := range map[string]time.Duration{
		"recognition_timeout": c.RecognitionTimeout,
		"translation_timeout": c.TranslationTimeout,
		"watchdog":            c.Watchdog,
		"shutdown.timeout":    c.Shutdown.Timeout,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("pipeline: %s must be positive, got %s", name, v))
		}
	}
	if c.StatusInterval < 0 {
		errs = append(errs, fmt.Errorf("pipeline: status_interval must not be negative"))
	}
	if c.Shutdown.Grace < 0 || c.Shutdown.Grace > c.Shutdown.Timeout {
		errs = append(errs, fmt.Errorf("pipeline: shutdown grace %s must be within [0, %s]", c.Shutdown.Grace, c.Shutdown.Timeout))
	}
	if c.Draft.Enabled && c.Draft.Cadence <= 0 {
		errs = append(errs, fmt.Errorf("pipeline: draft cadence must be positive, got %s", c.Draft.Cadence))
	}
	if err := c.VAD.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
