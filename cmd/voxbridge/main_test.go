package main

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/voxbridge/internal/config"
)

func TestRegisterBuiltinProviders_CoversKnownNames(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	names := reg.Names()

	for kind, known := range config.ValidProviderNames {
		for _, name := range known {
			if !slices.Contains(names[kind], name) {
				t.Errorf("%s provider %q is not registered", kind, name)
			}
		}
	}
	for _, kind := range []config.SinkKind{config.SinkLog, config.SinkJSONL, config.SinkWebSocket, config.SinkRedis, config.SinkPostgres} {
		if !slices.Contains(names["sink"], string(kind)) {
			t.Errorf("sink %q is not registered", kind)
		}
	}
}

func TestRegisterBuiltinProviders_Create(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	if _, err := reg.CreateVAD(config.ProviderEntry{
		Name:    "energy",
		Options: map[string]any{"midpoint_db": 12, "slope_db": 3.5},
	}); err != nil {
		t.Errorf("CreateVAD: %v", err)
	}
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "deepgram"}); err == nil {
		t.Error("deepgram without api_key: expected error")
	}
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "openai", APIKey: "sk-test"}); err == nil {
		t.Error("openai without model: expected error")
	}

	s, err := reg.CreateSink(context.Background(), config.SinkConfig{Kind: config.SinkWebSocket, Buffer: 4}, "s1")
	if err != nil {
		t.Fatalf("CreateSink(websocket): %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestOptHelpers(t *testing.T) {
	t.Parallel()

	opts := map[string]any{
		"language": "de",
		"count":    3,
		"ratio":    0.5,
		"timeout":  "30s",
		"bad":      "soon",
	}

	if got := optString(opts, "language"); got != "de" {
		t.Errorf("optString(language) = %q", got)
	}
	if got := optString(opts, "count"); got != "" {
		t.Errorf("optString(count) = %q, want empty", got)
	}
	if got := optString(nil, "language"); got != "" {
		t.Errorf("optString(nil) = %q, want empty", got)
	}

	tests := []struct {
		key    string
		want   float64
		wantOK bool
	}{
		{"count", 3, true},
		{"ratio", 0.5, true},
		{"language", 0, false},
		{"missing", 0, false},
	}
	for _, tt := range tests {
		got, ok := optFloat(opts, tt.key)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("optFloat(%s) = %v, %v; want %v, %v", tt.key, got, ok, tt.want, tt.wantOK)
		}
	}

	if got := optDuration(opts, "timeout"); got != 30*time.Second {
		t.Errorf("optDuration(timeout) = %v", got)
	}
	if got := optDuration(opts, "bad"); got != 0 {
		t.Errorf("optDuration(bad) = %v, want 0", got)
	}
}

func TestLanguages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		source, target, want string
	}{
		{"en", "de", "en → de"},
		{"", "fr", "auto → fr"},
		{"en", "", "en (no translation)"},
	}
	for _, tt := range tests {
		if got := languages(tt.source, tt.target); got != tt.want {
			t.Errorf("languages(%q, %q) = %q, want %q", tt.source, tt.target, got, tt.want)
		}
	}
}
