package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
log_level: debug
team_id: "1007"
drones: [1, 2]

transport:
  kind: tcp
  endpoint: 192.168.4.1:9003
  read_timeout: 1500ms

ingest:
  decode_error_threshold: 10
  shutdown_timeout: 3s

storage:
  path: field_trial.db
  queue_depth: 128
  overflow_policy: block

zones:
  - name: field-a
    center_lat: 12.9716
    center_lon: 77.5946
    radius_km: 1.5
`

func TestParse_Valid(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.LogLevel != "debug" || cfg.TeamID != "1007" {
		t.Errorf("Unexpected header fields: level=%s team=%s", cfg.LogLevel, cfg.TeamID)
	}
	if cfg.Transport.Endpoint != "192.168.4.1:9003" {
		t.Errorf("Expected endpoint 192.168.4.1:9003, got %s", cfg.Transport.Endpoint)
	}
	if time.Duration(cfg.Transport.ReadTimeout) != 1500*time.Millisecond {
		t.Errorf("Expected read timeout 1.5s, got %v", time.Duration(cfg.Transport.ReadTimeout))
	}
	if cfg.Ingest.DecodeErrorThreshold != 10 {
		t.Errorf("Expected decode error threshold 10, got %d", cfg.Ingest.DecodeErrorThreshold)
	}
	if time.Duration(cfg.Ingest.ShutdownTimeout) != 3*time.Second {
		t.Errorf("Expected shutdown timeout 3s, got %v", time.Duration(cfg.Ingest.ShutdownTimeout))
	}
	if cfg.Storage.OverflowPolicy != OverflowBlock {
		t.Errorf("Expected overflow policy block, got %s", cfg.Storage.OverflowPolicy)
	}
	if len(cfg.Zones) != 1 || cfg.Zones[0].RadiusKM != 1.5 {
		t.Errorf("Unexpected zones: %+v", cfg.Zones)
	}

	// Fields absent from the file keep their defaults.
	if cfg.Storage.BatchSize != 32 {
		t.Errorf("Expected default batch size 32, got %d", cfg.Storage.BatchSize)
	}
	if cfg.Storage.MaxRetries != 3 {
		t.Errorf("Expected default max retries 3, got %d", cfg.Storage.MaxRetries)
	}
}

func TestParse_SchemaViolations(t *testing.T) {
	testCases := []struct {
		name string
		yaml string
	}{
		{"unknown log level", "log_level: chatty"},
		{"unknown overflow policy", "storage:\n  overflow_policy: sideways"},
		{"negative queue depth", "storage:\n  queue_depth: -4"},
		{"latitude out of range", "zones:\n  - name: z\n    center_lat: 95\n    center_lon: 0\n    radius_km: 1"},
		{"zero radius", "zones:\n  - name: z\n    center_lat: 0\n    center_lon: 0\n    radius_km: 0"},
		{"bad duration", "ingest:\n  shutdown_timeout: fast"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.yaml)); err == nil {
				t.Error("Expected a schema validation error")
			}
		})
	}
}

func TestParse_CrossFieldRequirements(t *testing.T) {
	testCases := []struct {
		name string
		yaml string
		want string
	}{
		{"serial without port", "transport:\n  kind: serial", "serial.port"},
		{"replay without path", "transport:\n  kind: replay", "replay.path"},
		{"no drones", "drones: []", "drone"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil {
				t.Fatal("Expected a validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Expected error mentioning %q, got: %v", tc.want, err)
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gcs.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.Path != "field_trial.db" {
		t.Errorf("Expected storage path field_trial.db, got %s", cfg.Storage.Path)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}

func TestConfig_Level(t *testing.T) {
	testCases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}

	for _, tc := range testCases {
		cfg := Config{LogLevel: tc.in}
		if got := cfg.Level(); got != tc.want {
			t.Errorf("Level(%q): expected %v, got %v", tc.in, tc.want, got)
		}
	}
}
