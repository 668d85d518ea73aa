package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/torosent/pagepulse/internal/config"
)

func TestLoadWithoutArgumentsRequestsHelp(t *testing.T) {
	loader := config.NewLoader()

	_, err := loader.Load([]string{})
	if !errors.Is(err, config.ErrHelpRequested) {
		t.Fatalf("Load() error = %v, want ErrHelpRequested", err)
	}
	_, err = loader.Load([]string{"--help"})
	if !errors.Is(err, config.ErrHelpRequested) {
		t.Fatalf("Load(--help) error = %v, want ErrHelpRequested", err)
	}
}

func TestParseFlagsDefaults(t *testing.T) {
	loader := config.NewLoader()

	cfg, err := loader.Load([]string{"--timeline", "page.json"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.TimelineFile != "page.json" {
		t.Errorf("TimelineFile = %q, want page.json", cfg.TimelineFile)
	}
	if cfg.Speed != 0 {
		t.Errorf("Speed = %v, want 0", cfg.Speed)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "console" {
		t.Errorf("log = %q/%q, want info/console", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.Ingest.MaxMessageBytes != config.DefaultMaxMessageBytes {
		t.Errorf("Ingest.MaxMessageBytes = %d, want %d", cfg.Ingest.MaxMessageBytes, config.DefaultMaxMessageBytes)
	}
	if cfg.Ingest.PingInterval != config.DefaultPingInterval {
		t.Errorf("Ingest.PingInterval = %s, want %s", cfg.Ingest.PingInterval, config.DefaultPingInterval)
	}
	if cfg.Tracing.SampleRate != 1.0 {
		t.Errorf("Tracing.SampleRate = %v, want 1.0", cfg.Tracing.SampleRate)
	}
	if cfg.JSONOutput {
		t.Errorf("JSONOutput = true, want false")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadConfigFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{
		"timeline": "home.json",
		"har": "home.har",
		"speed": 1.5,
		"unsupported": ["longtask"],
		"thresholds": ["fcp < 1800", "requests <= 40"],
		"jsonOutput": true,
		"tracing": {"endpoint": "collector:4317", "insecure": true}
	}`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load([]string{"--config", path, "--speed", "4"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.TimelineFile != "home.json" {
		t.Errorf("TimelineFile = %q, want home.json", cfg.TimelineFile)
	}
	if cfg.HARFile != "home.har" {
		t.Errorf("HARFile = %q, want home.har", cfg.HARFile)
	}
	if cfg.Speed != 4 {
		t.Errorf("Speed = %v, want flag value 4", cfg.Speed)
	}
	if len(cfg.Unsupported) != 1 || cfg.Unsupported[0] != "longtask" {
		t.Errorf("Unsupported = %v, want [longtask]", cfg.Unsupported)
	}
	if len(cfg.Thresholds) != 2 {
		t.Errorf("Thresholds = %v, want 2 entries", cfg.Thresholds)
	}
	if !cfg.JSONOutput {
		t.Errorf("JSONOutput = false, want true")
	}
	if cfg.Tracing.Endpoint != "collector:4317" || !cfg.Tracing.Insecure {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if cfg.Tracing.Protocol != "grpc" {
		t.Errorf("Tracing.Protocol = %q, want default grpc", cfg.Tracing.Protocol)
	}
	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", cfg.ConfigFile, path)
	}
}

func TestLoadConfigFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := strings.Join([]string{
		"listen: 127.0.0.1:8080",
		"export: /tmp/latest.json",
		"log_format: json",
		"ingest:",
		"  rate: 10",
		"  burst: 20",
		"  ping_interval: 5s",
		"  allowed_origins:",
		"    - https://shop.example.com",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Mode() != config.ModeServe {
		t.Errorf("Mode() = %q, want serve", cfg.Mode())
	}
	if cfg.Listen != "127.0.0.1:8080" {
		t.Errorf("Listen = %q, want 127.0.0.1:8080", cfg.Listen)
	}
	if cfg.Export != "/tmp/latest.json" {
		t.Errorf("Export = %q, want /tmp/latest.json", cfg.Export)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want json", cfg.LogFormat)
	}
	if cfg.Ingest.Rate != 10 || cfg.Ingest.Burst != 20 {
		t.Errorf("Ingest rate/burst = %v/%d, want 10/20", cfg.Ingest.Rate, cfg.Ingest.Burst)
	}
	if cfg.Ingest.PingInterval != 5*time.Second {
		t.Errorf("Ingest.PingInterval = %s, want 5s", cfg.Ingest.PingInterval)
	}
	if len(cfg.Ingest.AllowedOrigins) != 1 || cfg.Ingest.AllowedOrigins[0] != "https://shop.example.com" {
		t.Errorf("Ingest.AllowedOrigins = %v", cfg.Ingest.AllowedOrigins)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := config.NewLoader().Load([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")})
	if err == nil {
		t.Fatal("Load() error = nil, want error for missing file")
	}
}

func TestConfigValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		have config.Config
		want []string
	}{
		{
			name: "missing input",
			have: config.Config{},
			want: []string{"timeline, har or listen"},
		},
		{
			name: "replay and serve",
			have: config.Config{TimelineFile: "page.json", Listen: ":8080"},
			want: []string{"cannot be combined"},
		},
		{
			name: "serve only options",
			have: config.Config{
				Listen:     "localhost",
				HTMLOutput: "panel.html",
				Dashboard:  true,
				Thresholds: []string{"lcp < 2500"},
			},
			want: []string{"listen: invalid address", "html-output", "dashboard is only", "thresholds"},
		},
		{
			name: "negative values",
			have: config.Config{
				TimelineFile: "page.json",
				Speed:        -1,
				Ingest:       config.IngestConfig{MaxMessageBytes: -1, Rate: -1, Burst: -1},
				Tracing:      config.TracingConfig{SampleRate: 2},
			},
			want: []string{"speed", "max_message_bytes", "ingest: rate", "burst", "sample_rate"},
		},
		{
			name: "output conflict",
			have: config.Config{
				HARFile:    "page.har",
				Dashboard:  true,
				JSONOutput: true,
				LogFormat:  "xml",
			},
			want: []string{"dashboard", "log_format"},
		},
		{
			name: "bad tracing protocol",
			have: config.Config{
				TimelineFile: "page.json",
				Unsupported:  []string{""},
				Tracing:      config.TracingConfig{Protocol: "udp"},
			},
			want: []string{"unsupported[0]", "tracing: protocol"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.have.Validate()
			if err == nil {
				t.Fatalf("Validate() error = nil, want error")
			}
			var verr config.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error type = %T, want ValidationError", err)
			}
			for _, want := range tc.want {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("Validate() error %q missing %q", err.Error(), want)
				}
			}
		})
	}
}
