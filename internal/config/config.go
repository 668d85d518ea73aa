package config

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// Config is the full pagepulse configuration, merged from an optional config
// file and command-line flags.
type Config struct {
	TimelineFile       string        `mapstructure:"timeline"`
	HARFile            string        `mapstructure:"har"`
	HARIncludeDocument bool          `mapstructure:"har_include_document"`
	Listen             string        `mapstructure:"listen"`
	Unsupported        []string      `mapstructure:"unsupported"`
	Speed              float64       `mapstructure:"speed"`
	JSONOutput         bool          `mapstructure:"json_output"`
	Dashboard          bool          `mapstructure:"dashboard"`
	HTMLOutput         string        `mapstructure:"html_output"`
	Export             string        `mapstructure:"export"`
	Thresholds         []string      `mapstructure:"thresholds"`
	LogLevel           string        `mapstructure:"log_level"`
	LogFormat          string        `mapstructure:"log_format"`
	ConfigFile         string        `mapstructure:"-"`
	Ingest             IngestConfig  `mapstructure:"ingest"`
	Tracing            TracingConfig `mapstructure:"tracing"`
}

// Mode is what a Config asks pagepulse to do.
type Mode string

const (
	ModeReplay Mode = "replay"
	ModeServe  Mode = "serve"
)

// Mode reports serve when a listen address is set, replay otherwise.
func (c Config) Mode() Mode {
	if strings.TrimSpace(c.Listen) != "" {
		return ModeServe
	}
	return ModeReplay
}

// IngestConfig tunes the live websocket ingest server.
type IngestConfig struct {
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"` // Reject larger messages
	Rate            float64       `mapstructure:"rate"`              // Messages per second per connection (0=unlimited)
	Burst           int           `mapstructure:"burst"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"` // Empty allows same-origin only
	PingInterval    time.Duration `mapstructure:"ping_interval"`
}

// Defaults for the ingest server.
const (
	DefaultMaxMessageBytes = 1 << 20
	DefaultIngestRate      = 50
	DefaultIngestBurst     = 100
	DefaultPingInterval    = 30 * time.Second
)

// TracingConfig configures OTLP export of pagepulse's own spans.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" (default) or "http"
	Insecure    bool    `mapstructure:"insecure"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	hasInput := strings.TrimSpace(c.TimelineFile) != "" || strings.TrimSpace(c.HARFile) != ""
	serving := strings.TrimSpace(c.Listen) != ""

	switch {
	case !hasInput && !serving:
		issues = append(issues, "timeline, har or listen is required (use --help for usage information)")
	case hasInput && serving:
		issues = append(issues, "listen cannot be combined with timeline or har replay")
	}

	if serving {
		if _, _, err := net.SplitHostPort(c.Listen); err != nil {
			issues = append(issues, fmt.Sprintf("listen: invalid address %q", c.Listen))
		}
		if c.HTMLOutput != "" {
			issues = append(issues, "html-output is only available when replaying")
		}
		if c.Dashboard {
			issues = append(issues, "dashboard is only available when replaying")
		}
		if len(c.Thresholds) > 0 {
			issues = append(issues, "thresholds are only evaluated when replaying")
		}
	}

	if c.Speed < 0 {
		issues = append(issues, "speed must be >= 0")
	}
	if c.Dashboard && c.JSONOutput {
		issues = append(issues, "dashboard and json-output are mutually exclusive")
	}

	for idx, entryType := range c.Unsupported {
		if strings.TrimSpace(entryType) == "" {
			issues = append(issues, fmt.Sprintf("unsupported[%d]: entry type cannot be empty", idx))
		}
	}

	switch strings.ToLower(c.LogFormat) {
	case "", "json", "console":
	default:
		issues = append(issues, fmt.Sprintf("log_format: must be 'json' or 'console', got %q", c.LogFormat))
	}

	issues = append(issues, validateIngestConfig(c.Ingest)...)
	issues = append(issues, validateTracingConfig(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}

	return nil
}

func validateIngestConfig(ing IngestConfig) []string {
	var issues []string
	if ing.MaxMessageBytes < 0 {
		issues = append(issues, "ingest: max_message_bytes must be >= 0")
	}
	if ing.Rate < 0 {
		issues = append(issues, "ingest: rate must be >= 0")
	}
	if ing.Burst < 0 {
		issues = append(issues, "ingest: burst must be >= 0")
	}
	if ing.PingInterval < 0 {
		issues = append(issues, "ingest: ping_interval must be >= 0")
	}
	return issues
}

func validateTracingConfig(tr TracingConfig) []string {
	var issues []string
	switch strings.ToLower(tr.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", tr.Protocol))
	}
	if tr.SampleRate < 0 || tr.SampleRate > 1 {
		issues = append(issues, "tracing: sample_rate must be between 0.0 and 1.0")
	}
	return issues
}
