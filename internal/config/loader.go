package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and configuration files to produce a Config.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	// If no arguments provided and no config file, show help/usage
	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	settings := cfgViper.AllSettings()

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, settings); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.TimelineFile = strings.TrimSpace(cfg.TimelineFile)
	cfg.HARFile = strings.TrimSpace(cfg.HARFile)
	cfg.Listen = strings.TrimSpace(cfg.Listen)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	return cfg, nil
}

// Defaults returns the configuration used before any file or flag applies.
func Defaults() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "console",
		Ingest: IngestConfig{
			MaxMessageBytes: DefaultMaxMessageBytes,
			Rate:            DefaultIngestRate,
			Burst:           DefaultIngestBurst,
			PingInterval:    DefaultPingInterval,
		},
		Tracing: TracingConfig{
			Protocol:   "grpc",
			SampleRate: 1.0,
		},
	}
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "timeline", "timeline_file", "timeline-file"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("timeline: %w", err)
		}
		cfg.TimelineFile = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "har", "har_file", "har-file"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("har: %w", err)
		}
		cfg.HARFile = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "harincludedocument", "har_include_document", "har-include-document"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("har_include_document: %w", err)
		}
		cfg.HARIncludeDocument = val
	}

	if raw, ok := lookupSetting(settings, "listen"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		cfg.Listen = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "unsupported"); ok {
		vals, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("unsupported: %w", err)
		}
		cfg.Unsupported = trimAll(vals)
	}

	if raw, ok := lookupSetting(settings, "speed"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("speed: %w", err)
		}
		cfg.Speed = val
	}

	if raw, ok := lookupSetting(settings, "jsonoutput", "json_output", "json-output"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("jsonOutput: %w", err)
		}
		cfg.JSONOutput = val
	}

	if raw, ok := lookupSetting(settings, "dashboard"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		cfg.Dashboard = val
	}

	if raw, ok := lookupSetting(settings, "htmloutput", "html_output", "html-output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("htmlOutput: %w", err)
		}
		cfg.HTMLOutput = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "export"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		cfg.Export = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		vals, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = vals
	}

	if raw, ok := lookupSetting(settings, "loglevel", "log_level", "log-level"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
		if val != "" {
			cfg.LogLevel = val
		}
	}

	if raw, ok := lookupSetting(settings, "logformat", "log_format", "log-format"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("log_format: %w", err)
		}
		if val != "" {
			cfg.LogFormat = val
		}
	}

	if raw, ok := lookupSetting(settings, "ingest"); ok {
		if err := parseIngestConfig(raw, &cfg.Ingest); err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := parseTracingConfig(raw, &cfg.Tracing); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	return nil
}

// parseIngestConfig overlays the settings in value onto ing, keeping
// defaults for keys the file omits.
func parseIngestConfig(value interface{}, ing *IngestConfig) error {
	if value == nil {
		return nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "maxmessagebytes", "max_message_bytes", "max-message-bytes"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("max_message_bytes: %w", err)
		}
		ing.MaxMessageBytes = int64(val)
	}
	if raw, ok := lookupSetting(settings, "rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		ing.Rate = val
	}
	if raw, ok := lookupSetting(settings, "burst"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("burst: %w", err)
		}
		ing.Burst = val
	}
	if raw, ok := lookupSetting(settings, "allowedorigins", "allowed_origins", "allowed-origins"); ok {
		vals, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("allowed_origins: %w", err)
		}
		ing.AllowedOrigins = trimAll(vals)
	}
	if raw, ok := lookupSetting(settings, "pinginterval", "ping_interval", "ping-interval"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("ping_interval: %w", err)
		}
		ing.PingInterval = dur
	}
	return nil
}

func parseTracingConfig(value interface{}, tr *TracingConfig) error {
	if value == nil {
		return nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		tr.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
		tr.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		tr.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "servicename", "service_name", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("service_name: %w", err)
		}
		tr.ServiceName = val
	}
	if raw, ok := lookupSetting(settings, "samplerate", "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		tr.SampleRate = val
	}
	return nil
}
