package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pagepulse",
		Short:         "Aggregate page-load performance metrics from recorded or live timelines",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Input flags
	flags.String("timeline", "", "Path to a recorded performance timeline (JSON or YAML)")
	flags.String("har", "", "Path to a HAR file whose entries become resource records")
	flags.Bool("har-include-document", false, "Count each page's navigation document from the HAR as a resource")
	flags.StringSlice("unsupported", nil, "Entry types the replayed host cannot observe (repeatable)")
	flags.Float64("speed", 0, "Replay pacing multiplier (1 = recorded timing, 0 = as fast as possible)")

	// Live ingest flags
	flags.String("listen", "", "Serve the websocket ingest endpoint on this address (e.g. :8080)")
	flags.Int64("ingest-max-message-bytes", DefaultMaxMessageBytes, "Largest accepted ingest message")
	flags.Float64("ingest-rate", DefaultIngestRate, "Ingest messages per second per connection (0 means unlimited)")
	flags.Int("ingest-burst", DefaultIngestBurst, "Ingest message burst per connection")
	flags.StringSlice("ingest-allowed-origin", nil, "Origin allowed to open ingest connections (repeatable)")
	flags.Duration("ingest-ping-interval", DefaultPingInterval, "Interval between websocket keepalive pings")

	// Output flags
	flags.Bool("json-output", false, "Emit JSON formatted output")
	flags.Bool("dashboard", false, "Show live terminal dashboard with metrics")
	flags.String("html-output", "", "Generate an HTML panel to the specified file path")
	flags.String("export", "", "Keep the latest snapshot in this JSON file")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Threshold flags
	flags.StringSlice("threshold", nil, "Performance budgets (repeatable, e.g., 'lcp < 2500')")

	// Logging flags
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-format", "console", "Log format: console or json")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP endpoint for pagepulse's own spans")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.String("tracing-service-name", "", "Service name reported with spans")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of traces to sample (0.0-1.0)")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\n%s\n\nFlags:\n", cmd.UseLine(), cmd.Short)
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if err := overrideString(fs, "timeline", &cfg.TimelineFile); err != nil {
		return err
	}
	if err := overrideString(fs, "har", &cfg.HARFile); err != nil {
		return err
	}
	if fs.Changed("har-include-document") {
		val, err := fs.GetBool("har-include-document")
		if err != nil {
			return err
		}
		cfg.HARIncludeDocument = val
	}
	if fs.Changed("unsupported") {
		vals, err := fs.GetStringSlice("unsupported")
		if err != nil {
			return err
		}
		cfg.Unsupported = trimAll(vals)
	}
	if fs.Changed("speed") {
		val, err := fs.GetFloat64("speed")
		if err != nil {
			return err
		}
		cfg.Speed = val
	}

	if err := overrideString(fs, "listen", &cfg.Listen); err != nil {
		return err
	}
	if fs.Changed("ingest-max-message-bytes") {
		val, err := fs.GetInt64("ingest-max-message-bytes")
		if err != nil {
			return err
		}
		cfg.Ingest.MaxMessageBytes = val
	}
	if fs.Changed("ingest-rate") {
		val, err := fs.GetFloat64("ingest-rate")
		if err != nil {
			return err
		}
		cfg.Ingest.Rate = val
	}
	if fs.Changed("ingest-burst") {
		val, err := fs.GetInt("ingest-burst")
		if err != nil {
			return err
		}
		cfg.Ingest.Burst = val
	}
	if fs.Changed("ingest-allowed-origin") {
		vals, err := fs.GetStringSlice("ingest-allowed-origin")
		if err != nil {
			return err
		}
		cfg.Ingest.AllowedOrigins = trimAll(vals)
	}
	if fs.Changed("ingest-ping-interval") {
		val, err := fs.GetDuration("ingest-ping-interval")
		if err != nil {
			return err
		}
		cfg.Ingest.PingInterval = val
	}

	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if fs.Changed("dashboard") {
		val, err := fs.GetBool("dashboard")
		if err != nil {
			return err
		}
		cfg.Dashboard = val
	}
	if err := overrideString(fs, "html-output", &cfg.HTMLOutput); err != nil {
		return err
	}
	if err := overrideString(fs, "export", &cfg.Export); err != nil {
		return err
	}

	if fs.Changed("threshold") {
		vals, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = vals
	}

	if err := overrideString(fs, "log-level", &cfg.LogLevel); err != nil {
		return err
	}
	if err := overrideString(fs, "log-format", &cfg.LogFormat); err != nil {
		return err
	}

	if err := overrideString(fs, "tracing-endpoint", &cfg.Tracing.Endpoint); err != nil {
		return err
	}
	if err := overrideString(fs, "tracing-protocol", &cfg.Tracing.Protocol); err != nil {
		return err
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if err := overrideString(fs, "tracing-service-name", &cfg.Tracing.ServiceName); err != nil {
		return err
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}

	return nil
}

func overrideString(fs *pflag.FlagSet, name string, dst *string) error {
	if !fs.Changed(name) {
		return nil
	}
	val, err := fs.GetString(name)
	if err != nil {
		return err
	}
	*dst = strings.TrimSpace(val)
	return nil
}

func trimAll(vals []string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
