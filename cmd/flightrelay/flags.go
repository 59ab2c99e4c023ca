package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/c360/flightrelay/config"
)

// CLIConfig holds command-line configuration. Flags that were not given
// leave the loaded configuration untouched.
type CLIConfig struct {
	ConfigPath  string
	EnvFile     string
	LogLevel    string
	LogFormat   string
	Debug       bool
	FeedHost    string
	FeedPort    int
	Broker      string
	MetricsPort int
	ShowVersion bool
	ShowHelp    bool
	Validate    bool

	set map[string]bool
}

func parseFlags(args []string, output io.Writer) (*CLIConfig, error) {
	cfg := &CLIConfig{set: make(map[string]bool)}

	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&cfg.ConfigPath, "config", os.Getenv("FLIGHTRELAY_CONFIG"),
		"Path to an optional YAML configuration file (env: FLIGHTRELAY_CONFIG)")
	fs.StringVar(&cfg.ConfigPath, "c", os.Getenv("FLIGHTRELAY_CONFIG"),
		"Path to an optional YAML configuration file (env: FLIGHTRELAY_CONFIG)")
	fs.StringVar(&cfg.EnvFile, "env-file", config.DefaultEnvFile,
		"dotenv file to read, empty to skip")
	fs.StringVar(&cfg.LogLevel, "log-level", "", "Log level: debug, info, warn, error (env: LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format", "", "Log format: json, text (env: LOG_FORMAT)")
	fs.BoolVar(&cfg.Debug, "debug", false, "Shorthand for -log-level=debug")
	fs.StringVar(&cfg.FeedHost, "sbs1-host", "", "SBS-1 feed host (env: SBS1_HOST)")
	fs.IntVar(&cfg.FeedPort, "sbs1-port", 0, "SBS-1 feed port (env: SBS1_PORT)")
	fs.StringVar(&cfg.Broker, "broker", "", "Broker kind: mqtt, nats (env: BROKER)")
	fs.IntVar(&cfg.MetricsPort, "metrics-port", 0, "Metrics and health port, 0 to disable (env: METRICS_PORT)")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() { printDetailedHelp(output, fs) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { cfg.set[f.Name] = true })

	if cfg.ShowHelp {
		fs.Usage()
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
		cfg.set["log-level"] = true
	}
	return cfg, nil
}

// apply overrides cfg with every flag given on the command line.
func (c *CLIConfig) apply(cfg *config.Config) {
	if c.set["log-level"] {
		cfg.Log.Level = c.LogLevel
	}
	if c.set["log-format"] {
		cfg.Log.Format = c.LogFormat
	}
	if c.set["sbs1-host"] {
		cfg.Feed.Host = c.FeedHost
	}
	if c.set["sbs1-port"] {
		cfg.Feed.Port = c.FeedPort
	}
	if c.set["broker"] {
		cfg.Broker.Kind = c.Broker
	}
	if c.set["metrics-port"] {
		cfg.Metrics.Port = c.MetricsPort
	}
}

func printDetailedHelp(w io.Writer, fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(w, `%s - SBS-1 to MQTT/NATS flight position relay

Usage: %s [options]

Options:
`, appName, appName)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(w, `
Examples:
  # Relay a local dump1090 feed to the default MQTT broker
  export MQTT_USERNAME=user MQTT_PASSWORD=secret
  %s

  # Publish to NATS JetStream instead
  %s --broker=nats --log-format=text

  # Validate configuration only
  %s --config=relay.yaml --validate

Version: %s
Build: %s
`, appName, appName, appName, Version, BuildTime)
}
