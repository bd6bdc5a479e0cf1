package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tensord/internal/config"
)

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	cfg        config.Config
	log        zerolog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "tensord",
		Short:         "Multi-framework inference server with dynamic batching",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", config.Env("CONFIG", ""), "Config file (.yaml, .json, .toml); defaults TENSORD_CONFIG")
	pf.String("model-repository", "", "Model repository directory (defaults TENSORD_MODEL_REPOSITORY or ~/models/tensord)")
	pf.String("log-level", "", "Log level: debug|info|warn|error (defaults TENSORD_LOG_LEVEL or info)")
	pf.String("log-format", "", "Log format: json|console")
	pf.StringToString("device-cap", nil, "Static GPU compute capabilities, e.g. 0=8.6,1=7.5")
	pf.Bool("probe-devices", false, "Ask nvidia-smi for GPU compute capabilities")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(cmd, opts.configPath)
		if err != nil {
			return err
		}
		opts.cfg = cfg
		opts.log = newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
		return nil
	}

	root.AddCommand(newServeCmd(opts), newPlanCmd(opts))
	return root
}

// resolveConfig layers the config file, then explicitly set flags, then
// TENSORD_* environment defaults.
func resolveConfig(cmd *cobra.Command, path string) (config.Config, error) {
	var cfg config.Config
	if path != "" {
		c, err := config.Load(path)
		if err != nil {
			return cfg, fmt.Errorf("load config %s: %w", path, err)
		}
		cfg = c
	}
	flags := cmd.Flags()
	if flags.Changed("model-repository") {
		cfg.ModelRepository, _ = flags.GetString("model-repository")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.LogFormat, _ = flags.GetString("log-format")
	}
	if flags.Changed("device-cap") {
		caps, _ := flags.GetStringToString("device-cap")
		cfg.DeviceCapabilities = caps
	}
	if flags.Changed("probe-devices") {
		cfg.ProbeDevices, _ = flags.GetBool("probe-devices")
	}
	if err := applyServeFlags(cmd, &cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *config.Config) {
	if cfg.Addr == "" {
		cfg.Addr = config.Env("ADDR", ":8080")
	}
	if cfg.ModelRepository == "" {
		cfg.ModelRepository = config.Env("MODEL_REPOSITORY", "~/models/tensord")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = config.Env("LOG_LEVEL", "info")
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = config.Env("LOG_FORMAT", "json")
	}
	if cfg.MaxQueueDepth == 0 {
		cfg.MaxQueueDepth = config.EnvInt("MAX_QUEUE_DEPTH", 0)
	}
	if cfg.BatchWindowMs == 0 {
		cfg.BatchWindowMs = config.EnvInt("BATCH_WINDOW_MS", 0)
	}
	if cfg.MaxWaitMs == 0 {
		cfg.MaxWaitMs = config.EnvInt("MAX_WAIT_MS", 0)
	}
}

// newLogger builds the process logger. Unknown levels fall back to info.
func newLogger(w io.Writer, level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// splitCSV splits a comma separated list, dropping empty items.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
