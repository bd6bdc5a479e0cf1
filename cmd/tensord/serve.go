package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tensord/internal/backend"
	"tensord/internal/config"
	"tensord/internal/device"
	"tensord/internal/httpapi"
	"tensord/internal/manager"
	"tensord/internal/registry"
	"tensord/internal/runtimes"
	"tensord/pkg/types"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve the model repository over HTTP",
		Example: "  tensord serve --model-repository ./models --addr :8080",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts.cfg, opts.log)
		},
	}
	f := cmd.Flags()
	f.String("addr", "", "HTTP listen address (defaults TENSORD_ADDR or :8080)")
	f.String("models", "", "Comma separated models to load at startup (empty loads all)")
	f.Int("batch-window-ms", 0, "Time a scheduler waits to fill a batch")
	f.Int("max-queue-depth", 0, "Queued requests per model before 429")
	f.Int("max-wait-ms", 0, "Longest a request waits for execution before 429")
	f.Int64("max-body-bytes", 0, "Maximum request body size")
	f.Int("infer-timeout", 0, "Per-request inference timeout in seconds (0 disables)")
	f.String("onnx-lib", "", "Path to the onnxruntime shared library")
	f.Int("intra-op-threads", 0, "Intra-op threads per instance (0 lets the runtime decide)")
	f.String("cors-origins", "", "Enable CORS for these comma separated origins")
	return cmd
}

// applyServeFlags copies explicitly set serve flags into cfg. Commands
// without these flags leave cfg untouched.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	var err error
	set := func(name string, apply func() error) {
		if err == nil && f.Changed(name) {
			err = apply()
		}
	}
	set("addr", func() (e error) { cfg.Addr, e = f.GetString("addr"); return })
	set("models", func() error {
		s, e := f.GetString("models")
		cfg.Models = splitCSV(s)
		return e
	})
	set("batch-window-ms", func() (e error) { cfg.BatchWindowMs, e = f.GetInt("batch-window-ms"); return })
	set("max-queue-depth", func() (e error) { cfg.MaxQueueDepth, e = f.GetInt("max-queue-depth"); return })
	set("max-wait-ms", func() (e error) { cfg.MaxWaitMs, e = f.GetInt("max-wait-ms"); return })
	set("max-body-bytes", func() (e error) { cfg.MaxBodyBytes, e = f.GetInt64("max-body-bytes"); return })
	set("infer-timeout", func() (e error) { cfg.InferTimeoutSeconds, e = f.GetInt("infer-timeout"); return })
	set("onnx-lib", func() (e error) { cfg.ONNXLibraryPath, e = f.GetString("onnx-lib"); return })
	set("intra-op-threads", func() (e error) { cfg.IntraOpThreads, e = f.GetInt("intra-op-threads"); return })
	set("cors-origins", func() error {
		s, e := f.GetString("cors-origins")
		cfg.CORS.AllowedOrigins = splitCSV(s)
		cfg.CORS.Enabled = len(cfg.CORS.AllowedOrigins) > 0
		return e
	})
	return err
}

func serve(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	entries, err := registry.LoadRepository(cfg.ModelRepository)
	if err != nil {
		if len(entries) == 0 {
			return err
		}
		log.Warn().Err(err).Msg("some models could not be read")
	}
	caps, err := capabilities(ctx, cfg, log)
	if err != nil {
		return err
	}

	mgr := manager.NewWithConfig(manager.ManagerConfig{
		Models:       entries,
		Capabilities: caps,
		Runtimes: runtimes.Options{
			Logger:           log,
			ONNXLibraryPath:  cfg.ONNXLibraryPath,
			LlamaContextSize: cfg.LlamaContextSize,
			LlamaGPULayers:   cfg.LlamaGPULayers,
			Threads:          cfg.IntraOpThreads,
		},
		Context:       backend.ContextOptions{IntraOpThreads: cfg.IntraOpThreads},
		BatchWindow:   ms(cfg.BatchWindowMs),
		MaxQueueDepth: cfg.MaxQueueDepth,
		MaxWait:       ms(cfg.MaxWaitMs),
		Logger:        log,
		Registerer:    prometheus.DefaultRegisterer,
	})
	defer func() {
		if err := mgr.Close(); err != nil {
			log.Warn().Err(err).Msg("unload on shutdown")
		}
	}()

	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	httpapi.SetDefaultLogLevel(cfg.LogLevel)
	httpapi.SetBaseContext(ctx)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetInferTimeoutSeconds(int64(cfg.InferTimeoutSeconds))
	httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(mgr),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("model_repository", cfg.ModelRepository).Int("models", len(entries)).Msg("tensord listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	go preload(ctx, mgr, startupModels(cfg.Models, entries), log)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

// startupModels returns the models to load at startup; none named means all.
func startupModels(names []string, entries []types.ModelEntry) []string {
	if len(names) > 0 {
		return names
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Config.Name)
	}
	return out
}

// preload loads models one by one. A failed model is left in the error
// state and does not stop the others.
func preload(ctx context.Context, mgr *manager.Manager, names []string, log zerolog.Logger) {
	for _, name := range names {
		if ctx.Err() != nil {
			return
		}
		if err := mgr.LoadModel(ctx, name); err != nil {
			log.Error().Err(err).Str("model", name).Msg("startup load failed")
		}
	}
}

// capabilities combines the configured table with an nvidia-smi probe.
// A failed probe is logged; configured entries still apply.
func capabilities(ctx context.Context, cfg config.Config, log zerolog.Logger) (backend.CapabilityLookup, error) {
	static, err := cfg.Capabilities()
	if err != nil {
		return nil, err
	}
	lookups := []backend.CapabilityLookup{device.Static(static)}
	if cfg.ProbeDevices {
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		probed, found, err := device.ProbeNvidiaSMI(probeCtx, cfg.NvidiaSMI)
		if err != nil {
			log.Warn().Err(err).Msg("gpu probe failed")
		} else {
			log.Info().Interface("compute_caps", found).Msg("gpu probe")
			lookups = append(lookups, probed)
		}
	}
	return device.Chain(lookups...), nil
}
