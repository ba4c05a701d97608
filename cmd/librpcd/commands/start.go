package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/twoporeguys/go-librpc/internal/logger"
	"github.com/twoporeguys/go-librpc/internal/rpcconfig"
	"github.com/twoporeguys/go-librpc/pkg/rpccontext"
	"github.com/twoporeguys/go-librpc/pkg/rpcserializer"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the librpcd server",
	Long: `Start librpcd: load configuration, bind the configured transports,
and serve the instance tree until an interrupt arrives.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/librpc/librpcd.yaml.`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := rpcconfig.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	codec, ok := rpcserializer.Default().Lookup(cfg.Server.DefaultSerializer)
	if !ok {
		return fmt.Errorf("unknown default_serializer %q", cfg.Server.DefaultSerializer)
	}

	var metrics *rpccontext.Metrics
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		metrics = rpccontext.NewMetrics(reg)
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
		logger.Info("metrics enabled", "addr", cfg.Metrics.Addr, "path", cfg.Metrics.Path)
	}

	ctx := rpccontext.New(rpccontext.Options{
		Workers: cfg.Server.Workers,
		Codec:   codec,
		Metrics: metrics,
	})

	if err := registerDemoInstance(ctx.Tree); err != nil {
		return fmt.Errorf("failed to register demo instance: %w", err)
	}

	for _, l := range cfg.Listen {
		if err := ctx.Bind(l.URI, l.Params); err != nil {
			return fmt.Errorf("failed to bind %q: %w", l.URI, err)
		}
		logger.Info("bound transport", "uri", l.URI)
	}

	logger.Info("librpcd started", "workers", cfg.Server.Workers, "serializer", cfg.Server.DefaultSerializer)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	signal.Stop(sigChan)
	logger.Info("shutdown signal received, closing context")

	if err := ctx.Close(); err != nil {
		logger.Error("context close error", "error", err)
	}
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	logger.Info("librpcd stopped")
	return nil
}
