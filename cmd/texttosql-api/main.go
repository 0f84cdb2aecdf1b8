package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/kattapik/texttosql-project/internal/api"
	"github.com/kattapik/texttosql-project/pkg/config"
	"github.com/kattapik/texttosql-project/pkg/logger"
	"github.com/kattapik/texttosql-project/pkg/metrics"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultListenAddr      = "0.0.0.0:8080"
	defaultMetricsAddr     = "0.0.0.0:0"
	defaultShutdownTimeout = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "HTTP server listen address (or TEXTTOSQL_API_LISTEN_ADDR)")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "Address to listen on for prometheus metrics, empty to disable")
	allowedOriginsFlag := flag.String("allowed-origins", "*", "comma-separated CORS origins")
	flag.Parse()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if env := os.Getenv("TEXTTOSQL_API_LISTEN_ADDR"); env != "" && !flag.CommandLine.Changed("listen-addr") {
		*listenAddrFlag = env
	}

	log := logger.New(*verboseFlag)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metricsServerErrCh := make(chan error, 1)
	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go serveMetrics(log, *metricsAddrFlag, metricsServerErrCh)
	}

	app, err := config.NewApp(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Error("failed to close catalog", "error", err)
		}
	}()

	srv, err := api.New(api.Config{
		Logger:         log,
		Asker:          app.Pipeline,
		Tables:         app.Catalog,
		Validator:      app.Validator,
		Ready:          app.Catalog,
		AllowedOrigins: splitList(*allowedOriginsFlag),
	})
	if err != nil {
		return fmt.Errorf("failed to create api server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              *listenAddrFlag,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		log.Info("api: listening", "listenAddr", *listenAddrFlag, "driver", cfg.DBDriver, "provider", cfg.LLMProvider)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("failed to listen and serve: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("api: shutting down", "reason", ctx.Err())
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		log.Error("api: server error causing shutdown", "error", err)
		return err
	case err := <-metricsServerErrCh:
		log.Error("api: metrics server error causing shutdown", "error", err)
		return err
	}
}

func serveMetrics(log *slog.Logger, addr string, errCh chan<- error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error("failed to start prometheus metrics server listener", "error", err)
		errCh <- err
		return
	}
	log.Info("prometheus metrics server listening", "address", listener.Addr().String())
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.Serve(listener, mux); err != nil {
		log.Error("failed to start prometheus metrics server", "error", err)
		errCh <- err
	}
}

func splitList(s string) []string {
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
