package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agrisense/agriquery"
	"github.com/agrisense/agriquery/common/logger"
	"github.com/agrisense/agriquery/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("AGRIQUERY_CONFIG"), "path to the YAML configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warnf("load .env: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("load config: %v", err)
		os.Exit(1)
	}
	logger.Init(logger.Options{Production: cfg.Log.Production, Level: cfg.Log.Level})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := agriquery.NewPipeline(ctx, cfg)
	if err != nil {
		logger.Errorf("create pipeline failed, err: %v", err)
		os.Exit(1)
	}
	defer p.Close()
	p.StartBackground(ctx)

	if cfg.Server.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.Server.MetricsAddr)
	}

	logger.Infof("agriquery %s serving MCP on stdio", agriquery.Version)
	if err := server.ServeStdio(agriquery.NewServer(p)); err != nil {
		logger.Errorf("mcp server stopped: %v", err)
	}
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Infof("metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("metrics server: %v", err)
	}
}
