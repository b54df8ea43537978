// Package main is the entry point for the dunebugger-remote supervisor.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marco-svitol/dunebugger-remote/internal/config"
	"github.com/marco-svitol/dunebugger-remote/internal/supervisor"
	"github.com/marco-svitol/dunebugger-remote/internal/version"
	"github.com/marco-svitol/dunebugger-remote/pkg/logger"
)

const serviceName = "dunebugger-remote"

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version information")
		showHelp    = flag.Bool("help", false, "Show help information")
		configPath  = flag.String("config", "", "Path to configuration file")
		metricsAddr = flag.String("metrics-addr", ":9090", "Address to serve Prometheus metrics on")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s (%s)\n", serviceName, version.Get().Version, version.Get().GitCommit)
		os.Exit(0)
	}

	if *showHelp {
		fmt.Printf("%s - device-side supervisor for the dunebugger fleet\n\n", serviceName)
		fmt.Printf("Usage: %s [options]\n\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: configuration error: %v\n", serviceName, err)
		os.Exit(1)
	}

	log := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	log.Info("starting supervisor", "service", serviceName, "version", version.Get().Version, "device_id", cfg.System.DeviceID)

	sup := supervisor.New(cfg, log)

	metricsServer := &http.Server{
		Addr:    *metricsAddr,
		Handler: promhttp.HandlerFor(sup.Registry, promhttp.HandlerOpts{}),
	}

	ctx, cancel := context.WithCancel(context.Background())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("metrics server starting", "addr", *metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	<-quit
	log.Info("shutdown signal received")
	cancel()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Warn("supervisor did not stop within shutdown timeout")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics server shutdown failed", "error", err)
	}

	log.Info("supervisor stopped")
}
