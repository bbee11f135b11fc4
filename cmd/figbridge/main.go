package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/gaspardpetit/figbridge/internal/config"
	"github.com/gaspardpetit/figbridge/internal/document"
	"github.com/gaspardpetit/figbridge/internal/logx"
	"github.com/gaspardpetit/figbridge/internal/metrics"
	"github.com/gaspardpetit/figbridge/internal/server"
	"github.com/gaspardpetit/figbridge/internal/settings"
	"github.com/gaspardpetit/figbridge/internal/transport"
	"github.com/gaspardpetit/figbridge/internal/window"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	fs := flag.NewFlagSet("figbridge", flag.ExitOnError)
	showVersion := fs.Bool("version", false, "print version and exit")
	var cfg config.HostConfig
	if err := cfg.Resolve(fs, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *showVersion {
		fmt.Printf("figbridge version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}
	if cfg.Stdio {
		// stdout carries frames
		logx.ConfigureOutput(cfg.LogLevel, os.Stderr)
	} else {
		logx.Configure(cfg.LogLevel)
	}

	doc, err := loadDocument(cfg.DocumentFile)
	if err != nil {
		logx.Log.Fatal().Err(err).Str("path", cfg.DocumentFile).Msg("load document")
	}
	store, err := settings.Open(settings.Options{Key: cfg.SettingsKey, File: cfg.SettingsFile, RedisAddr: cfg.RedisAddr})
	if err != nil {
		logx.Log.Fatal().Err(err).Msg("open settings store")
	}
	if cfg.RedisAddr != "" {
		logx.Log.Info().Str("addr", cfg.RedisAddr).Msg("using redis settings store")
	}

	srv := server.New(cfg, doc, store)
	metrics.SetBuildInfo("host", version, buildSHA, buildDate)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Stdio {
		if err := serveStdio(ctx, srv, cfg); err != nil && !errors.Is(err, transport.ErrClosed) && !errors.Is(err, context.Canceled) {
			logx.Log.Fatal().Err(err).Msg("stdio session")
		}
		return
	}
	if err := serveHTTP(ctx, srv, cfg); err != nil {
		logx.Log.Fatal().Err(err).Msg("http server")
	}
}

func loadDocument(path string) (*document.Document, error) {
	if path == "" {
		logx.Log.Warn().Msg("no document configured; serving an empty one")
		return document.New(document.Spec{Name: "Untitled"})
	}
	return document.Load(path)
}

// serveStdio runs a single session on stdin/stdout. Closing the window ends the process.
func serveStdio(ctx context.Context, srv *server.Server, cfg config.HostConfig) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	t := transport.NewStdio(os.Stdin, os.Stdout, nil)
	defer t.Close()
	win := window.New(uuid.NewString(), cfg.WindowWidth, cfg.WindowHeight, cancel)
	logx.Log.Info().Msg("serving ui session on stdio")
	return srv.Executor().WithPlatform(win).Serve(ctx, t)
}

func serveHTTP(ctx context.Context, srv *server.Server, cfg config.HostConfig) error {
	httpSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}
	var metricsSrv *http.Server
	if cfg.MetricsAddr != fmt.Sprintf(":%d", cfg.Port) {
		mux := http.NewServeMux()
		mux.Handle("/metrics", srv.MetricsHandler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			logx.Log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logx.Log.Error().Err(err).Msg("metrics server")
			}
		}()
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logx.Log.Error().Err(err).Msg("server shutdown")
		}
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				logx.Log.Error().Err(err).Msg("metrics server shutdown")
			}
		}
	}()
	logx.Log.Info().Int("port", cfg.Port).Str("version", version).Msg("figbridge host listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
