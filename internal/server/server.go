// Package server exposes the host over HTTP: one bridge session per websocket
// plus read-only status endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gaspardpetit/figbridge/internal/config"
	"github.com/gaspardpetit/figbridge/internal/document"
	"github.com/gaspardpetit/figbridge/internal/host"
	"github.com/gaspardpetit/figbridge/internal/logx"
	"github.com/gaspardpetit/figbridge/internal/metrics"
	"github.com/gaspardpetit/figbridge/internal/settings"
	"github.com/gaspardpetit/figbridge/internal/transport"
	"github.com/gaspardpetit/figbridge/internal/window"
)

// ExecutorOptions maps host configuration onto executor options.
func ExecutorOptions(cfg config.HostConfig) host.Options {
	return host.Options{
		NodeTypes:     cfg.NodeTypes,
		DefaultWidth:  cfg.WindowWidth,
		DefaultHeight: cfg.WindowHeight,
		NotifyTimeout: cfg.NotifyTimeout,
		ExportTimeout: cfg.ExportTimeout,
	}
}

type Server struct {
	cfg     config.HostConfig
	doc     *document.Document
	exec    *host.Executor
	windows *window.Registry
	reg     *prometheus.Registry
}

// New builds a server over doc. store may be nil.
func New(cfg config.HostConfig, doc *document.Document, store settings.Store) *Server {
	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	return &Server{
		cfg:     cfg,
		doc:     doc,
		exec:    host.NewExecutor(doc, nil, store, ExecutorOptions(cfg)),
		windows: window.NewRegistry(),
		reg:     reg,
	}
}

// Handler returns the HTTP API. /metrics is mounted only when metrics share the API port.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	if len(s.cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Route("/api", func(ar chi.Router) {
		ar.Get("/document", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, s.doc.Summary())
		})
		ar.Get("/window", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, s.windows.States())
		})
		ar.Get("/ui/connect", s.connect)
	})
	if s.cfg.MetricsAddr == "" || s.cfg.MetricsAddr == fmt.Sprintf(":%d", s.cfg.Port) {
		r.Handle("/metrics", s.MetricsHandler())
	}
	return r
}

// MetricsHandler serves the server's Prometheus registry.
func (s *Server) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})
}

// Executor returns the shared executor, for serving sessions outside HTTP.
func (s *Server) Executor() *host.Executor { return s.exec }

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	t, err := transport.Accept(w, r, s.cfg.AllowedOrigins)
	if err != nil {
		logx.Log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("ui websocket accept")
		return
	}
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	win := window.New(id, s.cfg.WindowWidth, s.cfg.WindowHeight, func() {
		_ = t.CloseWith(websocket.StatusNormalClosure, "window closed")
	})
	s.windows.Add(win)
	defer s.windows.Remove(id)

	logx.Log.Info().Str("session", id).Str("remote", r.RemoteAddr).Msg("ui connected")
	err = s.exec.WithPlatform(win).Serve(ctx, t)
	switch {
	case !win.State().Open:
	case errors.Is(err, transport.ErrClosed):
		_ = t.Close()
	default:
		logx.Log.Warn().Err(err).Str("session", id).Msg("ui session ended")
		_ = t.CloseWith(websocket.StatusInternalError, "session ended")
	}
	logx.Log.Info().Str("session", id).Msg("ui disconnected")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Log.Debug().Err(err).Msg("write response")
	}
}
