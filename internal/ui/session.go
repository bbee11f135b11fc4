// Package ui is the UI side of the bridge: one session owning the client, the
// init gate and the settings copy, kept connected across transport failures.
package ui

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/gaspardpetit/figbridge/internal/bootstrap"
	"github.com/gaspardpetit/figbridge/internal/bridge"
	"github.com/gaspardpetit/figbridge/internal/logx"
	"github.com/gaspardpetit/figbridge/internal/protocol"
	"github.com/gaspardpetit/figbridge/internal/reconnect"
	"github.com/gaspardpetit/figbridge/internal/transport"
)

// Dialer opens a transport to the host.
type Dialer func(ctx context.Context) (transport.Transport, error)

// Options configures a Session.
type Options struct {
	// Timeout bounds correlated calls; zero uses bridge.DefaultTimeout.
	Timeout time.Duration
	// Reconnect redials with backoff when the transport fails.
	Reconnect bool
	// Mount runs once after init, off the receive loop, so it may call the bridge.
	Mount func(*Session)
}

// Session is one UI connected to the host: the bridge client, the init gate
// and the settings copy.
type Session struct {
	*bridge.Client
	Store *Store

	gate    *bootstrap.Gate
	retry   bool
	closing atomic.Bool
}

// NewSession builds a session that is not yet connected; start it with Run.
func NewSession(o Options) *Session {
	s := &Session{retry: o.Reconnect}
	var mount func(json.RawMessage)
	if o.Mount != nil {
		mount = func(json.RawMessage) { o.Mount(s) }
	}
	s.Store = newStore(func(ctx context.Context, blob json.RawMessage) error {
		return s.Client.SaveSettings(ctx, blob)
	})
	s.gate = bootstrap.NewGate(s.Store.load, mount)
	opts := []bridge.Option{
		bridge.WithReady(s.gate.Ready),
		bridge.WithInbound(s.inbound),
	}
	if o.Timeout > 0 {
		opts = append(opts, bridge.WithTimeout(o.Timeout))
	}
	s.Client = bridge.New(opts...)
	return s
}

func (s *Session) inbound(env protocol.Envelope) {
	if !s.gate.Offer(env) {
		logx.Log.Debug().Str("type", env.Type).Msg("ignoring inbound envelope")
	}
}

// WaitReady blocks until init arrived and returns its settings.
func (s *Session) WaitReady(ctx context.Context) (json.RawMessage, error) {
	return s.gate.Wait(ctx)
}

// Ready reports whether init arrived.
func (s *Session) Ready() bool { return s.gate.Ready() }

// Initialized is closed once init arrived.
func (s *Session) Initialized() <-chan struct{} { return s.gate.Done() }

// Close asks the host to close the window. The session then ends without
// redialing when the host drops the transport.
func (s *Session) Close(ctx context.Context) error {
	s.closing.Store(true)
	return s.Client.Close(ctx)
}

// Run keeps the session attached to a transport from dial until ctx ends,
// the window is closed, or, without Reconnect, the first transport failure.
func (s *Session) Run(ctx context.Context, dial Dialer) error {
	err := reconnect.Run(ctx, s.retry, func(ctx context.Context) (bool, error) {
		t, err := dial(ctx)
		if err != nil {
			logx.Log.Warn().Err(err).Msg("connect to host")
			return false, err
		}
		defer t.Close()
		logx.Log.Info().Msg("connected to host")
		err = s.Client.Serve(ctx, t)
		if s.closing.Load() {
			// the host drops the transport once the window is closed
			return true, nil
		}
		if ctx.Err() != nil {
			return true, nil
		}
		logx.Log.Warn().Err(err).Msg("host connection lost")
		return true, err
	})
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}
