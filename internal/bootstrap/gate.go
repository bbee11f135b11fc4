// Package bootstrap gates the UI on the one-time init handshake.
package bootstrap

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gaspardpetit/figbridge/internal/protocol"
)

// Gate opens on the first init envelope and ignores every later one.
type Gate struct {
	load  func(json.RawMessage)
	mount func(json.RawMessage)

	mu       sync.Mutex
	opened   bool
	settings json.RawMessage
	ready    chan struct{}
}

// NewGate returns a closed gate. load runs synchronously with the init
// settings before the gate reports ready; mount runs once afterwards on its own
// goroutine so it may issue bridge calls. Either may be nil.
func NewGate(load, mount func(json.RawMessage)) *Gate {
	return &Gate{load: load, mount: mount, ready: make(chan struct{})}
}

// Offer feeds an inbound envelope to the gate and reports whether it opened it.
func (g *Gate) Offer(env protocol.Envelope) bool {
	if env.Type != protocol.TypeInit {
		return false
	}
	g.mu.Lock()
	if g.opened {
		g.mu.Unlock()
		return false
	}
	g.opened = true
	g.mu.Unlock()

	settings := protocol.NormalizeSettings(env.Data)
	if g.load != nil {
		g.load(settings)
	}
	g.mu.Lock()
	g.settings = settings
	g.mu.Unlock()
	close(g.ready)
	if g.mount != nil {
		go g.mount(settings)
	}
	return true
}

// Ready reports whether init was received and loaded.
func (g *Gate) Ready() bool {
	select {
	case <-g.ready:
		return true
	default:
		return false
	}
}

// Done is closed once the gate opens.
func (g *Gate) Done() <-chan struct{} { return g.ready }

// Settings returns the blob delivered by init, or nil before it arrived.
func (g *Gate) Settings() json.RawMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.settings
}

// Wait blocks until the gate opens or ctx ends.
func (g *Gate) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-g.ready:
		return g.Settings(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
