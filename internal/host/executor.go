// Package host executes bridge commands against the design document and
// answers correlated requests.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gaspardpetit/figbridge/internal/logx"
	"github.com/gaspardpetit/figbridge/internal/metrics"
	"github.com/gaspardpetit/figbridge/internal/protocol"
)

// ErrNodeNotFound is logged when an export names no eligible node.
var ErrNodeNotFound = errors.New("node not found")

// Node is a live node of the design document. Its accessors may change
// between calls; the executor only ever forwards copies.
type Node interface {
	ID() string
	Name() string
	Type() string
	Visible() bool
	Width() float64
	Height() float64
}

// Document is the host's view of the design document and its rendering capability.
type Document interface {
	Selection() []Node
	Children() []Node
	Export(ctx context.Context, n Node, s protocol.ExportSettings) ([]byte, error)
}

// Platform is the window the UI lives in.
type Platform interface {
	Notify(message string, timeout time.Duration)
	Resize(width, height int)
	Close()
}

// SettingsStore persists the UI settings blob. Load returns nil when nothing is stored.
type SettingsStore interface {
	Load(ctx context.Context) (json.RawMessage, error)
	Save(ctx context.Context, blob json.RawMessage) error
}

// Options tune the executor. Zero values take the defaults.
type Options struct {
	// NodeTypes restricts listed and exported nodes to these types; empty allows all.
	NodeTypes     []string
	DefaultWidth  int
	DefaultHeight int
	NotifyTimeout time.Duration
	ExportTimeout time.Duration
}

const (
	DefaultWidth         = 450
	DefaultHeight        = 390
	DefaultNotifyTimeout = 4 * time.Second
	DefaultExportTimeout = 30 * time.Second
)

// Executor handles commands statelessly; it may serve several sessions.
type Executor struct {
	doc      Document
	platform Platform
	store    SettingsStore
	opts     Options
	allowed  map[string]bool
}

// NewExecutor builds an executor. store may be nil, in which case settings are
// neither loaded nor saved.
func NewExecutor(doc Document, platform Platform, store SettingsStore, opts Options) *Executor {
	if opts.DefaultWidth <= 0 {
		opts.DefaultWidth = DefaultWidth
	}
	if opts.DefaultHeight <= 0 {
		opts.DefaultHeight = DefaultHeight
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = DefaultNotifyTimeout
	}
	if opts.ExportTimeout <= 0 {
		opts.ExportTimeout = DefaultExportTimeout
	}
	e := &Executor{doc: doc, platform: platform, store: store, opts: opts}
	if len(opts.NodeTypes) > 0 {
		e.allowed = map[string]bool{}
		for _, t := range opts.NodeTypes {
			e.allowed[t] = true
		}
	}
	return e
}

// WithPlatform returns a copy of e that drives a different window, so each
// session can own its platform while sharing document and store.
func (e *Executor) WithPlatform(p Platform) *Executor {
	cp := *e
	cp.platform = p
	return &cp
}

func (e *Executor) eligible(n Node) bool {
	if n == nil || !n.Visible() {
		return false
	}
	return e.allowed == nil || e.allowed[n.Type()]
}

// ListNodes summarizes the eligible nodes of the selection or of the top-level
// children, walking the source from its end so the result is in reverse
// document order.
func (e *Executor) ListNodes(onlySelected bool) []protocol.NodeSummary {
	src := e.doc.Children()
	if onlySelected {
		src = e.doc.Selection()
	}
	out := []protocol.NodeSummary{}
	for i := len(src) - 1; i >= 0; i-- {
		n := src[i]
		if !e.eligible(n) {
			continue
		}
		out = append(out, protocol.NodeSummary{
			ID:     n.ID(),
			Name:   n.Name(),
			Width:  n.Width(),
			Height: n.Height(),
		})
	}
	return out
}

// findNode scans selection followed by children from the end; the last
// eligible match in that sequence wins.
func (e *Executor) findNode(id string) Node {
	candidates := append(append([]Node{}, e.doc.Selection()...), e.doc.Children()...)
	for i := len(candidates) - 1; i >= 0; i-- {
		n := candidates[i]
		if e.eligible(n) && n.ID() == id {
			return n
		}
	}
	return nil
}

// ExportNode renders node id with o merged over the default settings. Every
// failure yields nil and a local diagnostic.
func (e *Executor) ExportNode(ctx context.Context, id string, o protocol.ExportOverride) []byte {
	img, err := e.exportNode(ctx, id, o)
	if err != nil {
		metrics.RecordExportFailure()
		logx.Log.Warn().Err(err).Str("node_id", id).Msg("export node")
		return nil
	}
	return img
}

func (e *Executor) exportNode(ctx context.Context, id string, o protocol.ExportOverride) ([]byte, error) {
	n := e.findNode(id)
	if n == nil {
		return nil, ErrNodeNotFound
	}
	s := protocol.MergeExportSettings(o)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, e.opts.ExportTimeout)
	defer cancel()
	img, err := e.doc.Export(ctx, n, s)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	if len(img) == 0 {
		return nil, errors.New("render: empty image")
	}
	return img, nil
}

// InitSettings reads the persisted blob for the init handshake. A read failure
// is logged and the empty blob is used instead.
func (e *Executor) InitSettings(ctx context.Context) json.RawMessage {
	if e.store == nil {
		return protocol.NormalizeSettings(nil)
	}
	blob, err := e.store.Load(ctx)
	if err != nil {
		logx.Log.Warn().Err(err).Msg("load settings for init")
		return protocol.NormalizeSettings(nil)
	}
	return protocol.NormalizeSettings(blob)
}

// Execute runs one command. For correlated commands it returns the response to send.
func (e *Executor) Execute(ctx context.Context, cmd protocol.Command) (protocol.Command, bool) {
	metrics.RecordHostCommand(cmd.Type())
	switch c := cmd.(type) {
	case protocol.ListNodes:
		return protocol.ListNodesResponse{Nodes: e.ListNodes(c.OnlySelected)}, true
	case protocol.ExportNode:
		return protocol.ExportNodeResponse{Image: e.ExportNode(ctx, c.ID, c.Settings)}, true
	case protocol.SaveSettings:
		if e.store == nil {
			return nil, false
		}
		if err := e.store.Save(ctx, c.Settings); err != nil {
			logx.Log.Warn().Err(err).Msg("save settings")
		}
	case protocol.Notify:
		timeout := c.Timeout
		if timeout <= 0 {
			timeout = e.opts.NotifyTimeout
		}
		e.platform.Notify(c.Message, timeout)
	case protocol.Resize:
		w, h := c.Width, c.Height
		if w <= 0 {
			w = e.opts.DefaultWidth
		}
		if h <= 0 {
			h = e.opts.DefaultHeight
		}
		e.platform.Resize(w, h)
	case protocol.Close:
		e.platform.Close()
	}
	return nil, false
}
