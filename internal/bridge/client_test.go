package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gaspardpetit/figbridge/internal/protocol"
	"github.com/gaspardpetit/figbridge/internal/transport"
)

// peer plays the host side of a pipe in tests.
type peer struct {
	t    *testing.T
	tr   transport.Transport
	reqs chan protocol.Envelope
}

func newPair(t *testing.T, opts ...Option) (*Client, *peer) {
	t.Helper()
	ui, host := transport.Pipe()
	c := New(opts...)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = ui.Close()
	})
	go func() { _ = c.Serve(ctx, ui) }()

	p := &peer{t: t, tr: host, reqs: make(chan protocol.Envelope, 64)}
	go func() {
		for {
			f, err := host.Recv(ctx)
			if err != nil {
				return
			}
			env, err := protocol.Unwrap(f)
			if err != nil {
				continue
			}
			p.reqs <- env
		}
	}()
	waitFor(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.t != nil
	})
	return c, p
}

func (p *peer) next() protocol.Envelope {
	p.t.Helper()
	select {
	case env := <-p.reqs:
		return env
	case <-time.After(2 * time.Second):
		p.t.Fatalf("timed out waiting for request")
		return protocol.Envelope{}
	}
}

func (p *peer) send(env protocol.Envelope) {
	p.t.Helper()
	f, err := protocol.Wrap(env)
	if err != nil {
		p.t.Fatalf("wrap: %v", err)
	}
	if err := p.tr.Send(context.Background(), f); err != nil {
		p.t.Fatalf("send: %v", err)
	}
}

func (p *peer) sendRaw(frame string) {
	if err := p.tr.Send(context.Background(), []byte(frame)); err != nil {
		p.t.Fatalf("send: %v", err)
	}
}

func nodesEnvelope(t *testing.T, state string, nodes ...protocol.NodeSummary) protocol.Envelope {
	t.Helper()
	env, err := protocol.Encode(protocol.ListNodesResponse{Nodes: nodes}, state)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return env
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met")
		}
		time.Sleep(time.Millisecond)
	}
}

type listResult struct {
	nodes []protocol.NodeSummary
	err   error
}

func TestListNodesMatchesOnlyCorrelatedResponse(t *testing.T) {
	c, p := newPair(t)
	done := make(chan listResult, 1)
	go func() {
		nodes, err := c.ListNodes(context.Background(), true)
		done <- listResult{nodes, err}
	}()

	req := p.next()
	if req.Type != protocol.TypeListNodes || req.State == "" {
		t.Fatalf("unexpected request %+v", req)
	}
	var payload map[string]bool
	_ = json.Unmarshal(req.Data, &payload)
	if !payload["onlySelected"] {
		t.Fatalf("onlySelected not forwarded: %s", req.Data)
	}

	// noise the client must ignore
	p.sendRaw(`"just a string"`)
	p.sendRaw(`{"pluginMessage":{"type":"mystery"}}`)
	p.send(nodesEnvelope(t, "not-"+req.State, protocol.NodeSummary{ID: "wrong-state"}))
	p.send(nodesEnvelope(t, ""))
	wrongType, _ := protocol.Encode(protocol.ExportNodeResponse{Image: []byte{1}}, req.State)
	p.send(wrongType)

	select {
	case r := <-done:
		t.Fatalf("resolved early with %+v", r)
	case <-time.After(50 * time.Millisecond):
	}
	if c.Pending() != 1 {
		t.Fatalf("pending = %d; want 1", c.Pending())
	}

	p.send(nodesEnvelope(t, req.State, protocol.NodeSummary{ID: "1:1", Name: "Frame", Width: 10, Height: 20}))
	r := <-done
	if r.err != nil {
		t.Fatalf("list: %v", r.err)
	}
	if len(r.nodes) != 1 || r.nodes[0].ID != "1:1" || r.nodes[0].Height != 20 {
		t.Fatalf("nodes = %+v", r.nodes)
	}
	if c.Pending() != 0 {
		t.Fatalf("pending = %d; want 0", c.Pending())
	}
}

func TestConcurrentListNodesResolveOneToOne(t *testing.T) {
	const n = 8
	c, p := newPair(t)

	results := make([]chan listResult, n)
	states := make([]string, n)
	for i := 0; i < n; i++ {
		results[i] = make(chan listResult, 1)
		go func(i int) {
			nodes, err := c.ListNodes(context.Background(), false)
			results[i] <- listResult{nodes, err}
		}(i)
		states[i] = p.next().State
	}
	seen := map[string]bool{}
	for _, s := range states {
		if seen[s] {
			t.Fatalf("token %q reused while in flight", s)
		}
		seen[s] = true
	}
	if c.Pending() != n {
		t.Fatalf("pending = %d; want %d", c.Pending(), n)
	}

	// answer in reverse order, each with its own synthetic node set
	for i := n - 1; i >= 0; i-- {
		p.send(nodesEnvelope(t, states[i],
			protocol.NodeSummary{ID: fmt.Sprintf("%d:a", i)},
			protocol.NodeSummary{ID: fmt.Sprintf("%d:b", i)},
		))
	}
	for i := 0; i < n; i++ {
		r := <-results[i]
		if r.err != nil {
			t.Fatalf("call %d: %v", i, r.err)
		}
		if len(r.nodes) != 2 || r.nodes[0].ID != fmt.Sprintf("%d:a", i) || r.nodes[1].ID != fmt.Sprintf("%d:b", i) {
			t.Fatalf("call %d got %+v", i, r.nodes)
		}
	}
	if c.Pending() != 0 {
		t.Fatalf("pending = %d; want 0", c.Pending())
	}
}

func TestTimeoutSettlesAndReleasesListener(t *testing.T) {
	c, p := newPair(t, WithTimeout(20*time.Millisecond))
	for i := 0; i < 5; i++ {
		nodes, err := c.ListNodes(context.Background(), false)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if nodes == nil || len(nodes) != 0 {
			t.Fatalf("expired list = %#v; want empty", nodes)
		}
		img, err := c.ExportNode(context.Background(), "1:2", protocol.ExportOverride{})
		if err != nil || img != nil {
			t.Fatalf("expired export = %v, %v", img, err)
		}
		if c.Pending() != 0 {
			t.Fatalf("pending after timeout %d = %d", i, c.Pending())
		}
	}

	// a response arriving after expiry is a correlation miss
	late := p.next()
	p.send(nodesEnvelope(t, late.State, protocol.NodeSummary{ID: "late"}))
	time.Sleep(10 * time.Millisecond)
	if c.Pending() != 0 {
		t.Fatalf("pending = %d; want 0", c.Pending())
	}
}

func TestContextCancelReleasesListener(t *testing.T) {
	c, p := newPair(t)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.ExportNode(ctx, "9:9", protocol.ExportOverride{Format: "JPG"})
		errCh <- err
	}()
	req := p.next()
	if req.Type != protocol.TypeExportNode {
		t.Fatalf("type = %s", req.Type)
	}
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v; want context.Canceled", err)
	}
	if c.Pending() != 0 {
		t.Fatalf("pending = %d; want 0", c.Pending())
	}
}

func TestExportNodeCarriesSubjectAndSettings(t *testing.T) {
	c, p := newPair(t)
	done := make(chan []byte, 1)
	go func() {
		img, _ := c.ExportNode(context.Background(), "12:34", protocol.ExportOverride{Format: "JPG"})
		done <- img
	}()
	req := p.next()
	cmd, err := protocol.Decode(req)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	en := cmd.(protocol.ExportNode)
	if en.ID != "12:34" || en.Settings.Format != "JPG" {
		t.Fatalf("request = %+v", en)
	}
	if want := "export-node:12:34:"; len(req.State) <= len(want) || req.State[:len(want)] != want {
		t.Fatalf("token %q lacks prefix and subject", req.State)
	}

	resp, _ := protocol.Encode(protocol.ExportNodeResponse{Image: []byte{0x89, 'P', 'N', 'G'}}, req.State)
	p.send(resp)
	if img := <-done; string(img) != "\x89PNG" {
		t.Fatalf("image = %v", img)
	}

	go func() {
		img, _ := c.ExportNode(context.Background(), "missing", protocol.ExportOverride{})
		done <- img
	}()
	req = p.next()
	null, _ := protocol.Encode(protocol.ExportNodeResponse{}, req.State)
	p.send(null)
	if img := <-done; img != nil {
		t.Fatalf("missing node image = %v; want nil", img)
	}
}

func TestTokenCollisionIsRetried(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	source := func(prefix, subject string) string {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls <= 2 {
			return "fixed"
		}
		return fmt.Sprintf("t%d", calls)
	}
	c, p := newPair(t, WithTokenSource(source))
	go func() { _, _ = c.ListNodes(context.Background(), false) }()
	first := p.next()
	go func() { _, _ = c.ListNodes(context.Background(), false) }()
	second := p.next()
	if first.State != "fixed" || second.State == "fixed" {
		t.Fatalf("tokens = %q, %q", first.State, second.State)
	}
	p.send(nodesEnvelope(t, first.State))
	p.send(nodesEnvelope(t, second.State))
	waitFor(t, func() bool { return c.Pending() == 0 })
}

func TestCommandsBlockedUntilReady(t *testing.T) {
	ready := false
	var mu sync.Mutex
	c, p := newPair(t, WithReady(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ready
	}))
	if _, err := c.ListNodes(context.Background(), false); !errors.Is(err, ErrNotReady) {
		t.Fatalf("list err = %v; want ErrNotReady", err)
	}
	if err := c.Close(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Fatalf("close err = %v; want ErrNotReady", err)
	}
	if c.Pending() != 0 {
		t.Fatalf("pending = %d", c.Pending())
	}
	mu.Lock()
	ready = true
	mu.Unlock()
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if env := p.next(); env.Type != protocol.TypeClose || env.State != "" {
		t.Fatalf("close envelope = %+v", env)
	}
}

func TestFireAndForgetCommands(t *testing.T) {
	c, p := newPair(t)
	ctx := context.Background()

	if err := c.Notify(ctx, "Exported 3 screens", 0); err != nil {
		t.Fatalf("notify: %v", err)
	}
	cmd, _ := protocol.Decode(p.next())
	if n := cmd.(protocol.Notify); n.Message != "Exported 3 screens" || n.Timeout != DefaultNotifyTimeout {
		t.Fatalf("notify = %+v", n)
	}

	m := MeasurerFunc(func(context.Context) (int, bool) { return 400, true })
	if err := c.AutoResize(ctx, m, DefaultExtraHeight); err != nil {
		t.Fatalf("autoresize: %v", err)
	}
	cmd, _ = protocol.Decode(p.next())
	if r := cmd.(protocol.Resize); r.Width != 0 || r.Height != 430 {
		t.Fatalf("resize = %+v", r)
	}

	none := MeasurerFunc(func(context.Context) (int, bool) { return 0, false })
	if err := c.AutoResize(ctx, none, DefaultExtraHeight); err != nil {
		t.Fatalf("autoresize without container: %v", err)
	}

	if err := c.SaveSettings(ctx, json.RawMessage(`{"token":"t"}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	env := p.next()
	if env.Type != protocol.TypeSaveSettings || string(env.Data) != `{"token":"t"}` {
		t.Fatalf("save envelope = %+v", env)
	}
}

func TestInboundReceivesInit(t *testing.T) {
	got := make(chan protocol.Envelope, 1)
	_, p := newPair(t, WithInbound(func(env protocol.Envelope) { got <- env }))
	p.send(protocol.Envelope{Type: protocol.TypeInit, Data: json.RawMessage(`{"a":1}`)})
	// requests are UI-to-host only and never reach the hook
	p.send(protocol.Envelope{Type: protocol.TypeNotify})
	select {
	case env := <-got:
		if env.Type != protocol.TypeInit || string(env.Data) != `{"a":1}` {
			t.Fatalf("inbound = %+v", env)
		}
	case <-time.After(time.Second):
		t.Fatalf("init not delivered")
	}
	select {
	case env := <-got:
		t.Fatalf("unexpected inbound %+v", env)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSendWithoutTransport(t *testing.T) {
	c := New()
	if err := c.Close(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v; want ErrNotConnected", err)
	}
	if _, err := c.ListNodes(context.Background(), false); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v; want ErrNotConnected", err)
	}
	if c.Pending() != 0 {
		t.Fatalf("pending = %d; want 0", c.Pending())
	}
}

func TestTransition(t *testing.T) {
	tests := []struct {
		from  CallState
		event callEvent
		want  CallState
		ok    bool
	}{
		{StateIssued, eventSent, StatePending, true},
		{StateIssued, eventSendFailed, StateFailed, true},
		{StatePending, eventResponse, StateMatched, true},
		{StatePending, eventTimeout, StateExpired, true},
		{StatePending, eventCancel, StateCancelled, true},
		{StateIssued, eventResponse, StateIssued, false},
		{StateMatched, eventTimeout, StateMatched, false},
		{StateExpired, eventResponse, StateExpired, false},
	}
	for _, tt := range tests {
		got, err := transition(tt.from, tt.event)
		if (err == nil) != tt.ok || got != tt.want {
			t.Fatalf("transition(%s, %s) = %s, %v", tt.from, tt.event, got, err)
		}
	}
}
