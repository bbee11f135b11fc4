package ui

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/gaspardpetit/figbridge/internal/bridge"
	"github.com/gaspardpetit/figbridge/internal/document"
	"github.com/gaspardpetit/figbridge/internal/host"
	"github.com/gaspardpetit/figbridge/internal/protocol"
	"github.com/gaspardpetit/figbridge/internal/settings"
	"github.com/gaspardpetit/figbridge/internal/transport"
	"github.com/gaspardpetit/figbridge/internal/window"
)

type fixture struct {
	store  *settings.MemoryStore
	win    *window.Window
	dial   Dialer
	hostCh chan error
}

func newFixture(t *testing.T, blob string) *fixture {
	t.Helper()
	doc, err := document.New(document.Spec{Children: []document.NodeSpec{
		{ID: "a", Name: "A", Width: 10, Height: 10},
		{ID: "b", Name: "B", Width: 10, Height: 10},
	}})
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{store: settings.NewMemoryStore(), hostCh: make(chan error, 1)}
	if blob != "" {
		if err := f.store.Save(context.Background(), json.RawMessage(blob)); err != nil {
			t.Fatal(err)
		}
	}
	f.dial = func(ctx context.Context) (transport.Transport, error) {
		hostEnd, uiEnd := transport.Pipe()
		f.win = window.New("test", host.DefaultWidth, host.DefaultHeight, func() { hostEnd.Close() })
		e := host.NewExecutor(doc, f.win, f.store, host.Options{})
		go func() { f.hostCh <- e.Serve(context.Background(), hostEnd) }()
		return uiEnd, nil
	}
	return f
}

func run(t *testing.T, s *Session, dial Dialer) (context.CancelFunc, chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, dial) }()
	t.Cleanup(cancel)
	return cancel, done
}

func waitReady(t *testing.T, s *Session) json.RawMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	blob, err := s.WaitReady(ctx)
	if err != nil {
		t.Fatalf("wait ready: %v", err)
	}
	return blob
}

func TestSessionRoundTrip(t *testing.T) {
	f := newFixture(t, `{"theme":"dark"}`)
	mounted := make(chan struct{})
	s := NewSession(Options{Timeout: time.Second, Mount: func(*Session) { close(mounted) }})
	run(t, s, f.dial)

	if blob := waitReady(t, s); string(blob) != `{"theme":"dark"}` {
		t.Fatalf("init blob %s", blob)
	}
	select {
	case <-mounted:
	case <-time.After(2 * time.Second):
		t.Fatalf("mount did not run")
	}
	var theme string
	if ok, err := s.Store.Get("theme", &theme); !ok || err != nil || theme != "dark" {
		t.Fatalf("get theme = %q %v %v", theme, ok, err)
	}

	nodes, err := s.ListNodes(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 2 || nodes[0].ID != "b" {
		t.Fatalf("nodes %+v", nodes)
	}
	img, err := s.ExportNode(context.Background(), "a", protocol.ExportOverride{})
	if err != nil || len(img) == 0 {
		t.Fatalf("export = %d bytes, %v", len(img), err)
	}
	if img, _ := s.ExportNode(context.Background(), "zz", protocol.ExportOverride{}); img != nil {
		t.Fatalf("missing node exported")
	}

	if err := s.Store.Set(context.Background(), "theme", "light"); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		blob, _ := f.store.Load(context.Background())
		if string(blob) == `{"theme":"light"}` {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("host store = %s", blob)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionEmptySettings(t *testing.T) {
	f := newFixture(t, "")
	s := NewSession(Options{})
	run(t, s, f.dial)
	if blob := waitReady(t, s); string(blob) != "{}" {
		t.Fatalf("blob %s", blob)
	}
	if ok, _ := s.Store.Get("missing", new(string)); ok {
		t.Fatalf("unexpected key")
	}
}

func TestSessionNotReady(t *testing.T) {
	s := NewSession(Options{})
	if _, err := s.ListNodes(context.Background(), false); !errors.Is(err, bridge.ErrNotReady) {
		t.Fatalf("err = %v", err)
	}
	if err := s.Notify(context.Background(), "x", 0); !errors.Is(err, bridge.ErrNotReady) {
		t.Fatalf("err = %v", err)
	}
}

func TestSessionCloseEndsRun(t *testing.T) {
	f := newFixture(t, "")
	s := NewSession(Options{Reconnect: true})
	_, done := run(t, s, f.dial)
	waitReady(t, s)

	if err := s.Notify(context.Background(), "bye", 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not end after close")
	}
	st := f.win.State()
	if st.Open || len(st.Notifications) != 1 || st.Notifications[0].Timeout != bridge.DefaultNotifyTimeout {
		t.Fatalf("window %+v", st)
	}
}

func TestSessionDialError(t *testing.T) {
	s := NewSession(Options{})
	boom := errors.New("refused")
	err := s.Run(context.Background(), func(context.Context) (transport.Transport, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestStoreIgnoresNonObject(t *testing.T) {
	var saved []string
	st := newStore(func(_ context.Context, b json.RawMessage) error {
		saved = append(saved, string(b))
		return nil
	})
	st.load(json.RawMessage(`[1,2]`))
	if got := string(st.Snapshot()); got != "{}" {
		t.Fatalf("snapshot %s", got)
	}
	if err := st.Set(context.Background(), "n", 3); err != nil {
		t.Fatal(err)
	}
	if err := st.Delete(context.Background(), "n"); err != nil {
		t.Fatal(err)
	}
	if len(saved) != 2 || saved[0] != `{"n":3}` || saved[1] != "{}" {
		t.Fatalf("saved %v", saved)
	}
}

func TestStoreRestoresOnSaveError(t *testing.T) {
	fail := false
	st := newStore(func(context.Context, json.RawMessage) error {
		if fail {
			return bridge.ErrNotConnected
		}
		return nil
	})
	st.load(json.RawMessage(`{"theme":"dark"}`))
	ctx := context.Background()

	fail = true
	if err := st.Set(ctx, "theme", "light"); !errors.Is(err, bridge.ErrNotConnected) {
		t.Fatalf("set err = %v", err)
	}
	if err := st.Set(ctx, "fresh", 1); !errors.Is(err, bridge.ErrNotConnected) {
		t.Fatalf("set err = %v", err)
	}
	if err := st.Delete(ctx, "theme"); !errors.Is(err, bridge.ErrNotConnected) {
		t.Fatalf("delete err = %v", err)
	}
	if got := string(st.Snapshot()); got != `{"theme":"dark"}` {
		t.Fatalf("snapshot after failed saves %s", got)
	}

	fail = false
	if err := st.Set(ctx, "theme", "light"); err != nil {
		t.Fatal(err)
	}
	var theme string
	if ok, err := st.Get("theme", &theme); !ok || err != nil || theme != "light" {
		t.Fatalf("theme %q ok=%v err=%v", theme, ok, err)
	}
}
