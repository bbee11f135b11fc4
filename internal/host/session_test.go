package host

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/gaspardpetit/figbridge/internal/protocol"
	"github.com/gaspardpetit/figbridge/internal/transport"
)

func recvEnvelope(t *testing.T, tr transport.Transport) protocol.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	frame, err := tr.Recv(ctx)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	env, err := protocol.Unwrap(frame)
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	return env
}

func sendEnvelope(t *testing.T, tr transport.Transport, env protocol.Envelope) {
	t.Helper()
	frame, err := protocol.Wrap(env)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if err := tr.Send(context.Background(), frame); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func startSession(t *testing.T, e *Executor) (transport.Transport, chan error) {
	t.Helper()
	hostEnd, uiEnd := transport.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Serve(ctx, hostEnd) }()
	t.Cleanup(func() {
		cancel()
		uiEnd.Close()
		<-done
	})
	return uiEnd, done
}

func TestServeSendsInitFirst(t *testing.T) {
	store := &fakeStore{blob: json.RawMessage(`{"theme":"dark"}`)}
	e := NewExecutor(&fakeDoc{}, &fakePlatform{}, store, Options{})
	ui, _ := startSession(t, e)
	env := recvEnvelope(t, ui)
	if env.Type != protocol.TypeInit || string(env.Data) != `{"theme":"dark"}` {
		t.Fatalf("got %+v", env)
	}
}

func TestServeAnswersWithState(t *testing.T) {
	doc := &fakeDoc{children: []Node{frame("A"), frame("B")}}
	e := NewExecutor(doc, &fakePlatform{}, nil, Options{})
	ui, _ := startSession(t, e)
	recvEnvelope(t, ui)

	req, _ := protocol.Encode(protocol.ListNodes{}, "list-nodes:abc")
	sendEnvelope(t, ui, req)
	env := recvEnvelope(t, ui)
	if env.Type != protocol.TypeListNodesResponse || env.State != "list-nodes:abc" {
		t.Fatalf("got %+v", env)
	}
	cmd, err := protocol.Decode(env)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := ids(cmd.(protocol.ListNodesResponse).Nodes); len(got) != 2 || got[0] != "B" {
		t.Fatalf("nodes %v", got)
	}
}

func TestServeExportNullOnMissing(t *testing.T) {
	e := NewExecutor(&fakeDoc{}, &fakePlatform{}, nil, Options{})
	ui, _ := startSession(t, e)
	recvEnvelope(t, ui)

	req, _ := protocol.Encode(protocol.ExportNode{ID: "x"}, "export-node:x:1")
	sendEnvelope(t, ui, req)
	env := recvEnvelope(t, ui)
	if env.Type != protocol.TypeExportNodeResponse || env.State != "export-node:x:1" || string(env.Data) != "null" {
		t.Fatalf("got %+v data=%s", env, env.Data)
	}
}

func TestServeAnswersUndecodableRequest(t *testing.T) {
	e := NewExecutor(&fakeDoc{children: []Node{frame("A")}}, &fakePlatform{}, nil, Options{})
	ui, _ := startSession(t, e)
	recvEnvelope(t, ui)

	sendEnvelope(t, ui, protocol.Envelope{
		Type:  protocol.TypeExportNode,
		State: "export-node:A:1",
		Data:  json.RawMessage(`{"id":"A","settings":{"format":5}}`),
	})
	env := recvEnvelope(t, ui)
	if env.Type != protocol.TypeExportNodeResponse || env.State != "export-node:A:1" || string(env.Data) != "null" {
		t.Fatalf("got %+v data=%s", env, env.Data)
	}

	sendEnvelope(t, ui, protocol.Envelope{
		Type:  protocol.TypeListNodes,
		State: "list-nodes:2",
		Data:  json.RawMessage(`{"onlySelected":"yes"}`),
	})
	env = recvEnvelope(t, ui)
	if env.Type != protocol.TypeListNodesResponse || env.State != "list-nodes:2" || string(env.Data) != "[]" {
		t.Fatalf("got %+v data=%s", env, env.Data)
	}
}

func TestServeIgnoresUnknownAndForeign(t *testing.T) {
	p := &fakePlatform{}
	e := NewExecutor(&fakeDoc{}, p, nil, Options{})
	ui, _ := startSession(t, e)
	recvEnvelope(t, ui)

	ctx := context.Background()
	ui.Send(ctx, []byte(`{"somethingElse":1}`))
	ui.Send(ctx, []byte(`not json`))
	sendEnvelope(t, ui, protocol.Envelope{Type: "explode"})
	sendEnvelope(t, ui, protocol.Envelope{Type: protocol.TypeInit, Data: json.RawMessage(`{}`)})
	notify, _ := protocol.Encode(protocol.Notify{Message: "still alive"}, "")
	sendEnvelope(t, ui, notify)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		n := len(p.notices)
		p.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("notify after ignored frames was not executed")
}

func TestServeEndsWhenTransportCloses(t *testing.T) {
	e := NewExecutor(&fakeDoc{}, &fakePlatform{}, nil, Options{})
	hostEnd, uiEnd := transport.Pipe()
	done := make(chan error, 1)
	go func() { done <- e.Serve(context.Background(), hostEnd) }()
	recvEnvelope(t, uiEnd)
	uiEnd.Close()
	select {
	case err := <-done:
		if !errors.Is(err, transport.ErrClosed) {
			t.Fatalf("err %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("serve did not return")
	}
}
