package transport

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/coder/websocket"
)

// WebSocket adapts a websocket connection to Transport. Each frame is one text message.
type WebSocket struct {
	conn *websocket.Conn
}

// NewWebSocket wraps an established connection.
func NewWebSocket(conn *websocket.Conn) *WebSocket {
	conn.SetReadLimit(MaxFrameSize)
	return &WebSocket{conn: conn}
}

// Dial connects to a host websocket endpoint.
func Dial(ctx context.Context, url string, header http.Header) (*WebSocket, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, err
	}
	return NewWebSocket(conn), nil
}

// Accept upgrades an HTTP request into a websocket transport.
func Accept(w http.ResponseWriter, r *http.Request, origins []string) (*WebSocket, error) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: origins})
	if err != nil {
		return nil, err
	}
	return NewWebSocket(conn), nil
}

func (t *WebSocket) Send(ctx context.Context, frame []byte) error {
	return mapClosed(t.conn.Write(ctx, websocket.MessageText, frame))
}

func (t *WebSocket) Recv(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		return nil, mapClosed(err)
	}
	return data, nil
}

func (t *WebSocket) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "closing")
}

// CloseWith closes the connection with an explicit status and reason.
func (t *WebSocket) CloseWith(code websocket.StatusCode, reason string) error {
	return t.conn.Close(code, reason)
}

func mapClosed(err error) error {
	if err == nil {
		return nil
	}
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return err
}
