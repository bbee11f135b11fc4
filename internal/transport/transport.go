// Package transport carries opaque frames between the host and the UI. It is
// the only channel the two contexts share: one frame at a time, FIFO per sender,
// no request/response pairing.
package transport

import (
	"context"
	"errors"
)

// MaxFrameSize caps a single frame. Exported images travel inline.
const MaxFrameSize = 64 << 20

// ErrClosed is returned once either end of a transport is closed.
var ErrClosed = errors.New("transport closed")

// Transport sends and receives whole frames.
type Transport interface {
	Send(ctx context.Context, frame []byte) error
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}
