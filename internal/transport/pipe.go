package transport

import (
	"context"
	"sync"
)

type pipeEnd struct {
	in       <-chan []byte
	out      chan<- []byte
	done     chan struct{}
	peerDone chan struct{}
	once     sync.Once
}

// Pipe returns two connected in-process transports. Frames sent on one end are
// received on the other in order. Closing either end closes both.
func Pipe() (Transport, Transport) {
	a2b := make(chan []byte, 64)
	b2a := make(chan []byte, 64)
	da := make(chan struct{})
	db := make(chan struct{})
	a := &pipeEnd{in: b2a, out: a2b, done: da, peerDone: db}
	b := &pipeEnd{in: a2b, out: b2a, done: db, peerDone: da}
	return a, b
}

func (p *pipeEnd) closed() bool {
	select {
	case <-p.done:
		return true
	case <-p.peerDone:
		return true
	default:
		return false
	}
}

func (p *pipeEnd) Send(ctx context.Context, frame []byte) error {
	if p.closed() {
		return ErrClosed
	}
	b := append([]byte(nil), frame...)
	select {
	case p.out <- b:
		return nil
	case <-p.done:
		return ErrClosed
	case <-p.peerDone:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Recv(ctx context.Context) ([]byte, error) {
	select {
	case f := <-p.in:
		return f, nil
	case <-p.done:
		return nil, ErrClosed
	case <-p.peerDone:
		// deliver what the peer queued before it went away
		select {
		case f := <-p.in:
			return f, nil
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeEnd) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
