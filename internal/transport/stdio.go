package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Stdio frames messages over a byte stream using a 4-byte little-endian
// length prefix, the browser native messaging layout. It lets the host run as a
// child process of the UI.
type Stdio struct {
	w      io.Writer
	closer io.Closer

	wmu    sync.Mutex
	frames chan stdioFrame
	done   chan struct{}
	once   sync.Once
}

type stdioFrame struct {
	data []byte
	err  error
}

// NewStdio starts reading frames from r. closer, when non-nil, is closed by Close.
func NewStdio(r io.Reader, w io.Writer, closer io.Closer) *Stdio {
	s := &Stdio{w: w, closer: closer, frames: make(chan stdioFrame, 16), done: make(chan struct{})}
	go s.readLoop(r)
	return s
}

func (s *Stdio) readLoop(r io.Reader) {
	for {
		data, err := ReadFrame(r)
		select {
		case s.frames <- stdioFrame{data: data, err: err}:
		case <-s.done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *Stdio) Send(ctx context.Context, frame []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return WriteFrame(s.w, frame)
}

func (s *Stdio) Recv(ctx context.Context) ([]byte, error) {
	select {
	case f := <-s.frames:
		if errors.Is(f.err, io.EOF) {
			return nil, ErrClosed
		}
		return f.data, f.err
	case <-s.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Stdio) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		if s.closer != nil {
			err = s.closer.Close()
		}
	})
	return err
}

// ReadFrame reads one length-prefixed frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, fmt.Errorf("invalid frame length: 0")
	}
	if length > MaxFrameSize {
		return nil, fmt.Errorf("frame too large: %d bytes (max %d)", length, MaxFrameSize)
	}
	msg := make([]byte, length)
	if _, err := io.ReadFull(r, msg); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return msg, nil
}

// WriteFrame writes one length-prefixed frame.
func WriteFrame(w io.Writer, frame []byte) error {
	if len(frame) == 0 {
		return fmt.Errorf("invalid frame length: 0")
	}
	if len(frame) > MaxFrameSize {
		return fmt.Errorf("frame too large: %d bytes (max %d)", len(frame), MaxFrameSize)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(frame))); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}
