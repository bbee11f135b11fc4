// Package protocol defines the envelopes exchanged between the host and the UI
// and the closed vocabulary of commands they carry.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed indicates a frame or payload that does not have the expected shape.
	ErrMalformed = errors.New("malformed envelope")
	// ErrUnknownCommand indicates an envelope whose type is not part of the vocabulary.
	ErrUnknownCommand = errors.New("unknown command")
)

// Envelope is the unit of communication between the two contexts.
// State is only set on correlated request/response pairs.
type Envelope struct {
	Type  string          `json:"type"`
	State string          `json:"state,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// HasData reports whether the envelope carries a non-null payload.
func (e Envelope) HasData() bool {
	d := bytes.TrimSpace(e.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

type container struct {
	PluginMessage *Envelope `json:"pluginMessage"`
}

// Wrap encodes env inside the transport container.
func Wrap(env Envelope) ([]byte, error) {
	if env.Type == "" {
		return nil, fmt.Errorf("%w: empty type", ErrMalformed)
	}
	return json.Marshal(container{PluginMessage: &env})
}

// Unwrap extracts the envelope from a transport frame. Frames that are not
// JSON objects, lack the container key or carry no type are malformed.
func Unwrap(frame []byte) (Envelope, error) {
	var c container
	if err := json.Unmarshal(frame, &c); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if c.PluginMessage == nil || c.PluginMessage.Type == "" {
		return Envelope{}, ErrMalformed
	}
	return *c.PluginMessage, nil
}
