package bridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gaspardpetit/figbridge/internal/logx"
	"github.com/gaspardpetit/figbridge/internal/protocol"
)

// ListNodes returns summaries of the visible nodes, from the selection only
// when onlySelected is set. An expired call yields an empty list.
func (c *Client) ListNodes(ctx context.Context, onlySelected bool) ([]protocol.NodeSummary, error) {
	env, ok, err := c.call(ctx, protocol.ListNodes{OnlySelected: onlySelected}, "")
	if err != nil {
		return nil, err
	}
	if !ok {
		return []protocol.NodeSummary{}, nil
	}
	cmd, err := protocol.Decode(env)
	if err != nil {
		logx.Log.Debug().Err(err).Str("state", env.State).Msg("list-nodes response payload ignored")
		return []protocol.NodeSummary{}, nil
	}
	return cmd.(protocol.ListNodesResponse).Nodes, nil
}

// ExportNode returns the encoded image of node id. A nil slice means the host
// produced no result: missing node, render failure or expiry look the same.
func (c *Client) ExportNode(ctx context.Context, id string, settings protocol.ExportOverride) ([]byte, error) {
	env, ok, err := c.call(ctx, protocol.ExportNode{ID: id, Settings: settings}, id)
	if err != nil || !ok {
		return nil, err
	}
	cmd, err := protocol.Decode(env)
	if err != nil {
		logx.Log.Debug().Err(err).Str("state", env.State).Msg("export-node response payload ignored")
		return nil, nil
	}
	return cmd.(protocol.ExportNodeResponse).Image, nil
}

// Notify shows a host notification. A zero timeout uses DefaultNotifyTimeout.
func (c *Client) Notify(ctx context.Context, message string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultNotifyTimeout
	}
	return c.fire(ctx, protocol.Notify{Message: message, Timeout: timeout})
}

// Close asks the host to close the UI window.
func (c *Client) Close(ctx context.Context) error {
	return c.fire(ctx, protocol.Close{})
}

// Resize asks the host to resize the UI window. Zero keeps the host default.
func (c *Client) Resize(ctx context.Context, width, height int) error {
	return c.fire(ctx, protocol.Resize{Width: width, Height: height})
}

// SaveSettings asks the host to persist the settings blob.
func (c *Client) SaveSettings(ctx context.Context, blob json.RawMessage) error {
	return c.fire(ctx, protocol.SaveSettings{Settings: blob})
}

// Measurer reports the rendered height of the UI container once pending
// layout work has been applied. ok is false when there is no container.
type Measurer interface {
	MeasureHeight(ctx context.Context) (height int, ok bool)
}

// MeasurerFunc adapts a function to the Measurer interface.
type MeasurerFunc func(context.Context) (int, bool)

func (f MeasurerFunc) MeasureHeight(ctx context.Context) (int, bool) { return f(ctx) }

// AutoResize fits the window height to the measured content plus extraHeight,
// keeping the default width. Nothing is sent when there is no container.
func (c *Client) AutoResize(ctx context.Context, m Measurer, extraHeight int) error {
	h, ok := m.MeasureHeight(ctx)
	if !ok {
		return nil
	}
	return c.Resize(ctx, 0, h+extraHeight)
}
