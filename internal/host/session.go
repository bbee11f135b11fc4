package host

import (
	"context"
	"sync"

	"github.com/gaspardpetit/figbridge/internal/logx"
	"github.com/gaspardpetit/figbridge/internal/metrics"
	"github.com/gaspardpetit/figbridge/internal/protocol"
	"github.com/gaspardpetit/figbridge/internal/transport"
)

// Serve runs one UI session over t: it emits init once, then executes inbound
// commands until t fails or ctx ends. Correlated commands run concurrently and
// answer with the state of their request.
func (e *Executor) Serve(ctx context.Context, t transport.Transport) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	if err := e.sendInit(ctx, t); err != nil {
		return err
	}

	for {
		frame, err := t.Recv(ctx)
		if err != nil {
			return err
		}
		env, err := protocol.Unwrap(frame)
		if err != nil {
			metrics.RecordDropped("host", "malformed")
			continue
		}
		spec, ok := protocol.Lookup(env.Type)
		if !ok || spec.Direction != protocol.UIToHost {
			metrics.RecordDropped("host", "unknown")
			logx.Log.Debug().Str("type", env.Type).Msg("ignoring envelope")
			continue
		}
		cmd, err := protocol.Decode(env)
		if err != nil {
			if spec.Kind == protocol.Correlated && env.State != "" {
				e.rejectRequest(ctx, t, env, err)
				continue
			}
			metrics.RecordDropped("host", "malformed")
			logx.Log.Debug().Err(err).Str("type", env.Type).Msg("ignoring envelope")
			continue
		}
		if spec.Kind == protocol.FireAndForget {
			e.Execute(ctx, cmd)
			continue
		}
		wg.Add(1)
		go func(state string, cmd protocol.Command) {
			defer wg.Done()
			resp, ok := e.Execute(ctx, cmd)
			if !ok {
				return
			}
			if err := reply(ctx, t, resp, state); err != nil {
				logx.Log.Error().Err(err).Str("type", resp.Type()).Str("state", state).Msg("send response")
			}
		}(env.State, cmd)
	}
}

// rejectRequest answers a correlated request whose payload could not be decoded
// with the empty result for its type.
func (e *Executor) rejectRequest(ctx context.Context, t transport.Transport, env protocol.Envelope, cause error) {
	var resp protocol.Command
	switch env.Type {
	case protocol.TypeListNodes:
		resp = protocol.ListNodesResponse{}
	case protocol.TypeExportNode:
		resp = protocol.ExportNodeResponse{}
		metrics.RecordExportFailure()
	default:
		return
	}
	logx.Log.Warn().Err(cause).Str("type", env.Type).Str("state", env.State).Msg("invalid request payload")
	if err := reply(ctx, t, resp, env.State); err != nil {
		logx.Log.Error().Err(err).Str("type", resp.Type()).Str("state", env.State).Msg("send response")
	}
}

func (e *Executor) sendInit(ctx context.Context, t transport.Transport) error {
	return reply(ctx, t, protocol.Init{Settings: e.InitSettings(ctx)}, "")
}

func reply(ctx context.Context, t transport.Transport, cmd protocol.Command, state string) error {
	env, err := protocol.Encode(cmd, state)
	if err != nil {
		return err
	}
	frame, err := protocol.Wrap(env)
	if err != nil {
		return err
	}
	return t.Send(ctx, frame)
}
