// Package bridge implements the UI side of the message bridge: correlated
// calls with per-request tokens, a fixed response window and fire-and-forget
// window commands.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gaspardpetit/figbridge/internal/logx"
	"github.com/gaspardpetit/figbridge/internal/metrics"
	"github.com/gaspardpetit/figbridge/internal/protocol"
	"github.com/gaspardpetit/figbridge/internal/transport"
)

const (
	// DefaultTimeout is how long a correlated call waits for its response.
	DefaultTimeout = 10 * time.Second
	// DefaultNotifyTimeout is used when Notify is called without a timeout.
	DefaultNotifyTimeout = 3500 * time.Millisecond
	// DefaultExtraHeight is added to the measured content height by AutoResize.
	DefaultExtraHeight = 30
)

var (
	// ErrNotReady is returned for commands issued before the init handshake.
	ErrNotReady = errors.New("bridge: init not received")
	// ErrNotConnected is returned when no transport is attached.
	ErrNotConnected = errors.New("bridge: not connected")
)

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the response window of correlated calls.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithReady installs the bootstrap check consulted before every command.
func WithReady(ready func() bool) Option {
	return func(c *Client) { c.ready = ready }
}

// WithInbound receives every recognised envelope that is not a response,
// such as init.
func WithInbound(fn func(protocol.Envelope)) Option {
	return func(c *Client) { c.inbound = fn }
}

// WithTokenSource replaces the correlation token generator.
func WithTokenSource(fn func(prefix, subject string) string) Option {
	return func(c *Client) { c.newToken = fn }
}

// Client issues commands to the host over an attached transport.
type Client struct {
	timeout  time.Duration
	ready    func() bool
	inbound  func(protocol.Envelope)
	newToken func(prefix, subject string) string

	mu      sync.Mutex
	t       transport.Transport
	pending map[string]*pendingCall
}

type pendingCall struct {
	token    string
	command  string
	response string
	state    CallState
	issued   time.Time
	result   chan protocol.Envelope
}

// New constructs a Client. Attach a transport with Serve.
func New(opts ...Option) *Client {
	c := &Client{
		timeout:  DefaultTimeout,
		newToken: NewToken,
		pending:  map[string]*pendingCall{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewToken mints a correlation token from a command prefix, an optional
// subject and a random UUID.
func NewToken(prefix, subject string) string {
	if subject == "" {
		return prefix + ":" + uuid.NewString()
	}
	return prefix + ":" + subject + ":" + uuid.NewString()
}

// Pending returns the number of calls still waiting for a response.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Serve attaches t and routes inbound frames until t fails or ctx ends.
// Calls still pending when the transport goes away settle on their timeout.
func (c *Client) Serve(ctx context.Context, t transport.Transport) error {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.t == t {
			c.t = nil
		}
		c.mu.Unlock()
	}()

	for {
		frame, err := t.Recv(ctx)
		if err != nil {
			return err
		}
		env, err := protocol.Unwrap(frame)
		if err != nil {
			metrics.RecordDropped("ui", "malformed")
			logx.Log.Debug().Err(err).Msg("dropping inbound frame")
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env protocol.Envelope) {
	if protocol.IsResponse(env.Type) {
		if !c.resolve(env) {
			metrics.RecordDropped("ui", "uncorrelated")
			logx.Log.Debug().Str("type", env.Type).Str("state", env.State).Msg("dropping uncorrelated response")
		}
		return
	}
	spec, ok := protocol.Lookup(env.Type)
	if !ok || spec.Direction != protocol.HostToUI {
		metrics.RecordDropped("ui", "unknown")
		logx.Log.Debug().Str("type", env.Type).Msg("dropping unknown envelope")
		return
	}
	if c.inbound == nil {
		metrics.RecordDropped("ui", "unhandled")
		return
	}
	c.inbound(env)
}

// resolve hands env to the pending call whose token and expected response type match.
func (c *Client) resolve(env protocol.Envelope) bool {
	if env.State == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[env.State]
	if !ok || p.response != env.Type {
		return false
	}
	if !c.settleLocked(p, eventResponse) {
		return false
	}
	p.result <- env
	return true
}

func (c *Client) register(command, subject string) *pendingCall {
	response, _ := protocol.ResponseType(command)
	p := &pendingCall{
		command:  command,
		response: response,
		state:    StateIssued,
		issued:   time.Now(),
		result:   make(chan protocol.Envelope, 1),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		p.token = c.newToken(command, subject)
		if _, taken := c.pending[p.token]; !taken {
			break
		}
	}
	c.pending[p.token] = p
	metrics.BridgeCallStart()
	return p
}

// settleLocked moves p along event and releases its registry entry when the
// new state is terminal. It reports false when p already settled.
func (c *Client) settleLocked(p *pendingCall, event callEvent) bool {
	next, err := transition(p.state, event)
	if err != nil {
		return false
	}
	p.state = next
	if next.Terminal() {
		delete(c.pending, p.token)
		metrics.BridgeCallEnd(p.command, outcome(next), time.Since(p.issued))
	}
	return true
}

func (c *Client) settle(p *pendingCall, event callEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settleLocked(p, event)
}

func outcome(s CallState) string {
	switch s {
	case StateMatched:
		return metrics.OutcomeMatched
	case StateExpired:
		return metrics.OutcomeExpired
	case StateCancelled:
		return metrics.OutcomeCancelled
	default:
		return metrics.OutcomeSendError
	}
}

// call runs one correlated request. A call that sees no response within the
// timeout settles with ok=false and a nil error.
func (c *Client) call(ctx context.Context, cmd protocol.Command, subject string) (protocol.Envelope, bool, error) {
	if err := c.checkReady(); err != nil {
		return protocol.Envelope{}, false, err
	}
	p := c.register(cmd.Type(), subject)
	env, err := protocol.Encode(cmd, p.token)
	if err != nil {
		c.settle(p, eventSendFailed)
		return protocol.Envelope{}, false, err
	}
	c.settle(p, eventSent)
	if err := c.send(ctx, env); err != nil {
		if c.settle(p, eventSendFailed) {
			return protocol.Envelope{}, false, err
		}
		// a response raced the send error
		return <-p.result, true, nil
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case resp := <-p.result:
		return resp, true, nil
	case <-timer.C:
		if c.settle(p, eventTimeout) {
			logx.Log.Warn().Str("type", p.command).Str("state", p.token).Dur("timeout", c.timeout).Msg("bridge call expired")
			return protocol.Envelope{}, false, nil
		}
		return <-p.result, true, nil
	case <-ctx.Done():
		if c.settle(p, eventCancel) {
			return protocol.Envelope{}, false, ctx.Err()
		}
		return <-p.result, true, nil
	}
}

func (c *Client) checkReady() error {
	if c.ready != nil && !c.ready() {
		return ErrNotReady
	}
	return nil
}

func (c *Client) send(ctx context.Context, env protocol.Envelope) error {
	c.mu.Lock()
	t := c.t
	c.mu.Unlock()
	if t == nil {
		return ErrNotConnected
	}
	frame, err := protocol.Wrap(env)
	if err != nil {
		return err
	}
	if err := t.Send(ctx, frame); err != nil {
		return fmt.Errorf("send %s: %w", env.Type, err)
	}
	return nil
}

func (c *Client) fire(ctx context.Context, cmd protocol.Command) error {
	if err := c.checkReady(); err != nil {
		return err
	}
	env, err := protocol.Encode(cmd, "")
	if err != nil {
		return err
	}
	return c.send(ctx, env)
}
