package widget

import (
	"log/slog"
	"sync"

	"github.com/picassohq/widget-embed/server/lib/origin"
	"github.com/picassohq/widget-embed/server/lib/protocol"
)

// FrameSource is the source tag the page shim attaches to messages whose
// event.source is the widget iframe's content window.
const FrameSource = "iframe"

// Handshake phases, strictly in order. Commands sent before the frame is
// initialized are buffered; there is no timeout or retry, so a frame that
// never reports ready leaves the channel permanently unready and health
// reporting surfaces it.
type Phase int

const (
	PhaseCreated Phase = iota
	PhaseReadyReceived
	PhaseInitialized
	PhaseLoaded
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseReadyReceived:
		return "ready_received"
	case PhaseInitialized:
		return "initialized"
	case PhaseLoaded:
		return "loaded"
	default:
		return "unknown"
	}
}

// commandBufferCap bounds how many commands queue up while the frame is still
// booting; beyond it the oldest are dropped with a warning.
const commandBufferCap = 32

// Channel is the origin-validated transport between the host and the widget
// frame. It owns the handshake and the outbound command path; inbound UI
// events pass through Accept to the instance's state machine.
type Channel struct {
	logger     *slog.Logger
	frame      Frame
	res        origin.Resolution
	tenantHash string
	clock      protocol.Clock

	mu       sync.Mutex
	phase    Phase
	buffered []protocol.Envelope
}

func NewChannel(frame Frame, res origin.Resolution, tenantHash string, logger *slog.Logger) *Channel {
	return &Channel{
		logger:     logger,
		frame:      frame,
		res:        res,
		tenantHash: tenantHash,
		phase:      PhaseCreated,
	}
}

func (c *Channel) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Ready reports whether the frame has completed the init step of the
// handshake and can receive commands directly.
func (c *Channel) Ready() bool {
	return c.Phase() >= PhaseInitialized
}

// Send posts a command to the frame. Before the handshake's init step the
// command is buffered; buffer overflow drops the oldest command with a
// warning. Send never returns an error to the caller.
func (c *Channel) Send(action protocol.Action, payload any) {
	env, err := protocol.NewCommand(action, payload, c.clock.Now())
	if err != nil {
		c.logger.Warn("dropping unmarshalable command", "action", action, "err", err)
		return
	}

	c.mu.Lock()
	if c.phase < PhaseInitialized {
		if len(c.buffered) >= commandBufferCap {
			dropped := c.buffered[0]
			c.buffered = c.buffered[1:]
			c.logger.Warn("command buffer full, dropping oldest", "action", dropped.Action)
		}
		c.buffered = append(c.buffered, env)
		c.mu.Unlock()
		c.logger.Warn("frame not ready, buffering command", "action", action, "phase", c.phase.String())
		return
	}
	c.mu.Unlock()

	if err := c.frame.Post(env, c.res.TrustedOrigin); err != nil {
		c.logger.Warn("failed to post command to frame", "action", action, "err", err)
	}
}

// HealthProbe attempts a best-effort HEALTH_CHECK post. It reports false when
// the handshake has not completed or the content window is unreachable; it
// never panics or errors.
func (c *Channel) HealthProbe() bool {
	if !c.Ready() {
		return false
	}
	env, err := protocol.NewCommand(protocol.ActionHealthCheck, nil, c.clock.Now())
	if err != nil {
		return false
	}
	return c.frame.Post(env, c.res.TrustedOrigin) == nil
}

// Accept validates and parses one inbound message from the page. It rejects
// (drops, logs) mismatched origins and sources, advances the handshake on
// lifecycle messages, and returns dispatchable UI events to the caller. The
// returned bool is false whenever there is nothing for the caller to act on.
func (c *Channel) Accept(msgOrigin, source string, data []byte) (protocol.Inbound, bool) {
	if !c.res.AllowsOrigin(msgOrigin) {
		c.logger.Warn("rejecting message from untrusted origin", "origin", msgOrigin, "trusted", c.res.TrustedOrigin)
		return nil, false
	}
	if source != FrameSource {
		c.logger.Warn("rejecting message from unexpected source", "source", source)
		return nil, false
	}

	inbound, err := protocol.ParseInbound(data)
	if err != nil {
		c.logger.Warn("rejecting malformed frame message", "err", err)
		return nil, false
	}

	switch in := inbound.(type) {
	case protocol.FrameReady:
		c.handleFrameReady()
		return nil, false
	case protocol.FrameLoaded:
		c.handleFrameLoaded()
		return nil, false
	case protocol.Unknown:
		c.logger.Warn("ignoring unknown frame message", "type", in.Type)
		return nil, false
	default:
		return inbound, true
	}
}

func (c *Channel) handleFrameReady() {
	c.mu.Lock()
	if c.phase != PhaseCreated {
		c.mu.Unlock()
		c.logger.Warn("duplicate frame ready, ignoring", "phase", c.phase.String())
		return
	}
	c.phase = PhaseReadyReceived
	c.mu.Unlock()

	env, err := protocol.NewInit(protocol.InitPayload{TenantHash: c.tenantHash, SkipConfigWait: true}, c.clock.Now())
	if err != nil {
		c.logger.Warn("failed to build init envelope", "err", err)
		return
	}
	if err := c.frame.Post(env, c.res.TrustedOrigin); err != nil {
		c.logger.Warn("failed to post init to frame", "err", err)
		return
	}

	c.mu.Lock()
	c.phase = PhaseInitialized
	pending := c.buffered
	c.buffered = nil
	c.mu.Unlock()

	for _, env := range pending {
		if err := c.frame.Post(env, c.res.TrustedOrigin); err != nil {
			c.logger.Warn("failed to flush buffered command", "action", env.Action, "err", err)
		}
	}
}

func (c *Channel) handleFrameLoaded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseInitialized {
		c.logger.Warn("frame loaded out of order, ignoring", "phase", c.phase.String())
		return
	}
	c.phase = PhaseLoaded
}
