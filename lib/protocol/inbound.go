package protocol

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Inbound is the closed set of messages a frame can deliver to the host.
// Unknown shapes parse to Unknown rather than erroring so a misbehaving frame
// build can never break the dispatch loop.
type Inbound interface{ isInbound() }

// FrameReady is the frame's first message; it starts the handshake.
type FrameReady struct{}

// FrameLoaded is the frame's acknowledgment that initialization completed.
type FrameLoaded struct{}

// FrameEvent is a high-level UI event from the frame.
type FrameEvent struct {
	Event   Event
	Payload json.RawMessage
}

// LegacyToggle is the pre-envelope "toggle" message from older frame builds.
type LegacyToggle struct{}

// Unknown is any message type outside the contract.
type Unknown struct{ Type string }

func (FrameReady) isInbound()   {}
func (FrameLoaded) isInbound()  {}
func (FrameEvent) isInbound()   {}
func (LegacyToggle) isInbound() {}
func (Unknown) isInbound()      {}

// ParseInbound decodes a frame message into its tagged variant. Only malformed
// JSON is an error; contract violations come back as Unknown.
func ParseInbound(data []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode frame message: %w", err)
	}

	switch env.Type {
	case TypeFrameReady:
		return FrameReady{}, nil
	case TypeLoaded:
		return FrameLoaded{}, nil
	case TypeEvent:
		switch env.Event {
		case EventChatOpened, EventChatClosed, EventMessageSent,
			EventResizeRequest, EventCalloutStateChange:
			return FrameEvent{Event: env.Event, Payload: env.Payload}, nil
		default:
			return Unknown{Type: fmt.Sprintf("%s/%s", env.Type, env.Event)}, nil
		}
	case legacyToggle:
		return LegacyToggle{}, nil
	case legacyExpand:
		return FrameEvent{Event: EventChatOpened}, nil
	case legacyMinimize:
		return FrameEvent{Event: EventChatClosed}, nil
	case legacyResize:
		return FrameEvent{Event: EventResizeRequest, Payload: env.Payload}, nil
	default:
		return Unknown{Type: env.Type}, nil
	}
}

// Clock issues monotonically non-decreasing wall-clock millisecond timestamps
// for outbound envelopes.
type Clock struct {
	mu   sync.Mutex
	last int64
}

func (c *Clock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UnixMilli()
	if now < c.last {
		now = c.last
	}
	c.last = now
	return now
}

// NewCommand builds an outbound PICASSO_COMMAND envelope.
func NewCommand(action Action, payload any, ts int64) (Envelope, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", action, err)
	}
	return Envelope{Type: TypeCommand, Action: action, Payload: raw, Timestamp: ts}, nil
}

// NewInit builds the PICASSO_INIT envelope carrying the tenant identity.
func NewInit(p InitPayload, ts int64) (Envelope, error) {
	raw, err := marshalPayload(p)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal init payload: %w", err)
	}
	return Envelope{Type: TypeInit, Payload: raw, Timestamp: ts}, nil
}

func marshalPayload(payload any) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	return json.Marshal(payload)
}
