package widget

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/picassohq/widget-embed/server/lib/layout"
	"github.com/picassohq/widget-embed/server/lib/origin"
	"github.com/picassohq/widget-embed/server/lib/protocol"
)

var (
	ErrMissingTenant = errors.New("tenant hash is required")
	ErrMissingFrame  = errors.New("frame is required")
)

// EventCallback receives frame UI events after state handling. Callbacks run
// on the session goroutine and must not block.
type EventCallback func(event protocol.Event, payload json.RawMessage)

// Instance owns one embedded widget: the frame DOM, the message channel, and
// the layout state machine. TenantHash and the trusted origin are fixed at
// construction and never mutated.
type Instance struct {
	logger     *slog.Logger
	tenantHash string
	res        origin.Resolution
	frame      Frame
	channel    *Channel

	mu        sync.Mutex
	cfg       layout.Config
	state     State
	onEvent   EventCallback
	destroyed bool
}

// New constructs an instance. The widget always starts minimized.
func New(tenantHash string, res origin.Resolution, cfg layout.Config, vp layout.Viewport, frame Frame, logger *slog.Logger) (*Instance, error) {
	if tenantHash == "" {
		return nil, ErrMissingTenant
	}
	if frame == nil {
		return nil, ErrMissingFrame
	}
	if vp.Width == 0 || vp.Height == 0 {
		vp = layout.Viewport{Width: 1280, Height: 800}
	}
	return &Instance{
		logger:     logger,
		tenantHash: tenantHash,
		res:        res,
		frame:      frame,
		channel:    NewChannel(frame, res, tenantHash, logger),
		cfg:        layout.DefaultConfig().Merge(cfg),
		state:      State{Viewport: vp},
	}, nil
}

// Mount creates the container and iframe on the page with the minimized
// default geometry.
func (i *Instance) Mount() error {
	i.mu.Lock()
	g := layout.Compute(false, i.state.Callout, i.state.Viewport, i.cfg)
	i.mu.Unlock()
	if err := i.frame.Mount(i.res.FrameURL(i.tenantHash), g); err != nil {
		return fmt.Errorf("mount widget frame: %w", err)
	}
	return nil
}

func (i *Instance) TenantHash() string            { return i.tenantHash }
func (i *Instance) Resolution() origin.Resolution { return i.res }

// IsOpen reports whether the widget is currently expanded.
func (i *Instance) IsOpen() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state.Open
}

// Loaded reports whether the frame finished its full handshake.
func (i *Instance) Loaded() bool {
	return i.channel.Phase() == PhaseLoaded
}

// OnEvent registers the external event subscriber. Passing nil unregisters.
func (i *Instance) OnEvent(cb EventCallback) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.onEvent = cb
}

// Open expands the widget. No-op when already expanded.
func (i *Instance) Open() { i.dispatch(OpenRequested{}) }

// Close minimizes the widget. No-op when already minimized.
func (i *Instance) Close() { i.dispatch(CloseRequested{}) }

// Toggle flips between expanded and minimized.
func (i *Instance) Toggle() { i.dispatch(ToggleRequested{}) }

// HandleClick is the click-to-expand affordance; clicks while expanded are
// deliberately ignored so incidental clicks on widget chrome cannot collapse
// the chat.
func (i *Instance) HandleClick() { i.dispatch(ContainerClicked{}) }

// HandleViewport feeds a hosting page resize into the state machine.
// Geometry is re-evaluated only while expanded.
func (i *Instance) HandleViewport(width, height int) {
	i.dispatch(ViewportChanged{Width: width, Height: height})
}

// HandleFrameMessage routes one raw message from the page through origin and
// source validation, the handshake, the state machine, and finally the
// external subscriber.
func (i *Instance) HandleFrameMessage(msgOrigin, source string, data []byte) {
	inbound, ok := i.channel.Accept(msgOrigin, source, data)
	if !ok {
		return
	}

	switch in := inbound.(type) {
	case protocol.LegacyToggle:
		i.dispatch(ToggleRequested{})
	case protocol.FrameEvent:
		i.handleFrameEvent(in)
	}
}

func (i *Instance) handleFrameEvent(ev protocol.FrameEvent) {
	switch ev.Event {
	case protocol.EventChatOpened:
		i.dispatch(OpenRequested{})
	case protocol.EventChatClosed:
		i.dispatch(CloseRequested{})
	case protocol.EventResizeRequest:
		var p protocol.ResizeRequestPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.Width <= 0 || p.Height <= 0 {
			i.logger.Warn("ignoring resize request with bad payload", "err", err)
		} else {
			i.dispatch(FrameResizeRequested{Width: p.Width, Height: p.Height})
		}
	case protocol.EventCalloutStateChange:
		var p protocol.CalloutPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			i.logger.Warn("ignoring callout change with bad payload", "err", err)
		} else {
			i.dispatch(CalloutChanged{Callout: layout.Callout{Visible: p.Visible, Width: p.Width, Height: p.Height}})
		}
	case protocol.EventMessageSent:
		// Observational only; forwarded to the subscriber below.
	}

	i.mu.Lock()
	cb := i.onEvent
	i.mu.Unlock()
	if cb != nil {
		cb(ev.Event, ev.Payload)
	}
}

// UpdateConfig overlays the non-zero fields of p, re-applies geometry, and
// forwards the new configuration to the frame.
func (i *Instance) UpdateConfig(p layout.Config) {
	i.mu.Lock()
	if i.destroyed {
		i.mu.Unlock()
		return
	}
	i.cfg = i.cfg.Merge(p)
	cfg := i.cfg
	g := layout.Compute(i.state.Open, i.state.Callout, i.state.Viewport, i.cfg)
	i.mu.Unlock()

	if err := i.frame.ApplyGeometry(g); err != nil {
		i.logger.Warn("failed to apply geometry after config update", "err", err)
	}
	i.channel.Send(protocol.ActionUpdateConfig, cfg)
}

// HealthSnapshot is the structured health report for one instance.
type HealthSnapshot struct {
	InstanceExists   bool   `json:"instanceExists"`
	ContainerExists  bool   `json:"containerExists"`
	IframeExists     bool   `json:"iframeExists"`
	IsOpen           bool   `json:"isOpen"`
	TenantHash       string `json:"tenantHash"`
	IframeResponsive bool   `json:"iframeResponsive"`
	Healthy          bool   `json:"healthy"`
}

// Health returns a best-effort snapshot. It never panics: an unreachable
// content window simply reports iframeResponsive false.
func (i *Instance) Health() HealthSnapshot {
	i.mu.Lock()
	open := i.state.Open
	destroyed := i.destroyed
	i.mu.Unlock()

	mounted := !destroyed && i.frame.Mounted()
	responsive := !destroyed && i.channel.HealthProbe()
	return HealthSnapshot{
		InstanceExists:   true,
		ContainerExists:  mounted,
		IframeExists:     mounted,
		IsOpen:           open,
		TenantHash:       i.tenantHash,
		IframeResponsive: responsive,
		Healthy:          mounted && responsive,
	}
}

// Destroy releases the DOM nodes and stops all further dispatch. After
// Destroy the instance is inert; callbacks racing the teardown become no-ops.
func (i *Instance) Destroy() {
	i.mu.Lock()
	if i.destroyed {
		i.mu.Unlock()
		return
	}
	i.destroyed = true
	i.onEvent = nil
	i.mu.Unlock()

	if err := i.frame.Unmount(); err != nil {
		i.logger.Warn("failed to unmount frame", "err", err)
	}
}

// dispatch runs one event through the pure reducer and applies its effects.
func (i *Instance) dispatch(ev Event) {
	i.mu.Lock()
	if i.destroyed {
		i.mu.Unlock()
		i.logger.Warn("dropping event for destroyed instance")
		return
	}
	next, effects := Reduce(i.state, ev, i.cfg)
	i.state = next
	cfg := i.cfg
	vp := next.Viewport
	i.mu.Unlock()

	for _, eff := range effects {
		switch eff := eff.(type) {
		case ApplyGeometry:
			if err := i.frame.ApplyGeometry(eff.Geometry); err != nil {
				i.logger.Warn("failed to apply geometry", "err", err)
			}
		case SetExplicitSize:
			g := layout.Geometry{
				Width:        fmt.Sprintf("%dpx", eff.Width),
				Height:       fmt.Sprintf("%dpx", eff.Height),
				Bottom:       "20px",
				Right:        "20px",
				BorderRadius: "16px",
				ZIndex:       cfg.ZIndex,
				Breakpoint:   layout.Classify(vp.Width),
			}
			if err := i.frame.ApplyGeometry(g); err != nil {
				i.logger.Warn("failed to apply requested size", "err", err)
			}
		case SendCommand:
			i.channel.Send(eff.Action, eff.Payload)
		}
	}
}
