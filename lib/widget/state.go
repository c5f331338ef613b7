package widget

import (
	"github.com/picassohq/widget-embed/server/lib/layout"
	"github.com/picassohq/widget-embed/server/lib/protocol"
)

// State is the widget's layout-relevant state. The zero value is a minimized
// widget with the callout hidden; an instance always starts minimized.
type State struct {
	Open     bool
	Callout  layout.Callout
	Viewport layout.Viewport
}

// Event is the closed input alphabet of the widget state machine. Adapter
// callbacks (the session read loop, click and resize forwarding) translate
// raw browser input into these.
type Event interface{ isEvent() }

type (
	// OpenRequested expands the widget. No-op while already expanded.
	OpenRequested struct{}
	// CloseRequested minimizes the widget. No-op while already minimized.
	CloseRequested struct{}
	// ToggleRequested flips between expanded and minimized.
	ToggleRequested struct{}
	// ContainerClicked is a direct click/touch on the container. It expands a
	// minimized widget; clicks while expanded never minimize.
	ContainerClicked struct{}
	// ViewportChanged reports a hosting page resize.
	ViewportChanged struct{ Width, Height int }
	// CalloutChanged updates the callout overlay descriptor.
	CalloutChanged struct{ Callout layout.Callout }
	// FrameResizeRequested carries explicit dimensions requested by the frame.
	// Honored only while expanded.
	FrameResizeRequested struct{ Width, Height int }
)

func (OpenRequested) isEvent()        {}
func (CloseRequested) isEvent()       {}
func (ToggleRequested) isEvent()      {}
func (ContainerClicked) isEvent()     {}
func (ViewportChanged) isEvent()      {}
func (CalloutChanged) isEvent()       {}
func (FrameResizeRequested) isEvent() {}

// Effect is a side effect the caller must perform after a transition.
type Effect interface{ isEffect() }

type (
	// ApplyGeometry writes container styles through the Frame.
	ApplyGeometry struct{ Geometry layout.Geometry }
	// SetExplicitSize sets the container to frame-requested dimensions.
	SetExplicitSize struct{ Width, Height int }
	// SendCommand posts a command envelope to the frame.
	SendCommand struct {
		Action  protocol.Action
		Payload any
	}
)

func (ApplyGeometry) isEffect()   {}
func (SetExplicitSize) isEffect() {}
func (SendCommand) isEffect()     {}

// Reduce is the pure transition function of the widget state machine. It
// performs no I/O; callers apply the returned effects in order. Transitions
// are no-op guarded so racing inputs (a close racing an inbound callout
// change, a double toggle) always settle in a consistent state.
func Reduce(s State, ev Event, cfg layout.Config) (State, []Effect) {
	switch ev := ev.(type) {
	case OpenRequested:
		return expand(s, cfg)
	case CloseRequested:
		return minimize(s, cfg)
	case ToggleRequested:
		if s.Open {
			return minimize(s, cfg)
		}
		return expand(s, cfg)
	case ContainerClicked:
		if s.Open {
			return s, nil
		}
		return expand(s, cfg)
	case ViewportChanged:
		prev := layout.Classify(s.Viewport.Width)
		s.Viewport = layout.Viewport{Width: ev.Width, Height: ev.Height}
		if !s.Open {
			// Minimized geometry is viewport-independent.
			return s, nil
		}
		g := layout.Compute(true, s.Callout, s.Viewport, cfg)
		effects := []Effect{ApplyGeometry{g}}
		if g.Breakpoint != prev {
			effects = append(effects, sizeChange(g.Breakpoint))
		}
		return s, effects
	case CalloutChanged:
		s.Callout = ev.Callout
		if s.Open {
			// The callout sizing rule applies only while minimized.
			return s, nil
		}
		return s, []Effect{ApplyGeometry{layout.Compute(false, s.Callout, s.Viewport, cfg)}}
	case FrameResizeRequested:
		if !s.Open {
			return s, nil
		}
		return s, []Effect{SetExplicitSize{Width: ev.Width, Height: ev.Height}}
	default:
		return s, nil
	}
}

func expand(s State, cfg layout.Config) (State, []Effect) {
	if s.Open {
		return s, nil
	}
	s.Open = true
	g := layout.Compute(true, s.Callout, s.Viewport, cfg)
	return s, []Effect{
		ApplyGeometry{g},
		sizeChange(g.Breakpoint),
	}
}

// minimize resets to the minimized default, tells the frame to minimize, then
// re-applies callout geometry when the callout is visible.
func minimize(s State, cfg layout.Config) (State, []Effect) {
	if !s.Open {
		return s, nil
	}
	s.Open = false
	effects := []Effect{
		ApplyGeometry{layout.Compute(false, layout.Callout{}, s.Viewport, cfg)},
		SendCommand{Action: protocol.ActionMinimize},
	}
	if s.Callout.Visible {
		effects = append(effects, ApplyGeometry{layout.Compute(false, s.Callout, s.Viewport, cfg)})
	}
	effects = append(effects, sizeChange(layout.Classify(s.Viewport.Width)))
	return s, effects
}

func sizeChange(bp layout.Breakpoint) SendCommand {
	return SendCommand{
		Action: protocol.ActionSizeChange,
		Payload: protocol.SizeChangePayload{
			Size:     string(bp),
			IsMobile: bp == layout.Mobile,
			IsTablet: bp == layout.Tablet,
		},
	}
}
