// Package layout computes the widget container geometry for every combination
// of open/minimized state, callout overlay, and viewport breakpoint. Compute
// is pure; the DOM write happens in the caller.
package layout

import "fmt"

// Breakpoint classifies the hosting page viewport.
type Breakpoint string

const (
	Mobile  Breakpoint = "mobile"
	Tablet  Breakpoint = "tablet"
	Desktop Breakpoint = "desktop"
)

// Breakpoint boundaries, inclusive on the lower class.
const (
	mobileMaxWidth = 768
	tabletMaxWidth = 1200
)

// Classify maps a viewport width to its breakpoint. Widths at exactly 768 are
// mobile and at exactly 1200 are tablet.
func Classify(viewportWidth int) Breakpoint {
	switch {
	case viewportWidth <= mobileMaxWidth:
		return Mobile
	case viewportWidth <= tabletMaxWidth:
		return Tablet
	default:
		return Desktop
	}
}

// Viewport is the hosting page's visible area in CSS pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Callout describes the optional overlay shown next to the minimized toggle.
type Callout struct {
	Visible bool `json:"visible"`
	Width   int  `json:"width"`
	Height  int  `json:"height"`
}

// Config is the per-tenant widget appearance configuration.
type Config struct {
	Position       string `json:"position"`
	MinimizedSize  string `json:"minimizedSize"`
	ExpandedWidth  string `json:"expandedWidth"`
	ExpandedHeight string `json:"expandedHeight"`
	ZIndex         int    `json:"zIndex"`
}

// DefaultConfig returns the stock bottom-right widget appearance. The
// minimized square leaves room for the toggle control plus the notification
// badge overflow.
func DefaultConfig() Config {
	return Config{
		Position:       "bottom-right",
		MinimizedSize:  "90px",
		ExpandedWidth:  "400px",
		ExpandedHeight: "600px",
		ZIndex:         999999,
	}
}

// Merge overlays the non-zero fields of p onto c.
func (c Config) Merge(p Config) Config {
	if p.Position != "" {
		c.Position = p.Position
	}
	if p.MinimizedSize != "" {
		c.MinimizedSize = p.MinimizedSize
	}
	if p.ExpandedWidth != "" {
		c.ExpandedWidth = p.ExpandedWidth
	}
	if p.ExpandedHeight != "" {
		c.ExpandedHeight = p.ExpandedHeight
	}
	if p.ZIndex != 0 {
		c.ZIndex = p.ZIndex
	}
	return c
}

// Geometry is the concrete style set the page shim writes onto the container.
type Geometry struct {
	Width        string     `json:"width"`
	Height       string     `json:"height"`
	Bottom       string     `json:"bottom"`
	Right        string     `json:"right"`
	BorderRadius string     `json:"borderRadius"`
	ZIndex       int        `json:"zIndex"`
	Breakpoint   Breakpoint `json:"breakpoint"`
}

const anchorMargin = "20px"

// Compute derives the container geometry for the current widget state. The
// callout sizing rule applies only while minimized; while expanded the callout
// has no effect on geometry.
func Compute(open bool, callout Callout, vp Viewport, cfg Config) Geometry {
	bp := Classify(vp.Width)
	if !open {
		return minimized(callout, cfg, bp)
	}
	switch bp {
	case Mobile:
		return Geometry{
			Width:        "100vw",
			Height:       "100dvh", // dynamic unit tolerates mobile browser chrome
			Bottom:       "0",
			Right:        "0",
			BorderRadius: "0",
			ZIndex:       cfg.ZIndex,
			Breakpoint:   Mobile,
		}
	case Tablet:
		w := clamp(360, vp.Width/2, 480)
		if max := vp.Width - 40; w > max {
			w = max
		}
		h := clamp(480, vp.Height-120, 640)
		if max := vp.Height - 80; h > max {
			h = max
		}
		return Geometry{
			Width:        px(w),
			Height:       px(h),
			Bottom:       anchorMargin,
			Right:        anchorMargin,
			BorderRadius: "16px",
			ZIndex:       cfg.ZIndex,
			Breakpoint:   Tablet,
		}
	default:
		return Geometry{
			Width:        cfg.ExpandedWidth,
			Height:       cfg.ExpandedHeight,
			Bottom:       anchorMargin,
			Right:        anchorMargin,
			BorderRadius: "16px",
			ZIndex:       cfg.ZIndex,
			Breakpoint:   Desktop,
		}
	}
}

func minimized(callout Callout, cfg Config, bp Breakpoint) Geometry {
	if callout.Visible {
		w := callout.Width + 90
		if w < 390 {
			w = 390
		}
		h := callout.Height + 20
		if h < 90 {
			h = 90
		}
		return Geometry{
			Width:        px(w),
			Height:       px(h),
			Bottom:       anchorMargin,
			Right:        anchorMargin,
			BorderRadius: "16px",
			ZIndex:       cfg.ZIndex,
			Breakpoint:   bp,
		}
	}
	return Geometry{
		Width:        cfg.MinimizedSize,
		Height:       cfg.MinimizedSize,
		Bottom:       anchorMargin,
		Right:        anchorMargin,
		BorderRadius: "50%",
		ZIndex:       cfg.ZIndex,
		Breakpoint:   bp,
	}
}

func clamp(lo, v, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func px(v int) string {
	return fmt.Sprintf("%dpx", v)
}
