// Package widget implements the host side of the embeddable chat widget: the
// singleton public API, the instance state machine, the origin-validated
// message channel, and the frame abstraction over the hosting page DOM.
package widget

import (
	"log/slog"
	"sync"

	"github.com/picassohq/widget-embed/server/lib/layout"
	"github.com/picassohq/widget-embed/server/lib/origin"
)

// API is the public widget surface for one hosting page. It wraps at most one
// live Instance; a second Init returns the existing instance with a warning
// instead of creating another. Nothing here ever panics across the boundary —
// failures degrade to logged no-ops, and the only user-visible failure signal
// is an unhealthy snapshot.
type API struct {
	logger *slog.Logger

	mu   sync.Mutex
	inst *Instance
}

func NewAPI(logger *slog.Logger) *API {
	return &API{logger: logger}
}

// InitParams carries everything Init needs. Resolution comes from
// origin.Resolver; Frame from the transport layer.
type InitParams struct {
	TenantHash string
	Config     layout.Config
	Resolution origin.Resolution
	Viewport   layout.Viewport
	Frame      Frame
}

// Init creates and mounts the page's widget instance. A missing tenant hash
// aborts before any DOM mutation and no instance is created.
func (a *API) Init(p InitParams) (*Instance, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.inst != nil {
		a.logger.Warn("widget already initialized, returning existing instance",
			"tenant", a.inst.TenantHash(), "ignored_tenant", p.TenantHash)
		return a.inst, nil
	}

	inst, err := New(p.TenantHash, p.Resolution, p.Config, p.Viewport, p.Frame, a.logger)
	if err != nil {
		a.logger.Error("widget init failed", "err", err)
		return nil, err
	}
	if err := inst.Mount(); err != nil {
		// The instance stays registered but degraded; health reports it.
		a.logger.Warn("widget frame mount failed", "err", err)
	}
	a.inst = inst
	return inst, nil
}

// Instance returns the live instance, or nil.
func (a *API) Instance() *Instance {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inst
}

// Open expands the widget. No-op without an instance.
func (a *API) Open() {
	if inst := a.Instance(); inst != nil {
		inst.Open()
	}
}

// Close minimizes the widget. No-op without an instance.
func (a *API) Close() {
	if inst := a.Instance(); inst != nil {
		inst.Close()
	}
}

// Toggle flips the widget state. No-op without an instance.
func (a *API) Toggle() {
	if inst := a.Instance(); inst != nil {
		inst.Toggle()
	}
}

// IsOpen reports whether the widget is expanded.
func (a *API) IsOpen() bool {
	inst := a.Instance()
	return inst != nil && inst.IsOpen()
}

// IsLoaded reports whether the widget has been initialized on the page. It is
// true as soon as an instance exists, before the frame handshake completes.
func (a *API) IsLoaded() bool {
	return a.Instance() != nil
}

// UpdateConfig overlays a partial appearance config onto the live instance.
func (a *API) UpdateConfig(p layout.Config) {
	if inst := a.Instance(); inst != nil {
		inst.UpdateConfig(p)
	}
}

// OnEvent registers the single external event subscriber.
func (a *API) OnEvent(cb EventCallback) {
	if inst := a.Instance(); inst != nil {
		inst.OnEvent(cb)
	}
}

// Health returns the structured health snapshot. With no live instance every
// field is false.
func (a *API) Health() HealthSnapshot {
	inst := a.Instance()
	if inst == nil {
		return HealthSnapshot{}
	}
	return inst.Health()
}

// Destroy tears down the live instance. After Destroy a new Init is
// permitted.
func (a *API) Destroy() {
	a.mu.Lock()
	inst := a.inst
	a.inst = nil
	a.mu.Unlock()
	if inst != nil {
		inst.Destroy()
	}
}
