// Package protocol defines the message contract between the widget host and
// the embedded frame, plus the shim session messages that carry it between the
// hosting page and this server.
package protocol

import "encoding/json"

// --- Host <-> frame envelope ---

// Envelope is the wire format for both directions of host<->frame traffic.
// Timestamp is wall-clock milliseconds, monotonically non-decreasing per
// sender; it exists for diagnostics only.
type Envelope struct {
	Type      string          `json:"type"`
	Action    Action          `json:"action,omitempty"`
	Event     Event           `json:"event,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Envelope types
const (
	TypeInit       = "PICASSO_INIT"
	TypeCommand    = "PICASSO_COMMAND"
	TypeFrameReady = "PICASSO_IFRAME_READY"
	TypeLoaded     = "PICASSO_LOADED"
	TypeEvent      = "PICASSO_EVENT"
)

// Legacy single-purpose types still emitted by older frame builds. They map
// onto the same transitions as their PICASSO_EVENT equivalents.
const (
	legacyToggle   = "toggle"
	legacyExpand   = "expand"
	legacyMinimize = "minimize"
	legacyResize   = "resize"
)

// Action is the closed set of host->frame commands.
type Action string

const (
	ActionOpenChat     Action = "OPEN_CHAT"
	ActionCloseChat    Action = "CLOSE_CHAT"
	ActionToggleChat   Action = "TOGGLE_CHAT"
	ActionUpdateConfig Action = "UPDATE_CONFIG"
	ActionSizeChange   Action = "SIZE_CHANGE"
	ActionMinimize     Action = "MINIMIZE"
	ActionHealthCheck  Action = "HEALTH_CHECK"
)

// Event is the closed set of frame->host events.
type Event string

const (
	EventChatOpened         Event = "CHAT_OPENED"
	EventChatClosed         Event = "CHAT_CLOSED"
	EventMessageSent        Event = "MESSAGE_SENT"
	EventResizeRequest      Event = "RESIZE_REQUEST"
	EventCalloutStateChange Event = "CALLOUT_STATE_CHANGE"
)

// --- Payloads ---

// InitPayload is sent once the frame reports ready.
type InitPayload struct {
	TenantHash     string `json:"tenantHash"`
	SkipConfigWait bool   `json:"skipConfigWait"`
}

// SizeChangePayload tells the frame which breakpoint the container adopted so
// the two never disagree about the active breakpoint.
type SizeChangePayload struct {
	Size     string `json:"size"`
	IsMobile bool   `json:"isMobile"`
	IsTablet bool   `json:"isTablet"`
}

// ResizeRequestPayload carries explicit dimensions requested by the frame.
type ResizeRequestPayload struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// CalloutPayload describes the callout overlay the frame wants shown while
// the widget is minimized.
type CalloutPayload struct {
	Visible bool `json:"visible"`
	Width   int  `json:"width"`
	Height  int  `json:"height"`
}

// --- Shim session messages (page shim <-> host) ---

// ShimMessage is a message sent from the page shim to the host session.
type ShimMessage struct {
	Type      string          `json:"type"`
	ScriptURL string          `json:"scriptUrl,omitempty"`
	PageURL   string          `json:"pageUrl,omitempty"`
	Tenant    string          `json:"tenant,omitempty"`
	Dev       bool            `json:"dev,omitempty"`
	Origin    string          `json:"origin,omitempty"`
	Source    string          `json:"source,omitempty"`
	Envelope  json.RawMessage `json:"envelope,omitempty"`
	Width     int             `json:"width,omitempty"`
	Height    int             `json:"height,omitempty"`
}

// Shim message types
const (
	ShimBoot        = "BOOT"
	ShimPageMessage = "PAGE_MESSAGE"
	ShimViewport    = "VIEWPORT"
	ShimClick       = "CLICK"
)

// HostMessage is a message sent from the host session to the page shim. The
// shim applies these verbatim; it makes no decisions of its own.
type HostMessage struct {
	Type         string          `json:"type"`
	Src          string          `json:"src,omitempty"`
	Geometry     json.RawMessage `json:"geometry,omitempty"`
	Envelope     *Envelope       `json:"envelope,omitempty"`
	TargetOrigin string          `json:"targetOrigin,omitempty"`
}

// Host message types
const (
	HostDomMount   = "DOM_MOUNT"
	HostDomApply   = "DOM_APPLY"
	HostRelay      = "RELAY"
	HostDomUnmount = "DOM_UNMOUNT"
)
