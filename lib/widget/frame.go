package widget

import (
	"github.com/picassohq/widget-embed/server/lib/layout"
	"github.com/picassohq/widget-embed/server/lib/protocol"
)

// Frame is the host's handle on the DOM it owns on the hosting page: the
// fixed-position container plus the widget iframe inside it. The real
// implementation relays each call to the page shim over the session socket;
// tests substitute an in-memory fake. No other component may mutate the
// container styles.
type Frame interface {
	// Mount creates the container and iframe with the given src and initial
	// geometry. Mounting an already-mounted frame is an error.
	Mount(src string, g layout.Geometry) error
	// ApplyGeometry writes the container style set.
	ApplyGeometry(g layout.Geometry) error
	// Post delivers an envelope to the iframe content window, targeted at
	// targetOrigin (never "*" once the origin is known).
	Post(env protocol.Envelope, targetOrigin string) error
	// Mounted reports whether the container and iframe currently exist.
	Mounted() bool
	// Unmount removes the container and iframe from the page.
	Unmount() error
}
