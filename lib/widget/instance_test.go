package widget

import (
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picassohq/widget-embed/server/lib/layout"
	"github.com/picassohq/widget-embed/server/lib/protocol"
)

func newTestInstance(t *testing.T, vp layout.Viewport) (*Instance, *fakeFrame) {
	t.Helper()
	frame := &fakeFrame{}
	inst, err := New("abc123", prodResolution(), layout.Config{}, vp, frame, slog.Default())
	require.NoError(t, err)
	require.NoError(t, inst.Mount())
	return inst, frame
}

func completeHandshake(inst *Instance) {
	inst.HandleFrameMessage(testTrusted, FrameSource, readyEnvelope())
	inst.HandleFrameMessage(testTrusted, FrameSource, loadedEnvelope())
}

func TestNewRequiresTenantHash(t *testing.T) {
	_, err := New("", prodResolution(), layout.Config{}, layout.Viewport{}, &fakeFrame{}, slog.Default())
	require.ErrorIs(t, err, ErrMissingTenant)
}

func TestColdStart(t *testing.T) {
	inst, frame := newTestInstance(t, layout.Viewport{Width: 1440, Height: 900})

	assert.True(t, frame.Mounted())
	assert.True(t, strings.HasSuffix(frame.src, "widget-frame.html?t=abc123"), "got src %q", frame.src)
	assert.False(t, inst.IsOpen(), "instance always starts minimized")

	// Before the handshake the instance exists but the frame is unresponsive.
	h := inst.Health()
	assert.True(t, h.InstanceExists)
	assert.True(t, h.ContainerExists)
	assert.False(t, h.IframeResponsive)
	assert.False(t, h.Healthy)
	assert.Equal(t, "abc123", h.TenantHash)
}

func TestHandshakeSendsInitToTrustedOrigin(t *testing.T) {
	inst, frame := newTestInstance(t, layout.Viewport{Width: 1440, Height: 900})
	inst.HandleFrameMessage(testTrusted, FrameSource, readyEnvelope())

	posted := frame.postedEnvelopes()
	require.Len(t, posted, 1)
	assert.Equal(t, protocol.TypeInit, posted[0].env.Type)
	assert.Equal(t, testTrusted, posted[0].targetOrigin)

	var p protocol.InitPayload
	require.NoError(t, json.Unmarshal(posted[0].env.Payload, &p))
	assert.Equal(t, "abc123", p.TenantHash)

	assert.False(t, inst.Loaded())
	inst.HandleFrameMessage(testTrusted, FrameSource, loadedEnvelope())
	assert.True(t, inst.Loaded())
}

func TestMobileExpand(t *testing.T) {
	inst, frame := newTestInstance(t, layout.Viewport{Width: 400, Height: 800})
	completeHandshake(inst)

	inst.Open()
	require.True(t, inst.IsOpen())

	g := frame.lastGeometry()
	assert.Equal(t, "100vw", g.Width)
	assert.Equal(t, "100dvh", g.Height)
	assert.Equal(t, "0", g.BorderRadius)

	posted := frame.postedEnvelopes()
	last := posted[len(posted)-1]
	require.Equal(t, protocol.ActionSizeChange, last.env.Action)
	var p protocol.SizeChangePayload
	require.NoError(t, json.Unmarshal(last.env.Payload, &p))
	assert.Equal(t, "mobile", p.Size)
	assert.True(t, p.IsMobile)
	assert.False(t, p.IsTablet)
}

func TestUntrustedOriginNeverChangesStateOrReachesSubscriber(t *testing.T) {
	inst, _ := newTestInstance(t, layout.Viewport{Width: 1440, Height: 900})
	completeHandshake(inst)

	var callbacks int
	inst.OnEvent(func(protocol.Event, json.RawMessage) { callbacks++ })

	inst.HandleFrameMessage("https://evil.example.com", FrameSource,
		[]byte(`{"type":"PICASSO_EVENT","event":"CHAT_OPENED"}`))

	assert.False(t, inst.IsOpen())
	assert.Zero(t, callbacks)
}

func TestFrameEventsDriveStateAndSubscriber(t *testing.T) {
	inst, _ := newTestInstance(t, layout.Viewport{Width: 1440, Height: 900})
	completeHandshake(inst)

	var events []protocol.Event
	inst.OnEvent(func(ev protocol.Event, _ json.RawMessage) { events = append(events, ev) })

	inst.HandleFrameMessage(testTrusted, FrameSource, []byte(`{"type":"PICASSO_EVENT","event":"CHAT_OPENED"}`))
	assert.True(t, inst.IsOpen())

	inst.HandleFrameMessage(testTrusted, FrameSource, []byte(`{"type":"PICASSO_EVENT","event":"CHAT_CLOSED"}`))
	assert.False(t, inst.IsOpen())

	inst.HandleFrameMessage(testTrusted, FrameSource, []byte(`{"type":"PICASSO_EVENT","event":"MESSAGE_SENT"}`))

	assert.Equal(t, []protocol.Event{
		protocol.EventChatOpened,
		protocol.EventChatClosed,
		protocol.EventMessageSent,
	}, events)
}

func TestLegacyToggleMessage(t *testing.T) {
	inst, _ := newTestInstance(t, layout.Viewport{Width: 1440, Height: 900})
	completeHandshake(inst)

	inst.HandleFrameMessage(testTrusted, FrameSource, []byte(`{"type":"toggle"}`))
	assert.True(t, inst.IsOpen())
	inst.HandleFrameMessage(testTrusted, FrameSource, []byte(`{"type":"toggle"}`))
	assert.False(t, inst.IsOpen())
}

func TestResizeRequestHonoredOnlyWhileExpanded(t *testing.T) {
	inst, frame := newTestInstance(t, layout.Viewport{Width: 1440, Height: 900})
	completeHandshake(inst)

	resize := []byte(`{"type":"PICASSO_EVENT","event":"RESIZE_REQUEST","payload":{"width":500,"height":720}}`)

	before := len(frame.applied)
	inst.HandleFrameMessage(testTrusted, FrameSource, resize)
	assert.Len(t, frame.applied, before, "ignored while minimized")

	inst.Open()
	inst.HandleFrameMessage(testTrusted, FrameSource, resize)
	g := frame.lastGeometry()
	assert.Equal(t, "500px", g.Width)
	assert.Equal(t, "720px", g.Height)
}

func TestCalloutChangeWhileMinimizedResizesContainer(t *testing.T) {
	inst, frame := newTestInstance(t, layout.Viewport{Width: 1440, Height: 900})
	completeHandshake(inst)

	inst.HandleFrameMessage(testTrusted, FrameSource,
		[]byte(`{"type":"PICASSO_EVENT","event":"CALLOUT_STATE_CHANGE","payload":{"visible":true,"width":360,"height":150}}`))

	g := frame.lastGeometry()
	assert.Equal(t, "450px", g.Width)
	assert.Equal(t, "170px", g.Height)
	assert.Equal(t, "16px", g.BorderRadius)
}

func TestCalloutChangeWhileExpandedLeavesGeometryAlone(t *testing.T) {
	inst, frame := newTestInstance(t, layout.Viewport{Width: 1440, Height: 900})
	completeHandshake(inst)
	inst.Open()

	before := frame.lastGeometry()
	inst.HandleFrameMessage(testTrusted, FrameSource,
		[]byte(`{"type":"PICASSO_EVENT","event":"CALLOUT_STATE_CHANGE","payload":{"visible":true,"width":360,"height":150}}`))
	assert.Equal(t, before, frame.lastGeometry())

	// The callout reappears when the widget minimizes again.
	inst.Close()
	g := frame.lastGeometry()
	assert.Equal(t, "450px", g.Width)
}

func TestClickToExpand(t *testing.T) {
	inst, _ := newTestInstance(t, layout.Viewport{Width: 1440, Height: 900})
	completeHandshake(inst)

	inst.HandleClick()
	assert.True(t, inst.IsOpen())
	inst.HandleClick()
	assert.True(t, inst.IsOpen(), "clicks never minimize")
}

func TestUpdateConfig(t *testing.T) {
	inst, frame := newTestInstance(t, layout.Viewport{Width: 1440, Height: 900})
	completeHandshake(inst)
	inst.Open()

	inst.UpdateConfig(layout.Config{ExpandedWidth: "480px"})
	assert.Equal(t, "480px", frame.lastGeometry().Width)

	posted := frame.postedEnvelopes()
	last := posted[len(posted)-1]
	assert.Equal(t, protocol.ActionUpdateConfig, last.env.Action)
}

func TestDestroyDetachesEverything(t *testing.T) {
	inst, frame := newTestInstance(t, layout.Viewport{Width: 1440, Height: 900})
	completeHandshake(inst)

	inst.Destroy()
	assert.False(t, frame.Mounted())

	// Late callbacks against the torn-down instance are no-ops.
	posted := len(frame.postedEnvelopes())
	inst.Open()
	inst.HandleClick()
	assert.False(t, inst.IsOpen())
	assert.Len(t, frame.postedEnvelopes(), posted)

	h := inst.Health()
	assert.False(t, h.Healthy)
	assert.False(t, h.ContainerExists)
}
