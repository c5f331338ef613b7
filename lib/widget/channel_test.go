package widget

import (
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picassohq/widget-embed/server/lib/layout"
	"github.com/picassohq/widget-embed/server/lib/origin"
	"github.com/picassohq/widget-embed/server/lib/protocol"
)

type postedEnvelope struct {
	env          protocol.Envelope
	targetOrigin string
}

// fakeFrame is an in-memory Frame for tests.
type fakeFrame struct {
	mu       sync.Mutex
	mounted  bool
	src      string
	applied  []layout.Geometry
	posted   []postedEnvelope
	failPost bool
}

func (f *fakeFrame) Mount(src string, g layout.Geometry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mounted {
		return errors.New("already mounted")
	}
	f.mounted = true
	f.src = src
	f.applied = append(f.applied, g)
	return nil
}

func (f *fakeFrame) ApplyGeometry(g layout.Geometry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, g)
	return nil
}

func (f *fakeFrame) Post(env protocol.Envelope, targetOrigin string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPost {
		return errors.New("content window gone")
	}
	f.posted = append(f.posted, postedEnvelope{env: env, targetOrigin: targetOrigin})
	return nil
}

func (f *fakeFrame) Mounted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mounted
}

func (f *fakeFrame) Unmount() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mounted = false
	return nil
}

func (f *fakeFrame) postedEnvelopes() []postedEnvelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]postedEnvelope(nil), f.posted...)
}

func (f *fakeFrame) lastGeometry() layout.Geometry {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.applied) == 0 {
		return layout.Geometry{}
	}
	return f.applied[len(f.applied)-1]
}

const testTrusted = "https://widget.picassochat.com"

func prodResolution() origin.Resolution {
	return origin.Resolution{
		Mode:          origin.ModeProduction,
		IframeBaseURL: testTrusted,
		TrustedOrigin: testTrusted,
	}
}

func newTestChannel(t *testing.T) (*Channel, *fakeFrame) {
	t.Helper()
	frame := &fakeFrame{mounted: true}
	return NewChannel(frame, prodResolution(), "abc123", slog.Default()), frame
}

func readyEnvelope() []byte {
	return []byte(`{"type":"PICASSO_IFRAME_READY","timestamp":1}`)
}

func loadedEnvelope() []byte {
	return []byte(`{"type":"PICASSO_LOADED","timestamp":2}`)
}

func TestChannelHandshakeSequence(t *testing.T) {
	ch, frame := newTestChannel(t)
	require.Equal(t, PhaseCreated, ch.Phase())

	_, ok := ch.Accept(testTrusted, FrameSource, readyEnvelope())
	assert.False(t, ok, "handshake messages are not dispatchable")
	assert.Equal(t, PhaseInitialized, ch.Phase())

	posted := frame.postedEnvelopes()
	require.Len(t, posted, 1)
	assert.Equal(t, protocol.TypeInit, posted[0].env.Type)
	assert.Equal(t, testTrusted, posted[0].targetOrigin)
	assert.JSONEq(t, `{"tenantHash":"abc123","skipConfigWait":true}`, string(posted[0].env.Payload))

	_, ok = ch.Accept(testTrusted, FrameSource, loadedEnvelope())
	assert.False(t, ok)
	assert.Equal(t, PhaseLoaded, ch.Phase())
}

func TestChannelLoadedBeforeReadyIsIgnored(t *testing.T) {
	ch, _ := newTestChannel(t)
	ch.Accept(testTrusted, FrameSource, loadedEnvelope())
	assert.Equal(t, PhaseCreated, ch.Phase(), "handshake phases cannot be skipped")
}

func TestChannelBuffersCommandsUntilInitialized(t *testing.T) {
	ch, frame := newTestChannel(t)

	ch.Send(protocol.ActionOpenChat, nil)
	assert.Empty(t, frame.postedEnvelopes(), "nothing posted before the frame is ready")

	ch.Accept(testTrusted, FrameSource, readyEnvelope())

	posted := frame.postedEnvelopes()
	require.Len(t, posted, 2)
	assert.Equal(t, protocol.TypeInit, posted[0].env.Type)
	assert.Equal(t, protocol.ActionOpenChat, posted[1].env.Action, "buffered command flushed after init")
}

func TestChannelBufferOverflowDropsOldest(t *testing.T) {
	ch, frame := newTestChannel(t)
	for i := 0; i < commandBufferCap+5; i++ {
		ch.Send(protocol.ActionHealthCheck, nil)
	}
	ch.Send(protocol.ActionMinimize, nil)
	ch.Accept(testTrusted, FrameSource, readyEnvelope())

	posted := frame.postedEnvelopes()
	require.Len(t, posted, 1+commandBufferCap)
	assert.Equal(t, protocol.ActionMinimize, posted[len(posted)-1].env.Action)
}

func TestChannelRejectsUntrustedOrigin(t *testing.T) {
	ch, frame := newTestChannel(t)
	_, ok := ch.Accept("https://evil.example.com", FrameSource, readyEnvelope())
	assert.False(t, ok)
	assert.Equal(t, PhaseCreated, ch.Phase())
	assert.Empty(t, frame.postedEnvelopes())
}

func TestChannelRejectsLoopbackOutsideDevelopment(t *testing.T) {
	ch, _ := newTestChannel(t)
	_, ok := ch.Accept("http://localhost:3000", FrameSource, readyEnvelope())
	assert.False(t, ok)
	assert.Equal(t, PhaseCreated, ch.Phase())
}

func TestChannelAcceptsLoopbackInDevelopment(t *testing.T) {
	frame := &fakeFrame{mounted: true}
	res := origin.Resolution{
		Mode:          origin.ModeDevelopment,
		IframeBaseURL: "http://localhost:3000",
		TrustedOrigin: "http://localhost:3000",
	}
	ch := NewChannel(frame, res, "abc123", slog.Default())
	_, ok := ch.Accept("http://127.0.0.1:5500", FrameSource, readyEnvelope())
	assert.False(t, ok) // handshake message, still not dispatchable
	assert.Equal(t, PhaseInitialized, ch.Phase())
}

func TestChannelRejectsWrongSource(t *testing.T) {
	ch, _ := newTestChannel(t)
	_, ok := ch.Accept(testTrusted, "window", readyEnvelope())
	assert.False(t, ok)
	assert.Equal(t, PhaseCreated, ch.Phase())
}

func TestChannelReturnsDispatchableEvents(t *testing.T) {
	ch, _ := newTestChannel(t)
	ch.Accept(testTrusted, FrameSource, readyEnvelope())

	in, ok := ch.Accept(testTrusted, FrameSource, []byte(`{"type":"PICASSO_EVENT","event":"MESSAGE_SENT"}`))
	require.True(t, ok)
	assert.Equal(t, protocol.FrameEvent{Event: protocol.EventMessageSent}, in)

	_, ok = ch.Accept(testTrusted, FrameSource, []byte(`{"type":"SOMETHING_ELSE"}`))
	assert.False(t, ok, "unknown types are dropped")
}

func TestChannelMonotonicTimestamps(t *testing.T) {
	ch, frame := newTestChannel(t)
	ch.Accept(testTrusted, FrameSource, readyEnvelope())
	for i := 0; i < 50; i++ {
		ch.Send(protocol.ActionHealthCheck, nil)
	}
	posted := frame.postedEnvelopes()
	for i := 1; i < len(posted); i++ {
		assert.GreaterOrEqual(t, posted[i].env.Timestamp, posted[i-1].env.Timestamp)
	}
}

func TestChannelHealthProbe(t *testing.T) {
	ch, frame := newTestChannel(t)
	assert.False(t, ch.HealthProbe(), "not responsive before handshake")

	ch.Accept(testTrusted, FrameSource, readyEnvelope())
	assert.True(t, ch.HealthProbe())

	frame.mu.Lock()
	frame.failPost = true
	frame.mu.Unlock()
	assert.False(t, ch.HealthProbe(), "torn-down content window reports false, never throws")
}
