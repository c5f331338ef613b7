package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/picassohq/widget-embed/server/lib/layout"
	"github.com/picassohq/widget-embed/server/lib/logger"
	"github.com/picassohq/widget-embed/server/lib/origin"
	"github.com/picassohq/widget-embed/server/lib/protocol"
	"github.com/picassohq/widget-embed/server/lib/widget"
)

const (
	sessionReadLimit = 256 * 1024
	shimWriteTimeout = 5 * time.Second
)

// Session is one connected hosting page: its shim socket, its widget API
// handle, and the frame adapter the instance writes through.
type Session struct {
	id     string
	logger *slog.Logger
	conn   *websocket.Conn
	api    *widget.API

	writeMu sync.Mutex
}

// HandleSession upgrades the shim connection and runs the session until the
// page goes away. The embed runs on arbitrary third-party pages, so the
// upgrade itself accepts any origin; trust is established by the widget
// protocol's own origin validation, not by the socket upgrade.
func (s *ApiService) HandleSession(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Error("failed to accept shim websocket", "err", err)
		return
	}
	conn.SetReadLimit(sessionReadLimit)

	id := uuid.NewString()
	sessLog := log.With("session_id", id)
	sess := &Session{
		id:     id,
		logger: sessLog,
		conn:   conn,
		api:    widget.NewAPI(sessLog),
	}
	s.register(sess)
	defer s.unregister(sess)

	sess.logger.Info("widget session started")
	sess.run(r.Context(), s)
	sess.api.Destroy()
	sess.logger.Info("widget session ended")
}

func (sess *Session) run(ctx context.Context, svc *ApiService) {
	for {
		_, data, err := sess.conn.Read(ctx)
		if err != nil {
			sess.logger.Debug("shim read error", "err", err)
			_ = sess.conn.Close(websocket.StatusNormalClosure, "")
			return
		}

		var msg protocol.ShimMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sess.logger.Warn("ignoring malformed shim message", "err", err)
			continue
		}

		switch msg.Type {
		case protocol.ShimBoot:
			sess.handleBoot(msg, svc)
		case protocol.ShimPageMessage:
			if inst := sess.api.Instance(); inst != nil {
				inst.HandleFrameMessage(msg.Origin, msg.Source, msg.Envelope)
			}
		case protocol.ShimViewport:
			if inst := sess.api.Instance(); inst != nil {
				inst.HandleViewport(msg.Width, msg.Height)
			}
		case protocol.ShimClick:
			if inst := sess.api.Instance(); inst != nil {
				inst.HandleClick()
			}
		default:
			sess.logger.Warn("ignoring unknown shim message", "type", msg.Type)
		}
	}
}

func (sess *Session) handleBoot(msg protocol.ShimMessage, svc *ApiService) {
	if _, ok := svc.tenants.Lookup(msg.Tenant); !ok {
		sess.logger.Warn("rejecting boot for unknown tenant", "tenant", msg.Tenant)
		_ = sess.conn.Close(websocket.StatusPolicyViolation, "unknown tenant")
		return
	}

	res := svc.resolver.Resolve(origin.Signals{
		ScriptURL: msg.ScriptURL,
		PageURL:   msg.PageURL,
		DevAttr:   msg.Dev,
	})
	sess.logger.Info("resolved widget origin", "mode", res.Mode, "trusted_origin", res.TrustedOrigin)

	_, err := sess.api.Init(widget.InitParams{
		TenantHash: msg.Tenant,
		Config: layout.Config{
			MinimizedSize:  svc.cfg.MinimizedSize,
			ExpandedWidth:  svc.cfg.ExpandedWidth,
			ExpandedHeight: svc.cfg.ExpandedHeight,
			ZIndex:         svc.cfg.ZIndex,
		},
		Resolution: res,
		Viewport:   layout.Viewport{Width: msg.Width, Height: msg.Height},
		Frame:      &wsFrame{sess: sess},
	})
	if err != nil {
		sess.logger.Warn("widget init failed", "err", err)
	}
}

// Health returns the session's widget snapshot.
func (sess *Session) Health() widget.HealthSnapshot {
	return sess.api.Health()
}

// CloseNow tears the session down immediately.
func (sess *Session) CloseNow() {
	sess.api.Destroy()
	_ = sess.conn.Close(websocket.StatusGoingAway, "server shutting down")
}

func (sess *Session) write(msg protocol.HostMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), shimWriteTimeout)
	defer cancel()

	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	return sess.conn.Write(ctx, websocket.MessageText, data)
}

// wsFrame relays Frame calls to the page shim over the session socket.
type wsFrame struct {
	sess *Session

	mu      sync.Mutex
	mounted bool
}

func (f *wsFrame) Mount(src string, g layout.Geometry) error {
	geo, err := json.Marshal(g)
	if err != nil {
		return err
	}
	if err := f.sess.write(protocol.HostMessage{Type: protocol.HostDomMount, Src: src, Geometry: geo}); err != nil {
		return err
	}
	f.mu.Lock()
	f.mounted = true
	f.mu.Unlock()
	return nil
}

func (f *wsFrame) ApplyGeometry(g layout.Geometry) error {
	geo, err := json.Marshal(g)
	if err != nil {
		return err
	}
	return f.sess.write(protocol.HostMessage{Type: protocol.HostDomApply, Geometry: geo})
}

func (f *wsFrame) Post(env protocol.Envelope, targetOrigin string) error {
	return f.sess.write(protocol.HostMessage{Type: protocol.HostRelay, Envelope: &env, TargetOrigin: targetOrigin})
}

func (f *wsFrame) Mounted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mounted
}

func (f *wsFrame) Unmount() error {
	f.mu.Lock()
	f.mounted = false
	f.mu.Unlock()
	return f.sess.write(protocol.HostMessage{Type: protocol.HostDomUnmount})
}
