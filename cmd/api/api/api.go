package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/picassohq/widget-embed/server/cmd/config"
	"github.com/picassohq/widget-embed/server/lib/embedscript"
	"github.com/picassohq/widget-embed/server/lib/origin"
	"github.com/picassohq/widget-embed/server/lib/tenant"
)

// ApiService serves the embeddable widget assets and brokers the per-page
// widget sessions.
type ApiService struct {
	logger   *slog.Logger
	cfg      *config.Config
	resolver *origin.Resolver
	tenants  *tenant.Registry

	sessMu   sync.RWMutex
	sessions map[string]*Session
}

func New(cfg *config.Config, tenants *tenant.Registry, logger *slog.Logger) *ApiService {
	return &ApiService{
		logger: logger,
		cfg:    cfg,
		resolver: &origin.Resolver{
			ProductionOrigin:   cfg.ProductionOrigin,
			StagingPathSegment: cfg.StagingPathSegment,
			Logger:             logger,
		},
		tenants:  tenants,
		sessions: make(map[string]*Session),
	}
}

// Routes mounts every widget host endpoint. The staging variants live under
// the staging path segment so the shim's own URL carries the environment.
func (s *ApiService) Routes(r chi.Router) {
	r.Get("/widget.js", s.HandleWidgetScript)
	r.Get("/"+s.cfg.StagingPathSegment+"/widget.js", s.HandleWidgetScript)
	r.Get("/widget-frame.html", s.handleFrameHTML(false))
	r.Get("/"+s.cfg.StagingPathSegment+"/widget-frame-staging.html", s.handleFrameHTML(true))
	r.Get("/embed-snippet", s.HandleEmbedSnippet)
	r.Get("/session", s.HandleSession)
	r.Get("/health", s.HandleHealth)
	r.Get("/sessions/{id}/health", s.HandleSessionHealth)
}

// HandleWidgetScript serves the page shim.
func (s *ApiService) HandleWidgetScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write([]byte(embedscript.Generate(embedscript.Options{
		SessionWSURL: s.cfg.SessionWSURL(),
	})))
}

func (s *ApiService) handleFrameHTML(staging bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("t") == "" {
			http.Error(w, "tenant query parameter required", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(embedscript.FrameHTML(staging)))
	}
}

// HandleEmbedSnippet returns the script tag a tenant pastes into their page.
func (s *ApiService) HandleEmbedSnippet(w http.ResponseWriter, r *http.Request) {
	hash := r.URL.Query().Get("tenant")
	if hash == "" {
		http.Error(w, "tenant query parameter required", http.StatusBadRequest)
		return
	}
	if _, ok := s.tenants.Lookup(hash); !ok {
		http.Error(w, "unknown tenant", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(embedscript.ScriptTag(s.cfg.PublicURL, hash, false)))
}

// HandleHealth reports service liveness and the live sessions.
func (s *ApiService) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.sessMu.RLock()
	ids := lo.Keys(s.sessions)
	s.sessMu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"sessions":   len(ids),
		"sessionIds": ids,
		"tenants":    s.tenants.Count(),
	})
}

// HandleSessionHealth returns the widget health snapshot for one session.
func (s *ApiService) HandleSessionHealth(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.sessMu.RLock()
	sess, ok := s.sessions[id]
	s.sessMu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, sess.Health())
}

func (s *ApiService) register(sess *Session) {
	s.sessMu.Lock()
	s.sessions[sess.id] = sess
	s.sessMu.Unlock()
}

func (s *ApiService) unregister(sess *Session) {
	s.sessMu.Lock()
	delete(s.sessions, sess.id)
	s.sessMu.Unlock()
}

// Shutdown closes every live session.
func (s *ApiService) Shutdown(ctx context.Context) error {
	s.sessMu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[string]*Session)
	s.sessMu.Unlock()

	for _, sess := range sessions {
		sess.CloseNow()
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("failed to encode response", "err", err)
	}
}
