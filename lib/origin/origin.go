// Package origin resolves which origin the widget frame is served from and
// which origin inbound frame messages must carry. Resolution is driven by how
// the embed script itself was loaded; it never fails, it degrades to
// production defaults instead.
package origin

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
)

// Mode is the resolved deployment environment of the widget frame.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeStaging     Mode = "staging"
	ModeProduction  Mode = "production"
)

// DevQueryParam on the hosting page URL forces development mode.
const DevQueryParam = "picasso-dev"

// Signals carries everything the page shim reports about how the embed script
// was loaded. ScriptURL is empty when the script tag could not be located
// (e.g. async injection without a discoverable tag).
type Signals struct {
	ScriptURL string
	PageURL   string
	DevAttr   bool // data-dev="true" on the script tag
}

// Resolution is the single source of truth for the frame URL and for inbound
// message validation. TrustedOrigin is always the origin component of
// IframeBaseURL.
type Resolution struct {
	Mode          Mode
	IframeBaseURL string
	TrustedOrigin string
}

// Resolver computes Resolutions. ProductionOrigin and StagingPathSegment are
// fixed per deployment; see cmd/config for the defaults.
type Resolver struct {
	ProductionOrigin   string
	StagingPathSegment string
	Logger             *slog.Logger
}

// Resolve picks the frame origin by priority: explicit dev signal or loopback
// page first, then a staging path segment in the script URL, then production.
// It never returns an error; unparseable inputs fall through to production.
func (r *Resolver) Resolve(sig Signals) Resolution {
	log := r.logger()

	scriptOrigin, scriptPath, scriptOK := splitURL(sig.ScriptURL)

	if sig.DevAttr || pageRequestsDev(sig.PageURL) || pageIsLoopback(sig.PageURL) {
		base := scriptOrigin
		if !scriptOK {
			// Dev was requested but the script tag is undiscoverable; the
			// best loopback guess is the page's own origin.
			if pageOrigin, _, ok := splitURL(sig.PageURL); ok {
				base = pageOrigin
			} else {
				base = r.ProductionOrigin
			}
		}
		return r.resolution(ModeDevelopment, base)
	}

	if scriptOK && r.StagingPathSegment != "" && pathHasSegment(scriptPath, r.StagingPathSegment) {
		return r.resolution(ModeStaging, scriptOrigin+"/"+r.StagingPathSegment)
	}

	if !scriptOK {
		log.Warn("embed script url undiscoverable, falling back to production", "script_url", sig.ScriptURL)
	}
	return r.resolution(ModeProduction, r.ProductionOrigin)
}

func (r *Resolver) resolution(mode Mode, base string) Resolution {
	trusted, _, ok := splitURL(base)
	if !ok {
		trusted = r.ProductionOrigin
	}
	return Resolution{
		Mode:          mode,
		IframeBaseURL: strings.TrimRight(base, "/"),
		TrustedOrigin: trusted,
	}
}

// FrameURL builds the iframe src for a tenant. The staging HTML variant is
// selected when staging mode was resolved.
func (res Resolution) FrameURL(tenantHash string) string {
	page := "widget-frame.html"
	if res.Mode == ModeStaging {
		page = "widget-frame-staging.html"
	}
	return fmt.Sprintf("%s/%s?t=%s", res.IframeBaseURL, page, url.QueryEscape(tenantHash))
}

// AllowsOrigin reports whether an inbound message origin is acceptable.
// Loopback origins are additionally accepted in development mode only.
func (res Resolution) AllowsOrigin(o string) bool {
	if o == res.TrustedOrigin {
		return true
	}
	if res.Mode != ModeDevelopment {
		return false
	}
	return originIsLoopback(o)
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// splitURL returns the origin (scheme://host[:port]) and path of a URL.
func splitURL(raw string) (origin, path string, ok bool) {
	if raw == "" {
		return "", "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", "", false
	}
	return u.Scheme + "://" + u.Host, u.Path, true
}

func pageRequestsDev(pageURL string) bool {
	u, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	return u.Query().Get(DevQueryParam) == "true"
}

func pageIsLoopback(pageURL string) bool {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return false
	}
	return hostIsLoopback(u.Hostname())
}

func originIsLoopback(o string) bool {
	u, err := url.Parse(o)
	if err != nil || u.Host == "" {
		return false
	}
	return hostIsLoopback(u.Hostname())
}

func hostIsLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

func pathHasSegment(path, segment string) bool {
	for _, s := range strings.Split(path, "/") {
		if s == segment {
			return true
		}
	}
	return false
}
