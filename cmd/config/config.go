package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the widget host
type Config struct {
	// Server configuration
	Port int `envconfig:"PORT" default:"10010"`

	// PublicURL is the externally reachable base URL of this host; it is baked
	// into the generated embed script and script tags.
	PublicURL string `envconfig:"PUBLIC_URL" default:"https://widget.picassochat.com"`

	// Origin resolution
	ProductionOrigin   string `envconfig:"PRODUCTION_ORIGIN" default:"https://widget.picassochat.com"`
	StagingPathSegment string `envconfig:"STAGING_PATH_SEGMENT" default:"staging"`

	// Path to the tenants YAML registry. Empty disables tenant validation,
	// which keeps single-tenant dev setups zero-config.
	TenantsPath string `envconfig:"TENANTS_PATH" default:""`

	// Default widget appearance, overridable per init call
	MinimizedSize  string `envconfig:"MINIMIZED_SIZE" default:"90px"`
	ExpandedWidth  string `envconfig:"EXPANDED_WIDTH" default:"400px"`
	ExpandedHeight string `envconfig:"EXPANDED_HEIGHT" default:"600px"`
	ZIndex         int    `envconfig:"Z_INDEX" default:"999999"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return nil, err
	}
	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(config *Config) error {
	if config.Port <= 0 {
		return fmt.Errorf("PORT must be greater than 0")
	}
	for name, raw := range map[string]string{
		"PUBLIC_URL":        config.PublicURL,
		"PRODUCTION_ORIGIN": config.ProductionOrigin,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL", name)
		}
	}
	if strings.Contains(config.StagingPathSegment, "/") {
		return fmt.Errorf("STAGING_PATH_SEGMENT must be a single path segment")
	}
	if config.MinimizedSize == "" || config.ExpandedWidth == "" || config.ExpandedHeight == "" {
		return fmt.Errorf("widget dimensions are required")
	}
	if config.ZIndex <= 0 {
		return fmt.Errorf("Z_INDEX must be greater than 0")
	}

	return nil
}

// SessionWSURL returns the websocket URL the generated shim connects back to.
func (c *Config) SessionWSURL() string {
	u, err := url.Parse(c.PublicURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/session"
	return u.String()
}
