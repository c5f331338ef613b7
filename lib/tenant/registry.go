// Package tenant maintains the set of tenants allowed to embed the widget.
// The registry is loaded from a YAML file and hot-reloaded when the file
// changes, so tenants can be added without a restart.
package tenant

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/ghodss/yaml"
)

// Tenant is one registered embedder.
type Tenant struct {
	Hash        string   `json:"hash"`
	Name        string   `json:"name"`
	PageOrigins []string `json:"pageOrigins,omitempty"`
}

type registryFile struct {
	Tenants []Tenant `json:"tenants"`
}

// Registry resolves tenant hashes for session bootstrap. A nil *Registry
// allows every tenant, which keeps single-tenant dev setups zero-config.
type Registry struct {
	logger *slog.Logger
	path   string

	mu     sync.RWMutex
	byHash map[string]Tenant

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Load reads the registry file and starts watching it for changes.
func Load(path string, logger *slog.Logger) (*Registry, error) {
	r := &Registry{
		logger: logger,
		path:   path,
		byHash: map[string]Tenant{},
		done:   make(chan struct{}),
	}
	if err := r.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create tenants watcher: %w", err)
	}
	// Watch the directory: editors replace the file on save, which drops a
	// watch registered on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch tenants dir: %w", err)
	}
	r.watcher = watcher
	go r.watch()
	return r, nil
}

func (r *Registry) reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read tenants file: %w", err)
	}
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse tenants file: %w", err)
	}

	byHash := make(map[string]Tenant, len(file.Tenants))
	for _, t := range file.Tenants {
		if t.Hash == "" {
			return fmt.Errorf("tenant %q has no hash", t.Name)
		}
		byHash[t.Hash] = t
	}

	r.mu.Lock()
	r.byHash = byHash
	r.mu.Unlock()
	return nil
}

func (r *Registry) watch() {
	for {
		select {
		case <-r.done:
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(r.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if err := r.reload(); err != nil {
				// Keep serving the last good registry.
				r.logger.Warn("tenants reload failed", "err", err)
				continue
			}
			r.logger.Info("tenants reloaded", "count", r.Count())
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("tenants watcher error", "err", err)
		}
	}
}

// Lookup returns the tenant for a hash. A nil registry accepts everything.
func (r *Registry) Lookup(hash string) (Tenant, bool) {
	if r == nil {
		return Tenant{Hash: hash}, true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byHash[hash]
	return t, ok
}

// Count returns the number of registered tenants.
func (r *Registry) Count() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byHash)
}

// Close stops the file watcher.
func (r *Registry) Close() error {
	if r == nil || r.watcher == nil {
		return nil
	}
	close(r.done)
	return r.watcher.Close()
}
