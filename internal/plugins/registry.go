package plugins

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/edgelink/internal/protocol"
)

var (
	ErrPluginExists = errors.New("plugin already exists")
	ErrPluginNil    = errors.New("plugin is nil")
	ErrNoSource     = errors.New("no source plugin for engine")
)

// Registry stores plugins by name and indexes source plugins by engine.
type Registry struct {
	mu      sync.RWMutex
	items   map[string]Plugin
	sources map[string]SourcePlugin
}

func NewRegistry() *Registry {
	return &Registry{
		items:   make(map[string]Plugin),
		sources: make(map[string]SourcePlugin),
	}
}

func engineKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (r *Registry) Register(p Plugin) error {
	if p == nil {
		return ErrPluginNil
	}
	name := strings.TrimSpace(p.Name())
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrPluginNil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[name]; ok {
		return fmt.Errorf("%w: %s", ErrPluginExists, name)
	}
	src, isSource := p.(SourcePlugin)
	if isSource {
		for _, key := range []string{engineKey(src.SourceName()), engineKey(src.SourceIdentify())} {
			if _, taken := r.sources[key]; taken && key != "" {
				return fmt.Errorf("%w: engine %s", ErrPluginExists, key)
			}
		}
	}
	r.items[name] = p
	if isSource {
		for _, key := range []string{engineKey(src.SourceName()), engineKey(src.SourceIdentify())} {
			if key != "" {
				r.sources[key] = src
			}
		}
	}
	return nil
}

func (r *Registry) Get(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.items[name]
	return p, ok
}

// Names returns registered plugin names in stable order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.items))
	for name := range r.items {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Source resolves an engine by long name or alias.
func (r *Registry) Source(engine string) (SourcePlugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[engineKey(engine)]
	return src, ok
}

// Sources lists source plugins ordered by SourceName.
func (r *Registry) Sources() []SourcePlugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]SourcePlugin, len(r.sources))
	for _, src := range r.sources {
		seen[src.Name()] = src
	}
	out := make([]SourcePlugin, 0, len(seen))
	for _, src := range seen {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceName() < out[j].SourceName() })
	return out
}

// Search routes query to the plugin that owns opts.Engine.
func (r *Registry) Search(ctx context.Context, query string, opts SearchOptions) (*protocol.LoadResult, error) {
	src, ok := r.Source(opts.Engine)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSource, opts.Engine)
	}
	return src.SearchDirect(ctx, query, opts)
}
