package platform

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"ContentSync/internal/domain"
	"ContentSync/internal/ports"
)

// Source carries everything needed to build one adapter instance.
type Source struct {
	Name      string
	Platform  domain.Platform
	Language  string
	BaseURL   string
	RateLimit float64
	Burst     int
	Timeout   time.Duration
	Options   map[string]string
	Logger    *slog.Logger
}

// Option returns a source option or the fallback when unset.
func (s Source) Option(key, fallback string) string {
	if v, ok := s.Options[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Factory builds an adapter for a configured source.
type Factory func(src Source) (ports.PlatformAdapter, error)

// Registry keeps a mapping from platform names to adapter factories.
type Registry struct {
	factories map[domain.Platform]Factory
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[domain.Platform]Factory{}}
}

// Register adds or replaces a factory.
func (r *Registry) Register(platform domain.Platform, factory Factory) {
	if r.factories == nil {
		r.factories = map[domain.Platform]Factory{}
	}
	r.factories[platform] = factory
}

// Resolve returns a factory by platform or an error if it is absent.
func (r *Registry) Resolve(platform domain.Platform) (Factory, error) {
	if factory, ok := r.factories[platform]; ok {
		return factory, nil
	}
	return nil, fmt.Errorf("platform %s is not registered", platform)
}

// Build resolves the source platform and constructs its adapter.
func (r *Registry) Build(src Source) (ports.PlatformAdapter, error) {
	factory, err := r.Resolve(src.Platform)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.Name, err)
	}

	adapter, err := factory(src)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.Name, err)
	}
	return adapter, nil
}

// Platforms lists registered platforms in name order.
func (r *Registry) Platforms() []domain.Platform {
	out := make([]domain.Platform, 0, len(r.factories))
	for p := range r.factories {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
