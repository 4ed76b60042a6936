package provider

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Router manages multiple LLM providers and routes requests by
// purpose. Purposes name what the persona is doing: "chat", "diary",
// "comment", "thought". Each purpose may be bound to a provider and
// carry a fallback chain.
type Router struct {
	providers map[string]Provider
	bindings  map[string]string   // purpose -> providerID
	fallbacks map[string][]string // purpose -> fallback provider chain
	defaults  string              // default provider ID
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewRouter creates a new provider router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		providers: make(map[string]Provider),
		bindings:  make(map[string]string),
		fallbacks: make(map[string][]string),
		logger:    logger,
	}
}

// Register adds a provider to the router. The first registered
// provider becomes the default.
func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
	if r.defaults == "" {
		r.defaults = p.ID()
	}
	r.logger.Info("registered provider", zap.String("id", p.ID()), zap.String("name", p.Name()))
}

// SetDefault sets the default provider.
func (r *Router) SetDefault(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults = providerID
}

// DefaultID returns the current default provider ID.
func (r *Router) DefaultID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults
}

// Bind associates a purpose with a specific provider.
func (r *Router) Bind(purpose, providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[purpose] = providerID
}

// SetFallbacks configures fallback providers for a purpose.
func (r *Router) SetFallbacks(purpose string, providerIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks[purpose] = providerIDs
}

// Route sends a chat request through the provider bound to the
// purpose, walking the fallback chain on failure.
func (r *Router) Route(ctx context.Context, purpose string, req *ChatRequest) (*ChatResponse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	primary := r.getProvider(purpose)
	if primary == nil {
		return nil, fmt.Errorf("no provider available for %s", purpose)
	}

	resp, err := primary.Chat(ctx, req)
	if err == nil {
		return resp, nil
	}
	r.logger.Warn("primary provider failed, trying fallbacks",
		zap.String("purpose", purpose), zap.Error(err))

	for _, fbID := range r.fallbacks[purpose] {
		fb, ok := r.providers[fbID]
		if !ok {
			continue
		}
		resp, err = fb.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		r.logger.Warn("fallback provider failed", zap.String("provider", fbID), zap.Error(err))
	}

	return nil, fmt.Errorf("all providers failed for %s: %w", purpose, err)
}

func (r *Router) getProvider(purpose string) Provider {
	if pid, ok := r.bindings[purpose]; ok {
		if p, ok := r.providers[pid]; ok {
			return p
		}
	}
	if p, ok := r.providers[r.defaults]; ok {
		return p
	}
	return nil
}

// GetProvider returns a provider by ID.
func (r *Router) GetProvider(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// ListProviders returns all registered providers.
func (r *Router) ListProviders() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		result = append(result, p)
	}
	return result
}

// FromConfig builds a provider from its config by type.
func FromConfig(cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	switch cfg.Type {
	case "openai", "openai-compatible":
		return NewOpenAIProvider(cfg, logger), nil
	case "anthropic":
		return NewAnthropicProvider(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
	}
}
