package platform

import (
	"context"
	"sort"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	logx "crosspub/pkg/logx"
)

// Registry maps a platform identifier to its Adapter.
//
// It is populated once at process start (plus any dynamic Register calls)
// and passed explicitly to the dispatcher — no global factory. Resolve never
// panics: an unknown name is an ordinary (nil, false) answer that the
// dispatcher turns into a failed per-platform result.
//
// The registry also owns one outbound rate limiter per platform so that
// concurrent jobs targeting the same platform share a single budget.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	limiters map[string]*rate.Limiter

	log logx.Logger
}

func NewRegistry(log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{
		adapters: map[string]Adapter{},
		limiters: map[string]*rate.Limiter{},
		log:      log,
	}
}

// Register adds adapters under their lowercase names. Re-registering a name
// replaces the previous adapter (used by tests to install fakes).
func (r *Registry) Register(adapters ...Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range adapters {
		if a == nil {
			continue
		}
		name := normalize(a.Name())
		if name == "" {
			continue
		}
		if _, exists := r.adapters[name]; exists {
			r.log.Warn("adapter replaced", logx.String("platform", name))
		}
		r.adapters[name] = a
		if _, ok := r.limiters[name]; !ok {
			r.limiters[name] = rate.NewLimiter(rate.Inf, 0)
		}
	}
}

// SetRateLimit installs an outbound requests-per-second budget for a
// platform. perSec <= 0 removes the limit.
func (r *Registry) SetRateLimit(name string, perSec float64, burst int) {
	name = normalize(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if perSec <= 0 {
		r.limiters[name] = rate.NewLimiter(rate.Inf, 0)
		return
	}
	if burst <= 0 {
		burst = 1
	}
	r.limiters[name] = rate.NewLimiter(rate.Limit(perSec), burst)
}

// Resolve returns the adapter registered under name.
func (r *Registry) Resolve(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[normalize(name)]
	return a, ok
}

// Wait blocks until the platform's rate limiter admits one request, or the
// context is cancelled. Unknown platforms pass through immediately.
func (r *Registry) Wait(ctx context.Context, name string) error {
	r.mu.RLock()
	lim := r.limiters[normalize(name)]
	r.mu.RUnlock()
	if lim == nil {
		return nil
	}
	return lim.Wait(ctx)
}

// Names returns the registered platform names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Capabilities returns a name → capability view for API consumers.
func (r *Registry) Capabilities() map[string]Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Capability, len(r.adapters))
	for n, a := range r.adapters {
		out[n] = a.Capability()
	}
	return out
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
