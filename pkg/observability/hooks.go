// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard
// dependencies on specific observability backends. Consumers can register
// hooks at startup to receive events about sampling runs, cache operations,
// and transport calls.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// This approach avoids import cycles (hooks are registered by main, not by
// libraries) and keeps the core library free of observability frameworks.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetSamplingHooks(&mySamplingHooks{})
//	    observability.SetCacheHooks(&myCacheHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Sampling().OnSampleStart(ctx, requested)
//	// ... sample ...
//	observability.Sampling().OnSampleComplete(ctx, produced, requested, duration)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Sampling Hooks
// =============================================================================

// SamplingHooks receives events from manifest generation runs.
type SamplingHooks interface {
	// OnSampleStart records the beginning of a sampling run.
	OnSampleStart(ctx context.Context, requested int)

	// OnTileAccepted records a candidate passing all filters.
	OnTileAccepted(ctx context.Context, modality string)

	// OnTileRejected records a candidate dropped by filtering or resolution.
	OnTileRejected(ctx context.Context, modality string)

	// OnSampleComplete records the end of a sampling run. produced may be
	// below requested when candidate queues ran dry.
	OnSampleComplete(ctx context.Context, produced, requested int, duration time.Duration)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from HTTP client operations.
type HTTPHooks interface {
	// OnRequest records an outgoing HTTP request.
	OnRequest(ctx context.Context, method, host, path string)

	// OnResponse records an HTTP response.
	OnResponse(ctx context.Context, method, host, path string, statusCode int, duration time.Duration)

	// OnError records an HTTP error (network failure, timeout).
	OnError(ctx context.Context, method, host, path string, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopSamplingHooks is a no-op implementation of SamplingHooks.
type NoopSamplingHooks struct{}

func (NoopSamplingHooks) OnSampleStart(context.Context, int)                        {}
func (NoopSamplingHooks) OnTileAccepted(context.Context, string)                    {}
func (NoopSamplingHooks) OnTileRejected(context.Context, string)                    {}
func (NoopSamplingHooks) OnSampleComplete(context.Context, int, int, time.Duration) {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, string, error)                 {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	samplingHooks SamplingHooks = NoopSamplingHooks{}
	cacheHooks    CacheHooks    = NoopCacheHooks{}
	httpHooks     HTTPHooks     = NoopHTTPHooks{}
	hooksMu       sync.RWMutex
)

// SetSamplingHooks registers custom sampling hooks.
// This should be called once at application startup before any sampling runs.
func SetSamplingHooks(h SamplingHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		samplingHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
// This should be called once at application startup before any cache operations.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetHTTPHooks registers custom HTTP hooks.
// This should be called once at application startup before any HTTP operations.
func SetHTTPHooks(h HTTPHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		httpHooks = h
	}
}

// Sampling returns the registered sampling hooks.
func Sampling() SamplingHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return samplingHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return httpHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	samplingHooks = NoopSamplingHooks{}
	cacheHooks = NoopCacheHooks{}
	httpHooks = NoopHTTPHooks{}
}
