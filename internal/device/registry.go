package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry is the durable store of Device records, keyed by device id.
//
// Implementations must be safe for concurrent use. Get and Remove return an
// error matching ErrDeviceNotFound for unknown ids; storage failures match
// ErrInternalDB.
type Registry interface {
	// Store inserts or replaces the device with the same id and returns
	// a copy of what was stored.
	Store(ctx context.Context, d *Device) (*Device, error)

	// Remove deletes a device by id.
	Remove(ctx context.Context, id string) error

	// Get retrieves a device by id.
	Get(ctx context.Context, id string) (*Device, error)

	// List returns every device ordered by id.
	List(ctx context.Context) ([]Device, error)
}

// Logger defines the logging interface used by registries.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MemoryRegistry keeps devices in a map. Contents are lost on restart.
type MemoryRegistry struct {
	mu      sync.RWMutex
	devices map[string]*Device
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{devices: make(map[string]*Device)}
}

// Store inserts or replaces a device.
func (r *MemoryRegistry) Store(_ context.Context, d *Device) (*Device, error) {
	if err := Validate(d); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.devices[d.ID] = d.DeepCopy()
	r.mu.Unlock()

	return d.DeepCopy(), nil
}

// Remove deletes a device by id.
func (r *MemoryRegistry) Remove(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[id]; !ok {
		return notFound(id)
	}
	delete(r.devices, id)
	return nil
}

// Get retrieves a device by id. The result is a copy.
func (r *MemoryRegistry) Get(_ context.Context, id string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, notFound(id)
	}
	return d.DeepCopy(), nil
}

// List returns copies of all devices ordered by id.
func (r *MemoryRegistry) List(_ context.Context) ([]Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortedCopies(r.devices), nil
}

// CachedRegistry wraps a persistent Registry with an in-memory cache for
// fast lookups. Writes go to the backing store first and update the cache
// only on success.
//
// The cache is populated on startup via RefreshCache and kept in sync by
// Store and Remove. All public methods are thread-safe.
type CachedRegistry struct {
	backend Registry
	cache   map[string]*Device
	cacheMu sync.RWMutex
	loaded  bool
	logger  Logger

	// gen is bumped by every write under cacheMu. A Get that misses only
	// caches its backend read if no write happened in between.
	gen uint64
}

// NewCachedRegistry creates a cache in front of backend.
func NewCachedRegistry(backend Registry) *CachedRegistry {
	return &CachedRegistry{
		backend: backend,
		cache:   make(map[string]*Device),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *CachedRegistry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices from the backing store.
func (r *CachedRegistry) RefreshCache(ctx context.Context) error {
	devices, err := r.backend.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.gen++
	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		r.cache[devices[i].ID] = devices[i].DeepCopy()
	}
	r.loaded = true

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// Store persists the device and then caches it.
func (r *CachedRegistry) Store(ctx context.Context, d *Device) (*Device, error) {
	stored, err := r.backend.Store(ctx, d)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.gen++
	r.cache[stored.ID] = stored.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Debug("device stored", "id", stored.ID, "type", stored.Type)
	return stored, nil
}

// Remove deletes the device from the backing store and the cache.
func (r *CachedRegistry) Remove(ctx context.Context, id string) error {
	if err := r.backend.Remove(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.gen++
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Debug("device removed", "id", id)
	return nil
}

// Get returns the cached device, falling back to the backing store.
// A backend result is cached only when no Store or Remove completed while
// it was being read, so a concurrent Remove is never undone.
func (r *CachedRegistry) Get(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	gen := r.gen
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}

	d, err := r.backend.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	if r.gen == gen {
		r.cache[id] = d.DeepCopy()
	}
	r.cacheMu.Unlock()

	return d, nil
}

// List serves from the cache once RefreshCache has run.
func (r *CachedRegistry) List(ctx context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	if r.loaded {
		defer r.cacheMu.RUnlock()
		return sortedCopies(r.cache), nil
	}
	r.cacheMu.RUnlock()

	return r.backend.List(ctx)
}

// Count returns the number of cached devices.
func (r *CachedRegistry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

func sortedCopies(m map[string]*Device) []Device {
	devices := make([]Device, 0, len(m))
	for _, d := range m {
		devices = append(devices, *d.DeepCopy())
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].ID < devices[j].ID
	})
	return devices
}
