package bundlelib

import (
	"sort"

	"github.com/warpdl/warpbundle/pkg/logger"
)

// LoadedBundle is a bundle installed in the registry.
type LoadedBundle struct {
	Name     string
	Bundle   *Bundle
	refCount int
}

// RefCount returns the number of outstanding loads.
func (lb *LoadedBundle) RefCount() int {
	return lb.refCount
}

// Registry owns the set of loaded bundles, the loads waiting on in-flight
// fetches, the sticky per-bundle errors and the resolved dependency lists.
// It is driven from the manager tick and is not safe for concurrent use.
type Registry struct {
	loaded  map[string]*LoadedBundle
	pending map[string]int
	errors  map[string]error
	deps    map[string][]string
	l       logger.Logger
	metrics *Metrics
}

// NewRegistry creates an empty registry.
func NewRegistry(l logger.Logger, metrics *Metrics) *Registry {
	if l == nil {
		l = logger.NewNopLogger()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Registry{
		loaded:  make(map[string]*LoadedBundle),
		pending: make(map[string]int),
		errors:  make(map[string]error),
		deps:    make(map[string][]string),
		l:       l,
		metrics: metrics,
	}
}

// LoadInternal takes a reference on name if it is loaded or being fetched
// for a load. It returns false when the caller must originate a read.
func (r *Registry) LoadInternal(name string) bool {
	if n, ok := r.pending[name]; ok {
		r.pending[name] = n + 1
		return true
	}
	if lb, ok := r.loaded[name]; ok {
		lb.refCount++
		return true
	}
	return false
}

// BeginFetch records that a load originated an asynchronous read of name,
// holding one reference.
func (r *Registry) BeginFetch(name string) {
	r.pending[name] = 1
}

// Fetching reports whether a load is waiting on a read of name.
func (r *Registry) Fetching(name string) bool {
	_, ok := r.pending[name]
	return ok
}

// Install adds b with refs references and clears any sticky error.
func (r *Registry) Install(name string, b *Bundle, refs int) *LoadedBundle {
	delete(r.errors, name)
	if lb, ok := r.loaded[name]; ok {
		lb.refCount += refs
		b.Release()
		return lb
	}
	lb := &LoadedBundle{Name: name, Bundle: b, refCount: refs}
	r.loaded[name] = lb
	r.metrics.loadedBundles.Set(float64(len(r.loaded)))
	return lb
}

// Deliver completes a fetch of name. The bundle is installed with the
// references taken while it was in flight; with none left it is released.
func (r *Registry) Deliver(name string, b *Bundle) {
	delete(r.errors, name)
	refs, ok := r.pending[name]
	delete(r.pending, name)
	if !ok || refs <= 0 {
		b.Release()
		return
	}
	r.Install(name, b, refs)
}

// Fail records err for name and drops the references waiting on it.
func (r *Registry) Fail(name string, err error) {
	delete(r.pending, name)
	r.errors[name] = err
}

// Error returns the sticky error recorded for name.
func (r *Registry) Error(name string) error {
	return r.errors[name]
}

// Errors returns a copy of the sticky errors.
func (r *Registry) Errors() map[string]error {
	out := make(map[string]error, len(r.errors))
	for k, v := range r.errors {
		out[k] = v
	}
	return out
}

// ClearError drops the sticky error of name.
func (r *Registry) ClearError(name string) {
	delete(r.errors, name)
}

// SetDependencies caches the resolved dependency list of name.
func (r *Registry) SetDependencies(name string, deps []string) {
	r.deps[name] = append([]string(nil), deps...)
}

// Dependencies returns the cached dependency list of name.
func (r *Registry) Dependencies(name string) ([]string, bool) {
	d, ok := r.deps[name]
	return d, ok
}

// RefCount returns the references held on name, counting loads still
// waiting on a fetch.
func (r *Registry) RefCount(name string) int {
	if lb, ok := r.loaded[name]; ok {
		return lb.refCount
	}
	return r.pending[name]
}

// Loaded returns the installed bundle names, sorted.
func (r *Registry) Loaded() []string {
	names := make([]string, 0, len(r.loaded))
	for n := range r.loaded {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// GetLoaded returns name once it and all of its dependencies are loaded.
// It returns an error if name or any transitive dependency failed, and
// nil, nil while something is still missing.
func (r *Registry) GetLoaded(name string) (*LoadedBundle, error) {
	if err := r.firstError(name, map[string]bool{}); err != nil {
		return nil, err
	}
	lb, ok := r.loaded[name]
	if !ok {
		return nil, nil
	}
	if !r.depsLoaded(name, map[string]bool{name: true}) {
		return nil, nil
	}
	return lb, nil
}

func (r *Registry) firstError(name string, seen map[string]bool) error {
	if seen[name] {
		return nil
	}
	seen[name] = true
	if err := r.errors[name]; err != nil {
		return err
	}
	for _, dep := range r.deps[name] {
		if err := r.firstError(dep, seen); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) depsLoaded(name string, seen map[string]bool) bool {
	for _, dep := range r.deps[name] {
		if seen[dep] {
			continue
		}
		seen[dep] = true
		if _, ok := r.loaded[dep]; !ok {
			return false
		}
		if !r.depsLoaded(dep, seen) {
			return false
		}
	}
	return true
}

// UnloadInternal drops one reference on name and releases it at zero.
// It reports whether name is now fully gone.
func (r *Registry) UnloadInternal(name string) bool {
	lb, ok := r.loaded[name]
	if !ok {
		if n, ok := r.pending[name]; ok {
			if n > 0 {
				r.pending[name] = n - 1
			}
			return false
		}
		return true
	}
	lb.refCount--
	if lb.refCount > 0 {
		return false
	}
	lb.Bundle.Release()
	delete(r.loaded, name)
	r.metrics.loadedBundles.Set(float64(len(r.loaded)))
	r.l.Info("%s has been unloaded successfully", name)
	return true
}

// Unload releases name and then, recursively, one reference on each of
// its dependencies, mirroring a dependency-resolving load.
func (r *Registry) Unload(name string) {
	r.unload(name, map[string]bool{})
}

func (r *Registry) unload(name string, visiting map[string]bool) {
	if visiting[name] {
		return
	}
	visiting[name] = true
	defer delete(visiting, name)

	gone := r.UnloadInternal(name)
	deps := r.deps[name]
	for _, dep := range deps {
		r.unload(dep, visiting)
	}
	if gone {
		delete(r.deps, name)
	}
}

// Close releases every loaded bundle.
func (r *Registry) Close() {
	for name, lb := range r.loaded {
		lb.Bundle.Release()
		delete(r.loaded, name)
	}
	r.pending = make(map[string]int)
	r.metrics.loadedBundles.Set(0)
}
