package bundlelib

import (
	"strings"

	"github.com/warpdl/warpbundle/pkg/logger"
)

// DependencyResolver loads a bundle together with its transitive
// dependencies, resolving variants on every name.
type DependencyResolver struct {
	registry  *Registry
	variants  *VariantResolver
	manifest  func() Manifest
	originate func(name string)
	handlers  *Handlers
	resolving map[string]bool
	l         logger.Logger
}

// NewDependencyResolver creates a resolver. originate must start a read of
// a bundle the registry does not hold; it records the outcome in the
// registry itself.
func NewDependencyResolver(registry *Registry, variants *VariantResolver, manifest func() Manifest, originate func(name string), handlers *Handlers, l logger.Logger) *DependencyResolver {
	if l == nil {
		l = logger.NewNopLogger()
	}
	if handlers == nil {
		handlers = &Handlers{}
		handlers.setDefault(l)
	}
	return &DependencyResolver{
		registry:  registry,
		variants:  variants,
		manifest:  manifest,
		originate: originate,
		handlers:  handlers,
		resolving: make(map[string]bool),
		l:         l,
	}
}

// LoadWithDependencies takes a reference on the variant-resolved name and,
// depth first, on each of its dependencies. Reads are originated for
// anything not yet held, in pre-order. It returns the resolved name.
func (d *DependencyResolver) LoadWithDependencies(name string) (string, error) {
	m := d.manifest()
	if m == nil {
		return "", ErrManifestNotLoaded
	}
	resolved, _ := d.variants.Resolve(name)
	d.load(m, resolved)
	return resolved, nil
}

func (d *DependencyResolver) load(m Manifest, name string) {
	if d.resolving[name] {
		return
	}
	d.resolving[name] = true
	defer delete(d.resolving, name)

	if !d.registry.LoadInternal(name) {
		d.l.Info("Loading bundle: %s", name)
		d.originate(name)
		d.handlers.BundleOriginatedHandler(name)
	}

	deps, ok := d.registry.Dependencies(name)
	if !ok {
		raw := m.DependenciesOf(name)
		deps = make([]string, 0, len(raw))
		for _, dep := range raw {
			r, _ := d.variants.Resolve(dep)
			deps = append(deps, r)
		}
		d.registry.SetDependencies(name, deps)
		if len(deps) > 0 {
			d.l.Info("[Dependency] %s => %s", name, strings.Join(deps, ", "))
		}
	}
	for _, dep := range deps {
		d.load(m, dep)
	}
}

// UnloadWithDependencies releases the variant-resolved name and its
// dependencies.
func (d *DependencyResolver) UnloadWithDependencies(name string) string {
	resolved, _ := d.variants.Resolve(name)
	d.registry.Unload(resolved)
	return resolved
}
