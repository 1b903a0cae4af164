package bundlelib

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// loadSimulationVariants registers the variant directories found under
// the simulation source dir.
func (m *Manager) loadSimulationVariants() error {
	entries, err := afero.ReadDir(m.fs, m.cfg.SimulationDir)
	if err != nil {
		return err
	}
	var variants []string
	for _, e := range entries {
		if e.IsDir() && HasVariant(e.Name()) {
			variants = append(variants, e.Name())
		}
	}
	m.variants.SetVariants(variants)
	return nil
}

// simulationSource reads asset straight from the bundle's source dir.
func (m *Manager) simulationSource(bundle, asset string) (string, []byte, error) {
	resolved, _ := m.variants.Resolve(bundle)
	dir := filepath.Join(m.cfg.SimulationDir, resolved)
	entries, err := afero.ReadDir(m.fs, dir)
	if err != nil {
		return resolved, nil, &BundleError{Op: opLoad, Name: resolved, URL: dir, Cause: fmt.Errorf("%w: %v", ErrBundleNotFound, err)}
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if e.Name() == asset || assetKey(e.Name()) == asset {
			data, err := afero.ReadFile(m.fs, filepath.Join(dir, e.Name()))
			return resolved, data, err
		}
	}
	return resolved, nil, fmt.Errorf("%w: there is no asset with name %q in %s", ErrAssetNotFound, asset, resolved)
}

func (m *Manager) simulateAsset(bundle, asset string, o loadOptions) (*Operation, error) {
	resolved, data, err := m.simulationSource(bundle, asset)
	if err != nil {
		m.l.Error("%v", err)
		return nil, err
	}
	op := newOperation(OpLoadAsset, resolved, asset)
	var v any = data
	if o.decode != nil {
		v, err = o.decode(asset, data)
	}
	op.finish(v, err)
	if o.onDone != nil {
		op.OnDone(o.onDone)
	}
	return op, nil
}

func (m *Manager) simulateScene(bundle, scene string, additive bool, o loadOptions) (*Operation, error) {
	resolved, data, err := m.simulationSource(bundle, scene)
	if err != nil {
		m.l.Error("%v", err)
		return nil, err
	}
	op := newOperation(OpLoadScene, resolved, scene)
	op.additive = additive
	op.finish(&Scene{Name: scene, Bundle: resolved, Additive: additive, Data: data}, nil)
	if o.onDone != nil {
		op.OnDone(o.onDone)
	}
	return op, nil
}
