package bundlelib

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// ManifestAssetName is the asset inside the manifest bundle holding the
// manifest document.
const ManifestAssetName = "AssetBundleManifest"

// Manifest describes every bundle of a platform and their dependencies.
type Manifest interface {
	// AllBundleNames returns every concrete bundle name, sorted.
	AllBundleNames() []string
	// DependenciesOf returns the dependencies of name as logical names.
	DependenciesOf(name string) []string
	// AllVariantBundleNames returns the concrete names carrying a variant tag.
	AllVariantBundleNames() []string
	// HashOf returns the content hash recorded for name, if any.
	HashOf(name string) string
}

// ManifestEntry is the record of one bundle in a manifest document.
type ManifestEntry struct {
	Hash         string   `json:"hash,omitempty" yaml:"hash,omitempty"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// FileManifest is a Manifest decoded from a JSON or YAML document.
type FileManifest struct {
	Bundles  map[string]ManifestEntry `json:"bundles" yaml:"bundles"`
	Variants []string                 `json:"variants,omitempty" yaml:"variants,omitempty"`
}

// ParseManifest decodes a manifest document. JSON is detected by a leading
// '{'; anything else is decoded as YAML.
func ParseManifest(data []byte) (*FileManifest, error) {
	m := &FileManifest{}
	trimmed := bytes.TrimSpace(data)
	var err error
	if len(trimmed) > 0 && trimmed[0] == '{' {
		err = json.Unmarshal(trimmed, m)
	} else {
		err = yaml.Unmarshal(trimmed, m)
	}
	if err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Bundles == nil {
		m.Bundles = make(map[string]ManifestEntry)
	}
	return m, nil
}

// decodeManifest adapts ParseManifest to a DecodeFunc.
func decodeManifest(_ string, data []byte) (any, error) {
	m, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}
	return Manifest(m), nil
}

func (m *FileManifest) AllBundleNames() []string {
	names := make([]string, 0, len(m.Bundles))
	for n := range m.Bundles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (m *FileManifest) DependenciesOf(name string) []string {
	return append([]string(nil), m.Bundles[name].Dependencies...)
}

// AllVariantBundleNames returns the explicit variant list when present,
// otherwise every bundle name with a variant tag.
func (m *FileManifest) AllVariantBundleNames() []string {
	if len(m.Variants) > 0 {
		return append([]string(nil), m.Variants...)
	}
	var names []string
	for _, n := range m.AllBundleNames() {
		if HasVariant(n) {
			names = append(names, n)
		}
	}
	return names
}

func (m *FileManifest) HashOf(name string) string {
	return m.Bundles[name].Hash
}

var _ Manifest = (*FileManifest)(nil)
