package bundlelib

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
)

// Bundle is an opened content archive. Bundles are zip archives; assets are
// addressed by their entry path or by their file name without extension.
type Bundle struct {
	name     string
	size     int64
	files    []*zip.File
	entries  map[string]*zip.File
	released bool
}

// OpenBundle parses data as a bundle archive.
func OpenBundle(name string, data []byte) (*Bundle, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &BundleError{Op: opParse, Name: name, Cause: fmt.Errorf("%w: %v", ErrInvalidBundle, err)}
	}
	b := &Bundle{
		name:    name,
		size:    int64(len(data)),
		entries: make(map[string]*zip.File, len(zr.File)*2),
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		b.files = append(b.files, f)
		if _, ok := b.entries[f.Name]; !ok {
			b.entries[f.Name] = f
		}
		short := assetKey(f.Name)
		if _, ok := b.entries[short]; !ok {
			b.entries[short] = f
		}
	}
	return b, nil
}

func assetKey(entry string) string {
	base := path.Base(entry)
	return strings.TrimSuffix(base, path.Ext(base))
}

// Name returns the concrete bundle name.
func (b *Bundle) Name() string { return b.name }

// Size returns the archive size in bytes.
func (b *Bundle) Size() int64 { return b.size }

// AssetNames returns the entry paths in the bundle, sorted.
func (b *Bundle) AssetNames() []string {
	names := make([]string, 0, len(b.files))
	for _, f := range b.files {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

// Contains reports whether asset can be read from the bundle.
func (b *Bundle) Contains(asset string) bool {
	if b.released {
		return false
	}
	_, ok := b.entries[asset]
	return ok
}

func (b *Bundle) lookup(asset string) (*zip.File, error) {
	if b.released {
		return nil, fmt.Errorf("bundle %s has been unloaded", b.name)
	}
	f, ok := b.entries[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s in bundle %s", ErrAssetNotFound, asset, b.name)
	}
	return f, nil
}

// AssetSize returns the uncompressed size of asset.
func (b *Bundle) AssetSize(asset string) (int64, error) {
	f, err := b.lookup(asset)
	if err != nil {
		return 0, err
	}
	return int64(f.UncompressedSize64), nil
}

// OpenAsset opens asset for streaming reads.
func (b *Bundle) OpenAsset(asset string) (io.ReadCloser, error) {
	f, err := b.lookup(asset)
	if err != nil {
		return nil, err
	}
	return f.Open()
}

// ReadAsset reads asset fully.
func (b *Bundle) ReadAsset(asset string) ([]byte, error) {
	rc, err := b.OpenAsset(asset)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Release drops the archive. Further reads fail.
func (b *Bundle) Release() {
	b.released = true
	b.files = nil
	b.entries = nil
}
