package bundlelib

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/warpdl/warpbundle/pkg/logger"
)

// Catalog tracks the three version maps the manager works with:
//   - local: versions of bundles already downloaded, persisted under the cache dir
//   - remote: versions published by the server for this platform
//   - streaming: versions shipped read-only with the install, minus excluded bundles
//
// A Catalog is owned by the manager's tick loop and is not safe for
// concurrent use.
type Catalog struct {
	fs           afero.Fs
	cacheDir     string
	streamingDir string
	platform     string
	l            logger.Logger

	local     *VersionMap
	remote    *VersionMap
	streaming *VersionMap
	excluded  []string
	dirty     bool
}

// NewCatalog creates a catalog persisting its files in cacheDir and
// reading shipped content from streamingDir.
func NewCatalog(fs afero.Fs, cacheDir, streamingDir, platform string, l logger.Logger) *Catalog {
	if l == nil {
		l = logger.NewNopLogger()
	}
	return &Catalog{
		fs:           fs,
		cacheDir:     cacheDir,
		streamingDir: streamingDir,
		platform:     platform,
		l:            l,
		local:        NewVersionMap(),
		remote:       NewVersionMap(),
		streaming:    NewVersionMap(),
	}
}

// LocalVersionPath is where the local version map is persisted.
func (c *Catalog) LocalVersionPath() string {
	return filepath.Join(c.cacheDir, VersionFileName(c.platform))
}

// ExcludePath is where the exclude list is persisted.
func (c *Catalog) ExcludePath() string {
	return filepath.Join(c.cacheDir, ExcludeFileName)
}

// PrepareLocal loads the local version map. On first run it seeds the map
// from the shipped version file, drops excluded bundles, and persists both
// the filtered map and the exclude list to the cache dir.
func (c *Catalog) PrepareLocal() error {
	c.local = NewVersionMap()
	c.streaming = NewVersionMap()
	c.excluded = nil

	exists, err := afero.Exists(c.fs, c.LocalVersionPath())
	if err != nil {
		return err
	}
	if !exists {
		return c.seedLocal()
	}

	local, err := c.readVersionFile(c.LocalVersionPath())
	if err != nil {
		return err
	}
	c.local = local
	excluded, err := c.readExcludeFile(c.ExcludePath())
	if err != nil {
		return err
	}
	c.excluded = excluded
	streaming, err := c.readVersionFile(filepath.Join(c.streamingDir, VersionFileName(c.platform)))
	if err != nil {
		return err
	}
	for _, name := range excluded {
		streaming.Delete(name)
	}
	c.streaming = streaming
	return nil
}

func (c *Catalog) seedLocal() error {
	shipped, err := c.readVersionFile(filepath.Join(c.streamingDir, VersionFileName(c.platform)))
	if err != nil {
		return err
	}
	excluded, err := c.readExcludeFile(filepath.Join(c.streamingDir, ExcludeFileName))
	if err != nil {
		return err
	}
	for _, name := range excluded {
		shipped.Delete(name)
	}
	c.excluded = excluded
	c.streaming = shipped
	c.local = shipped.Clone()

	if err := c.fs.MkdirAll(c.cacheDir, 0755); err != nil {
		return err
	}
	if err := c.writeAtomic(c.LocalVersionPath(), []byte(c.local.String())); err != nil {
		return err
	}
	if err := c.writeAtomic(c.ExcludePath(), []byte(strings.Join(excluded, "\n"))); err != nil {
		return err
	}
	c.dirty = false
	c.l.Info("Seeded local version file with %d record(s), %d excluded", c.local.Len(), len(excluded))
	return nil
}

// readVersionFile treats a missing file as an empty map so that installs
// shipping no bundles still work.
func (c *Catalog) readVersionFile(path string) (*VersionMap, error) {
	data, err := afero.ReadFile(c.fs, path)
	if errors.Is(err, os.ErrNotExist) {
		c.l.Info("Version file %s not found, starting empty", path)
		return NewVersionMap(), nil
	}
	if err != nil {
		return nil, err
	}
	vm, err := ParseVersionMap(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return vm, nil
}

func (c *Catalog) readExcludeFile(path string) ([]string, error) {
	data, err := afero.ReadFile(c.fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ParseExcludeList(bytes.NewReader(data))
}

func (c *Catalog) writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := afero.WriteFile(c.fs, tmp, data, 0644); err != nil {
		return err
	}
	return c.fs.Rename(tmp, path)
}

// Reset deletes the persisted version and exclude files.
func (c *Catalog) Reset() error {
	for _, p := range []string{c.LocalVersionPath(), c.ExcludePath()} {
		if err := c.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	c.local = NewVersionMap()
	c.dirty = false
	c.l.Info("Cleaned version files.")
	return nil
}

// SetRemote replaces the remote version map.
func (c *Catalog) SetRemote(remote *VersionMap) {
	c.remote = remote
}

// Local returns a copy of the local version map.
func (c *Catalog) Local() *VersionMap { return c.local.Clone() }

// Remote returns a copy of the remote version map.
func (c *Catalog) Remote() *VersionMap { return c.remote.Clone() }

// Streaming returns a copy of the shipped version map.
func (c *Catalog) Streaming() *VersionMap { return c.streaming.Clone() }

// Excluded returns the exclude list.
func (c *Catalog) Excluded() []string {
	out := make([]string, len(c.excluded))
	copy(out, c.excluded)
	return out
}

// HasRemote reports whether a remote map has been set.
func (c *Catalog) HasRemote() bool {
	return c.remote.Len() > 0
}

// RemoteVersion returns the remote version of name or -1.
func (c *Catalog) RemoteVersion(name string) int {
	return c.remote.Version(name)
}

// IncludedVersion returns the version of name shipped with the install.
func (c *Catalog) IncludedVersion(name string) (int, bool) {
	return c.streaming.Get(name)
}

// IsDownloaded reports whether the local version of name equals the remote one.
func (c *Catalog) IsDownloaded(name string) bool {
	return isCurrent(c.local, c.remote, name)
}

// MarkDownloaded sets the local version of name to the remote one.
// The change is persisted by the next Save.
func (c *Catalog) MarkDownloaded(name string) {
	rv, ok := c.remote.Get(name)
	if !ok {
		return
	}
	if lv, ok := c.local.Get(name); ok && lv == rv {
		return
	}
	c.local.Set(name, rv)
	c.dirty = true
}

// Dirty reports whether the local map has unsaved changes.
func (c *Catalog) Dirty() bool {
	return c.dirty
}

// Save persists the local map if it changed. The file is replaced
// atomically so a crash never leaves a partial version file.
func (c *Catalog) Save() error {
	if !c.dirty {
		return nil
	}
	if err := c.fs.MkdirAll(c.cacheDir, 0755); err != nil {
		return err
	}
	if err := c.writeAtomic(c.LocalVersionPath(), []byte(c.local.String())); err != nil {
		return err
	}
	c.dirty = false
	return nil
}

// Diff compares the local map against the remote one.
func (c *Catalog) Diff(checkExcluded bool, manifestName string) []string {
	return Diff(c.local, c.remote, c.excluded, DiffOptions{
		CheckExcluded: checkExcluded,
		ManifestName:  manifestName,
	})
}
