package bundlelib

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/warpdl/warpbundle/pkg/logger"
)

func newTestCatalog(t *testing.T, fs afero.Fs) *Catalog {
	t.Helper()
	return NewCatalog(fs, "/cache", "/streaming", "linux", logger.NewNopLogger())
}

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	if err := afero.WriteFile(fs, path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func TestCatalogSeedsFromStreaming(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/streaming/assetbundles_version_linux.txt", "hero;1\ndlc;1\nmap;2")
	writeFile(t, fs, "/streaming/exclude_assetbundles.txt", "dlc")

	c := newTestCatalog(t, fs)
	if err := c.PrepareLocal(); err != nil {
		t.Fatalf("PrepareLocal: %v", err)
	}
	if got := c.Local().String(); got != "hero;1\nmap;2" {
		t.Fatalf("unexpected local map %q", got)
	}
	if got := readFile(t, fs, c.LocalVersionPath()); got != "hero;1\nmap;2" {
		t.Fatalf("unexpected persisted local map %q", got)
	}
	if got := readFile(t, fs, c.ExcludePath()); got != "dlc" {
		t.Fatalf("unexpected persisted exclude list %q", got)
	}
	if _, ok := c.IncludedVersion("dlc"); ok {
		t.Fatalf("excluded bundle should not be included")
	}
	if v, ok := c.IncludedVersion("map"); !ok || v != 2 {
		t.Fatalf("expected included map=2, got %d %v", v, ok)
	}
}

func TestCatalogReadsExistingLocal(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/streaming/assetbundles_version_linux.txt", "hero;1\ndlc;1")
	writeFile(t, fs, "/cache/assetbundles_version_linux.txt", "hero;4")
	writeFile(t, fs, "/cache/exclude_assetbundles.txt", "dlc")

	c := newTestCatalog(t, fs)
	if err := c.PrepareLocal(); err != nil {
		t.Fatalf("PrepareLocal: %v", err)
	}
	if v := c.Local().Version("hero"); v != 4 {
		t.Fatalf("expected local hero=4, got %d", v)
	}
	if !equalStrings(c.Excluded(), []string{"dlc"}) {
		t.Fatalf("unexpected exclude list %v", c.Excluded())
	}
	if c.Streaming().Len() != 1 {
		t.Fatalf("expected excluded bundle removed from streaming map, got %q", c.Streaming().String())
	}
}

func TestCatalogMissingFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := newTestCatalog(t, fs)
	if err := c.PrepareLocal(); err != nil {
		t.Fatalf("PrepareLocal: %v", err)
	}
	if c.Local().Len() != 0 {
		t.Fatalf("expected empty local map")
	}
	if ok, _ := afero.Exists(fs, c.LocalVersionPath()); !ok {
		t.Fatalf("expected local version file to be created")
	}
}

func TestCatalogMarkDownloadedAndSave(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := newTestCatalog(t, fs)
	if err := c.PrepareLocal(); err != nil {
		t.Fatalf("PrepareLocal: %v", err)
	}
	c.SetRemote(VersionMapFromRecords([]VersionRecord{{"hero", 2}, {"map", 1}}))
	if c.IsDownloaded("hero") {
		t.Fatalf("hero should not be downloaded yet")
	}
	if got := c.Diff(false, ""); !equalStrings(got, []string{"hero", "map"}) {
		t.Fatalf("unexpected diff %v", got)
	}

	c.MarkDownloaded("hero")
	c.MarkDownloaded("unknown")
	if !c.Dirty() {
		t.Fatalf("expected catalog to be dirty")
	}
	if !c.IsDownloaded("hero") {
		t.Fatalf("hero should be downloaded")
	}
	if err := c.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if c.Dirty() {
		t.Fatalf("expected clean catalog after save")
	}
	if got := readFile(t, fs, c.LocalVersionPath()); got != "hero;2" {
		t.Fatalf("unexpected persisted map %q", got)
	}
	if ok, _ := afero.Exists(fs, c.LocalVersionPath()+".tmp"); ok {
		t.Fatalf("temporary file left behind")
	}
	if got := c.Diff(false, ""); !equalStrings(got, []string{"map"}) {
		t.Fatalf("unexpected diff %v", got)
	}
}

func TestCatalogReset(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/cache/assetbundles_version_linux.txt", "hero;4")
	writeFile(t, fs, "/cache/exclude_assetbundles.txt", "dlc")
	c := newTestCatalog(t, fs)
	if err := c.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if ok, _ := afero.Exists(fs, c.LocalVersionPath()); ok {
		t.Fatalf("local version file should be removed")
	}
	if ok, _ := afero.Exists(fs, c.ExcludePath()); ok {
		t.Fatalf("exclude file should be removed")
	}
	if err := c.Reset(); err != nil {
		t.Fatalf("second Reset: %v", err)
	}
}

func TestCatalogMalformedLocal(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/cache/assetbundles_version_linux.txt", "broken")
	c := newTestCatalog(t, fs)
	if err := c.PrepareLocal(); err == nil {
		t.Fatalf("expected error for malformed local version file")
	}
}
