package bundlelib

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ExcludeFileName is the name of the exclude list shipped next to the
// read-only version file.
const ExcludeFileName = "exclude_assetbundles.txt"

const recordSeparator = ";"

// VersionFileName returns the version file name for a platform.
func VersionFileName(platform string) string {
	return fmt.Sprintf("assetbundles_version_%s.txt", strings.ToLower(platform))
}

// VersionRecord is one line of a version file.
type VersionRecord struct {
	Name    string `json:"name"`
	Version int    `json:"version"`
}

// VersionMap maps bundle names to integer versions. It keeps first-insertion
// order so that serialized files are stable across runs.
// The zero value is not usable; use NewVersionMap.
type VersionMap struct {
	order []string
	m     map[string]int
}

// NewVersionMap creates an empty VersionMap.
func NewVersionMap() *VersionMap {
	return &VersionMap{m: make(map[string]int)}
}

// VersionMapFromRecords builds a VersionMap; later duplicates override earlier ones.
func VersionMapFromRecords(records []VersionRecord) *VersionMap {
	vm := NewVersionMap()
	for _, r := range records {
		vm.Set(r.Name, r.Version)
	}
	return vm
}

// Get returns the version recorded for name.
func (vm *VersionMap) Get(name string) (int, bool) {
	v, ok := vm.m[name]
	return v, ok
}

// Version returns the version recorded for name or -1 if absent.
func (vm *VersionMap) Version(name string) int {
	if v, ok := vm.m[name]; ok {
		return v
	}
	return -1
}

// Set records version for name.
func (vm *VersionMap) Set(name string, version int) {
	if _, ok := vm.m[name]; !ok {
		vm.order = append(vm.order, name)
	}
	vm.m[name] = version
}

// Delete removes name from the map.
func (vm *VersionMap) Delete(name string) {
	if _, ok := vm.m[name]; !ok {
		return
	}
	delete(vm.m, name)
	for i, n := range vm.order {
		if n == name {
			vm.order = append(vm.order[:i], vm.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of records.
func (vm *VersionMap) Len() int {
	return len(vm.order)
}

// Names returns the recorded names in insertion order.
func (vm *VersionMap) Names() []string {
	names := make([]string, len(vm.order))
	copy(names, vm.order)
	return names
}

// Records returns the map as records in insertion order.
func (vm *VersionMap) Records() []VersionRecord {
	records := make([]VersionRecord, 0, len(vm.order))
	for _, n := range vm.order {
		records = append(records, VersionRecord{Name: n, Version: vm.m[n]})
	}
	return records
}

// Clone returns a deep copy.
func (vm *VersionMap) Clone() *VersionMap {
	c := &VersionMap{
		order: make([]string, len(vm.order)),
		m:     make(map[string]int, len(vm.m)),
	}
	copy(c.order, vm.order)
	for k, v := range vm.m {
		c.m[k] = v
	}
	return c
}

// ParseVersionMap reads "name;version" lines. Blank lines are skipped and
// both LF and CRLF endings are accepted.
func ParseVersionMap(r io.Reader) (*VersionMap, error) {
	vm := NewVersionMap()
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		name, ver, ok := strings.Cut(text, recordSeparator)
		if !ok || name == "" || strings.Contains(ver, recordSeparator) {
			return nil, fmt.Errorf("%w: line %d: %q", ErrMalformedVersionRecord, line, text)
		}
		v, err := strconv.Atoi(ver)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("%w: line %d: invalid version %q", ErrMalformedVersionRecord, line, ver)
		}
		vm.Set(name, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return vm, nil
}

// WriteTo writes the map as "name;version" lines joined by a single LF with
// no trailing newline.
func (vm *VersionMap) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder
	for i, n := range vm.order {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(n)
		sb.WriteString(recordSeparator)
		sb.WriteString(strconv.Itoa(vm.m[n]))
	}
	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

func (vm *VersionMap) String() string {
	var sb strings.Builder
	_, _ = vm.WriteTo(&sb)
	return sb.String()
}

// ParseExcludeList reads one bundle name per line.
func ParseExcludeList(r io.Reader) ([]string, error) {
	var names []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		name := strings.TrimSpace(sc.Text())
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

// DiffOptions tunes Diff.
type DiffOptions struct {
	// CheckExcluded also version-checks bundles on the exclude list, so
	// excluded bundles that are not yet downloaded are fetched too.
	CheckExcluded bool
	// ManifestName is never part of the result; the manifest bundle is
	// loaded separately once downloads finish.
	ManifestName string
}

// Diff returns the remote names, in remote order, that need downloading:
// names absent from local or whose local version differs. Names in excluded
// are skipped unless CheckExcluded is set.
func Diff(local, remote *VersionMap, excluded []string, opts DiffOptions) []string {
	skip := make(map[string]struct{}, len(excluded))
	for _, e := range excluded {
		skip[e] = struct{}{}
	}
	var stale []string
	for _, name := range remote.order {
		if opts.ManifestName != "" && name == opts.ManifestName {
			continue
		}
		_, isExcluded := skip[name]
		if opts.CheckExcluded {
			if isExcluded && !isCurrent(local, remote, name) {
				stale = append(stale, name)
				continue
			} else if !isCurrent(local, remote, name) {
				stale = append(stale, name)
			}
			continue
		}
		if isExcluded {
			continue
		}
		if !isCurrent(local, remote, name) {
			stale = append(stale, name)
		}
	}
	return stale
}

func isCurrent(local, remote *VersionMap, name string) bool {
	lv, ok := local.m[name]
	if !ok {
		return false
	}
	rv, ok := remote.m[name]
	return ok && lv == rv
}
