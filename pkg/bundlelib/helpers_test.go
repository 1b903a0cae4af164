package bundlelib

import (
	"archive/zip"
	"bytes"
	"context"
	"sort"
	"sync"
	"testing"
	"time"
)

// makeBundle builds a bundle archive holding the given entries.
func makeBundle(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	names := make([]string, 0, len(entries))
	for n := range entries {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		w, err := zw.Create(n)
		if err != nil {
			t.Fatalf("create entry %s: %v", n, err)
		}
		if _, err := w.Write([]byte(entries[n])); err != nil {
			t.Fatalf("write entry %s: %v", n, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

// manualFetch is a Fetch completed by the test.
type manualFetch struct {
	mu       sync.Mutex
	url      string
	progress float64
	done     bool
	data     []byte
	err      error
}

func (f *manualFetch) URL() string { return f.url }

func (f *manualFetch) Progress() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.progress
}

func (f *manualFetch) Done() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

func (f *manualFetch) Result() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data, f.err
}

func (f *manualFetch) setProgress(p float64) {
	f.mu.Lock()
	f.progress = p
	f.mu.Unlock()
}

func (f *manualFetch) resolve(data []byte, err error) {
	f.mu.Lock()
	f.data, f.err, f.done = data, err, true
	if err == nil {
		f.progress = 1
	}
	f.mu.Unlock()
}

// fakeTransport hands out manual fetches. With autoServe set, requests for
// known content complete immediately.
type fakeTransport struct {
	mu        sync.Mutex
	requests  []Request
	fetches   map[string]*manualFetch
	content   map[string][]byte
	failures  map[string]error
	autoServe bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		fetches:  make(map[string]*manualFetch),
		content:  make(map[string][]byte),
		failures: make(map[string]error),
	}
}

func (ft *fakeTransport) Fetch(_ context.Context, req Request) Fetch {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.requests = append(ft.requests, req)
	f := &manualFetch{url: req.URL}
	ft.fetches[req.Name] = f
	if ft.autoServe {
		if err, ok := ft.failures[req.Name]; ok {
			f.resolve(nil, err)
		} else if data, ok := ft.content[req.Name]; ok {
			f.resolve(data, nil)
		}
	}
	return f
}

func (ft *fakeTransport) fetch(name string) *manualFetch {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.fetches[name]
}

func (ft *fakeTransport) requestedNames() []string {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	names := make([]string, 0, len(ft.requests))
	for _, r := range ft.requests {
		names = append(names, r.Name)
	}
	return names
}

// fakeManifest is an in-memory Manifest.
type fakeManifest struct {
	deps     map[string][]string
	variants []string
}

func (m *fakeManifest) AllBundleNames() []string {
	names := make([]string, 0, len(m.deps))
	for n := range m.deps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (m *fakeManifest) DependenciesOf(name string) []string { return m.deps[name] }
func (m *fakeManifest) AllVariantBundleNames() []string     { return m.variants }
func (m *fakeManifest) HashOf(string) string                { return "" }

// tickUntil ticks m until cond holds or the deadline passes.
func tickUntil(t *testing.T, m *Manager, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not reached before deadline")
		}
		m.Tick()
		time.Sleep(time.Millisecond)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
