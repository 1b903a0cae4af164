package bundlelib

import (
	"errors"
	"testing"

	"github.com/warpdl/warpbundle/pkg/logger"
)

func openTestBundle(t *testing.T, name string) *Bundle {
	t.Helper()
	b, err := OpenBundle(name, makeBundle(t, map[string]string{"asset.txt": name}))
	if err != nil {
		t.Fatalf("OpenBundle: %v", err)
	}
	return b
}

func TestRegistryRefCounting(t *testing.T) {
	r := NewRegistry(logger.NewNopLogger(), nil)
	if r.LoadInternal("hero") {
		t.Fatalf("expected LoadInternal to require origination")
	}
	r.Install("hero", openTestBundle(t, "hero"), 1)
	if !r.LoadInternal("hero") {
		t.Fatalf("expected LoadInternal to succeed on a loaded bundle")
	}
	if n := r.RefCount("hero"); n != 2 {
		t.Fatalf("expected refcount 2, got %d", n)
	}
	if r.UnloadInternal("hero") {
		t.Fatalf("bundle should still be held")
	}
	if !r.UnloadInternal("hero") {
		t.Fatalf("bundle should be gone")
	}
	if len(r.Loaded()) != 0 {
		t.Fatalf("expected empty registry, got %v", r.Loaded())
	}
	if !r.UnloadInternal("hero") {
		t.Fatalf("unloading an absent bundle should report gone")
	}
}

func TestRegistryPendingRefs(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.BeginFetch("hero")
	if !r.Fetching("hero") {
		t.Fatalf("expected hero to be fetching")
	}
	if !r.LoadInternal("hero") {
		t.Fatalf("expected a second load to join the fetch")
	}
	if n := r.RefCount("hero"); n != 2 {
		t.Fatalf("expected pending refcount 2, got %d", n)
	}
	b := openTestBundle(t, "hero")
	r.Deliver("hero", b)
	if r.Fetching("hero") {
		t.Fatalf("fetch should be settled")
	}
	lb, err := r.GetLoaded("hero")
	if err != nil || lb == nil {
		t.Fatalf("expected loaded bundle, got %v %v", lb, err)
	}
	if lb.RefCount() != 2 {
		t.Fatalf("expected refcount 2 after delivery, got %d", lb.RefCount())
	}
}

func TestRegistryDeliverWithoutRefs(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.BeginFetch("hero")
	r.UnloadInternal("hero")
	b := openTestBundle(t, "hero")
	r.Deliver("hero", b)
	if len(r.Loaded()) != 0 {
		t.Fatalf("bundle without refs should not be installed")
	}
	if b.Contains("asset.txt") {
		t.Fatalf("bundle without refs should be released")
	}
}

func TestRegistryFailIsSticky(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.BeginFetch("hero")
	boom := errors.New("boom")
	r.Fail("hero", boom)
	if r.Fetching("hero") {
		t.Fatalf("failed fetch should drop pending refs")
	}
	if _, err := r.GetLoaded("hero"); !errors.Is(err, boom) {
		t.Fatalf("expected sticky error, got %v", err)
	}
	if len(r.Errors()) != 1 {
		t.Fatalf("expected one recorded error")
	}
	r.Install("hero", openTestBundle(t, "hero"), 1)
	if err := r.Error("hero"); err != nil {
		t.Fatalf("install should clear the error, got %v", err)
	}
}

func TestRegistryClearError(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.SetDependencies("scene", []string{"common"})
	r.Install("scene", openTestBundle(t, "scene"), 1)
	boom := errors.New("boom")
	r.Fail("common", boom)
	if _, err := r.GetLoaded("scene"); !errors.Is(err, boom) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if _, err := r.GetLoaded("scene"); !errors.Is(err, boom) {
		t.Fatalf("expected error to persist across calls, got %v", err)
	}

	r.ClearError("common")
	if lb, err := r.GetLoaded("scene"); lb != nil || err != nil {
		t.Fatalf("expected nil, nil after clearing, got %v %v", lb, err)
	}
	if len(r.Errors()) != 0 {
		t.Fatalf("expected no recorded errors, got %v", r.Errors())
	}
	r.Install("common", openTestBundle(t, "common"), 1)
	if lb, err := r.GetLoaded("scene"); lb == nil || err != nil {
		t.Fatalf("expected scene ready, got %v %v", lb, err)
	}
}

func TestRegistryGetLoadedWaitsForDependencies(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.SetDependencies("scene", []string{"common"})
	r.SetDependencies("common", []string{"shaders"})
	r.Install("scene", openTestBundle(t, "scene"), 1)
	r.Install("common", openTestBundle(t, "common"), 1)
	if lb, err := r.GetLoaded("scene"); lb != nil || err != nil {
		t.Fatalf("expected nil while shaders missing, got %v %v", lb, err)
	}
	r.Install("shaders", openTestBundle(t, "shaders"), 1)
	if lb, err := r.GetLoaded("scene"); lb == nil || err != nil {
		t.Fatalf("expected scene ready, got %v %v", lb, err)
	}
}

func TestRegistryClose(t *testing.T) {
	r := NewRegistry(nil, nil)
	b := openTestBundle(t, "hero")
	r.Install("hero", b, 3)
	r.BeginFetch("map")
	r.Close()
	if len(r.Loaded()) != 0 || r.Fetching("map") {
		t.Fatalf("registry should be empty after Close")
	}
	if b.Contains("asset.txt") {
		t.Fatalf("bundle should be released on Close")
	}
}
