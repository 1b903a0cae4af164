package bundlelib

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
)

type schedulerFixture struct {
	catalog   *Catalog
	registry  *Registry
	transport *fakeTransport
	scheduler *DownloadScheduler
	batches   []int
	downloads []string
}

func newSchedulerFixture(t *testing.T, maxConcurrent int, remote []VersionRecord) *schedulerFixture {
	t.Helper()
	f := &schedulerFixture{
		catalog:   newTestCatalog(t, afero.NewMemMapFs()),
		registry:  NewRegistry(nil, nil),
		transport: newFakeTransport(),
	}
	if err := f.catalog.PrepareLocal(); err != nil {
		t.Fatalf("PrepareLocal: %v", err)
	}
	f.catalog.SetRemote(VersionMapFromRecords(remote))
	h := &Handlers{
		BatchFinishedHandler:    func(total int) { f.batches = append(f.batches, total) },
		BundleDownloadedHandler: func(name string, err error) { f.downloads = append(f.downloads, name) },
	}
	f.scheduler = NewDownloadScheduler(context.Background(), maxConcurrent, f.catalog, f.registry,
		f.transport, func(name string) string { return "http://origin/" + name }, h, nil, nil)
	return f
}

func TestSchedulerConcurrencyCap(t *testing.T) {
	f := newSchedulerFixture(t, 2, []VersionRecord{{"a", 1}, {"b", 1}, {"c", 1}})
	for _, n := range []string{"a", "b", "c"} {
		f.scheduler.Enqueue(n, nil)
	}
	f.scheduler.Tick()
	if f.scheduler.ActiveCount() != 2 || f.scheduler.WaitingCount() != 1 {
		t.Fatalf("expected 2 active and 1 waiting, got %d and %d",
			f.scheduler.ActiveCount(), f.scheduler.WaitingCount())
	}
	if got := f.transport.requestedNames(); !equalStrings(got, []string{"a", "b"}) {
		t.Fatalf("expected FIFO start order, got %v", got)
	}

	f.transport.fetch("b").setProgress(0.5)
	done, total := f.scheduler.Progress()
	if total != 3 || done != 0.5 {
		t.Fatalf("expected progress 0.5/3, got %v/%d", done, total)
	}

	f.transport.fetch("a").resolve(makeBundle(t, map[string]string{"x": "1"}), nil)
	f.scheduler.Tick()
	if got := f.transport.requestedNames(); !equalStrings(got, []string{"a", "b", "c"}) {
		t.Fatalf("expected c started after a finished, got %v", got)
	}
	if !f.catalog.IsDownloaded("a") {
		t.Fatalf("expected a marked downloaded")
	}
	if req := f.transport.requests[0]; req.URL != "http://origin/a" || req.Version != 1 {
		t.Fatalf("unexpected request %+v", req)
	}
	if got := f.scheduler.Running(); len(got) != 2 || got[0].Name != "b" || got[1].Name != "c" {
		t.Fatalf("unexpected running list %+v", got)
	}
}

func TestSchedulerDedupe(t *testing.T) {
	f := newSchedulerFixture(t, 4, []VersionRecord{{"a", 1}})
	var calls []error
	cb := func(name string, err error) { calls = append(calls, err) }
	f.scheduler.Enqueue("a", cb)
	f.scheduler.Tick()
	f.scheduler.Enqueue("a", cb)
	if _, total := f.scheduler.Progress(); total != 1 {
		t.Fatalf("expected duplicate not counted, total %d", total)
	}
	f.transport.fetch("a").resolve(makeBundle(t, map[string]string{"x": "1"}), nil)
	f.scheduler.Tick()
	if len(f.transport.requestedNames()) != 1 {
		t.Fatalf("expected a single transfer, got %v", f.transport.requestedNames())
	}
	if len(calls) != 2 || calls[0] != nil || calls[1] != nil {
		t.Fatalf("expected two successful callbacks, got %v", calls)
	}
}

func TestSchedulerAlreadyDownloaded(t *testing.T) {
	f := newSchedulerFixture(t, 4, []VersionRecord{{"a", 1}})
	f.catalog.MarkDownloaded("a")
	called := false
	f.scheduler.Enqueue("a", func(name string, err error) { called = err == nil })
	if !called {
		t.Fatalf("expected immediate callback")
	}
	if f.scheduler.Busy() {
		t.Fatalf("nothing should be scheduled")
	}
}

func TestSchedulerFailureCountsAsCompleted(t *testing.T) {
	f := newSchedulerFixture(t, 4, []VersionRecord{{"a", 1}, {"b", 1}})
	var failed error
	f.scheduler.Enqueue("a", func(name string, err error) { failed = err })
	f.scheduler.Enqueue("b", nil)
	f.scheduler.Tick()

	f.transport.fetch("a").resolve(nil, errors.New("connection reset"))
	f.scheduler.Tick()
	var be *BundleError
	if !errors.As(failed, &be) || be.Name != "a" || be.URL != "http://origin/a" {
		t.Fatalf("expected BundleError for a, got %v", failed)
	}
	if done, total := f.scheduler.Progress(); done != 1 || total != 2 {
		t.Fatalf("expected 1/2 after failure, got %v/%d", done, total)
	}
	if f.catalog.IsDownloaded("a") {
		t.Fatalf("failed bundle must not be marked downloaded")
	}
	if f.registry.Error("a") == nil {
		t.Fatalf("expected failure recorded in registry")
	}

	f.transport.fetch("b").resolve([]byte("not a zip"), nil)
	f.scheduler.Tick()
	if !errors.Is(f.registry.Error("b"), ErrInvalidBundle) {
		t.Fatalf("expected invalid bundle error, got %v", f.registry.Error("b"))
	}
	if done, total := f.scheduler.Progress(); done != 0 || total != 0 {
		t.Fatalf("expected counters reset, got %v/%d", done, total)
	}
	if len(f.batches) != 1 || f.batches[0] != 2 {
		t.Fatalf("expected one batch of 2, got %v", f.batches)
	}
	if !equalStrings(f.downloads, []string{"a", "b"}) {
		t.Fatalf("unexpected download notifications %v", f.downloads)
	}
}

func TestSchedulerRetryFromCallback(t *testing.T) {
	f := newSchedulerFixture(t, 4, []VersionRecord{{"a", 1}})
	retried := false
	var cb DownloadCallback
	cb = func(name string, err error) {
		if err != nil && !retried {
			retried = true
			f.scheduler.Enqueue(name, cb)
		}
	}
	f.scheduler.Enqueue("a", cb)
	f.scheduler.Tick()
	f.transport.fetch("a").resolve(nil, errors.New("connection reset"))
	f.scheduler.Tick()
	if !retried {
		t.Fatalf("expected the callback to retry")
	}
	if len(f.batches) != 1 || f.batches[0] != 1 {
		t.Fatalf("expected the failed batch reported before the retry, got %v", f.batches)
	}
	if _, total := f.scheduler.Progress(); total != 1 {
		t.Fatalf("expected the retry counted as a new batch, total %d", total)
	}

	f.transport.fetch("a").resolve(makeBundle(t, map[string]string{"x": "1"}), nil)
	f.scheduler.Tick()
	if len(f.batches) != 2 || f.batches[1] != 1 {
		t.Fatalf("expected the retry batch reported, got %v", f.batches)
	}
	if !f.catalog.IsDownloaded("a") {
		t.Fatalf("expected a downloaded after the retry")
	}
}

func TestSchedulerOriginateNotCounted(t *testing.T) {
	f := newSchedulerFixture(t, 4, []VersionRecord{{"a", 1}})
	f.registry.BeginFetch("a")
	f.scheduler.originate("a")
	f.scheduler.Tick()
	if _, total := f.scheduler.Progress(); total != 0 {
		t.Fatalf("load-originated reads must not count, total %d", total)
	}
	if f.scheduler.DownloadsPending() {
		t.Fatalf("no counted download should be pending")
	}
	if !f.scheduler.Busy() {
		t.Fatalf("scheduler should be busy with the read")
	}
	f.transport.fetch("a").resolve(makeBundle(t, map[string]string{"x": "1"}), nil)
	f.scheduler.Tick()
	if lb, err := f.registry.GetLoaded("a"); lb == nil || err != nil {
		t.Fatalf("expected a installed, got %v %v", lb, err)
	}
	if len(f.batches) != 0 {
		t.Fatalf("no batch should finish for uncounted reads")
	}
}

func TestSchedulerEnqueueJoinsOriginatedRead(t *testing.T) {
	f := newSchedulerFixture(t, 4, []VersionRecord{{"a", 1}})
	f.scheduler.originate("a")
	f.scheduler.Tick()
	f.scheduler.Enqueue("a", nil)
	if _, total := f.scheduler.Progress(); total != 1 {
		t.Fatalf("expected joined download counted, total %d", total)
	}
	if !f.scheduler.DownloadsPending() {
		t.Fatalf("expected counted download pending")
	}
}
