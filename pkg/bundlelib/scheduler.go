package bundlelib

import (
	"context"

	"github.com/warpdl/warpbundle/pkg/logger"
)

// DownloadCallback is invoked once per finished download; err is nil on
// success.
type DownloadCallback func(name string, err error)

type downloadTask struct {
	name      string
	url       string
	version   int
	counted   bool
	callbacks []DownloadCallback
	fetch     Fetch
}

// FetchStatus describes a running transfer.
type FetchStatus struct {
	Name     string
	Progress float64
}

// DownloadScheduler runs at most maxConcurrent transfers, keeps the rest
// in a FIFO queue and reports batch progress. Downloads requested by
// Enqueue count towards progress; reads originated by loads do not.
// It is driven from the manager tick and is not safe for concurrent use.
type DownloadScheduler struct {
	maxConcurrent int
	waiting       []*downloadTask
	active        map[string]*downloadTask
	order         []string
	completed     int
	total         int

	ctx       context.Context
	catalog   *Catalog
	registry  *Registry
	transport Transport
	urlFor    func(name string) string
	handlers  *Handlers
	metrics   *Metrics
	l         logger.Logger
}

// NewDownloadScheduler creates a scheduler.
func NewDownloadScheduler(ctx context.Context, maxConcurrent int, catalog *Catalog, registry *Registry, transport Transport, urlFor func(string) string, handlers *Handlers, metrics *Metrics, l logger.Logger) *DownloadScheduler {
	if maxConcurrent < 1 {
		maxConcurrent = DefaultMaxConcurrentDownloads
	}
	if l == nil {
		l = logger.NewNopLogger()
	}
	if handlers == nil {
		handlers = &Handlers{}
		handlers.setDefault(l)
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &DownloadScheduler{
		maxConcurrent: maxConcurrent,
		active:        make(map[string]*downloadTask),
		ctx:           ctx,
		catalog:       catalog,
		registry:      registry,
		transport:     transport,
		urlFor:        urlFor,
		handlers:      handlers,
		metrics:       metrics,
		l:             l,
	}
}

func (s *DownloadScheduler) find(name string) *downloadTask {
	if t, ok := s.active[name]; ok {
		return t
	}
	for _, t := range s.waiting {
		if t.name == name {
			return t
		}
	}
	return nil
}

// Enqueue schedules a download of name. A bundle whose local version
// already equals the remote one completes immediately. A name already
// queued or running gets cb attached instead of a second transfer.
func (s *DownloadScheduler) Enqueue(name string, cb DownloadCallback) {
	if s.catalog.IsDownloaded(name) {
		if cb != nil {
			cb(name, nil)
		}
		return
	}
	if t := s.find(name); t != nil {
		if cb != nil {
			t.callbacks = append(t.callbacks, cb)
		}
		if !t.counted {
			t.counted = true
			s.total++
		}
		return
	}
	if s.total > 0 && s.completed == s.total {
		s.finishBatch()
	}
	t := &downloadTask{name: name, counted: true}
	if cb != nil {
		t.callbacks = append(t.callbacks, cb)
	}
	s.total++
	s.waiting = append(s.waiting, t)
	s.metrics.queuedDownloads.Set(float64(len(s.waiting)))
}

// originate schedules a read of name on behalf of a load. It bypasses the
// already-downloaded shortcut; the cached transport serves current bundles.
func (s *DownloadScheduler) originate(name string) {
	if s.find(name) != nil {
		return
	}
	s.waiting = append(s.waiting, &downloadTask{name: name})
	s.metrics.queuedDownloads.Set(float64(len(s.waiting)))
}

// Tick starts queued transfers up to the concurrency cap and completes
// finished ones. It returns true while work remains.
func (s *DownloadScheduler) Tick() bool {
	s.startWaiting()
	s.poll()
	s.startWaiting()
	if s.total > 0 && s.completed == s.total && len(s.waiting) == 0 && !s.hasCountedActive() {
		s.finishBatch()
	}
	s.metrics.inflightFetches.Set(float64(len(s.active)))
	s.metrics.queuedDownloads.Set(float64(len(s.waiting)))
	return s.Busy()
}

// finishBatch reports the drained batch and resets the counters. Enqueue
// calls it too, for a completion callback that queues the next batch.
func (s *DownloadScheduler) finishBatch() {
	total := s.total
	s.completed, s.total = 0, 0
	s.handlers.BatchFinishedHandler(total)
}

func (s *DownloadScheduler) hasCountedActive() bool {
	for _, t := range s.active {
		if t.counted {
			return true
		}
	}
	return false
}

func (s *DownloadScheduler) startWaiting() {
	for len(s.active) < s.maxConcurrent && len(s.waiting) > 0 {
		t := s.waiting[0]
		s.waiting = s.waiting[1:]
		t.url = s.urlFor(t.name)
		t.version = s.catalog.RemoteVersion(t.name)
		t.fetch = s.transport.Fetch(s.ctx, Request{URL: t.url, Name: t.name, Version: t.version})
		s.active[t.name] = t
		s.order = append(s.order, t.name)
	}
}

func (s *DownloadScheduler) poll() {
	var finished []*downloadTask
	remaining := s.order[:0]
	for _, name := range s.order {
		t := s.active[name]
		if t.fetch.Done() {
			finished = append(finished, t)
			delete(s.active, name)
			continue
		}
		remaining = append(remaining, name)
	}
	s.order = remaining

	for _, t := range finished {
		s.complete(t)
	}
}

func (s *DownloadScheduler) complete(t *downloadTask) {
	data, err := t.fetch.Result()
	var b *Bundle
	if err == nil {
		b, err = OpenBundle(t.name, data)
	}
	if err != nil {
		var be *BundleError
		if !asBundleError(err, &be) {
			err = &BundleError{Op: opDownload, Name: t.name, URL: StripURLCredentials(t.url), Cause: err}
		}
		s.registry.Fail(t.name, err)
		s.metrics.downloadFinished(0, err)
		s.handlers.ErrorHandler(t.name, err)
	} else {
		s.registry.Deliver(t.name, b)
		s.catalog.MarkDownloaded(t.name)
		s.metrics.downloadFinished(len(data), nil)
		s.l.Info("Downloaded bundle %s (%d bytes)", t.name, len(data))
	}
	if t.counted {
		s.completed++
	}
	s.handlers.BundleDownloadedHandler(t.name, err)
	for _, cb := range t.callbacks {
		cb(t.name, err)
	}
}

// Progress returns completed plus the partial progress of running counted
// transfers, and the batch total. Both are zero once a batch drains.
func (s *DownloadScheduler) Progress() (done float64, total int) {
	done = float64(s.completed)
	for _, name := range s.order {
		t := s.active[name]
		if t.counted {
			done += t.fetch.Progress()
		}
	}
	return done, s.total
}

// Busy reports whether any transfer is queued or running.
func (s *DownloadScheduler) Busy() bool {
	return len(s.waiting) > 0 || len(s.active) > 0
}

// DownloadsPending reports whether any counted download is unfinished.
func (s *DownloadScheduler) DownloadsPending() bool {
	if s.hasCountedActive() {
		return true
	}
	for _, t := range s.waiting {
		if t.counted {
			return true
		}
	}
	return false
}

// Running returns the running transfers in start order.
func (s *DownloadScheduler) Running() []FetchStatus {
	out := make([]FetchStatus, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, FetchStatus{Name: name, Progress: s.active[name].fetch.Progress()})
	}
	return out
}

// FetchProgress returns the progress of a running transfer of name.
func (s *DownloadScheduler) FetchProgress(name string) (float64, bool) {
	if t, ok := s.active[name]; ok {
		return t.fetch.Progress(), true
	}
	return 0, false
}

// ActiveCount returns the number of running transfers.
func (s *DownloadScheduler) ActiveCount() int {
	return len(s.active)
}

// WaitingCount returns the number of queued transfers.
func (s *DownloadScheduler) WaitingCount() int {
	return len(s.waiting)
}
