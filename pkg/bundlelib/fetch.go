package bundlelib

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/warpdl/warpbundle/pkg/logger"
)

// Fetch is an in-flight transfer. It is polled from the manager's tick and
// never blocks.
type Fetch interface {
	// URL is the address being fetched.
	URL() string
	// Progress is the completed fraction in [0, 1].
	Progress() float64
	// Done reports whether the transfer finished, successfully or not.
	Done() bool
	// Result returns the payload or error. Valid once Done returns true.
	Result() ([]byte, error)
}

// ProgressFunc reports bytes read so far and the expected total; total is
// -1 when unknown.
type ProgressFunc func(read, total int64)

type asyncFetch struct {
	url      string
	progress atomic.Uint64
	done     atomic.Bool
	mu       sync.Mutex
	data     []byte
	err      error
}

// startFetch runs retrieve in a recovered goroutine and returns a pollable
// handle for it.
func startFetch(ctx context.Context, l logger.Logger, url string, retrieve func(ctx context.Context, progress ProgressFunc) ([]byte, error)) *asyncFetch {
	f := &asyncFetch{url: url}
	onPanic := func(r interface{}) {
		f.finish(nil, fmt.Errorf("fetch %s panicked: %v", url, r))
	}
	safeGo(l, nil, "fetch:"+url, onPanic, func() {
		data, err := retrieve(ctx, f.report)
		f.finish(data, err)
	})
	return f
}

// completedFetch returns a handle that is already done.
func completedFetch(url string, data []byte, err error) *asyncFetch {
	f := &asyncFetch{url: url}
	f.finish(data, err)
	return f
}

func (f *asyncFetch) report(read, total int64) {
	if total <= 0 {
		return
	}
	p := float64(read) / float64(total)
	if p > 1 {
		p = 1
	}
	for {
		old := f.progress.Load()
		if math.Float64frombits(old) >= p {
			return
		}
		if f.progress.CompareAndSwap(old, math.Float64bits(p)) {
			return
		}
	}
}

func (f *asyncFetch) finish(data []byte, err error) {
	f.mu.Lock()
	if f.done.Load() {
		f.mu.Unlock()
		return
	}
	f.data, f.err = data, err
	f.mu.Unlock()
	if err == nil {
		f.progress.Store(math.Float64bits(1))
	}
	f.done.Store(true)
}

func (f *asyncFetch) URL() string { return f.url }

func (f *asyncFetch) Progress() float64 {
	return math.Float64frombits(f.progress.Load())
}

func (f *asyncFetch) Done() bool { return f.done.Load() }

func (f *asyncFetch) Result() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data, f.err
}

var _ Fetch = (*asyncFetch)(nil)
