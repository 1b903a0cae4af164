package bundlelib

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/warpdl/warpbundle/pkg/logger"
)

// OperationKind is what an Operation produces.
type OperationKind int

const (
	OpLoadAsset OperationKind = iota
	OpLoadManifest
	OpLoadScene
)

func (k OperationKind) String() string {
	switch k {
	case OpLoadAsset:
		return "asset"
	case OpLoadManifest:
		return "manifest"
	case OpLoadScene:
		return "scene"
	}
	return fmt.Sprintf("OperationKind(%d)", int(k))
}

// OperationState is the lifecycle of an Operation.
type OperationState int

const (
	// StatePending waits for the bundle and its dependencies.
	StatePending OperationState = iota
	// StateRunning extracts the asset or activates the scene.
	StateRunning
	// StateDone holds the result or error.
	StateDone
)

func (s OperationState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("OperationState(%d)", int(s))
}

// DecodeFunc turns raw asset bytes into a typed value.
type DecodeFunc func(asset string, data []byte) (any, error)

// SceneRequest is an in-progress scene activation.
type SceneRequest interface {
	// Progress is in [0, 1]; activation is considered done at the
	// operation's completion threshold.
	Progress() float64
	Err() error
}

// SceneActivator starts activating a scene read from a loaded bundle.
type SceneActivator interface {
	ActivateScene(b *Bundle, scene string, additive bool) (SceneRequest, error)
}

// Operation is an asynchronous asset, manifest or scene load. It is
// advanced by the manager tick; callers poll Done or register OnDone.
type Operation struct {
	kind      OperationKind
	state     OperationState
	bundle    string
	asset     string
	additive  bool
	decode    DecodeFunc
	threshold float64

	extract *extraction
	scene   SceneRequest

	progress float64
	result   any
	err      error
	onDone   []func(*Operation)
}

func newOperation(kind OperationKind, bundle, asset string) *Operation {
	return &Operation{
		kind:      kind,
		bundle:    bundle,
		asset:     asset,
		threshold: DefaultSceneCompletionThreshold,
	}
}

func (op *Operation) Kind() OperationKind   { return op.kind }
func (op *Operation) State() OperationState { return op.state }
func (op *Operation) Bundle() string        { return op.bundle }
func (op *Operation) Asset() string         { return op.asset }
func (op *Operation) Done() bool            { return op.state == StateDone }
func (op *Operation) Err() error            { return op.err }
func (op *Operation) Result() any           { return op.result }

// Progress returns the completed fraction of the operation.
func (op *Operation) Progress() float64 {
	if op.state == StateDone {
		return 1
	}
	return op.progress
}

// OnDone registers fn to run when the operation finishes. It runs
// immediately if the operation already finished.
func (op *Operation) OnDone(fn func(*Operation)) {
	if op.state == StateDone {
		fn(op)
		return
	}
	op.onDone = append(op.onDone, fn)
}

func (op *Operation) finish(result any, err error) {
	if op.state == StateDone {
		return
	}
	op.state = StateDone
	op.result, op.err = result, err
	op.progress = 1
	callbacks := op.onDone
	op.onDone = nil
	for _, fn := range callbacks {
		fn(op)
	}
}

// AssetResult returns the result of op as T. It reports false if op is not
// done, failed, or holds a different type.
func AssetResult[T any](op *Operation) (T, bool) {
	var zero T
	if op == nil || op.state != StateDone || op.err != nil {
		return zero, false
	}
	v, ok := op.result.(T)
	return v, ok
}

// extraction reads an asset in the background.
type extraction struct {
	done  atomic.Bool
	mu    sync.Mutex
	value any
	err   error
	read  atomic.Int64
	size  int64
}

func startExtraction(l logger.Logger, b *Bundle, asset string, decode DecodeFunc) *extraction {
	x := &extraction{}
	size, err := b.AssetSize(asset)
	if err != nil {
		x.set(nil, err)
		return x
	}
	x.size = size
	rc, err := b.OpenAsset(asset)
	if err != nil {
		x.set(nil, err)
		return x
	}
	onPanic := func(r interface{}) {
		x.set(nil, fmt.Errorf("extract %s panicked: %v", asset, r))
	}
	safeGo(l, nil, "extract:"+asset, onPanic, func() {
		defer rc.Close()
		data, err := readAllWithProgress(rc, size, func(read, _ int64) { x.read.Store(read) })
		if err != nil {
			x.set(nil, err)
			return
		}
		if decode == nil {
			x.set(data, nil)
			return
		}
		v, err := decode(asset, data)
		x.set(v, err)
	})
	return x
}

func (x *extraction) set(v any, err error) {
	x.mu.Lock()
	x.value, x.err = v, err
	x.mu.Unlock()
	x.done.Store(true)
}

func (x *extraction) result() (any, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.value, x.err
}

func (x *extraction) progress() float64 {
	if x.done.Load() {
		return 1
	}
	if x.size <= 0 {
		return 0
	}
	return float64(x.read.Load()) / float64(x.size)
}
