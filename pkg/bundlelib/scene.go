package bundlelib

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/warpdl/warpbundle/pkg/logger"
)

// Scene is the result of a scene operation using the default activator.
type Scene struct {
	Name     string
	Bundle   string
	Additive bool
	Data     []byte
}

// sceneLoadedProgress is where a scene waits for activation once its
// content is read.
const sceneLoadedProgress = 0.9

// BundleSceneActivator reads the scene asset from the bundle. Reading maps
// to [0, 0.9]; Activate moves a loaded request to 1.
type BundleSceneActivator struct {
	l logger.Logger
}

// NewBundleSceneActivator creates the default activator.
func NewBundleSceneActivator(l logger.Logger) *BundleSceneActivator {
	if l == nil {
		l = logger.NewNopLogger()
	}
	return &BundleSceneActivator{l: l}
}

func (a *BundleSceneActivator) ActivateScene(b *Bundle, scene string, additive bool) (SceneRequest, error) {
	if !b.Contains(scene) {
		return nil, fmt.Errorf("%w: scene %s in bundle %s", ErrAssetNotFound, scene, b.Name())
	}
	req := &BundleSceneRequest{}
	req.scene = &Scene{Name: scene, Bundle: b.Name(), Additive: additive}
	x := startExtraction(a.l, b, scene, nil)
	req.x = x
	return req, nil
}

// BundleSceneRequest is the SceneRequest of BundleSceneActivator.
type BundleSceneRequest struct {
	x         *extraction
	activated atomic.Bool
	once      sync.Once
	scene     *Scene
	err       error
}

func (r *BundleSceneRequest) settle() {
	if !r.x.done.Load() {
		return
	}
	r.once.Do(func() {
		v, err := r.x.result()
		if err != nil {
			r.err = err
			return
		}
		r.scene.Data, _ = v.([]byte)
	})
}

func (r *BundleSceneRequest) Progress() float64 {
	r.settle()
	if r.activated.Load() && r.x.done.Load() {
		return 1
	}
	return math.Min(r.x.progress(), 1) * sceneLoadedProgress
}

func (r *BundleSceneRequest) Err() error {
	r.settle()
	return r.err
}

// Activate allows the scene to finish past the loaded stage.
func (r *BundleSceneRequest) Activate() {
	r.activated.Store(true)
}

// Scene returns the loaded scene once its content is read.
func (r *BundleSceneRequest) Scene() *Scene {
	r.settle()
	if !r.x.done.Load() || r.err != nil {
		return nil
	}
	return r.scene
}

var (
	_ SceneActivator = (*BundleSceneActivator)(nil)
	_ SceneRequest   = (*BundleSceneRequest)(nil)
)
