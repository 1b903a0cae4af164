package bundlelib

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/warpdl/warpbundle/pkg/credman/keyring"
	"github.com/warpdl/warpbundle/pkg/logger"
)

type bootStage int

const (
	bootIdle bootStage = iota
	bootConnecting
	bootDownloading
	bootManifest
	bootReady
	bootFailed
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to a NopLogger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) { m.l = l }
}

// WithFs sets the filesystem for catalog files, streaming assets,
// simulation sources and cache blobs. Defaults to the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(m *Manager) { m.fs = fs }
}

// WithTransport replaces the cached network transport.
func WithTransport(t Transport) Option {
	return func(m *Manager) { m.transport = t }
}

// WithCache sets the bundle cache used by the default transport.
func WithCache(c *Cache) Option {
	return func(m *Manager) { m.cache = c }
}

// WithRegisterer registers the manager metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(m *Manager) { m.registerer = reg }
}

// WithHandlers sets the lifecycle callbacks.
func WithHandlers(h *Handlers) Option {
	return func(m *Manager) { m.handlers = h }
}

// WithSceneActivator replaces the default scene activator.
func WithSceneActivator(a SceneActivator) Option {
	return func(m *Manager) { m.activator = a }
}

// WithCredentials sets the password source for ftp and sftp URLs.
func WithCredentials(c CredentialStore) Option {
	return func(m *Manager) { m.creds = c }
}

// LoadOption configures a single asset or scene load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	decode DecodeFunc
	onDone func(*Operation)
}

// WithDecoder decodes the asset bytes into the operation result.
func WithDecoder(fn DecodeFunc) LoadOption {
	return func(o *loadOptions) { o.decode = fn }
}

// WithCompletion registers fn to run when the operation finishes.
func WithCompletion(fn func(*Operation)) LoadOption {
	return func(o *loadOptions) { o.onDone = fn }
}

// Manager loads bundles and their dependencies, keeps downloaded bundles
// in sync with a server and runs asset and scene operations. All methods
// must be called from the goroutine that calls Tick.
type Manager struct {
	cfg    Config
	l      logger.Logger
	fs     afero.Fs
	ctx    context.Context
	cancel context.CancelFunc

	catalog   *Catalog
	variants  *VariantResolver
	registry  *Registry
	scheduler *DownloadScheduler
	resolver  *DependencyResolver
	files     *FileRetriever
	transport Transport
	cache     *Cache
	ownsCache bool
	creds     CredentialStore

	registerer prometheus.Registerer
	metrics    *Metrics
	handlers   *Handlers
	activator  SceneActivator

	manifest Manifest
	ops      []*Operation

	stage             bootStage
	bootErr           error
	versionFetch      Fetch
	downloading       bool
	manifestRequested bool
	checkExcluded     bool
	recheck           bool
	onReady           []func()
	onVersionChecked  func()
	closed            bool
}

// New creates a Manager for cfg. Call Start and then Tick once per frame.
func New(cfg Config, opts ...Option) (*Manager, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{cfg: cfg, checkExcluded: cfg.CheckVersionForExcludedBundles}
	for _, opt := range opts {
		opt(m)
	}
	if m.l == nil {
		m.l = logger.NewNopLogger()
	}
	if m.fs == nil {
		m.fs = afero.NewOsFs()
	}
	if m.handlers == nil {
		m.handlers = &Handlers{}
	}
	m.handlers.setDefault(m.l)
	m.metrics = NewMetrics(m.registerer)
	m.ctx, m.cancel = context.WithCancel(context.Background())

	m.variants = NewVariantResolver(m.l)
	m.variants.SetActive(cfg.ActiveVariants)
	m.variants.OnAmbiguous(func(string, string) { m.metrics.ambiguousVariants.Inc() })
	m.catalog = NewCatalog(m.fs, cfg.CacheDir, cfg.StreamingAssetsDir, cfg.Platform, m.l)
	m.registry = NewRegistry(m.l, m.metrics)
	m.files = NewFileRetriever(m.fs)
	if m.activator == nil {
		m.activator = NewBundleSceneActivator(m.l)
	}

	if cfg.Mode == ModeServer && m.transport == nil {
		if err := m.initTransport(); err != nil {
			m.cancel()
			return nil, err
		}
	}
	m.scheduler = NewDownloadScheduler(m.ctx, cfg.MaxConcurrentDownloads, m.catalog, m.registry,
		m.transport, m.cfg.BundleURL, m.handlers, m.metrics, m.l)
	m.resolver = NewDependencyResolver(m.registry, m.variants,
		func() Manifest { return m.manifest }, m.originate, m.handlers, m.l)
	return m, nil
}

func (m *Manager) initTransport() error {
	client, err := NewHTTPClient(m.cfg.ProxyURL, m.cfg.RequestTimeout())
	if err != nil {
		return err
	}
	if m.creds == nil && m.cfg.UseKeyring {
		m.creds = keyring.NewKeyring()
	}
	router := NewRouter(RouterOptions{
		HTTPClient:     client,
		KnownHostsPath: m.cfg.KnownHostsPath,
		SSHKeyPath:     m.cfg.SSHKeyPath,
		Credentials:    m.creds,
		Logger:         m.l,
	})
	router.Register("file", m.files)
	if m.cache == nil {
		dir := filepath.Join(m.cfg.CacheDir, "bundles")
		dsn := MemoryIndex
		if _, ok := m.fs.(*afero.OsFs); ok {
			if err := m.fs.MkdirAll(dir, 0755); err != nil {
				return err
			}
			dsn = DefaultIndexDSN(dir)
		}
		c, err := OpenCache(m.fs, dir, dsn, m.l)
		if err != nil {
			return err
		}
		m.cache = c
		m.ownsCache = true
	}
	m.transport = NewCachedTransport(router, m.cache, m.l)
	return nil
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// Catalog returns the version catalog.
func (m *Manager) Catalog() *Catalog { return m.catalog }

// Registry returns the bundle registry.
func (m *Manager) Registry() *Registry { return m.registry }

// Scheduler returns the download scheduler.
func (m *Manager) Scheduler() *DownloadScheduler { return m.scheduler }

// Manifest returns the loaded manifest or nil.
func (m *Manager) Manifest() Manifest { return m.manifest }

// Ready reports whether the manager finished initializing.
func (m *Manager) Ready() bool { return m.stage == bootReady }

// Err returns the error that stopped initialization, if any.
func (m *Manager) Err() error { return m.bootErr }

// Start begins initialization. onReady, if non-nil, runs once the manager
// is ready.
func (m *Manager) Start(onReady func()) error {
	if m.closed {
		return ErrManagerClosed
	}
	if onReady != nil {
		if m.stage == bootReady {
			onReady()
		} else {
			m.onReady = append(m.onReady, onReady)
		}
	}
	if m.stage != bootIdle {
		return nil
	}
	m.l.Info("Starting bundle manager in %s mode", m.cfg.Mode)
	switch m.cfg.Mode {
	case ModeSimulation:
		if err := m.loadSimulationVariants(); err != nil {
			m.l.Warning("Reading simulation sources: %v", err)
		}
		m.becomeReady()
	case ModeStreamingAssets:
		m.stage = bootManifest
		m.requestManifest()
	case ModeServer:
		m.stage = bootConnecting
		m.handlers.ConnectServerHandler()
		m.versionFetch = m.transport.Fetch(m.ctx, Request{
			URL:     m.cfg.VersionFileURL(),
			Name:    VersionFileName(m.cfg.Platform),
			Version: -1,
		})
	}
	return nil
}

// Run calls Tick every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			m.Tick()
		}
	}
}

// Tick advances initialization, transfers and operations by one step.
func (m *Manager) Tick() {
	if m.closed {
		return
	}
	m.tickBootstrap()
	m.scheduler.Tick()
	if m.downloading && !m.scheduler.DownloadsPending() {
		m.downloading = false
		if m.recheck {
			m.recheck = false
			m.versionComparison()
		} else {
			m.downloadsFinished()
		}
	}
	if err := m.catalog.Save(); err != nil {
		m.l.Error("Saving local version file: %v", err)
	}
	m.tickOperations()
	m.metrics.pendingOperations.Set(float64(len(m.ops)))
}

func (m *Manager) tickBootstrap() {
	if m.stage != bootConnecting || m.versionFetch == nil || !m.versionFetch.Done() {
		return
	}
	data, err := m.versionFetch.Result()
	m.versionFetch = nil
	if err != nil {
		m.l.Error("Connecting to %s: %v", m.cfg.ServerURL, err)
		m.fail(err)
		m.handlers.ConnectServerErrorHandler(err)
		return
	}
	m.handlers.ConnectServerSuccessHandler()
	if err := m.prepareVersions(data); err != nil {
		m.fail(err)
		m.handlers.ErrorHandler(VersionFileName(m.cfg.Platform), err)
		return
	}
	m.stage = bootDownloading
	m.versionComparison()
}

func (m *Manager) fail(err error) {
	m.stage = bootFailed
	m.bootErr = err
}

func (m *Manager) prepareVersions(remoteData []byte) error {
	m.handlers.CheckingVersionHandler()
	if m.cfg.ClearCacheOnStart {
		if err := m.catalog.Reset(); err != nil {
			return err
		}
		if m.cache != nil {
			if err := m.cache.Clear(m.ctx); err != nil {
				return err
			}
		}
	}
	if err := m.catalog.PrepareLocal(); err != nil {
		return err
	}
	remote, err := ParseVersionMap(bytes.NewReader(remoteData))
	if err != nil {
		return fmt.Errorf("remote version file: %w", err)
	}
	m.catalog.SetRemote(remote)
	return nil
}

func (m *Manager) versionComparison() {
	stale := m.catalog.Diff(m.checkExcluded, m.cfg.ManifestBundle)
	if len(stale) == 0 {
		m.downloadsFinished()
		return
	}
	m.l.Info("%d bundle(s) need downloading", len(stale))
	m.handlers.StartDownloadHandler(stale)
	m.downloading = true
	for _, name := range stale {
		m.scheduler.Enqueue(name, nil)
	}
}

func (m *Manager) downloadsFinished() {
	if m.manifest == nil && !m.manifestRequested {
		m.stage = bootManifest
		m.requestManifest()
	}
	m.handlers.DownloadFinishedHandler()
	if cb := m.onVersionChecked; cb != nil {
		m.onVersionChecked = nil
		cb()
	}
}

func (m *Manager) requestManifest() {
	m.manifestRequested = true
	name := m.cfg.ManifestBundle
	m.l.Info("Loading bundle manifest: %s", name)
	if !m.registry.LoadInternal(name) {
		m.originate(name)
		m.handlers.BundleOriginatedHandler(name)
	}
	op := newOperation(OpLoadManifest, name, m.cfg.ManifestAsset)
	op.decode = decodeManifest
	m.ops = append(m.ops, op)
}

func (m *Manager) manifestDone(op *Operation) {
	m.manifestRequested = false
	if op.err != nil {
		m.l.Error("Loading bundle manifest: %v", op.err)
		m.fail(op.err)
		m.handlers.ErrorHandler(op.bundle, op.err)
		return
	}
	mf, ok := op.result.(Manifest)
	if !ok {
		m.fail(fmt.Errorf("%w: manifest asset has unexpected type %T", ErrInvalidBundle, op.result))
		return
	}
	m.manifest = mf
	m.variants.SetVariants(mf.AllVariantBundleNames())
	m.becomeReady()
}

func (m *Manager) becomeReady() {
	m.stage = bootReady
	m.l.Info("Bundle manager initialized successfully.")
	m.handlers.InitializedHandler()
	callbacks := m.onReady
	m.onReady = nil
	for _, fn := range callbacks {
		fn()
	}
}

// originate starts reading a bundle no load holds yet.
func (m *Manager) originate(name string) {
	switch m.cfg.Mode {
	case ModeStreamingAssets:
		m.loadLocal(name)
	case ModeServer:
		if v, ok := m.catalog.IncludedVersion(name); ok && v == m.catalog.RemoteVersion(name) {
			m.loadLocal(name)
			return
		}
		m.registry.BeginFetch(name)
		m.scheduler.originate(name)
	}
}

func (m *Manager) loadLocal(name string) {
	path := filepath.Join(m.cfg.StreamingAssetsDir, name)
	data, err := m.files.ReadPath(m.ctx, path, nil)
	var b *Bundle
	if err == nil {
		b, err = OpenBundle(name, data)
	}
	if err != nil {
		var be *BundleError
		if !asBundleError(err, &be) {
			err = &BundleError{Op: opLoad, Name: name, URL: path, Cause: err}
		}
		m.registry.Fail(name, err)
		m.handlers.ErrorHandler(name, err)
		return
	}
	m.registry.Install(name, b, 1)
}

// CheckVersion re-runs the version comparison, optionally including
// excluded bundles, and calls onFinished once the resulting downloads end.
// A call made while a batch runs compares again once that batch drains.
func (m *Manager) CheckVersion(checkExcluded bool, onFinished func()) error {
	if m.cfg.Mode != ModeServer {
		return ErrNotServerMode
	}
	m.checkExcluded = checkExcluded
	m.onVersionChecked = onFinished
	if m.stage == bootIdle || m.stage == bootConnecting {
		return nil
	}
	if m.downloading {
		m.recheck = true
		return nil
	}
	m.versionComparison()
	return nil
}

// Download schedules a download of name.
func (m *Manager) Download(name string, cb DownloadCallback) error {
	if m.closed {
		return ErrManagerClosed
	}
	if m.cfg.Mode != ModeServer {
		return ErrNotServerMode
	}
	m.scheduler.Enqueue(name, cb)
	return nil
}

// Progress returns the download progress of the current batch.
func (m *Manager) Progress() (done float64, total int) {
	return m.scheduler.Progress()
}

// SetActiveVariants replaces the active variant tags.
func (m *Manager) SetActiveVariants(tags []string) {
	m.variants.SetActive(tags)
}

// ActiveVariants returns the active variant tags.
func (m *Manager) ActiveVariants() []string {
	return m.variants.Active()
}

// LoadBundle takes a reference on name and its dependencies and returns
// the resolved concrete name.
func (m *Manager) LoadBundle(name string) (string, error) {
	if m.closed {
		return "", ErrManagerClosed
	}
	if m.cfg.Mode == ModeSimulation {
		resolved, _ := m.variants.Resolve(name)
		return resolved, nil
	}
	return m.resolver.LoadWithDependencies(name)
}

// Unload releases one reference on name and its dependencies.
func (m *Manager) Unload(name string) {
	if m.cfg.Mode == ModeSimulation || m.closed {
		return
	}
	before := len(m.registry.loaded)
	resolved := m.resolver.UnloadWithDependencies(name)
	m.l.Info("%d bundle(s) in memory before unloading %s, %d after", before, resolved, len(m.registry.loaded))
}

// GetLoaded returns the loaded bundle once it and its dependencies are
// ready. See Registry.GetLoaded.
func (m *Manager) GetLoaded(name string) (*LoadedBundle, error) {
	return m.registry.GetLoaded(name)
}

// LoadAsset loads bundle with its dependencies and returns an operation
// reading asset from it.
func (m *Manager) LoadAsset(bundle, asset string, opts ...LoadOption) (*Operation, error) {
	o := applyLoadOptions(opts)
	if m.cfg.Mode == ModeSimulation {
		return m.simulateAsset(bundle, asset, o)
	}
	resolved, err := m.LoadBundle(bundle)
	if err != nil {
		return nil, err
	}
	m.l.Info("Loading %s from %s bundle", asset, resolved)
	op := newOperation(OpLoadAsset, resolved, asset)
	op.decode = o.decode
	if o.onDone != nil {
		op.OnDone(o.onDone)
	}
	m.ops = append(m.ops, op)
	return op, nil
}

// LoadScene loads bundle with its dependencies and returns an operation
// activating scene from it.
func (m *Manager) LoadScene(bundle, scene string, additive bool, opts ...LoadOption) (*Operation, error) {
	o := applyLoadOptions(opts)
	if m.cfg.Mode == ModeSimulation {
		return m.simulateScene(bundle, scene, additive, o)
	}
	resolved, err := m.LoadBundle(bundle)
	if err != nil {
		return nil, err
	}
	m.l.Info("Loading scene %s from %s bundle", scene, resolved)
	op := newOperation(OpLoadScene, resolved, scene)
	op.additive = additive
	op.threshold = m.cfg.SceneCompletionThreshold
	if o.onDone != nil {
		op.OnDone(o.onDone)
	}
	m.ops = append(m.ops, op)
	return op, nil
}

func applyLoadOptions(opts []LoadOption) loadOptions {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Operations returns the number of unfinished operations.
func (m *Manager) Operations() int {
	return len(m.ops)
}

// Close cancels running transfers and releases every loaded bundle.
func (m *Manager) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	m.cancel()
	m.registry.Close()
	m.ops = nil
	if err := m.catalog.Save(); err != nil {
		m.l.Error("Saving local version file: %v", err)
	}
	if m.ownsCache && m.cache != nil {
		return m.cache.Close()
	}
	return nil
}
