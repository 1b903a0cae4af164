package server

import (
	"context"
	"errors"
	"os"
	"path"
	"strings"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"
	"github.com/spf13/afero"
	"github.com/warpdl/warpbundle/pkg/bundlelib"
)

// Custom JSON-RPC error codes for catalog operations.
const (
	codeVersionFileNotFound = jrpc2.Code(-32001)
	codeCatalogUnreadable   = jrpc2.Code(-32002)
	codeInvalidParams       = jrpc2.Code(-32602)
)

// RPCConfig holds configuration for the JSON-RPC endpoint.
type RPCConfig struct {
	Secret    string // Auth token (required -- empty means RPC disabled)
	Version   string // Server version
	Commit    string // Git commit
	BuildType string // Build type
}

// RPCServer exposes the served bundle directory as a JSON-RPC 2.0 catalog.
type RPCServer struct {
	bridge    jhttp.Bridge
	methods   handler.Map
	fs        afero.Fs
	dir       string
	platform  string
	version   string
	commit    string
	buildType string
}

// VersionResult is the response for system.getVersion.
type VersionResult struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildType string `json:"buildType,omitempty"`
}

// PlatformParam selects the version file of a platform. An empty platform
// means the server default.
type PlatformParam struct {
	Platform string `json:"platform,omitempty"`
}

// VersionsResult is the response for catalog.versions.
type VersionsResult struct {
	Platform string                    `json:"platform"`
	Bundles  []bundlelib.VersionRecord `json:"bundles"`
}

// DiffParams is the input for catalog.diff.
type DiffParams struct {
	Platform      string         `json:"platform,omitempty"`
	Local         map[string]int `json:"local"`
	Excluded      []string       `json:"excluded,omitempty"`
	CheckExcluded bool           `json:"checkExcluded,omitempty"`
}

// DiffResult is the response for catalog.diff.
type DiffResult struct {
	Stale []string `json:"stale"`
}

// NewRPCServer creates a new RPCServer with method handlers and HTTP bridge.
func NewRPCServer(cfg *RPCConfig, fs afero.Fs, dir, platform string) *RPCServer {
	rs := &RPCServer{
		fs:        fs,
		dir:       dir,
		platform:  platform,
		version:   cfg.Version,
		commit:    cfg.Commit,
		buildType: cfg.BuildType,
	}

	rs.methods = handler.Map{
		"system.getVersion": handler.New(rs.systemGetVersion),
		"catalog.versions":  handler.New(rs.catalogVersions),
		"catalog.diff":      handler.New(rs.catalogDiff),
	}

	rs.bridge = jhttp.NewBridge(rs.methods, nil)
	return rs
}

// Close shuts down the HTTP bridge.
func (rs *RPCServer) Close() error {
	return rs.bridge.Close()
}

func (rs *RPCServer) systemGetVersion(_ context.Context) (*VersionResult, error) {
	return &VersionResult{
		Version:   rs.version,
		Commit:    rs.commit,
		BuildType: rs.buildType,
	}, nil
}

// catalogVersions returns the records of the served version file.
func (rs *RPCServer) catalogVersions(_ context.Context, p *PlatformParam) (*VersionsResult, error) {
	platform := rs.resolvePlatform(p.Platform)
	vm, err := rs.readVersions(platform)
	if err != nil {
		return nil, err
	}
	records := vm.Records()
	if records == nil {
		records = []bundlelib.VersionRecord{}
	}
	return &VersionsResult{Platform: platform, Bundles: records}, nil
}

// catalogDiff returns the bundles a client holding p.Local has to download.
func (rs *RPCServer) catalogDiff(_ context.Context, p *DiffParams) (*DiffResult, error) {
	if p.Local == nil {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "missing required param: local"}
	}
	platform := rs.resolvePlatform(p.Platform)
	remote, err := rs.readVersions(platform)
	if err != nil {
		return nil, err
	}
	local := bundlelib.NewVersionMap()
	for name, v := range p.Local {
		local.Set(name, v)
	}
	stale := bundlelib.Diff(local, remote, p.Excluded, bundlelib.DiffOptions{
		CheckExcluded: p.CheckExcluded,
		ManifestName:  platform,
	})
	if stale == nil {
		stale = []string{}
	}
	return &DiffResult{Stale: stale}, nil
}

func (rs *RPCServer) resolvePlatform(platform string) string {
	if platform == "" {
		return rs.platform
	}
	return platform
}

func (rs *RPCServer) readVersions(platform string) (*bundlelib.VersionMap, error) {
	if platform == "" {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "missing required param: platform"}
	}
	if strings.ContainsAny(platform, `/\`) || strings.Contains(platform, "..") {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "invalid platform: " + platform}
	}
	name := bundlelib.VersionFileName(platform)
	f, err := rs.fs.Open(path.Join(rs.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &jrpc2.Error{Code: codeVersionFileNotFound, Message: "version file not found: " + name}
		}
		return nil, &jrpc2.Error{Code: codeCatalogUnreadable, Message: err.Error()}
	}
	defer f.Close()
	vm, err := bundlelib.ParseVersionMap(f)
	if err != nil {
		return nil, &jrpc2.Error{Code: codeCatalogUnreadable, Message: err.Error()}
	}
	return vm, nil
}
