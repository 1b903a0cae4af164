package bundlelib

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Mode selects where bundle content comes from.
type Mode int

const (
	// ModeSimulation reads assets straight from the simulation source dir.
	ModeSimulation Mode = iota
	// ModeStreamingAssets reads bundles shipped with the install.
	ModeStreamingAssets
	// ModeServer diffs against a remote server and downloads stale bundles.
	ModeServer
)

func (m Mode) String() string {
	switch m {
	case ModeSimulation:
		return "simulation"
	case ModeStreamingAssets:
		return "streaming-assets"
	case ModeServer:
		return "server"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts the mode names case-insensitively, with or without
// separators and a "mode" suffix.
func ParseMode(s string) (Mode, error) {
	norm := strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(s))
	norm = strings.TrimSuffix(norm, "mode")
	switch norm {
	case "simulation", "simulate":
		return ModeSimulation, nil
	case "streamingassets", "streaming":
		return ModeStreamingAssets, nil
	case "server":
		return ModeServer, nil
	}
	return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, s)
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

const (
	DefaultMaxConcurrentDownloads   = 20
	DefaultSceneCompletionThreshold = 0.9
)

// Config holds the manager settings. Zero values are replaced by defaults
// in LoadConfig and New.
type Config struct {
	Mode                           Mode     `json:"mode" yaml:"mode" toml:"mode" env:"WARPBUNDLE_MODE"`
	ServerURL                      string   `json:"server_url" yaml:"server_url" toml:"server_url" env:"WARPBUNDLE_SERVER_URL"`
	Platform                       string   `json:"platform" yaml:"platform" toml:"platform" env:"WARPBUNDLE_PLATFORM"`
	MaxConcurrentDownloads         int      `json:"max_concurrent_downloads" yaml:"max_concurrent_downloads" toml:"max_concurrent_downloads" env:"WARPBUNDLE_MAX_CONCURRENT_DOWNLOADS"`
	ActiveVariants                 []string `json:"active_variants" yaml:"active_variants" toml:"active_variants" env:"WARPBUNDLE_ACTIVE_VARIANTS" envSeparator:","`
	ClearCacheOnStart              bool     `json:"clear_cache_on_start" yaml:"clear_cache_on_start" toml:"clear_cache_on_start" env:"WARPBUNDLE_CLEAR_CACHE_ON_START"`
	CheckVersionForExcludedBundles bool     `json:"check_version_for_excluded_bundles" yaml:"check_version_for_excluded_bundles" toml:"check_version_for_excluded_bundles" env:"WARPBUNDLE_CHECK_VERSION_FOR_EXCLUDED_BUNDLES"`
	ManifestBundle                 string   `json:"manifest_bundle" yaml:"manifest_bundle" toml:"manifest_bundle" env:"WARPBUNDLE_MANIFEST_BUNDLE"`
	ManifestAsset                  string   `json:"manifest_asset" yaml:"manifest_asset" toml:"manifest_asset" env:"WARPBUNDLE_MANIFEST_ASSET"`
	StreamingAssetsDir             string   `json:"streaming_assets_dir" yaml:"streaming_assets_dir" toml:"streaming_assets_dir" env:"WARPBUNDLE_STREAMING_ASSETS_DIR"`
	CacheDir                       string   `json:"cache_dir" yaml:"cache_dir" toml:"cache_dir" env:"WARPBUNDLE_CACHE_DIR"`
	SimulationDir                  string   `json:"simulation_dir" yaml:"simulation_dir" toml:"simulation_dir" env:"WARPBUNDLE_SIMULATION_DIR"`
	SceneCompletionThreshold       float64  `json:"scene_completion_threshold" yaml:"scene_completion_threshold" toml:"scene_completion_threshold" env:"WARPBUNDLE_SCENE_COMPLETION_THRESHOLD"`
	ProxyURL                       string   `json:"proxy_url" yaml:"proxy_url" toml:"proxy_url" env:"WARPBUNDLE_PROXY_URL"`
	RequestTimeoutMs               int      `json:"request_timeout_ms" yaml:"request_timeout_ms" toml:"request_timeout_ms" env:"WARPBUNDLE_REQUEST_TIMEOUT_MS"`
	SSHKeyPath                     string   `json:"ssh_key_path" yaml:"ssh_key_path" toml:"ssh_key_path" env:"WARPBUNDLE_SSH_KEY_PATH"`
	KnownHostsPath                 string   `json:"known_hosts_path" yaml:"known_hosts_path" toml:"known_hosts_path" env:"WARPBUNDLE_KNOWN_HOSTS_PATH"`
	UseKeyring                     bool     `json:"use_keyring" yaml:"use_keyring" toml:"use_keyring" env:"WARPBUNDLE_USE_KEYRING"`
}

// DefaultConfig returns a server-mode configuration for the host platform.
func DefaultConfig() Config {
	return Config{
		Mode:                     ModeServer,
		Platform:                 runtime.GOOS,
		MaxConcurrentDownloads:   DefaultMaxConcurrentDownloads,
		ManifestAsset:            ManifestAssetName,
		StreamingAssetsDir:       "streaming_assets",
		CacheDir:                 defaultCacheDir(),
		SimulationDir:            "bundle_sources",
		SceneCompletionThreshold: DefaultSceneCompletionThreshold,
	}
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "warpbundle")
}

// LoadConfig builds a Config from defaults, then the file at path (if
// any, decoded by extension), then WARPBUNDLE_* environment variables.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := DecodeConfig(filepath.Ext(path), b, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

// DecodeConfig decodes b into cfg according to ext (".toml", ".yaml",
// ".yml" or ".json").
func DecodeConfig(ext string, b []byte, cfg *Config) error {
	switch ext = strings.ToLower(ext); ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, cfg)
	case ".json":
		return json.Unmarshal(b, cfg)
	case ".toml":
		return toml.Unmarshal(b, cfg)
	default:
		return fmt.Errorf("%w: unsupported config extension %q", ErrInvalidConfig, ext)
	}
}

func (c *Config) applyDefaults() {
	if c.Platform == "" {
		c.Platform = runtime.GOOS
	}
	if c.MaxConcurrentDownloads == 0 {
		c.MaxConcurrentDownloads = DefaultMaxConcurrentDownloads
	}
	if c.ManifestBundle == "" {
		c.ManifestBundle = c.Platform
	}
	if c.ManifestAsset == "" {
		c.ManifestAsset = ManifestAssetName
	}
	if c.SceneCompletionThreshold == 0 {
		c.SceneCompletionThreshold = DefaultSceneCompletionThreshold
	}
	if c.Mode == ModeServer && c.ServerURL != "" && !strings.HasSuffix(c.ServerURL, "/") {
		c.ServerURL += "/"
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Mode < ModeSimulation || c.Mode > ModeServer {
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidConfig, int(c.Mode))
	}
	if c.Mode == ModeServer && c.ServerURL == "" {
		return fmt.Errorf("%w: server_url is required in server mode", ErrInvalidConfig)
	}
	if c.MaxConcurrentDownloads < 1 {
		return fmt.Errorf("%w: max_concurrent_downloads must be positive, got %d", ErrInvalidConfig, c.MaxConcurrentDownloads)
	}
	if c.SceneCompletionThreshold <= 0 || c.SceneCompletionThreshold > 1 {
		return fmt.Errorf("%w: scene_completion_threshold must be in (0, 1], got %v", ErrInvalidConfig, c.SceneCompletionThreshold)
	}
	if c.RequestTimeoutMs < 0 {
		return fmt.Errorf("%w: request_timeout_ms must not be negative", ErrInvalidConfig)
	}
	return nil
}

// RequestTimeout returns the per-request timeout; zero means none.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// VersionFileURL is the remote version file, published next to the bundles.
func (c *Config) VersionFileURL() string {
	return c.ServerURL + VersionFileName(c.Platform)
}

// BundleURL is the remote address of a bundle.
func (c *Config) BundleURL(name string) string {
	return c.ServerURL + name
}
