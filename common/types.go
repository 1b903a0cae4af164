package common

// SyncReport is the machine-readable result of "warpbundle sync --json".
type SyncReport struct {
	Platform   string            `json:"platform"`
	Stale      []string          `json:"stale"`
	Downloaded []string          `json:"downloaded"`
	Failed     map[string]string `json:"failed,omitempty"`
	Ready      bool              `json:"ready"`
	Error      string            `json:"error,omitempty"`
}

// LoadReport is the machine-readable result of "warpbundle load --json"
// and "warpbundle scene --json".
type LoadReport struct {
	Bundle     string   `json:"bundle"`
	Resolved   string   `json:"resolved"`
	Asset      string   `json:"asset"`
	Size       int      `json:"size"`
	Originated []string `json:"originated"`
}

// CacheReport is the machine-readable result of "warpbundle cache stats --json".
type CacheReport struct {
	Dir     string `json:"dir"`
	Entries int    `json:"entries"`
	Size    int64  `json:"size"`
}
