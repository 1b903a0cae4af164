package common

import (
	"os"
	"path/filepath"
	"time"
)

const (
	// TickInterval is how often the CLI advances a manager.
	TickInterval = 10 * time.Millisecond

	// DefaultOriginPort is the HTTP port of "warpbundle serve".
	DefaultOriginPort = 7888
)

// ConfigFileNames are tried in order when no config path is given.
var ConfigFileNames = []string{
	"warpbundle.toml",
	"warpbundle.yaml",
	"warpbundle.yml",
	"warpbundle.json",
}

// FindConfig returns the first of ConfigFileNames present in one of dirs,
// or "" if there is none.
func FindConfig(dirs ...string) string {
	for _, dir := range dirs {
		for _, name := range ConfigFileNames {
			p := filepath.Join(dir, name)
			if st, err := os.Stat(p); err == nil && !st.IsDir() {
				return p
			}
		}
	}
	return ""
}
