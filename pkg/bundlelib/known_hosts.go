package bundlelib

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// knownHostsMu serializes writes to the known_hosts file; fetches to
// different new hosts may run concurrently.
var knownHostsMu sync.Mutex

// DefaultKnownHostsPath is the warpbundle-private known_hosts file, kept
// apart from ~/.ssh/known_hosts.
func DefaultKnownHostsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "warpbundle", "known_hosts")
}

// newTOFUHostKeyCallback implements trust on first use:
//   - known host with matching key: accept
//   - known host with changed key: reject
//   - unknown host: accept and append to the file
//
// The file is re-read on each call so keys appended by concurrent
// connections are seen.
func newTOFUHostKeyCallback(knownHostsFile string) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		if err := os.MkdirAll(filepath.Dir(knownHostsFile), 0700); err != nil {
			return fmt.Errorf("sftp: failed to create known_hosts directory: %w", err)
		}
		if _, err := os.Stat(knownHostsFile); err == nil {
			cb, loadErr := knownhosts.New(knownHostsFile)
			if loadErr != nil {
				return fmt.Errorf("sftp: failed to load known_hosts: %w", loadErr)
			}
			err := cb(hostname, remote, key)
			if err == nil {
				return nil
			}
			var keyErr *knownhosts.KeyError
			if !errors.As(err, &keyErr) {
				return err
			}
			if len(keyErr.Want) > 0 {
				return fmt.Errorf(
					"sftp: WARNING: host key changed for %s (got %s)\n"+
						"If this is expected, remove the old entry from %s",
					hostname, ssh.FingerprintSHA256(key), knownHostsFile,
				)
			}
		}
		return appendKnownHost(knownHostsFile, hostname, key)
	}
}

// appendKnownHost writes a new host key entry. knownhosts.Normalize keeps
// port 22 implicit and writes [host]:port otherwise.
func appendKnownHost(path, hostname string, key ssh.PublicKey) error {
	knownHostsMu.Lock()
	defer knownHostsMu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("sftp: failed to write known_hosts: %w", err)
	}
	defer f.Close()

	line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)
	_, err = fmt.Fprintln(f, line)
	return err
}
