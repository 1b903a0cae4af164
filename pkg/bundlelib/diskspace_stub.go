//go:build !darwin && !freebsd && !linux && !windows

package bundlelib

import "errors"

func freeSpace(path string) (uint64, error) {
	return 0, errors.New("free space check not supported on this platform")
}
