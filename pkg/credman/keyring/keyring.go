// Package keyring stores transport passwords for ftp and sftp origins in the
// operating system keyring.
package keyring

import (
	"errors"

	"github.com/zalando/go-keyring"
)

// Keyring keys secrets by "user@host" under a single service name.
type Keyring struct {
	AppName string
}

var (
	keyringSet    = keyring.Set
	keyringGet    = keyring.Get
	keyringDelete = keyring.Delete
)

func NewKeyring() *Keyring {
	return &Keyring{
		AppName: "warpbundle",
	}
}

func account(host, user string) string {
	return user + "@" + host
}

// SetPassword stores password for user on host.
func (k *Keyring) SetPassword(host, user, password string) error {
	return keyringSet(k.AppName, account(host, user), password)
}

// Password returns the stored password for user on host. A missing entry
// is not an error and yields an empty password.
func (k *Keyring) Password(host, user string) (string, error) {
	p, err := keyringGet(k.AppName, account(host, user))
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	return p, err
}

// DeletePassword removes the stored password for user on host.
func (k *Keyring) DeletePassword(host, user string) error {
	err := keyringDelete(k.AppName, account(host, user))
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
