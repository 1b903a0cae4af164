package bundlelib

// CredentialStore supplies passwords for transport URLs that name a user
// but carry no password.
type CredentialStore interface {
	Password(host, user string) (string, error)
}
