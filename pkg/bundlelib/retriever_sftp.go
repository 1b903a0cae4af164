package bundlelib

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

type sftpRetriever struct {
	knownHostsPath string
	sshKeyPath     string
	creds          CredentialStore
}

func (s *sftpRetriever) Retrieve(ctx context.Context, rawURL string, progress ProgressFunc) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, NewPermanentError("sftp", "parse", err)
	}
	if parsed.Path == "" || parsed.Path == "/" {
		return nil, NewPermanentError("sftp", "parse",
			fmt.Errorf("empty or root path in SFTP URL: file path is required"))
	}
	host := parsed.Host
	if parsed.Port() == "" {
		host = net.JoinHostPort(parsed.Hostname(), "22")
	}
	var user, password string
	if parsed.User != nil {
		user = parsed.User.Username()
		if p, ok := parsed.User.Password(); ok {
			password = p
		}
	}
	if password == "" && user != "" && s.creds != nil {
		p, err := s.creds.Password(parsed.Hostname(), user)
		if err != nil {
			return nil, NewPermanentError("sftp", "credentials", err)
		}
		password = p
	}

	auth, err := buildAuthMethods(password, s.sshKeyPath)
	if err != nil {
		return nil, NewPermanentError("sftp", "auth", err)
	}
	knownHosts := s.knownHostsPath
	if knownHosts == "" {
		knownHosts = DefaultKnownHostsPath()
	}
	config := &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: newTOFUHostKeyCallback(knownHosts),
		Timeout:         ftpDialTimeout,
	}

	var d net.Dialer
	rawConn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return nil, classifySFTPError("sftp", "connect", err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(rawConn, host, config)
	if err != nil {
		rawConn.Close()
		return nil, classifySFTPError("sftp", "handshake", err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()
	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	sc, err := sftp.NewClient(client)
	if err != nil {
		return nil, classifySFTPError("sftp", "subsystem", err)
	}
	defer sc.Close()

	fi, err := sc.Stat(parsed.Path)
	if err != nil {
		return nil, classifySFTPError("sftp", "stat", err)
	}
	f, err := sc.Open(parsed.Path)
	if err != nil {
		return nil, classifySFTPError("sftp", "open", err)
	}
	defer f.Close()

	data, err := readAllWithProgress(f, fi.Size(), progress)
	if err != nil {
		return nil, classifySFTPError("sftp", "read", err)
	}
	return data, nil
}

// buildAuthMethods constructs SSH auth methods based on available credentials.
// Priority: password auth (if provided) > explicit SSH key > default SSH key paths.
func buildAuthMethods(password, sshKeyPath string) ([]ssh.AuthMethod, error) {
	if password != "" {
		return []ssh.AuthMethod{ssh.Password(password)}, nil
	}
	keyPaths := resolveSSHKeyPaths(sshKeyPath)
	for _, kp := range keyPaths {
		pemBytes, err := os.ReadFile(kp)
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(pemBytes)
		if err != nil {
			var ppErr *ssh.PassphraseMissingError
			if errors.As(err, &ppErr) {
				return nil, fmt.Errorf("sftp: SSH key %q is passphrase-protected; passphrase-protected keys are not supported", kp)
			}
			continue
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	return nil, fmt.Errorf("sftp: no authentication method available, provide a password or an SSH key at %s", strings.Join(keyPaths, ", "))
}

// resolveSSHKeyPaths returns the list of SSH key paths to try.
// If explicitPath is set, only that path is returned.
func resolveSSHKeyPaths(explicitPath string) []string {
	if explicitPath != "" {
		return []string{explicitPath}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_rsa"),
	}
}

// classifySFTPError classifies SFTP/SSH errors into transient or permanent.
// os.ErrNotExist and *ssh.ExitError are permanent. net.Error is transient.
func classifySFTPError(proto, op string, err error) *TransportError {
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return NewPermanentError(proto, op, err)
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return NewPermanentError(proto, op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewTransientError(proto, op, err)
	}
	return NewPermanentError(proto, op, err)
}
