package bundlelib

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
)

const ftpDialTimeout = 30 * time.Second

type ftpRetriever struct {
	creds CredentialStore
}

func (f *ftpRetriever) Retrieve(ctx context.Context, rawURL string, progress ProgressFunc) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, NewPermanentError("ftp", "parse", err)
	}
	if parsed.Path == "" || parsed.Path == "/" {
		return nil, NewPermanentError("ftp", "parse",
			fmt.Errorf("empty or root path in FTP URL: file path is required"))
	}
	host := parsed.Host
	if parsed.Port() == "" {
		host = net.JoinHostPort(parsed.Hostname(), "21")
	}
	user, password := "anonymous", "anonymous"
	if parsed.User != nil {
		user = parsed.User.Username()
		if p, ok := parsed.User.Password(); ok {
			password = p
		} else if f.creds != nil {
			p, err := f.creds.Password(parsed.Hostname(), user)
			if err != nil {
				return nil, NewPermanentError("ftp", "credentials", err)
			}
			password = p
		}
	}

	dialOpts := []ftp.DialOption{
		ftp.DialWithTimeout(ftpDialTimeout),
		ftp.DialWithContext(ctx),
	}
	if strings.EqualFold(parsed.Scheme, "ftps") {
		dialOpts = append(dialOpts, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName: parsed.Hostname(),
			MinVersion: tls.VersionTLS12,
		}))
	}
	conn, err := ftp.Dial(host, dialOpts...)
	if err != nil {
		return nil, classifyFTPError("ftp", "connect", err)
	}
	defer conn.Quit()
	stop := context.AfterFunc(ctx, func() { conn.Quit() })
	defer stop()

	if err := conn.Login(user, password); err != nil {
		return nil, classifyFTPError("ftp", "login", err)
	}
	if err := conn.Type(ftp.TransferTypeBinary); err != nil {
		return nil, NewPermanentError("ftp", "type", err)
	}
	size, err := conn.FileSize(parsed.Path)
	if err != nil {
		size = -1
	}
	resp, err := conn.Retr(parsed.Path)
	if err != nil {
		return nil, classifyFTPError("ftp", "retr", err)
	}
	defer resp.Close()

	data, err := readAllWithProgress(resp, size, progress)
	if err != nil {
		return nil, classifyFTPError("ftp", "read", err)
	}
	return data, nil
}

// classifyFTPError classifies FTP errors: 4xx replies and network errors
// are transient, everything else is permanent.
func classifyFTPError(proto, op string, err error) *TransportError {
	if err == nil {
		return nil
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		if tpErr.Code >= 400 && tpErr.Code < 500 {
			return NewTransientError(proto, op, err)
		}
		return NewPermanentError(proto, op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewTransientError(proto, op, err)
	}
	return NewPermanentError(proto, op, err)
}
