package server

import (
	"crypto/subtle"
	"crypto/tls"
	"errors"
	"net"

	ftpserver "github.com/fclairamb/ftpserverlib"
	"github.com/spf13/afero"
	"github.com/warpdl/warpbundle/pkg/logger"
)

var errFTPLogin = errors.New("invalid credentials")

type ftpAuth struct {
	user     string
	password string
}

// allows reports whether a login is accepted. Without a configured user
// only anonymous logins are allowed.
func (a ftpAuth) allows(user, pass string) bool {
	if a.user == "" {
		return user == "anonymous" || user == "ftp"
	}
	return subtle.ConstantTimeCompare([]byte(user), []byte(a.user)) == 1 &&
		subtle.ConstantTimeCompare([]byte(pass), []byte(a.password)) == 1
}

// ftpDriver implements ftpserver.MainDriver over a pre-created listener.
type ftpDriver struct {
	fs       afero.Fs
	listener net.Listener
	auth     ftpAuth
	metrics  *originMetrics
	log      logger.Logger
}

func (d *ftpDriver) GetSettings() (*ftpserver.Settings, error) {
	return &ftpserver.Settings{
		Listener:    d.listener,
		IdleTimeout: 60,
	}, nil
}

func (d *ftpDriver) ClientConnected(cc ftpserver.ClientContext) (string, error) {
	return "warpbundle origin", nil
}

func (d *ftpDriver) ClientDisconnected(_ ftpserver.ClientContext) {}

func (d *ftpDriver) AuthUser(cc ftpserver.ClientContext, user, pass string) (ftpserver.ClientDriver, error) {
	if !d.auth.allows(user, pass) {
		d.metrics.ftpLogins.WithLabelValues("rejected").Inc()
		d.log.Warning("ftp login rejected for %q from %s", user, cc.RemoteAddr())
		return nil, errFTPLogin
	}
	d.metrics.ftpLogins.WithLabelValues("accepted").Inc()
	return d.fs, nil
}

func (d *ftpDriver) GetTLSConfig() (*tls.Config, error) {
	return nil, nil
}
