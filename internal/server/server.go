// Package server implements the bundle origin: it publishes a directory of
// built bundles and version files over HTTP, a token-protected JSON-RPC
// catalog, and optionally FTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	ftpserver "github.com/fclairamb/ftpserverlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/warpdl/warpbundle/pkg/logger"
)

// DefaultPort is the HTTP port used when none is configured.
const DefaultPort = 7888

// Config configures an origin Server.
type Config struct {
	Dir         string // Served bundle directory
	Platform    string // Default platform for catalog RPCs
	Addr        string // HTTP listen address
	FTPAddr     string // FTP listen address; empty disables FTP
	FTPUser     string // Required FTP user; empty allows anonymous logins
	FTPPassword string
	RPC         RPCConfig
}

// Server publishes a bundle directory.
type Server struct {
	fs       afero.Fs
	dir      string
	addr     string
	ftpAddr  string
	secret   string
	log      logger.Logger
	rpc      *RPCServer
	registry *prometheus.Registry
	metrics  *originMetrics
	ftpAuth  ftpAuth

	mu   sync.Mutex
	http *http.Server
	ftp  *ftpserver.FtpServer
}

// NewServer creates a Server over cfg.Dir of fs. A nil logger discards output.
func NewServer(fs afero.Fs, cfg *Config, l logger.Logger) *Server {
	if l == nil {
		l = logger.NewNopLogger()
	}
	reg := prometheus.NewRegistry()
	return &Server{
		fs:       fs,
		dir:      cfg.Dir,
		addr:     cfg.Addr,
		ftpAddr:  cfg.FTPAddr,
		secret:   cfg.RPC.Secret,
		log:      l,
		rpc:      NewRPCServer(&cfg.RPC, fs, cfg.Dir, cfg.Platform),
		registry: reg,
		metrics:  newOriginMetrics(reg),
		ftpAuth:  ftpAuth{user: cfg.FTPUser, password: cfg.FTPPassword},
	}
}

// Handler returns the HTTP handler of the origin.
func (s *Server) Handler() http.Handler {
	return s.handler()
}

// Start listens on the configured addresses and serves until ctx is
// canceled. The FTP listener, when configured, runs in the background.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	if s.ftpAddr != "" {
		fl, err := net.Listen("tcp", s.ftpAddr)
		if err != nil {
			ln.Close()
			return err
		}
		s.ServeFTP(fl)
	}
	return s.Serve(ctx, ln)
}

// Serve serves HTTP on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	// Watch for context cancellation to trigger shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.log.Error("shutdown: %v", err)
		}
	}()

	s.log.Info("serving %s on http://%s", s.dir, ln.Addr())
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil // Expected during shutdown
	}
	return err
}

// ServeFTP starts a read-only FTP front end on ln in the background.
func (s *Server) ServeFTP(ln net.Listener) {
	ftp := ftpserver.NewFtpServer(&ftpDriver{
		fs:       afero.NewReadOnlyFs(afero.NewBasePathFs(s.fs, s.dir)),
		listener: ln,
		auth:     s.ftpAuth,
		metrics:  s.metrics,
		log:      s.log,
	})
	s.mu.Lock()
	s.ftp = ftp
	s.mu.Unlock()
	s.log.Info("serving %s on ftp://%s", s.dir, ln.Addr())
	go func() {
		if err := ftp.ListenAndServe(); err != nil {
			s.log.Warning("ftp server stopped: %v", err)
		}
	}()
}

// Shutdown gracefully stops the HTTP and FTP listeners and the RPC bridge.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.ftp != nil {
		if err := s.ftp.Stop(); err != nil {
			errs = append(errs, err)
		}
		s.ftp = nil
	}
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		s.http = nil
	}
	return errors.Join(errs...)
}

// Close releases the RPC bridge. The server must not be used afterwards.
func (s *Server) Close() error {
	return s.rpc.Close()
}
