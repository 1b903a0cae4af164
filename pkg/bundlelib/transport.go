package bundlelib

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/warpdl/warpbundle/pkg/logger"
)

// Request identifies a bundle transfer. Version is the remote version the
// caller expects, or -1 for unversioned files such as the version file.
type Request struct {
	URL     string
	Name    string
	Version int
}

// Transport starts transfers. Implementations must not block in Fetch.
type Transport interface {
	Fetch(ctx context.Context, req Request) Fetch
}

// Retriever synchronously reads the content at rawURL.
type Retriever interface {
	Retrieve(ctx context.Context, rawURL string, progress ProgressFunc) ([]byte, error)
}

// RetrieverFunc adapts a function to Retriever.
type RetrieverFunc func(ctx context.Context, rawURL string, progress ProgressFunc) ([]byte, error)

func (f RetrieverFunc) Retrieve(ctx context.Context, rawURL string, progress ProgressFunc) ([]byte, error) {
	return f(ctx, rawURL, progress)
}

// RouterOptions configures the retrievers registered by NewRouter.
type RouterOptions struct {
	// HTTPClient is used for http and https. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// KnownHostsPath is the TOFU known_hosts file used for sftp.
	KnownHostsPath string
	// SSHKeyPath is an explicit private key for sftp.
	SSHKeyPath string
	// Credentials supplies passwords for ftp and sftp URLs naming a user
	// without a password.
	Credentials CredentialStore
	Logger      logger.Logger
}

// Router maps URL schemes to retrievers and runs each transfer in its own
// goroutine. The zero value is not usable; use NewRouter.
type Router struct {
	routes map[string]Retriever
	l      logger.Logger
}

// NewRouter creates a Router with http, https, ftp, ftps and sftp registered.
func NewRouter(opts RouterOptions) *Router {
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	r := &Router{
		routes: make(map[string]Retriever),
		l:      opts.Logger,
	}
	h := &httpRetriever{client: opts.HTTPClient}
	if h.client == nil {
		h.client = http.DefaultClient
	}
	r.routes["http"] = h
	r.routes["https"] = h

	f := &ftpRetriever{creds: opts.Credentials}
	r.routes["ftp"] = f
	r.routes["ftps"] = f

	r.routes["sftp"] = &sftpRetriever{
		knownHostsPath: opts.KnownHostsPath,
		sshKeyPath:     opts.SSHKeyPath,
		creds:          opts.Credentials,
	}
	return r
}

// Register adds or replaces the retriever for the given scheme.
func (r *Router) Register(scheme string, retriever Retriever) {
	r.routes[strings.ToLower(scheme)] = retriever
}

// SupportedSchemes returns the registered schemes, sorted.
func (r *Router) SupportedSchemes() []string {
	schemes := make([]string, 0, len(r.routes))
	for s := range r.routes {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return schemes
}

func (r *Router) retrieverFor(rawURL string) (Retriever, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("%w: empty URL", ErrUnsupportedScheme)
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme == "" {
		return nil, fmt.Errorf("%w: no scheme in URL %q", ErrUnsupportedScheme, rawURL)
	}
	retriever, ok := r.routes[scheme]
	if !ok {
		return nil, fmt.Errorf("%w %q, supported: %s",
			ErrUnsupportedScheme, scheme, strings.Join(r.SupportedSchemes(), ", "))
	}
	return retriever, nil
}

// Retrieve reads rawURL synchronously.
func (r *Router) Retrieve(ctx context.Context, rawURL string, progress ProgressFunc) ([]byte, error) {
	retriever, err := r.retrieverFor(rawURL)
	if err != nil {
		return nil, err
	}
	return retriever.Retrieve(ctx, rawURL, progress)
}

// Fetch starts reading req.URL in the background.
func (r *Router) Fetch(ctx context.Context, req Request) Fetch {
	retriever, err := r.retrieverFor(req.URL)
	if err != nil {
		return completedFetch(req.URL, nil, err)
	}
	return startFetch(ctx, r.l, req.URL, func(ctx context.Context, progress ProgressFunc) ([]byte, error) {
		return retriever.Retrieve(ctx, req.URL, progress)
	})
}

var (
	_ Transport = (*Router)(nil)
	_ Retriever = (*Router)(nil)
)

// progressReader reports cumulative reads to a ProgressFunc.
type progressReader struct {
	r        io.Reader
	read     int64
	total    int64
	progress ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.read += int64(n)
		if pr.progress != nil {
			pr.progress(pr.read, pr.total)
		}
	}
	return n, err
}

// readAllWithProgress reads r to EOF; total may be -1 when unknown.
func readAllWithProgress(r io.Reader, total int64, progress ProgressFunc) ([]byte, error) {
	pr := &progressReader{r: r, total: total, progress: progress}
	var buf bytes.Buffer
	if total > 0 {
		buf.Grow(int(total))
	}
	if _, err := buf.ReadFrom(pr); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// StripURLCredentials removes userinfo from rawURL for logging.
func StripURLCredentials(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.User == nil {
		return rawURL
	}
	parsed.User = nil
	return parsed.String()
}
