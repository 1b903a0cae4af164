package server

import (
	"errors"
	"net/http"
	"os"
	"path"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// handler routes the origin endpoints:
//
//	GET  /metrics      Prometheus metrics
//	POST /jsonrpc      catalog RPC (Bearer token)
//	GET  /jsonrpc/ws   catalog RPC over websocket (Bearer token)
//	GET  /{name}       raw bundle or version file
func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.Handle("/jsonrpc", requireToken(s.secret, s.rpc.bridge))
	mux.Handle("/jsonrpc/ws", requireToken(s.secret, http.HandlerFunc(s.handleWebSocket)))
	mux.HandleFunc("/", s.serveBundle)
	return mux
}

// serveBundle streams a file of the bundle directory. Range and
// conditional requests are handled by http.ServeContent.
func (s *Server) serveBundle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// Clean against "/" so the name can never climb out of the bundle dir.
	name := path.Clean("/" + r.URL.Path)
	if name == "/" {
		http.NotFound(w, r)
		return
	}
	f, err := s.fs.Open(path.Join(s.dir, name))
	if err != nil {
		s.metrics.bundleRequests.WithLabelValues("missing").Inc()
		if errors.Is(err, os.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		s.log.Error("open %s: %v", name, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil || st.IsDir() {
		s.metrics.bundleRequests.WithLabelValues("missing").Inc()
		http.NotFound(w, r)
		return
	}
	s.metrics.bundleRequests.WithLabelValues("served").Inc()
	if r.Method == http.MethodGet {
		s.metrics.servedBytes.Add(float64(st.Size()))
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeContent(w, r, st.Name(), st.ModTime(), f)
}
