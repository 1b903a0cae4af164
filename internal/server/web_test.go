package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestServeBundle(t *testing.T) {
	s, _ := newTestOrigin(t)
	h := s.Handler()

	tests := []struct {
		name   string
		method string
		path   string
		want   int
		body   string
	}{
		{"bundle", http.MethodGet, "/Scene1", http.StatusOK, "scene-bytes"},
		{"version file", http.MethodGet, "/assetbundles_version_linux.txt", http.StatusOK, testVersionFile},
		{"head", http.MethodHead, "/Common", http.StatusOK, ""},
		{"missing", http.MethodGet, "/Shaders", http.StatusNotFound, ""},
		{"root", http.MethodGet, "/", http.StatusNotFound, ""},
		{"post", http.MethodPost, "/Scene1", http.StatusMethodNotAllowed, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", nil)
			req.URL.Path = tt.path
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rr.Code)
			}
			if tt.body != "" && rr.Body.String() != tt.body {
				t.Fatalf("expected body %q, got %q", tt.body, rr.Body.String())
			}
		})
	}
}

func TestServeBundleStaysInDir(t *testing.T) {
	s, fs := newTestOrigin(t)
	if err := afero.WriteFile(fs, "/secret", []byte("top"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.URL.Path = "/../secret"
	rr := httptest.NewRecorder()
	s.serveBundle(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a path outside the bundle dir, got %d", rr.Code)
	}
}

func TestServeBundleRange(t *testing.T) {
	s, _ := newTestOrigin(t)
	req := httptest.NewRequest(http.MethodGet, "/Common", nil)
	req.Header.Set("Range", "bytes=0-5")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusPartialContent || rr.Body.String() != "common" {
		t.Fatalf("expected partial content \"common\", got %d %q", rr.Code, rr.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestOrigin(t)
	h := s.Handler()
	for _, p := range []string{"/Scene1", "/Common", "/nope"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	for _, want := range []string{
		`warpbundle_origin_bundle_requests_total{result="served"} 2`,
		`warpbundle_origin_bundle_requests_total{result="missing"} 1`,
		`warpbundle_origin_served_bytes_total 23`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected metrics to contain %q", want)
		}
	}
}

func TestServeUntilCanceled(t *testing.T) {
	s, _ := newTestOrigin(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/Scene1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "scene-bytes" {
		t.Fatalf("expected scene-bytes, got %q", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}
