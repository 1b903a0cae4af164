package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/afero"
)

const testSecret = "test-rpc-secret"

const testVersionFile = "linux;1\nScene1;2\nCommon;1\nShaders;3\n"

// newTestOrigin serves /out from memory with a linux version file and
// two bundles.
func newTestOrigin(t *testing.T) (*Server, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"/out/assetbundles_version_linux.txt": testVersionFile,
		"/out/Scene1":                         "scene-bytes",
		"/out/Common":                         "common-bytes",
	}
	for name, content := range files {
		if err := afero.WriteFile(fs, name, []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	s := NewServer(fs, &Config{
		Dir:      "/out",
		Platform: "linux",
		RPC: RPCConfig{
			Secret:    testSecret,
			Version:   "1.0.0",
			Commit:    "abc123",
			BuildType: "release",
		},
	}, nil)
	t.Cleanup(func() { s.Close() })
	return s, fs
}

// rpcCall sends a JSON-RPC request to handler and returns the parsed response.
func rpcCall(t *testing.T, handler http.Handler, method string, params any, authToken string) (int, map[string]any) {
	t.Helper()
	reqBody := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"id":      1,
	}
	if params != nil {
		reqBody["params"] = params
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/jsonrpc", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	resp := rr.Result()
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	var result map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &result); err != nil {
			t.Fatalf("unmarshal response: %v (body: %s)", err, string(body))
		}
	}
	return rr.Code, result
}

func rpcResult(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	result, ok := resp["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected result object, got %v (error: %v)", resp["result"], resp["error"])
	}
	return result
}

func rpcErrorCode(t *testing.T, resp map[string]any) float64 {
	t.Helper()
	errObj, ok := resp["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error object, got %v", resp)
	}
	return errObj["code"].(float64)
}

func stringList(t *testing.T, v any) []string {
	t.Helper()
	raw, ok := v.([]any)
	if !ok {
		t.Fatalf("expected list, got %T %v", v, v)
	}
	out := make([]string, len(raw))
	for i, x := range raw {
		out[i] = x.(string)
	}
	return out
}

func TestRPCSystemGetVersion(t *testing.T) {
	s, _ := newTestOrigin(t)

	code, resp := rpcCall(t, s.Handler(), "system.getVersion", nil, testSecret)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if resp["id"].(float64) != 1 {
		t.Fatalf("expected id 1, got %v", resp["id"])
	}
	result := rpcResult(t, resp)
	if result["version"] != "1.0.0" || result["commit"] != "abc123" || result["buildType"] != "release" {
		t.Fatalf("unexpected version result %v", result)
	}
}

func TestRPCRequiresToken(t *testing.T) {
	s, _ := newTestOrigin(t)
	code, _ := rpcCall(t, s.Handler(), "system.getVersion", nil, "")
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestRPCCatalogVersions(t *testing.T) {
	s, _ := newTestOrigin(t)

	_, resp := rpcCall(t, s.Handler(), "catalog.versions", nil, testSecret)
	result := rpcResult(t, resp)
	if result["platform"] != "linux" {
		t.Fatalf("expected default platform linux, got %v", result["platform"])
	}
	bundles, ok := result["bundles"].([]any)
	if !ok || len(bundles) != 4 {
		t.Fatalf("expected 4 records, got %v", result["bundles"])
	}
	first := bundles[1].(map[string]any)
	if first["name"] != "Scene1" || first["version"].(float64) != 2 {
		t.Fatalf("expected records in file order, got %v", first)
	}
}

func TestRPCCatalogVersionsMissingPlatform(t *testing.T) {
	s, _ := newTestOrigin(t)
	_, resp := rpcCall(t, s.Handler(), "catalog.versions", map[string]any{"platform": "ios"}, testSecret)
	if code := rpcErrorCode(t, resp); code != float64(codeVersionFileNotFound) {
		t.Fatalf("expected code %d, got %v", codeVersionFileNotFound, code)
	}
}

func TestRPCCatalogVersionsRejectsPathPlatform(t *testing.T) {
	s, fs := newTestOrigin(t)
	if err := afero.WriteFile(fs, "/x.txt", []byte("secret;1\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	for _, platform := range []string{"/../../x", `..\..\x`, "linux/..", ".."} {
		_, resp := rpcCall(t, s.Handler(), "catalog.versions", map[string]any{"platform": platform}, testSecret)
		if code := rpcErrorCode(t, resp); code != float64(codeInvalidParams) {
			t.Fatalf("platform %q: expected code %d, got %v", platform, codeInvalidParams, code)
		}
	}
}

func TestRPCCatalogVersionsMalformedFile(t *testing.T) {
	s, fs := newTestOrigin(t)
	if err := afero.WriteFile(fs, "/out/assetbundles_version_android.txt", []byte("no separator here\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, resp := rpcCall(t, s.Handler(), "catalog.versions", map[string]any{"platform": "Android"}, testSecret)
	if code := rpcErrorCode(t, resp); code != float64(codeCatalogUnreadable) {
		t.Fatalf("expected code %d, got %v", codeCatalogUnreadable, code)
	}
}

func TestRPCCatalogDiff(t *testing.T) {
	s, _ := newTestOrigin(t)

	tests := []struct {
		name   string
		params map[string]any
		want   []string
	}{
		{
			name:   "fresh client",
			params: map[string]any{"local": map[string]int{}},
			want:   []string{"Scene1", "Common", "Shaders"},
		},
		{
			name:   "one stale version",
			params: map[string]any{"local": map[string]int{"Scene1": 2, "Common": 1, "Shaders": 2}},
			want:   []string{"Shaders"},
		},
		{
			name: "excluded skipped",
			params: map[string]any{
				"local":    map[string]int{"Scene1": 2},
				"excluded": []string{"Common"},
			},
			want: []string{"Shaders"},
		},
		{
			name: "excluded checked",
			params: map[string]any{
				"local":         map[string]int{"Scene1": 2},
				"excluded":      []string{"Common"},
				"checkExcluded": true,
			},
			want: []string{"Common", "Shaders"},
		},
		{
			name:   "up to date",
			params: map[string]any{"local": map[string]int{"Scene1": 2, "Common": 1, "Shaders": 3}},
			want:   []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp := rpcCall(t, s.Handler(), "catalog.diff", tt.params, testSecret)
			got := stringList(t, rpcResult(t, resp)["stale"])
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("expected %v, got %v", tt.want, got)
				}
			}
		})
	}
}

func TestRPCCatalogDiffMissingLocal(t *testing.T) {
	s, _ := newTestOrigin(t)
	_, resp := rpcCall(t, s.Handler(), "catalog.diff", map[string]any{"platform": "linux"}, testSecret)
	if code := rpcErrorCode(t, resp); code != float64(codeInvalidParams) {
		t.Fatalf("expected code %d, got %v", codeInvalidParams, code)
	}
}

func TestRPCMethodNotFound(t *testing.T) {
	s, _ := newTestOrigin(t)
	_, resp := rpcCall(t, s.Handler(), "catalog.nope", nil, testSecret)
	if code := rpcErrorCode(t, resp); code != -32601 {
		t.Fatalf("expected -32601, got %v", code)
	}
}
