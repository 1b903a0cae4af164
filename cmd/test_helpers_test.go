package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// captureOutput captures stdout and stderr during function execution.
func captureOutput(f func()) (stdout, stderr string) {
	oldStdout := os.Stdout
	oldStderr := os.Stderr

	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	// Drain concurrently so large outputs cannot fill the pipe buffer.
	outCh := make(chan string)
	errCh := make(chan string)
	go func() {
		var b bytes.Buffer
		io.Copy(&b, rOut)
		outCh <- b.String()
	}()
	go func() {
		var b bytes.Buffer
		io.Copy(&b, rErr)
		errCh <- b.String()
	}()

	f()

	wOut.Close()
	wErr.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr
	stdout, stderr = <-outCh, <-errCh
	rOut.Close()
	rErr.Close()
	return stdout, stderr
}

// runApp runs the command line with args and returns its stdout.
func runApp(t *testing.T, args ...string) string {
	t.Helper()
	var runErr error
	out, _ := captureOutput(func() {
		runErr = newApp(BuildArgs{Version: "1.0.0", BuildType: "test"}).Run(append([]string{"warpbundle"}, args...))
	})
	if runErr != nil {
		t.Fatalf("run %v: %v", args, runErr)
	}
	return out
}

// decodeJSON decodes a JSON report printed by a command.
func decodeJSON(t *testing.T, out string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

// assertContains checks if output contains the expected substring.
func assertContains(t *testing.T, output, expected string) {
	t.Helper()
	if !strings.Contains(output, expected) {
		t.Errorf("expected output to contain %q, got:\n%s", expected, output)
	}
}
