package logger

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"sync"
	"testing"
)

func TestLevelString(t *testing.T) {
	tests := []struct {
		lv   Level
		want string
	}{
		{LevelInfo, "INFO"},
		{LevelWarning, "WARNING"},
		{LevelError, "ERROR"},
		{Level(7), "LEVEL(7)"},
	}
	for _, tt := range tests {
		if got := tt.lv.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", int(tt.lv), got, tt.want)
		}
	}
}

func TestStandardLogger_Prefixes(t *testing.T) {
	var buf bytes.Buffer
	l := NewStandardLogger(log.New(&buf, "", 0))
	l.Info("loading %s", "hero")
	l.Warning("ambiguous variant of %s", "atlas")
	l.Error("download %s: %v", "hero", errors.New("reset"))
	l.Info("100%% done")

	want := "[INFO] loading hero\n" +
		"[WARNING] ambiguous variant of atlas\n" +
		"[ERROR] download hero: reset\n" +
		"[INFO] 100% done\n"
	if got := buf.String(); got != want {
		t.Fatalf("unexpected output:\n%s\nwant:\n%s", got, want)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestLevelFilter(t *testing.T) {
	tests := []struct {
		name     string
		min      Level
		infos    int
		warnings int
		errors   int
	}{
		{"info passes everything", LevelInfo, 1, 1, 1},
		{"warning drops info", LevelWarning, 0, 1, 1},
		{"error keeps only errors", LevelError, 0, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMockLogger()
			f := NewLevelFilter(m, tt.min)
			f.Info("i")
			f.Warning("w")
			f.Error("e")
			if got := len(m.Infos()); got != tt.infos {
				t.Errorf("expected %d infos, got %d", tt.infos, got)
			}
			if got := len(m.Warnings()); got != tt.warnings {
				t.Errorf("expected %d warnings, got %d", tt.warnings, got)
			}
			if got := len(m.Errors()); got != tt.errors {
				t.Errorf("expected %d errors, got %d", tt.errors, got)
			}
			f.Close()
			if !m.Closed() {
				t.Errorf("Close should reach the wrapped logger")
			}
		})
	}
}

func TestMockLogger_Accessors(t *testing.T) {
	m := NewMockLogger()
	if m.Infos() != nil || m.Warnings() != nil || m.Errors() != nil {
		t.Fatalf("expected no messages on a fresh logger")
	}
	m.Info("fetch %s", "a")
	m.Warning("b")
	m.Error("c %d", 3)
	m.Info("d")

	if got := m.Infos(); len(got) != 2 || got[0] != "fetch a" || got[1] != "d" {
		t.Errorf("unexpected infos %v", got)
	}
	if got := m.Warnings(); len(got) != 1 || got[0] != "b" {
		t.Errorf("unexpected warnings %v", got)
	}
	if got := m.Errors(); len(got) != 1 || got[0] != "c 3" {
		t.Errorf("unexpected errors %v", got)
	}
	entries := m.Entries()
	if len(entries) != 4 || entries[2] != (Entry{Level: LevelError, Msg: "c 3"}) {
		t.Fatalf("unexpected entries %+v", entries)
	}

	// Returned slices are copies.
	entries[0].Msg = "changed"
	if m.Entries()[0].Msg != "fetch a" {
		t.Fatalf("Entries must not alias the recorded messages")
	}
}

func TestMockLogger_Concurrent(t *testing.T) {
	m := NewMockLogger()
	const workers, each = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				switch i % 3 {
				case 0:
					m.Info("worker %d info %d", w, i)
				case 1:
					m.Warning("worker %d warning %d", w, i)
				default:
					m.Error("worker %d error %d", w, i)
				}
				// Readers run alongside writers, as tests polling a manager do.
				_ = m.Errors()
			}
		}(w)
	}
	wg.Wait()

	if got := len(m.Entries()); got != workers*each {
		t.Fatalf("expected %d entries, got %d", workers*each, got)
	}
	total := len(m.Infos()) + len(m.Warnings()) + len(m.Errors())
	if total != workers*each {
		t.Fatalf("accessors disagree with entries: %d vs %d", total, workers*each)
	}
}

type failingCloser struct {
	NopLogger
	err error
}

func (f *failingCloser) Close() error { return f.err }

func TestMultiLogger_FansOut(t *testing.T) {
	a, b := NewMockLogger(), NewMockLogger()
	l := NewMultiLogger(a, nil, b)
	l.Info("one")
	l.Warning("two")
	l.Error("three %d", 3)
	for i, m := range []*MockLogger{a, b} {
		entries := m.Entries()
		if len(entries) != 3 || entries[2].Msg != "three 3" {
			t.Fatalf("backend %d: unexpected entries %+v", i, entries)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !a.Closed() || !b.Closed() {
		t.Fatalf("expected every backend closed")
	}
}

func TestMultiLogger_CloseJoinsErrors(t *testing.T) {
	first, second := errors.New("disk gone"), errors.New("pipe closed")
	m := NewMockLogger()
	l := NewMultiLogger(&failingCloser{err: first}, m, &failingCloser{err: second})
	err := l.Close()
	if !errors.Is(err, first) || !errors.Is(err, second) {
		t.Fatalf("expected both close errors, got %v", err)
	}
	if !m.Closed() {
		t.Fatalf("a failing backend must not stop the others closing")
	}
}

func ExampleLevelFilter() {
	var buf bytes.Buffer
	l := NewLevelFilter(NewStandardLogger(log.New(&buf, "", 0)), LevelWarning)
	l.Info("hidden")
	l.Warning("shown")
	fmt.Print(buf.String())
	// Output: [WARNING] shown
}
