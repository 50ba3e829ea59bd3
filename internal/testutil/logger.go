// Package testutil provides shared fakes and fixtures for tests: an
// in-memory browser session, a scripted agent, and log capture helpers.
package testutil

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// NewSilentLogger returns a logger that discards everything. Use it for
// tests that do not assert on log output.
func NewSilentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// CaptureLogger records log lines so tests can assert on them.
type CaptureLogger struct {
	mu     sync.Mutex
	buffer bytes.Buffer

	Logger *slog.Logger
}

// NewCaptureLogger creates a logger that captures all levels as text lines.
func NewCaptureLogger(t *testing.T) *CaptureLogger {
	t.Helper()

	cl := &CaptureLogger{}
	handler := slog.NewTextHandler(&lockedWriter{cl: cl}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	cl.Logger = slog.New(handler)
	return cl
}

// Output returns everything logged so far.
func (cl *CaptureLogger) Output() string {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.buffer.String()
}

// Contains reports whether any logged line contains the substring.
func (cl *CaptureLogger) Contains(substring string) bool {
	return strings.Contains(cl.Output(), substring)
}

// AssertLogged fails the test when no logged line contains the substring.
func (cl *CaptureLogger) AssertLogged(t *testing.T, substring string) {
	t.Helper()
	if !cl.Contains(substring) {
		t.Errorf("expected log output to contain %q, got:\n%s", substring, cl.Output())
	}
}

type lockedWriter struct {
	cl *CaptureLogger
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.cl.mu.Lock()
	defer w.cl.mu.Unlock()
	return w.cl.buffer.Write(p)
}
