package service

import (
	"strings"
	"sync"
)

// logBuffer accumulates log lines and serves position-addressed reads so
// clients can poll incrementally. It doubles as an io.Writer for slog
// handlers; writes are split on newlines.
type logBuffer struct {
	mu      sync.Mutex
	lines   []string
	partial string
}

func newLogBuffer() *logBuffer {
	return &logBuffer{}
}

// Append adds one complete line.
func (b *logBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
}

// Write implements io.Writer. Incomplete trailing lines are buffered until
// their newline arrives.
func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	text := b.partial + string(p)
	parts := strings.Split(text, "\n")
	b.partial = parts[len(parts)-1]
	for _, line := range parts[:len(parts)-1] {
		if line != "" {
			b.lines = append(b.lines, line)
		}
	}
	return len(p), nil
}

// Position returns the current end of the buffer.
func (b *logBuffer) Position() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// ReadFrom returns the lines at and after position, plus the new position.
// Out-of-range positions clamp.
func (b *logBuffer) ReadFrom(position int) ([]string, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if position < 0 {
		position = 0
	}
	if position > len(b.lines) {
		position = len(b.lines)
	}
	out := make([]string, len(b.lines)-position)
	copy(out, b.lines[position:])
	return out, len(b.lines)
}
