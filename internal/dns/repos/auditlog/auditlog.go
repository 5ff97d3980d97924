// Package auditlog keeps the human-readable record of what the relay did with
// each query and writes it to disk on demand.
package auditlog

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/haukened/rr-relay/internal/dns/common/clock"
	"github.com/haukened/rr-relay/internal/dns/common/log"
	"github.com/haukened/rr-relay/internal/dns/services/resolver"
)

var _ resolver.AuditLog = (*Log)(nil)

// TimestampFormat prefixes every recorded line.
const TimestampFormat = time.RFC3339

// Log is an append-only, in-memory list of audit lines. Record is safe for
// concurrent use; Flush writes a consistent snapshot.
type Log struct {
	mu     sync.Mutex
	path   string
	lines  []string
	clock  clock.Clock
	logger log.Logger
}

// New creates an empty Log that flushes to path.
func New(path string, clk clock.Clock, logger log.Logger) *Log {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Log{
		path:   path,
		clock:  clk,
		logger: logger,
	}
}

// Path returns the file Flush writes to.
func (l *Log) Path() string {
	return l.path
}

// Record appends one line, stamped with the current time.
func (l *Log) Record(line string) {
	stamped := fmt.Sprintf("%s %s", l.clock.Now().UTC().Format(TimestampFormat), strings.TrimRight(line, "\n"))
	l.mu.Lock()
	l.lines = append(l.lines, stamped)
	l.mu.Unlock()
}

// Len returns the number of recorded lines.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines)
}

// Flush replaces the file at Path with every line recorded so far. Calling it
// again rewrites the same content plus anything recorded since.
func (l *Log) Flush() error {
	l.mu.Lock()
	var b strings.Builder
	for _, line := range l.lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	count := len(l.lines)
	l.mu.Unlock()

	if err := os.WriteFile(l.path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to flush audit log to %s: %w", l.path, err)
	}
	l.logger.Info(map[string]any{
		"path":  l.path,
		"lines": count,
	}, "Audit log flushed")
	return nil
}
