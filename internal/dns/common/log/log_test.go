package log

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type testLogger struct {
	mu      sync.Mutex
	entries []string
	synced  int
}

func (l *testLogger) add(s string) {
	l.mu.Lock()
	l.entries = append(l.entries, s)
	l.mu.Unlock()
}

func (l *testLogger) Info(_ map[string]any, msg string)  { l.add("INFO:" + msg) }
func (l *testLogger) Error(_ map[string]any, msg string) { l.add("ERROR:" + msg) }
func (l *testLogger) Debug(_ map[string]any, msg string) { l.add("DEBUG:" + msg) }
func (l *testLogger) Warn(_ map[string]any, msg string)  { l.add("WARN:" + msg) }
func (l *testLogger) Panic(_ map[string]any, msg string) {}
func (l *testLogger) Fatal(_ map[string]any, msg string) {}
func (l *testLogger) Sync() error {
	l.synced++
	return nil
}

func restoreGlobal(t *testing.T) {
	orig := GetLogger()
	t.Cleanup(func() { SetLogger(orig) })
}

func TestActualZapLogger(t *testing.T) {
	restoreGlobal(t)
	require.NoError(t, Configure("dev", "debug"))

	Debug(map[string]any{"key1": "value1", "key2": 42}, "test debug")
	Info(nil, "test info")
	Warn(nil, "test warn")
	Error(map[string]any{"error": errors.New("boom")}, "test error")

	assert.Panics(t, func() { Panic(nil, "test panic") })
}

func TestSetLoggerAndGlobalLogging(t *testing.T) {
	restoreGlobal(t)
	tlog := &testLogger{}
	SetLogger(tlog)

	Info(nil, "info msg")
	Error(nil, "error msg")
	Debug(nil, "debug msg")
	Warn(nil, "warn msg")

	assert.Equal(t, []string{
		"INFO:info msg",
		"ERROR:error msg",
		"DEBUG:debug msg",
		"WARN:warn msg",
	}, tlog.entries)
}

func TestConfigure(t *testing.T) {
	restoreGlobal(t)

	assert.NoError(t, Configure("dev", "debug"))
	assert.NoError(t, Configure("prod", "INFO"))
	assert.Error(t, Configure("dev", "notalevel"))
}

func TestSync(t *testing.T) {
	restoreGlobal(t)

	tlog := &testLogger{}
	SetLogger(tlog)
	require.NoError(t, Sync())
	assert.Equal(t, 1, tlog.synced)

	// loggers without buffering are a no-op
	SetLogger(NewNoopLogger())
	assert.NoError(t, Sync())
}

func TestZapLogger_Fields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &zapLogger{base: zap.New(core)}

	l.Info(map[string]any{"name": "a.test.", "error": errors.New("timeout")}, "forward failed")

	entries := logs.All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "forward failed", entries[0].Message)
	assert.Equal(t, "a.test.", ctx["name"])
	assert.Equal(t, "timeout", ctx["error"])
}

func TestNoopLogger_AllLevels(t *testing.T) {
	restoreGlobal(t)
	SetLogger(NewNoopLogger())

	Debug(nil, "debug message")
	Info(nil, "info message")
	Warn(nil, "warn message")
	Error(nil, "error message")
	Panic(nil, "panic message")
	Fatal(nil, "fatal message")
}
