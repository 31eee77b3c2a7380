package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// lockedBuffer serializes writes from concurrent training workers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *lockedBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

// TestLogger captures zerolog JSON lines in memory so tests can assert on
// what was logged. Safe for concurrent use.
type TestLogger struct {
	Logger
	out *lockedBuffer
}

// NewTestLogger creates a capturing logger at level. The returned buffer
// holds the raw output; read it only after the writers are done.
//
//	logger, _ := log.NewTestLogger(log.LevelDebug)
//	cfg.Logger = logger
//	...
//	assert.True(t, logger.ContainsMessage("Ensemble trained"))
func NewTestLogger(level Level) (*TestLogger, *bytes.Buffer) {
	out := &lockedBuffer{}
	zl := zerolog.New(out).Level(toZerologLevel(level))
	return &TestLogger{Logger: &zerologLogger{zl: zl}, out: out}, &out.buf
}

// With keeps the capture buffer on derived loggers.
func (t *TestLogger) With(fields ...any) Logger {
	return &TestLogger{Logger: t.Logger.With(fields...), out: t.out}
}

// GetLogEntries decodes every captured line.
func (t *TestLogger) GetLogEntries() ([]map[string]interface{}, error) {
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(t.out.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ContainsMessage reports whether any captured line contains message.
func (t *TestLogger) ContainsMessage(message string) bool {
	return strings.Contains(t.out.String(), message)
}

// ContainsField reports whether some entry has key == value. JSON numbers
// decode as float64.
func (t *TestLogger) ContainsField(key string, value interface{}) bool {
	entries, err := t.GetLogEntries()
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if v, ok := entry[key]; ok && v == value {
			return true
		}
	}
	return false
}

// Clear drops the captured output.
func (t *TestLogger) Clear() { t.out.Reset() }

// TestLoggerProvider is a ZerologProvider writing into a capture buffer,
// for tests that go through SetProvider.
type TestLoggerProvider struct {
	*ZerologProvider
}

// NewTestLoggerProvider creates a capturing provider at level.
func NewTestLoggerProvider(level Level) (*TestLoggerProvider, *bytes.Buffer) {
	out := &lockedBuffer{}
	zl := zerolog.New(out).Level(toZerologLevel(level))
	return &TestLoggerProvider{ZerologProvider: &ZerologProvider{base: zl}}, &out.buf
}
