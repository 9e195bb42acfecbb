package testutil

import (
	"bytes"
	"log"
	"regexp"
	"strings"
	"sync"
)

// LogCapture collects the output of a *log.Logger for assertions
type LogCapture struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

// NewLogCapture creates a new log capture instance
func NewLogCapture() *LogCapture {
	return &LogCapture{}
}

// Write implements io.Writer
func (lc *LogCapture) Write(p []byte) (int, error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.buf.Write(p)
}

// Logger returns a logger that writes into the capture with no flags
func (lc *LogCapture) Logger() *log.Logger {
	return log.New(lc, "", 0)
}

// String returns all captured log output
func (lc *LogCapture) String() string {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.buf.String()
}

// Reset clears the capture buffer
func (lc *LogCapture) Reset() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.buf.Reset()
}

// Contains checks if the log output contains the given substring
func (lc *LogCapture) Contains(substr string) bool {
	return strings.Contains(lc.String(), substr)
}

// MatchesPattern checks if the log output matches the given regex pattern
func (lc *LogCapture) MatchesPattern(pattern string) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(lc.String())
}

// Count returns the number of times a substring appears in the log
func (lc *LogCapture) Count(substr string) int {
	return strings.Count(lc.String(), substr)
}

// Lines returns all captured log lines
func (lc *LogCapture) Lines() []string {
	content := strings.TrimSpace(lc.String())
	if content == "" {
		return []string{}
	}
	return strings.Split(content, "\n")
}
