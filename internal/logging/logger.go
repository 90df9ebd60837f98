package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// PhaseLog represents a single worker phase completion record: one line per
// create/cancel/reprovision/modify/ping attempt against a pair.
type PhaseLog struct {
	Timestamp  time.Time `json:"timestamp"`
	Pair       string    `json:"pair"` // "port1-port2-vlan"
	Action     string    `json:"action"`
	TraceID    string    `json:"trace_id,omitempty"`
	SpanID     string    `json:"span_id,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	FinalState string    `json:"final_state,omitempty"`
	Error      string    `json:"error,omitempty"`
	Retries    int       `json:"retries,omitempty"`
}

// Logger writes PhaseLog entries to console and/or an append-only file.
type Logger struct {
	mu      sync.Mutex
	enabled bool
	file    *os.File
	console bool
}

var defaultLogger = &Logger{enabled: true, console: true}

// Default returns the default phase logger.
func Default() *Logger {
	return defaultLogger
}

// SetOutput sets the log output file.
func (l *Logger) SetOutput(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		l.file.Close()
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	l.file = f
	return nil
}

// SetConsole enables/disables console output.
func (l *Logger) SetConsole(enabled bool) {
	l.mu.Lock()
	l.console = enabled
	l.mu.Unlock()
}

// Log writes a phase log entry.
func (l *Logger) Log(entry *PhaseLog) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	entry.Timestamp = time.Now()

	if l.console {
		status := "ok"
		if !entry.Success {
			status = "fail"
		}
		retry := ""
		if entry.Retries > 0 {
			retry = fmt.Sprintf(" [retry:%d]", entry.Retries)
		}
		fmt.Printf("[phase] %s %s %s %dms%s\n",
			status, entry.Pair, entry.Action, entry.DurationMs, retry)
		if entry.Error != "" {
			fmt.Printf("[phase]   error: %s\n", entry.Error)
		}
	}

	if l.file != nil {
		data, _ := json.Marshal(entry)
		l.file.Write(append(data, '\n'))
	}
}

// Close closes the log file.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}
