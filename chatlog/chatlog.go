// Package chatlog defines the append-only conversation log sink and two
// implementations: a JSONL file and an in-memory buffer. The storage format
// is the sink's choice; the orchestrator only appends.
package chatlog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Entry is one appended conversation event.
type Entry struct {
	Time           time.Time `json:"time"`
	Sender         string    `json:"sender"` // user, assistant, tool, system
	Text           string    `json:"text"`
	Model          string    `json:"model,omitempty"`
	TokensUsed     int       `json:"tokens_used,omitempty"`
	ResponseTimeMs int64     `json:"response_time_ms,omitempty"`
}

// Sink receives conversation entries in order. Implementations must be safe
// for use from one Session at a time; cross-Session sharing is the caller's
// concern.
type Sink interface {
	Append(e Entry) error
}

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Append(Entry) error { return nil }

// Memory keeps entries in order for inspection; meant for tests and
// interactive surfaces.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

// Append stores the entry.
func (m *Memory) Append(e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

// Entries returns a copy of everything appended so far.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// JSONL appends newline-delimited JSON entries to a file.
type JSONL struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// OpenJSONL opens (or creates) the log file for appending.
func OpenJSONL(path string) (*JSONL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open chat log: %w", err)
	}
	return &JSONL{file: f, enc: json.NewEncoder(f)}, nil
}

// Append writes one JSON line.
func (j *JSONL) Append(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if err := j.enc.Encode(e); err != nil {
		return fmt.Errorf("append chat log: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (j *JSONL) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}
