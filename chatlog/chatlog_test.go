package chatlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_OrderAndCopy(t *testing.T) {
	var m Memory
	require.NoError(t, m.Append(Entry{Sender: "user", Text: "write fib.py"}))
	require.NoError(t, m.Append(Entry{Sender: "assistant", Text: "done", TokensUsed: 42}))

	entries := m.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "user", entries[0].Sender)
	assert.Equal(t, "assistant", entries[1].Sender)
	assert.Equal(t, 42, entries[1].TokensUsed)

	// The returned slice is a copy.
	entries[0].Text = "mutated"
	assert.Equal(t, "write fib.py", m.Entries()[0].Text)
}

func TestDiscard(t *testing.T) {
	assert.NoError(t, Discard.Append(Entry{Sender: "user", Text: "anything"}))
}

func TestJSONL_AppendAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.jsonl")

	log, err := OpenJSONL(path)
	require.NoError(t, err)
	require.NoError(t, log.Append(Entry{Sender: "user", Text: "first"}))
	require.NoError(t, log.Close())

	// Reopening appends, never truncates.
	log, err = OpenJSONL(path)
	require.NoError(t, err)
	require.NoError(t, log.Append(Entry{
		Time:           time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Sender:         "assistant",
		Text:           "second",
		Model:          "qwen2.5-coder:7b",
		TokensUsed:     99,
		ResponseTimeMs: 1200,
	}))
	require.NoError(t, log.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		entries = append(entries, e)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Text)
	assert.False(t, entries[0].Time.IsZero(), "zero timestamps are filled in")
	assert.Equal(t, "second", entries[1].Text)
	assert.Equal(t, "qwen2.5-coder:7b", entries[1].Model)
	assert.Equal(t, 99, entries[1].TokensUsed)
	assert.Equal(t, int64(1200), entries[1].ResponseTimeMs)
}
