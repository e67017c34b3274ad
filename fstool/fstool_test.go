package fstool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	locopilot "github.com/locopilot/locopilot"
)

func newRoot(t *testing.T) (*Root, string) {
	t.Helper()
	dir := t.TempDir()
	root, err := NewRoot(dir)
	require.NoError(t, err)
	return root, dir
}

func TestNewRoot_RejectsMissingAndFile(t *testing.T) {
	_, err := NewRoot(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)

	file := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = NewRoot(file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestWriteThenRead(t *testing.T) {
	root, _ := newRoot(t)
	msg, err := root.WriteFile("src/fib.py", "def fib(n): ...\n")
	require.NoError(t, err)
	assert.Contains(t, msg, "src/fib.py")

	got, err := root.ReadFile("src/fib.py")
	require.NoError(t, err)
	assert.Equal(t, "def fib(n): ...\n", got)
}

func TestWriteFile_Overwrites(t *testing.T) {
	root, _ := newRoot(t)
	_, err := root.WriteFile("a.txt", "first")
	require.NoError(t, err)
	_, err = root.WriteFile("a.txt", "second")
	require.NoError(t, err)
	got, err := root.ReadFile("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "second", got)
}

func TestResolve_RejectsEscapes(t *testing.T) {
	root, dir := newRoot(t)
	for _, path := range []string{
		"../outside.txt",
		"../../etc/passwd",
		"sub/../../outside.txt",
		"/etc/passwd",
	} {
		_, err := root.ReadFile(path)
		require.Error(t, err, path)
		assert.True(t, locopilot.IsClientError(err), path)
		assert.Contains(t, err.Error(), "outside the project root", path)

		_, err = root.WriteFile(path, "x")
		require.Error(t, err, path)
		assert.True(t, locopilot.IsClientError(err), path)
	}
	// Nothing escaped.
	entries, err := os.ReadDir(filepath.Dir(dir))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, "outside.txt", e.Name())
	}
}

func TestResolve_AbsolutePathInsideRootAllowed(t *testing.T) {
	root, dir := newRoot(t)
	_, err := root.WriteFile(filepath.Join(dir, "ok.txt"), "x")
	require.NoError(t, err)
}

func TestReadFile_Errors(t *testing.T) {
	root, dir := newRoot(t)

	_, err := root.ReadFile("missing.txt")
	require.Error(t, err)
	assert.True(t, locopilot.IsClientError(err))
	assert.Contains(t, err.Error(), "file not found")

	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	_, err = root.ReadFile("sub")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is a directory")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bin.dat"), []byte{0xff, 0xfe, 0x00, 0x80}, 0o644))
	_, err = root.ReadFile("bin.dat")
	require.Error(t, err)
	assert.True(t, locopilot.IsClientError(err))
	assert.Contains(t, err.Error(), "not a text file")
}

func TestListFiles(t *testing.T) {
	root, dir := newRoot(t)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.py"), []byte("print(1)\n"), 0o644))

	out, err := root.ListFiles("")
	require.NoError(t, err)
	assert.Contains(t, out, "src/")
	assert.Contains(t, out, "main.py")

	out, err = root.ListFiles("src")
	require.NoError(t, err)
	assert.Equal(t, "(empty directory)", out)

	_, err = root.ListFiles("nope")
	require.Error(t, err)
	assert.True(t, locopilot.IsClientError(err))
}

func TestSearchFiles(t *testing.T) {
	root, dir := newRoot(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fib.py"), []byte("def fib(n):\n    return fib(n-1) + fib(n-2)\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "config"), []byte("fib\n"), 0o644))

	matches, err := root.SearchFiles("fib(n-1)")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "fib.py", matches[0].File)
	assert.Equal(t, 2, matches[0].Line)
	assert.Equal(t, "return fib(n-1) + fib(n-2)", matches[0].Text)

	// Hidden directories are not scanned.
	matches, err = root.SearchFiles("fib")
	require.NoError(t, err)
	for _, m := range matches {
		assert.NotContains(t, m.File, ".git")
	}

	matches, err = root.SearchFiles("no such needle")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestStructure(t *testing.T) {
	root, dir := newRoot(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src", "deep", "deeper"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "fib.py"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), nil, 0o644))

	out, err := root.Structure(2)
	require.NoError(t, err)
	assert.Contains(t, out, "src/")
	assert.Contains(t, out, "  fib.py")
	assert.Contains(t, out, "deep/")
	assert.NotContains(t, out, "deeper", "depth limit must hold")
	assert.NotContains(t, out, ".hidden")
}

func TestTools_Bundle(t *testing.T) {
	root, _ := newRoot(t)
	tools, err := Tools(root)
	require.NoError(t, err)
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name())
	}
	assert.Equal(t, []string{"read_file", "write_file", "list_files", "search_files", "project_structure"}, names)
}

func TestTools_WriteReadRoundTrip(t *testing.T) {
	root, _ := newRoot(t)
	tools, err := Tools(root)
	require.NoError(t, err)
	reg := locopilot.NewRegistry()
	for _, tool := range tools {
		reg.Register(tool)
	}

	res, err := reg.Execute(context.Background(), locopilot.ToolCall{
		ID: "1", ToolName: "write_file",
		Args: json.RawMessage(`{"path":"fib.py","content":"print('fib')\n"}`),
	})
	require.NoError(t, err)
	var msg string
	require.NoError(t, json.Unmarshal(res, &msg))
	assert.Contains(t, msg, "fib.py")

	res, err = reg.Execute(context.Background(), locopilot.ToolCall{
		ID: "2", ToolName: "read_file",
		Args: json.RawMessage(`{"path":"fib.py"}`),
	})
	require.NoError(t, err)
	var content string
	require.NoError(t, json.Unmarshal(res, &content))
	assert.Equal(t, "print('fib')\n", content)
}

func TestTools_EmptyPathRejected(t *testing.T) {
	root, _ := newRoot(t)
	tools, err := Tools(root)
	require.NoError(t, err)
	reg := locopilot.NewRegistry()
	for _, tool := range tools {
		reg.Register(tool)
	}
	_, err = reg.Execute(context.Background(), locopilot.ToolCall{
		ID: "1", ToolName: "read_file", Args: json.RawMessage(`{"path":" "}`),
	})
	require.Error(t, err)
	assert.True(t, locopilot.IsClientError(err))
}
