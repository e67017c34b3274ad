// Package fstool provides the project file tools: read, write, list, search
// and structure, all confined to one project root. Escapes fail closed with
// a ClientError the model can read; nothing here panics a session.
package fstool

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	locopilot "github.com/locopilot/locopilot"
)

const maxFileBytes = 1 << 20 // 1 MiB

// Root confines every operation to one project directory.
type Root struct {
	dir string
}

// NewRoot resolves dir and returns a Root. dir must exist and be a
// directory.
func NewRoot(dir string) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("project root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root %s is not a directory", abs)
	}
	return &Root{dir: abs}, nil
}

// Dir reports the resolved project root.
func (r *Root) Dir() string { return r.dir }

// resolve joins rel onto the root and rejects any path that escapes it.
func (r *Root) resolve(rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	if rel == "" || rel == "." {
		return r.dir, nil
	}
	candidate := rel
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(r.dir, candidate)
	}
	candidate = filepath.Clean(candidate)
	if candidate != r.dir && !strings.HasPrefix(candidate, r.dir+string(filepath.Separator)) {
		return "", &locopilot.ClientError{Reason: fmt.Sprintf("path %q is outside the project root", rel)}
	}
	return candidate, nil
}

type readArgs struct {
	Path string `json:"path" description:"File path relative to the project root"`
}

type writeArgs struct {
	Path    string `json:"path" description:"File path relative to the project root"`
	Content string `json:"content" description:"Full new file content"`
}

type listArgs struct {
	Dir string `json:"dir,omitempty" description:"Directory to list, project root when omitted"`
}

type searchArgs struct {
	Query string `json:"query" description:"Substring to search for in project text files"`
}

type structureArgs struct {
	MaxDepth int `json:"max_depth,omitempty" description:"Tree depth limit, default 3"`
}

func (a readArgs) Validate() error {
	if strings.TrimSpace(a.Path) == "" {
		return errors.New("path must not be empty")
	}
	return nil
}

func (a writeArgs) Validate() error {
	if strings.TrimSpace(a.Path) == "" {
		return errors.New("path must not be empty")
	}
	return nil
}

func (a searchArgs) Validate() error {
	if a.Query == "" {
		return errors.New("query must not be empty")
	}
	return nil
}

// ReadFile returns the file's text. Missing files and binary content are
// reported as readable errors, not panics.
func (r *Root) ReadFile(path string) (string, error) {
	target, err := r.resolve(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &locopilot.ClientError{Reason: fmt.Sprintf("file not found: %s", path)}
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", &locopilot.ClientError{Reason: fmt.Sprintf("%s is a directory", path)}
	}
	if info.Size() > maxFileBytes {
		return "", &locopilot.ClientError{Reason: fmt.Sprintf("file %s exceeds the %d byte limit", path, maxFileBytes)}
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return "", &locopilot.ClientError{Reason: fmt.Sprintf("%s is not a text file", path)}
	}
	return string(data), nil
}

// WriteFile replaces the file's content, creating parent directories as
// needed.
func (r *Root) WriteFile(path, content string) (string, error) {
	target, err := r.resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("ensure directory for %s: %w", path, err)
	}
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
}

// ListFiles lists one directory, directories suffixed with a slash.
func (r *Root) ListFiles(dir string) (string, error) {
	target, err := r.resolve(dir)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &locopilot.ClientError{Reason: fmt.Sprintf("directory not found: %s", dir)}
		}
		return "", fmt.Errorf("list %s: %w", dir, err)
	}
	if len(entries) == 0 {
		return "(empty directory)", nil
	}
	var b strings.Builder
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		b.WriteString(name)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// SearchMatch is one hit of SearchFiles.
type SearchMatch struct {
	File string
	Line int
	Text string
}

// SearchFiles scans project text files for a substring and returns
// file:line: text matches.
func (r *Root) SearchFiles(query string) ([]SearchMatch, error) {
	var matches []SearchMatch
	err := filepath.WalkDir(r.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != r.dir {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxFileBytes {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil || !utf8.Valid(data) {
			return nil
		}
		rel, err := filepath.Rel(r.dir, path)
		if err != nil {
			return nil
		}
		for i, line := range strings.Split(string(data), "\n") {
			if strings.Contains(line, query) {
				matches = append(matches, SearchMatch{File: rel, Line: i + 1, Text: strings.TrimSpace(line)})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("search project: %w", err)
	}
	return matches, nil
}

// Structure renders an indented directory tree down to maxDepth levels.
func (r *Root) Structure(maxDepth int) (string, error) {
	if maxDepth <= 0 {
		maxDepth = 3
	}
	var b strings.Builder
	b.WriteString(filepath.Base(r.dir))
	b.WriteString("/\n")
	if err := r.writeTree(&b, r.dir, 1, maxDepth); err != nil {
		return "", err
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (r *Root) writeTree(b *strings.Builder, dir string, depth, maxDepth int) error {
	if depth > maxDepth {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil // unreadable subtree is simply omitted
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(name)
		if entry.IsDir() {
			b.WriteString("/\n")
			if err := r.writeTree(b, filepath.Join(dir, name), depth+1, maxDepth); err != nil {
				return err
			}
		} else {
			b.WriteByte('\n')
		}
	}
	return nil
}

// Tools bundles the five project file tools for registration.
func Tools(root *Root) ([]locopilot.Tool, error) {
	readTool, err := locopilot.NewTool(
		"read_file",
		"Read a text file from the project and return its content.",
		func(_ context.Context, a readArgs) (string, error) {
			return root.ReadFile(a.Path)
		},
	)
	if err != nil {
		return nil, err
	}
	writeTool, err := locopilot.NewTool(
		"write_file",
		"Create or overwrite a text file in the project with the given content.",
		func(_ context.Context, a writeArgs) (string, error) {
			return root.WriteFile(a.Path, a.Content)
		},
	)
	if err != nil {
		return nil, err
	}
	listTool, err := locopilot.NewTool(
		"list_files",
		"List the entries of a project directory.",
		func(_ context.Context, a listArgs) (string, error) {
			return root.ListFiles(a.Dir)
		},
	)
	if err != nil {
		return nil, err
	}
	searchTool, err := locopilot.NewTool(
		"search_files",
		"Search project text files for a substring; returns file:line matches.",
		func(_ context.Context, a searchArgs) (string, error) {
			matches, err := root.SearchFiles(a.Query)
			if err != nil {
				return "", err
			}
			if len(matches) == 0 {
				return "no matches", nil
			}
			var b strings.Builder
			for _, m := range matches {
				fmt.Fprintf(&b, "%s:%d: %s\n", m.File, m.Line, m.Text)
			}
			return strings.TrimRight(b.String(), "\n"), nil
		},
	)
	if err != nil {
		return nil, err
	}
	structureTool, err := locopilot.NewTool(
		"project_structure",
		"Show the project directory tree.",
		func(_ context.Context, a structureArgs) (string, error) {
			return root.Structure(a.MaxDepth)
		},
	)
	if err != nil {
		return nil, err
	}
	return []locopilot.Tool{readTool, writeTool, listTool, searchTool, structureTool}, nil
}
