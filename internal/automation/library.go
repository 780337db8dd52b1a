//go:build !no_automation

package automation

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ErrScriptNotFound is returned for an unknown or invalid script ID.
var ErrScriptNotFound = errors.New("script not found")

// ScriptMeta is read from the script's leading annotation comments:
//
//	-- @name Phone arrives
//	-- @description Notify when the phone is in range
//	-- @enabled false
type ScriptMeta struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// Script is one rule file. The ID is the file name without ".lua".
type Script struct {
	ID     string     `json:"id"`
	Meta   ScriptMeta `json:"meta"`
	Source string     `json:"source"`
}

// Library reads rule scripts from a directory. Files are read on every call,
// so an edited script is picked up by the next reload.
type Library struct {
	dir string
}

// OpenLibrary returns a library rooted at dir, creating it if needed.
func OpenLibrary(dir string) (*Library, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scripts dir: %w", err)
	}
	return &Library{dir: dir}, nil
}

// Dir returns the scripts directory.
func (l *Library) Dir() string { return l.dir }

// List returns every *.lua file in the directory, sorted by ID.
func (l *Library) List() ([]*Script, error) {
	matches, err := filepath.Glob(filepath.Join(l.dir, "*.lua"))
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	sort.Strings(matches)

	scripts := make([]*Script, 0, len(matches))
	for _, path := range matches {
		src, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		scripts = append(scripts, parseScript(strings.TrimSuffix(filepath.Base(path), ".lua"), src))
	}
	return scripts, nil
}

// Get reads one script by ID.
func (l *Library) Get(id string) (*Script, error) {
	if !isScriptID(id) {
		return nil, fmt.Errorf("%q: %w", id, ErrScriptNotFound)
	}
	src, err := os.ReadFile(filepath.Join(l.dir, id+".lua"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%q: %w", id, ErrScriptNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read script %q: %w", id, err)
	}
	return parseScript(id, src), nil
}

// isScriptID accepts names made of letters, digits, '-' and '_'.
func isScriptID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// parseScript reads "-- @key value" annotations from the leading comment
// block. Scripts are enabled unless annotated "@enabled false".
func parseScript(id string, src []byte) *Script {
	s := &Script{
		ID:     id,
		Meta:   ScriptMeta{Name: id, Enabled: true},
		Source: string(src),
	}

	sc := bufio.NewScanner(strings.NewReader(s.Source))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "--") {
			break
		}
		key, value, ok := strings.Cut(strings.TrimSpace(strings.TrimPrefix(line, "--")), " ")
		if !ok || !strings.HasPrefix(key, "@") {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "@name":
			s.Meta.Name = value
		case "@description":
			s.Meta.Description = value
		case "@enabled":
			if b, err := strconv.ParseBool(value); err == nil {
				s.Meta.Enabled = b
			}
		}
	}
	return s
}
