//go:build no_automation

// Package automation is compiled out; the types remain so the web layer
// builds unchanged.
package automation

import "errors"

// ErrScriptNotFound is returned for every lookup.
var ErrScriptNotFound = errors.New("script not found")

var errDisabled = errors.New("automation disabled")

type ScriptMeta struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
}

type Script struct {
	ID     string     `json:"id"`
	Meta   ScriptMeta `json:"meta"`
	Source string     `json:"source"`
}

type RunResult struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Handlers int      `json:"handlers"`
	Logs     []string `json:"logs"`
	Duration string   `json:"duration"`
}

type Library struct{}

func (l *Library) List() ([]*Script, error)    { return nil, nil }
func (l *Library) Get(string) (*Script, error) { return nil, ErrScriptNotFound }

type Engine struct{}

func (e *Engine) IsRunning(string) bool             { return false }
func (e *Engine) Reload(string) error               { return errDisabled }
func (e *Engine) DryRun(string) (*RunResult, error) { return nil, errDisabled }
func (e *Engine) DryRunCode(string) *RunResult {
	return &RunResult{Error: errDisabled.Error(), Logs: []string{}}
}
