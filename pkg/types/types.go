// Package types defines the wire-neutral shapes shared across the debugmcp
// backend and its consumers.
//
// This package provides type definitions for:
//   - DebugConfig: a launch/attach descriptor with opaque adapter-specific fields
//   - Breakpoints: source and function breakpoint requests
//   - AdapterDescriptor / StandaloneConfig: adapter launch configuration
//   - Session state, events, and the synthesized DebugState snapshot
//
// Nothing here depends on the Debug Adapter Protocol; higher layers consume
// these types without knowing DAP exists.
package types

import (
	"encoding/json"
	"path/filepath"
	"time"
)

// Language identifies a debug adapter by the language it serves.
type Language string

const (
	LanguagePython Language = "python"
	LanguageNode   Language = "node"
	LanguageJava   Language = "java"
	LanguageGo     Language = "go"
	LanguagePHP    Language = "php"
	LanguageRuby   Language = "ruby"
)

// SessionState is the lifecycle phase of the single active debug session.
type SessionState string

const (
	SessionInactive     SessionState = "inactive"
	SessionInitializing SessionState = "initializing"
	SessionRunning      SessionState = "running"
	SessionStopped      SessionState = "stopped"
	SessionTerminated   SessionState = "terminated"
)

// DebugConfig describes how to launch or attach a debuggee. Type, Request and
// Name are required; everything else is conventional or adapter-specific.
// Fields the backend does not inspect ride in Extra and round-trip through
// JSON untouched.
type DebugConfig struct {
	Type    string `json:"type"`
	Request string `json:"request"` // "launch" or "attach"
	Name    string `json:"name"`

	Program     string            `json:"program,omitempty"`
	Args        []string          `json:"args,omitempty"`
	Cwd         string            `json:"cwd,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	StopOnEntry bool              `json:"stopOnEntry,omitempty"`
	Console     string            `json:"console,omitempty"`

	// Adapter-specific properties not explicitly defined above.
	Extra map[string]any `json:"-"`
}

var debugConfigKnownFields = map[string]bool{
	"type": true, "request": true, "name": true,
	"program": true, "args": true, "cwd": true, "env": true,
	"stopOnEntry": true, "console": true,
}

// UnmarshalJSON captures unknown properties into Extra.
func (c *DebugConfig) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	type alias DebugConfig
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*c = DebugConfig(a)

	for key, value := range raw {
		if debugConfigKnownFields[key] {
			continue
		}
		var v any
		if err := json.Unmarshal(value, &v); err != nil {
			return err
		}
		if c.Extra == nil {
			c.Extra = make(map[string]any)
		}
		c.Extra[key] = v
	}
	return nil
}

// MarshalJSON merges Extra back into the emitted object.
func (c DebugConfig) MarshalJSON() ([]byte, error) {
	type alias DebugConfig
	data, err := json.Marshal(alias(c))
	if err != nil {
		return nil, err
	}
	if len(c.Extra) == 0 {
		return data, nil
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	for k, v := range c.Extra {
		m[k] = v
	}
	return json.Marshal(m)
}

// ToMap flattens the config into a property bag suitable for a DAP
// launch/attach request body.
func (c DebugConfig) ToMap() (map[string]any, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// IsLaunchRequest returns true if this is a launch configuration (not attach).
func (c *DebugConfig) IsLaunchRequest() bool {
	return c.Request != "attach"
}

// Uri is a file-system path plus its normalized forward-slash form. Only the
// file case is handled; there is no scheme machinery.
type Uri struct {
	Path string `json:"path"`
}

// NewUri builds a Uri from a file-system path.
func NewUri(path string) Uri {
	return Uri{Path: path}
}

// Normalized returns the forward-slash form of the path.
func (u Uri) Normalized() string {
	return filepath.ToSlash(u.Path)
}

// Basename returns the final path element.
func (u Uri) Basename() string {
	return filepath.Base(u.Path)
}

// SourceBreakpoint is a breakpoint bound to a source line.
type SourceBreakpoint struct {
	Path         string `json:"path"`
	Line         int    `json:"line"`
	Column       int    `json:"column,omitempty"`
	Condition    string `json:"condition,omitempty"`
	HitCondition string `json:"hitCondition,omitempty"`
	LogMessage   string `json:"logMessage,omitempty"`
}

// FunctionBreakpoint is a breakpoint bound to a function name.
type FunctionBreakpoint struct {
	Name         string `json:"name"`
	Condition    string `json:"condition,omitempty"`
	HitCondition string `json:"hitCondition,omitempty"`
}

// AdapterMode selects how the supervisor talks to a spawned adapter.
type AdapterMode string

const (
	// AdapterModeStdio speaks DAP over the child's stdin/stdout.
	AdapterModeStdio AdapterMode = "stdio"
	// AdapterModeTCP expects the child to listen on a port substituted into
	// its args; the supervisor dials it.
	AdapterModeTCP AdapterMode = "tcp"
)

// AdapterDescriptor describes how to spawn a debug adapter process.
type AdapterDescriptor struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Mode    AdapterMode       `json:"mode,omitempty"` // default stdio
}

// StandaloneConfig is the loaded debugmcp.config.json.
type StandaloneConfig struct {
	Port     int                            `json:"port,omitempty"`
	Timeout  int                            `json:"timeout,omitempty"` // seconds
	Adapters map[Language]AdapterDescriptor `json:"adapters"`
	Defaults map[Language]DebugConfig       `json:"defaults,omitempty"`
}

// StoppedEvent reports that the debuggee paused.
type StoppedEvent struct {
	Reason            string `json:"reason"`
	Description       string `json:"description,omitempty"`
	ThreadID          int    `json:"threadId,omitempty"`
	AllThreadsStopped bool   `json:"allThreadsStopped,omitempty"`
}

// OutputCategory classifies a line of program output.
type OutputCategory string

const (
	CategoryConsole   OutputCategory = "console"
	CategoryStdout    OutputCategory = "stdout"
	CategoryStderr    OutputCategory = "stderr"
	CategoryTelemetry OutputCategory = "telemetry"
)

// OutputEvent carries a chunk of program output.
type OutputEvent struct {
	Category OutputCategory `json:"category"`
	Output   string         `json:"output"`
}

// TerminatedEvent reports the end of a debug session.
type TerminatedEvent struct {
	Restart any `json:"restart,omitempty"`
}

// FrameInfo is one activation record of the paused debuggee.
type FrameInfo struct {
	ID     int         `json:"id"`
	Name   string      `json:"name"`
	Line   int         `json:"line"`
	Column int         `json:"column"`
	Source *SourceInfo `json:"source,omitempty"`
}

// SourceInfo identifies the source of a frame.
type SourceInfo struct {
	Path string `json:"path,omitempty"`
	Name string `json:"name,omitempty"`
}

// ThreadInfo identifies a debuggee thread.
type ThreadInfo struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// OutputRecord is one buffered line of program output.
type OutputRecord struct {
	Text      string         `json:"text"`
	Category  OutputCategory `json:"category"`
	Timestamp time.Time      `json:"timestamp"`
}

// DebugState is a synthesized snapshot of where the session currently is.
type DebugState struct {
	SessionActive      bool     `json:"sessionActive"`
	FileFullPath       string   `json:"fileFullPath,omitempty"`
	FileName           string   `json:"fileName,omitempty"`
	CurrentLine        int      `json:"currentLine,omitempty"`
	CurrentLineContent string   `json:"currentLineContent,omitempty"`
	NextLines          []string `json:"nextLines,omitempty"`
	FrameID            *int     `json:"frameId,omitempty"`
	ThreadID           *int     `json:"threadId,omitempty"`
	FrameName          string   `json:"frameName,omitempty"`
}

// VariableInfo is one variable within a scope.
type VariableInfo struct {
	Name               string `json:"name"`
	Value              string `json:"value"`
	Type               string `json:"type,omitempty"`
	VariablesReference int    `json:"variablesReference"`
}

// ScopeVariables is the inspection result for one scope of a frame.
type ScopeVariables struct {
	Name      string         `json:"name"`
	Variables []VariableInfo `json:"variables,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// VariableScope selects which scopes getVariables returns.
type VariableScope string

const (
	ScopeLocal  VariableScope = "local"
	ScopeGlobal VariableScope = "global"
	ScopeAll    VariableScope = "all"
)

// EvaluateResult is the outcome of evaluating an expression in a frame.
type EvaluateResult struct {
	Result             string `json:"result"`
	Type               string `json:"type,omitempty"`
	VariablesReference int    `json:"variablesReference"`
}

// AdapterExit describes how the adapter child process ended.
type AdapterExit struct {
	Type   string `json:"type"`
	Code   *int   `json:"code,omitempty"`
	Signal string `json:"signal,omitempty"`
}

// OutputQuery filters a recent-output retrieval.
type OutputQuery struct {
	Since    time.Time
	MaxLines int
}

// OutputSnapshot is the result of a recent-output retrieval: stdout holds
// lines with category stdout or console, stderr the category-stderr lines,
// each joined by newline.
type OutputSnapshot struct {
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	Truncated bool   `json:"truncated"`
}
