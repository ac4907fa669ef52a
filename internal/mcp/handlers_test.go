package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-logr/logr"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debugmcp/debugmcp/internal/backend"
	debugerrors "github.com/debugmcp/debugmcp/internal/errors"
	"github.com/debugmcp/debugmcp/pkg/types"
)

// stubBackend records calls and returns canned results.
type stubBackend struct {
	breakpoints []types.SourceBreakpoint
	state       types.DebugState
	started     []types.DebugConfig
	stopped     []string
	stepped     []string
	frameID     *int
	evaluated   []string
}

var _ backend.Backend = (*stubBackend)(nil)

func (s *stubBackend) StartDebugging(ctx context.Context, workingDir string, cfg types.DebugConfig) (bool, error) {
	s.started = append(s.started, cfg)
	return true, nil
}

func (s *stubBackend) StopDebugging(sessionID string) error {
	s.stopped = append(s.stopped, sessionID)
	return nil
}

func (s *stubBackend) Restart(ctx context.Context) (bool, error) { return true, nil }
func (s *stubBackend) HasActiveSession() bool                    { return true }
func (s *stubBackend) SessionID() string                         { return "sess-1" }

func (s *stubBackend) StepOver(sessionID string) error { s.stepped = append(s.stepped, "over"); return nil }
func (s *stubBackend) StepInto(sessionID string) error { s.stepped = append(s.stepped, "into"); return nil }
func (s *stubBackend) StepOut(sessionID string) error  { s.stepped = append(s.stepped, "out"); return nil }
func (s *stubBackend) Continue(sessionID string) error {
	s.stepped = append(s.stepped, "continue")
	return nil
}
func (s *stubBackend) Pause(sessionID string) error { s.stepped = append(s.stepped, "pause"); return nil }

func (s *stubBackend) AddBreakpoint(uri types.Uri, line int) error {
	s.breakpoints = append(s.breakpoints, types.SourceBreakpoint{Path: uri.Path, Line: line})
	return nil
}

func (s *stubBackend) RemoveBreakpoint(uri types.Uri, line int) error {
	kept := s.breakpoints[:0]
	for _, bp := range s.breakpoints {
		if bp.Path != uri.Path || bp.Line != line {
			kept = append(kept, bp)
		}
	}
	s.breakpoints = kept
	return nil
}

func (s *stubBackend) GetBreakpoints() []types.SourceBreakpoint { return s.breakpoints }
func (s *stubBackend) ClearAllBreakpoints() error               { s.breakpoints = nil; return nil }
func (s *stubBackend) SetFunctionBreakpoints(fns []types.FunctionBreakpoint) error {
	return nil
}

func (s *stubBackend) GetActiveFrameID() *int { return s.frameID }
func (s *stubBackend) GetCurrentDebugState(numNextLines int) types.DebugState {
	return s.state
}

func (s *stubBackend) GetVariables(frameID int, scope types.VariableScope) ([]types.ScopeVariables, error) {
	return []types.ScopeVariables{{Name: "Locals", Variables: []types.VariableInfo{{Name: "x", Value: "1"}}}}, nil
}

func (s *stubBackend) EvaluateExpression(expr string, frameID int) (types.EvaluateResult, error) {
	s.evaluated = append(s.evaluated, expr)
	return types.EvaluateResult{Result: "ok"}, nil
}

func (s *stubBackend) GetRecentOutput(q types.OutputQuery) types.OutputSnapshot {
	return types.OutputSnapshot{Stdout: "out", Stderr: "err"}
}

func (s *stubBackend) OnStopped(fn func(types.StoppedEvent)) func()       { return func() {} }
func (s *stubBackend) OnTerminated(fn func(types.TerminatedEvent)) func() { return func() {} }
func (s *stubBackend) OnOutput(fn func(types.OutputEvent)) func()         { return func() {} }
func (s *stubBackend) Dispose()                                           {}

// stubProvider serves a fixed config.
type stubProvider struct{}

func (stubProvider) DebugConfigFor(fileFullPath, workingDir string) types.DebugConfig {
	return types.DebugConfig{
		Type:    "python",
		Request: "launch",
		Name:    "Standalone Debug: test",
		Program: fileFullPath,
		Cwd:     workingDir,
	}
}

func (stubProvider) AdapterFor(language types.Language) (types.AdapterDescriptor, bool) {
	return types.AdapterDescriptor{}, false
}

func newTestServer(b backend.Backend) *Server {
	return NewServer(b, stubProvider{}, logr.Discard())
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func textContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return text.Text
}

func TestHandleStart(t *testing.T) {
	stub := &stubBackend{}
	s := newTestServer(stub)

	result, err := s.handleStart(context.Background(), callRequest(map[string]any{
		"file":        "/work/app.py",
		"stopOnEntry": true,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var payload struct {
		Started   bool   `json:"started"`
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &payload))
	assert.True(t, payload.Started)
	assert.Equal(t, "sess-1", payload.SessionID)

	require.Len(t, stub.started, 1)
	assert.Equal(t, "/work/app.py", stub.started[0].Program)
	assert.Equal(t, "/work", stub.started[0].Cwd)
	assert.True(t, stub.started[0].StopOnEntry)
}

func TestHandleStart_MissingFile(t *testing.T) {
	s := newTestServer(&stubBackend{})

	result, err := s.handleStart(context.Background(), callRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleBreakpointTools(t *testing.T) {
	stub := &stubBackend{}
	s := newTestServer(stub)

	result, err := s.handleSetBreakpoint(context.Background(), callRequest(map[string]any{
		"file": "/work/app.py",
		"line": float64(12),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Len(t, stub.breakpoints, 1)
	assert.Equal(t, 12, stub.breakpoints[0].Line)

	result, err = s.handleSetBreakpoint(context.Background(), callRequest(map[string]any{
		"file": "/work/app.py",
		"line": float64(0),
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError, "line 0 is rejected")

	result, err = s.handleRemoveBreakpoint(context.Background(), callRequest(map[string]any{
		"file": "/work/app.py",
		"line": float64(12),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Empty(t, stub.breakpoints)

	result, err = s.handleClearBreakpoints(context.Background(), callRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)
}

func TestHandleVariables_NoFrame(t *testing.T) {
	s := newTestServer(&stubBackend{})

	result, err := s.handleVariables(context.Background(), callRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, textContent(t, result), debugerrors.NoActiveSession().Message)
}

func TestHandleVariables_CurrentFrameFallback(t *testing.T) {
	frameID := 1000
	stub := &stubBackend{frameID: &frameID}
	s := newTestServer(stub)

	result, err := s.handleVariables(context.Background(), callRequest(map[string]any{
		"scope": "local",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, textContent(t, result), "Locals")
}

func TestHandleVariables_BadScope(t *testing.T) {
	frameID := 1
	s := newTestServer(&stubBackend{frameID: &frameID})

	result, err := s.handleVariables(context.Background(), callRequest(map[string]any{
		"scope": "bananas",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleEvaluate(t *testing.T) {
	frameID := 7
	stub := &stubBackend{frameID: &frameID}
	s := newTestServer(stub)

	result, err := s.handleEvaluate(context.Background(), callRequest(map[string]any{
		"expression": "x + 1",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, []string{"x + 1"}, stub.evaluated)
}

func TestHandleOutput(t *testing.T) {
	s := newTestServer(&stubBackend{})

	result, err := s.handleOutput(context.Background(), callRequest(map[string]any{
		"maxLines": float64(10),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var snap types.OutputSnapshot
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &snap))
	assert.Equal(t, "out", snap.Stdout)
	assert.Equal(t, "err", snap.Stderr)
}

func TestHandleStepTools(t *testing.T) {
	stub := &stubBackend{}
	s := newTestServer(stub)

	for _, call := range []func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		s.handleStepOver, s.handleStepInto, s.handleStepOut, s.handleContinue, s.handlePause,
	} {
		result, err := call(context.Background(), callRequest(nil))
		require.NoError(t, err)
		require.False(t, result.IsError)
	}
	assert.Equal(t, []string{"over", "into", "out", "continue", "pause"}, stub.stepped)
}
