package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/debugmcp/debugmcp/internal/errors"
	"github.com/debugmcp/debugmcp/pkg/types"
)

// jsonResult encodes v as an MCP text result.
func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(data))
}

func errorResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(errors.FromError(err).Error())
}

// Session control

func (s *Server) handleStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file, err := request.RequireString("file")
	if err != nil {
		return mcp.NewToolResultError("required parameter 'file' is missing"), nil
	}

	workingDir := request.GetString("workingDir", filepath.Dir(file))
	cfg := s.provider.DebugConfigFor(file, workingDir)
	if request.GetBool("stopOnEntry", false) {
		cfg.StopOnEntry = true
	}

	ok, err := s.backend.StartDebugging(ctx, workingDir, cfg)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{
		"started":   ok,
		"sessionId": s.backend.SessionID(),
		"config":    cfg,
	}), nil
}

func (s *Server) handleStop(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := request.GetString("sessionId", "")
	if err := s.backend.StopDebugging(sessionID); err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"stopped": true}), nil
}

func (s *Server) handleRestart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ok, err := s.backend.Restart(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{
		"restarted": ok,
		"sessionId": s.backend.SessionID(),
	}), nil
}

// Stepping

func (s *Server) handleStepOver(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.stepResult(s.backend.StepOver(request.GetString("sessionId", "")))
}

func (s *Server) handleStepInto(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.stepResult(s.backend.StepInto(request.GetString("sessionId", "")))
}

func (s *Server) handleStepOut(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.stepResult(s.backend.StepOut(request.GetString("sessionId", "")))
}

func (s *Server) handleContinue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.stepResult(s.backend.Continue(request.GetString("sessionId", "")))
}

func (s *Server) handlePause(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.stepResult(s.backend.Pause(request.GetString("sessionId", "")))
}

func (s *Server) stepResult(err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"ok": true}), nil
}

// Breakpoints

func (s *Server) handleSetBreakpoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file, err := request.RequireString("file")
	if err != nil {
		return mcp.NewToolResultError("required parameter 'file' is missing"), nil
	}
	line := request.GetInt("line", 0)
	if line < 1 {
		return errorResult(errors.InvalidParameter("line", line, "a 1-based line number")), nil
	}

	if err := s.backend.AddBreakpoint(types.NewUri(file), line); err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"breakpoints": s.backend.GetBreakpoints()}), nil
}

func (s *Server) handleRemoveBreakpoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file, err := request.RequireString("file")
	if err != nil {
		return mcp.NewToolResultError("required parameter 'file' is missing"), nil
	}
	line := request.GetInt("line", 0)

	if err := s.backend.RemoveBreakpoint(types.NewUri(file), line); err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"breakpoints": s.backend.GetBreakpoints()}), nil
}

func (s *Server) handleListBreakpoints(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{"breakpoints": s.backend.GetBreakpoints()}), nil
}

func (s *Server) handleClearBreakpoints(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.backend.ClearAllBreakpoints(); err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"cleared": true}), nil
}

// Inspection

func (s *Server) handleState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	numNextLines := request.GetInt("numNextLines", 5)
	return jsonResult(s.backend.GetCurrentDebugState(numNextLines)), nil
}

func (s *Server) handleVariables(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	frameID, ok := s.resolveFrameID(request)
	if !ok {
		return errorResult(errors.NoActiveSession()), nil
	}

	scope := types.VariableScope(request.GetString("scope", string(types.ScopeAll)))
	switch scope {
	case types.ScopeLocal, types.ScopeGlobal, types.ScopeAll:
	default:
		return errorResult(errors.InvalidParameter("scope", string(scope), "'local', 'global' or 'all'")), nil
	}

	scopes, err := s.backend.GetVariables(frameID, scope)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"scopes": scopes}), nil
}

func (s *Server) handleEvaluate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expression, err := request.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError("required parameter 'expression' is missing"), nil
	}

	frameID, ok := s.resolveFrameID(request)
	if !ok {
		return errorResult(errors.NoActiveSession()), nil
	}

	result, err := s.backend.EvaluateExpression(expression, frameID)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(result), nil
}

func (s *Server) handleOutput(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snapshot := s.backend.GetRecentOutput(types.OutputQuery{
		MaxLines: request.GetInt("maxLines", 0),
	})
	return jsonResult(snapshot), nil
}

// resolveFrameID uses the explicit frameId parameter, falling back to the
// backend's current frame.
func (s *Server) resolveFrameID(request mcp.CallToolRequest) (int, bool) {
	if frameID := request.GetInt("frameId", 0); frameID != 0 {
		return frameID, true
	}
	if current := s.backend.GetActiveFrameID(); current != nil {
		return *current, true
	}
	return 0, false
}
