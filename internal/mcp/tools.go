package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools registers the debugging tool surface.
func (s *Server) registerTools() {
	// Session control
	s.mcpServer.AddTool(mcp.NewTool("debug_start",
		mcp.WithDescription("Start debugging a source file. Builds a launch configuration for the file's language from debugmcp.config.json and starts the debug adapter. Only one session is active at a time; starting replaces any running session."),
		mcp.WithString("file",
			mcp.Required(),
			mcp.Description("Absolute path of the source file to debug"),
		),
		mcp.WithString("workingDir",
			mcp.Description("Working directory for the debuggee (default: directory of the file)"),
		),
		mcp.WithBoolean("stopOnEntry",
			mcp.Description("Pause at the first line (default: false)"),
		),
	), s.handleStart)

	s.mcpServer.AddTool(mcp.NewTool("debug_stop",
		mcp.WithDescription("Stop the active debug session and terminate the debuggee."),
		mcp.WithString("sessionId",
			mcp.Description("Optional session id; must match the active session when given"),
		),
	), s.handleStop)

	s.mcpServer.AddTool(mcp.NewTool("debug_restart",
		mcp.WithDescription("Restart the active debug session with its original configuration."),
	), s.handleRestart)

	// Stepping
	s.mcpServer.AddTool(mcp.NewTool("debug_step_over",
		mcp.WithDescription("Execute the current line and stop on the next one."),
		mcp.WithString("sessionId", mcp.Description("Optional session id")),
	), s.handleStepOver)

	s.mcpServer.AddTool(mcp.NewTool("debug_step_into",
		mcp.WithDescription("Step into the function call on the current line."),
		mcp.WithString("sessionId", mcp.Description("Optional session id")),
	), s.handleStepInto)

	s.mcpServer.AddTool(mcp.NewTool("debug_step_out",
		mcp.WithDescription("Run until the current function returns."),
		mcp.WithString("sessionId", mcp.Description("Optional session id")),
	), s.handleStepOut)

	s.mcpServer.AddTool(mcp.NewTool("debug_continue",
		mcp.WithDescription("Resume execution until the next breakpoint or program end."),
		mcp.WithString("sessionId", mcp.Description("Optional session id")),
	), s.handleContinue)

	s.mcpServer.AddTool(mcp.NewTool("debug_pause",
		mcp.WithDescription("Interrupt the running debuggee."),
		mcp.WithString("sessionId", mcp.Description("Optional session id")),
	), s.handlePause)

	// Breakpoints
	s.mcpServer.AddTool(mcp.NewTool("debug_set_breakpoint",
		mcp.WithDescription("Set a breakpoint at a source line. Takes effect immediately when a session is active, otherwise on the next start."),
		mcp.WithString("file", mcp.Required(), mcp.Description("Absolute path of the source file")),
		mcp.WithNumber("line", mcp.Required(), mcp.Description("1-based line number")),
	), s.handleSetBreakpoint)

	s.mcpServer.AddTool(mcp.NewTool("debug_remove_breakpoint",
		mcp.WithDescription("Remove the breakpoint at a source line."),
		mcp.WithString("file", mcp.Required(), mcp.Description("Absolute path of the source file")),
		mcp.WithNumber("line", mcp.Required(), mcp.Description("1-based line number")),
	), s.handleRemoveBreakpoint)

	s.mcpServer.AddTool(mcp.NewTool("debug_list_breakpoints",
		mcp.WithDescription("List all breakpoints."),
	), s.handleListBreakpoints)

	s.mcpServer.AddTool(mcp.NewTool("debug_clear_breakpoints",
		mcp.WithDescription("Remove all breakpoints."),
	), s.handleClearBreakpoints)

	// Inspection
	s.mcpServer.AddTool(mcp.NewTool("debug_state",
		mcp.WithDescription("Get the current debug state: file, line, current line content and the following lines, frame and thread ids."),
		mcp.WithNumber("numNextLines",
			mcp.Description("How many lines after the current one to include (default: 5)"),
		),
	), s.handleState)

	s.mcpServer.AddTool(mcp.NewTool("debug_variables",
		mcp.WithDescription("Get the variables visible in a stack frame, grouped by scope."),
		mcp.WithNumber("frameId",
			mcp.Description("Frame to inspect (default: the current frame)"),
		),
		mcp.WithString("scope",
			mcp.Description("Which scopes to include: 'local', 'global' or 'all' (default: 'all')"),
		),
	), s.handleVariables)

	s.mcpServer.AddTool(mcp.NewTool("debug_evaluate",
		mcp.WithDescription("Evaluate an expression in a stack frame."),
		mcp.WithString("expression", mcp.Required(), mcp.Description("The expression to evaluate")),
		mcp.WithNumber("frameId",
			mcp.Description("Frame to evaluate in (default: the current frame)"),
		),
	), s.handleEvaluate)

	s.mcpServer.AddTool(mcp.NewTool("debug_output",
		mcp.WithDescription("Get recent program output (stdout and stderr)."),
		mcp.WithNumber("maxLines",
			mcp.Description("Maximum number of lines to return (default: all buffered)"),
		),
	), s.handleOutput)
}
