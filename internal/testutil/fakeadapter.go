// Package testutil provides a scripted debug adapter for tests, run as a
// child process.
//
// Test binaries re-exec themselves as the adapter child: the supervisor
// spawns the test binary with -test.run pinned to a helper test that calls
// RunFakeAdapterIfRequested, which speaks just enough DAP on stdio to drive
// the backend through launch, breakpoints, stepping and inspection.
package testutil

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/go-dap"

	"github.com/debugmcp/debugmcp/pkg/types"
)

const (
	envEnabled = "DEBUGMCP_FAKE_ADAPTER"
	envLog     = "DEBUGMCP_FAKE_LOG"
	envSource  = "DEBUGMCP_FAKE_SOURCE"
	envLine    = "DEBUGMCP_FAKE_LINE"
)

// RecordedRequest is one adapter-side observation, written as a JSON line to
// the file named by DEBUGMCP_FAKE_LOG.
type RecordedRequest struct {
	Command string   `json:"command"`
	Path    string   `json:"path,omitempty"`
	Lines   []int    `json:"lines,omitempty"`
	Names   []string `json:"names,omitempty"`
}

// FakeAdapterDescriptor builds an AdapterDescriptor that re-execs the
// current test binary as the scripted adapter.
func FakeAdapterDescriptor(logPath, sourcePath string) types.AdapterDescriptor {
	return types.AdapterDescriptor{
		Command: os.Args[0],
		Args:    []string{"-test.run=TestFakeAdapterProcess"},
		Env: map[string]string{
			envEnabled: "1",
			envLog:     logPath,
			envSource:  sourcePath,
		},
	}
}

// RunFakeAdapterIfRequested runs the scripted adapter and exits the process
// when the test binary was spawned as an adapter child. A no-op otherwise.
func RunFakeAdapterIfRequested() {
	if os.Getenv(envEnabled) != "1" {
		return
	}
	runFakeAdapter()
	os.Exit(0)
}

type fakeAdapter struct {
	writeMu sync.Mutex
	seq     int

	source string
	line   int

	logMu   sync.Mutex
	logFile *os.File
}

func runFakeAdapter() {
	fa := &fakeAdapter{
		source: os.Getenv(envSource),
		line:   10,
	}
	if raw := os.Getenv(envLine); raw != "" {
		var n int
		if err := json.Unmarshal([]byte(raw), &n); err == nil && n > 0 {
			fa.line = n
		}
	}
	if path := os.Getenv(envLog); path != "" {
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			fa.logFile = f
			defer f.Close()
		}
	}

	reader := bufio.NewReader(os.Stdin)
	for {
		msg, err := dap.ReadProtocolMessage(reader)
		if err != nil {
			return
		}
		if !fa.handle(msg) {
			return
		}
	}
}

func (fa *fakeAdapter) handle(msg dap.Message) bool {
	switch req := msg.(type) {
	case *dap.InitializeRequest:
		fa.send(&dap.InitializeResponse{
			Response: fa.response("initialize", req.Seq),
			Body: dap.Capabilities{
				SupportsConfigurationDoneRequest: true,
				SupportsFunctionBreakpoints:      true,
			},
		})

	case *dap.LaunchRequest:
		// initialized is deliberately emitted before the launch response;
		// several real adapters do the same.
		fa.send(&dap.InitializedEvent{Event: fa.event("initialized")})
		fa.send(&dap.LaunchResponse{Response: fa.response("launch", req.Seq)})

	case *dap.AttachRequest:
		fa.send(&dap.InitializedEvent{Event: fa.event("initialized")})
		fa.send(&dap.AttachResponse{Response: fa.response("attach", req.Seq)})

	case *dap.SetBreakpointsRequest:
		lines := make([]int, len(req.Arguments.Breakpoints))
		verified := make([]dap.Breakpoint, len(req.Arguments.Breakpoints))
		for i, bp := range req.Arguments.Breakpoints {
			lines[i] = bp.Line
			verified[i] = dap.Breakpoint{Id: i + 1, Verified: true, Line: bp.Line}
		}
		fa.record(RecordedRequest{
			Command: "setBreakpoints",
			Path:    req.Arguments.Source.Path,
			Lines:   lines,
		})
		fa.send(&dap.SetBreakpointsResponse{
			Response: fa.response("setBreakpoints", req.Seq),
			Body:     dap.SetBreakpointsResponseBody{Breakpoints: verified},
		})

	case *dap.SetFunctionBreakpointsRequest:
		names := make([]string, len(req.Arguments.Breakpoints))
		for i, bp := range req.Arguments.Breakpoints {
			names[i] = bp.Name
		}
		fa.record(RecordedRequest{Command: "setFunctionBreakpoints", Names: names})
		fa.send(&dap.SetFunctionBreakpointsResponse{
			Response: fa.response("setFunctionBreakpoints", req.Seq),
		})

	case *dap.ConfigurationDoneRequest:
		fa.record(RecordedRequest{Command: "configurationDone"})
		fa.send(&dap.ConfigurationDoneResponse{Response: fa.response("configurationDone", req.Seq)})
		fa.emitOutput("stdout", "fake adapter ready\n")
		fa.emitStoppedAfter(30*time.Millisecond, "breakpoint")

	case *dap.ThreadsRequest:
		fa.send(&dap.ThreadsResponse{
			Response: fa.response("threads", req.Seq),
			Body: dap.ThreadsResponseBody{
				Threads: []dap.Thread{{Id: 1, Name: "MainThread"}},
			},
		})

	case *dap.StackTraceRequest:
		fa.send(&dap.StackTraceResponse{
			Response: fa.response("stackTrace", req.Seq),
			Body: dap.StackTraceResponseBody{
				StackFrames: []dap.StackFrame{{
					Id:   1000,
					Name: "main",
					Line: fa.line,
					Source: &dap.Source{
						Path: fa.source,
						Name: "fake",
					},
				}},
				TotalFrames: 1,
			},
		})

	case *dap.NextRequest:
		fa.line++
		fa.send(&dap.NextResponse{Response: fa.response("next", req.Seq)})
		fa.record(RecordedRequest{Command: "next"})
		fa.emitStoppedAfter(30*time.Millisecond, "step")

	case *dap.StepInRequest:
		fa.line++
		fa.send(&dap.StepInResponse{Response: fa.response("stepIn", req.Seq)})
		fa.emitStoppedAfter(30*time.Millisecond, "step")

	case *dap.StepOutRequest:
		fa.line++
		fa.send(&dap.StepOutResponse{Response: fa.response("stepOut", req.Seq)})
		fa.emitStoppedAfter(30*time.Millisecond, "step")

	case *dap.ContinueRequest:
		fa.send(&dap.ContinueResponse{
			Response: fa.response("continue", req.Seq),
			Body:     dap.ContinueResponseBody{AllThreadsContinued: true},
		})
		fa.emitStoppedAfter(30*time.Millisecond, "breakpoint")

	case *dap.PauseRequest:
		fa.send(&dap.PauseResponse{Response: fa.response("pause", req.Seq)})
		fa.emitStoppedAfter(10*time.Millisecond, "pause")

	case *dap.ScopesRequest:
		fa.send(&dap.ScopesResponse{
			Response: fa.response("scopes", req.Seq),
			Body: dap.ScopesResponseBody{
				Scopes: []dap.Scope{
					{Name: "Locals", VariablesReference: 2001},
					{Name: "Globals", VariablesReference: 2002},
				},
			},
		})

	case *dap.VariablesRequest:
		var vars []dap.Variable
		switch req.Arguments.VariablesReference {
		case 2001:
			vars = []dap.Variable{{Name: "x", Value: "42", Type: "int"}}
		case 2002:
			vars = []dap.Variable{{Name: "answer", Value: "\"yes\"", Type: "str"}}
		}
		fa.send(&dap.VariablesResponse{
			Response: fa.response("variables", req.Seq),
			Body:     dap.VariablesResponseBody{Variables: vars},
		})

	case *dap.EvaluateRequest:
		if req.Arguments.Expression == "crash!" {
			os.Exit(2)
		}
		fa.send(&dap.EvaluateResponse{
			Response: fa.response("evaluate", req.Seq),
			Body: dap.EvaluateResponseBody{
				Result: "=> " + req.Arguments.Expression,
				Type:   "str",
			},
		})

	case *dap.DisconnectRequest:
		fa.send(&dap.DisconnectResponse{Response: fa.response("disconnect", req.Seq)})
		fa.send(&dap.TerminatedEvent{Event: fa.event("terminated")})
		return false

	case *dap.TerminateRequest:
		fa.send(&dap.TerminateResponse{Response: fa.response("terminate", req.Seq)})
		fa.send(&dap.TerminatedEvent{Event: fa.event("terminated")})
		return false
	}
	return true
}

func (fa *fakeAdapter) emitStoppedAfter(delay time.Duration, reason string) {
	time.AfterFunc(delay, func() {
		fa.send(&dap.StoppedEvent{
			Event: fa.event("stopped"),
			Body: dap.StoppedEventBody{
				Reason:            reason,
				ThreadId:          1,
				AllThreadsStopped: true,
			},
		})
	})
}

func (fa *fakeAdapter) emitOutput(category, output string) {
	fa.send(&dap.OutputEvent{
		Event: fa.event("output"),
		Body: dap.OutputEventBody{
			Category: category,
			Output:   output,
		},
	})
}

func (fa *fakeAdapter) response(command string, requestSeq int) dap.Response {
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Seq: fa.nextSeq(), Type: "response"},
		Command:         command,
		RequestSeq:      requestSeq,
		Success:         true,
	}
}

func (fa *fakeAdapter) event(name string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Seq: fa.nextSeq(), Type: "event"},
		Event:           name,
	}
}

func (fa *fakeAdapter) nextSeq() int {
	fa.writeMu.Lock()
	defer fa.writeMu.Unlock()
	fa.seq++
	return fa.seq
}

func (fa *fakeAdapter) send(msg dap.Message) {
	fa.writeMu.Lock()
	defer fa.writeMu.Unlock()
	_ = dap.WriteProtocolMessage(os.Stdout, msg)
}

func (fa *fakeAdapter) record(rec RecordedRequest) {
	fa.logMu.Lock()
	defer fa.logMu.Unlock()
	if fa.logFile == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	fa.logFile.Write(append(data, '\n'))
	fa.logFile.Sync()
}

// ReadRecordedRequests parses the JSON-lines log written by the fake
// adapter.
func ReadRecordedRequests(path string) ([]RecordedRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []RecordedRequest
	for _, line := range splitLines(data) {
		if len(line) == 0 {
			continue
		}
		var rec RecordedRequest
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
