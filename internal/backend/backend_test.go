package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	debugerrors "github.com/debugmcp/debugmcp/internal/errors"
	"github.com/debugmcp/debugmcp/internal/testutil"
	"github.com/debugmcp/debugmcp/pkg/types"
)

// TestFakeAdapterProcess is the re-exec entry point for the scripted
// adapter; it is a no-op in a normal test run.
func TestFakeAdapterProcess(t *testing.T) {
	testutil.RunFakeAdapterIfRequested()
}

type testHarness struct {
	backend *Standalone
	logPath string
	source  string
	cfg     types.DebugConfig
	stopped chan types.StoppedEvent
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	source, err := filepath.Abs(filepath.Join("testdata", "calculator.py"))
	require.NoError(t, err)
	require.FileExists(t, source)

	logPath := filepath.Join(t.TempDir(), "adapter.jsonl")
	descriptors := map[types.Language]types.AdapterDescriptor{
		types.LanguagePython: testutil.FakeAdapterDescriptor(logPath, source),
	}

	b := NewStandalone(descriptors, logr.Discard())
	t.Cleanup(b.Dispose)

	h := &testHarness{
		backend: b,
		logPath: logPath,
		source:  source,
		cfg: types.DebugConfig{
			Type:    string(types.LanguagePython),
			Request: "launch",
			Name:    "Standalone Debug: calculator.py",
			Program: source,
		},
		stopped: make(chan types.StoppedEvent, 16),
	}
	b.OnStopped(func(ev types.StoppedEvent) { h.stopped <- ev })
	return h
}

func (h *testHarness) start(t *testing.T) {
	t.Helper()
	ok, err := h.backend.StartDebugging(context.Background(), filepath.Dir(h.source), h.cfg)
	require.NoError(t, err)
	require.True(t, ok)
}

func (h *testHarness) waitStopped(t *testing.T) types.StoppedEvent {
	t.Helper()
	select {
	case ev := <-h.stopped:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for stopped event")
		return types.StoppedEvent{}
	}
}

func (h *testHarness) records(t *testing.T) []testutil.RecordedRequest {
	t.Helper()
	recs, err := testutil.ReadRecordedRequests(h.logPath)
	require.NoError(t, err)
	return recs
}

func setBreakpointRecords(recs []testutil.RecordedRequest, path string) []testutil.RecordedRequest {
	var out []testutil.RecordedRequest
	for _, rec := range recs {
		if rec.Command == "setBreakpoints" && rec.Path == path {
			out = append(out, rec)
		}
	}
	return out
}

// TestBackend_BreakpointReconciliationOnStart drives the launch handshake:
// breakpoints registered before the session start must reach the adapter as
// exactly one total setBreakpoints per path, before configurationDone.
func TestBackend_BreakpointReconciliationOnStart(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.backend.AddBreakpoint(types.NewUri(h.source), 10))
	require.NoError(t, h.backend.AddBreakpoint(types.NewUri(h.source), 20))
	// Duplicate adds change nothing.
	require.NoError(t, h.backend.AddBreakpoint(types.NewUri(h.source), 10))

	h.start(t)
	ev := h.waitStopped(t)
	assert.Equal(t, "breakpoint", ev.Reason)
	assert.Equal(t, 1, ev.ThreadID)

	recs := h.records(t)
	bpRecs := setBreakpointRecords(recs, h.source)
	require.Len(t, bpRecs, 1, "exactly one setBreakpoints for the path during initial sync")
	assert.Equal(t, []int{10, 20}, bpRecs[0].Lines)

	// configurationDone follows the breakpoint sync.
	var sawBreakpoints bool
	for _, rec := range recs {
		switch rec.Command {
		case "setBreakpoints":
			sawBreakpoints = true
		case "configurationDone":
			assert.True(t, sawBreakpoints, "configurationDone must come after setBreakpoints")
		}
	}

	// The handshake negotiates 1-based columns, so an adapter that omits
	// the column gets it defaulted to 1.
	frame := h.backend.Tracker().CurrentFrame()
	require.NotNil(t, frame)
	assert.Equal(t, 1, frame.Column)

	st := h.backend.GetCurrentDebugState(2)
	assert.True(t, st.SessionActive)
	require.NotNil(t, st.ThreadID)
	assert.Equal(t, 1, *st.ThreadID)
	require.NotNil(t, st.FrameID)
	assert.Equal(t, 1000, *st.FrameID)
	assert.Equal(t, 10, st.CurrentLine)
	assert.Equal(t, "calculator.py", st.FileName)
	assert.Equal(t, h.source, st.FileFullPath)
	assert.Equal(t, "    total = 0", st.CurrentLineContent)
	assert.Equal(t, []string{"    for _ in range(b):", "        total = add(total, a)"}, st.NextLines)
}

// TestBackend_SteppingUpdatesState pins the step-over flow: the adapter
// receives next, the frame clears while running, and the following stop
// reports the next line.
func TestBackend_SteppingUpdatesState(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.waitStopped(t)

	require.NoError(t, h.backend.StepOver(""))
	assert.Nil(t, h.backend.GetActiveFrameID(), "the frame clears on continue")

	ev := h.waitStopped(t)
	assert.Equal(t, "step", ev.Reason)

	var sawNext bool
	for _, rec := range h.records(t) {
		if rec.Command == "next" {
			sawNext = true
		}
	}
	assert.True(t, sawNext, "the adapter must receive a next request")

	st := h.backend.GetCurrentDebugState(0)
	assert.Equal(t, 11, st.CurrentLine)
	assert.Empty(t, st.NextLines)
}

// TestBackend_AdapterCrash drives the crash path: the adapter process dies,
// terminated subscribers fire, and subsequent operations report no session.
func TestBackend_AdapterCrash(t *testing.T) {
	h := newHarness(t)

	terminated := make(chan types.TerminatedEvent, 1)
	h.backend.OnTerminated(func(ev types.TerminatedEvent) { terminated <- ev })

	h.start(t)
	h.waitStopped(t)

	frameID := h.backend.GetActiveFrameID()
	require.NotNil(t, frameID)

	// The scripted adapter exits with code 2 on this expression.
	_, err := h.backend.EvaluateExpression("crash!", *frameID)
	require.Error(t, err)

	select {
	case <-terminated:
	case <-time.After(5 * time.Second):
		t.Fatal("terminated subscribers did not fire after the crash")
	}

	require.Eventually(t, func() bool {
		return h.backend.Tracker().State() == types.SessionTerminated
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, h.backend.HasActiveSession())

	err = h.backend.StepOver("")
	require.Error(t, err)
	assert.True(t, debugerrors.HasCode(err, debugerrors.CodeNoActiveSession))

	require.NoError(t, h.backend.StopDebugging(""))
	assert.Equal(t, types.SessionInactive, h.backend.Tracker().State())
}

// TestBackend_BreakpointOpsReconcileWhileActive covers live reconciliation:
// adding sends the full set, removing one sends the remaining set, clearing
// sends an explicit empty set, and a second clear issues nothing.
func TestBackend_BreakpointOpsReconcileWhileActive(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.waitStopped(t)

	require.NoError(t, h.backend.AddBreakpoint(types.NewUri(h.source), 5))
	require.NoError(t, h.backend.AddBreakpoint(types.NewUri(h.source), 12))

	recs := setBreakpointRecords(h.records(t), h.source)
	require.Len(t, recs, 2)
	assert.Equal(t, []int{5}, recs[0].Lines)
	assert.Equal(t, []int{5, 12}, recs[1].Lines)

	require.NoError(t, h.backend.RemoveBreakpoint(types.NewUri(h.source), 5))
	recs = setBreakpointRecords(h.records(t), h.source)
	require.Len(t, recs, 3)
	assert.Equal(t, []int{12}, recs[2].Lines)

	require.NoError(t, h.backend.ClearAllBreakpoints())
	recs = setBreakpointRecords(h.records(t), h.source)
	require.Len(t, recs, 4, "clearing sends an explicit empty set per affected path")
	assert.Empty(t, recs[3].Lines)
	assert.Empty(t, h.backend.GetBreakpoints())

	// Idempotence: a second clear has nothing to reconcile.
	require.NoError(t, h.backend.ClearAllBreakpoints())
	assert.Len(t, setBreakpointRecords(h.records(t), h.source), 4)
}

func TestBackend_BreakpointsSurviveWithoutSession(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.backend.AddBreakpoint(types.NewUri("/a.py"), 3))
	require.NoError(t, h.backend.AddBreakpoint(types.NewUri("/b.py"), 8))
	require.NoError(t, h.backend.AddBreakpoint(types.NewUri("/a.py"), 3)) // duplicate

	bps := h.backend.GetBreakpoints()
	require.Len(t, bps, 2)
	assert.Equal(t, "/a.py", bps[0].Path)
	assert.Equal(t, 3, bps[0].Line)
	assert.Equal(t, "/b.py", bps[1].Path)

	require.NoError(t, h.backend.RemoveBreakpoint(types.NewUri("/a.py"), 3))
	assert.Len(t, h.backend.GetBreakpoints(), 1)

	err := h.backend.AddBreakpoint(types.NewUri("/a.py"), 0)
	require.Error(t, err)
	assert.True(t, debugerrors.HasCode(err, debugerrors.CodeInvalidParameter))
}

func TestBackend_GetVariables(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.waitStopped(t)

	frameID := h.backend.GetActiveFrameID()
	require.NotNil(t, frameID)

	all, err := h.backend.GetVariables(*frameID, types.ScopeAll)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Locals", all[0].Name)
	assert.Equal(t, "Globals", all[1].Name)

	locals, err := h.backend.GetVariables(*frameID, types.ScopeLocal)
	require.NoError(t, err)
	require.Len(t, locals, 1)
	require.Len(t, locals[0].Variables, 1)
	assert.Equal(t, "x", locals[0].Variables[0].Name)
	assert.Equal(t, "42", locals[0].Variables[0].Value)
	assert.Equal(t, "int", locals[0].Variables[0].Type)

	globals, err := h.backend.GetVariables(*frameID, types.ScopeGlobal)
	require.NoError(t, err)
	require.Len(t, globals, 1)
	assert.Equal(t, "Globals", globals[0].Name)
}

func TestBackend_EvaluateExpression(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.waitStopped(t)

	frameID := h.backend.GetActiveFrameID()
	require.NotNil(t, frameID)

	result, err := h.backend.EvaluateExpression("x + 1", *frameID)
	require.NoError(t, err)
	assert.Equal(t, "=> x + 1", result.Result)
	assert.Equal(t, "str", result.Type)
}

func TestBackend_OutputCaptured(t *testing.T) {
	h := newHarness(t)

	outputs := make(chan types.OutputEvent, 4)
	h.backend.OnOutput(func(ev types.OutputEvent) { outputs <- ev })

	h.start(t)
	h.waitStopped(t)

	select {
	case ev := <-outputs:
		assert.Equal(t, types.CategoryStdout, ev.Category)
	case <-time.After(2 * time.Second):
		t.Fatal("output subscribers did not fire")
	}

	snap := h.backend.GetRecentOutput(types.OutputQuery{})
	assert.Contains(t, snap.Stdout, "fake adapter ready")
}

func TestBackend_Restart(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.waitStopped(t)
	first := h.backend.SessionID()
	require.NotEmpty(t, first)

	ok, err := h.backend.Restart(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	h.waitStopped(t)

	assert.NotEqual(t, first, h.backend.SessionID())
	assert.True(t, h.backend.HasActiveSession())
}

func TestBackend_RestartWithoutSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.backend.Restart(context.Background())
	require.Error(t, err)
	assert.True(t, debugerrors.HasCode(err, debugerrors.CodeNoActiveSession))
}

func TestBackend_SessionIDMismatch(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.waitStopped(t)

	err := h.backend.StepOver("not-the-session")
	require.Error(t, err)
	assert.True(t, debugerrors.HasCode(err, debugerrors.CodeNoActiveSession))

	// The informational id, when it matches, is accepted.
	require.NoError(t, h.backend.StepOver(h.backend.SessionID()))
	h.waitStopped(t)
}

func TestBackend_NoAdapterConfigured(t *testing.T) {
	h := newHarness(t)

	cfg := h.cfg
	cfg.Type = "ruby"
	ok, err := h.backend.StartDebugging(context.Background(), filepath.Dir(h.source), cfg)
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, debugerrors.HasCode(err, debugerrors.CodeNoAdapterConfigured))
	assert.Contains(t, err.Error(), "python")
}

func TestBackend_StopIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.waitStopped(t)

	require.NoError(t, h.backend.StopDebugging(""))
	assert.False(t, h.backend.HasActiveSession())
	require.NoError(t, h.backend.StopDebugging(""))
}

func TestBackend_PanickingSubscriberDoesNotBlockOthers(t *testing.T) {
	h := newHarness(t)

	second := make(chan struct{}, 4)
	h.backend.OnStopped(func(types.StoppedEvent) { panic("subscriber bug") })
	h.backend.OnStopped(func(types.StoppedEvent) { second <- struct{}{} })

	h.start(t)
	h.waitStopped(t)

	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("second subscriber starved by a panicking one")
	}
}

func TestBackend_SubscriberDisposal(t *testing.T) {
	h := newHarness(t)

	calls := make(chan struct{}, 4)
	dispose := h.backend.OnStopped(func(types.StoppedEvent) { calls <- struct{}{} })
	dispose()

	h.start(t)
	h.waitStopped(t)

	select {
	case <-calls:
		t.Fatal("disposed subscriber still received an event")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBackend_DebugStateInactive(t *testing.T) {
	h := newHarness(t)
	st := h.backend.GetCurrentDebugState(3)
	assert.False(t, st.SessionActive)
	assert.Nil(t, st.ThreadID)
	assert.Nil(t, st.FrameID)
}

func TestBackend_DebugStateUnreadableSource(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.waitStopped(t)

	// Force the recorded frame onto a path that cannot be read.
	h.backend.Tracker().SetCurrentFrame(types.FrameInfo{
		ID:     1000,
		Name:   "main",
		Line:   10,
		Column: 1,
		Source: &types.SourceInfo{Path: filepath.Join(os.TempDir(), "debugmcp-missing.py"), Name: "missing"},
	})

	st := h.backend.GetCurrentDebugState(2)
	assert.True(t, st.SessionActive)
	require.NotNil(t, st.FrameID)
	assert.Empty(t, st.CurrentLineContent)
	assert.Empty(t, st.NextLines)
}
