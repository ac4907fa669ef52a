// Package backend orchestrates the DAP client, adapter supervisor and state
// tracker into the consumer-facing debugging contract.
//
// The Backend interface is a capability set: session control, stepping,
// breakpoints, inspection and events. Standalone is the DAP-backed variant;
// an editor-embedded implementation can satisfy the same interface by
// delegating to an in-process IDE API.
package backend

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	godap "github.com/google/go-dap"
	"github.com/google/uuid"

	"github.com/debugmcp/debugmcp/internal/adapters"
	"github.com/debugmcp/debugmcp/internal/dap"
	debugerrors "github.com/debugmcp/debugmcp/internal/errors"
	"github.com/debugmcp/debugmcp/internal/state"
	"github.com/debugmcp/debugmcp/pkg/types"
)

// DefaultInitializeTimeout bounds the wait for the adapter's initialized
// event during session start.
const DefaultInitializeTimeout = 10 * time.Second

const clientID = "debugmcp"

// Backend is the debugging capability set consumers program against.
// Operations act on the single active session; where a sessionID parameter
// is accepted it is informational, and a non-empty mismatch is treated as
// "no such session".
type Backend interface {
	// Session control
	StartDebugging(ctx context.Context, workingDir string, cfg types.DebugConfig) (bool, error)
	StopDebugging(sessionID string) error
	Restart(ctx context.Context) (bool, error)
	HasActiveSession() bool
	SessionID() string

	// Stepping
	StepOver(sessionID string) error
	StepInto(sessionID string) error
	StepOut(sessionID string) error
	Continue(sessionID string) error
	Pause(sessionID string) error

	// Breakpoints
	AddBreakpoint(uri types.Uri, line int) error
	RemoveBreakpoint(uri types.Uri, line int) error
	GetBreakpoints() []types.SourceBreakpoint
	ClearAllBreakpoints() error
	SetFunctionBreakpoints(fns []types.FunctionBreakpoint) error

	// Inspection
	GetActiveFrameID() *int
	GetCurrentDebugState(numNextLines int) types.DebugState
	GetVariables(frameID int, scope types.VariableScope) ([]types.ScopeVariables, error)
	EvaluateExpression(expr string, frameID int) (types.EvaluateResult, error)
	GetRecentOutput(q types.OutputQuery) types.OutputSnapshot

	// Events. The returned function removes the subscription.
	OnStopped(fn func(types.StoppedEvent)) func()
	OnTerminated(fn func(types.TerminatedEvent)) func()
	OnOutput(fn func(types.OutputEvent)) func()

	// Dispose tears down any active session and releases resources.
	Dispose()
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// Standalone implements Backend over a supervised DAP adapter process.
type Standalone struct {
	sup     *adapters.Supervisor
	tracker *state.Tracker
	log     logr.Logger

	initTimeout time.Duration

	mu          sync.Mutex
	sessionID   string
	currentCfg  *types.DebugConfig
	workingDir  string
	breakpoints *breakpointStore

	subMu          sync.Mutex
	nextSubID      int
	stoppedSubs    []subscriber[types.StoppedEvent]
	terminatedSubs []subscriber[types.TerminatedEvent]
	outputSubs     []subscriber[types.OutputEvent]
}

// NewStandalone creates a backend over the configured adapter descriptors.
func NewStandalone(descriptors map[types.Language]types.AdapterDescriptor, log logr.Logger) *Standalone {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	b := &Standalone{
		sup:         adapters.NewSupervisor(descriptors, log.WithName("supervisor")),
		tracker:     state.NewTracker(state.DefaultOutputCap),
		log:         log,
		initTimeout: DefaultInitializeTimeout,
		breakpoints: newBreakpointStore(),
	}
	b.sup.SetExitHandler(b.handleAdapterExit)
	b.sup.SetCrashHandler(func(exit types.AdapterExit) {
		b.log.Info("debug adapter crashed", "code", exit.Code, "signal", exit.Signal)
	})
	return b
}

// SetInitializeTimeout changes the bounded wait for the initialized event.
func (b *Standalone) SetInitializeTimeout(d time.Duration) {
	b.initTimeout = d
}

// Tracker exposes the state tracker for introspection.
func (b *Standalone) Tracker() *state.Tracker {
	return b.tracker
}

// StartDebugging launches a new session. Any still-supervised adapter is
// stopped first, even one whose session already terminated. Returns true once
// the debuggee is running; on failure the session is torn down and false is
// returned with the cause.
func (b *Standalone) StartDebugging(ctx context.Context, workingDir string, cfg types.DebugConfig) (bool, error) {
	if b.sup.HasActive() {
		if err := b.StopDebugging(""); err != nil {
			b.log.V(1).Info("stopping previous session failed", "error", err)
		}
	}

	b.tracker.BeginInitializing()
	b.mu.Lock()
	b.sessionID = uuid.New().String()
	cfgCopy := cfg
	b.currentCfg = &cfgCopy
	b.workingDir = workingDir
	b.mu.Unlock()

	ok, err := b.startSession(ctx, workingDir, cfg)
	if err != nil {
		b.tracker.RecordTerminated()
		b.sup.Stop()
		return false, err
	}
	return ok, nil
}

func (b *Standalone) startSession(ctx context.Context, workingDir string, cfg types.DebugConfig) (bool, error) {
	language := types.Language(cfg.Type)
	client, _, err := b.sup.Start(ctx, language, clientID, "debugmcp standalone backend")
	if err != nil {
		return false, err
	}

	// The initialized waiter is armed at client creation, before launch is
	// issued; several adapters emit initialized before the launch response.
	b.registerEventHandlers(client)

	args, err := cfg.ToMap()
	if err != nil {
		return false, err
	}

	var outcome <-chan error
	if cfg.IsLaunchRequest() {
		args["cwd"] = workingDir
		outcome, err = client.Launch(args)
	} else {
		outcome, err = client.Attach(args)
	}
	if err != nil {
		return false, err
	}
	// Fire-and-observe: a launch failure surfaces through the bounded
	// initialized wait or configurationDone; log it either way.
	go func() {
		if launchErr := <-outcome; launchErr != nil {
			b.log.Info("launch request failed", "error", launchErr)
		}
	}()

	if err := client.WaitInitialized(b.initTimeout); err != nil {
		return false, err
	}

	if err := b.syncAllBreakpoints(client); err != nil {
		return false, err
	}

	if err := client.ConfigurationDone(); err != nil {
		return false, err
	}

	b.tracker.SetRunning()
	return true, nil
}

// registerEventHandlers wires adapter events into the tracker and the
// backend's subscribers. Every handler ignores events from a client that is
// no longer the supervised one, so a session being torn down cannot clobber
// the state of its successor.
func (b *Standalone) registerEventHandlers(client *dap.Client) {
	stale := func() bool { return b.sup.Client() != client }

	client.OnEvent("stopped", func(msg godap.EventMessage) {
		ev, ok := msg.(*godap.StoppedEvent)
		if !ok || stale() {
			return
		}
		stopped := types.StoppedEvent{
			Reason:            ev.Body.Reason,
			Description:       ev.Body.Description,
			ThreadID:          ev.Body.ThreadId,
			AllThreadsStopped: ev.Body.AllThreadsStopped,
		}
		// The tracker is updated on the reader goroutine so subscribers are
		// guaranteed to observe the stop; the frame refresh issues requests
		// and must run off it.
		b.tracker.RecordStopped(stopped)
		go b.refreshFrameAndNotify(client, stopped)
	})

	client.OnEvent("continued", func(msg godap.EventMessage) {
		if stale() {
			return
		}
		b.tracker.RecordContinued()
	})

	client.OnEvent("terminated", func(msg godap.EventMessage) {
		if stale() {
			return
		}
		ev, _ := msg.(*godap.TerminatedEvent)
		terminated := types.TerminatedEvent{}
		if ev != nil && ev.Body.Restart != nil {
			terminated.Restart = ev.Body.Restart
		}
		b.tracker.RecordTerminated()
		b.notifyTerminated(terminated)
	})

	client.OnEvent("output", func(msg godap.EventMessage) {
		ev, ok := msg.(*godap.OutputEvent)
		if !ok || stale() {
			return
		}
		output := types.OutputEvent{
			Category: types.OutputCategory(ev.Body.Category),
			Output:   ev.Body.Output,
		}
		if output.Category == "" {
			output.Category = types.CategoryConsole
		}
		b.tracker.AddOutput(output)
		b.notifyOutput(output)
	})
}

// refreshFrameAndNotify fetches the top frame after a stop, records it, then
// fans the event out to subscribers.
func (b *Standalone) refreshFrameAndNotify(client *dap.Client, stopped types.StoppedEvent) {
	threadID := stopped.ThreadID
	if threadID == 0 {
		if id := b.tracker.CurrentThreadID(); id != nil {
			threadID = *id
		}
	}

	if threadID != 0 {
		frames, err := client.StackTrace(threadID, 0, 1)
		if err != nil {
			b.log.V(1).Info("stack trace after stop failed", "error", err)
		} else if len(frames) > 0 {
			frame := frames[0]
			info := types.FrameInfo{
				ID:     frame.Id,
				Name:   frame.Name,
				Line:   frame.Line,
				Column: frame.Column,
			}
			if info.Column == 0 {
				info.Column = 1
			}
			if frame.Source != nil {
				info.Source = &types.SourceInfo{
					Path: frame.Source.Path,
					Name: frame.Source.Name,
				}
			}
			b.tracker.SetCurrentFrame(info)
		}
	}

	b.notifyStopped(stopped)
}

// handleAdapterExit reacts to the adapter child disappearing. A session that
// already saw a terminated event is not re-notified.
func (b *Standalone) handleAdapterExit(exit types.AdapterExit) {
	st := b.tracker.State()
	if st == types.SessionInactive || st == types.SessionTerminated {
		return
	}
	b.tracker.RecordTerminated()
	b.notifyTerminated(types.TerminatedEvent{})
}

// StopDebugging tears down the active session and returns the backend to
// idle. Stopping an already-stopped session is a no-op.
func (b *Standalone) StopDebugging(sessionID string) error {
	if err := b.checkSession(sessionID); err != nil {
		return err
	}

	b.sup.Stop()
	b.tracker.SetInactive()

	b.mu.Lock()
	b.sessionID = ""
	b.currentCfg = nil
	b.workingDir = ""
	b.mu.Unlock()
	return nil
}

// Restart disconnects with the restart flag and relaunches the remembered
// configuration.
func (b *Standalone) Restart(ctx context.Context) (bool, error) {
	b.mu.Lock()
	cfg := b.currentCfg
	workingDir := b.workingDir
	b.mu.Unlock()

	if cfg == nil {
		return false, debugerrors.NoActiveSession()
	}

	if client := b.sup.Client(); client != nil {
		if err := client.DisconnectRestart(); err != nil {
			b.log.V(1).Info("disconnect for restart failed", "error", err)
		}
	}

	return b.StartDebugging(ctx, workingDir, *cfg)
}

// HasActiveSession reports whether an adapter is supervised and the session
// is neither idle nor already terminated.
func (b *Standalone) HasActiveSession() bool {
	st := b.tracker.State()
	return b.sup.HasActive() && st != types.SessionInactive && st != types.SessionTerminated
}

// SessionID returns the identifier of the active session, or empty.
func (b *Standalone) SessionID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessionID
}

// checkSession maps a mismatched informational session id to
// NoActiveSession. An empty id always refers to the active session.
func (b *Standalone) checkSession(sessionID string) error {
	if sessionID == "" {
		return nil
	}
	b.mu.Lock()
	current := b.sessionID
	b.mu.Unlock()
	if sessionID != current {
		return debugerrors.NoActiveSession()
	}
	return nil
}

// activeClient returns the DAP client when a session is active.
func (b *Standalone) activeClient(sessionID string) (*dap.Client, error) {
	if err := b.checkSession(sessionID); err != nil {
		return nil, err
	}
	if !b.HasActiveSession() {
		return nil, debugerrors.NoActiveSession()
	}
	client := b.sup.Client()
	if client == nil {
		return nil, debugerrors.NoActiveSession()
	}
	return client, nil
}

// ensureThreadID resolves the thread subsequent requests act on. The first
// thread reported by the adapter is the documented single-thread policy.
func (b *Standalone) ensureThreadID(client *dap.Client) (int, error) {
	if id := b.tracker.CurrentThreadID(); id != nil {
		return *id, nil
	}

	threads, err := client.Threads()
	if err != nil {
		return 0, err
	}
	if len(threads) == 0 {
		return 0, debugerrors.NoThreadsAvailable()
	}

	infos := make([]types.ThreadInfo, len(threads))
	for i, th := range threads {
		infos[i] = types.ThreadInfo{ID: th.Id, Name: th.Name}
	}
	b.tracker.SetThreads(infos)
	b.tracker.SetThreadID(threads[0].Id)
	return threads[0].Id, nil
}

// step factors the shared shape of the stepping operations: resolve the
// thread, mark the tracker continued, issue the request.
func (b *Standalone) step(sessionID string, issue func(*dap.Client, int) error) error {
	client, err := b.activeClient(sessionID)
	if err != nil {
		return err
	}
	threadID, err := b.ensureThreadID(client)
	if err != nil {
		return err
	}
	b.tracker.RecordContinued()
	return issue(client, threadID)
}

// StepOver executes the current line and stops on the next one.
func (b *Standalone) StepOver(sessionID string) error {
	return b.step(sessionID, func(c *dap.Client, threadID int) error {
		return c.Next(threadID)
	})
}

// StepInto steps into the call on the current line.
func (b *Standalone) StepInto(sessionID string) error {
	return b.step(sessionID, func(c *dap.Client, threadID int) error {
		return c.StepIn(threadID)
	})
}

// StepOut runs until the current frame returns.
func (b *Standalone) StepOut(sessionID string) error {
	return b.step(sessionID, func(c *dap.Client, threadID int) error {
		return c.StepOut(threadID)
	})
}

// Continue resumes execution.
func (b *Standalone) Continue(sessionID string) error {
	return b.step(sessionID, func(c *dap.Client, threadID int) error {
		_, err := c.Continue(threadID)
		return err
	})
}

// Pause interrupts the running debuggee; the resulting stopped event updates
// the tracker independently.
func (b *Standalone) Pause(sessionID string) error {
	client, err := b.activeClient(sessionID)
	if err != nil {
		return err
	}
	threadID, err := b.ensureThreadID(client)
	if err != nil {
		return err
	}
	return client.Pause(threadID)
}

// AddBreakpoint records a source breakpoint and, when a session is active,
// reconciles the full set for its path with the adapter.
func (b *Standalone) AddBreakpoint(uri types.Uri, line int) error {
	if line < 1 {
		return debugerrors.InvalidParameter("line", line, "a 1-based line number")
	}
	path := uri.Path

	b.mu.Lock()
	changed := b.breakpoints.add(types.SourceBreakpoint{Path: path, Line: line})
	bps := b.breakpoints.forPath(path)
	b.mu.Unlock()

	if !changed {
		return nil
	}
	return b.reconcileIfActive(path, bps)
}

// RemoveBreakpoint drops the breakpoint at (path, line). Removing the last
// breakpoint of a path sends the adapter an explicit empty set for it.
func (b *Standalone) RemoveBreakpoint(uri types.Uri, line int) error {
	path := uri.Path

	b.mu.Lock()
	changed := b.breakpoints.remove(path, line)
	bps := b.breakpoints.forPath(path)
	b.mu.Unlock()

	if !changed {
		return nil
	}
	return b.reconcileIfActive(path, bps)
}

// GetBreakpoints returns a snapshot of all source breakpoints.
func (b *Standalone) GetBreakpoints() []types.SourceBreakpoint {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.breakpoints.all()
}

// ClearAllBreakpoints drops every breakpoint and reconciles each affected
// path with an empty set. A second call finds nothing to do.
func (b *Standalone) ClearAllBreakpoints() error {
	b.mu.Lock()
	paths := b.breakpoints.clear()
	b.mu.Unlock()

	var firstErr error
	for _, path := range paths {
		if err := b.reconcileIfActive(path, nil); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SetFunctionBreakpoints replaces the function breakpoint set.
func (b *Standalone) SetFunctionBreakpoints(fns []types.FunctionBreakpoint) error {
	b.mu.Lock()
	b.breakpoints.functions = append([]types.FunctionBreakpoint(nil), fns...)
	b.mu.Unlock()

	if !b.HasActiveSession() {
		return nil
	}
	client := b.sup.Client()
	if client == nil {
		return nil
	}
	return reconcileFunctions(client, fns)
}

func (b *Standalone) reconcileIfActive(path string, bps []types.SourceBreakpoint) error {
	if !b.HasActiveSession() {
		return nil
	}
	client := b.sup.Client()
	if client == nil {
		return nil
	}
	return reconcilePath(client, path, bps)
}

// syncAllBreakpoints pushes the complete stored set to a fresh adapter,
// between the initialized event and configurationDone.
func (b *Standalone) syncAllBreakpoints(client *dap.Client) error {
	b.mu.Lock()
	paths := b.breakpoints.paths()
	perPath := make(map[string][]types.SourceBreakpoint, len(paths))
	for _, p := range paths {
		perPath[p] = b.breakpoints.forPath(p)
	}
	fns := append([]types.FunctionBreakpoint(nil), b.breakpoints.functions...)
	b.mu.Unlock()

	for _, path := range paths {
		if err := reconcilePath(client, path, perPath[path]); err != nil {
			return err
		}
	}
	if len(fns) > 0 {
		if err := reconcileFunctions(client, fns); err != nil {
			return err
		}
	}
	return nil
}

// GetActiveFrameID returns the current frame id, or nil outside a stop.
func (b *Standalone) GetActiveFrameID() *int {
	return b.tracker.CurrentFrameID()
}

// GetCurrentDebugState synthesizes a snapshot of where the session is,
// including the current source line and up to numNextLines following lines.
func (b *Standalone) GetCurrentDebugState(numNextLines int) types.DebugState {
	if !b.HasActiveSession() {
		return types.DebugState{}
	}

	st := types.DebugState{SessionActive: true}
	st.ThreadID = b.tracker.CurrentThreadID()
	st.FrameID = b.tracker.CurrentFrameID()

	frame := b.tracker.CurrentFrame()
	if frame == nil {
		return st
	}
	st.FrameName = frame.Name
	st.CurrentLine = frame.Line

	if frame.Source == nil || frame.Source.Path == "" {
		return st
	}
	uri := types.NewUri(frame.Source.Path)
	st.FileFullPath = frame.Source.Path
	st.FileName = uri.Basename()

	// A file that cannot be read still yields frame and thread context,
	// just without the line excerpt.
	data, err := os.ReadFile(frame.Source.Path)
	if err != nil {
		b.log.V(1).Info("reading source for debug state failed", "path", frame.Source.Path, "error", err)
		return st
	}

	lines := strings.Split(string(data), "\n")
	for i := range lines {
		lines[i] = strings.TrimSuffix(lines[i], "\r")
	}
	idx := frame.Line - 1
	if idx < 0 || idx >= len(lines) {
		return st
	}
	st.CurrentLineContent = lines[idx]
	st.NextLines = []string{}
	for i := idx + 1; i < len(lines) && len(st.NextLines) < numNextLines; i++ {
		st.NextLines = append(st.NextLines, lines[i])
	}
	return st
}

// GetVariables fetches the frame's scopes, filters them by the requested
// scope kind, and attaches each remaining scope's variables. A failing
// variables call is recorded on its scope; the rest still resolve.
func (b *Standalone) GetVariables(frameID int, scope types.VariableScope) ([]types.ScopeVariables, error) {
	client, err := b.activeClient("")
	if err != nil {
		return nil, err
	}

	scopes, err := client.Scopes(frameID)
	if err != nil {
		return nil, err
	}

	var out []types.ScopeVariables
	for _, sc := range scopes {
		if !scopeMatches(sc.Name, scope) {
			continue
		}
		entry := types.ScopeVariables{Name: sc.Name}
		vars, varErr := client.Variables(sc.VariablesReference)
		if varErr != nil {
			entry.Error = varErr.Error()
		} else {
			for _, v := range vars {
				entry.Variables = append(entry.Variables, types.VariableInfo{
					Name:               v.Name,
					Value:              v.Value,
					Type:               v.Type,
					VariablesReference: v.VariablesReference,
				})
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

// scopeMatches filters scope names by case-insensitive substring.
func scopeMatches(name string, scope types.VariableScope) bool {
	switch scope {
	case types.ScopeLocal:
		return strings.Contains(strings.ToLower(name), "local")
	case types.ScopeGlobal:
		return strings.Contains(strings.ToLower(name), "global")
	default:
		return true
	}
}

// EvaluateExpression evaluates an expression in the given frame using the
// repl context.
func (b *Standalone) EvaluateExpression(expr string, frameID int) (types.EvaluateResult, error) {
	client, err := b.activeClient("")
	if err != nil {
		return types.EvaluateResult{}, err
	}

	body, err := client.Evaluate(expr, frameID, "repl")
	if err != nil {
		return types.EvaluateResult{}, err
	}
	return types.EvaluateResult{
		Result:             body.Result,
		Type:               body.Type,
		VariablesReference: body.VariablesReference,
	}, nil
}

// GetRecentOutput queries the buffered program output.
func (b *Standalone) GetRecentOutput(q types.OutputQuery) types.OutputSnapshot {
	return b.tracker.RecentOutput(q)
}

// OnStopped registers a stopped-event subscriber; the returned function
// removes it.
func (b *Standalone) OnStopped(fn func(types.StoppedEvent)) func() {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.nextSubID++
	id := b.nextSubID
	b.stoppedSubs = append(b.stoppedSubs, subscriber[types.StoppedEvent]{id: id, fn: fn})
	return func() {
		b.subMu.Lock()
		defer b.subMu.Unlock()
		b.stoppedSubs = removeSubscriber(b.stoppedSubs, id)
	}
}

// OnTerminated registers a terminated-event subscriber.
func (b *Standalone) OnTerminated(fn func(types.TerminatedEvent)) func() {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.nextSubID++
	id := b.nextSubID
	b.terminatedSubs = append(b.terminatedSubs, subscriber[types.TerminatedEvent]{id: id, fn: fn})
	return func() {
		b.subMu.Lock()
		defer b.subMu.Unlock()
		b.terminatedSubs = removeSubscriber(b.terminatedSubs, id)
	}
}

// OnOutput registers an output-event subscriber.
func (b *Standalone) OnOutput(fn func(types.OutputEvent)) func() {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.nextSubID++
	id := b.nextSubID
	b.outputSubs = append(b.outputSubs, subscriber[types.OutputEvent]{id: id, fn: fn})
	return func() {
		b.subMu.Lock()
		defer b.subMu.Unlock()
		b.outputSubs = removeSubscriber(b.outputSubs, id)
	}
}

func removeSubscriber[T any](subs []subscriber[T], id int) []subscriber[T] {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

func (b *Standalone) notifyStopped(ev types.StoppedEvent) {
	b.subMu.Lock()
	subs := append([]subscriber[types.StoppedEvent](nil), b.stoppedSubs...)
	b.subMu.Unlock()
	for _, s := range subs {
		b.safeNotify(func() { s.fn(ev) })
	}
}

func (b *Standalone) notifyTerminated(ev types.TerminatedEvent) {
	b.subMu.Lock()
	subs := append([]subscriber[types.TerminatedEvent](nil), b.terminatedSubs...)
	b.subMu.Unlock()
	for _, s := range subs {
		b.safeNotify(func() { s.fn(ev) })
	}
}

func (b *Standalone) notifyOutput(ev types.OutputEvent) {
	b.subMu.Lock()
	subs := append([]subscriber[types.OutputEvent](nil), b.outputSubs...)
	b.subMu.Unlock()
	for _, s := range subs {
		b.safeNotify(func() { s.fn(ev) })
	}
}

// safeNotify shields the event path from a panicking subscriber; the panic
// is logged and the remaining subscribers still run.
func (b *Standalone) safeNotify(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Info("event subscriber panicked", "panic", r)
		}
	}()
	fn()
}

// Dispose tears down any active session and resets the backend.
func (b *Standalone) Dispose() {
	b.sup.Stop()
	b.tracker.SetInactive()

	b.mu.Lock()
	b.sessionID = ""
	b.currentCfg = nil
	b.workingDir = ""
	b.mu.Unlock()
}
