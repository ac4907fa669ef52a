// Package state holds the authoritative in-memory view of the single debug
// session: its lifecycle phase, current thread and frame, last stop reason,
// and a bounded buffer of program output.
//
// Transitions never fail; inputs that make no sense in the current phase are
// ignored. Mutations and reads are serialized by the tracker's mutex so the
// backend and the adapter event path can touch it concurrently.
package state

import (
	"sync"
	"time"

	"github.com/debugmcp/debugmcp/pkg/types"
)

// Tracker is the session state machine plus its associated context.
type Tracker struct {
	mu sync.Mutex

	state      types.SessionState
	threadID   *int
	frameID    *int
	frame      *types.FrameInfo
	threads    []types.ThreadInfo
	stopReason string

	output *outputBuffer
}

// NewTracker creates an inactive tracker whose output buffer holds at most
// outputCap lines (DefaultOutputCap if zero).
func NewTracker(outputCap int) *Tracker {
	return &Tracker{
		state:  types.SessionInactive,
		output: newOutputBuffer(outputCap),
	}
}

// State returns the current session phase.
func (t *Tracker) State() types.SessionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// BeginInitializing marks the start of a session: adapter spawned, handshake
// in progress.
func (t *Tracker) BeginInitializing() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = types.SessionInitializing
	t.resetContextLocked()
}

// SetRunning marks the handshake complete and the debuggee executing. Only
// valid from initializing: a stop-on-entry event that beats the end of the
// handshake must not be clobbered.
func (t *Tracker) SetRunning() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != types.SessionInitializing {
		return
	}
	t.state = types.SessionRunning
}

// RecordStopped applies a stopped event: phase becomes stopped and the
// event's thread and reason are recorded. The current frame is set
// separately once a stack trace is available.
func (t *Tracker) RecordStopped(ev types.StoppedEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == types.SessionInactive || t.state == types.SessionTerminated {
		return
	}
	t.state = types.SessionStopped
	t.stopReason = ev.Reason
	if ev.ThreadID > 0 {
		id := ev.ThreadID
		t.threadID = &id
	}
}

// RecordContinued applies a resume: the thread is kept, the frame and stop
// reason are cleared.
func (t *Tracker) RecordContinued() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != types.SessionStopped && t.state != types.SessionRunning {
		return
	}
	t.state = types.SessionRunning
	t.frameID = nil
	t.frame = nil
	t.stopReason = ""
}

// RecordTerminated marks the session ended but not yet cleared. Thread and
// frame context and the output buffer are reset.
func (t *Tracker) RecordTerminated() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == types.SessionInactive {
		return
	}
	t.state = types.SessionTerminated
	t.resetContextLocked()
	t.output.clear()
}

// SetInactive returns the tracker to its idle phase.
func (t *Tracker) SetInactive() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = types.SessionInactive
	t.resetContextLocked()
	t.output.clear()
}

func (t *Tracker) resetContextLocked() {
	t.threadID = nil
	t.frameID = nil
	t.frame = nil
	t.threads = nil
	t.stopReason = ""
}

// SetCurrentFrame records the frame the debuggee is paused at. Ignored
// unless the session is stopped, keeping the invariant that frame context
// exists only while paused.
func (t *Tracker) SetCurrentFrame(frame types.FrameInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != types.SessionStopped {
		return
	}
	id := frame.ID
	t.frameID = &id
	f := frame
	t.frame = &f
}

// SetThreadID records the thread subsequent operations act on.
func (t *Tracker) SetThreadID(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.threadID = &id
}

// SetThreads stores the last thread list reported by the adapter.
func (t *Tracker) SetThreads(threads []types.ThreadInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.threads = append([]types.ThreadInfo(nil), threads...)
}

// CurrentThreadID returns the recorded thread id, or nil.
func (t *Tracker) CurrentThreadID() *int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.threadID == nil {
		return nil
	}
	id := *t.threadID
	return &id
}

// CurrentFrameID returns the current frame id, or nil outside a stop.
func (t *Tracker) CurrentFrameID() *int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frameID == nil {
		return nil
	}
	id := *t.frameID
	return &id
}

// CurrentFrame returns a copy of the current frame, or nil outside a stop.
func (t *Tracker) CurrentFrame() *types.FrameInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frame == nil {
		return nil
	}
	f := *t.frame
	return &f
}

// Threads returns a copy of the last reported thread list.
func (t *Tracker) Threads() []types.ThreadInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]types.ThreadInfo(nil), t.threads...)
}

// StopReason returns the reason of the last stop, or empty.
func (t *Tracker) StopReason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopReason
}

// HasValidContext reports whether the session is paused with both a frame
// and a thread to operate on.
func (t *Tracker) HasValidContext() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == types.SessionStopped && t.frameID != nil && t.threadID != nil
}

// AddOutput buffers a program output event, one record per line.
func (t *Tracker) AddOutput(ev types.OutputEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.output.add(ev.Category, ev.Output, time.Now())
}

// RecentOutput queries the output buffer.
func (t *Tracker) RecentOutput(q types.OutputQuery) types.OutputSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.output.query(q)
}

// OutputLineCount returns the number of buffered output lines.
func (t *Tracker) OutputLineCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.output.len()
}
