package backend

import (
	"path/filepath"

	godap "github.com/google/go-dap"

	"github.com/debugmcp/debugmcp/internal/dap"
	"github.com/debugmcp/debugmcp/pkg/types"
)

// breakpointStore is the authoritative breakpoint set. The adapter is always
// told the complete list for a path, never deltas, so the store is the
// source of truth across session boundaries.
type breakpointStore struct {
	byPath    map[string][]types.SourceBreakpoint
	pathOrder []string
	functions []types.FunctionBreakpoint
}

func newBreakpointStore() *breakpointStore {
	return &breakpointStore{
		byPath: make(map[string][]types.SourceBreakpoint),
	}
}

// add appends a breakpoint unless one already exists at (path, line).
// Returns true if the set changed.
func (s *breakpointStore) add(bp types.SourceBreakpoint) bool {
	list := s.byPath[bp.Path]
	for _, existing := range list {
		if existing.Line == bp.Line {
			return false
		}
	}
	if len(list) == 0 {
		s.pathOrder = append(s.pathOrder, bp.Path)
	}
	s.byPath[bp.Path] = append(list, bp)
	return true
}

// remove drops the breakpoint at (path, line). Returns true if the set
// changed; emptied paths are dropped from the store.
func (s *breakpointStore) remove(path string, line int) bool {
	list, ok := s.byPath[path]
	if !ok {
		return false
	}
	kept := list[:0]
	for _, bp := range list {
		if bp.Line != line {
			kept = append(kept, bp)
		}
	}
	if len(kept) == len(list) {
		return false
	}
	if len(kept) == 0 {
		delete(s.byPath, path)
		s.dropFromOrder(path)
	} else {
		s.byPath[path] = kept
	}
	return true
}

// clear empties the store and returns the paths that had breakpoints.
func (s *breakpointStore) clear() []string {
	paths := append([]string(nil), s.pathOrder...)
	s.byPath = make(map[string][]types.SourceBreakpoint)
	s.pathOrder = nil
	return paths
}

func (s *breakpointStore) dropFromOrder(path string) {
	for i, p := range s.pathOrder {
		if p == path {
			s.pathOrder = append(s.pathOrder[:i], s.pathOrder[i+1:]...)
			return
		}
	}
}

// forPath returns the current list for a path, in insertion order.
func (s *breakpointStore) forPath(path string) []types.SourceBreakpoint {
	return append([]types.SourceBreakpoint(nil), s.byPath[path]...)
}

// all returns every source breakpoint across all paths.
func (s *breakpointStore) all() []types.SourceBreakpoint {
	var out []types.SourceBreakpoint
	for _, path := range s.pathOrder {
		out = append(out, s.byPath[path]...)
	}
	return out
}

// paths returns the paths currently holding breakpoints, in first-seen order.
func (s *breakpointStore) paths() []string {
	return append([]string(nil), s.pathOrder...)
}

// reconcilePath tells the adapter the complete breakpoint set for one path.
// An empty list is sent explicitly so adapters that retain per-source state
// drop it.
func reconcilePath(client *dap.Client, path string, bps []types.SourceBreakpoint) error {
	wire := make([]godap.SourceBreakpoint, 0, len(bps))
	for _, bp := range bps {
		wire = append(wire, godap.SourceBreakpoint{
			Line:         bp.Line,
			Column:       bp.Column,
			Condition:    bp.Condition,
			HitCondition: bp.HitCondition,
			LogMessage:   bp.LogMessage,
		})
	}

	_, err := client.SetBreakpoints(godap.Source{
		Path: path,
		Name: filepath.Base(path),
	}, wire)
	return err
}

// reconcileFunctions tells the adapter the complete function breakpoint set.
func reconcileFunctions(client *dap.Client, fns []types.FunctionBreakpoint) error {
	wire := make([]godap.FunctionBreakpoint, 0, len(fns))
	for _, fn := range fns {
		wire = append(wire, godap.FunctionBreakpoint{
			Name:         fn.Name,
			Condition:    fn.Condition,
			HitCondition: fn.HitCondition,
		})
	}

	_, err := client.SetFunctionBreakpoints(wire)
	return err
}
