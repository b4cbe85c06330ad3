package session

import (
	"path"
	"slices"
	"sort"

	"github.com/google/go-dap"
)

// Store maps normalized source paths to their breakpoints, sorted by line.
// A Store belongs to a single session and is not safe for concurrent use.
type Store struct {
	normalize func(string) string
	files     map[string][]dap.Breakpoint
}

func NewStore() *Store {
	return &Store{
		normalize: Normalize,
		files:     map[string][]dap.Breakpoint{},
	}
}

// Key is the normalized form of file under which its breakpoints are kept.
func (s *Store) Key(file string) string {
	return s.normalize(file)
}

// SetBreakpoints replaces the breakpoints of path and returns the new set.
// An empty path yields an empty set and leaves the store untouched.
func (s *Store) SetBreakpoints(file string, raw []dap.SourceBreakpoint) []dap.Breakpoint {
	if file == "" {
		return []dap.Breakpoint{}
	}
	key := s.Key(file)
	bps := make([]dap.Breakpoint, 0, len(raw))
	for _, b := range raw {
		bps = append(bps, dap.Breakpoint{
			Verified: true,
			Line:     b.Line,
			Column:   b.Column,
			Source:   &dap.Source{Name: path.Base(key), Path: key},
		})
	}
	sort.SliceStable(bps, func(i, j int) bool { return bps[i].Line < bps[j].Line })
	s.files[key] = bps
	return slices.Clone(bps)
}

// Breakpoints returns a copy of the breakpoints stored for path.
func (s *Store) Breakpoints(file string) []dap.Breakpoint {
	bps, ok := s.files[s.Key(file)]
	if !ok {
		return []dap.Breakpoint{}
	}
	return slices.Clone(bps)
}

// Paths lists the keys with breakpoints in lexical order.
func (s *Store) Paths() []string {
	keys := make([]string, 0, len(s.files))
	for k := range s.files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
