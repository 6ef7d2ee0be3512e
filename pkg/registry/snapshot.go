package registry

import "sort"

// Snapshot is a consistent view of several component types taken under a
// single registry lock.
type Snapshot struct {
	refs map[ComponentType][]*Reference
}

// Has reports whether at least one instance of t was present.
func (s Snapshot) Has(t ComponentType) bool {
	return len(s.refs[t]) > 0
}

// Satisfies reports whether every given type had at least one instance.
func (s Snapshot) Satisfies(types []ComponentType) bool {
	for _, t := range types {
		if !s.Has(t) {
			return false
		}
	}
	return true
}

// Lookup returns the preferred instance of t.
func (s Snapshot) Lookup(t ComponentType) (any, bool) {
	refs := s.refs[t]
	if len(refs) == 0 {
		return nil, false
	}
	return refs[0].Instance, true
}

// All returns every instance of t, preferred first.
func (s Snapshot) All(t ComponentType) []any {
	refs := s.refs[t]
	out := make([]any, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.Instance)
	}
	return out
}

func sortPreferred(refs []*Reference) {
	sort.SliceStable(refs, func(i, j int) bool { return better(refs[i], refs[j]) })
}
