package reconcile

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Scope gates whether a collection of a root participates in a run. Its
// form is <parentID>/<collection>.
type Scope string

// ComposeScope returns the scope of collection c under parentID.
func ComposeScope(parentID string, c Collection) Scope {
	return Scope(parentID + "/" + string(c))
}

// ComposeID returns the id of the entity with localKey in collection c
// under parentID. The local key is NFC-normalized so that parameter names
// typed on different platforms resolve to the same entity.
func ComposeID(parentID string, c Collection, localKey string) string {
	return parentID + "/" + string(c) + "/" + norm.NFC.String(localKey)
}

// SplitID breaks an entity id into parent, collection and local key. The
// collection is the last segment before the local key, so parents may
// contain slashes (e.g. "properties/123").
func SplitID(id string) (parentID string, c Collection, localKey string, ok bool) {
	last := strings.LastIndex(id, "/")
	if last <= 0 || last == len(id)-1 {
		return "", "", "", false
	}

	rest := id[:last]

	mid := strings.LastIndex(rest, "/")
	if mid <= 0 || mid == len(rest)-1 {
		return "", "", "", false
	}

	return rest[:mid], Collection(rest[mid+1:]), id[last+1:], true
}

// ScopeSet is the set of active scopes for a run.
type ScopeSet map[Scope]struct{}

// NewScopeSet builds a set from a list of scopes.
func NewScopeSet(scopes ...Scope) ScopeSet {
	set := make(ScopeSet, len(scopes))
	for _, s := range scopes {
		set[s] = struct{}{}
	}

	return set
}

// Has reports whether s is active.
func (s ScopeSet) Has(scope Scope) bool {
	_, ok := s[scope]
	return ok
}

// Active reports whether collection c of parentID is active.
func (s ScopeSet) Active(parentID string, c Collection) bool {
	return s.Has(ComposeScope(parentID, c))
}

// List returns the scopes sorted.
func (s ScopeSet) List() []Scope {
	out := make([]Scope, 0, len(s))
	for scope := range s {
		out = append(out, scope)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

// ScopesOf derives the active scopes from a desired snapshot: every
// collection a root declares activates its scope, including declared-empty
// collections, which mean "prune everything here".
func ScopesOf(snapshot *Snapshot) []Scope {
	set := make(ScopeSet)

	for _, id := range snapshot.RootIDs() {
		root := snapshot.Roots[id]
		for c, items := range root.Collections {
			if items == nil {
				continue
			}

			set[ComposeScope(root.ID, c)] = struct{}{}
		}
	}

	return set.List()
}
