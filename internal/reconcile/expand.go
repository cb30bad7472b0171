package reconcile

import (
	"errors"
	"fmt"
	"sort"
)

// Structural errors. Any of these makes the plan untrustworthy, so they
// abort the run before a single mutation is attempted.
var (
	ErrIDCollision = errors.New("reconcile: entity id collision")
	ErrUnknownKind = errors.New("reconcile: unknown resource kind")
	ErrEmptyID     = errors.New("reconcile: entity without id")
)

// Expanded is the flat form of a snapshot: entity id to entity.
type Expanded map[string]*Entity

// Expand flattens snapshot into id → entity, restricted to the active
// scopes. Collections whose scope is inactive contribute nothing. Every
// returned entity is a shallow copy with its Kind stamped from the
// registry, so the caller's snapshot is left untouched.
//
// Two entities sharing an id (across roots or collections) are rejected
// with ErrIDCollision rather than silently overwritten.
func Expand(snapshot *Snapshot, scopes ScopeSet, registry *Registry) (Expanded, error) {
	out := make(Expanded)
	if snapshot == nil {
		return out, nil
	}

	origin := make(map[string]Scope)

	for _, rootID := range snapshot.RootIDs() {
		root := snapshot.Roots[rootID]

		for _, c := range sortedCollections(root) {
			scope := ComposeScope(root.ID, c)
			if !scopes.Has(scope) {
				continue
			}

			kind, ok := registry.KindOf(c)
			if !ok {
				return nil, fmt.Errorf("%w: collection %q of %s", ErrUnknownKind, c, root.ID)
			}

			for _, e := range root.Collections[c] {
				if e == nil {
					continue
				}

				if e.ID == "" {
					return nil, fmt.Errorf("%w in %s", ErrEmptyID, scope)
				}

				if prev, dup := origin[e.ID]; dup {
					return nil, fmt.Errorf("%w: %q appears in %s and %s", ErrIDCollision, e.ID, prev, scope)
				}

				copied := *e
				copied.Kind = kind
				out[e.ID] = &copied
				origin[e.ID] = scope
			}
		}
	}

	return out, nil
}

func sortedCollections(r *Root) []Collection {
	out := make([]Collection, 0, len(r.Collections))
	for c := range r.Collections {
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}
