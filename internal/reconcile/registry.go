package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrNoOperationTable is returned when a plan contains an operation whose
// kind has no registered table.
var ErrNoOperationTable = errors.New("reconcile: no operation table for kind")

// KindSpec describes one resource kind: the collection it lives in and the
// fields that cannot be changed in place.
type KindSpec struct {
	Kind       Kind
	Collection Collection
	// Immutable lists top-level fields whose change forces a replace
	// (dispose then create) instead of an in-place modify.
	Immutable []string
}

// Registry maps collections to kinds. It is configuration: adding a kind
// means adding a spec, not changing the engine.
type Registry struct {
	byCollection map[Collection]KindSpec
	byKind       map[Kind]KindSpec
}

// NewRegistry builds a registry from specs. Later specs win on duplicate
// collections.
func NewRegistry(specs ...KindSpec) *Registry {
	r := &Registry{
		byCollection: make(map[Collection]KindSpec, len(specs)),
		byKind:       make(map[Kind]KindSpec, len(specs)),
	}

	for _, s := range specs {
		r.byCollection[s.Collection] = s
		r.byKind[s.Kind] = s
	}

	return r
}

// DefaultRegistry returns the GA4 kinds. The immutable field sets mirror
// what the Admin API rejects on PATCH.
func DefaultRegistry() *Registry {
	return NewRegistry(
		KindSpec{
			Kind:       KindCustomDimension,
			Collection: CollectionCustomDimensions,
			Immutable:  []string{"scope"},
		},
		KindSpec{
			Kind:       KindCustomMetric,
			Collection: CollectionCustomMetrics,
			Immutable:  []string{"scope", "measurementUnit", "restrictedMetricType"},
		},
		KindSpec{
			Kind:       KindConversionEvent,
			Collection: CollectionConversionEvents,
		},
	)
}

// KindOf resolves the kind registered for collection c.
func (r *Registry) KindOf(c Collection) (Kind, bool) {
	s, ok := r.byCollection[c]
	return s.Kind, ok
}

// Spec returns the spec for kind k.
func (r *Registry) Spec(k Kind) (KindSpec, bool) {
	s, ok := r.byKind[k]
	return s, ok
}

// Collections returns the registered collections, sorted.
func (r *Registry) Collections() []Collection {
	out := make([]Collection, 0, len(r.byCollection))
	for c := range r.byCollection {
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

// forcesReplace reports whether any change in diff touches an immutable
// field of kind k.
func (r *Registry) forcesReplace(k Kind, diff []Change) bool {
	spec, ok := r.byKind[k]
	if !ok || len(spec.Immutable) == 0 {
		return false
	}

	for _, ch := range diff {
		for _, field := range spec.Immutable {
			if ch.Field() == field {
				return true
			}
		}
	}

	return false
}

// MutationFunc performs one remote mutation and returns the resulting
// entity as the remote side reports it.
type MutationFunc func(ctx context.Context, e *Entity) (*Entity, error)

// OperationTable holds the mutation functions for one kind. Modify may be
// nil when the kind cannot be changed in place; Replace may be nil and is
// then derived as dispose-then-create.
type OperationTable struct {
	Create  MutationFunc
	Dispose MutationFunc
	Modify  MutationFunc
	Replace MutationFunc
}

// replace returns the table's replace function, deriving it when unset.
// The derived form clears the remote resource name before creating so the
// new object is not mistaken for the archived one.
//
// Each call returns a fresh closure bound to one operation. Once the
// dispose step has gone through, retries only repeat the create, and a
// dispose that finds nothing counts as done: archiving cannot be undone,
// so the only way forward is to recreate.
func (t OperationTable) replace() MutationFunc {
	if t.Replace != nil {
		return t.Replace
	}

	disposed := false

	return func(ctx context.Context, e *Entity) (*Entity, error) {
		if !disposed {
			if _, err := t.Dispose(ctx, e); err != nil && !IsNotFound(err) {
				return nil, fmt.Errorf("replace: dispose: %w", err)
			}

			disposed = true
		}

		fresh := *e
		fresh.Fields = make(map[string]any, len(e.Fields))

		for k, v := range e.Fields {
			if k == "name" {
				continue
			}

			fresh.Fields[k] = v
		}

		out, err := t.Create(ctx, &fresh)
		if err != nil {
			return nil, fmt.Errorf("replace: create: %w", err)
		}

		return out, nil
	}
}

// Resolver maps a kind to its operation table.
type Resolver interface {
	Table(k Kind) (OperationTable, error)
}

// TableResolver is a Resolver backed by a fixed map.
type TableResolver map[Kind]OperationTable

// Table implements Resolver.
func (r TableResolver) Table(k Kind) (OperationTable, error) {
	t, ok := r[k]
	if !ok {
		return OperationTable{}, fmt.Errorf("%w %s", ErrNoOperationTable, k)
	}

	if t.Create == nil || t.Dispose == nil {
		return OperationTable{}, fmt.Errorf("%w %s: create and dispose are required", ErrNoOperationTable, k)
	}

	return t, nil
}
