// Package reconcile implements the reconciliation engine for ga4-manager.
// It flattens observed and desired resource trees into atomic entities,
// diffs them, builds a plan of create/modify/dispose operations, and
// executes that plan on a bounded worker pool with transient-failure retry.
package reconcile

import (
	"sort"
)

// Collection names a sub-collection of a root resource (e.g. the custom
// dimensions of a GA4 property).
type Collection string

// Collections known to the GA4 Admin API.
const (
	CollectionCustomDimensions Collection = "customDimensions"
	CollectionCustomMetrics    Collection = "customMetrics"
	CollectionConversionEvents Collection = "conversionEvents"
)

// Kind identifies which operation table manages an entity. Kinds are
// resolved once during expansion from the entity's collection.
type Kind int

// Resource kinds. KindUnknown is the zero value and is never valid in a plan.
const (
	KindUnknown Kind = iota
	KindCustomDimension
	KindCustomMetric
	KindConversionEvent
)

func (k Kind) String() string {
	switch k {
	case KindCustomDimension:
		return "customDimension"
	case KindCustomMetric:
		return "customMetric"
	case KindConversionEvent:
		return "conversionEvent"
	default:
		return "unknown"
	}
}

// Mode is the kind of mutation an Operation performs.
type Mode string

// Operation modes.
const (
	ModeCreate  Mode = "create"
	ModeModify  Mode = "modify"
	ModeDispose Mode = "dispose"
)

// Entity is the smallest independently reconciled remote object, such as a
// single custom dimension. Entities are built fresh on every run by the
// observed and desired readers; the engine never mutates them.
type Entity struct {
	// ID is unique within a run: <parentID>/<collection>/<localKey>.
	ID       string
	ParentID string
	// Kind is stamped by Expand; readers may leave it unset.
	Kind Kind
	// Fields is the open set of configuration values (JSON-like: scalars,
	// []any, map[string]any).
	Fields map[string]any
	// Indeletable marks externally protected entities. A dispose is never
	// planned for them.
	Indeletable bool
	// UIRef is an opaque locator for reporting (e.g. a document position).
	UIRef string
}

// Deletable reports whether a dispose may be planned for the entity.
func (e *Entity) Deletable() bool {
	return !e.Indeletable
}

// Field returns the named field value, or nil when absent.
func (e *Entity) Field(name string) any {
	if e == nil || e.Fields == nil {
		return nil
	}

	return e.Fields[name]
}

// Root is a top-level resource (a GA4 property) owning named collections.
// A nil collection map means the collection was not loaded or not declared;
// a non-nil empty map means it was declared empty.
type Root struct {
	ID          string
	DisplayName string
	UIRef       string
	Collections map[Collection]map[string]*Entity
}

// Collection returns the named collection and whether it is present.
func (r *Root) Collection(c Collection) (map[string]*Entity, bool) {
	if r == nil || r.Collections == nil {
		return nil, false
	}

	items, ok := r.Collections[c]

	return items, ok
}

// SetCollection stores items as collection c, allocating the map if needed.
// A nil items map is stored as an empty (declared) collection.
func (r *Root) SetCollection(c Collection, items map[string]*Entity) {
	if r.Collections == nil {
		r.Collections = make(map[Collection]map[string]*Entity)
	}

	if items == nil {
		items = make(map[string]*Entity)
	}

	r.Collections[c] = items
}

// Snapshot is a nested state tree keyed by root id, before flattening.
type Snapshot struct {
	Roots map[string]*Root
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{Roots: make(map[string]*Root)}
}

// AddRoot inserts or replaces a root.
func (s *Snapshot) AddRoot(r *Root) {
	if s.Roots == nil {
		s.Roots = make(map[string]*Root)
	}

	s.Roots[r.ID] = r
}

// RootIDs returns the root ids in sorted order.
func (s *Snapshot) RootIDs() []string {
	if s == nil {
		return nil
	}

	ids := make([]string, 0, len(s.Roots))
	for id := range s.Roots {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// Operation is one planned mutation targeting one entity id.
type Operation struct {
	ID   string
	Mode Mode
	Kind Kind
	// Observed is the entity as currently known; nil for creates.
	Observed *Entity
	// Desired is the entity as wanted; nil for disposes.
	Desired *Entity
	// Diff holds the field changes of a modify. Always non-empty in a plan.
	Diff []Change
	// Retried counts retry attempts. Owned by the worker executing the
	// operation.
	Retried int
	UIRef   string
}

// Target returns the entity a mutation function receives: the desired
// entity overlaid on the observed one, so identity fields known only to the
// remote side (such as the resource name) survive into modify and replace.
func (op *Operation) Target() *Entity {
	switch {
	case op.Observed == nil:
		return op.Desired
	case op.Desired == nil:
		return op.Observed
	}

	merged := &Entity{
		ID:          op.Desired.ID,
		ParentID:    op.Desired.ParentID,
		Kind:        op.Kind,
		Fields:      make(map[string]any, len(op.Observed.Fields)+len(op.Desired.Fields)),
		Indeletable: op.Observed.Indeletable,
		UIRef:       op.UIRef,
	}

	for k, v := range op.Observed.Fields {
		merged.Fields[k] = v
	}

	for k, v := range op.Desired.Fields {
		merged.Fields[k] = v
	}

	return merged
}

// Plan maps entity id to its operation. Entries are independent and carry
// no ordering.
type Plan map[string]*Operation

// IDs returns the plan's ids sorted, for deterministic display.
func (p Plan) IDs() []string {
	ids := make([]string, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// Counts returns the number of operations per mode.
func (p Plan) Counts() map[Mode]int {
	counts := make(map[Mode]int, 3)
	for _, op := range p {
		counts[op.Mode]++
	}

	return counts
}
