package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand_StampsKindAndCopies(t *testing.T) {
	t.Parallel()

	d := dimension(testProperty, "author", nil)
	snap := snapshotOf(testProperty, []*Entity{d})

	exp, err := Expand(snap, NewScopeSet(ComposeScope(testProperty, CollectionCustomDimensions)), DefaultRegistry())
	require.NoError(t, err)
	require.Len(t, exp, 1)

	got := exp[d.ID]
	assert.Equal(t, KindCustomDimension, got.Kind)
	assert.Equal(t, KindUnknown, d.Kind, "input snapshot must not be mutated")
}

func TestExpand_ScopeGating(t *testing.T) {
	t.Parallel()

	snap := snapshotOf(testProperty, []*Entity{dimension(testProperty, "author", nil)})
	metric := &Entity{
		ID:       ComposeID(testProperty, CollectionCustomMetrics, "read_time"),
		ParentID: testProperty,
	}
	snap.Roots[testProperty].SetCollection(CollectionCustomMetrics, map[string]*Entity{metric.ID: metric})

	exp, err := Expand(snap, NewScopeSet(ComposeScope(testProperty, CollectionCustomMetrics)), DefaultRegistry())
	require.NoError(t, err)

	assert.Len(t, exp, 1)
	assert.Contains(t, exp, metric.ID)
	assert.NotContains(t, exp, ComposeID(testProperty, CollectionCustomDimensions, "author"))
}

func TestExpand_NoActiveScopes(t *testing.T) {
	t.Parallel()

	snap := snapshotOf(testProperty, []*Entity{dimension(testProperty, "author", nil)})

	exp, err := Expand(snap, NewScopeSet(), DefaultRegistry())
	require.NoError(t, err)
	assert.Empty(t, exp)
}

func TestExpand_NilSnapshot(t *testing.T) {
	t.Parallel()

	exp, err := Expand(nil, NewScopeSet("x/customDimensions"), DefaultRegistry())
	require.NoError(t, err)
	assert.Empty(t, exp)
}

func TestExpand_CollisionAcrossRootsIsRejected(t *testing.T) {
	t.Parallel()

	shared := "properties/1/customDimensions/author"
	snap := NewSnapshot()

	for _, id := range []string{"properties/1", "properties/2"} {
		root := &Root{ID: id}
		root.SetCollection(CollectionCustomDimensions, map[string]*Entity{
			shared: {ID: shared, ParentID: id},
		})
		snap.AddRoot(root)
	}

	_, err := Expand(snap, NewScopeSet(ScopesOf(snap)...), DefaultRegistry())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIDCollision)
}

func TestExpand_UnknownCollection(t *testing.T) {
	t.Parallel()

	snap := NewSnapshot()
	root := &Root{ID: testProperty}
	root.SetCollection("audiences", map[string]*Entity{"x": {ID: "properties/1/audiences/x"}})
	snap.AddRoot(root)

	_, err := Expand(snap, NewScopeSet(ScopesOf(snap)...), DefaultRegistry())
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestExpand_UnknownCollectionOutsideScopeIsIgnored(t *testing.T) {
	t.Parallel()

	snap := NewSnapshot()
	root := &Root{ID: testProperty}
	root.SetCollection("audiences", map[string]*Entity{"x": {ID: "properties/1/audiences/x"}})
	snap.AddRoot(root)

	exp, err := Expand(snap, NewScopeSet(), DefaultRegistry())
	require.NoError(t, err)
	assert.Empty(t, exp)
}

func TestExpand_EmptyID(t *testing.T) {
	t.Parallel()

	snap := snapshotOf(testProperty, []*Entity{{ParentID: testProperty}})

	_, err := Expand(snap, NewScopeSet(ScopesOf(snap)...), DefaultRegistry())
	assert.ErrorIs(t, err, ErrEmptyID)
}
