package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entityWith(fields map[string]any) *Entity {
	return &Entity{ID: "p/customDimensions/x", Fields: fields}
}

func TestDiff_IdenticalIsEmpty(t *testing.T) {
	t.Parallel()

	e := entityWith(map[string]any{"displayName": "Author", "scope": "EVENT"})

	assert.Empty(t, Diff(e, e, DefaultIgnoreFields))
}

func TestDiff_Replace(t *testing.T) {
	t.Parallel()

	obs := entityWith(map[string]any{"displayName": "Author"})
	des := entityWith(map[string]any{"displayName": "Writer"})

	diff := Diff(obs, des, DefaultIgnoreFields)
	require.Len(t, diff, 1)

	assert.Equal(t, ChangeReplace, diff[0].Op)
	assert.Equal(t, []string{"displayName"}, diff[0].Path)
	assert.Equal(t, "Author", diff[0].Previous)
	assert.Equal(t, "Writer", diff[0].Value)
	assert.Equal(t, `[displayName] "Author" -> "Writer"`, diff[0].String())
}

func TestDiff_RemovalsAreDropped(t *testing.T) {
	t.Parallel()

	obs := entityWith(map[string]any{"displayName": "Author", "description": "who wrote it"})
	des := entityWith(map[string]any{"displayName": "Author"})

	assert.Empty(t, Diff(obs, des, DefaultIgnoreFields))
}

func TestDiff_AddedField(t *testing.T) {
	t.Parallel()

	obs := entityWith(map[string]any{"displayName": "Author"})
	des := entityWith(map[string]any{"displayName": "Author", "description": "who"})

	diff := Diff(obs, des, DefaultIgnoreFields)
	require.Len(t, diff, 1)
	assert.Equal(t, ChangeAdd, diff[0].Op)
	assert.Equal(t, "description", diff[0].Field())
}

func TestDiff_IgnoredTopLevelFields(t *testing.T) {
	t.Parallel()

	obs := entityWith(map[string]any{"name": "properties/1/customDimensions/123", "uiRef": "a"})
	des := entityWith(map[string]any{"name": "", "uiRef": "b"})

	assert.Empty(t, Diff(obs, des, DefaultIgnoreFields))
	assert.Len(t, Diff(obs, des, []string{"uiRef"}), 1)
}

func TestDiff_IgnoreAppliesToTopLevelOnly(t *testing.T) {
	t.Parallel()

	obs := entityWith(map[string]any{"meta": map[string]any{"name": "a"}})
	des := entityWith(map[string]any{"meta": map[string]any{"name": "b"}})

	diff := Diff(obs, des, DefaultIgnoreFields)
	require.Len(t, diff, 1)
	assert.Equal(t, "meta.name", diff[0].PathString())
}

func TestDiff_Arrays(t *testing.T) {
	t.Parallel()

	obs := entityWith(map[string]any{"restrictedMetricType": []string{"COST_DATA"}})
	des := entityWith(map[string]any{"restrictedMetricType": []string{"COST_DATA", "REVENUE_DATA"}})

	diff := Diff(obs, des, DefaultIgnoreFields)
	require.Len(t, diff, 1)
	assert.Equal(t, ChangeAdd, diff[0].Op)
	assert.Equal(t, "restrictedMetricType.1", diff[0].PathString())
	assert.Equal(t, "restrictedMetricType", diff[0].Field())

	// Shrinking an array only yields removals, which are dropped.
	assert.Empty(t, Diff(des, obs, DefaultIgnoreFields))
}

func TestDiff_NumericTypesCompareByValue(t *testing.T) {
	t.Parallel()

	obs := entityWith(map[string]any{"count": float64(3)})
	des := entityWith(map[string]any{"count": 3})

	assert.Empty(t, Diff(obs, des, DefaultIgnoreFields))
}

func TestDiff_NilSides(t *testing.T) {
	t.Parallel()

	des := entityWith(map[string]any{"displayName": "Author"})

	assert.Len(t, Diff(nil, des, DefaultIgnoreFields), 1)
	assert.Empty(t, Diff(des, nil, DefaultIgnoreFields))
	assert.Empty(t, Diff(nil, nil, DefaultIgnoreFields))
}
