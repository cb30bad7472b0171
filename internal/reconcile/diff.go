package reconcile

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// DefaultIgnoreFields are identity and bookkeeping fields that never make a
// modify meaningful.
var DefaultIgnoreFields = []string{"name", "uiRef"}

// ChangeOp is the JSON-patch-like operation of a field change.
type ChangeOp string

// Change operations. Removals are computed but never survive filtering:
// desired state only declares what should exist.
const (
	ChangeAdd     ChangeOp = "add"
	ChangeReplace ChangeOp = "replace"
	ChangeRemove  ChangeOp = "remove"
)

// Change is one field-level difference between observed and desired.
type Change struct {
	Op   ChangeOp
	Path []string
	// Value is the desired value at Path.
	Value any
	// Previous is the observed value at Path, nil for additions.
	Previous any
}

// Field returns the top-level field the change touches.
func (c Change) Field() string {
	if len(c.Path) == 0 {
		return ""
	}

	return c.Path[0]
}

// PathString renders the path dot-separated, e.g. "restrictedMetricType.0".
func (c Change) PathString() string {
	return strings.Join(c.Path, ".")
}

func (c Change) String() string {
	return fmt.Sprintf("[%s] %q -> %q", c.PathString(), formatValue(c.Previous), formatValue(c.Value))
}

// Diff computes the meaningful field changes needed to move observed to
// desired. Either side may be nil. Removals, changes under an ignored
// top-level field, and changes with an empty path are dropped; the diff is
// meaningful iff the result is non-empty.
func Diff(observed, desired *Entity, ignore []string) []Change {
	var raw []Change

	collectChanges(&raw, nil, normalizeValue(fieldsOf(observed)), normalizeValue(fieldsOf(desired)))

	ignored := make(map[string]struct{}, len(ignore))
	for _, f := range ignore {
		ignored[f] = struct{}{}
	}

	out := make([]Change, 0, len(raw))

	for _, ch := range raw {
		if ch.Op == ChangeRemove || len(ch.Path) == 0 {
			continue
		}

		if _, skip := ignored[ch.Path[0]]; skip {
			continue
		}

		out = append(out, ch)
	}

	return out
}

func fieldsOf(e *Entity) map[string]any {
	if e == nil || e.Fields == nil {
		return map[string]any{}
	}

	return e.Fields
}

// collectChanges walks both values in parallel, recursing into objects and
// arrays, and appends a change for every differing leaf.
func collectChanges(out *[]Change, path []string, observed, desired any) {
	if reflect.DeepEqual(observed, desired) {
		return
	}

	obsObject, obsIsObject := observed.(map[string]any)
	desObject, desIsObject := desired.(map[string]any)

	if obsIsObject && desIsObject {
		keys := make([]string, 0, len(obsObject)+len(desObject))
		seen := make(map[string]struct{}, len(obsObject)+len(desObject))

		for key := range obsObject {
			seen[key] = struct{}{}
			keys = append(keys, key)
		}

		for key := range desObject {
			if _, found := seen[key]; found {
				continue
			}

			keys = append(keys, key)
		}

		sort.Strings(keys)

		for _, key := range keys {
			next := appendPath(path, key)
			obsValue, obsFound := obsObject[key]
			desValue, desFound := desObject[key]

			switch {
			case !obsFound:
				*out = append(*out, Change{Op: ChangeAdd, Path: next, Value: desValue})
			case !desFound:
				*out = append(*out, Change{Op: ChangeRemove, Path: next, Previous: obsValue})
			default:
				collectChanges(out, next, obsValue, desValue)
			}
		}

		return
	}

	obsArray, obsIsArray := observed.([]any)
	desArray, desIsArray := desired.([]any)

	if obsIsArray && desIsArray {
		maxLength := max(len(obsArray), len(desArray))

		for idx := range maxLength {
			next := appendPath(path, strconv.Itoa(idx))

			switch {
			case idx >= len(obsArray):
				*out = append(*out, Change{Op: ChangeAdd, Path: next, Value: desArray[idx]})
			case idx >= len(desArray):
				*out = append(*out, Change{Op: ChangeRemove, Path: next, Previous: obsArray[idx]})
			default:
				collectChanges(out, next, obsArray[idx], desArray[idx])
			}
		}

		return
	}

	*out = append(*out, Change{Op: ChangeReplace, Path: path, Value: desired, Previous: observed})
}

// appendPath returns a new slice so sibling paths never share backing
// arrays.
func appendPath(path []string, segment string) []string {
	next := make([]string, len(path), len(path)+1)
	copy(next, path)

	return append(next, segment)
}

// normalizeValue converts a field tree to its JSON-decoded form so values
// from different sources compare equal (YAML ints vs JSON float64, typed
// slices vs []any). Values that do not survive a JSON round trip are
// returned unchanged.
func normalizeValue(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}

	return out
}

func formatValue(v any) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	default:
		data, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprint(typed)
		}

		return string(data)
	}
}
