// SPDX-License-Identifier: MPL-2.0

package matrix

import (
	"maps"

	"github.com/buildmatrix/buildmatrix/pkg/workflow"
)

// RequiredKeys must be non-empty in every entry.
var RequiredKeys = []string{
	workflow.KeyOS,
	workflow.KeyArchitecture,
	workflow.KeyInterpreterVersion,
}

// Expand computes the entries of m: the cartesian product of the axes in
// declaration order with exclude items removed, followed by the include
// items. The result is validated for required keys, duplicates and size.
func Expand(m workflow.Matrix) ([]Entry, error) {
	if len(m.Axes) == 0 && len(m.Include) == 0 {
		return nil, ErrEmptyMatrix
	}

	if n := productSize(m.Axes) + len(m.Include); n > MaxEntries {
		return nil, &TooManyEntriesError{Count: n, Max: MaxEntries}
	}

	axisNames := m.AxisNames()
	entries := make([]Entry, 0, productSize(m.Axes)+len(m.Include))

	for _, combo := range product(m.Axes) {
		e := NewEntry(combo, axisNames)
		if excluded(e, m.Exclude) {
			continue
		}
		entries = append(entries, e)
	}
	for _, inc := range m.Include {
		entries = append(entries, NewEntry(inc, axisNames))
	}

	if err := validate(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func productSize(axes []workflow.Axis) int {
	if len(axes) == 0 {
		return 0
	}
	n := 1
	for _, a := range axes {
		n *= len(a.Values)
		if n > MaxEntries {
			// Clamp so huge products cannot overflow.
			return MaxEntries + 1
		}
	}
	return n
}

// product enumerates combinations with the first axis as the outermost loop.
func product(axes []workflow.Axis) []workflow.Values {
	if len(axes) == 0 {
		return nil
	}
	combos := []workflow.Values{{}}
	for _, axis := range axes {
		next := make([]workflow.Values, 0, len(combos)*len(axis.Values))
		for _, c := range combos {
			for _, v := range axis.Values {
				nc := make(workflow.Values, len(c)+1)
				maps.Copy(nc, c)
				nc[axis.Name] = v
				next = append(next, nc)
			}
		}
		combos = next
	}
	return combos
}

func excluded(e Entry, exclude []workflow.Values) bool {
	for _, x := range exclude {
		if len(x) > 0 && e.Matches(x) {
			return true
		}
	}
	return false
}

func validate(entries []Entry) error {
	seen := make(map[string]int, len(entries))
	for i, e := range entries {
		for _, key := range RequiredKeys {
			if v, _ := e.Get(key); v == "" {
				return &MissingKeyError{Index: i, Key: key, Entry: e}
			}
		}
		id := e.identity()
		if first, ok := seen[id]; ok {
			return &DuplicateEntryError{First: first, Second: i, Entry: e}
		}
		seen[id] = i
	}
	return nil
}

// Select returns the entries matching every key of sel. An empty selector
// returns all entries.
func Select(entries []Entry, sel workflow.Values) []Entry {
	if len(sel) == 0 {
		return entries
	}
	var out []Entry
	for _, e := range entries {
		if e.Matches(sel) {
			out = append(out, e)
		}
	}
	return out
}
