// SPDX-License-Identifier: MPL-2.0

package matrix

import (
	"bytes"
	"encoding/json"
	"maps"
	"strings"

	"github.com/buildmatrix/buildmatrix/pkg/workflow"
)

// Entry is one combination of matrix values. Keys keep the order in which
// the matrix declares them.
type Entry struct {
	keys   []string
	values map[string]string
}

// NewEntry builds an entry from v, ordering its keys by axisNames first and
// the remaining keys alphabetically.
func NewEntry(v workflow.Values, axisNames []string) Entry {
	return Entry{
		keys:   workflow.OrderKeys(v, axisNames),
		values: maps.Clone(map[string]string(v)),
	}
}

// Get returns the value for key and whether it is set.
func (e Entry) Get(key string) (string, bool) {
	v, ok := e.values[key]
	return v, ok
}

// OS returns the runner label of the entry.
func (e Entry) OS() string { return e.values[workflow.KeyOS] }

// Architecture returns the processor architecture of the entry.
func (e Entry) Architecture() string { return e.values[workflow.KeyArchitecture] }

// InterpreterVersion returns the interpreter version of the entry.
func (e Entry) InterpreterVersion() string { return e.values[workflow.KeyInterpreterVersion] }

// ExtraPackages returns the entry's extra packages, which may be empty.
func (e Entry) ExtraPackages() []string {
	return strings.Fields(e.values[workflow.KeyExtraPackages])
}

// Keys returns the entry's keys in order.
func (e Entry) Keys() []string {
	return append([]string(nil), e.keys...)
}

// Map returns a copy of the entry's values.
func (e Entry) Map() map[string]string {
	return maps.Clone(e.values)
}

// Matches reports whether every key of sel is set in e with the same value.
func (e Entry) Matches(sel workflow.Values) bool {
	for k, v := range sel {
		if got, ok := e.values[k]; !ok || got != v {
			return false
		}
	}
	return true
}

// String renders the entry as "os=windows-latest, architecture=x64, ...".
func (e Entry) String() string {
	parts := make([]string, len(e.keys))
	for i, k := range e.keys {
		parts[i] = k + "=" + e.values[k]
	}
	return strings.Join(parts, ", ")
}

// Label renders the values only, as "(windows-latest, x64, 3.12, )".
func (e Entry) Label() string {
	parts := make([]string, len(e.keys))
	for i, k := range e.keys {
		parts[i] = e.values[k]
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// MarshalJSON renders the entry as a JSON object with keys in order.
func (e Entry) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range e.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(e.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// identity is a canonical form independent of key order.
func (e Entry) identity() string {
	sorted := workflow.OrderKeys(e.values, nil)
	var b strings.Builder
	for _, k := range sorted {
		b.WriteString(k)
		b.WriteByte(0)
		b.WriteString(e.values[k])
		b.WriteByte(0)
	}
	return b.String()
}
