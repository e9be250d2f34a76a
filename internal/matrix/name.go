// SPDX-License-Identifier: MPL-2.0

package matrix

import "strings"

// ArtifactName derives the artifact name of an entry:
// "{product}-{os}-{architecture}-{python-version}".
func ArtifactName(product string, e Entry) string {
	return strings.Join([]string{product, e.OS(), e.Architecture(), e.InterpreterVersion()}, "-")
}

// CheckUniqueNames fails with a *NameCollisionError when two entries derive
// the same artifact name.
func CheckUniqueNames(product string, entries []Entry) error {
	seen := make(map[string]int, len(entries))
	for i, e := range entries {
		name := ArtifactName(product, e)
		if first, ok := seen[name]; ok {
			return &NameCollisionError{Name: name, First: first, Second: i}
		}
		seen[name] = i
	}
	return nil
}
