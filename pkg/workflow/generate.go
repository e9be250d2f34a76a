// SPDX-License-Identifier: MPL-2.0

package workflow

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// OrderKeys returns the keys of v with the names in axisNames first, in that
// order, followed by the remaining keys sorted.
func OrderKeys(v Values, axisNames []string) []string {
	keys := make([]string, 0, len(v))
	seen := make(map[string]bool, len(axisNames))
	for _, name := range axisNames {
		if _, ok := v[name]; ok && !seen[name] {
			keys = append(keys, name)
			seen[name] = true
		}
	}
	for _, k := range slices.Sorted(maps.Keys(v)) {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	return keys
}

// Generate renders w in the given format.
func Generate(w *Workflow, format Format) ([]byte, error) {
	switch format {
	case FormatCUE:
		return []byte(GenerateCUE(w)), nil
	case FormatYAML:
		return GenerateYAML(w)
	case FormatTOML:
		return GenerateTOML(w)
	default:
		return nil, &UnsupportedFormatError{Value: string(format)}
	}
}

// GenerateTOML renders w as a TOML document.
func GenerateTOML(w *Workflow) ([]byte, error) {
	var sb strings.Builder
	sb.WriteString("# buildmatrix workflow\n\n")
	enc := toml.NewEncoder(&sb)
	enc.SetIndentTables(true)
	if err := enc.Encode(w); err != nil {
		return nil, fmt.Errorf("encode workflow as TOML: %w", err)
	}
	return []byte(sb.String()), nil
}

// GenerateCUE renders w as a CUE document accepted by the workflow schema.
func GenerateCUE(w *Workflow) string {
	var sb strings.Builder

	sb.WriteString("// buildmatrix workflow\n\n")
	fmt.Fprintf(&sb, "name:    %q\n", w.Name)
	fmt.Fprintf(&sb, "product: %q\n", w.Product)

	if w.On.Push || len(w.On.Branches) > 0 {
		sb.WriteString("\non: {\n")
		if w.On.Push {
			sb.WriteString("\tpush: true\n")
		}
		if len(w.On.Branches) > 0 {
			fmt.Fprintf(&sb, "\tbranches: %s\n", cueList(w.On.Branches))
		}
		sb.WriteString("}\n")
	}

	sb.WriteString("\nstrategy: {\n")
	fmt.Fprintf(&sb, "\tfail_fast: %t\n", w.Strategy.FailFast)
	if w.Strategy.MaxParallel > 0 {
		fmt.Fprintf(&sb, "\tmax_parallel: %d\n", w.Strategy.MaxParallel)
	}
	sb.WriteString("\tmatrix: {\n")
	m := w.Strategy.Matrix
	if len(m.Axes) > 0 {
		sb.WriteString("\t\taxes: [\n")
		for _, a := range m.Axes {
			fmt.Fprintf(&sb, "\t\t\t{name: %q, values: %s},\n", a.Name, cueList(a.Values))
		}
		sb.WriteString("\t\t]\n")
	}
	generateValuesList(&sb, "include", m.Include, m.AxisNames())
	generateValuesList(&sb, "exclude", m.Exclude, m.AxisNames())
	sb.WriteString("\t}\n}\n")

	sb.WriteString("\nsteps: [\n")
	for i := range w.Steps {
		generateStep(&sb, &w.Steps[i])
	}
	sb.WriteString("]\n")

	return sb.String()
}

func generateValuesList(sb *strings.Builder, field string, items []Values, axisNames []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "\t\t%s: [\n", field)
	for _, v := range items {
		sb.WriteString("\t\t\t{")
		for i, k := range OrderKeys(v, axisNames) {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(sb, "%q: %q", k, v[k])
		}
		sb.WriteString("},\n")
	}
	sb.WriteString("\t\t]\n")
}

func generateStep(sb *strings.Builder, s *Step) {
	sb.WriteString("\t{\n")
	if s.Name != "" {
		fmt.Fprintf(sb, "\t\tname: %q\n", s.Name)
	}
	if s.Uses != "" {
		fmt.Fprintf(sb, "\t\tuses: %q\n", s.Uses)
	}
	if s.Run != "" {
		fmt.Fprintf(sb, "\t\trun:  %q\n", s.Run)
	}
	if s.Shell != "" {
		fmt.Fprintf(sb, "\t\tshell: %q\n", s.Shell)
	}
	if s.ContinueOnError {
		sb.WriteString("\t\tcontinue_on_error: true\n")
	}
	generateStringMap(sb, "with", s.With)
	generateStringMap(sb, "env", s.Env)
	sb.WriteString("\t},\n")
}

func generateStringMap(sb *strings.Builder, field string, m map[string]string) {
	if len(m) == 0 {
		return
	}
	fmt.Fprintf(sb, "\t\t%s: {\n", field)
	for _, k := range slices.Sorted(maps.Keys(m)) {
		fmt.Fprintf(sb, "\t\t\t%q: %q\n", k, m[k])
	}
	sb.WriteString("\t\t}\n")
}

func cueList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
