// SPDX-License-Identifier: MPL-2.0

package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/buildmatrix/buildmatrix/pkg/cueutil"
)

var (
	// ErrNoJobs is returned when an imported YAML workflow declares no jobs.
	ErrNoJobs = errors.New("workflow declares no jobs")

	// hostedActionRefs are the references written for built-in actions when
	// rendering the hosted-CI layout.
	hostedActionRefs = map[Action]string{
		ActionCheckout:         "actions/checkout@v4",
		ActionSetupInterpreter: "actions/setup-python@v5",
		ActionUploadArtifact:   "actions/upload-artifact@v4",
	}
)

// parseGitHubYAML imports a hosted-CI workflow document. The node API is used
// instead of struct decoding so matrix keys keep their declaration order and
// scalar values keep their source text ("3.10" stays "3.10").
func parseGitHubYAML(data []byte, path string) (*Workflow, error) {
	if err := cueutil.CheckFileSize(data, cueutil.DefaultMaxFileSize, path); err != nil {
		return nil, err
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("%s: empty document", path)
	}
	doc := resolve(root.Content[0])
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s:%d: top level must be a mapping", path, doc.Line)
	}

	w := &Workflow{Name: scalar(lookup(doc, "name"))}
	w.On = parseTrigger(lookup(doc, "on"))

	job, err := selectJob(lookup(doc, "jobs"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if w.Name == "" {
		w.Name = scalar(lookup(job, "name"))
	}

	if strategy := lookup(job, "strategy"); strategy != nil {
		if w.Strategy, err = parseStrategy(strategy); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	stepsNode := lookup(job, "steps")
	if stepsNode != nil {
		if stepsNode.Kind != yaml.SequenceNode {
			return nil, fmt.Errorf("%s:%d: steps must be a list", path, stepsNode.Line)
		}
		for _, n := range stepsNode.Content {
			step, err := parseStep(resolve(n))
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", path, n.Line, err)
			}
			w.Steps = append(w.Steps, step)
		}
	}

	w.Product = productFromSteps(w.Steps)
	if w.Product == "" {
		w.Product = slug(w.Name)
	}
	return w, nil
}

func parseTrigger(n *yaml.Node) Trigger {
	n = resolve(n)
	if n == nil {
		return Trigger{}
	}
	switch n.Kind {
	case yaml.ScalarNode:
		return Trigger{Push: n.Value == "push"}
	case yaml.SequenceNode:
		for _, ev := range n.Content {
			if scalar(ev) == "push" {
				return Trigger{Push: true}
			}
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			if n.Content[i].Value != "push" {
				continue
			}
			return Trigger{Push: true, Branches: scalarList(lookup(resolve(n.Content[i+1]), "branches"))}
		}
	}
	return Trigger{}
}

// selectJob returns the first job that declares a matrix, or the first job.
func selectJob(jobs *yaml.Node) (*yaml.Node, error) {
	jobs = resolve(jobs)
	if jobs == nil || jobs.Kind != yaml.MappingNode || len(jobs.Content) < 2 {
		return nil, ErrNoJobs
	}
	for i := 0; i+1 < len(jobs.Content); i += 2 {
		job := resolve(jobs.Content[i+1])
		if lookup(lookup(job, "strategy"), "matrix") != nil {
			return job, nil
		}
	}
	return resolve(jobs.Content[1]), nil
}

func parseStrategy(n *yaml.Node) (Strategy, error) {
	var s Strategy
	if v := scalar(lookup(n, "fail-fast")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return s, fmt.Errorf("strategy.fail-fast: %w", err)
		}
		s.FailFast = b
	}
	if v := scalar(lookup(n, "max-parallel")); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return s, fmt.Errorf("strategy.max-parallel: %w", err)
		}
		s.MaxParallel = p
	}

	m := resolve(lookup(n, "matrix"))
	if m == nil {
		return s, nil
	}
	if m.Kind != yaml.MappingNode {
		return s, fmt.Errorf("line %d: strategy.matrix must be a mapping", m.Line)
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		key, val := m.Content[i].Value, resolve(m.Content[i+1])
		switch key {
		case "include":
			s.Matrix.Include = valuesList(val)
		case "exclude":
			s.Matrix.Exclude = valuesList(val)
		default:
			if val.Kind != yaml.SequenceNode {
				return s, fmt.Errorf("line %d: matrix axis %q must be a list", val.Line, key)
			}
			s.Matrix.Axes = append(s.Matrix.Axes, Axis{Name: key, Values: scalarList(val)})
		}
	}
	return s, nil
}

func parseStep(n *yaml.Node) (Step, error) {
	if n.Kind != yaml.MappingNode {
		return Step{}, errors.New("step must be a mapping")
	}
	s := Step{
		Name:  scalar(lookup(n, "name")),
		Uses:  scalar(lookup(n, "uses")),
		Run:   strings.TrimRight(scalar(lookup(n, "run")), "\n"),
		Shell: Shell(scalar(lookup(n, "shell"))),
		With:  scalarMap(lookup(n, "with")),
		Env:   scalarMap(lookup(n, "env")),
	}
	if v := scalar(lookup(n, "continue-on-error")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return s, fmt.Errorf("continue-on-error: %w", err)
		}
		s.ContinueOnError = b
	}
	return s, nil
}

// productFromSteps derives the product from the literal prefix of the first
// upload step's artifact name ("gallery-dl-${{ matrix.os }}" -> "gallery-dl").
func productFromSteps(steps []Step) string {
	for _, s := range steps {
		if s.Action() != ActionUploadArtifact {
			continue
		}
		name := s.With["name"]
		prefix, _, found := strings.Cut(name, exprOpen)
		if !found {
			return ""
		}
		return strings.TrimRight(prefix, "-_. ")
	}
	return ""
}

func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-._")
}

func resolve(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

func lookup(n *yaml.Node, key string) *yaml.Node {
	n = resolve(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return resolve(n.Content[i+1])
		}
	}
	return nil
}

func scalar(n *yaml.Node) string {
	n = resolve(n)
	if n == nil || n.Kind != yaml.ScalarNode || n.Tag == "!!null" {
		return ""
	}
	return n.Value
}

func scalarList(n *yaml.Node) []string {
	n = resolve(n)
	if n == nil {
		return nil
	}
	if n.Kind == yaml.ScalarNode {
		return []string{n.Value}
	}
	out := make([]string, 0, len(n.Content))
	for _, c := range n.Content {
		out = append(out, scalar(c))
	}
	return out
}

func scalarMap(n *yaml.Node) map[string]string {
	n = resolve(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	out := make(map[string]string, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		out[n.Content[i].Value] = scalar(n.Content[i+1])
	}
	return out
}

func valuesList(n *yaml.Node) []Values {
	n = resolve(n)
	if n == nil || n.Kind != yaml.SequenceNode {
		return nil
	}
	out := make([]Values, 0, len(n.Content))
	for _, c := range n.Content {
		out = append(out, Values(scalarMap(c)))
	}
	return out
}

// GenerateYAML renders w in the hosted-CI workflow layout. Built-in actions
// are written as their hosted equivalents and install steps as pip commands,
// so the document is accepted by both this tool and a hosted runner.
func GenerateYAML(w *Workflow) ([]byte, error) {
	doc := mapping()
	addPair(doc, "name", str(w.Name))

	if w.On.Push {
		push := mapping()
		if len(w.On.Branches) > 0 {
			addPair(push, "branches", strList(w.On.Branches))
		}
		on := mapping()
		addPair(on, "push", push)
		addPair(doc, "on", on)
	}

	strategy := mapping()
	addPair(strategy, "fail-fast", &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(w.Strategy.FailFast)})
	if w.Strategy.MaxParallel > 0 {
		addPair(strategy, "max-parallel", &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(w.Strategy.MaxParallel)})
	}
	matrix := mapping()
	axisNames := w.Strategy.Matrix.AxisNames()
	for _, a := range w.Strategy.Matrix.Axes {
		addPair(matrix, a.Name, strList(a.Values))
	}
	for _, list := range []struct {
		key   string
		items []Values
	}{{"include", w.Strategy.Matrix.Include}, {"exclude", w.Strategy.Matrix.Exclude}} {
		if len(list.items) == 0 {
			continue
		}
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		for _, v := range list.items {
			item := mapping()
			for _, k := range OrderKeys(v, axisNames) {
				addPair(item, k, str(v[k]))
			}
			seq.Content = append(seq.Content, item)
		}
		addPair(matrix, list.key, seq)
	}
	addPair(strategy, "matrix", matrix)

	steps := &yaml.Node{Kind: yaml.SequenceNode}
	for i := range w.Steps {
		steps.Content = append(steps.Content, yamlStep(&w.Steps[i]))
	}

	job := mapping()
	addPair(job, "runs-on", str("${{ matrix.os }}"))
	addPair(job, "strategy", strategy)
	addPair(job, "steps", steps)

	jobs := mapping()
	addPair(jobs, "build", job)
	addPair(doc, "jobs", jobs)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{doc}}); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func yamlStep(s *Step) *yaml.Node {
	n := mapping()
	if s.Name != "" {
		addPair(n, "name", str(s.Name))
	}

	action := s.Action()
	switch {
	case s.Uses != "" && action == ActionInstall:
		addPair(n, "run", str("python -m pip install "+s.With["packages"]))
	case s.Uses != "":
		uses := s.Uses
		if ref, ok := hostedActionRefs[action]; ok && Action(s.Uses) == action {
			uses = ref
		}
		addPair(n, "uses", str(uses))
	default:
		addPair(n, "run", str(s.Run))
	}

	if s.Shell != "" {
		addPair(n, "shell", str(string(s.Shell)))
	}
	if s.ContinueOnError {
		addPair(n, "continue-on-error", &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: "true"})
	}
	if len(s.With) > 0 && action != ActionInstall {
		addPair(n, "with", strMap(s.With))
	}
	if len(s.Env) > 0 {
		addPair(n, "env", strMap(s.Env))
	}
	return n
}

func mapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode}
}

func addPair(m *yaml.Node, key string, value *yaml.Node) {
	m.Content = append(m.Content, str(key), value)
}

func str(v string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
	if strings.Contains(v, "\n") {
		n.Style = yaml.LiteralStyle
	}
	return n
}

func strList(values []string) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, v := range values {
		seq.Content = append(seq.Content, str(v))
	}
	return seq
}

func strMap(m map[string]string) *yaml.Node {
	n := mapping()
	for _, k := range OrderKeys(m, nil) {
		addPair(n, k, str(m[k]))
	}
	return n
}
