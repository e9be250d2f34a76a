// SPDX-License-Identifier: MPL-2.0

package workflow

// Well-known matrix keys.
const (
	KeyOS                 = "os"
	KeyArchitecture       = "architecture"
	KeyInterpreterVersion = "python-version"
	KeyExtraPackages      = "python-packages"
)

// DefaultProduct is the product name used by the built-in workflow.
const DefaultProduct = "gallery-dl"

type (
	// Workflow is a complete build definition.
	Workflow struct {
		Name     string   `json:"name" toml:"name"`
		Product  string   `json:"product" toml:"product"`
		On       Trigger  `json:"on" toml:"on"`
		Strategy Strategy `json:"strategy" toml:"strategy"`
		Steps    []Step   `json:"steps" toml:"steps"`

		// FilePath is the file the workflow was read from; empty for the
		// built-in default.
		FilePath string `json:"-" toml:"-"`
	}

	// Trigger selects the repository events that start a run.
	Trigger struct {
		Push bool `json:"push,omitempty" toml:"push,omitempty"`
		// Branches are doublestar patterns matched against the short branch
		// name. Empty means every branch.
		Branches []string `json:"branches,omitempty" toml:"branches,omitempty"`
	}

	// Strategy controls how matrix jobs are scheduled.
	Strategy struct {
		FailFast    bool   `json:"fail_fast,omitempty" toml:"fail_fast,omitempty"`
		MaxParallel int    `json:"max_parallel,omitempty" toml:"max_parallel,omitempty"`
		Matrix      Matrix `json:"matrix" toml:"matrix"`
	}

	// Matrix declares the base axes and the include/exclude adjustments.
	Matrix struct {
		Axes    []Axis   `json:"axes,omitempty" toml:"axes,omitempty"`
		Include []Values `json:"include,omitempty" toml:"include,omitempty"`
		Exclude []Values `json:"exclude,omitempty" toml:"exclude,omitempty"`
	}

	// Axis is one dimension of the cartesian product.
	Axis struct {
		Name   string   `json:"name" toml:"name"`
		Values []string `json:"values" toml:"values"`
	}

	// Values is a set of matrix key/value pairs, used for include and
	// exclude items.
	Values map[string]string

	// Step is one entry of the per-job step sequence. Exactly one of Uses or
	// Run is set.
	Step struct {
		Name            string            `json:"name,omitempty" toml:"name,omitempty"`
		Uses            string            `json:"uses,omitempty" toml:"uses,omitempty"`
		Run             string            `json:"run,omitempty" toml:"run,omitempty"`
		Shell           Shell             `json:"shell,omitempty" toml:"shell,omitempty"`
		With            map[string]string `json:"with,omitempty" toml:"with,omitempty"`
		Env             map[string]string `json:"env,omitempty" toml:"env,omitempty"`
		ContinueOnError bool              `json:"continue_on_error,omitempty" toml:"continue_on_error,omitempty"`
	}
)

// AxisNames returns the axis names in declaration order.
func (m Matrix) AxisNames() []string {
	names := make([]string, len(m.Axes))
	for i, a := range m.Axes {
		names[i] = a.Name
	}
	return names
}

// DisplayName returns the step name, falling back to its action.
func (s Step) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Uses != "" {
		return s.Uses
	}
	return string(s.Action())
}

// Default returns the built-in workflow: executables of gallery-dl for two
// base operating systems plus two included special cases. It fires on every
// push, whatever the branch.
func Default() *Workflow {
	return &Workflow{
		Name:    "Executables",
		Product: DefaultProduct,
		On:      Trigger{Push: true},
		Strategy: Strategy{
			FailFast: false,
			Matrix: Matrix{
				Axes: []Axis{
					{Name: KeyOS, Values: []string{"windows-latest", "macOS-latest"}},
					{Name: KeyArchitecture, Values: []string{"x64"}},
					{Name: KeyInterpreterVersion, Values: []string{"3.12"}},
					{Name: KeyExtraPackages, Values: []string{""}},
				},
				Include: []Values{
					{
						KeyOS:                 "ubuntu-latest",
						KeyArchitecture:       "x64",
						KeyInterpreterVersion: "3.12",
						KeyExtraPackages:      "secretstorage",
					},
					{
						KeyOS:                 "windows-2019",
						KeyArchitecture:       "x86",
						KeyInterpreterVersion: "3.8",
						KeyExtraPackages:      "toml",
					},
				},
			},
		},
		Steps: []Step{
			{Name: "Checkout", Uses: string(ActionCheckout)},
			{
				Name: "Set up Python ${{ matrix.python-version }} ${{ matrix.architecture }}",
				Uses: string(ActionSetupInterpreter),
				With: map[string]string{
					"python-version": "${{ matrix.python-version }}",
					"architecture":   "${{ matrix.architecture }}",
				},
			},
			{
				Name: "Install dependencies",
				Uses: string(ActionInstall),
				With: map[string]string{
					"packages": "requests requests[socks] yt-dlp pyyaml ${{ matrix.python-packages }} pyinstaller",
				},
			},
			{
				Name: "Build executable",
				Run:  "python ./scripts/pyinstaller.py",
			},
			{
				Name: "Upload executable",
				Uses: string(ActionUploadArtifact),
				With: map[string]string{
					"name": "gallery-dl-${{ matrix.os }}-${{ matrix.architecture }}-${{ matrix.python-version }}",
					"path": "dist",
				},
			},
		},
	}
}
