// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"cmp"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

type Id int

const (
	WorkflowNotFoundId Id = iota + 1
	WorkflowParseErrorId
	InvalidMatrixId
	InterpreterNotFoundId
	ContainerEngineNotFoundId
	RunnerNotAvailableId
	SourceCheckoutFailedId
	ArtifactStoreUnavailableId
	JobsFailedId
	ConfigLoadFailedId
	PermissionDeniedId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id
	mdMsg    MarkdownMsg
	docLinks []HttpLink
	extLinks []HttpLink
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render renders the guide as terminal Markdown using the glamour style at
// stylePath ("dark", "light", "notty" or a JSON style file).
func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range append(slices.Clone(i.docLinks), i.extLinks...) {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(md.String(), stylePath)
}

var (
	render = glamour.Render

	workflowNotFoundIssue = &Issue{
		id: WorkflowNotFoundId,
		mdMsg: `
# Workflow file not found!

The workflow passed with ` + "`-f`" + ` does not exist or cannot be read.

## Search order when -f is not given:
1. ./buildmatrix.cue
2. ./buildmatrix.toml
3. ./.github/workflows/executables.yml
4. The built-in gallery-dl workflow

## Things you can try:
- Write the built-in workflow to the current directory and edit it:
~~~
$ buildmatrix init
~~~
- Point to an existing hosted-CI workflow:
~~~
$ buildmatrix run -f .github/workflows/executables.yml
~~~`,
	}

	workflowParseErrorIssue = &Issue{
		id: WorkflowParseErrorId,
		mdMsg: `
# Failed to parse the workflow!

The workflow contains syntax errors or fields the schema does not accept.

## Common issues:
- A step sets both ` + "`uses`" + ` and ` + "`run`" + `, or neither
- A ` + "`uses`" + ` reference names an action that is not built in
- An expression other than ` + "`${{ matrix.* }}`" + `, ` + "`${{ env.* }}`" + ` or ` + "`${{ run.* }}`" + `

## Things you can try:
~~~
$ buildmatrix validate -f buildmatrix.cue
~~~`,
		extLinks: []HttpLink{"https://cuelang.org/docs/"},
	}

	invalidMatrixIssue = &Issue{
		id: InvalidMatrixId,
		mdMsg: `
# The matrix cannot be expanded!

Every entry must set ` + "`os`" + `, ` + "`architecture`" + ` and ` + "`python-version`" + `,
no two entries may be identical or produce the same artifact name, and the
expansion may not exceed 256 entries.

## Things you can try:
- Inspect the expansion:
~~~
$ buildmatrix matrix
~~~
- Remove include items that repeat a combination of the base axes
- Add an ` + "`exclude`" + ` item instead of listing a combination twice`,
	}

	interpreterNotFoundIssue = &Issue{
		id: InterpreterNotFoundId,
		mdMsg: `
# No matching Python interpreter!

A job asked for an interpreter version and architecture that is not
installed on this host.

## Things you can try:
- Install the requested version (for example with your package manager or pyenv)
- On Windows, install the 32-bit build for ` + "`x86`" + ` entries; it is found through ` + "`py -3.X-32`" + `
- Run the jobs in containers instead:
~~~
$ buildmatrix run --runner container
~~~`,
	}

	containerEngineNotFoundIssue = &Issue{
		id: ContainerEngineNotFoundId,
		mdMsg: `
# Container engine not found!

The container runner needs Podman or Docker.

## Things you can try:
- Install Podman: https://podman.io/getting-started/installation
- Install Docker: https://docs.docker.com/get-docker/
- Select the engine in your config:
~~~cue
container_engine: "docker"
~~~
- Use the native runner:
~~~
$ buildmatrix run --runner native
~~~`,
	}

	runnerNotAvailableIssue = &Issue{
		id: RunnerNotAvailableId,
		mdMsg: `
# No runner for this operating system!

The native runner only builds entries whose ` + "`os`" + ` label matches the host
family (windows-*, macos-*, ubuntu-*). Entries for other systems fail without
affecting the rest of the run.

## Things you can try:
- Build only the entries this host can run:
~~~
$ buildmatrix run --only os=ubuntu-latest
~~~
- Run Linux entries in containers with ` + "`--runner container`" + `
- Run the workflow on a host of each operating system`,
	}

	sourceCheckoutFailedIssue = &Issue{
		id: SourceCheckoutFailedId,
		mdMsg: `
# Checkout failed!

The source tree could not be copied into the job workspace.

## Things you can try:
- Make sure ` + "`git`" + ` is installed and on your PATH
- Run buildmatrix from inside the repository you want to build
- Check that the revision exists:
~~~
$ git rev-parse HEAD
~~~`,
	}

	artifactStoreUnavailableIssue = &Issue{
		id: ArtifactStoreUnavailableId,
		mdMsg: `
# Artifact store unavailable!

Artifacts could not be written to or read from the configured store.

## Things you can try:
- For the local store, check that ` + "`artifacts.local.dir`" + ` is writable
- For S3-compatible stores, check ` + "`artifacts.s3.endpoint`" + `, the bucket name and credentials:
~~~
$ buildmatrix config show
~~~`,
		extLinks: []HttpLink{"https://min.io/docs/minio/linux/developers/go/minio-go.html"},
	}

	jobsFailedIssue = &Issue{
		id: JobsFailedId,
		mdMsg: `
# Some jobs failed!

Every job ran to completion or failure on its own; the summary above lists
the failing step of each failed job.

## Things you can try:
- Re-run a single entry with debug logging:
~~~
$ BUILDMATRIX_LOG_LEVEL=debug buildmatrix run --only os=windows-2019
~~~
- Keep the workspace to inspect the build output:
~~~
$ buildmatrix run --keep-workspace
~~~`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

The configuration file contains errors.

## Things you can try:
- Show where the file lives and what is loaded:
~~~
$ buildmatrix config path
$ buildmatrix config show
~~~
- Recreate the default file:
~~~
$ buildmatrix config init --force
~~~`,
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

A workspace, artifact or config path could not be written.

## Things you can try:
- Check the permissions of ` + "`work_dir`" + ` and ` + "`artifacts.local.dir`" + `
- For containers, ensure you're in the docker/podman group or use rootless Podman`,
	}

	issues = map[Id]*Issue{
		workflowNotFoundIssue.Id():         workflowNotFoundIssue,
		workflowParseErrorIssue.Id():       workflowParseErrorIssue,
		invalidMatrixIssue.Id():            invalidMatrixIssue,
		interpreterNotFoundIssue.Id():      interpreterNotFoundIssue,
		containerEngineNotFoundIssue.Id():  containerEngineNotFoundIssue,
		runnerNotAvailableIssue.Id():       runnerNotAvailableIssue,
		sourceCheckoutFailedIssue.Id():     sourceCheckoutFailedIssue,
		artifactStoreUnavailableIssue.Id(): artifactStoreUnavailableIssue,
		jobsFailedIssue.Id():               jobsFailedIssue,
		configLoadFailedIssue.Id():         configLoadFailedIssue,
		permissionDeniedIssue.Id():         permissionDeniedIssue,
	}
)

// Values returns every catalog entry ordered by Id.
func Values() []*Issue {
	out := make([]*Issue, 0, len(issues))
	for _, i := range issues {
		out = append(out, i)
	}
	slices.SortFunc(out, func(a, b *Issue) int { return cmp.Compare(a.id, b.id) })
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}
