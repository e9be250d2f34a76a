// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"
	"testing"
)

func TestCatalogIsComplete(t *testing.T) {
	t.Parallel()

	for id := WorkflowNotFoundId; id <= PermissionDeniedId; id++ {
		i := Get(id)
		if i == nil {
			t.Errorf("Get(%d) returned nil", id)
			continue
		}
		if i.Id() != id {
			t.Errorf("Get(%d).Id() = %d", id, i.Id())
		}
		if strings.TrimSpace(string(i.MarkdownMsg())) == "" {
			t.Errorf("issue %d has no content", id)
		}
	}

	if Get(0) != nil || Get(PermissionDeniedId+1) != nil {
		t.Error("Get() of an unknown id should return nil")
	}
}

func TestValuesOrdered(t *testing.T) {
	t.Parallel()

	values := Values()
	if len(values) != int(PermissionDeniedId) {
		t.Fatalf("Values() returned %d issues, want %d", len(values), PermissionDeniedId)
	}
	for i, v := range values {
		if v.Id() != Id(i+1) {
			t.Errorf("Values()[%d].Id() = %d", i, v.Id())
		}
	}
}

func TestLinksAreCopies(t *testing.T) {
	t.Parallel()

	i := Get(ArtifactStoreUnavailableId)
	links := i.ExtLinks()
	if len(links) == 0 {
		t.Fatal("expected external links")
	}
	links[0] = "modified"
	if i.ExtLinks()[0] == "modified" {
		t.Error("ExtLinks() exposed internal slice")
	}
	if len(i.DocLinks()) != 0 {
		t.Errorf("DocLinks() = %v, want none", i.DocLinks())
	}
}

func TestRender(t *testing.T) {
	t.Parallel()

	for _, i := range Values() {
		out, err := i.Render("notty")
		if err != nil {
			t.Errorf("issue %d Render() error: %v", i.Id(), err)
			continue
		}
		if strings.TrimSpace(out) == "" {
			t.Errorf("issue %d rendered empty output", i.Id())
		}
	}

	out, err := Get(WorkflowParseErrorId).Render("notty")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "See also") || !strings.Contains(out, "cuelang.org") {
		t.Errorf("rendered guide missing links section:\n%s", out)
	}
}
