// SPDX-License-Identifier: MPL-2.0

package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/buildmatrix/buildmatrix/internal/testutil"
)

func TestLocalStorePublishListFetch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ws := newWorkspace(t)
	store := NewLocalStore(t.TempDir())

	art, err := store.Publish(ctx, UploadRequest{RunID: "run-1", Name: "myapp-windows-latest-x64-3.12", BaseDir: ws, Patterns: []string{"dist"}})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(art.Files) != 3 || art.Size != int64(len("exe")+len("dll")+len("pdb")) {
		t.Errorf("Publish() = %+v", art)
	}
	f, ok := art.File("lib/core.dll")
	if !ok || f.SHA256 == "" {
		t.Errorf("manifest entry for lib/core.dll = %+v, %v", f, ok)
	}

	if _, err := store.Publish(ctx, UploadRequest{RunID: "run-1", Name: "other", BaseDir: ws, Patterns: []string{"README.md"}}); err != nil {
		t.Fatalf("Publish(other) error = %v", err)
	}

	list, err := store.List(ctx, "run-1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].Name != "myapp-windows-latest-x64-3.12" || list[1].Name != "other" {
		t.Errorf("List() = %+v", list)
	}

	dest := t.TempDir()
	if _, err := store.Fetch(ctx, "run-1", art.Name, dest); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got := testutil.MustReadFile(t, filepath.Join(dest, "lib", "core.dll")); got != "dll" {
		t.Errorf("fetched core.dll = %q", got)
	}
}

func TestLocalStoreNameUniqueness(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ws := newWorkspace(t)
	store := NewLocalStore(t.TempDir())
	req := UploadRequest{RunID: "run-1", Name: "dup", BaseDir: ws, Patterns: []string{"dist"}}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = store.Publish(ctx, req)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, ErrArtifactExists):
			t.Errorf("Publish() error = %v, want ErrArtifactExists", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("%d concurrent publishes succeeded, want 1", succeeded)
	}

	// Another run may reuse the name.
	if _, err := store.Publish(ctx, UploadRequest{RunID: "run-2", Name: "dup", BaseDir: ws, Patterns: []string{"dist"}}); err != nil {
		t.Errorf("Publish() in another run error = %v", err)
	}
}

func TestLocalStoreFailedPublishReleasesName(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ws := newWorkspace(t)
	store := NewLocalStore(t.TempDir())
	req := UploadRequest{RunID: "run-1", Name: "retry", BaseDir: ws, Patterns: []string{"dist"}}

	diskFull := errors.New("no space left on device")
	store.store = func(string, string) (File, error) { return File{}, diskFull }
	if _, err := store.Publish(ctx, req); !errors.Is(err, diskFull) {
		t.Fatalf("Publish() error = %v, want the store failure", err)
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "run-1", "retry")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("artifact directory left behind after failed publish: %v", err)
	}

	store.store = storeFile
	art, err := store.Publish(ctx, req)
	if err != nil {
		t.Fatalf("Publish() after failure error = %v", err)
	}
	if len(art.Files) == 0 {
		t.Error("retried publish stored no files")
	}
}

func TestLocalStoreIfNoFilesFound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ws := t.TempDir()
	store := NewLocalStore(t.TempDir())

	art, err := store.Publish(ctx, UploadRequest{RunID: "r", Name: "warn", BaseDir: ws, Patterns: []string{"dist"}})
	if err != nil || art == nil || len(art.Files) != 0 {
		t.Errorf("warn: Publish() = %+v, %v; want empty artifact", art, err)
	}

	_, err = store.Publish(ctx, UploadRequest{RunID: "r", Name: "error", BaseDir: ws, Patterns: []string{"dist"}, IfNoFilesFound: IfNoFilesFoundError})
	if !errors.Is(err, ErrNoFilesFound) {
		t.Errorf("error: Publish() error = %v, want ErrNoFilesFound", err)
	}

	art, err = store.Publish(ctx, UploadRequest{RunID: "r", Name: "ignore", BaseDir: ws, Patterns: []string{"dist"}, IfNoFilesFound: IfNoFilesFoundIgnore})
	if err != nil || art != nil {
		t.Errorf("ignore: Publish() = %+v, %v; want nothing", art, err)
	}

	list, _ := store.List(ctx, "r")
	if len(list) != 1 || list[0].Name != "warn" {
		t.Errorf("List() = %+v, want only the warn artifact", list)
	}
}

func TestLocalStoreFetchDetectsCorruption(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()
	store := NewLocalStore(root)
	if _, err := store.Publish(ctx, UploadRequest{RunID: "r", Name: "a", BaseDir: newWorkspace(t), Patterns: []string{"dist"}}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(root, "r", "a", localFilesDir, "app.exe"), []byte("tampered"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Fetch(ctx, "r", "a", t.TempDir()); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("Fetch() error = %v, want ErrChecksumMismatch", err)
	}
	if _, err := store.Fetch(ctx, "r", "missing", t.TempDir()); !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("Fetch(missing) error = %v, want ErrArtifactNotFound", err)
	}
}

func TestValidateName(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", " ", "..", "a/b", `a\b`, "a:b", "NUL", "com1.zip"} {
		if err := ValidateName(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("ValidateName(%q) = %v, want ErrInvalidName", name, err)
		}
	}
	if err := ValidateName("myapp-ubuntu-latest-x64-3.12"); err != nil {
		t.Errorf("ValidateName() = %v", err)
	}
}

func TestIfNoFilesFoundIsValid(t *testing.T) {
	t.Parallel()

	if ok, _ := IfNoFilesFound("warn").IsValid(); !ok {
		t.Error("warn should be valid")
	}
	ok, errs := IfNoFilesFound("explode").IsValid()
	if ok || len(errs) != 1 || !errors.Is(errs[0], ErrInvalidIfNoFilesFound) {
		t.Errorf("IsValid() = %v, %v", ok, errs)
	}
}
