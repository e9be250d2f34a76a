// SPDX-License-Identifier: MPL-2.0

package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const localFilesDir = "files"

// LocalStore keeps artifacts on the filesystem as
// <root>/<run-id>/<name>/{artifact.json,files/...}.
type LocalStore struct {
	root  string
	now   func() time.Time
	store func(src, dst string) (File, error)
}

// NewLocalStore creates a store rooted at dir.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{root: dir, now: time.Now, store: storeFile}
}

// Root returns the store directory.
func (s *LocalStore) Root() string { return s.root }

// Publish copies the matched files into the store. The artifact directory is
// reserved with an exclusive mkdir, so concurrent jobs publishing the same
// name in a run cannot both succeed. The manifest is written last; artifacts
// without one are invisible to List and Fetch. A failed publish removes the
// directory again so the name can be retried.
func (s *LocalStore) Publish(ctx context.Context, req UploadRequest) (_ *Artifact, err error) {
	matches, ok, err := prepare(ctx, req)
	if err != nil || !ok {
		return nil, err
	}

	runDir := filepath.Join(s.root, req.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}
	dir := filepath.Join(runDir, req.Name)
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s in run %s", ErrArtifactExists, req.Name, req.RunID)
		}
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(dir)
		}
	}()

	art := &Artifact{RunID: req.RunID, Name: req.Name, Files: []File{}, CreatedAt: s.now().UTC()}
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := s.store(m.Source, filepath.Join(dir, localFilesDir, filepath.FromSlash(m.Path)))
		if err != nil {
			return nil, fmt.Errorf("store %s: %w", m.Path, err)
		}
		f.Path = m.Path
		art.Files = append(art.Files, f)
		art.Size += f.Size
	}

	data, err := json.MarshalIndent(art, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestName), data, 0o644); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	return art, nil
}

// List returns the artifacts of a run sorted by name.
func (s *LocalStore) List(_ context.Context, runID string) ([]Artifact, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, runID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var out []Artifact
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		art, err := s.manifest(runID, e.Name())
		if errors.Is(err, ErrArtifactNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *art)
	}
	slices.SortFunc(out, func(a, b Artifact) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Fetch copies an artifact's files into dest, verifying each against the manifest.
func (s *LocalStore) Fetch(ctx context.Context, runID, name, dest string) (*Artifact, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	art, err := s.manifest(runID, name)
	if err != nil {
		return nil, err
	}

	for _, f := range art.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, err := os.Open(filepath.Join(s.root, runID, name, localFilesDir, filepath.FromSlash(f.Path)))
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Path, err)
		}
		target, err := destPath(dest, f.Path)
		if err == nil {
			err = writeVerified(src, target, f)
		}
		_ = src.Close()
		if err != nil {
			return nil, err
		}
	}
	return art, nil
}

func (s *LocalStore) manifest(runID, name string) (*Artifact, error) {
	data, err := os.ReadFile(filepath.Join(s.root, runID, name, ManifestName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s in run %s", ErrArtifactNotFound, name, runID)
		}
		return nil, err
	}
	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("parse manifest of %s: %w", name, err)
	}
	return &art, nil
}

// storeFile copies src to dst and returns its size and digest.
func storeFile(src, dst string) (File, error) {
	in, err := os.Open(src)
	if err != nil {
		return File{}, err
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return File{}, err
	}
	out, err := os.Create(dst)
	if err != nil {
		return File{}, err
	}
	vw := newVerifyingWriter(out)
	if _, err := io.Copy(vw, in); err != nil {
		_ = out.Close()
		return File{}, err
	}
	if err := out.Close(); err != nil {
		return File{}, err
	}
	return File{Size: vw.n, SHA256: vw.sum()}, nil
}

// writeVerified writes r to path and checks the result against f.
func writeVerified(r io.Reader, path string, f File) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	vw := newVerifyingWriter(out)
	if _, err := io.Copy(vw, r); err != nil {
		_ = out.Close()
		return fmt.Errorf("write %s: %w", f.Path, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := vw.verify(f); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}
