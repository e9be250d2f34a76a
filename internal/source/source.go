// SPDX-License-Identifier: MPL-2.0

// Package source retrieves the source tree a build job works on.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

var (
	// ErrNotRepository is returned when a path is not a git repository.
	ErrNotRepository = errors.New("not a git repository")

	// ErrRevisionNotFound is returned when a ref or commit cannot be resolved.
	ErrRevisionNotFound = errors.New("revision not found")
)

type (
	// Revision identifies the checked-out state of a source tree.
	Revision struct {
		// Ref is the symbolic ref (refs/heads/main), empty when detached or unknown
		Ref string
		// Commit is the full commit hash, empty for plain directories
		Commit string
	}

	// Fetcher materializes a source tree into dest.
	Fetcher interface {
		Fetch(ctx context.Context, dest string) (Revision, error)
	}

	// DirFetcher copies a plain directory tree. The .git directory is skipped.
	DirFetcher struct {
		Dir string
	}
)

// Short returns the abbreviated commit hash.
func (r Revision) Short() string {
	if len(r.Commit) > 12 {
		return r.Commit[:12]
	}
	return r.Commit
}

// Fetch copies the directory into dest.
func (f DirFetcher) Fetch(ctx context.Context, dest string) (Revision, error) {
	src, err := filepath.Abs(f.Dir)
	if err != nil {
		return Revision{}, err
	}

	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o755)
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		default:
			return copyFile(path, target)
		}
	})
	if err != nil {
		return Revision{}, fmt.Errorf("copy %s: %w", f.Dir, err)
	}
	return Revision{}, nil
}

func copyFile(src, dst string) (err error) {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	_, err = io.Copy(out, in)
	return err
}
