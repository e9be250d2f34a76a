// SPDX-License-Identifier: MPL-2.0

package artifact

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Match is a file selected for upload.
type Match struct {
	// Source is the file's path on disk
	Source string
	// Path is the slash-separated name inside the artifact
	Path string
}

// Collect resolves upload patterns under baseDir.
//
// A pattern naming a directory selects everything below it, and the
// directory itself does not appear in artifact paths ("dist" uploads the
// contents of dist). Artifact paths are relative to the deepest directory
// shared by all include patterns. Patterns starting with "!" exclude files
// matched by any include pattern.
func Collect(baseDir string, patterns []string) ([]Match, error) {
	fsys := os.DirFS(baseDir)

	var includes, excludes []string
	for _, raw := range patterns {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		exclude := strings.HasPrefix(raw, "!")
		p, err := cleanPattern(strings.TrimPrefix(raw, "!"))
		if err != nil {
			return nil, err
		}
		if exclude {
			excludes = append(excludes, p)
		} else {
			includes = append(includes, p)
		}
	}

	var roots, files []string
	for _, p := range includes {
		root, matched, err := expand(fsys, p)
		if err != nil {
			return nil, err
		}
		roots = append(roots, root)
		files = append(files, matched...)
	}

	slices.Sort(files)
	files = slices.Compact(files)
	files = slices.DeleteFunc(files, func(f string) bool {
		return slices.ContainsFunc(excludes, func(ex string) bool {
			ok, _ := doublestar.Match(ex, f)
			return ok
		})
	})

	root := commonRoot(roots)
	out := make([]Match, 0, len(files))
	for _, f := range files {
		name := f
		if root != "." {
			name = strings.TrimPrefix(f, root+"/")
		}
		out = append(out, Match{Source: filepath.Join(baseDir, filepath.FromSlash(f)), Path: name})
	}
	return out, nil
}

func cleanPattern(p string) (string, error) {
	p = filepath.ToSlash(p)
	if path.IsAbs(p) || filepath.IsAbs(p) {
		return "", fmt.Errorf("upload pattern %q must be relative to the workspace", p)
	}
	p = path.Clean(p)
	if p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("upload pattern %q escapes the workspace", p)
	}
	if !doublestar.ValidatePattern(p) {
		return "", fmt.Errorf("invalid upload pattern %q", p)
	}
	return p, nil
}

// expand returns the static root of p and the regular files it selects.
func expand(fsys fs.FS, p string) (string, []string, error) {
	if !strings.ContainsAny(p, "*?[{") {
		info, err := fs.Stat(fsys, p)
		switch {
		case err != nil:
			return path.Dir(p), nil, nil
		case info.IsDir():
			files, err := walkFiles(fsys, p)
			return p, files, err
		case info.Mode().IsRegular():
			return path.Dir(p), []string{p}, nil
		default:
			return path.Dir(p), nil, nil
		}
	}

	root, _ := doublestar.SplitPattern(p)
	matches, err := doublestar.Glob(fsys, p)
	if err != nil {
		return "", nil, fmt.Errorf("expand %q: %w", p, err)
	}
	var files []string
	for _, m := range matches {
		if info, err := fs.Stat(fsys, m); err == nil && info.Mode().IsRegular() {
			files = append(files, m)
		} else if err == nil && info.IsDir() {
			sub, err := walkFiles(fsys, m)
			if err != nil {
				return "", nil, err
			}
			files = append(files, sub...)
		}
	}
	return root, files, nil
}

func walkFiles(fsys fs.FS, dir string) ([]string, error) {
	var files []string
	err := fs.WalkDir(fsys, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	return files, err
}

// commonRoot returns the deepest directory shared by all roots.
func commonRoot(roots []string) string {
	if len(roots) == 0 {
		return "."
	}
	common := strings.Split(roots[0], "/")
	for _, r := range roots[1:] {
		parts := strings.Split(r, "/")
		n := 0
		for n < len(common) && n < len(parts) && common[n] == parts[n] {
			n++
		}
		common = common[:n]
	}
	if len(common) == 0 || (len(common) == 1 && common[0] == ".") {
		return "."
	}
	return strings.Join(common, "/")
}
