// SPDX-License-Identifier: MPL-2.0

// Package artifact publishes build outputs under a unique name per run and
// retrieves them later. Stores record every file with its size and SHA-256
// digest in a manifest, which is verified on fetch.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/buildmatrix/buildmatrix/pkg/platform"
)

// ManifestName is the manifest file name.
const ManifestName = "artifact.json"

// IfNoFilesFound values.
const (
	// IfNoFilesFoundWarn publishes an empty artifact and logs a warning.
	IfNoFilesFoundWarn IfNoFilesFound = "warn"
	// IfNoFilesFoundError fails the upload.
	IfNoFilesFoundError IfNoFilesFound = "error"
	// IfNoFilesFoundIgnore publishes nothing and stays silent.
	IfNoFilesFoundIgnore IfNoFilesFound = "ignore"
)

var (
	// ErrArtifactExists is returned when a run already has an artifact with the name.
	ErrArtifactExists = errors.New("artifact already exists")

	// ErrArtifactNotFound is returned by Fetch for unknown artifacts.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrNoFilesFound is returned when patterns match nothing and the request demands files.
	ErrNoFilesFound = errors.New("no files found")

	// ErrInvalidName is returned for empty names or names containing path separators.
	ErrInvalidName = errors.New("invalid artifact name")

	// ErrChecksumMismatch is returned when fetched content does not match the manifest.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrInvalidIfNoFilesFound is the sentinel wrapped by InvalidIfNoFilesFoundError.
	ErrInvalidIfNoFilesFound = errors.New("invalid if-no-files-found value")
)

type (
	// IfNoFilesFound selects the behavior when upload patterns match no files.
	IfNoFilesFound string

	// InvalidIfNoFilesFoundError is returned for an unknown IfNoFilesFound value.
	InvalidIfNoFilesFoundError struct {
		Value IfNoFilesFound
	}

	// UploadRequest describes one artifact upload.
	UploadRequest struct {
		RunID string
		Name  string
		// BaseDir is the directory patterns are relative to (the job workspace)
		BaseDir string
		// Patterns are doublestar globs, files or directories; a leading "!" excludes
		Patterns       []string
		IfNoFilesFound IfNoFilesFound
	}

	// File is one manifest entry.
	File struct {
		Path   string `json:"path"`
		Size   int64  `json:"size"`
		SHA256 string `json:"sha256"`
	}

	// Artifact is a published artifact and its manifest.
	Artifact struct {
		RunID     string    `json:"run_id"`
		Name      string    `json:"name"`
		Files     []File    `json:"files"`
		Size      int64     `json:"size"`
		CreatedAt time.Time `json:"created_at"`
	}

	// Store publishes and retrieves artifacts.
	Store interface {
		// Publish uploads the files matched by req. It returns a nil Artifact
		// when nothing matched and req.IfNoFilesFound is ignore.
		Publish(ctx context.Context, req UploadRequest) (*Artifact, error)
		// List returns the artifacts of a run sorted by name.
		List(ctx context.Context, runID string) ([]Artifact, error)
		// Fetch downloads an artifact into dest and verifies every file.
		Fetch(ctx context.Context, runID, name, dest string) (*Artifact, error)
	}
)

func (e *InvalidIfNoFilesFoundError) Error() string {
	return fmt.Sprintf("invalid if-no-files-found value %q (valid: warn, error, ignore)", e.Value)
}

func (e *InvalidIfNoFilesFoundError) Unwrap() error { return ErrInvalidIfNoFilesFound }

// IsValid returns whether v is a known value. The empty value means warn.
func (v IfNoFilesFound) IsValid() (bool, []error) {
	switch v {
	case "", IfNoFilesFoundWarn, IfNoFilesFoundError, IfNoFilesFoundIgnore:
		return true, nil
	default:
		return false, []error{&InvalidIfNoFilesFoundError{Value: v}}
	}
}

// ValidateName checks that name can be used as a single path segment.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\:*?"<>|`):
		return fmt.Errorf("%w: %q contains a reserved character", ErrInvalidName, name)
	case platform.IsWindowsReservedName(name):
		return fmt.Errorf("%w: %q is a reserved device name", ErrInvalidName, name)
	}
	return nil
}

// File returns the manifest entry for path.
func (a *Artifact) File(path string) (File, bool) {
	for _, f := range a.Files {
		if f.Path == path {
			return f, true
		}
	}
	return File{}, false
}

// destPath joins a manifest path onto dest, rejecting paths that leave it.
func destPath(dest, name string) (string, error) {
	p := filepath.Join(dest, filepath.FromSlash(name))
	rel, err := filepath.Rel(dest, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(name) {
		return "", fmt.Errorf("manifest path %q escapes the destination", name)
	}
	return p, nil
}

// hashFile returns the size and hex SHA-256 digest of the file at path.
func hashFile(path string) (int64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, "", err
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

// verifyingWriter hashes what passes through it.
type verifyingWriter struct {
	w    io.Writer
	hash interface {
		io.Writer
		Sum([]byte) []byte
	}
	n int64
}

func newVerifyingWriter(w io.Writer) *verifyingWriter {
	return &verifyingWriter{w: w, hash: sha256.New()}
}

func (v *verifyingWriter) Write(p []byte) (int, error) {
	n, err := v.w.Write(p)
	v.n += int64(n)
	_, _ = v.hash.Write(p[:n])
	return n, err
}

func (v *verifyingWriter) sum() string {
	return hex.EncodeToString(v.hash.Sum(nil))
}

func (v *verifyingWriter) verify(f File) error {
	sum := v.sum()
	if v.n != f.Size || sum != f.SHA256 {
		return fmt.Errorf("%w: %s (got %d bytes sha256 %s, want %d bytes sha256 %s)", ErrChecksumMismatch, f.Path, v.n, sum, f.Size, f.SHA256)
	}
	return nil
}
