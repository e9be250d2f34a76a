// SPDX-License-Identifier: MPL-2.0

// Package trigger starts builds on pushes to a local git repository.
//
// It watches the repository's ref storage (HEAD, refs/heads and packed-refs),
// waits for a quiet period after the last change, and reports every branch
// whose commit moved since the previous scan.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/buildmatrix/buildmatrix/internal/logging"
	"github.com/buildmatrix/buildmatrix/internal/source"
)

// defaultDebounce coalesces the lock/rename/write sequence git performs when
// updating a ref.
const defaultDebounce = 300 * time.Millisecond

const branchPrefix = "refs/heads/"

// ErrAlreadyRunning is returned when Run is called a second time.
var ErrAlreadyRunning = errors.New("trigger: Run called more than once")

type (
	// Push is a branch that moved to a new commit.
	Push struct {
		// Ref is the full ref name, e.g. refs/heads/master
		Ref string
		// Revision is the new commit
		Revision string
	}

	// Config holds the parameters for a Watcher.
	Config struct {
		// RepoDir is any path inside the repository.
		RepoDir string

		// Branches are doublestar patterns matched against the short branch
		// name. Empty matches every branch.
		Branches []string

		// Debounce is the quiet period after the last ref change before the
		// repository is scanned. Zero or negative uses defaultDebounce.
		Debounce time.Duration

		// OnPush is called once per moved branch, in ref order. Calls never
		// overlap.
		OnPush func(ctx context.Context, push Push) error
	}

	// Watcher reports pushes to a local repository. Run must be called exactly once.
	Watcher struct {
		cfg      Config
		fsw      *fsnotify.Watcher
		gitDir   string
		debounce time.Duration
		started  atomic.Bool

		mu   sync.Mutex
		seen map[string]string
	}
)

// BranchName returns the short name of a branch ref.
func (p Push) BranchName() string { return strings.TrimPrefix(p.Ref, branchPrefix) }

// New creates a Watcher. Branches existing at creation are recorded as seen
// and do not fire until they move.
func New(cfg Config) (*Watcher, error) {
	for _, pat := range cfg.Branches {
		if !doublestar.ValidatePattern(pat) {
			return nil, fmt.Errorf("trigger: invalid branch pattern %q: %w", pat, doublestar.ErrBadPattern)
		}
	}

	gitDir, err := source.GitDir(cfg.RepoDir)
	if err != nil {
		return nil, fmt.Errorf("trigger: %w", err)
	}
	seen, err := source.Branches(cfg.RepoDir)
	if err != nil {
		return nil, fmt.Errorf("trigger: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("trigger: create fsnotify watcher: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	w := &Watcher{cfg: cfg, fsw: fsw, gitDir: gitDir, debounce: debounce, seen: seen}
	if err := w.addDirectories(); err != nil {
		fsw.Close() //nolint:errcheck // best-effort cleanup
		return nil, err
	}
	return w, nil
}

// Matches reports whether a short branch name passes the branch filter.
func (w *Watcher) Matches(branch string) bool {
	if len(w.cfg.Branches) == 0 {
		return true
	}
	for _, pat := range w.cfg.Branches {
		if ok, err := doublestar.Match(pat, branch); err == nil && ok {
			return true
		}
	}
	return false
}

// Scan compares the repository's branches with the previous scan and returns
// the matching branches that moved, sorted by ref. Deleted branches are
// forgotten.
func (w *Watcher) Scan() ([]Push, error) {
	current, err := source.Branches(w.cfg.RepoDir)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var pushes []Push
	for ref, commit := range current {
		if w.seen[ref] == commit {
			continue
		}
		if w.Matches(strings.TrimPrefix(ref, branchPrefix)) {
			pushes = append(pushes, Push{Ref: ref, Revision: commit})
		}
	}
	w.seen = current

	slices.SortFunc(pushes, func(a, b Push) int { return strings.Compare(a.Ref, b.Ref) })
	return pushes, nil
}

// Run blocks until ctx is canceled, scanning the repository after ref changes
// and dispatching OnPush. It returns nil on cancellation and an error when the
// underlying watcher breaks.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	logger := logging.FromContext(ctx)

	var (
		mu      sync.Mutex
		timer   *time.Timer
		running atomic.Bool
	)

	fire := func() {
		if ctx.Err() != nil {
			return
		}
		if !running.CompareAndSwap(false, true) {
			// A build is still being dispatched; look again once it is done.
			mu.Lock()
			timer.Reset(w.debounce)
			mu.Unlock()
			return
		}
		defer running.Store(false)

		pushes, err := w.Scan()
		if err != nil {
			logger.Error("scan repository", "error", err)
			return
		}
		for _, p := range pushes {
			if ctx.Err() != nil {
				return
			}
			logger.Info("push detected", "branch", p.BranchName(), "revision", p.Revision)
			if w.cfg.OnPush == nil {
				continue
			}
			if err := w.cfg.OnPush(ctx, p); err != nil {
				logger.Error("push handler failed", "branch", p.BranchName(), "error", err)
			}
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		if err := w.fsw.Close(); err != nil {
			logger.Warn("close fsnotify", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("trigger: fsnotify event channel closed unexpectedly")
			}
			if !w.relevant(evt.Name) {
				continue
			}
			if evt.Has(fsnotify.Create) {
				w.maybeAddDir(ctx, evt.Name)
			}

			mu.Lock()
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("trigger: fsnotify error channel closed unexpectedly")
			}
			if isFatalFsnotifyError(err) {
				return fmt.Errorf("trigger: fatal fsnotify error: %w", err)
			}
			logger.Warn("fsnotify error", "error", err)
		}
	}
}

// relevant reports whether a changed path is part of the branch ref storage.
func (w *Watcher) relevant(path string) bool {
	rel, err := filepath.Rel(w.gitDir, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if strings.HasSuffix(rel, ".lock") {
		return false
	}
	switch rel {
	case "HEAD", "packed-refs":
		return true
	}
	ok, _ := doublestar.Match("refs/heads/**", rel)
	return ok
}

// addDirectories watches the git directory itself (HEAD, packed-refs) and
// every directory below refs/heads.
func (w *Watcher) addDirectories() error {
	if err := w.fsw.Add(w.gitDir); err != nil {
		return fmt.Errorf("trigger: watch %q: %w", w.gitDir, err)
	}
	heads := filepath.Join(w.gitDir, "refs", "heads")
	err := filepath.WalkDir(heads, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			return fmt.Errorf("trigger: watch %q: %w", path, addErr)
		}
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// maybeAddDir extends the watch to branch namespaces created later
// (refs/heads/feature/...).
func (w *Watcher) maybeAddDir(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.fsw.Add(path); err != nil {
		logging.FromContext(ctx).Warn("watch new ref directory", "dir", path, "error", err)
	}
}
