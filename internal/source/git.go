// SPDX-License-Identifier: MPL-2.0

package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
)

// GitFetcher checks out one revision of a git repository into a job workspace.
// Local repositories are cloned with shared object storage, so checkouts do
// not copy history.
type GitFetcher struct {
	// Repo is a local repository path or a remote URL
	Repo string
	// Rev is the ref or commit to check out; empty means HEAD
	Rev string

	auth transport.AuthMethod
}

// NewGitFetcher creates a fetcher for rev of repo. Remote URLs authenticate
// with the first SSH key or token found in the environment.
func NewGitFetcher(repo, rev string) *GitFetcher {
	f := &GitFetcher{Repo: repo, Rev: rev}
	if !isLocal(repo) {
		f.auth = detectAuth(repo)
	}
	return f
}

// Fetch clones the repository into dest without a checkout, then checks out
// the resolved commit with a detached HEAD.
func (f *GitFetcher) Fetch(ctx context.Context, dest string) (Revision, error) {
	local := isLocal(f.Repo)
	url := f.Repo
	if local {
		abs, err := filepath.Abs(f.Repo)
		if err != nil {
			return Revision{}, err
		}
		url = abs
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return Revision{}, fmt.Errorf("create checkout directory: %w", err)
	}

	repo, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL:        url,
		Auth:       f.auth,
		Shared:     local,
		NoCheckout: true,
	})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return Revision{}, fmt.Errorf("%w: %s", ErrNotRepository, f.Repo)
		}
		return Revision{}, fmt.Errorf("clone %s: %w", f.Repo, err)
	}

	rev, err := f.resolve(ctx, repo, local)
	if err != nil {
		return Revision{}, err
	}
	hash := plumbing.NewHash(rev.Commit)

	worktree, err := repo.Worktree()
	if err != nil {
		return Revision{}, fmt.Errorf("open worktree: %w", err)
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
		return Revision{}, fmt.Errorf("checkout %s: %w", rev.Short(), err)
	}
	return rev, nil
}

// resolve finds the commit to check out. Local revisions resolve against the
// origin, whose objects the shared clone can read; remote branches resolve
// through their remote-tracking refs.
func (f *GitFetcher) resolve(ctx context.Context, clone *git.Repository, local bool) (Revision, error) {
	if local {
		if f.Rev == "" {
			return Head(f.Repo)
		}
		commit, err := ResolveRevision(ctx, f.Repo, f.Rev)
		if err != nil {
			return Revision{}, err
		}
		return Revision{Ref: branchRef(f.Rev), Commit: commit}, nil
	}

	if f.Rev == "" {
		head, err := clone.Head()
		if err != nil {
			return Revision{}, fmt.Errorf("%w: HEAD in %s", ErrRevisionNotFound, f.Repo)
		}
		return Revision{Ref: head.Name().String(), Commit: head.Hash().String()}, nil
	}

	short := strings.TrimPrefix(f.Rev, "refs/heads/")
	for _, candidate := range []string{f.Rev, "refs/remotes/origin/" + short} {
		if hash, err := clone.ResolveRevision(plumbing.Revision(candidate)); err == nil {
			return Revision{Ref: branchRef(f.Rev), Commit: hash.String()}, nil
		}
	}
	return Revision{}, fmt.Errorf("%w: %s in %s", ErrRevisionNotFound, f.Rev, f.Repo)
}

// branchRef returns the full branch ref for rev when it names a branch explicitly.
func branchRef(rev string) string {
	if strings.HasPrefix(rev, "refs/heads/") {
		return rev
	}
	return ""
}

// ResolveRevision resolves ref (a branch, tag, ref name or commit) in a local repository.
func ResolveRevision(_ context.Context, repoPath, ref string) (string, error) {
	repo, err := open(repoPath)
	if err != nil {
		return "", err
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return "", fmt.Errorf("%w: %s in %s", ErrRevisionNotFound, ref, repoPath)
	}
	return hash.String(), nil
}

// Head returns the current ref and commit of a local repository. Ref is empty
// when HEAD is detached.
func Head(repoPath string) (Revision, error) {
	repo, err := open(repoPath)
	if err != nil {
		return Revision{}, err
	}
	head, err := repo.Head()
	if err != nil {
		return Revision{}, fmt.Errorf("%w: HEAD in %s", ErrRevisionNotFound, repoPath)
	}

	rev := Revision{Commit: head.Hash().String()}
	if head.Name().IsBranch() {
		rev.Ref = head.Name().String()
	}
	return rev, nil
}

// Branches returns the commit of every local branch, keyed by full ref name.
func Branches(repoPath string) (map[string]string, error) {
	repo, err := open(repoPath)
	if err != nil {
		return nil, err
	}
	iter, err := repo.Branches()
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	defer iter.Close()

	out := make(map[string]string)
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		out[ref.Name().String()] = ref.Hash().String()
		return nil
	})
	return out, err
}

// GitDir returns the .git directory of the repository containing path.
func GitDir(path string) (string, error) {
	repo, err := open(path)
	if err != nil {
		return "", err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("%w: %s has no worktree", ErrNotRepository, path)
	}
	return filepath.Join(wt.Filesystem.Root(), git.GitDirName), nil
}

func open(path string) (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotRepository, path)
	}
	return repo, nil
}

// IsRemote reports whether repo is a URL rather than a local path.
func IsRemote(repo string) bool {
	return strings.Contains(repo, "://") || strings.HasPrefix(repo, "git@")
}

func isLocal(repo string) bool { return !IsRemote(repo) }

func detectAuth(url string) transport.AuthMethod {
	if strings.HasPrefix(url, "git@") || strings.HasPrefix(url, "ssh://") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
			keyPath := filepath.Join(home, ".ssh", name)
			if _, err := os.Stat(keyPath); err != nil {
				continue
			}
			if auth, err := ssh.NewPublicKeysFromFile("git", keyPath, ""); err == nil {
				return auth
			}
		}
		return nil
	}

	for _, tok := range []struct{ env, user string }{
		{"GITHUB_TOKEN", "x-access-token"},
		{"GITLAB_TOKEN", "gitlab-ci-token"},
		{"GIT_TOKEN", "git"},
	} {
		if token := os.Getenv(tok.env); token != "" {
			return &http.BasicAuth{Username: tok.user, Password: token}
		}
	}
	return nil
}
