// Package repo synchronises local git working copies: pulling the upstream
// dataset before a run and committing the regenerated outputs after it.
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrNothingToCommit is returned by Commit when the worktree has no changes.
// Publish treats it as success.
var ErrNothingToCommit = errors.New("nothing to commit")

// Repo is an opened working copy.
type Repo struct {
	path string
	git  *git.Repository
}

// Open opens the repository at path. Parent directories are not searched.
func Open(path string) (*Repo, error) {
	r, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", path, err)
	}
	return &Repo{path: path, git: r}, nil
}

// Path returns the working copy location.
func (r *Repo) Path() string { return r.path }

// Pull fast-forwards the current branch from remote. Already being up to
// date is not an error.
func (r *Repo) Pull(ctx context.Context, remote string) error {
	wt, err := r.git.Worktree()
	if err != nil {
		return fmt.Errorf("pull %s: %w", r.path, err)
	}
	err = wt.PullContext(ctx, &git.PullOptions{RemoteName: remote})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("pull %s from %s: %w", r.path, remote, err)
	}
	return nil
}

// PublishOptions configures Publish.
type PublishOptions struct {
	Message     string
	AuthorName  string
	AuthorEmail string
	RunID       string // appended as a Run-Id trailer when set
	Remote      string
	Push        bool
}

// Publish stages every change in the worktree, commits it and optionally
// pushes. committed is false when there was nothing to commit; in that case
// nothing is pushed either.
func (r *Repo) Publish(ctx context.Context, opts PublishOptions) (committed bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	msg := opts.Message
	if opts.RunID != "" {
		msg += "\n\nRun-Id: " + opts.RunID
	}

	if err := r.Commit(msg, opts.AuthorName, opts.AuthorEmail); err != nil {
		if errors.Is(err, ErrNothingToCommit) {
			return false, nil
		}
		return false, err
	}

	if opts.Push {
		if err := r.Push(ctx, opts.Remote); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Commit stages all changes (like git add --all) and records a commit.
// Files deleted from the worktree are removed from the index explicitly;
// AddOptions.All alone does not get them into the commit tree.
func (r *Repo) Commit(message, name, email string) error {
	wt, err := r.git.Worktree()
	if err != nil {
		return fmt.Errorf("commit %s: %w", r.path, err)
	}

	before, err := wt.Status()
	if err != nil {
		return fmt.Errorf("status %s: %w", r.path, err)
	}
	for path, fs := range before {
		if fs.Worktree != git.Deleted {
			continue
		}
		if _, err := wt.Remove(path); err != nil && !errors.Is(err, index.ErrEntryNotFound) {
			return fmt.Errorf("stage deletion of %s in %s: %w", path, r.path, err)
		}
	}

	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("stage changes in %s: %w", r.path, err)
	}

	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("status %s: %w", r.path, err)
	}
	if status.IsClean() {
		return ErrNothingToCommit
	}

	// Emptiness was decided by the status check above.
	_, err = wt.Commit(message, &git.CommitOptions{
		Author:            &object.Signature{Name: name, Email: email, When: time.Now()},
		AllowEmptyCommits: true,
	})
	if err != nil {
		return fmt.Errorf("commit %s: %w", r.path, err)
	}
	return nil
}

// Push sends the current branch to remote.
func (r *Repo) Push(ctx context.Context, remote string) error {
	err := r.git.PushContext(ctx, &git.PushOptions{RemoteName: remote})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("push %s to %s: %w", r.path, remote, err)
	}
	return nil
}

// HeadMessage returns the message of the commit HEAD points at.
func (r *Repo) HeadMessage() (string, error) {
	ref, err := r.git.Head()
	if err != nil {
		return "", err
	}
	c, err := r.git.CommitObject(ref.Hash())
	if err != nil {
		return "", err
	}
	return c.Message, nil
}
