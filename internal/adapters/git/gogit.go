// Package git provides adapters for interacting with local Git repositories.
// This package implements the domain.LocalGitRepository interface using go-git/v5.
package git

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/MyCarrier-DevOps/slippy-catchup/internal/domain"
)

// Logger defines the logging interface for the git adapter.
// This interface enables dependency injection and testability.
type Logger interface {
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
}

// GoGitRepository implements domain.LocalGitRepository using go-git/v5.
// It answers rev-parse and rev-list queries against a local mirror; remote refs
// are expected to be fetched already.
type GoGitRepository struct {
	repo   *git.Repository
	path   string
	logger Logger
}

// NewGoGitRepository creates a new GoGitRepository for the given path.
// The path can be either a working directory or a bare repository.
// Returns domain.ErrRepositoryNotFound if the path is not a valid Git repository.
func NewGoGitRepository(path string, log Logger) (*GoGitRepository, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRepositoryNotFound, path)
	}

	return &GoGitRepository{
		repo:   repo,
		path:   path,
		logger: log,
	}, nil
}

// RevParse resolves rev to a commit SHA. Ref names are expanded the way git does
// (rev, refs/rev, refs/tags/rev, refs/heads/rev, refs/remotes/rev, ...), abbreviated
// hashes are accepted and annotated tags are peeled.
func (r *GoGitRepository) RevParse(ctx context.Context, rev string) (domain.RevParseResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.RevParseResult{}, err
	}

	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		if isNotFound(err) {
			return domain.RevParseResult{NotFound: true}, nil
		}
		return domain.RevParseResult{}, fmt.Errorf("failed to resolve revision %s: %w", rev, err)
	}

	return domain.RevParseResult{SHA: hash.String()}, nil
}

// RevList returns the commits reachable from include but not from exclude, ordered
// newest first by committer time, like `git rev-list exclude..include`.
func (r *GoGitRepository) RevList(ctx context.Context, exclude, include string) (domain.RevListResult, error) {
	from, err := r.RevParse(ctx, exclude)
	if err != nil || from.NotFound {
		return domain.RevListResult{NotFound: from.NotFound}, err
	}
	to, err := r.RevParse(ctx, include)
	if err != nil || to.NotFound {
		return domain.RevListResult{NotFound: to.NotFound}, err
	}
	if from.SHA == to.SHA {
		return domain.RevListResult{}, nil
	}

	fromCommit, err := r.repo.CommitObject(plumbing.NewHash(from.SHA))
	if err != nil {
		return domain.RevListResult{}, fmt.Errorf("failed to get commit object for %s: %w", exclude, err)
	}
	toCommit, err := r.repo.CommitObject(plumbing.NewHash(to.SHA))
	if err != nil {
		return domain.RevListResult{}, fmt.Errorf("failed to get commit object for %s: %w", include, err)
	}

	// Everything reachable from exclude is hidden from the second walk.
	hidden := make(map[plumbing.Hash]bool)
	err = object.NewCommitPreorderIter(fromCommit, nil, nil).ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		hidden[c.Hash] = true
		return nil
	})
	if err != nil {
		return domain.RevListResult{}, fmt.Errorf("failed to walk commit history of %s: %w", exclude, err)
	}

	var commits []string
	err = object.NewCommitIterCTime(toCommit, hidden, nil).ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		commits = append(commits, c.Hash.String())
		return nil
	})
	if err != nil {
		return domain.RevListResult{}, fmt.Errorf("failed to walk commit history of %s: %w", include, err)
	}

	r.logger.Debug(ctx, "listed commit range", map[string]interface{}{
		"exclude":       exclude,
		"include":       include,
		"commits_found": len(commits),
	})

	return domain.RevListResult{Commits: commits}, nil
}

// Remotes returns the configured remotes sorted by name, with 'origin' first.
func (r *GoGitRepository) Remotes(ctx context.Context) ([]domain.Remote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	remotes, err := r.repo.Remotes()
	if err != nil {
		return nil, fmt.Errorf("failed to list remotes: %w", err)
	}

	names := make([]string, 0, len(remotes))
	for _, remote := range remotes {
		names = append(names, remote.Config().Name)
	}
	sortRemoteNames(names)

	result := make([]domain.Remote, 0, len(names))
	for _, name := range names {
		result = append(result, domain.Remote{Name: name})
	}
	return result, nil
}

// GetGitContext extracts all necessary context from the repository.
// Returns GitContext with HEAD SHA, branch name, and repository name.
// Logs a warning if HEAD is detached but continues with empty branch name.
// An unborn HEAD leaves HeadSHA empty; mirrors that only carry remote refs
// look like this.
// Returns domain.ErrNoRemoteOrigin if no origin remote is configured.
func (r *GoGitRepository) GetGitContext(ctx context.Context) (*domain.GitContext, error) {
	gitCtx := &domain.GitContext{}

	head, err := r.repo.Head()
	switch {
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		r.logger.Warn(ctx, "HEAD is unborn; no local history", map[string]interface{}{
			"path": r.path,
		})
	case err != nil:
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	case head.Name().IsBranch():
		gitCtx.HeadSHA = head.Hash().String()
		gitCtx.Branch = head.Name().Short()
	default:
		gitCtx.HeadSHA = head.Hash().String()
		gitCtx.IsDetached = true
		r.logger.Warn(ctx, "HEAD is detached; branch name will be empty", map[string]interface{}{
			"head_sha": gitCtx.HeadSHA,
			"path":     r.path,
		})
	}

	remote, err := r.repo.Remote("origin")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get origin remote: %w", domain.ErrNoRemoteOrigin, err)
	}

	urls := remote.Config().URLs
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: origin remote has no URLs configured", domain.ErrNoRemoteOrigin)
	}

	repoName, err := parseRepoFromURL(urls[0])
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse URL: %w", domain.ErrInvalidRemoteURL, err)
	}
	gitCtx.Repository = repoName

	r.logger.Debug(ctx, "extracted git context", map[string]interface{}{
		"head_sha":    gitCtx.HeadSHA,
		"branch":      gitCtx.Branch,
		"repository":  gitCtx.Repository,
		"is_detached": gitCtx.IsDetached,
	})

	return gitCtx, nil
}

// GetCommitAncestry walks the first-parent chain from HEAD, returning commit SHAs.
// Returns commits in order from newest (HEAD) to oldest, up to depth commits.
// Commits brought in by merges are skipped: they were built on their own branch.
func (r *GoGitRepository) GetCommitAncestry(ctx context.Context, depth int) ([]string, error) {
	if depth <= 0 {
		depth = domain.DefaultAncestryDepth
	}

	head, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, domain.ErrUnbornHead
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}

	commit, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to get commit object for HEAD: %w", err)
	}

	var commits []string
	for commit != nil && len(commits) < depth {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		commits = append(commits, commit.Hash.String())
		if commit.NumParents() == 0 {
			break
		}
		commit, err = commit.Parent(0)
		if err != nil {
			return nil, fmt.Errorf("failed to walk commit history: %w", err)
		}
	}

	if len(commits) == 0 {
		return nil, domain.ErrEmptyAncestry
	}

	r.logger.Debug(ctx, "walked commit ancestry", map[string]interface{}{
		"depth_requested": depth,
		"commits_found":   len(commits),
		"head_sha":        commits[0],
		"oldest_sha":      commits[len(commits)-1],
	})

	return commits, nil
}

// Close releases any resources held by the repository.
// For go-git, this is a no-op as the repository doesn't hold persistent resources.
func (r *GoGitRepository) Close() error {
	return nil
}

// isNotFound reports whether err means the revision names nothing.
// go-git reports malformed revision expressions with an unexported error type,
// so those are recognised by message; git rev-parse rejects them the same way.
func isNotFound(err error) bool {
	if errors.Is(err, plumbing.ErrReferenceNotFound) || errors.Is(err, plumbing.ErrObjectNotFound) {
		return true
	}
	return strings.HasPrefix(err.Error(), "Revision invalid")
}

// sortRemoteNames sorts names alphabetically and moves 'origin' to the front.
func sortRemoteNames(names []string) {
	sort.Slice(names, func(i, j int) bool {
		if names[i] == "origin" || names[j] == "origin" {
			return names[i] == "origin" && names[j] != "origin"
		}
		return names[i] < names[j]
	})
}

// Regular expressions for parsing Git remote URLs.
var (
	// httpsURLPattern matches HTTPS URLs like:
	// https://github.com/owner/repo.git
	// https://github.com/owner/repo
	httpsURLPattern = regexp.MustCompile(`^https?://[^/]+/([^/]+)/([^/]+?)(?:\.git)?$`)

	// sshURLPattern matches SSH URLs like:
	// git@github.com:owner/repo.git
	// git@github.com:owner/repo
	sshURLPattern = regexp.MustCompile(`^git@[^:]+:([^/]+)/([^/]+?)(?:\.git)?$`)
)

// parseRepoFromURL extracts owner/repo from a Git remote URL.
// Supports both HTTPS and SSH formats:
//   - https://github.com/owner/repo.git -> owner/repo
//   - git@github.com:owner/repo.git -> owner/repo
func parseRepoFromURL(url string) (string, error) {
	url = strings.TrimSpace(url)

	if matches := httpsURLPattern.FindStringSubmatch(url); len(matches) == 3 {
		return matches[1] + "/" + matches[2], nil
	}

	if matches := sshURLPattern.FindStringSubmatch(url); len(matches) == 3 {
		return matches[1] + "/" + matches[2], nil
	}

	return "", fmt.Errorf("unrecognized URL format: %s", url)
}
