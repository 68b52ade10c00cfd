// Package domain defines the core business entities and interfaces for slippy-catchup.
// This package contains no external dependencies and represents the innermost layer
// of the CLEAN architecture.
package domain

import (
	"context"
	"errors"
)

// Domain errors for git operations and candidate resolution.
var (
	// ErrRepositoryNotFound indicates the specified path is not a valid Git repository.
	ErrRepositoryNotFound = errors.New("git repository not found at specified path")

	// ErrNoRemoteOrigin indicates no 'origin' remote is configured in the repository.
	ErrNoRemoteOrigin = errors.New("no 'origin' remote configured; cannot determine repository name")

	// ErrInvalidRemoteURL indicates the remote URL could not be parsed to extract owner/repo.
	ErrInvalidRemoteURL = errors.New("could not parse repository name from remote URL")

	// ErrEmptyAncestry indicates the commit ancestry walk returned no commits.
	ErrEmptyAncestry = errors.New("commit ancestry is empty")

	// ErrEmptyBranchSpec indicates no branch spec was supplied.
	ErrEmptyBranchSpec = errors.New("branch spec is required")

	// ErrNoRemotes indicates neither configuration nor the repository provides a remote.
	ErrNoRemotes = errors.New("no remotes configured")

	// ErrUnknownRevision indicates a user-supplied revision names no commit.
	ErrUnknownRevision = errors.New("revision does not name a commit")

	// ErrUnbornHead indicates HEAD points at a branch with no commits yet.
	ErrUnbornHead = errors.New("HEAD has no commits")
)

// RevisionSource is the Git layer the resolver queries.
// Lookups that name nothing report NotFound in their result; an error always
// means the repository could not be read.
type RevisionSource interface {
	// RevParse resolves rev (ref name, short ref or commit hash) to a commit.
	RevParse(ctx context.Context, rev string) (RevParseResult, error)

	// RevList returns the commits reachable from include but not from exclude,
	// newest first.
	RevList(ctx context.Context, exclude, include string) (RevListResult, error)
}

// LocalGitRepository provides revision lookups, remotes and commit ancestry from
// a local repository mirror.
type LocalGitRepository interface {
	RevisionSource

	// Remotes returns the configured remotes, sorted by name with 'origin' first.
	Remotes(ctx context.Context) ([]Remote, error)

	// GetGitContext extracts HEAD SHA, branch name and the repository name derived
	// from the origin remote.
	// Returns ErrNoRemoteOrigin if no origin remote is configured.
	GetGitContext(ctx context.Context) (*GitContext, error)

	// GetCommitAncestry walks the first-parent chain from HEAD, returning commit SHAs.
	// Returns commits in order from newest (HEAD) to oldest, up to depth commits.
	GetCommitAncestry(ctx context.Context, depth int) ([]string, error)

	// Close releases any resources held by the repository.
	Close() error
}

// BuildRecord is the job's build history.
type BuildRecord interface {
	// LastBuiltRevision returns the commit of the last build, or "" before the first build.
	LastBuiltRevision() string

	// HasBeenBuilt reports whether sha was built before.
	HasBeenBuilt(ctx context.Context, sha string) (bool, error)
}

// OutputWriter writes resolved revisions to an output destination.
type OutputWriter interface {
	// WriteRevisions writes the revisions in build order.
	WriteRevisions(revisions []Revision) error
}

// SlipFinder queries the slip store. A routing slip exists for every commit the
// pipeline has processed.
type SlipFinder interface {
	// FindByCommits searches for a slip matching any of the given commits.
	// Returns the slip, the matched commit SHA, and any error.
	// Returns (nil, "", nil) if no matching slip is found.
	FindByCommits(ctx context.Context, repository string, commits []string) (*Slip, string, error)

	// Close releases any resources held by the finder.
	Close() error
}

// Slip represents a routing slip found in the store.
type Slip struct {
	// CorrelationID is the unique identifier for the slip.
	CorrelationID string
}

// Resolver resolves the candidate revisions of a branch spec.
type Resolver interface {
	Resolve(ctx context.Context, input ResolveInput) (*ResolveOutput, error)
}

// HistoryLoader builds a BuildRecord from the slip store.
type HistoryLoader interface {
	Load(ctx context.Context, depth int) (BuildRecord, error)
}
