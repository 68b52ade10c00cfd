// Package domain defines the core business entities and interfaces for slippy-catchup.
package domain

import "context"

// GitContext contains derived git information used to locate build history.
// This struct is populated by LocalGitRepository.GetGitContext() from the local repository.
type GitContext struct {
	// HeadSHA is the full 40-character commit SHA of HEAD.
	// Empty when HEAD is unborn (e.g. a fresh bare mirror).
	HeadSHA string

	// Branch is the current branch name (empty string if HEAD is detached).
	Branch string

	// Repository is the repository name in owner/repo format.
	// Derived from the 'origin' remote URL.
	Repository string

	// IsDetached indicates if HEAD is detached (not on a branch).
	IsDetached bool
}

// Remote is a named upstream repository whose refs live under refs/remotes/<name>/.
type Remote struct {
	Name string
}

// RemoteNames returns the names of the given remotes in order.
func RemoteNames(remotes []Remote) []string {
	names := make([]string, 0, len(remotes))
	for _, r := range remotes {
		names = append(names, r.Name)
	}
	return names
}

// Branch associates a ref name with the commit it was resolved to.
type Branch struct {
	Name string
	SHA  string
}

// Revision is one commit to build plus every ref it was reached through.
type Revision struct {
	SHA      string
	Branches []Branch
}

// NewRevision creates a Revision reached through a single ref.
func NewRevision(sha, refName string) Revision {
	return Revision{
		SHA:      sha,
		Branches: []Branch{{Name: refName, SHA: sha}},
	}
}

// HasBranch reports whether the revision was already reached through name.
func (r *Revision) HasBranch(name string) bool {
	for _, b := range r.Branches {
		if b.Name == name {
			return true
		}
	}
	return false
}

// BranchNames returns the ref names of the revision in the order they were added.
func (r *Revision) BranchNames() []string {
	names := make([]string, 0, len(r.Branches))
	for _, b := range r.Branches {
		names = append(names, b.Name)
	}
	return names
}

// RevParseResult is the outcome of resolving a single revision expression.
// NotFound is set when the expression names nothing in the repository.
type RevParseResult struct {
	SHA      string
	NotFound bool
}

// RevListResult is the outcome of a range query.
// Commits are ordered newest first. NotFound is set when either end of the
// range does not resolve.
type RevListResult struct {
	Commits  []string
	NotFound bool
}

// ResolveInput contains the parameters for one candidate resolution.
type ResolveInput struct {
	// IsPollCall selects poll mode (discover new work) over build mode.
	IsPollCall bool

	// BranchSpec is the raw branch, tag, ref or commit expression.
	BranchSpec string

	// Remotes is the ordered list of configured remotes.
	Remotes []Remote

	// Record is the job's build history.
	Record BuildRecord
}

// ResolveOutput contains the revisions to build, in build order.
type ResolveOutput struct {
	Revisions []Revision

	// ResolvedBy indicates which stage produced the revisions.
	ResolvedBy string
}

// Values for ResolveOutput.ResolvedBy.
const (
	ResolvedByDetached  = "detached"
	ResolvedByQualified = "qualified"
	ResolvedByRawRef    = "raw-ref"
	ResolvedByNone      = "none"
)

// DetachedBranchName labels a revision selected by its commit hash.
const DetachedBranchName = "detached"

// DefaultAncestryDepth is the default number of commits to walk when searching build history.
const DefaultAncestryDepth = 25

// StaticBuildRecord is a BuildRecord backed by a fixed set of commits.
// It is used when no slip store is available. Commits are compared as given,
// so callers pass full SHAs.
type StaticBuildRecord struct {
	lastBuilt string
	built     map[string]struct{}
}

// NewStaticBuildRecord creates a record whose last build is lastBuilt.
// lastBuilt is always considered built.
func NewStaticBuildRecord(lastBuilt string, built ...string) *StaticBuildRecord {
	rec := &StaticBuildRecord{
		lastBuilt: lastBuilt,
		built:     make(map[string]struct{}, len(built)+1),
	}
	if lastBuilt != "" {
		rec.built[lastBuilt] = struct{}{}
	}
	for _, sha := range built {
		rec.built[sha] = struct{}{}
	}
	return rec
}

// LastBuiltRevision returns the last built commit, or "" if nothing was built.
func (s *StaticBuildRecord) LastBuiltRevision() string {
	return s.lastBuilt
}

// HasBeenBuilt reports whether sha is part of the record.
func (s *StaticBuildRecord) HasBeenBuilt(_ context.Context, sha string) (bool, error) {
	_, ok := s.built[sha]
	return ok, nil
}
