// Package usecases contains the application business logic.
// This package orchestrates domain entities and interfaces to fulfill use cases.
package usecases

import (
	"context"
	"fmt"
	"regexp"
	"slices"

	"github.com/MyCarrier-DevOps/slippy-catchup/internal/domain"
)

// Logger defines the logging interface required by the use cases.
// This abstracts the logger dependency to avoid coupling to a specific implementation.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields map[string]interface{})
}

// Options configures a CandidateResolver.
type Options struct {
	// Verbose enables trace lines for every qualification attempt and skip decision.
	Verbose bool
}

// commitHashPattern matches a full or abbreviated lowercase commit hash.
var commitHashPattern = regexp.MustCompile(`^[0-9a-f]{6,40}$`)

// CandidateResolver determines which commits of a branch spec have not been built yet.
// It holds no per-call state and may be shared between goroutines if its
// RevisionSource and Logger may.
type CandidateResolver struct {
	git     domain.RevisionSource
	logger  Logger
	verbose bool
}

// NewCandidateResolver creates a new CandidateResolver with the given dependencies.
func NewCandidateResolver(git domain.RevisionSource, log Logger, opts Options) *CandidateResolver {
	return &CandidateResolver{
		git:     git,
		logger:  log,
		verbose: opts.Verbose,
	}
}

// Resolve returns the revisions to build for input.BranchSpec, oldest first per ref.
//
// In build mode a spec that looks like a commit hash and resolves is returned as a
// single detached revision. Otherwise the spec is qualified against every remote,
// each candidate ref is enumerated and the results are merged. When nothing is found
// the raw spec is tried as a ref (tags and other non-branch refs). An empty result
// is not an error.
func (r *CandidateResolver) Resolve(ctx context.Context, input domain.ResolveInput) (*domain.ResolveOutput, error) {
	if input.BranchSpec == "" {
		return nil, domain.ErrEmptyBranchSpec
	}
	if input.Record == nil {
		input.Record = domain.NewStaticBuildRecord("")
	}

	r.trace(ctx, "considering branches to build", map[string]interface{}{
		"poll":        input.IsPollCall,
		"branch_spec": input.BranchSpec,
		"last_built":  input.Record.LastBuiltRevision(),
		"remotes":     domain.RemoteNames(input.Remotes),
	})

	if !input.IsPollCall && commitHashPattern.MatchString(input.BranchSpec) {
		rev, ok, err := r.resolveDetached(ctx, input.BranchSpec)
		if err != nil {
			return nil, err
		}
		if ok {
			return &domain.ResolveOutput{
				Revisions:  []domain.Revision{rev},
				ResolvedBy: domain.ResolvedByDetached,
			}, nil
		}
	}

	acc := newRevisionSet()
	tried := make(map[string]struct{})
	for _, q := range QualifyRefs(input.BranchSpec, input.Remotes) {
		r.trace(ctx, "qualifying branch spec", map[string]interface{}{
			"branch_spec": input.BranchSpec,
			"remote":      q.Remote,
			"rule":        q.Rule,
			"ref":         q.Ref,
		})
		if _, seen := tried[q.Ref]; seen {
			continue
		}
		tried[q.Ref] = struct{}{}

		revs, err := r.enumerate(ctx, input.IsPollCall, q.Ref, input.Record)
		if err != nil {
			return nil, err
		}
		acc.add(revs)
	}

	if !acc.empty() {
		return &domain.ResolveOutput{
			Revisions:  acc.list(),
			ResolvedBy: domain.ResolvedByQualified,
		}, nil
	}

	// The spec may name a tag or another ref that needs no remote qualification.
	revs, err := r.enumerate(ctx, input.IsPollCall, input.BranchSpec, input.Record)
	if err != nil {
		return nil, err
	}
	if len(revs) == 0 {
		r.trace(ctx, "no candidate revisions", map[string]interface{}{
			"branch_spec": input.BranchSpec,
		})
		return &domain.ResolveOutput{ResolvedBy: domain.ResolvedByNone}, nil
	}

	r.trace(ctx, "branch spec seems to be a non-branch reference", map[string]interface{}{
		"branch_spec": input.BranchSpec,
	})
	acc.add(revs)
	return &domain.ResolveOutput{
		Revisions:  acc.list(),
		ResolvedBy: domain.ResolvedByRawRef,
	}, nil
}

// resolveDetached resolves spec as a literal commit. ok is false when it does not
// name an object, e.g. a branch called "badface".
func (r *CandidateResolver) resolveDetached(ctx context.Context, spec string) (domain.Revision, bool, error) {
	res, err := r.git.RevParse(ctx, spec)
	if err != nil {
		return domain.Revision{}, false, fmt.Errorf("failed to resolve commit %s: %w", spec, err)
	}
	if res.NotFound {
		r.trace(ctx, "not a valid commit hash", map[string]interface{}{
			"branch_spec": spec,
		})
		return domain.Revision{}, false, nil
	}

	r.trace(ctx, "will build detached commit", map[string]interface{}{
		"sha": res.SHA,
	})
	return domain.NewRevision(res.SHA, domain.DetachedBranchName), true, nil
}

// enumerate returns the unbuilt commits of ref, oldest first. A ref that does not
// exist yields no revisions.
func (r *CandidateResolver) enumerate(
	ctx context.Context,
	isPollCall bool,
	ref string,
	record domain.BuildRecord,
) ([]domain.Revision, error) {
	lastBuilt := record.LastBuiltRevision()

	var commits []string
	if lastBuilt != "" {
		r.trace(ctx, "listing commits since last build", map[string]interface{}{
			"range": lastBuilt + ".." + ref,
		})
		res, err := r.git.RevList(ctx, lastBuilt, ref)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s..%s: %w", lastBuilt, ref, err)
		}
		if res.NotFound {
			r.trace(ctx, "ref not found", map[string]interface{}{
				"range": lastBuilt + ".." + ref,
			})
			return nil, nil
		}
		commits = slices.Clone(res.Commits)
		slices.Reverse(commits)
	}

	if len(commits) == 0 {
		res, err := r.git.RevParse(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", ref, err)
		}
		if res.NotFound {
			r.trace(ctx, "ref not found", map[string]interface{}{
				"ref": ref,
			})
			return nil, nil
		}
		commits = []string{res.SHA}
	}

	revisions := make([]domain.Revision, 0, len(commits))
	for _, sha := range commits {
		if isPollCall {
			built, err := record.HasBeenBuilt(ctx, sha)
			if err != nil {
				return nil, fmt.Errorf("failed to query build history for %s: %w", sha, err)
			}
			// Everything older than a built commit is assumed to be seen already.
			if built {
				r.trace(ctx, "commit has already been built", map[string]interface{}{
					"sha": sha,
					"ref": ref,
				})
				break
			}
		}

		r.trace(ctx, "found a new commit to be built", map[string]interface{}{
			"sha": sha,
			"ref": ref,
		})
		revisions = append(revisions, domain.NewRevision(sha, ref))
	}
	return revisions, nil
}

func (r *CandidateResolver) trace(ctx context.Context, msg string, fields map[string]interface{}) {
	if r.verbose {
		r.logger.Debug(ctx, msg, fields)
	}
}

// revisionSet accumulates revisions in insertion order, merging the branches of
// revisions that share a commit.
type revisionSet struct {
	order []string
	bySHA map[string]*domain.Revision
}

func newRevisionSet() *revisionSet {
	return &revisionSet{bySHA: make(map[string]*domain.Revision)}
}

func (s *revisionSet) add(revs []domain.Revision) {
	for _, rev := range revs {
		existing, ok := s.bySHA[rev.SHA]
		if !ok {
			cp := domain.Revision{SHA: rev.SHA, Branches: slices.Clone(rev.Branches)}
			s.bySHA[rev.SHA] = &cp
			s.order = append(s.order, rev.SHA)
			continue
		}
		for _, b := range rev.Branches {
			if !existing.HasBranch(b.Name) {
				existing.Branches = append(existing.Branches, b)
			}
		}
	}
}

func (s *revisionSet) empty() bool {
	return len(s.order) == 0
}

func (s *revisionSet) list() []domain.Revision {
	out := make([]domain.Revision, 0, len(s.order))
	for _, sha := range s.order {
		out = append(out, *s.bySHA[sha])
	}
	return out
}
