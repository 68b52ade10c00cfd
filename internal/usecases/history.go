package usecases

import (
	"context"
	"fmt"

	"github.com/MyCarrier-DevOps/slippy-catchup/internal/domain"
)

// BuildHistoryLoader derives the job's build record from the slip store.
// The pipeline creates a routing slip for every commit it builds, so the newest
// commit in HEAD's ancestry that has a slip is the last built revision.
type BuildHistoryLoader struct {
	gitRepo domain.LocalGitRepository
	finder  domain.SlipFinder
	logger  Logger
}

// NewBuildHistoryLoader creates a new BuildHistoryLoader with the given dependencies.
func NewBuildHistoryLoader(
	gitRepo domain.LocalGitRepository,
	finder domain.SlipFinder,
	log Logger,
) *BuildHistoryLoader {
	return &BuildHistoryLoader{
		gitRepo: gitRepo,
		finder:  finder,
		logger:  log,
	}
}

// Load walks the commit history from HEAD up to depth commits and queries the
// slip store for the newest built commit. Finding none is not an error: the
// record then reports no last build, as before a job's first build. An unborn
// HEAD is treated the same way.
func (l *BuildHistoryLoader) Load(ctx context.Context, depth int) (domain.BuildRecord, error) {
	if depth <= 0 {
		depth = domain.DefaultAncestryDepth
	}

	gitCtx, err := l.gitRepo.GetGitContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get git context: %w", err)
	}

	if gitCtx.HeadSHA == "" {
		l.logger.Warn(ctx, "HEAD has no commits; treating as first build", map[string]interface{}{
			"repository": gitCtx.Repository,
		})
		return NewSlipBuildRecord(gitCtx.Repository, "", l.finder), nil
	}

	commits, err := l.gitRepo.GetCommitAncestry(ctx, depth)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit ancestry: %w", err)
	}

	l.logger.Debug(ctx, "retrieved commit ancestry", map[string]interface{}{
		"repository":    gitCtx.Repository,
		"commits_count": len(commits),
		"head":          commits[0],
	})

	slip, matchedCommit, err := l.finder.FindByCommits(ctx, gitCtx.Repository, commits)
	if err != nil {
		return nil, fmt.Errorf("failed to find slip by commits: %w", err)
	}

	if slip == nil {
		l.logger.Warn(ctx, "no build found in commit ancestry; treating as first build", map[string]interface{}{
			"repository":    gitCtx.Repository,
			"commits_count": len(commits),
			"head_sha":      gitCtx.HeadSHA,
		})
		matchedCommit = ""
	} else {
		l.logger.Info(ctx, "located last build", map[string]interface{}{
			"correlation_id": slip.CorrelationID,
			"last_built":     matchedCommit,
			"repository":     gitCtx.Repository,
		})
	}

	return NewSlipBuildRecord(gitCtx.Repository, matchedCommit, l.finder), nil
}

// SlipBuildRecord is a BuildRecord answered by the slip store.
type SlipBuildRecord struct {
	repository string
	lastBuilt  string
	finder     domain.SlipFinder
}

// NewSlipBuildRecord creates a record for repository whose last build is lastBuilt.
func NewSlipBuildRecord(repository, lastBuilt string, finder domain.SlipFinder) *SlipBuildRecord {
	return &SlipBuildRecord{
		repository: repository,
		lastBuilt:  lastBuilt,
		finder:     finder,
	}
}

// WithLastBuilt returns a copy of the record with a different last build.
func (s *SlipBuildRecord) WithLastBuilt(sha string) *SlipBuildRecord {
	return NewSlipBuildRecord(s.repository, sha, s.finder)
}

// LastBuiltRevision returns the last built commit, or "" before the first build.
func (s *SlipBuildRecord) LastBuiltRevision() string {
	return s.lastBuilt
}

// HasBeenBuilt reports whether a slip exists for sha.
func (s *SlipBuildRecord) HasBeenBuilt(ctx context.Context, sha string) (bool, error) {
	if sha == s.lastBuilt && sha != "" {
		return true, nil
	}
	slip, _, err := s.finder.FindByCommits(ctx, s.repository, []string{sha})
	if err != nil {
		return false, err
	}
	return slip != nil, nil
}
