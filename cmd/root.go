// Package cmd provides the CLI commands for slippy-catchup.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/MyCarrier-DevOps/slippy-catchup/internal/domain"
)

// Logger defines the logging interface used by the command.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields map[string]interface{})
}

// Dependencies holds all injectable dependencies for the command.
// This enables testing by allowing mock implementations to be injected.
type Dependencies struct {
	// LoggerFactory creates a logger instance. It is called once per run,
	// after LOG_LEVEL reflects --verbose and CATCHUP_VERBOSE.
	LoggerFactory func() Logger

	// ConfigLoader loads application settings.
	ConfigLoader func() (*AppConfig, error)

	// JobLoader loads a job file.
	JobLoader func(path string) (*JobConfig, error)

	// GitRepoFactory creates a LocalGitRepository for the given path.
	GitRepoFactory func(path string, log Logger) (domain.LocalGitRepository, error)

	// SlipFinderFactory connects to the slip store. Not called in offline mode.
	SlipFinderFactory func(ctx context.Context, log Logger) (domain.SlipFinder, error)

	// HistoryLoaderFactory creates the loader that derives the build record.
	HistoryLoaderFactory func(
		gitRepo domain.LocalGitRepository,
		finder domain.SlipFinder,
		log Logger,
	) domain.HistoryLoader

	// ResolverFactory creates a Resolver reading from the given revision source.
	ResolverFactory func(source domain.RevisionSource, log Logger, verbose bool) domain.Resolver

	// OutputWriterFactory creates an OutputWriter.
	OutputWriterFactory func() domain.OutputWriter

	// Stdout is the writer for standard output (for revisions).
	Stdout io.Writer

	// Stderr is the writer for standard error (for warnings/errors).
	Stderr io.Writer
}

// AppConfig holds application settings loaded by ConfigLoader.
type AppConfig struct {
	// Remotes is the remote list from the environment; empty means not configured.
	Remotes []string

	// Verbose enables resolver trace output.
	Verbose bool

	// Depth is the ancestry depth searched for the last build.
	Depth int

	// LogLevel is the log level setting.
	LogLevel string

	// LogAppName is the application name for logging.
	LogAppName string
}

// JobConfig holds per-job settings loaded by JobLoader.
// Flags given on the command line take precedence.
type JobConfig struct {
	Branch  string
	Remotes []string
	Poll    bool
}

// options holds the command-line flags.
type options struct {
	branch    string
	poll      bool
	remotes   []string
	lastBuilt string
	built     []string
	offline   bool
	depth     int
	jobFile   string
	verbose   bool
}

// defaultDeps holds the production dependencies.
// This is set by the production wiring in main or via SetDefaultDependencies.
var defaultDeps *Dependencies

// SetDefaultDependencies sets the default dependencies for production use.
// This should be called from main() before Execute().
func SetDefaultDependencies(deps *Dependencies) {
	defaultDeps = deps
}

// NewRootCmd creates the root command for slippy-catchup.
func NewRootCmd() *cobra.Command {
	return NewRootCmdWithDeps(defaultDeps)
}

// NewRootCmdWithDeps creates the root command with explicit dependencies.
// This is the primary constructor that enables testing via dependency injection.
func NewRootCmdWithDeps(deps *Dependencies) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "slippy-catchup [path]",
		Short: "Choose which revisions of a branch still need to be built",
		Long: `slippy-catchup decides which revisions a catch-up CI job should build.

Given a branch spec (a branch name, a remote-qualified ref, a tag or a commit
hash), it qualifies the spec against each configured remote, lists the commits
each matching ref gained since the job's last build, and prints one line per
revision in build order:

  <sha> <ref>[,<ref>...]

Empty output means there is nothing new to build.

The job's build history comes from the slip store: the newest commit in HEAD's
ancestry with a routing slip is the last build; a repository whose HEAD has no
commits yet is treated as a first build. Use --offline with --last-built and
--built to supply the history directly instead. Both accept any revision the
repository can resolve, including abbreviated hashes.

Remotes are taken from --remote, then the job file, then CATCHUP_REMOTES, then
the repository's configured remotes (origin first).

Examples:
  # Revisions of main to build, across all remotes
  slippy-catchup --branch main

  # Poll for unbuilt commits on a specific remote ref
  slippy-catchup --branch origin/release/1.x --poll

  # Build an exact commit
  slippy-catchup --branch 3f2a9c1

  # Without the slip store
  slippy-catchup -b main --offline --last-built 3f2a9c1 --built 77ab01e

  # Settings from a job file
  slippy-catchup /path/to/repo --job-file catchup.yaml -v`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatchUp(cmd, args, deps, opts)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.branch, "branch", "b", "",
		"Branch spec: branch name, remote-qualified ref, full ref, tag or commit hash")
	flags.BoolVar(&opts.poll, "poll", false,
		"Poll mode: stop at the first already-built commit and never build a bare hash")
	flags.StringSliceVarP(&opts.remotes, "remote", "r", nil,
		"Remote to consider, in order (repeatable)")
	flags.StringVar(&opts.lastBuilt, "last-built", "",
		"Override the last built revision")
	flags.StringSliceVar(&opts.built, "built", nil,
		"Commit already built (repeatable, requires --offline)")
	flags.BoolVar(&opts.offline, "offline", false,
		"Do not query the slip store; use --last-built and --built as the build history")
	flags.IntVarP(&opts.depth, "depth", "d", domain.DefaultAncestryDepth,
		"Maximum ancestry depth to search for the last build")
	flags.StringVar(&opts.jobFile, "job-file", "",
		"YAML job file with branch, remotes and poll settings")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false,
		"Enable verbose/debug logging and resolver trace output")

	return rootCmd
}

// runCatchUp executes the revision resolution with injected dependencies.
func runCatchUp(cmd *cobra.Command, args []string, deps *Dependencies, opts *options) error {
	if deps == nil {
		return errors.New("dependencies not configured")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	repoPath := "."
	if len(args) > 0 {
		repoPath = args[0]
	}

	stderr := deps.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	if len(opts.built) > 0 && !opts.offline {
		return errors.New("--built requires --offline")
	}

	// Settings decide the log level, so they load before the logger exists.
	cfg, err := deps.ConfigLoader()
	if err != nil {
		writeWarningf(stderr, "error: failed to load configuration: %v\n", err)
		return fmt.Errorf("configuration error: %w", err)
	}
	verbose := opts.verbose || cfg.Verbose

	// The logger reads LOG_LEVEL when it is built (best-effort)
	if verbose {
		if err := os.Setenv("LOG_LEVEL", "debug"); err != nil {
			writeWarningf(stderr, "warning: could not set log level: %v\n", err)
		}
	}

	log := deps.LoggerFactory()

	job := &JobConfig{}
	if opts.jobFile != "" {
		job, err = deps.JobLoader(opts.jobFile)
		if err != nil {
			log.Error(ctx, "failed to load job file", err, map[string]interface{}{
				"path": opts.jobFile,
			})
			return fmt.Errorf("job file error: %w", err)
		}
	}

	branchSpec := opts.branch
	if branchSpec == "" {
		branchSpec = job.Branch
	}
	poll := job.Poll
	if cmd.Flags().Changed("poll") {
		poll = opts.poll
	}
	depth := opts.depth
	if !cmd.Flags().Changed("depth") && cfg.Depth > 0 {
		depth = cfg.Depth
	}

	if branchSpec == "" {
		return errors.New("no branch spec given: use --branch or a job file with 'branch'")
	}

	log.Info(ctx, "starting slippy-catchup", map[string]interface{}{
		"path":        repoPath,
		"branch_spec": branchSpec,
		"poll":        poll,
		"offline":     opts.offline,
		"verbose":     verbose,
	})

	gitRepo, err := deps.GitRepoFactory(repoPath, log)
	if err != nil {
		log.Error(ctx, "failed to open git repository", err, map[string]interface{}{
			"path": repoPath,
		})
		if errors.Is(err, domain.ErrRepositoryNotFound) {
			return fmt.Errorf("not a git repository: %s", repoPath)
		}
		return err
	}
	defer func() {
		if closeErr := gitRepo.Close(); closeErr != nil {
			log.Warn(ctx, "failed to close git repository", map[string]interface{}{
				"error": closeErr.Error(),
			})
		}
	}()

	remotes, err := selectRemotes(ctx, gitRepo, opts.remotes, job.Remotes, cfg.Remotes)
	if err != nil {
		log.Error(ctx, "failed to determine remotes", err, nil)
		if errors.Is(err, domain.ErrNoRemotes) {
			return errors.New("no remotes configured: use --remote, a job file, CATCHUP_REMOTES or add a git remote")
		}
		return err
	}

	lastBuilt, err := resolveCommit(ctx, gitRepo, opts.lastBuilt)
	if err != nil {
		log.Error(ctx, "failed to resolve --last-built", err, nil)
		return err
	}

	var record domain.BuildRecord
	if opts.offline {
		built := make([]string, 0, len(opts.built))
		for _, rev := range opts.built {
			sha, err := resolveCommit(ctx, gitRepo, rev)
			if err != nil {
				log.Error(ctx, "failed to resolve --built", err, nil)
				return err
			}
			built = append(built, sha)
		}
		record = domain.NewStaticBuildRecord(lastBuilt, built...)
	} else {
		finder, err := deps.SlipFinderFactory(ctx, log)
		if err != nil {
			log.Error(ctx, "failed to initialize slip finder", err, nil)
			return fmt.Errorf("database error: %w", err)
		}
		defer func() {
			if closeErr := finder.Close(); closeErr != nil {
				log.Warn(ctx, "failed to close slip finder", map[string]interface{}{
					"error": closeErr.Error(),
				})
			}
		}()

		record, err = deps.HistoryLoaderFactory(gitRepo, finder, log).Load(ctx, depth)
		if err != nil {
			log.Error(ctx, "failed to load build history", err, nil)
			if errors.Is(err, domain.ErrNoRemoteOrigin) {
				return errors.New("no 'origin' remote configured; cannot determine repository name")
			}
			return err
		}
		if lastBuilt != "" {
			record = overrideLastBuilt(record, lastBuilt)
		}
	}

	resolver := deps.ResolverFactory(gitRepo, log, verbose)
	result, err := resolver.Resolve(ctx, domain.ResolveInput{
		IsPollCall: poll,
		BranchSpec: branchSpec,
		Remotes:    remotes,
		Record:     record,
	})
	if err != nil {
		log.Error(ctx, "failed to resolve revisions", err, nil)
		if errors.Is(err, domain.ErrEmptyBranchSpec) {
			return errors.New("branch spec is empty")
		}
		return err
	}

	writer := deps.OutputWriterFactory()
	if err := writer.WriteRevisions(result.Revisions); err != nil {
		log.Error(ctx, "failed to write output", err, nil)
		return fmt.Errorf("output error: %w", err)
	}

	log.Info(ctx, "revision resolution complete", map[string]interface{}{
		"revisions":   len(result.Revisions),
		"resolved_by": result.ResolvedBy,
		"last_built":  record.LastBuiltRevision(),
	})

	return nil
}

// selectRemotes picks the first non-empty source: flags, job file, environment,
// then the repository's own remotes.
func selectRemotes(
	ctx context.Context,
	gitRepo domain.LocalGitRepository,
	sources ...[]string,
) ([]domain.Remote, error) {
	for _, names := range sources {
		if len(names) > 0 {
			remotes := make([]domain.Remote, 0, len(names))
			for _, name := range names {
				remotes = append(remotes, domain.Remote{Name: name})
			}
			return remotes, nil
		}
	}

	remotes, err := gitRepo.Remotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list remotes: %w", err)
	}
	if len(remotes) == 0 {
		return nil, domain.ErrNoRemotes
	}
	return remotes, nil
}

// resolveCommit expands a user-supplied revision (abbreviated hash, tag, ref)
// to the full commit SHA the build record is compared against. "" stays "".
func resolveCommit(ctx context.Context, source domain.RevisionSource, rev string) (string, error) {
	if rev == "" {
		return "", nil
	}
	res, err := source.RevParse(ctx, rev)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", rev, err)
	}
	if res.NotFound {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownRevision, rev)
	}
	return res.SHA, nil
}

// lastBuiltRecord replaces the last built revision of a discovered record.
type lastBuiltRecord struct {
	domain.BuildRecord
	lastBuilt string
}

func overrideLastBuilt(record domain.BuildRecord, sha string) domain.BuildRecord {
	return &lastBuiltRecord{BuildRecord: record, lastBuilt: sha}
}

func (r *lastBuiltRecord) LastBuiltRevision() string {
	return r.lastBuilt
}

func (r *lastBuiltRecord) HasBeenBuilt(ctx context.Context, sha string) (bool, error) {
	if sha == r.lastBuilt {
		return true, nil
	}
	return r.BuildRecord.HasBeenBuilt(ctx, sha)
}

// Execute runs the root command.
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// writeWarningf writes a warning message to the given writer.
// Errors are ignored: there is no recovery action if stderr writes fail.
func writeWarningf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
