package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MyCarrier-DevOps/slippy-catchup/internal/domain"
	"github.com/MyCarrier-DevOps/slippy-catchup/internal/usecases"
)

// Test mocks for dependency injection testing.

// mockLogger implements the Logger interface for testing.
type mockLogger struct{}

func (m *mockLogger) Info(_ context.Context, _ string, _ map[string]interface{})           {}
func (m *mockLogger) Debug(_ context.Context, _ string, _ map[string]interface{})          {}
func (m *mockLogger) Warn(_ context.Context, _ string, _ map[string]interface{})           {}
func (m *mockLogger) Error(_ context.Context, _ string, _ error, _ map[string]interface{}) {}

// mockGitRepo implements domain.LocalGitRepository for testing.
// RevParse accepts any unique prefix of a known commit and the names in refs.
type mockGitRepo struct {
	commits     []string
	refs        map[string]string
	revParseErr error
	remotes     []domain.Remote
	remotesErr  error
	closeErr    error
	closeCalled bool
}

func (m *mockGitRepo) RevParse(_ context.Context, rev string) (domain.RevParseResult, error) {
	if m.revParseErr != nil {
		return domain.RevParseResult{}, m.revParseErr
	}
	if sha, ok := m.refs[rev]; ok {
		return domain.RevParseResult{SHA: sha}, nil
	}
	for _, c := range m.commits {
		if strings.HasPrefix(c, rev) {
			return domain.RevParseResult{SHA: c}, nil
		}
	}
	return domain.RevParseResult{NotFound: true}, nil
}

// RevList only knows empty ranges, which is all a single-commit history has.
func (m *mockGitRepo) RevList(ctx context.Context, exclude, include string) (domain.RevListResult, error) {
	from, _ := m.RevParse(ctx, exclude)
	to, _ := m.RevParse(ctx, include)
	if from.NotFound || to.NotFound || from.SHA != to.SHA {
		return domain.RevListResult{NotFound: true}, nil
	}
	return domain.RevListResult{}, nil
}

func (m *mockGitRepo) Remotes(_ context.Context) ([]domain.Remote, error) {
	return m.remotes, m.remotesErr
}

func (m *mockGitRepo) GetGitContext(_ context.Context) (*domain.GitContext, error) {
	return &domain.GitContext{}, nil
}

func (m *mockGitRepo) GetCommitAncestry(_ context.Context, _ int) ([]string, error) {
	return nil, nil
}

func (m *mockGitRepo) Close() error {
	m.closeCalled = true
	return m.closeErr
}

// mockSlipFinder implements domain.SlipFinder for testing.
type mockSlipFinder struct {
	closeCalled bool
}

func (m *mockSlipFinder) FindByCommits(_ context.Context, _ string, _ []string) (*domain.Slip, string, error) {
	return nil, "", nil
}

func (m *mockSlipFinder) Close() error {
	m.closeCalled = true
	return nil
}

// mockHistoryLoader implements domain.HistoryLoader for testing.
type mockHistoryLoader struct {
	record    domain.BuildRecord
	err       error
	gotDepth  int
	loadCalls int
}

func (m *mockHistoryLoader) Load(_ context.Context, depth int) (domain.BuildRecord, error) {
	m.loadCalls++
	m.gotDepth = depth
	return m.record, m.err
}

// mockResolver implements domain.Resolver for testing.
type mockResolver struct {
	output   *domain.ResolveOutput
	err      error
	gotInput domain.ResolveInput
}

func (m *mockResolver) Resolve(_ context.Context, input domain.ResolveInput) (*domain.ResolveOutput, error) {
	m.gotInput = input
	return m.output, m.err
}

// mockOutputWriter implements domain.OutputWriter for testing.
type mockOutputWriter struct {
	written  []domain.Revision
	writeErr error
}

func (m *mockOutputWriter) WriteRevisions(revisions []domain.Revision) error {
	m.written = revisions
	return m.writeErr
}

// testHarness bundles mocks wired into Dependencies.
type testHarness struct {
	deps        *Dependencies
	logLevel    string
	cfg         *AppConfig
	job         *JobConfig
	git         *mockGitRepo
	finder      *mockSlipFinder
	finderErr   error
	finderCalls int
	history     *mockHistoryLoader
	resolver    *mockResolver
	verbose     bool
	writer      *mockOutputWriter
}

func newTestHarness() *testHarness {
	h := &testHarness{
		cfg:     &AppConfig{Depth: domain.DefaultAncestryDepth},
		job:     &JobConfig{},
		git: &mockGitRepo{
			commits: []string{"c0", "c2", "c3", "c4", "c5"},
			remotes: []domain.Remote{{Name: "origin"}},
		},
		finder:  &mockSlipFinder{},
		history: &mockHistoryLoader{record: domain.NewStaticBuildRecord("c0")},
		resolver: &mockResolver{output: &domain.ResolveOutput{
			Revisions:  []domain.Revision{domain.NewRevision("c1", "origin/main")},
			ResolvedBy: domain.ResolvedByQualified,
		}},
		writer: &mockOutputWriter{},
	}
	h.deps = &Dependencies{
		LoggerFactory: func() Logger {
			h.logLevel = os.Getenv("LOG_LEVEL")
			return &mockLogger{}
		},
		ConfigLoader: func() (*AppConfig, error) { return h.cfg, nil },
		JobLoader:     func(_ string) (*JobConfig, error) { return h.job, nil },
		GitRepoFactory: func(_ string, _ Logger) (domain.LocalGitRepository, error) {
			return h.git, nil
		},
		SlipFinderFactory: func(_ context.Context, _ Logger) (domain.SlipFinder, error) {
			h.finderCalls++
			if h.finderErr != nil {
				return nil, h.finderErr
			}
			return h.finder, nil
		},
		HistoryLoaderFactory: func(_ domain.LocalGitRepository, _ domain.SlipFinder, _ Logger) domain.HistoryLoader {
			return h.history
		},
		ResolverFactory: func(_ domain.RevisionSource, _ Logger, verbose bool) domain.Resolver {
			h.verbose = verbose
			return h.resolver
		},
		OutputWriterFactory: func() domain.OutputWriter { return h.writer },
		Stdout:              io.Discard,
		Stderr:              io.Discard,
	}
	return h
}

func (h *testHarness) run(args ...string) error {
	cmd := NewRootCmdWithDeps(h.deps)
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.Execute()
}

func TestNewRootCmd(t *testing.T) {
	SetDefaultDependencies(&Dependencies{})
	cmd := NewRootCmd()

	require.NotNil(t, cmd)
	assert.Equal(t, "slippy-catchup [path]", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)
	assert.True(t, cmd.SilenceUsage)

	tests := []struct {
		name      string
		shorthand string
		defValue  string
	}{
		{name: "branch", shorthand: "b", defValue: ""},
		{name: "poll", defValue: "false"},
		{name: "remote", shorthand: "r", defValue: "[]"},
		{name: "last-built", defValue: ""},
		{name: "built", defValue: "[]"},
		{name: "offline", defValue: "false"},
		{name: "depth", shorthand: "d", defValue: "25"},
		{name: "job-file", defValue: ""},
		{name: "verbose", shorthand: "v", defValue: "false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := cmd.Flags().Lookup(tt.name)
			require.NotNil(t, flag)
			assert.Equal(t, tt.shorthand, flag.Shorthand)
			assert.Equal(t, tt.defValue, flag.DefValue)
		})
	}
}

func TestNewRootCmd_MaxArgs(t *testing.T) {
	cmd := NewRootCmdWithDeps(&Dependencies{})

	require.NoError(t, cmd.Args(cmd, []string{}))
	require.NoError(t, cmd.Args(cmd, []string{"/path/to/repo"}))
	require.Error(t, cmd.Args(cmd, []string{"/path/one", "/path/two"}))
}

func TestNewRootCmd_HelpOutput(t *testing.T) {
	cmd := NewRootCmdWithDeps(&Dependencies{})

	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "slippy-catchup")
	assert.Contains(t, output, "--branch")
	assert.Contains(t, output, "--poll")
	assert.Contains(t, output, "--offline")
}

func TestRootCmd_NilDependencies(t *testing.T) {
	cmd := NewRootCmdWithDeps(nil)
	cmd.SetArgs([]string{"--branch", "main"})

	err := cmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependencies not configured")
}

func TestRootCmd_Success(t *testing.T) {
	h := newTestHarness()

	err := h.run("--branch", "main")

	require.NoError(t, err)
	assert.Equal(t, domain.ResolveInput{
		BranchSpec: "main",
		Remotes:    []domain.Remote{{Name: "origin"}},
		Record:     h.history.record,
	}, h.resolver.gotInput)
	assert.Equal(t, h.resolver.output.Revisions, h.writer.written)
	assert.Equal(t, domain.DefaultAncestryDepth, h.history.gotDepth)
	assert.True(t, h.git.closeCalled)
	assert.True(t, h.finder.closeCalled)
	assert.False(t, h.verbose)
}

func TestRootCmd_NothingToBuild(t *testing.T) {
	h := newTestHarness()
	h.resolver.output = &domain.ResolveOutput{ResolvedBy: domain.ResolvedByNone}

	err := h.run("--branch", "gone")

	require.NoError(t, err)
	assert.Empty(t, h.writer.written)
}

func TestRootCmd_RemotePrecedence(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		job        *JobConfig
		envRemotes []string
		want       []string
	}{
		{
			name:       "flags win",
			args:       []string{"-b", "main", "--job-file", "job.yaml", "-r", "upstream", "-r", "fork"},
			job:        &JobConfig{Remotes: []string{"jobremote"}},
			envRemotes: []string{"envremote"},
			want:       []string{"upstream", "fork"},
		},
		{
			name:       "job file before environment",
			args:       []string{"-b", "main", "--job-file", "job.yaml"},
			job:        &JobConfig{Remotes: []string{"jobremote"}},
			envRemotes: []string{"envremote"},
			want:       []string{"jobremote"},
		},
		{
			name:       "environment before repository",
			args:       []string{"-b", "main"},
			envRemotes: []string{"envremote", "origin"},
			want:       []string{"envremote", "origin"},
		},
		{
			name: "repository remotes last",
			args: []string{"-b", "main"},
			want: []string{"origin"},
		},
		{
			name: "comma separated flag",
			args: []string{"-b", "main", "--remote", "a,b"},
			want: []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHarness()
			if tt.job != nil {
				h.job = tt.job
			}
			h.cfg.Remotes = tt.envRemotes

			require.NoError(t, h.run(tt.args...))
			assert.Equal(t, tt.want, domain.RemoteNames(h.resolver.gotInput.Remotes))
		})
	}
}

func TestRootCmd_NoRemotes(t *testing.T) {
	h := newTestHarness()
	h.git.remotes = nil

	err := h.run("-b", "main")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no remotes configured")
}

func TestRootCmd_RemotesError(t *testing.T) {
	h := newTestHarness()
	h.git.remotesErr = errors.New("bad config")

	err := h.run("-b", "main")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list remotes")
}

func TestRootCmd_JobFile(t *testing.T) {
	h := newTestHarness()
	h.job = &JobConfig{Branch: "release", Poll: true}

	require.NoError(t, h.run("--job-file", "job.yaml"))

	assert.Equal(t, "release", h.resolver.gotInput.BranchSpec)
	assert.True(t, h.resolver.gotInput.IsPollCall)
}

func TestRootCmd_FlagsOverrideJobFile(t *testing.T) {
	h := newTestHarness()
	h.job = &JobConfig{Branch: "release", Poll: true}

	require.NoError(t, h.run("--job-file", "job.yaml", "-b", "main", "--poll=false"))

	assert.Equal(t, "main", h.resolver.gotInput.BranchSpec)
	assert.False(t, h.resolver.gotInput.IsPollCall)
}

func TestRootCmd_JobFileError(t *testing.T) {
	h := newTestHarness()
	h.deps.JobLoader = func(_ string) (*JobConfig, error) { return nil, errors.New("job file not found") }

	err := h.run("--job-file", "missing.yaml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "job file error")
}

func TestRootCmd_NoBranchSpec(t *testing.T) {
	h := newTestHarness()

	err := h.run()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no branch spec given")
}

func TestRootCmd_Offline(t *testing.T) {
	h := newTestHarness()

	err := h.run("-b", "main", "--poll", "--offline", "--last-built", "c0", "--built", "c2", "--built", "c3")

	require.NoError(t, err)
	assert.Zero(t, h.finderCalls, "offline never touches the slip store")
	assert.Zero(t, h.history.loadCalls)

	record := h.resolver.gotInput.Record
	require.NotNil(t, record)
	assert.Equal(t, "c0", record.LastBuiltRevision())
	for _, sha := range []string{"c0", "c2", "c3"} {
		built, err := record.HasBeenBuilt(context.Background(), sha)
		require.NoError(t, err)
		assert.True(t, built, sha)
	}
	built, err := record.HasBeenBuilt(context.Background(), "c4")
	require.NoError(t, err)
	assert.False(t, built)
}

func TestRootCmd_BuiltRequiresOffline(t *testing.T) {
	h := newTestHarness()

	err := h.run("-b", "main", "--built", "c2")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "--built requires --offline")
}

func TestRootCmd_AbbreviatedRevisionsExpanded(t *testing.T) {
	const (
		first  = "3f2a9c1e5b7d4a6f8c0e2b4d6f8a0c2e4b6d8f0a"
		second = "77ab01e9c3d5f7a9b1c3e5d7f9a1b3c5d7e9f1a3"
	)
	h := newTestHarness()
	h.git.commits = []string{first, second}

	require.NoError(t, h.run("-b", "main", "--poll", "--offline", "--last-built", "3f2a9c1", "--built", "77ab01e"))

	record := h.resolver.gotInput.Record
	assert.Equal(t, first, record.LastBuiltRevision())
	for _, sha := range []string{first, second} {
		built, err := record.HasBeenBuilt(context.Background(), sha)
		require.NoError(t, err)
		assert.True(t, built, sha)
	}
}

func TestRootCmd_PollWithAbbreviatedLastBuiltReportsNothing(t *testing.T) {
	const tip = "0d8f968e2a4c6e8a0c2e4a6c8e0a2c4e6a8c0e2a"

	for _, lastBuilt := range []string{tip, tip[:7]} {
		t.Run(lastBuilt, func(t *testing.T) {
			h := newTestHarness()
			h.git.commits = []string{tip}
			h.git.refs = map[string]string{"origin/main": tip}
			h.deps.ResolverFactory = func(source domain.RevisionSource, _ Logger, _ bool) domain.Resolver {
				return usecases.NewCandidateResolver(source, &mockLogger{}, usecases.Options{})
			}

			err := h.run("-b", "main", "-r", "origin", "--poll", "--offline", "--last-built", lastBuilt)

			require.NoError(t, err)
			assert.Empty(t, h.writer.written, "the built tip is not new work")
		})
	}
}

func TestRootCmd_UnknownRevisions(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "last built", args: []string{"-b", "main", "--last-built", "deadbeef"}},
		{name: "offline last built", args: []string{"-b", "main", "--offline", "--last-built", "deadbeef"}},
		{name: "built", args: []string{"-b", "main", "--offline", "--built", "c2", "--built", "deadbeef"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHarness()

			err := h.run(tt.args...)

			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrUnknownRevision)
			assert.Contains(t, err.Error(), "deadbeef")
			assert.Nil(t, h.writer.written)
		})
	}
}

func TestRootCmd_RevisionLookupError(t *testing.T) {
	h := newTestHarness()
	h.git.revParseErr = errors.New("packfile corrupt")

	err := h.run("-b", "main", "--offline", "--last-built", "c0")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "packfile corrupt")
}

func TestRootCmd_LastBuiltOverride(t *testing.T) {
	h := newTestHarness()
	h.history.record = domain.NewStaticBuildRecord("c0", "c5")

	require.NoError(t, h.run("-b", "main", "--last-built", "c3"))

	record := h.resolver.gotInput.Record
	assert.Equal(t, "c3", record.LastBuiltRevision())

	built, err := record.HasBeenBuilt(context.Background(), "c3")
	require.NoError(t, err)
	assert.True(t, built)

	built, err = record.HasBeenBuilt(context.Background(), "c5")
	require.NoError(t, err)
	assert.True(t, built, "falls through to the discovered history")
}

func TestRootCmd_Depth(t *testing.T) {
	t.Run("flag", func(t *testing.T) {
		h := newTestHarness()
		h.cfg.Depth = 40
		require.NoError(t, h.run("-b", "main", "--depth", "7"))
		assert.Equal(t, 7, h.history.gotDepth)
	})

	t.Run("environment", func(t *testing.T) {
		h := newTestHarness()
		h.cfg.Depth = 40
		require.NoError(t, h.run("-b", "main"))
		assert.Equal(t, 40, h.history.gotDepth)
	})
}

func TestRootCmd_Verbose(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		cfgVerbose bool
		wantLevel  string
	}{
		{name: "flag", args: []string{"-b", "main", "-v"}, wantLevel: "debug"},
		{name: "environment", args: []string{"-b", "main"}, cfgVerbose: true, wantLevel: "debug"},
		{name: "off", args: []string{"-b", "main"}, wantLevel: "info"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", "info")
			h := newTestHarness()
			h.cfg.Verbose = tt.cfgVerbose

			require.NoError(t, h.run(tt.args...))

			assert.Equal(t, tt.wantLevel != "info", h.verbose)
			assert.Equal(t, tt.wantLevel, h.logLevel, "level seen when the logger is built")
		})
	}
}

func TestRootCmd_Errors(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(h *testHarness)
		wantErrMsg string
	}{
		{
			name: "config load fails",
			setup: func(h *testHarness) {
				h.deps.ConfigLoader = func() (*AppConfig, error) { return nil, errors.New("bad env") }
			},
			wantErrMsg: "configuration error",
		},
		{
			name: "not a git repository",
			setup: func(h *testHarness) {
				h.deps.GitRepoFactory = func(_ string, _ Logger) (domain.LocalGitRepository, error) {
					return nil, domain.ErrRepositoryNotFound
				}
			},
			wantErrMsg: "not a git repository",
		},
		{
			name: "other git repository error",
			setup: func(h *testHarness) {
				h.deps.GitRepoFactory = func(_ string, _ Logger) (domain.LocalGitRepository, error) {
					return nil, errors.New("permission denied")
				}
			},
			wantErrMsg: "permission denied",
		},
		{
			name:       "slip store unavailable",
			setup:      func(h *testHarness) { h.finderErr = errors.New("connection refused") },
			wantErrMsg: "database error",
		},
		{
			name: "no origin for history",
			setup: func(h *testHarness) {
				h.history.err = domain.ErrNoRemoteOrigin
			},
			wantErrMsg: "no 'origin' remote configured",
		},
		{
			name:       "history load fails",
			setup:      func(h *testHarness) { h.history.err = errors.New("query timeout") },
			wantErrMsg: "query timeout",
		},
		{
			name:       "empty branch spec from resolver",
			setup:      func(h *testHarness) { h.resolver.err = domain.ErrEmptyBranchSpec },
			wantErrMsg: "branch spec is empty",
		},
		{
			name:       "resolver fails",
			setup:      func(h *testHarness) { h.resolver.err = errors.New("object store corrupt") },
			wantErrMsg: "object store corrupt",
		},
		{
			name:       "write fails",
			setup:      func(h *testHarness) { h.writer.writeErr = errors.New("broken pipe") },
			wantErrMsg: "output error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHarness()
			tt.setup(h)

			err := h.run("-b", "main")

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErrMsg)
		})
	}
}

func TestRootCmd_CloseErrorsAreNotFatal(t *testing.T) {
	h := newTestHarness()
	h.git.closeErr = errors.New("close failed")

	require.NoError(t, h.run("-b", "main"))
	assert.True(t, h.git.closeCalled)
}

func TestWriteWarningf(t *testing.T) {
	var buf bytes.Buffer
	writeWarningf(&buf, "warning: %s\n", "test")
	assert.Equal(t, "warning: test\n", buf.String())
}
