// Package main is the entry point for the slippy-catchup CLI application.
// slippy-catchup decides which revisions of a branch a catch-up CI job still
// has to build, using the slip store as the job's build history.
package main

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/MyCarrier-DevOps/goLibMyCarrier/logger"
	"github.com/MyCarrier-DevOps/goLibMyCarrier/slippy"

	"github.com/MyCarrier-DevOps/slippy-catchup/cmd"
	"github.com/MyCarrier-DevOps/slippy-catchup/internal/adapters/git"
	logadapter "github.com/MyCarrier-DevOps/slippy-catchup/internal/adapters/logger"
	"github.com/MyCarrier-DevOps/slippy-catchup/internal/adapters/output"
	"github.com/MyCarrier-DevOps/slippy-catchup/internal/adapters/store"
	"github.com/MyCarrier-DevOps/slippy-catchup/internal/domain"
	"github.com/MyCarrier-DevOps/slippy-catchup/internal/infrastructure/config"
	"github.com/MyCarrier-DevOps/slippy-catchup/internal/usecases"
)

func main() {
	cmd.SetDefaultDependencies(newDependencies(logger.NewZapLoggerFromConfig, os.Stdout, os.Stderr))
	cmd.Execute()
}

// newDependencies wires the production adapters. newLogger runs on first use,
// after the command has set LOG_LEVEL from --verbose.
func newDependencies(newLogger func() *logger.ZapLogger, stdout, stderr io.Writer) *cmd.Dependencies {
	// A single shared logger instance for the application
	zapLog := sync.OnceValue(newLogger)
	adapter := func() *logadapter.ZapAdapter {
		return logadapter.NewZapAdapter(zapLog())
	}

	return &cmd.Dependencies{
		LoggerFactory: func() cmd.Logger {
			return adapter()
		},

		ConfigLoader: loadAppConfig,
		JobLoader:    loadJobConfig,

		GitRepoFactory: func(path string, _ cmd.Logger) (domain.LocalGitRepository, error) {
			return git.NewGoGitRepository(path, adapter().ForComponent("git"))
		},

		SlipFinderFactory: func(ctx context.Context, _ cmd.Logger) (domain.SlipFinder, error) {
			cfg, err := config.LoadStore(ctx, nil)
			if err != nil {
				return nil, err
			}

			slippyStore, err := slippy.NewClickHouseStoreFromConfig(cfg.ClickHouse, slippy.ClickHouseStoreOptions{
				PipelineConfig: cfg.PipelineConfig,
				Database:       cfg.Database,
				Logger:         zapLog(),
				SkipMigrations: true,
			})
			if err != nil {
				return nil, err
			}
			return store.NewClickHouseAdapter(slippyStore), nil
		},

		HistoryLoaderFactory: func(
			gitRepo domain.LocalGitRepository,
			finder domain.SlipFinder,
			_ cmd.Logger,
		) domain.HistoryLoader {
			return usecases.NewBuildHistoryLoader(gitRepo, finder, adapter().ForComponent("history"))
		},

		ResolverFactory: func(source domain.RevisionSource, _ cmd.Logger, verbose bool) domain.Resolver {
			return usecases.NewCandidateResolver(
				source,
				adapter().ForComponent("resolver"),
				usecases.Options{Verbose: verbose},
			)
		},

		OutputWriterFactory: func() domain.OutputWriter {
			return output.NewWriterWithOutput(stdout)
		},

		Stdout: stdout,
		Stderr: stderr,
	}
}

func loadAppConfig() (*cmd.AppConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return &cmd.AppConfig{
		Remotes:    cfg.Remotes,
		Verbose:    cfg.Verbose,
		Depth:      cfg.Depth,
		LogLevel:   cfg.LogLevel,
		LogAppName: cfg.LogAppName,
	}, nil
}

func loadJobConfig(path string) (*cmd.JobConfig, error) {
	job, err := config.LoadJobFile(path)
	if err != nil {
		return nil, err
	}
	return &cmd.JobConfig{
		Branch:  job.Branch,
		Remotes: job.Remotes,
		Poll:    job.Poll,
	}, nil
}
