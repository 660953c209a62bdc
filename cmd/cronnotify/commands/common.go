// Package commands implements the cronnotify subcommands.
package commands

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/teranos/cronnotify/am"
	"github.com/teranos/cronnotify/errors"
	"github.com/teranos/cronnotify/logger"
	"github.com/teranos/cronnotify/pulse/exec"
	"github.com/teranos/cronnotify/pulse/schedule"
)

// Exit codes
const (
	ExitFailure       = 1
	ExitConfiguration = 2
)

// ExitCode maps an error returned by a command to the process exit code
func ExitCode(err error) int {
	if errors.IsConfigurationError(err) {
		return ExitConfiguration
	}
	return ExitFailure
}

// job bundles what every job-related command derives from the config
type job struct {
	cfg     *am.Config
	sources *am.Sources
	sched   schedule.Config
	policy  exec.ExitPolicy
	records *schedule.FileRecordStore
	logger  *zap.SugaredLogger
}

// InitLogger (re)initializes the global logger from the flags, raised to the
// config's log settings when cfg is set. Interactive terminals get compact
// colored lines.
func InitLogger(cmd *cobra.Command, cfg *am.Config) error {
	verbosity, _ := cmd.Flags().GetCount("verbose")
	jsonLogs, _ := cmd.Flags().GetBool("json-logs")
	if cfg != nil {
		verbosity = max(verbosity, cfg.Log.Verbosity)
		jsonLogs = jsonLogs || cfg.Log.JSON
	}

	tty := term.IsTerminal(int(os.Stderr.Fd()))
	opts := logger.Options{JSON: jsonLogs, Compact: tty, Color: tty, Verbosity: verbosity}
	if err := logger.Initialize(opts); err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	return nil
}

// loadConfig loads the configuration named by --config and applies its log
// settings
func loadConfig(cmd *cobra.Command) (*am.Config, *am.Sources, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, sources, err := am.Load(path)
	if err != nil {
		return nil, nil, err
	}

	if err := InitLogger(cmd, cfg); err != nil {
		return nil, nil, err
	}

	for _, key := range sources.UnknownKeys {
		logger.Warnw("Unknown config key", "key", key)
	}
	logger.Debugw("Loaded configuration", "files", sources.Files)
	return cfg, sources, nil
}

// loadJob loads the configuration and resolves the job and its record store
func loadJob(cmd *cobra.Command) (*job, error) {
	cfg, sources, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateJob(); err != nil {
		return nil, err
	}
	sched, policy, err := cfg.SchedulerConfig()
	if err != nil {
		return nil, err
	}
	dir, err := schedule.DefaultRecordDir(sched.App)
	if err != nil {
		return nil, err
	}

	return &job{
		cfg:     cfg,
		sources: sources,
		sched:   sched,
		policy:  policy,
		records: schedule.NewFileRecordStore(dir),
		logger:  logger.Logger.With(logger.FieldApp, sched.App, logger.FieldJobID, sched.Job.ID),
	}, nil
}

func (j *job) runner(opts ...exec.RunnerOption) *exec.Runner {
	opts = append([]exec.RunnerOption{exec.WithLogger(j.logger.Named("pulse.exec"))}, opts...)
	return exec.NewRunner(j.policy, opts...)
}
