// Package exec runs a job's command list and classifies the outcome.
package exec

import (
	"context"
	"io"
	"io/fs"
	"os"
	osexec "os/exec"
	"time"

	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"github.com/teranos/cronnotify/errors"
	"github.com/teranos/cronnotify/logger"
)

// Command is one argv vector of a job
type Command []string

// String renders the command the way a shell user would type it
func (c Command) String() string {
	return shellquote.Join(c...)
}

// ParseCommand splits a shell-quoted command line into argv
func ParseCommand(line string) (Command, error) {
	args, err := shellquote.Split(line)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to parse command %q", line), errors.ErrConfiguration)
	}
	if len(args) == 0 {
		return nil, errors.NewConfigurationError("empty command")
	}
	return Command(args), nil
}

// Streams are attached to every command of a run. Nil fields inherit the
// daemon's own stdin/stdout/stderr.
type Streams struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// CommandResult describes one command of a run
type CommandResult struct {
	Command  Command
	ExitCode int // -1 when the command could not be started or was killed
	Severity Severity
}

// Result is the outcome of one run of a command list
type Result struct {
	RunID      string
	Severity   Severity
	Commands   []CommandResult
	StartedAt  time.Time
	FinishedAt time.Time
}

// Runner executes command lists sequentially. A Runner is bound to one job:
// its lock serializes overlapping runs of that job (for example a manual run
// racing a scheduled one) and does nothing across jobs.
type Runner struct {
	lock    chan struct{}
	policy  ExitPolicy
	streams Streams
	logger  *zap.SugaredLogger
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithStreams sets the streams attached to commands
func WithStreams(s Streams) RunnerOption {
	return func(r *Runner) {
		r.streams = s
	}
}

// WithLogger sets the runner's logger
func WithLogger(l *zap.SugaredLogger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner creates a runner classifying exits with policy
func NewRunner(policy ExitPolicy, opts ...RunnerOption) *Runner {
	r := &Runner{
		lock:   make(chan struct{}, 1),
		policy: policy,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logger.OrNop(r.logger)
	return r
}

// Policy returns the runner's exit policy
func (r *Runner) Policy() ExitPolicy {
	return r.policy
}

// Run executes commands in order under the runner's lock. Every command runs
// regardless of how the previous one ended. A command that cannot be found or
// is not executable counts as SeverityError; any other launch failure aborts
// the remaining commands and is returned. ctx only bounds waiting for the
// lock: once started, a run is not interrupted.
func (r *Runner) Run(ctx context.Context, commands []Command) (Result, error) {
	result := Result{
		RunID:    uuid.NewString(),
		Severity: SeveritySuccess,
	}
	log := r.logger.With(logger.FieldRunID, result.RunID)

	log.Debugw("Acquiring lock...")
	select {
	case r.lock <- struct{}{}:
	case <-ctx.Done():
		return result, errors.Wrap(ctx.Err(), "waiting for execution lock")
	}
	defer func() {
		<-r.lock
		log.Debugw("Released lock")
	}()

	result.StartedAt = time.Now()

	for _, command := range commands {
		cr, err := r.runOne(log, command)
		result.Commands = append(result.Commands, cr)
		if err != nil {
			result.Severity = SeverityError
			result.FinishedAt = time.Now()
			return result, err
		}
		result.Severity = result.Severity.Max(cr.Severity)
	}

	result.FinishedAt = time.Now()
	switch result.Severity {
	case SeveritySuccess:
		log.Infow("Command finished successfully")
	case SeverityTryAgain:
		log.Infow("Command finished with a temporary error")
	case SeverityWarning:
		log.Warnw("Command finished with warnings")
	default:
		log.Errorw("Command failed")
	}
	return result, nil
}

func (r *Runner) runOne(log *zap.SugaredLogger, command Command) (CommandResult, error) {
	cr := CommandResult{Command: command, ExitCode: -1}
	log = log.With(logger.FieldCommand, command.String())

	if len(command) == 0 {
		cr.Severity = SeverityError
		log.Errorw("Execution failed: empty command")
		return cr, nil
	}

	cmd := osexec.Command(command[0], command[1:]...)
	cmd.Stdin = r.streams.Stdin
	cmd.Stdout = r.streams.Stdout
	cmd.Stderr = r.streams.Stderr
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	log.Infow("Executing command...")
	if err := cmd.Start(); err != nil {
		switch {
		case errors.Is(err, osexec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
			cr.Severity = SeverityError
			log.Errorw("Execution failed: No such file or directory", logger.FieldError, err)
			return cr, nil
		case errors.Is(err, fs.ErrPermission):
			cr.Severity = SeverityError
			log.Errorw("Execution failed: Permission denied", logger.FieldError, err)
			return cr, nil
		default:
			log.Errorw("Execution failed", logger.FieldError, err)
			return cr, errors.WrapLaunch(err, "failed to start `"+command.String()+"`")
		}
	}

	err := cmd.Wait()
	if err == nil {
		cr.ExitCode = 0
		cr.Severity = SeveritySuccess
		return cr, nil
	}

	var exitErr *osexec.ExitError
	if !errors.As(err, &exitErr) {
		log.Errorw("Waiting for command failed", logger.FieldError, err)
		return cr, errors.WrapLaunch(err, "failed to wait for `"+command.String()+"`")
	}

	cr.ExitCode = exitErr.ExitCode()
	cr.Severity = r.policy.Classify(cr.ExitCode)
	if cr.ExitCode < 0 {
		// killed by a signal
		cr.Severity = r.policy.Classify(1)
	}

	fields := []interface{}{logger.FieldExitCode, cr.ExitCode, logger.FieldSeverity, cr.Severity.String()}
	switch cr.Severity {
	case SeverityTryAgain:
		log.Infow("Command finished with exit status", fields...)
	case SeverityWarning:
		log.Warnw("Command finished with exit status", fields...)
	default:
		log.Errorw("Command finished with exit status", fields...)
	}
	return cr, nil
}
