package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/cronnotify/am"
	"github.com/teranos/cronnotify/desktop"
	"github.com/teranos/cronnotify/errors"
	"github.com/teranos/cronnotify/logger"
	"github.com/teranos/cronnotify/pulse/loop"
	"github.com/teranos/cronnotify/pulse/schedule"
)

// RunCmd runs the scheduler daemon
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler daemon",
	Long: `Run the scheduler in the foreground.

The daemon checks whether the job is due, asks through a desktop notification
once it is, and runs the job's commands when you click "Start". It follows
suspend/resume through logind and, with job.main_power set, waits for mains
power through UPower before asking. Config file changes are picked up while
running.

Stop it with Ctrl+C or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	j, err := loadJob(cmd)
	if err != nil {
		return err
	}

	l := loop.New()
	notifier := desktop.NewNotifier(logger.Logger.Named("desktop.notify"))
	defer notifier.Shutdown()

	deps := schedule.Deps{
		Loop:     l,
		Records:  j.records,
		Runner:   j.runner(),
		Notifier: notifier,
		Logger:   logger.Logger.Named("pulse.schedule"),
	}

	// Without a system bus the daemon still prompts, it just cannot follow
	// power or sleep transitions
	if sys, err := desktop.ConnectSystemBus(); err != nil {
		logger.Warnw("System bus unavailable, power and suspend tracking disabled", logger.FieldError, err)
	} else {
		defer sys.Close()
		deps.Power = desktop.NewUPower(sys)
		deps.Suspend = desktop.NewLogind(sys)
	}

	s, err := schedule.NewScheduler(j.sched, deps)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if watcher := watchConfig(cmd, j.sources, l, s); watcher != nil {
		defer watcher.Stop()
	}

	pterm.Info.Printfln("Scheduling %s (%s) with %q", s.DisplayName(), j.sched.Job.ID, j.sched.Job.Cron)

	l.Post(func() error { return s.Start(ctx) })
	err = l.Run(ctx)

	// a second signal kills the process while a running job is awaited
	stop()
	s.Stop()
	waitErr := s.Wait()

	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		if waitErr != nil {
			return waitErr
		}
		pterm.Info.Println("Stopped")
		return nil
	}
	return err
}

// watchConfig hot-reloads the config files. Invalid files are reported and
// leave the running job untouched.
func watchConfig(cmd *cobra.Command, sources *am.Sources, l *loop.Loop, s *schedule.Scheduler) *am.ConfigWatcher {
	if len(sources.Files) == 0 {
		return nil
	}
	path, _ := cmd.Flags().GetString("config")
	log := logger.Logger.Named("am")

	watcher, err := am.NewConfigWatcher(path, sources.Files, log)
	if err != nil {
		log.Warnw("Config hot reload disabled", logger.FieldError, err)
		return nil
	}

	watcher.OnReload(func(cfg *am.Config) error {
		reload, err := cfg.Reload()
		if err != nil {
			return err
		}
		l.Post(func() error {
			err := s.Reconfigure(reload)
			if errors.IsConfigurationError(err) {
				log.Errorw("Rejected reloaded config", logger.FieldError, err)
				return nil
			}
			return err
		})
		return nil
	})
	watcher.Start()
	return watcher
}
