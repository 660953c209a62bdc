package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/cronnotify/desktop"
	"github.com/teranos/cronnotify/logger"
	"github.com/teranos/cronnotify/pulse/exec"
	"github.com/teranos/cronnotify/pulse/loop"
	"github.com/teranos/cronnotify/pulse/schedule"
)

// ExecCmd runs the job once, now
var ExecCmd = &cobra.Command{
	Use:   "exec",
	Short: "Run the job once, now",
	Long: `Run the job's commands immediately, as if "Start" had been clicked.

The last-execution record is updated the same way, so a running daemon will
not ask again until the next scheduled time. A job exiting with 75 (try again)
restores the previous record. The outcome is reported as a desktop
notification, or on the terminal with --console.`,
	Args: cobra.NoArgs,
	RunE: runExec,
}

func init() {
	ExecCmd.Flags().Bool("console", false, "Report the outcome on the terminal instead of the desktop")
}

func runExec(cmd *cobra.Command, args []string) error {
	j, err := loadJob(cmd)
	if err != nil {
		return err
	}

	var notifier schedule.Notifier
	if console, _ := cmd.Flags().GetBool("console"); console {
		notifier = &consoleNotifier{}
	} else {
		n := desktop.NewNotifier(logger.Logger.Named("desktop.notify"))
		defer n.Shutdown()
		notifier = n
	}

	l := loop.New()
	s, err := schedule.NewScheduler(j.sched, schedule.Deps{
		Loop:     l,
		Records:  j.records,
		Runner:   j.runner(exec.WithStreams(exec.Streams{Stdin: cmd.InOrStdin(), Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()})),
		Notifier: notifier,
		Logger:   logger.Logger.Named("pulse.schedule"),
	})
	if err != nil {
		return err
	}

	var execution *schedule.Execution
	l.Post(func() error {
		var err error
		execution, err = s.RunNow(schedule.RunBlocking)
		return err
	})
	// Async jobs post their completion, which RunPending picks up too
	if err := l.RunPending(); err != nil {
		return err
	}

	result, err := execution.Result()
	if err != nil {
		return err
	}
	printResult(result)
	return nil
}

func printResult(result exec.Result) {
	rows := pterm.TableData{{"Command", "Exit", "Severity"}}
	for _, c := range result.Commands {
		rows = append(rows, []string{c.Command.String(), strconv.Itoa(c.ExitCode), c.Severity.String()})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()

	msg := fmt.Sprintf("Run %s finished with %s in %s", result.RunID, result.Severity,
		result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))
	switch result.Severity {
	case exec.SeveritySuccess:
		pterm.Success.Println(msg)
	case exec.SeverityTryAgain, exec.SeverityWarning:
		pterm.Warning.Println(msg)
	default:
		pterm.Error.Println(msg)
	}
}

// consoleNotifier prints notifications instead of sending them. It never
// reports actions, so it is only suitable for status messages.
type consoleNotifier struct {
	next uint32
}

func (c *consoleNotifier) Init(string) error { return nil }

func (c *consoleNotifier) Initialized() bool { return true }

func (c *consoleNotifier) SetHandlers(schedule.NotificationHandlers) {}

func (c *consoleNotifier) Close(uint32) error { return nil }

func (c *consoleNotifier) Show(n schedule.Notification) (uint32, error) {
	c.next++
	pterm.Info.Printfln("%s: %s", n.Summary, n.Body)
	return c.next, nil
}
