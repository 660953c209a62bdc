package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/cronnotify/errors"
	"github.com/teranos/cronnotify/pulse/schedule"
)

// NextCmd shows the last and next execution
var NextCmd = &cobra.Command{
	Use:   "next",
	Short: "Show the last and next execution",
	Args:  cobra.NoArgs,
	RunE:  runNext,
}

// ResetCmd removes the execution record
var ResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the last execution",
	Long: `Remove the job's last-execution record. The job is due immediately
afterwards, so a running daemon asks at its next due check.`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func init() {
	NextCmd.Flags().BoolP("json", "j", false, "Output as JSON")
}

type nextOutput struct {
	JobID         string     `json:"job_id"`
	Name          string     `json:"name"`
	Cron          string     `json:"cron"`
	LastExecution *time.Time `json:"last_execution"`
	NextExecution time.Time  `json:"next_execution"`
	Due           bool       `json:"due"`
	RecordFile    string     `json:"record_file"`
}

func runNext(cmd *cobra.Command, args []string) error {
	j, err := loadJob(cmd)
	if err != nil {
		return err
	}

	now := time.Now()
	sched, err := schedule.ParseSchedule(j.sched.Job.Cron, now)
	if err != nil {
		return err
	}
	status, err := schedule.ComputeStatus(j.records, sched, j.sched.Job.ID, now)
	if err != nil {
		return err
	}
	path, err := j.records.Path(j.sched.Job.ID)
	if err != nil {
		return err
	}

	out := nextOutput{
		JobID:         j.sched.Job.ID,
		Name:          j.sched.Messages.DisplayName(j.sched.Job.Name),
		Cron:          sched.Expression(),
		NextExecution: status.NextExecution,
		Due:           status.Due(now),
		RecordFile:    path,
	}
	if status.Executed() {
		out.LastExecution = &status.LastExecution
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal status")
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	pterm.DefaultSection.Println(out.Name)
	pterm.Printfln("  Job ID:    %s", out.JobID)
	pterm.Printfln("  Schedule:  %s", out.Cron)
	if out.LastExecution != nil {
		pterm.Printfln("  Last run:  %s", out.LastExecution.Format(time.RFC1123))
	} else {
		pterm.Printfln("  Last run:  never")
	}
	if out.Due {
		pterm.Printfln("  Next run:  due now")
	} else {
		pterm.Printfln("  Next run:  %s (in %s)", out.NextExecution.Format(time.RFC1123),
			out.NextExecution.Sub(now).Round(time.Minute))
	}
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	j, err := loadJob(cmd)
	if err != nil {
		return err
	}
	if err := j.records.Delete(j.sched.Job.ID); err != nil {
		return err
	}
	pterm.Success.Printfln("Forgot the last execution of %s", j.sched.Messages.DisplayName(j.sched.Job.Name))
	return nil
}
