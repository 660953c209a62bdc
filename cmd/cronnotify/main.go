package main

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/cronnotify/cmd/cronnotify/commands"
	"github.com/teranos/cronnotify/errors"
	"github.com/teranos/cronnotify/logger"
)

var rootCmd = &cobra.Command{
	Use:   "cronnotify",
	Short: "Ask before running a scheduled job",
	Long: `cronnotify - desktop-notification driven job scheduler.

Instead of running a job at fixed times, cronnotify asks through a desktop
notification once the job is due. The job runs when you click "Start", is
postponed with "Later" and skipped until its next schedule with "Skip".

Available commands:
  run     - Run the scheduler daemon
  exec    - Run the job once, now
  next    - Show the last and next execution
  reset   - Forget the last execution
  am      - Show or initialize the configuration
  version - Show version information

Examples:
  cronnotify am init --variant borg -c 'borg create ::{now} ~'
  cronnotify run -v
  cronnotify next`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return commands.InitLogger(cmd, nil)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "f", "", "Config file, merged over the system and user config")
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Log as JSON lines")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.ExecCmd)
	rootCmd.AddCommand(commands.NextCmd)
	rootCmd.AddCommand(commands.ResetCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	err := rootCmd.Execute()
	logger.Cleanup()
	if err != nil {
		pterm.Error.Println(err)
		for _, hint := range errors.GetAllHints(err) {
			pterm.Info.Println(hint)
		}
		os.Exit(commands.ExitCode(err))
	}
}
