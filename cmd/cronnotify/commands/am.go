package commands

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/cronnotify/am"
	"github.com/teranos/cronnotify/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Show or initialize the configuration",
	Long: `Show or initialize the cronnotify configuration ("I am").

Configuration sources (later overrides earlier):
  1. Built-in defaults
  2. /etc/cronnotify/am.toml
  3. $XDG_CONFIG_HOME/cronnotify/am.toml
  4. The file given with --config
  5. CRONNOTIFY_* environment variables (e.g. CRONNOTIFY_JOB_CRON)

Examples:
  cronnotify am show
  cronnotify am init --variant backup -c 'restic backup ~'`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runAmShow,
}

var amInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter configuration",
	Long: `Write a configuration spelling out the texts of a preset, ready to edit.

Without a path the user config ($XDG_CONFIG_HOME/cronnotify/am.toml) is
written. An existing file is only replaced with --force; the previous
versions are kept as .back1 to .back3.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAmInit,
}

func init() {
	amInitCmd.Flags().String("variant", "generic", "Preset: generic, backup or borg")
	amInitCmd.Flags().StringArrayP("command", "c", nil, "Job command line (repeatable)")
	amInitCmd.Flags().Bool("force", false, "Replace an existing file")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amInitCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, sources, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	data, err := am.Render(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "# cronnotify configuration")
	if len(sources.Files) == 0 {
		fmt.Fprintln(out, "# source: built-in defaults")
	}
	for _, f := range sources.Files {
		fmt.Fprintf(out, "# source: %s\n", f)
	}
	fmt.Fprint(out, string(data))

	for _, key := range sources.UnknownKeys {
		pterm.Warning.Printfln("Unknown key %s", key)
	}
	return nil
}

func runAmInit(cmd *cobra.Command, args []string) error {
	path := am.UserConfigPath()
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return errors.NewConfigurationError("cannot locate the user config directory, pass a path")
	}

	variant, _ := cmd.Flags().GetString("variant")
	commands, _ := cmd.Flags().GetStringArray("command")
	force, _ := cmd.Flags().GetBool("force")

	cfg, ok := am.Starter(variant, commands)
	if !ok {
		return errors.NewConfigurationError("unknown variant %q (expected generic, backup or borg)", variant)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil && !force {
		return errors.WithHint(
			errors.NewConfigurationError("%s already exists", path),
			"use --force to replace it, the current file is kept as .back1")
	}

	if err := am.WriteConfig(path, cfg, nil); err != nil {
		return err
	}
	pterm.Success.Printfln("Wrote %s", path)
	return nil
}
