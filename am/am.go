// Package am loads the cronnotify configuration and turns it into the
// scheduler's job definition.
package am

import (
	"time"

	"github.com/teranos/cronnotify/errors"
	"github.com/teranos/cronnotify/pulse/exec"
	"github.com/teranos/cronnotify/pulse/schedule"
)

// Config represents the cronnotify configuration
type Config struct {
	Notify   NotifyConfig   `mapstructure:"notify" toml:"notify"`
	Job      JobConfig      `mapstructure:"job" toml:"job"`
	Messages MessagesConfig `mapstructure:"messages" toml:"messages"`
	Log      LogConfig      `mapstructure:"log" toml:"log"`
}

// NotifyConfig selects the notifier flavour
type NotifyConfig struct {
	App        string `mapstructure:"app" toml:"app,omitempty"`                 // Application label, empty = variant default
	Variant    string `mapstructure:"variant" toml:"variant"`                   // generic, backup or borg
	ExitPolicy string `mapstructure:"exit_policy" toml:"exit_policy,omitempty"` // generalized or simple, empty = variant default
}

// JobConfig describes the managed job
type JobConfig struct {
	ID           string   `mapstructure:"id" toml:"id,omitempty"` // Empty = derived from commands
	Name         string   `mapstructure:"name" toml:"name,omitempty"`
	Cron         string   `mapstructure:"cron" toml:"cron"`
	SleepSeconds int      `mapstructure:"sleep_seconds" toml:"sleep_seconds"`
	MainPower    bool     `mapstructure:"main_power" toml:"main_power"`
	Async        bool     `mapstructure:"async" toml:"async"`
	Commands     []string `mapstructure:"commands" toml:"commands"` // Shell-quoted command lines
}

// TemplateConfig overrides a notification text. Empty fields keep the
// variant's text.
type TemplateConfig struct {
	Summary string `mapstructure:"summary" toml:"summary,omitempty"`
	Body    string `mapstructure:"body" toml:"body,omitempty"`
	Icon    string `mapstructure:"icon" toml:"icon,omitempty"`
}

// NameTemplateConfig overrides how the job's name is displayed
type NameTemplateConfig struct {
	Unnamed string `mapstructure:"unnamed" toml:"unnamed,omitempty"`
	Named   string `mapstructure:"named" toml:"named,omitempty"`
}

// MessagesConfig overrides the variant's texts
type MessagesConfig struct {
	NameTemplate NameTemplateConfig `mapstructure:"name_template" toml:"name_template"`
	Prompt       TemplateConfig     `mapstructure:"prompt" toml:"prompt"`
	Success      TemplateConfig     `mapstructure:"success" toml:"success"`
	Warning      TemplateConfig     `mapstructure:"warning" toml:"warning"`
	Failure      TemplateConfig     `mapstructure:"failure" toml:"failure"`
}

// LogConfig configures the logger
type LogConfig struct {
	JSON      bool `mapstructure:"json" toml:"json"`
	Verbosity int  `mapstructure:"verbosity" toml:"verbosity"`
}

// Variant returns the selected preset with the configured overrides applied
func (c *Config) Variant() (schedule.Variant, error) {
	v, ok := schedule.VariantByName(c.Notify.Variant)
	if !ok {
		return schedule.Variant{}, errors.NewConfigurationError("unknown variant %q (expected generic, backup or borg)", c.Notify.Variant)
	}

	if c.Notify.App != "" {
		v.App = c.Notify.App
	}
	if c.Notify.ExitPolicy != "" {
		policy, err := exec.ParseExitPolicy(c.Notify.ExitPolicy)
		if err != nil {
			return schedule.Variant{}, err
		}
		v.ExitPolicy = policy
	}

	v.Messages = c.Messages.apply(v.Messages)
	return v, nil
}

func (m MessagesConfig) apply(base schedule.Messages) schedule.Messages {
	if m.NameTemplate.Unnamed != "" {
		base.Unnamed = m.NameTemplate.Unnamed
	}
	if m.NameTemplate.Named != "" {
		base.Named = m.NameTemplate.Named
	}
	base.Prompt = m.Prompt.apply(base.Prompt)
	base.Success = m.Success.apply(base.Success)
	base.Warning = m.Warning.apply(base.Warning)
	base.Failure = m.Failure.apply(base.Failure)
	return base
}

func (t TemplateConfig) apply(base schedule.Template) schedule.Template {
	if t.Summary != "" {
		base.Summary = t.Summary
	}
	if t.Body != "" {
		base.Body = t.Body
	}
	if t.Icon != "" {
		base.Icon = t.Icon
	}
	return base
}

// Commands parses the configured command lines
func (c *Config) Commands() ([]exec.Command, error) {
	commands := make([]exec.Command, 0, len(c.Job.Commands))
	for _, line := range c.Job.Commands {
		cmd, err := exec.ParseCommand(line)
		if err != nil {
			return nil, err
		}
		commands = append(commands, cmd)
	}
	return commands, nil
}

// SleepInterval returns job.sleep_seconds as a duration
func (c *Config) SleepInterval() time.Duration {
	return time.Duration(c.Job.SleepSeconds) * time.Second
}

// ScheduleJob builds the job definition
func (c *Config) ScheduleJob() (schedule.Job, error) {
	commands, err := c.Commands()
	if err != nil {
		return schedule.Job{}, err
	}
	job := schedule.Job{
		ID:            c.Job.ID,
		Name:          c.Job.Name,
		Commands:      commands,
		Cron:          c.Job.Cron,
		SleepInterval: c.SleepInterval(),
		MainPowerOnly: c.Job.MainPower,
		Async:         c.Job.Async,
	}
	if err := job.Validate(time.Now()); err != nil {
		return schedule.Job{}, err
	}
	return job, nil
}

// SchedulerConfig builds everything the scheduler and runner need
func (c *Config) SchedulerConfig() (schedule.Config, exec.ExitPolicy, error) {
	v, err := c.Variant()
	if err != nil {
		return schedule.Config{}, 0, err
	}
	job, err := c.ScheduleJob()
	if err != nil {
		return schedule.Config{}, 0, err
	}
	return schedule.ConfigFromVariant(v, job), v.ExitPolicy, nil
}

// Reload extracts the options a running scheduler can pick up
func (c *Config) Reload() (schedule.Reload, error) {
	v, err := c.Variant()
	if err != nil {
		return schedule.Reload{}, err
	}
	return schedule.Reload{
		Name:          c.Job.Name,
		Cron:          c.Job.Cron,
		SleepInterval: c.SleepInterval(),
		MainPowerOnly: c.Job.MainPower,
		Messages:      v.Messages,
	}, nil
}
