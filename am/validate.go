package am

import (
	"time"

	"github.com/teranos/cronnotify/errors"
	"github.com/teranos/cronnotify/pulse/schedule"
)

// Validate checks that the configuration is valid. All errors are marked
// as configuration errors.
func (c *Config) Validate() error {
	v, err := c.Variant()
	if err != nil {
		return err
	}
	if err := schedule.ValidateIdentity("notify.app", v.App); err != nil {
		return err
	}

	if c.Job.ID != "" {
		if err := schedule.ValidateIdentity("job.id", c.Job.ID); err != nil {
			return err
		}
	}

	// zero means zero: a sleep interval of 0 would spin
	if c.Job.SleepSeconds <= 0 {
		return errors.NewConfigurationError("job.sleep_seconds must be > 0, got %d", c.Job.SleepSeconds)
	}

	if _, err := schedule.ParseSchedule(c.Job.Cron, time.Now()); err != nil {
		return errors.Wrap(err, "job.cron")
	}

	if _, err := c.Commands(); err != nil {
		return errors.Wrap(err, "job.commands")
	}

	if c.Log.Verbosity < 0 {
		return errors.NewConfigurationError("log.verbosity must be >= 0, got %d", c.Log.Verbosity)
	}
	return nil
}

// ValidateJob additionally requires at least one command, which `run` and
// `exec` need but `am show` does not
func (c *Config) ValidateJob() error {
	if len(c.Job.Commands) == 0 {
		return errors.NewConfigurationError("job.commands is empty: nothing to run")
	}
	return nil
}
