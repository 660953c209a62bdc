// Package schedule decides when the job is due, asks the user through a
// desktop notification, and runs it.
//
// Everything in this package except the command runner worker executes on
// the pulse/loop goroutine; collaborators that deliver events from other
// goroutines are wrapped so their callbacks are posted to the loop.
package schedule

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"time"

	"github.com/teranos/cronnotify/errors"
	"github.com/teranos/cronnotify/pulse/exec"
)

// Defaults inherited by every variant
const (
	DefaultCronExpression = "0 8 * * *"
	DefaultSleepInterval  = time.Hour
)

// Job is the one job definition a scheduler instance manages
type Job struct {
	ID            string         // Stable identity keying the execution record
	Name          string         // Display name (optional)
	Commands      []exec.Command // Run in order, never short-circuited
	Cron          string         // Cron expression, validated eagerly
	SleepInterval time.Duration  // Response timeout and "later"/dismiss back-off
	MainPowerOnly bool           // Defer prompting until on mains power
	Async         bool           // Run commands on a worker goroutine
}

var identityPattern = regexp.MustCompile(`^[\w.-]+$`)

// ValidateIdentity checks an app label or job id against [\w.-]+
func ValidateIdentity(kind, value string) error {
	if !identityPattern.MatchString(value) {
		return errors.NewConfigurationError("invalid %s %q: only letters, digits, '_', '.' and '-' are allowed", kind, value)
	}
	return nil
}

// DeriveJobID returns the content hash identity of a command list
func DeriveJobID(commands []exec.Command) string {
	encoded, _ := json.Marshal(commands)
	sum := sha1.Sum(encoded)
	return hex.EncodeToString(sum[:])
}

// Validate checks the job and fills in derived defaults. The cron
// expression is validated against now.
func (j *Job) Validate(now time.Time) error {
	if len(j.Commands) == 0 {
		return errors.NewConfigurationError("job has no commands")
	}
	for i, c := range j.Commands {
		if len(c) == 0 {
			return errors.NewConfigurationError("command %d is empty", i+1)
		}
	}

	if j.ID == "" {
		j.ID = DeriveJobID(j.Commands)
	}
	if err := ValidateIdentity("job id", j.ID); err != nil {
		return err
	}

	if j.Cron == "" {
		j.Cron = DefaultCronExpression
	}
	if _, err := ParseSchedule(j.Cron, now); err != nil {
		return err
	}

	if j.SleepInterval == 0 {
		j.SleepInterval = DefaultSleepInterval
	}
	if j.SleepInterval < time.Second {
		return errors.NewConfigurationError("sleep interval must be at least one second, got %s", j.SleepInterval)
	}
	return nil
}
