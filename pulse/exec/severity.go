package exec

import (
	"strings"

	"github.com/teranos/cronnotify/errors"
)

// Severity summarizes the outcome of a job run. Values are ordered, so the
// outcome of a command list is the maximum over its commands.
type Severity int

const (
	SeveritySuccess Severity = iota
	SeverityTryAgain
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeveritySuccess:
		return "success"
	case SeverityTryAgain:
		return "try-again"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Max returns the more severe of s and other
func (s Severity) Max(other Severity) Severity {
	if other > s {
		return other
	}
	return s
}

// Exit codes with a special meaning under ExitPolicyGeneralized
const (
	ExitCodeTryAgain = 75  // EX_TEMPFAIL
	ExitCodeWarning  = 254 // borg and friends: finished with warnings
)

// ExitPolicy maps a command's exit status to a Severity
type ExitPolicy int

const (
	// ExitPolicyGeneralized distinguishes warning (254) and try-again (75)
	// exits; any other non-zero status is an error.
	ExitPolicyGeneralized ExitPolicy = iota
	// ExitPolicySimple treats every non-zero status as a warning.
	ExitPolicySimple
)

// Classify returns the severity of exit code code
func (p ExitPolicy) Classify(code int) Severity {
	if code == 0 {
		return SeveritySuccess
	}

	if p == ExitPolicySimple {
		return SeverityWarning
	}

	switch code {
	case ExitCodeWarning:
		return SeverityWarning
	case ExitCodeTryAgain:
		return SeverityTryAgain
	default:
		return SeverityError
	}
}

func (p ExitPolicy) String() string {
	if p == ExitPolicySimple {
		return "simple"
	}
	return "generalized"
}

// ParseExitPolicy parses "generalized" or "simple"
func ParseExitPolicy(s string) (ExitPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "generalized":
		return ExitPolicyGeneralized, nil
	case "simple":
		return ExitPolicySimple, nil
	default:
		return 0, errors.NewConfigurationError("unknown exit policy %q (expected generalized or simple)", s)
	}
}
