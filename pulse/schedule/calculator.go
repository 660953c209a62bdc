package schedule

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/teranos/cronnotify/errors"
)

// Schedule computes due times from a standard five-field cron expression.
// Descriptors (@daily, @every 2h) and a CRON_TZ= prefix are accepted.
// Expressions without CRON_TZ are evaluated in the local time zone.
type Schedule struct {
	expr     string
	schedule cron.Schedule
	location *time.Location
}

// ParseSchedule parses expr and checks it yields at least one time after now
func ParseSchedule(expr string, now time.Time) (*Schedule, error) {
	parsed, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, errors.Wrapf(errors.Mark(errors.Mark(err, errors.ErrInvalidSchedule), errors.ErrConfiguration), "invalid cron expression %q", expr)
	}

	s := &Schedule{expr: expr, schedule: parsed, location: time.Local}
	if s.Next(now).IsZero() {
		return nil, errors.Wrapf(errors.ErrInvalidSchedule, "cron expression %q never fires", expr)
	}
	return s, nil
}

// Expression returns the source expression
func (s *Schedule) Expression() string {
	return s.expr
}

// Next returns the first due time strictly after after, or the zero time if
// the expression has no occurrence within the parser's search horizon.
func (s *Schedule) Next(after time.Time) time.Time {
	next := s.schedule.Next(after.In(s.location))
	if next.IsZero() {
		return next
	}
	return next.Round(0)
}

// NextDue parses expr and returns its first due time after after
func NextDue(expr string, after time.Time) (time.Time, error) {
	s, err := ParseSchedule(expr, after)
	if err != nil {
		return time.Time{}, err
	}
	return s.Next(after), nil
}
