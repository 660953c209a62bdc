package schedule

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/cronnotify/errors"
)

func TestNextDue_StrictlyAfter(t *testing.T) {
	at := time.Date(2026, 10, 19, 8, 0, 0, 0, time.Local)

	next, err := NextDue("0 8 * * *", at)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 20, 8, 0, 0, 0, time.Local), next)

	next, err = NextDue("0 8 * * *", at.Add(-time.Second))
	require.NoError(t, err)
	assert.Equal(t, at, next)
}

func TestNextDue_Expressions(t *testing.T) {
	after := time.Date(2026, 10, 19, 9, 17, 0, 0, time.Local) // a Monday

	tests := []struct {
		expr string
		want time.Time
	}{
		{"*/15 * * * *", time.Date(2026, 10, 19, 9, 30, 0, 0, time.Local)},
		{"0 20 * * 5", time.Date(2026, 10, 23, 20, 0, 0, 0, time.Local)},
		{"@daily", time.Date(2026, 10, 20, 0, 0, 0, 0, time.Local)},
		{"@every 2h", after.Add(2 * time.Hour)},
		{"0 3 1 * *", time.Date(2026, 11, 1, 3, 0, 0, 0, time.Local)},
	}

	for _, tt := range tests {
		next, err := NextDue(tt.expr, after)
		require.NoError(t, err, tt.expr)
		assert.True(t, tt.want.Equal(next), "%s: want %s, got %s", tt.expr, tt.want, next)
		assert.True(t, next.After(after), tt.expr)
	}
}

func TestNextDue_TimeZonePrefix(t *testing.T) {
	after := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	next, err := NextDue("CRON_TZ=Asia/Tokyo 0 9 * * *", after)
	require.NoError(t, err)
	assert.True(t, next.Equal(time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC).Add(24*time.Hour)),
		"09:00 in Tokyo is midnight UTC, strictly after means the next day: got %s", next.UTC())
}

func TestParseSchedule_Invalid(t *testing.T) {
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.Local)

	for _, expr := range []string{"", "61 * * * *", "* * *", "not a cron", "0 0 30 2 *"} {
		_, err := ParseSchedule(expr, now)
		require.Error(t, err, expr)
		assert.True(t, errors.Is(err, errors.ErrInvalidSchedule), expr)
		assert.True(t, errors.IsConfigurationError(err), expr)
	}
}
