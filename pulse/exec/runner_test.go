package exec

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/cronnotify/errors"
)

func exit(code string) Command {
	return Command{"sh", "-c", "exit " + code}
}

func newTestRunner(t *testing.T, policy ExitPolicy) (*Runner, *bytes.Buffer) {
	var out bytes.Buffer
	r := NewRunner(policy,
		WithLogger(zaptest.NewLogger(t).Sugar()),
		WithStreams(Streams{Stdin: bytes.NewReader(nil), Stdout: &out, Stderr: &out}),
	)
	return r, &out
}

func TestClassify(t *testing.T) {
	tests := []struct {
		policy ExitPolicy
		code   int
		want   Severity
	}{
		{ExitPolicyGeneralized, 0, SeveritySuccess},
		{ExitPolicyGeneralized, 1, SeverityError},
		{ExitPolicyGeneralized, 75, SeverityTryAgain},
		{ExitPolicyGeneralized, 254, SeverityWarning},
		{ExitPolicyGeneralized, 255, SeverityError},
		{ExitPolicySimple, 0, SeveritySuccess},
		{ExitPolicySimple, 1, SeverityWarning},
		{ExitPolicySimple, 75, SeverityWarning},
		{ExitPolicySimple, 254, SeverityWarning},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.policy.Classify(tt.code), "%s policy, exit %d", tt.policy, tt.code)
	}
}

func TestSeverityOrdering(t *testing.T) {
	assert.True(t, SeveritySuccess < SeverityTryAgain)
	assert.True(t, SeverityTryAgain < SeverityWarning)
	assert.True(t, SeverityWarning < SeverityError)
	assert.Equal(t, SeverityWarning, SeverityTryAgain.Max(SeverityWarning))
	assert.Equal(t, SeverityError, SeverityError.Max(SeveritySuccess))
	assert.Equal(t, "try-again", SeverityTryAgain.String())
}

func TestParseExitPolicy(t *testing.T) {
	p, err := ParseExitPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ExitPolicyGeneralized, p)

	p, err = ParseExitPolicy("Simple")
	require.NoError(t, err)
	assert.Equal(t, ExitPolicySimple, p)

	_, err = ParseExitPolicy("lenient")
	assert.True(t, errors.IsConfigurationError(err))
}

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand(`borg create --stats "/backup::{now}" "/home/user/My Files"`)
	require.NoError(t, err)
	assert.Equal(t, Command{"borg", "create", "--stats", "/backup::{now}", "/home/user/My Files"}, cmd)

	again, err := ParseCommand(cmd.String())
	require.NoError(t, err)
	assert.Equal(t, cmd, again, "String() must round-trip through the parser")

	_, err = ParseCommand(`echo "unterminated`)
	assert.True(t, errors.IsConfigurationError(err))

	_, err = ParseCommand("   ")
	assert.True(t, errors.IsConfigurationError(err))
}

func TestRun_AllSucceed(t *testing.T) {
	r, _ := newTestRunner(t, ExitPolicyGeneralized)

	result, err := r.Run(context.Background(), []Command{exit("0"), exit("0")})
	require.NoError(t, err)
	assert.Equal(t, SeveritySuccess, result.Severity)
	assert.Len(t, result.Commands, 2)
	assert.NotEmpty(t, result.RunID)
	assert.False(t, result.FinishedAt.Before(result.StartedAt))
}

func TestRun_NonZeroIsAtLeastWarning(t *testing.T) {
	for _, policy := range []ExitPolicy{ExitPolicyGeneralized, ExitPolicySimple} {
		r, _ := newTestRunner(t, policy)

		result, err := r.Run(context.Background(), []Command{exit("0"), exit("1")})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, int(result.Severity), int(SeverityWarning), "policy %s", policy)
	}
}

func TestRun_TryAgain(t *testing.T) {
	r, _ := newTestRunner(t, ExitPolicyGeneralized)

	result, err := r.Run(context.Background(), []Command{exit("0"), exit("75")})
	require.NoError(t, err)
	assert.Equal(t, SeverityTryAgain, result.Severity)
}

func TestRun_MaxSeverityWins(t *testing.T) {
	r, _ := newTestRunner(t, ExitPolicyGeneralized)

	result, err := r.Run(context.Background(), []Command{exit("254"), exit("75"), exit("0")})
	require.NoError(t, err)
	assert.Equal(t, SeverityWarning, result.Severity)
}

func TestRun_ContinuesAfterFailure(t *testing.T) {
	r, out := newTestRunner(t, ExitPolicyGeneralized)

	result, err := r.Run(context.Background(), []Command{
		exit("3"),
		{"sh", "-c", "echo still-running"},
	})
	require.NoError(t, err)
	assert.Equal(t, SeverityError, result.Severity)
	assert.Equal(t, 3, result.Commands[0].ExitCode)
	assert.Equal(t, 0, result.Commands[1].ExitCode)
	assert.Contains(t, out.String(), "still-running")
}

func TestRun_MissingExecutableIsError(t *testing.T) {
	r, out := newTestRunner(t, ExitPolicySimple)

	result, err := r.Run(context.Background(), []Command{
		{"/nonexistent/cronnotify-test-binary"},
		{"cronnotify-no-such-command-on-path"},
		{"sh", "-c", "echo after"},
	})
	require.NoError(t, err)
	assert.Equal(t, SeverityError, result.Severity)
	require.Len(t, result.Commands, 3)
	assert.Equal(t, -1, result.Commands[0].ExitCode)
	assert.Equal(t, SeverityError, result.Commands[1].Severity)
	assert.Contains(t, out.String(), "after")
}

func TestRun_PermissionDeniedIsError(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root bypasses execute permission checks on some filesystems")
	}
	script := filepath.Join(t.TempDir(), "job.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexit 0\n"), 0o644))

	r, _ := newTestRunner(t, ExitPolicyGeneralized)
	result, err := r.Run(context.Background(), []Command{{script}, exit("0")})
	require.NoError(t, err)
	assert.Equal(t, SeverityError, result.Severity)
	assert.Len(t, result.Commands, 2)
}

func TestRun_OtherLaunchFailureIsFatal(t *testing.T) {
	// executable bit set, but neither ELF nor shebang: execve fails with ENOEXEC
	script := filepath.Join(t.TempDir(), "garbage")
	require.NoError(t, os.WriteFile(script, []byte{0x00, 0x01, 0x02, 0x03}, 0o755))

	r, out := newTestRunner(t, ExitPolicyGeneralized)
	result, err := r.Run(context.Background(), []Command{{script}, {"sh", "-c", "echo never"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCommandLaunch))
	assert.Len(t, result.Commands, 1, "remaining commands are abandoned")
	assert.NotContains(t, out.String(), "never")

	// the lock was released on the fatal path
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = r.Run(ctx, []Command{exit("0")})
	assert.NoError(t, err)
}

func TestRun_LockSerializesRuns(t *testing.T) {
	r, _ := newTestRunner(t, ExitPolicyGeneralized)

	r.lock <- struct{}{} // a run in progress
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.Run(ctx, []Command{exit("0")})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	<-r.lock
	result, err := r.Run(context.Background(), []Command{exit("0")})
	require.NoError(t, err)
	assert.Equal(t, SeveritySuccess, result.Severity)
}
