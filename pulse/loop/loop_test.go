package loop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/cronnotify/errors"
)

// fakeClock is a settable wall clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestPostRunsInOrder(t *testing.T) {
	l := New()
	var got []int
	for i := 1; i <= 3; i++ {
		i := i
		l.Post(func() error {
			got = append(got, i)
			return nil
		})
	}

	require.NoError(t, l.RunPending())
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.Equal(t, 0, l.Pending())
}

func TestAfterFunc_FiresOnlyWhenDue(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now))

	fired := 0
	timer := l.AfterFunc(time.Minute, func() error {
		fired++
		return nil
	})
	assert.Equal(t, clock.Now().Add(time.Minute), timer.Deadline())

	require.NoError(t, l.RunPending())
	assert.Equal(t, 0, fired)

	clock.Advance(59 * time.Second)
	require.NoError(t, l.RunPending())
	assert.Equal(t, 0, fired)
	assert.Equal(t, time.Second, timer.Remaining())

	clock.Advance(time.Second)
	require.NoError(t, l.RunPending())
	assert.Equal(t, 1, fired)
	assert.False(t, timer.Stop(), "fired timer cannot be stopped")
}

func TestAfterFunc_ZeroDelayRunsImmediately(t *testing.T) {
	l := New(WithClock(newFakeClock().Now))
	fired := false
	l.AfterFunc(0, func() error {
		fired = true
		return nil
	})

	require.NoError(t, l.RunPending())
	assert.True(t, fired)
}

func TestTimerStop(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now))

	fired := false
	timer := l.AfterFunc(time.Second, func() error {
		fired = true
		return nil
	})

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	clock.Advance(time.Hour)
	require.NoError(t, l.RunPending())
	assert.False(t, fired)
	assert.Equal(t, 0, l.Pending())
}

func TestTimersFireInDeadlineOrder(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now))

	var got []string
	record := func(name string) Task {
		return func() error {
			got = append(got, name)
			return nil
		}
	}
	l.AfterFunc(3*time.Second, record("c"))
	l.AfterFunc(time.Second, record("a"))
	l.AfterFunc(2*time.Second, record("b1"))
	l.AfterFunc(2*time.Second, record("b2"))

	clock.Advance(time.Minute)
	require.NoError(t, l.RunPending())
	assert.Equal(t, []string{"a", "b1", "b2", "c"}, got)
}

func TestTaskErrorStopsRunPending(t *testing.T) {
	l := New()
	boom := errors.New("boom")
	ran := false

	l.Post(func() error { return boom })
	l.Post(func() error {
		ran = true
		return nil
	})

	err := l.RunPending()
	assert.True(t, errors.Is(err, boom))
	assert.False(t, ran)
	assert.Equal(t, 1, l.Pending())
}

func TestRun_ExecutesPostedWorkAndStopsOnError(t *testing.T) {
	l := New()
	boom := errors.New("fatal tick")

	done := make(chan error, 1)
	go func() {
		done <- l.Run(context.Background())
	}()

	l.AfterFunc(10*time.Millisecond, func() error { return boom })

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, boom))
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestRun_ContextCancel(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- l.Run(ctx)
	}()

	ran := make(chan struct{})
	l.Post(func() error {
		close(ran)
		return nil
	})
	<-ran
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
}
