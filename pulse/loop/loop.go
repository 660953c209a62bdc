// Package loop provides the single-threaded event loop that drives the
// scheduler.
//
// All scheduler state is owned by the loop goroutine. Other goroutines
// (bus signal handlers, command runner workers) hand work to it with Post;
// delayed work is armed with AfterFunc and cancelled with Timer.Stop. A task
// that returns an error stops Run, which returns that error.
//
// Deadlines are kept in wall-clock time (monotonic reading stripped) so that
// a timer's remaining time can be recomputed after the machine wakes from
// suspend.
package loop

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Task is a unit of work executed on the loop goroutine
type Task func() error

// Clock returns the current wall-clock time
type Clock func() time.Time

// SystemClock is the default Clock
func SystemClock() time.Time {
	return time.Now().Round(0)
}

// Loop is a cooperative single-threaded task queue with timers
type Loop struct {
	mu     sync.Mutex
	clock  Clock
	queue  []Task
	timers timerHeap
	seq    uint64
	wake   chan struct{}
}

// Option configures a Loop
type Option func(*Loop)

// WithClock replaces the wall clock, mainly for tests driving RunPending
func WithClock(clock Clock) Option {
	return func(l *Loop) {
		l.clock = clock
	}
}

// New creates an idle loop
func New(opts ...Option) *Loop {
	l := &Loop{
		clock: SystemClock,
		wake:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the loop's notion of the current time
func (l *Loop) Now() time.Time {
	return l.clock()
}

// Post queues task to run on the loop goroutine. Safe for concurrent use.
func (l *Loop) Post(task Task) {
	l.mu.Lock()
	l.queue = append(l.queue, task)
	l.mu.Unlock()
	l.signal()
}

// AfterFunc arms a timer that runs task on the loop goroutine once d has
// elapsed. A non-positive d makes the task due immediately.
func (l *Loop) AfterFunc(d time.Duration, task Task) *Timer {
	if d < 0 {
		d = 0
	}

	l.mu.Lock()
	l.seq++
	t := &Timer{
		loop:     l,
		deadline: l.clock().Add(d),
		task:     task,
		seq:      l.seq,
	}
	heap.Push(&l.timers, t)
	l.mu.Unlock()

	l.signal()
	return t
}

// Pending reports queued tasks plus armed timers
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue) + len(l.timers)
}

// Run executes tasks until ctx is cancelled or a task fails
func (l *Loop) Run(ctx context.Context) error {
	var wait *time.Timer
	defer func() {
		if wait != nil {
			wait.Stop()
		}
	}()

	for {
		task, next, ok := l.next()
		if ok {
			if err := task(); err != nil {
				return err
			}
			continue
		}

		var fire <-chan time.Time
		if next >= 0 {
			if wait == nil {
				wait = time.NewTimer(next)
			} else {
				wait.Reset(next)
			}
			fire = wait.C
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		case <-fire:
		}
		if wait != nil && !wait.Stop() {
			select {
			case <-wait.C:
			default:
			}
		}
	}
}

// RunPending executes every task that is runnable right now, including tasks
// posted or timers falling due while doing so, and returns without waiting.
func (l *Loop) RunPending() error {
	for {
		task, _, ok := l.next()
		if !ok {
			return nil
		}
		if err := task(); err != nil {
			return err
		}
	}
}

// next pops the next runnable task. When nothing is runnable it returns the
// wait until the earliest timer, or -1 if no timer is armed.
func (l *Loop) next() (Task, time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) > 0 {
		task := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		return task, 0, true
	}

	if len(l.timers) == 0 {
		return nil, -1, false
	}

	earliest := l.timers[0]
	now := l.clock()
	if earliest.deadline.After(now) {
		return nil, earliest.deadline.Sub(now), false
	}

	heap.Pop(&l.timers)
	return earliest.task, 0, true
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Timer is a handle to delayed work armed with AfterFunc
type Timer struct {
	loop     *Loop
	deadline time.Time
	task     Task
	seq      uint64
	index    int
}

// Stop cancels the timer. It reports false if the timer already fired or
// was stopped.
func (t *Timer) Stop() bool {
	if t == nil {
		return false
	}

	t.loop.mu.Lock()
	defer t.loop.mu.Unlock()

	if t.index < 0 {
		return false
	}
	heap.Remove(&t.loop.timers, t.index)
	return true
}

// Deadline returns the wall-clock time the timer fires at
func (t *Timer) Deadline() time.Time {
	return t.deadline
}

// Remaining returns the wall-clock time left until the deadline. It is
// negative once the deadline has passed.
func (t *Timer) Remaining() time.Duration {
	return t.deadline.Sub(t.loop.clock())
}

type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x interface{}) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
