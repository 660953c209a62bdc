package schedule

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/cronnotify/errors"
	"github.com/teranos/cronnotify/pulse/exec"
	"github.com/teranos/cronnotify/pulse/loop"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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

// fakeNotifier records notifications. Close behaves like a notification
// server and emits the closed event.
type fakeNotifier struct {
	mu          sync.Mutex
	handlers    NotificationHandlers
	initialized bool
	inits       int
	initErr     error
	showErrs    []error
	closeErr    error
	shown       []Notification
	ids         []uint32
	closed      []uint32
	nextID      uint32
}

func (n *fakeNotifier) Init(app string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.inits++
	if n.initErr != nil {
		return n.initErr
	}
	n.initialized = true
	return nil
}

func (n *fakeNotifier) Initialized() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.initialized
}

func (n *fakeNotifier) SetHandlers(h NotificationHandlers) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers = h
}

func (n *fakeNotifier) Show(notification Notification) (uint32, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.showErrs) > 0 {
		err := n.showErrs[0]
		n.showErrs = n.showErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	n.nextID++
	n.shown = append(n.shown, notification)
	n.ids = append(n.ids, n.nextID)
	return n.nextID, nil
}

func (n *fakeNotifier) Close(id uint32) error {
	n.mu.Lock()
	if n.closeErr != nil {
		n.mu.Unlock()
		return n.closeErr
	}
	n.closed = append(n.closed, id)
	h := n.handlers
	n.mu.Unlock()

	h.OnClosed(id)
	return nil
}

// act simulates the user choosing action on the latest notification; the
// server closes it afterwards
func (n *fakeNotifier) act(action Action) {
	n.mu.Lock()
	id := n.ids[len(n.ids)-1]
	h := n.handlers
	n.mu.Unlock()

	h.OnAction(id, action)
	h.OnClosed(id)
}

func (n *fakeNotifier) dismiss() {
	n.mu.Lock()
	id := n.ids[len(n.ids)-1]
	h := n.handlers
	n.mu.Unlock()

	h.OnClosed(id)
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.shown)
}

func (n *fakeNotifier) last() Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.shown[len(n.shown)-1]
}

type memoryRecords struct {
	records map[string]time.Time
	getErr  error
	setErr  error
}

func newMemoryRecords() *memoryRecords {
	return &memoryRecords{records: map[string]time.Time{}}
}

func (m *memoryRecords) Get(jobID string) (time.Time, bool, error) {
	if m.getErr != nil {
		return time.Time{}, false, m.getErr
	}
	t, ok := m.records[jobID]
	return t, ok, nil
}

func (m *memoryRecords) Set(jobID string, t time.Time) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.records[jobID] = time.Unix(t.Unix(), 0)
	return nil
}

func (m *memoryRecords) Delete(jobID string) error {
	delete(m.records, jobID)
	return nil
}

type fakePower struct {
	mu        sync.Mutex
	onBattery bool
	err       error
	watchErr  error
	watchers  []func(bool)
	stopped   int
}

func (p *fakePower) OnBattery() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onBattery, p.err
}

func (p *fakePower) WatchOnBattery(fn func(bool)) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watchErr != nil {
		return nil, p.watchErr
	}
	p.watchers = append(p.watchers, fn)
	return func() {
		p.mu.Lock()
		p.stopped++
		p.mu.Unlock()
	}, nil
}

func (p *fakePower) set(onBattery bool) {
	p.mu.Lock()
	p.onBattery = onBattery
	watchers := append([]func(bool){}, p.watchers...)
	p.mu.Unlock()
	for _, fn := range watchers {
		fn(onBattery)
	}
}

type fakeSuspend struct {
	fn  func(bool)
	err error
}

func (s *fakeSuspend) WatchPrepareForSleep(fn func(bool)) (func(), error) {
	if s.err != nil {
		return nil, s.err
	}
	s.fn = fn
	return func() { s.fn = nil }, nil
}

func (s *fakeSuspend) resume() {
	s.fn(true)
	s.fn(false)
}

var errBusGone = errors.WrapTransport(errors.New("connection reset"), "notification service")

// harness wires a scheduler to fakes
type harness struct {
	t        *testing.T
	clock    *fakeClock
	loop     *loop.Loop
	records  *memoryRecords
	notifier *fakeNotifier
	power    *fakePower
	suspend  *fakeSuspend
	output   *bytes.Buffer
	errLogs  *observer.ObservedLogs
	sched    *Scheduler
}

// testNow is a Monday morning, local time
func testNow() time.Time {
	return time.Date(2026, 10, 19, 9, 0, 0, 0, time.Local)
}

func newHarness(t *testing.T, job Job, opts ...func(*harness)) *harness {
	h := &harness{
		t:        t,
		clock:    &fakeClock{now: testNow()},
		records:  newMemoryRecords(),
		notifier: &fakeNotifier{},
		power:    &fakePower{},
		suspend:  &fakeSuspend{},
		output:   &bytes.Buffer{},
	}
	h.loop = loop.New(loop.WithClock(h.clock.Now))
	for _, opt := range opts {
		opt(h)
	}

	// error-level entries are also captured for assertions
	errCore, observed := observer.New(zapcore.ErrorLevel)
	h.errLogs = observed
	log := zap.New(zapcore.NewTee(zaptest.NewLogger(t).Core(), errCore)).Sugar()
	runner := exec.NewRunner(exec.ExitPolicyGeneralized,
		exec.WithLogger(log),
		exec.WithStreams(exec.Streams{Stdin: bytes.NewReader(nil), Stdout: h.output, Stderr: h.output}),
	)

	sched, err := NewScheduler(ConfigFromVariant(GenericDefaults(), job), Deps{
		Loop:     h.loop,
		Records:  h.records,
		Runner:   runner,
		Notifier: h.notifier,
		Power:    h.power,
		Suspend:  h.suspend,
		Logger:   log,
	})
	require.NoError(t, err)
	h.sched = sched
	return h
}

func (h *harness) start() {
	h.loop.Post(func() error { return h.sched.Start(testContext(h.t)) })
	h.drain()
}

func (h *harness) drain() {
	require.NoError(h.t, h.loop.RunPending())
}

func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.drain()
}

func (h *harness) record() (time.Time, bool) {
	t, ok := h.records.records[h.sched.Job().ID]
	return t, ok
}

func shellExit(code string) exec.Command {
	return exec.Command{"sh", "-c", "exit " + code}
}

// testContext stands in for testing.T.Context (Go 1.24+): a context
// cancelled when the test's cleanup runs.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
