package schedule

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/cronnotify/errors"
	"github.com/teranos/cronnotify/logger"
	"github.com/teranos/cronnotify/pulse/exec"
	"github.com/teranos/cronnotify/pulse/loop"
)

// MaxDueDelay caps how long the due-check timer sleeps, so that clock
// changes and missed resume signals are noticed within the hour.
const MaxDueDelay = time.Hour

// Prompt retries after an unreachable notification service are immediate
// for a short burst, then spaced out to one per retryInterval. An endless
// zero-delay retry would spin the loop while the session bus is gone.
const (
	retryBurst    = 3
	retryInterval = 30 * time.Second
)

// Config is everything a Scheduler needs to know about its job
type Config struct {
	App      string
	Job      Job
	Messages Messages
	Actions  []ActionButton
}

// ConfigFromVariant builds a Config from a preset
func ConfigFromVariant(v Variant, job Job) Config {
	return Config{App: v.App, Job: job, Messages: v.Messages, Actions: v.Actions}
}

// Deps are the scheduler's collaborators. Power and Suspend are optional.
type Deps struct {
	Loop     *loop.Loop
	Records  RecordStore
	Runner   *exec.Runner
	Notifier Notifier
	Power    PowerSource
	Suspend  SuspendSource
	Logger   *zap.SugaredLogger
}

// RunMode selects whether RunNow waits for the commands to finish
type RunMode int

const (
	// RunDefault blocks for synchronous jobs and returns early for async ones
	RunDefault RunMode = iota
	RunBlocking
	RunNonBlocking
)

// Execution is a handle to one run of the job
type Execution struct {
	ID     uint64
	done   chan struct{}
	result exec.Result
	err    error
}

// Done is closed once the commands finished
func (e *Execution) Done() <-chan struct{} {
	return e.done
}

// Result returns the outcome. Only valid after Done is closed.
func (e *Execution) Result() (exec.Result, error) {
	return e.result, e.err
}

// Status is the schedule state derived from the execution record
type Status struct {
	LastExecution time.Time // Zero when never executed
	NextExecution time.Time
}

// Executed reports whether the job ran before
func (s Status) Executed() bool {
	return !s.LastExecution.IsZero()
}

// Due reports whether the job is due at now
func (s Status) Due(now time.Time) bool {
	return !s.NextExecution.After(now)
}

// ComputeStatus reads the record of job and derives its next due time. A job
// that never ran is due at now.
func ComputeStatus(records RecordStore, sched *Schedule, jobID string, now time.Time) (Status, error) {
	last, ok, err := records.Get(jobID)
	if err != nil {
		return Status{}, err
	}
	if !ok {
		return Status{NextExecution: now}, nil
	}

	next := sched.Next(last)
	if next.IsZero() {
		next = now
	}
	return Status{LastExecution: last, NextExecution: next}, nil
}

// Scheduler runs the due-check, prompt and execute cycle of one job. Apart
// from construction all methods must be called on the loop goroutine.
type Scheduler struct {
	cfg      Config
	schedule *Schedule

	loop     *loop.Loop
	records  RecordStore
	runner   *exec.Runner
	notifier Notifier
	power    *PowerGate
	suspend  *SuspendMonitor
	prompt   *prompt
	logger   *zap.SugaredLogger

	ctx      context.Context
	started  bool
	dueTimer *loop.Timer
	status   Status
	logged   *Status

	executionSeq uint64
	inflight     map[uint64]*Execution
	retry        *rate.Limiter
}

// NewScheduler validates cfg and wires the scheduler's components
func NewScheduler(cfg Config, deps Deps) (*Scheduler, error) {
	if deps.Loop == nil || deps.Records == nil || deps.Runner == nil || deps.Notifier == nil {
		return nil, errors.NewConfigurationError("scheduler requires a loop, a record store, a runner and a notifier")
	}
	if err := ValidateIdentity("app", cfg.App); err != nil {
		return nil, err
	}
	if err := cfg.Job.Validate(deps.Loop.Now()); err != nil {
		return nil, err
	}
	sched, err := ParseSchedule(cfg.Job.Cron, deps.Loop.Now())
	if err != nil {
		return nil, err
	}

	log := logger.OrNop(deps.Logger).With(logger.FieldApp, cfg.App, logger.FieldJobID, cfg.Job.ID)

	s := &Scheduler{
		cfg:      cfg,
		schedule: sched,
		loop:     deps.Loop,
		records:  deps.Records,
		runner:   deps.Runner,
		notifier: deps.Notifier,
		logger:   log,
		ctx:      context.Background(),
		inflight: make(map[uint64]*Execution),
		retry:    rate.NewLimiter(rate.Every(retryInterval), retryBurst),
	}
	s.power = NewPowerGate(deps.Power, deps.Loop, log.Named("power"))
	s.suspend = NewSuspendMonitor(deps.Suspend, deps.Loop, func() error {
		return s.fail(s.onResume())
	}, log.Named("suspend"))
	s.prompt = newPrompt(deps.Notifier, deps.Loop, cfg.App, func(a Action) error {
		return s.fail(s.onPromptResolved(a))
	}, log.Named("prompt"))
	return s, nil
}

// Job returns the managed job
func (s *Scheduler) Job() Job {
	return s.cfg.Job
}

// DisplayName is the job's name as shown to the user
func (s *Scheduler) DisplayName() string {
	return s.cfg.Messages.DisplayName(s.cfg.Job.Name)
}

// Status returns the schedule state as of the last due check
func (s *Scheduler) Status() Status {
	return s.status
}

// Start connects the notifier, subscribes to sleep transitions and arms the
// first due check. Run operations use ctx to wait for the execution lock.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.started {
		return errors.NewInvariantViolation("scheduler already started")
	}
	s.started = true
	s.ctx = ctx

	s.logger.Infow("Starting scheduler", "cron", s.schedule.Expression(), "sleep_interval", s.cfg.Job.SleepInterval)

	s.notifier.SetHandlers(s.prompt.handlers())
	if err := s.prompt.init(); err != nil {
		if !errors.IsTransportUnavailable(err) {
			return err
		}
		// the session may still be coming up, the first prompt retries
		s.logger.Warnw("Notification service not reachable yet", logger.FieldError, err)
	}
	s.suspend.Start()
	return s.armDue(0)
}

// Stop releases subscriptions and cancels the due check
func (s *Scheduler) Stop() {
	s.suspend.Stop()
	s.power.Cancel()
	if s.dueTimer != nil {
		s.dueTimer.Stop()
		s.dueTimer = nil
	}
	s.prompt.reset()
}

// Wait blocks until every async execution finished and applies its outcome:
// the status notification or the record rollback. Call it on the loop
// goroutine once the loop no longer runs, typically after Stop.
func (s *Scheduler) Wait() error {
	for len(s.inflight) > 0 {
		s.logger.Infow("Waiting for the running job to finish...", "executions", len(s.inflight))
		for _, e := range s.inflight {
			<-e.Done()
			break
		}
		if err := s.loop.RunPending(); err != nil {
			return err
		}
	}
	return nil
}

// fail logs an error leaving the scheduler for the loop, which stops on it
func (s *Scheduler) fail(err error) error {
	if err != nil {
		s.logger.Errorw("Scheduler failed", logger.FieldError, err)
	}
	return err
}

func (s *Scheduler) armDue(d time.Duration) error {
	if s.dueTimer != nil {
		return errors.NewInvariantViolation("due-check timer is already armed")
	}
	if d > 0 {
		s.logger.Debugw("Sleeping...", logger.FieldDelay, d)
	}
	s.dueTimer = s.loop.AfterFunc(d, func() error {
		s.dueTimer = nil
		return s.fail(s.tick())
	})
	return nil
}

// rearmDue replaces an outstanding due check by one firing after d
func (s *Scheduler) rearmDue(d time.Duration) error {
	if s.dueTimer == nil {
		return nil
	}
	s.dueTimer.Stop()
	s.dueTimer = nil
	return s.armDue(d)
}

func (s *Scheduler) tick() error {
	due, err := s.checkDue()
	if err != nil {
		return errors.Wrap(err, "failed to check whether the job is due")
	}
	if !due {
		return nil
	}

	if s.cfg.Job.MainPowerOnly && !s.power.OnMainsPower() {
		if s.power.AwaitMainsPower(func() error { return s.fail(s.promptUser()) }) {
			return nil
		}
	}
	return s.promptUser()
}

func (s *Scheduler) checkDue() (bool, error) {
	now := s.loop.Now()
	status, err := ComputeStatus(s.records, s.schedule, s.cfg.Job.ID, now)
	if err != nil {
		return false, err
	}
	s.status = status
	s.logStatus()

	if status.Due(now) {
		s.logger.Infow("Job is due")
		return true, nil
	}

	delay := status.NextExecution.Sub(now)
	if delay > MaxDueDelay {
		delay = MaxDueDelay
	}
	return false, s.armDue(delay)
}

// logStatus logs the schedule at info level when it changed since the
// previous check, at debug level otherwise
func (s *Scheduler) logStatus() {
	log := s.logger.Infow
	if s.logged != nil && s.logged.LastExecution.Equal(s.status.LastExecution) &&
		s.logged.NextExecution.Equal(s.status.NextExecution) {
		log = s.logger.Debugw
	}
	current := s.status
	s.logged = &current

	if current.Executed() {
		log("Last execution", logger.FieldLastExecution, current.LastExecution.Format(time.RFC3339))
	} else {
		log("Job has never been executed")
	}
	log("Next execution", logger.FieldNextExecution, current.NextExecution.Format(time.RFC3339))
}

func (s *Scheduler) promptUser() error {
	t := s.cfg.Messages.Prompt.Render(s.DisplayName())
	n := Notification{
		Summary:    t.Summary,
		Body:       t.Body,
		Icon:       t.Icon,
		Urgency:    UrgencyNormal,
		Persistent: true,
		Category:   "presence",
		Actions:    s.cfg.Actions,
	}

	shown, err := s.prompt.open(n, s.cfg.Job.SleepInterval)
	if err != nil {
		return err
	}
	if shown {
		return nil
	}

	now := s.loop.Now()
	delay := s.retry.ReserveN(now, 1).DelayFrom(now)
	s.logger.Infow("Retrying notification", logger.FieldDelay, delay)
	return s.armDue(delay)
}

func (s *Scheduler) onPromptResolved(action Action) error {
	switch action {
	case ActionStart:
		if _, err := s.RunNow(RunDefault); err != nil {
			return err
		}
		return s.armDue(0)
	case ActionSkip:
		now := truncateToSecond(s.loop.Now())
		s.logger.Infow("Skipping execution", logger.FieldLastExecution, now.Format(time.RFC3339))
		if err := s.records.Set(s.cfg.Job.ID, now); err != nil {
			return err
		}
		return s.armDue(0)
	case ActionIgnore:
		return s.armDue(0)
	default:
		// later, or dismissed
		return s.armDue(s.cfg.Job.SleepInterval)
	}
}

// onResume re-arms whichever timer governs progress, giving it at least
// ResumeFloor
func (s *Scheduler) onResume() error {
	s.logger.Infow("Device resumed from sleep")
	if s.dueTimer != nil && s.prompt.timeout != nil {
		return errors.NewInvariantViolation("both the due-check timer and the notification timeout are armed")
	}

	if s.dueTimer != nil {
		delay := resumeDelay(s.dueTimer.Remaining())
		s.logger.Debugw("Re-arming due check", logger.FieldDelay, delay)
		return s.rearmDue(delay)
	}
	s.prompt.resume()
	return nil
}

// RunNow records the current time as the last execution and runs the job's
// commands. Synchronous jobs run on the loop goroutine; async jobs run on a
// worker goroutine and report back through the loop.
func (s *Scheduler) RunNow(mode RunMode) (*Execution, error) {
	blocking := !s.cfg.Job.Async
	switch mode {
	case RunBlocking:
		blocking = true
	case RunNonBlocking:
		blocking = false
	}
	if !s.cfg.Job.Async && !blocking {
		return nil, errors.NewConfigurationError("a synchronous job cannot run without blocking")
	}

	previous, hadPrevious, err := s.records.Get(s.cfg.Job.ID)
	if err != nil {
		return nil, err
	}
	started := truncateToSecond(s.loop.Now())
	if err := s.records.Set(s.cfg.Job.ID, started); err != nil {
		return nil, err
	}
	s.status.LastExecution = started

	s.executionSeq++
	e := &Execution{ID: s.executionSeq, done: make(chan struct{})}
	log := s.logger.With(logger.FieldExecutionID, e.ID)
	log.Infow("Executing job...", "async", s.cfg.Job.Async)

	finish := func() error {
		return s.finish(log, e, started, previous, hadPrevious)
	}

	if !s.cfg.Job.Async {
		e.result, e.err = s.runner.Run(s.ctx, s.cfg.Job.Commands)
		close(e.done)
		return e, finish()
	}

	ctx := s.ctx
	commands := s.cfg.Job.Commands
	s.inflight[e.ID] = e
	go func() {
		e.result, e.err = s.runner.Run(ctx, commands)
		s.loop.Post(func() error { return s.fail(finish()) })
		close(e.done)
	}()
	if blocking {
		<-e.done
	}
	return e, nil
}

func (s *Scheduler) finish(log *zap.SugaredLogger, e *Execution, started, previous time.Time, hadPrevious bool) error {
	delete(s.inflight, e.ID)
	if e.err != nil {
		if errors.IsAny(e.err, context.Canceled, context.DeadlineExceeded) {
			// shut down before the execution lock was free, nothing ran
			log.Infow("Execution cancelled before it started, restoring previous execution record")
			return s.rollback(log, e.ID, started, previous, hadPrevious)
		}
		return errors.Wrap(e.err, "execution aborted")
	}
	log = log.With(logger.FieldRunID, e.result.RunID, logger.FieldSeverity, e.result.Severity.String())

	if e.result.Severity == exec.SeverityTryAgain {
		log.Infow("Job asked to be retried, restoring previous execution record")
		return s.rollback(log, e.ID, started, previous, hadPrevious)
	}
	return s.notifyStatus(e.result.Severity)
}

// rollback restores the record written by execution id, unless a newer
// execution started or the record changed since
func (s *Scheduler) rollback(log *zap.SugaredLogger, id uint64, started, previous time.Time, hadPrevious bool) error {
	if id != s.executionSeq {
		log.Infow("A newer execution started meanwhile, keeping execution record")
		return nil
	}

	current, ok, err := s.records.Get(s.cfg.Job.ID)
	if err != nil {
		return err
	}
	if !ok || !current.Equal(started) {
		log.Infow("Execution record changed meanwhile, keeping it")
		return nil
	}

	if hadPrevious {
		err = s.records.Set(s.cfg.Job.ID, previous)
	} else {
		err = s.records.Delete(s.cfg.Job.ID)
	}
	if err != nil {
		return err
	}
	s.status.LastExecution = previous

	return s.rearmDue(0)
}

func (s *Scheduler) notifyStatus(severity exec.Severity) error {
	tmpl, ok := s.cfg.Messages.Status(severity)
	if !ok {
		return nil
	}
	if err := s.prompt.init(); err != nil {
		if !errors.IsTransportUnavailable(err) {
			return err
		}
		s.logger.Errorw("Dropping status notification", logger.FieldError, err)
		return nil
	}

	t := tmpl.Render(s.DisplayName())
	_, err := s.notifier.Show(Notification{
		Summary:    t.Summary,
		Body:       t.Body,
		Icon:       t.Icon,
		Urgency:    UrgencyNormal,
		Persistent: true,
		Category:   "presence",
	})
	if err == nil {
		return nil
	}
	if !errors.IsTransportUnavailable(err) {
		return errors.Wrap(err, "failed to send status notification")
	}
	s.logger.Errorw("Failed to send status notification", logger.FieldError, err)
	if err := s.prompt.reinit(); err != nil && !errors.IsTransportUnavailable(err) {
		return err
	}
	return nil
}

// Reload carries the options that can change while the scheduler runs
type Reload struct {
	Name          string
	Cron          string
	SleepInterval time.Duration
	MainPowerOnly bool
	Messages      Messages
}

// Reconfigure applies r. An outstanding due check is re-run immediately so
// a new schedule takes effect; an open prompt keeps its old texts.
func (s *Scheduler) Reconfigure(r Reload) error {
	job := s.cfg.Job
	job.Name = r.Name
	job.Cron = r.Cron
	job.SleepInterval = r.SleepInterval
	job.MainPowerOnly = r.MainPowerOnly
	if err := job.Validate(s.loop.Now()); err != nil {
		return err
	}
	sched, err := ParseSchedule(job.Cron, s.loop.Now())
	if err != nil {
		return err
	}

	s.cfg.Job = job
	s.cfg.Messages = r.Messages
	s.schedule = sched
	s.logger.Infow("Configuration reloaded", "cron", sched.Expression(), "sleep_interval", job.SleepInterval)

	if !job.MainPowerOnly {
		if s.power.Waiting() {
			s.power.Cancel()
			return s.armDue(0)
		}
	}
	return s.rearmDue(0)
}

func truncateToSecond(t time.Time) time.Time {
	return time.Unix(t.Unix(), 0)
}
