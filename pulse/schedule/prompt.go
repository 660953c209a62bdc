package schedule

import (
	"time"

	"go.uber.org/zap"

	"github.com/teranos/cronnotify/errors"
	"github.com/teranos/cronnotify/logger"
	"github.com/teranos/cronnotify/pulse/loop"
)

// prompt drives the lifecycle of the "job is due" notification:
//
//	idle -> shown -> (action chosen) -> closed -> idle
//	             \-> timed out -> closed -> idle
//
// At most one notification is active. The chosen action is only recorded
// when the user picks it and takes effect when the notification closes;
// resolved delivers it to the scheduler with the state already reset.
type prompt struct {
	notifier Notifier
	loop     *loop.Loop
	logger   *zap.SugaredLogger
	app      string

	active  bool
	id      uint32
	pending Action
	timeout *loop.Timer

	resolved func(Action) error
}

func newPrompt(n Notifier, l *loop.Loop, app string, resolved func(Action) error, log *zap.SugaredLogger) *prompt {
	return &prompt{
		notifier: n,
		loop:     l,
		app:      app,
		resolved: resolved,
		logger:   logger.OrNop(log),
	}
}

// handlers are installed on the notifier; events are posted to the loop
func (p *prompt) handlers() NotificationHandlers {
	return NotificationHandlers{
		OnAction: func(id uint32, action Action) {
			p.loop.Post(func() error { return p.handleAction(id, action) })
		},
		OnClosed: func(id uint32) {
			p.loop.Post(func() error { return p.handleClosed(id) })
		},
	}
}

// init connects the notifier unless it already is
func (p *prompt) init() error {
	if p.notifier.Initialized() {
		return nil
	}
	return p.reinit()
}

// reinit reconnects the notifier. An unreachable service keeps its
// transport mark, callers retry on it; anything else is fatal.
func (p *prompt) reinit() error {
	p.logger.Debugw("Initializing notification service...")
	if err := p.notifier.Init(p.app); err != nil {
		p.logger.Errorw("Failed to initialize notification service", logger.FieldError, err)
		return errors.Wrap(err, "failed to initialize notification service")
	}
	return nil
}

// open shows n and arms the response timeout. It reports false when the
// notification service was unreachable; the service is reinitialized and
// the caller is expected to retry.
func (p *prompt) open(n Notification, timeout time.Duration) (bool, error) {
	if p.active {
		return false, errors.NewInvariantViolation("notification %d is still active", p.id)
	}
	if err := p.init(); err != nil {
		if errors.IsTransportUnavailable(err) {
			return false, nil
		}
		return false, err
	}

	p.logger.Debugw("Sending notification...")
	id, err := p.notifier.Show(n)
	if err != nil {
		if !errors.IsTransportUnavailable(err) {
			return false, errors.Wrap(err, "failed to send notification")
		}
		p.logger.Errorw("Failed to send notification", logger.FieldError, err)
		if err := p.reinit(); err != nil && !errors.IsTransportUnavailable(err) {
			return false, err
		}
		return false, nil
	}

	p.active = true
	p.id = id
	p.pending = ActionNone
	p.timeout = p.loop.AfterFunc(timeout, p.expire)
	p.logger.Infow("Waiting for user interaction...", logger.FieldNotification, id, logger.FieldDelay, timeout)
	return true, nil
}

func (p *prompt) handleAction(id uint32, action Action) error {
	if !p.active || id != p.id {
		p.logger.Debugw("Ignoring action of unknown notification", logger.FieldNotification, id, logger.FieldAction, action)
		return nil
	}

	switch action {
	case ActionStart, ActionSkip, ActionLater:
	default:
		return nil
	}
	if p.pending == ActionIgnore {
		// too late, the timeout already closed the notification
		return nil
	}

	p.pending = action
	p.logger.Infow("User requested to "+string(action)+" the job", logger.FieldAction, action)
	return nil
}

func (p *prompt) handleClosed(id uint32) error {
	if !p.active || id != p.id {
		p.logger.Debugw("Ignoring closed notification", logger.FieldNotification, id)
		return nil
	}

	action := p.pending
	if action == ActionNone {
		p.logger.Infow("User dismissed the notification")
	}
	p.reset()
	return p.resolved(action)
}

// expire handles the response timeout
func (p *prompt) expire() error {
	p.timeout = nil
	if !p.active {
		return nil
	}

	p.logger.Infow("Notification timed out, closing it...")
	p.pending = ActionIgnore
	if err := p.notifier.Close(p.id); err != nil {
		// the closed event will never arrive
		p.logger.Warnw("Failed to close notification", logger.FieldError, err)
		if err := p.reinit(); err != nil && !errors.IsTransportUnavailable(err) {
			return err
		}
		p.reset()
		return p.resolved(ActionIgnore)
	}
	return nil
}

// resume re-arms an outstanding response timeout after the machine woke up
func (p *prompt) resume() {
	if p.timeout == nil {
		return
	}
	remaining := p.timeout.Remaining()
	p.timeout.Stop()
	delay := resumeDelay(remaining)
	p.timeout = p.loop.AfterFunc(delay, p.expire)
	p.logger.Debugw("Re-armed notification timeout", logger.FieldDelay, delay)
}

func (p *prompt) reset() {
	if p.timeout != nil {
		p.timeout.Stop()
		p.timeout = nil
	}
	p.active = false
	p.id = 0
	p.pending = ActionNone
}
