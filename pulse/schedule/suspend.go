package schedule

import (
	"time"

	"go.uber.org/zap"

	"github.com/teranos/cronnotify/logger"
	"github.com/teranos/cronnotify/pulse/loop"
)

// ResumeFloor is the minimum delay of any timer re-armed after resume, so the
// desktop has settled before the user is prompted.
const ResumeFloor = 120 * time.Second

// SuspendSource delivers the system's sleep transitions
type SuspendSource interface {
	// WatchPrepareForSleep calls fn with true before suspending and false
	// after resuming, from any goroutine, until stop is called.
	WatchPrepareForSleep(fn func(entering bool)) (stop func(), err error)
}

// SuspendMonitor posts onResume to the loop each time the machine wakes up
type SuspendMonitor struct {
	source   SuspendSource
	loop     *loop.Loop
	logger   *zap.SugaredLogger
	onResume loop.Task
	stop     func()
}

// NewSuspendMonitor returns a monitor calling onResume on the loop goroutine
func NewSuspendMonitor(source SuspendSource, l *loop.Loop, onResume loop.Task, log *zap.SugaredLogger) *SuspendMonitor {
	return &SuspendMonitor{source: source, loop: l, onResume: onResume, logger: logger.OrNop(log)}
}

// Start subscribes to sleep transitions. Failing to subscribe only loses
// resume handling, so it is logged and not returned.
func (m *SuspendMonitor) Start() {
	if m.source == nil || m.stop != nil {
		return
	}

	m.logger.Debugw("Subscribing to sleep transitions...")
	stop, err := m.source.WatchPrepareForSleep(func(entering bool) {
		if entering {
			m.logger.Debugw("Device is about to sleep")
			return
		}
		m.loop.Post(m.onResume)
	})
	if err != nil {
		m.logger.Warnw("Failed to subscribe to sleep transitions, timers will not be adjusted on resume", logger.FieldError, err)
		return
	}
	m.stop = stop
}

// Stop unsubscribes
func (m *SuspendMonitor) Stop() {
	if m.stop != nil {
		m.stop()
		m.stop = nil
	}
}

// resumeDelay is the delay a timer with remaining time left gets after resume
func resumeDelay(remaining time.Duration) time.Duration {
	if remaining < ResumeFloor {
		return ResumeFloor
	}
	return remaining
}
