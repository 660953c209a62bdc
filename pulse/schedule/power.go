package schedule

import (
	"go.uber.org/zap"

	"github.com/teranos/cronnotify/logger"
	"github.com/teranos/cronnotify/pulse/loop"
)

// PowerSource reports whether the machine runs on battery
type PowerSource interface {
	OnBattery() (bool, error)
	// WatchOnBattery calls fn whenever the battery state changes, from any
	// goroutine, until stop is called.
	WatchOnBattery(fn func(onBattery bool)) (stop func(), err error)
}

// PowerGate defers prompting while the machine is on battery. Every failure
// of the power service opens the gate: an unreachable service never blocks
// the job.
type PowerGate struct {
	source  PowerSource
	loop    *loop.Loop
	logger  *zap.SugaredLogger
	waiting bool
	stop    func()
}

// NewPowerGate returns a gate over source. A nil source means mains power.
func NewPowerGate(source PowerSource, l *loop.Loop, log *zap.SugaredLogger) *PowerGate {
	return &PowerGate{source: source, loop: l, logger: logger.OrNop(log)}
}

// OnMainsPower reports whether the machine is on mains power
func (g *PowerGate) OnMainsPower() bool {
	if g.source == nil {
		return true
	}

	g.logger.Debugw("Checking power supply...")
	onBattery, err := g.source.OnBattery()
	if err != nil {
		g.logger.Warnw("Failed to query power supply, assuming mains power", logger.FieldError, err)
		return true
	}
	if onBattery {
		g.logger.Debugw("Device is running on battery")
		return false
	}
	g.logger.Debugw("Device is running on mains power")
	return true
}

// Waiting reports whether a continuation is parked
func (g *PowerGate) Waiting() bool {
	return g.waiting
}

// AwaitMainsPower parks cont until the machine switches to mains power and
// then posts it to the loop once. It returns false when the subscription
// cannot be set up; the caller should then proceed as if on mains power.
func (g *PowerGate) AwaitMainsPower(cont loop.Task) bool {
	if g.source == nil {
		return false
	}
	if g.waiting {
		g.logger.Debugw("Already waiting for mains power")
		return true
	}

	g.logger.Infow("Waiting for device to be plugged in...")
	g.waiting = true

	stop, err := g.source.WatchOnBattery(func(onBattery bool) {
		if onBattery {
			return
		}
		g.loop.Post(func() error {
			return g.release(cont)
		})
	})
	if err != nil {
		g.waiting = false
		g.logger.Warnw("Failed to subscribe to power supply changes, proceeding anyway", logger.FieldError, err)
		return false
	}
	g.stop = stop

	// the switch may have happened before the subscription took effect
	if g.OnMainsPower() {
		g.loop.Post(func() error {
			return g.release(cont)
		})
	}
	return true
}

// Cancel drops a parked continuation
func (g *PowerGate) Cancel() {
	if !g.waiting {
		return
	}
	g.waiting = false
	if g.stop != nil {
		g.stop()
		g.stop = nil
	}
}

func (g *PowerGate) release(cont loop.Task) error {
	if !g.waiting {
		// duplicate signal
		return nil
	}
	g.Cancel()
	g.logger.Infow("Device is running on mains power")
	return cont()
}
