// Package desktop connects the scheduler to the freedesktop.org services it
// relies on: the notification server on the session bus, UPower and
// systemd-logind on the system bus.
package desktop

import (
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/teranos/cronnotify/errors"
)

// watchSignal subscribes to signals matching opts and calls handle for each
// one from a dedicated goroutine until stop is called.
func watchSignal(conn *dbus.Conn, handle func(*dbus.Signal), opts ...dbus.MatchOption) (stop func(), err error) {
	if err := conn.AddMatchSignal(opts...); err != nil {
		return nil, errors.WrapTransport(err, "failed to add signal match")
	}

	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case sig, ok := <-signals:
				if !ok {
					// connection closed
					return
				}
				handle(sig)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			conn.RemoveSignal(signals)
			_ = conn.RemoveMatchSignal(opts...)
		})
	}, nil
}

// ConnectSystemBus opens a private connection to the system bus
func ConnectSystemBus() (*dbus.Conn, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, errors.WrapTransport(err, "failed to connect to the system bus")
	}
	return conn, nil
}
