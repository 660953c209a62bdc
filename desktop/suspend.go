package desktop

import (
	"github.com/godbus/dbus/v5"
)

const (
	logindPath      = dbus.ObjectPath("/org/freedesktop/login1")
	logindManager   = "org.freedesktop.login1.Manager"
	prepareForSleep = logindManager + ".PrepareForSleep"
)

// Logind delivers sleep transitions announced by systemd-logind
type Logind struct {
	conn *dbus.Conn
}

// NewLogind uses conn, a system bus connection
func NewLogind(conn *dbus.Conn) *Logind {
	return &Logind{conn: conn}
}

// WatchPrepareForSleep calls fn with true before suspend, false after resume
func (l *Logind) WatchPrepareForSleep(fn func(entering bool)) (func(), error) {
	return watchSignal(l.conn, func(sig *dbus.Signal) {
		if entering, ok := decodePrepareForSleep(sig); ok {
			fn(entering)
		}
	},
		dbus.WithMatchObjectPath(logindPath),
		dbus.WithMatchInterface(logindManager),
		dbus.WithMatchMember("PrepareForSleep"),
	)
}

func decodePrepareForSleep(sig *dbus.Signal) (bool, bool) {
	if sig.Name != prepareForSleep || len(sig.Body) < 1 {
		return false, false
	}
	entering, ok := sig.Body[0].(bool)
	return entering, ok
}
