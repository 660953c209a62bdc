package desktop

import (
	"github.com/godbus/dbus/v5"

	"github.com/teranos/cronnotify/errors"
)

const (
	upowerService   = "org.freedesktop.UPower"
	upowerPath      = dbus.ObjectPath("/org/freedesktop/UPower")
	upowerOnBattery = upowerService + ".OnBattery"

	propertiesInterface = "org.freedesktop.DBus.Properties"
	propertiesChanged   = propertiesInterface + ".PropertiesChanged"
)

// UPower reports the power supply through org.freedesktop.UPower
type UPower struct {
	conn *dbus.Conn
}

// NewUPower uses conn, a system bus connection
func NewUPower(conn *dbus.Conn) *UPower {
	return &UPower{conn: conn}
}

// OnBattery reads the OnBattery property
func (u *UPower) OnBattery() (bool, error) {
	v, err := u.conn.Object(upowerService, upowerPath).GetProperty(upowerOnBattery)
	if err != nil {
		return false, errors.WrapTransport(err, "failed to query UPower")
	}
	onBattery, ok := v.Value().(bool)
	if !ok {
		return false, errors.Newf("unexpected OnBattery value %v", v)
	}
	return onBattery, nil
}

// WatchOnBattery calls fn whenever UPower announces a new OnBattery value
func (u *UPower) WatchOnBattery(fn func(onBattery bool)) (func(), error) {
	return watchSignal(u.conn, func(sig *dbus.Signal) {
		if onBattery, ok := decodeOnBattery(sig); ok {
			fn(onBattery)
		}
	},
		dbus.WithMatchObjectPath(upowerPath),
		dbus.WithMatchInterface(propertiesInterface),
		dbus.WithMatchMember("PropertiesChanged"),
	)
}

// decodeOnBattery extracts OnBattery from a UPower PropertiesChanged signal
func decodeOnBattery(sig *dbus.Signal) (bool, bool) {
	if sig.Name != propertiesChanged || sig.Path != upowerPath || len(sig.Body) < 2 {
		return false, false
	}
	if iface, ok := sig.Body[0].(string); !ok || iface != upowerService {
		return false, false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return false, false
	}
	v, ok := changed["OnBattery"]
	if !ok {
		return false, false
	}
	onBattery, ok := v.Value().(bool)
	return onBattery, ok
}
