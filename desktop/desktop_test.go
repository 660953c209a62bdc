package desktop

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/cronnotify/errors"
	"github.com/teranos/cronnotify/pulse/schedule"
)

func TestNotifyArgs(t *testing.T) {
	actions, hints, expire := notifyArgs(schedule.Notification{
		Urgency:    schedule.UrgencyNormal,
		Persistent: true,
		Category:   "presence",
		Actions:    schedule.BackupDefaults().Actions,
	})

	assert.Equal(t, []string{"start", "Start", "skip", "Skip", "default", "Not Now"}, actions)
	assert.Equal(t, byte(1), hints["urgency"].Value())
	assert.Equal(t, "presence", hints["category"].Value())
	assert.Equal(t, expireNever, expire)

	_, hints, expire = notifyArgs(schedule.Notification{Summary: "status"})
	assert.NotContains(t, hints, "category")
	assert.Equal(t, expireDefault, expire)
}

func TestDecodeNotificationSignal(t *testing.T) {
	ev, ok := decodeNotificationSignal(&dbus.Signal{
		Path: notificationsPath,
		Name: actionInvoked,
		Body: []interface{}{uint32(7), "skip"},
	})
	require.True(t, ok)
	assert.Equal(t, notificationEvent{id: 7, action: "skip"}, ev)

	ev, ok = decodeNotificationSignal(&dbus.Signal{
		Path: notificationsPath,
		Name: notificationClosed,
		Body: []interface{}{uint32(7), uint32(2)},
	})
	require.True(t, ok)
	assert.True(t, ev.closed)
	assert.Equal(t, uint32(2), ev.reason)

	_, ok = decodeNotificationSignal(&dbus.Signal{
		Path: "/org/example",
		Name: actionInvoked,
		Body: []interface{}{uint32(7), "skip"},
	})
	assert.False(t, ok, "other object paths are ignored")

	_, ok = decodeNotificationSignal(&dbus.Signal{
		Path: notificationsPath,
		Name: actionInvoked,
		Body: []interface{}{"7", "skip"},
	})
	assert.False(t, ok, "malformed body")
}

func TestDispatchCallsHandlers(t *testing.T) {
	n := NewNotifier(zaptest.NewLogger(t).Sugar())

	var actions []schedule.Action
	var closed []uint32
	n.SetHandlers(schedule.NotificationHandlers{
		OnAction: func(id uint32, a schedule.Action) { actions = append(actions, a) },
		OnClosed: func(id uint32) { closed = append(closed, id) },
	})

	n.dispatch(&dbus.Signal{Path: notificationsPath, Name: actionInvoked, Body: []interface{}{uint32(3), "start"}})
	n.dispatch(&dbus.Signal{Path: notificationsPath, Name: notificationClosed, Body: []interface{}{uint32(3), uint32(3)}})

	assert.Equal(t, []schedule.Action{schedule.ActionStart}, actions)
	assert.Equal(t, []uint32{3}, closed)
}

func TestNotifierConnectFailure(t *testing.T) {
	n := NewNotifier(zaptest.NewLogger(t).Sugar())
	n.connect = func() (*dbus.Conn, error) { return nil, errors.New("no session bus") }

	err := n.Init("cron-notify")
	assert.True(t, errors.IsTransportUnavailable(err))
	assert.False(t, n.Initialized())

	_, err = n.Show(schedule.Notification{Summary: "x"})
	assert.True(t, errors.IsTransportUnavailable(err))
	assert.True(t, errors.IsTransportUnavailable(n.Close(1)))
}

func TestDecodeOnBattery(t *testing.T) {
	sig := &dbus.Signal{
		Path: upowerPath,
		Name: propertiesChanged,
		Body: []interface{}{
			upowerService,
			map[string]dbus.Variant{"OnBattery": dbus.MakeVariant(true)},
			[]string{},
		},
	}
	onBattery, ok := decodeOnBattery(sig)
	require.True(t, ok)
	assert.True(t, onBattery)

	sig.Body[1] = map[string]dbus.Variant{"LidIsClosed": dbus.MakeVariant(true)}
	_, ok = decodeOnBattery(sig)
	assert.False(t, ok, "unrelated property")

	sig.Body[0] = "org.freedesktop.UPower.Device"
	_, ok = decodeOnBattery(sig)
	assert.False(t, ok, "other interface")
}

func TestDecodePrepareForSleep(t *testing.T) {
	entering, ok := decodePrepareForSleep(&dbus.Signal{Name: prepareForSleep, Body: []interface{}{false}})
	require.True(t, ok)
	assert.False(t, entering)

	_, ok = decodePrepareForSleep(&dbus.Signal{Name: logindManager + ".SessionNew", Body: []interface{}{"c1"}})
	assert.False(t, ok)
}

var (
	_ schedule.Notifier      = (*Notifier)(nil)
	_ schedule.PowerSource   = (*UPower)(nil)
	_ schedule.SuspendSource = (*Logind)(nil)
)
