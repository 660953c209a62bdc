package desktop

import (
	"sync"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/teranos/cronnotify/errors"
	"github.com/teranos/cronnotify/logger"
	"github.com/teranos/cronnotify/pulse/schedule"
)

const (
	notificationsService   = "org.freedesktop.Notifications"
	notificationsPath      = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsInterface = notificationsService

	actionInvoked      = notificationsInterface + ".ActionInvoked"
	notificationClosed = notificationsInterface + ".NotificationClosed"
)

// Expiration timeouts of the Notify call
const (
	expireDefault int32 = -1
	expireNever   int32 = 0
)

// Notifier sends notifications to the session's notification server. Each
// Init opens a fresh session bus connection, replacing the previous one.
type Notifier struct {
	mu       sync.Mutex
	connect  func() (*dbus.Conn, error)
	conn     *dbus.Conn
	stop     func()
	app      string
	handlers schedule.NotificationHandlers
	logger   *zap.SugaredLogger
}

// NewNotifier returns an uninitialized notifier
func NewNotifier(log *zap.SugaredLogger) *Notifier {
	return &Notifier{
		connect: func() (*dbus.Conn, error) { return dbus.ConnectSessionBus() },
		logger:  logger.OrNop(log),
	}
}

// Init connects to the session bus and checks the notification server
// answers
func (n *Notifier) Init(app string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.closeLocked()

	conn, err := n.connect()
	if err != nil {
		return errors.WrapTransport(err, "failed to connect to the session bus")
	}

	var name, vendor, version, specVersion string
	err = conn.Object(notificationsService, notificationsPath).
		Call(notificationsInterface+".GetServerInformation", 0).
		Store(&name, &vendor, &version, &specVersion)
	if err != nil {
		conn.Close()
		return errors.WrapTransport(err, "notification server is not available")
	}

	stop, err := watchSignal(conn, n.dispatch,
		dbus.WithMatchObjectPath(notificationsPath),
		dbus.WithMatchInterface(notificationsInterface),
	)
	if err != nil {
		conn.Close()
		return err
	}

	n.conn = conn
	n.stop = stop
	n.app = app
	n.logger.Debugw("Connected to notification server", "server", name, "vendor", vendor, "version", version)
	return nil
}

// Initialized reports whether Init succeeded and Shutdown was not called
func (n *Notifier) Initialized() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.conn != nil && n.conn.Connected()
}

// SetHandlers installs the event callbacks
func (n *Notifier) SetHandlers(h schedule.NotificationHandlers) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers = h
}

// Show sends a notification and returns its server-assigned id
func (n *Notifier) Show(notification schedule.Notification) (uint32, error) {
	n.mu.Lock()
	conn, app := n.conn, n.app
	n.mu.Unlock()

	if conn == nil {
		return 0, errors.WrapTransport(errors.New("not initialized"), "failed to send notification")
	}

	actions, hints, expire := notifyArgs(notification)
	var id uint32
	err := conn.Object(notificationsService, notificationsPath).
		Call(notificationsInterface+".Notify", 0,
			app, uint32(0), notification.Icon, notification.Summary, notification.Body,
			actions, hints, expire).
		Store(&id)
	if err != nil {
		return 0, errors.WrapTransport(err, "failed to send notification")
	}
	return id, nil
}

// Close asks the server to close notification id
func (n *Notifier) Close(id uint32) error {
	n.mu.Lock()
	conn := n.conn
	n.mu.Unlock()

	if conn == nil {
		return errors.WrapTransport(errors.New("not initialized"), "failed to close notification")
	}

	call := conn.Object(notificationsService, notificationsPath).
		Call(notificationsInterface+".CloseNotification", 0, id)
	if call.Err != nil {
		return errors.WrapTransport(call.Err, "failed to close notification")
	}
	return nil
}

// Shutdown closes the bus connection
func (n *Notifier) Shutdown() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closeLocked()
}

func (n *Notifier) closeLocked() {
	if n.stop != nil {
		n.stop()
		n.stop = nil
	}
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
}

func (n *Notifier) dispatch(sig *dbus.Signal) {
	n.mu.Lock()
	h := n.handlers
	n.mu.Unlock()

	ev, ok := decodeNotificationSignal(sig)
	if !ok {
		return
	}
	if ev.closed {
		n.logger.Debugw("Notification closed", logger.FieldNotification, ev.id, "reason", ev.reason)
		if h.OnClosed != nil {
			h.OnClosed(ev.id)
		}
		return
	}
	if h.OnAction != nil {
		h.OnAction(ev.id, schedule.Action(ev.action))
	}
}

// notifyArgs converts a notification into the Notify call's actions, hints
// and expire_timeout arguments
func notifyArgs(n schedule.Notification) ([]string, map[string]dbus.Variant, int32) {
	actions := make([]string, 0, 2*len(n.Actions))
	for _, a := range n.Actions {
		actions = append(actions, string(a.Key), a.Label)
	}

	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(n.Urgency)),
	}
	if n.Category != "" {
		hints["category"] = dbus.MakeVariant(n.Category)
	}

	expire := expireDefault
	if n.Persistent {
		expire = expireNever
	}
	return actions, hints, expire
}

type notificationEvent struct {
	id     uint32
	closed bool
	action string
	reason uint32
}

func decodeNotificationSignal(sig *dbus.Signal) (notificationEvent, bool) {
	if sig.Path != notificationsPath || len(sig.Body) < 2 {
		return notificationEvent{}, false
	}
	id, ok := sig.Body[0].(uint32)
	if !ok {
		return notificationEvent{}, false
	}

	switch sig.Name {
	case actionInvoked:
		action, ok := sig.Body[1].(string)
		return notificationEvent{id: id, action: action}, ok
	case notificationClosed:
		reason, ok := sig.Body[1].(uint32)
		return notificationEvent{id: id, closed: true, reason: reason}, ok
	default:
		return notificationEvent{}, false
	}
}
