package schedule

import (
	"strings"

	"github.com/teranos/cronnotify/pulse/exec"
)

// Action is the identifier of a notification action button. The same
// values track which action the user picked while the prompt is open.
type Action string

const (
	ActionNone    Action = ""
	ActionStart   Action = "start"
	ActionSkip    Action = "skip"
	ActionLater   Action = "later"
	ActionDefault Action = "default" // Activating the notification body
	ActionIgnore  Action = "ignore"  // Response timeout elapsed
)

// ActionButton is an action offered on the prompt
type ActionButton struct {
	Key   Action
	Label string
}

// Urgency levels of the notification protocol
type Urgency byte

const (
	UrgencyLow Urgency = iota
	UrgencyNormal
	UrgencyCritical
)

// Notification is what gets sent to the desktop notification service
type Notification struct {
	Summary    string
	Body       string
	Icon       string
	Urgency    Urgency
	Persistent bool // Never expires on its own
	Category   string
	Actions    []ActionButton
}

// NotificationHandlers receive events of notifications the Notifier showed.
// They may be called from any goroutine.
type NotificationHandlers struct {
	OnAction func(id uint32, action Action)
	OnClosed func(id uint32)
}

// Notifier talks to the desktop notification service.
//
// Errors that mean the service or bus went away must be marked with
// errors.ErrTransportUnavailable; the scheduler recovers from those by
// calling Init again.
type Notifier interface {
	Init(app string) error
	Initialized() bool
	SetHandlers(h NotificationHandlers)
	Show(n Notification) (id uint32, err error)
	Close(id uint32) error
}

// Template is a summary/body/icon triple. Summary and Body may contain
// {job}, replaced by the job's display name.
type Template struct {
	Summary string
	Body    string
	Icon    string
}

// Render substitutes the display name
func (t Template) Render(display string) Template {
	r := strings.NewReplacer("{job}", display)
	return Template{
		Summary: r.Replace(t.Summary),
		Body:    r.Replace(t.Body),
		Icon:    t.Icon,
	}
}

// Messages are the user-facing texts of a variant
type Messages struct {
	// Unnamed is the display name of a job without a name
	Unnamed string
	// Named formats the display name of a named job, {name} being the name
	Named string

	Prompt  Template
	Success Template
	Warning Template
	Failure Template
}

// DisplayName renders the job's display name
func (m Messages) DisplayName(name string) string {
	if name == "" {
		return m.Unnamed
	}
	return strings.ReplaceAll(m.Named, "{name}", name)
}

// Status returns the status template for severity. TryAgain has none.
func (m Messages) Status(severity exec.Severity) (Template, bool) {
	switch severity {
	case exec.SeveritySuccess:
		return m.Success, true
	case exec.SeverityWarning:
		return m.Warning, true
	case exec.SeverityError:
		return m.Failure, true
	default:
		return Template{}, false
	}
}

// Variant bundles the defaults of a notifier flavour
type Variant struct {
	Name       string
	App        string
	ExitPolicy exec.ExitPolicy
	Messages   Messages
	Actions    []ActionButton
}

func statusTemplates(summary, failure string) (success, warning, fail Template) {
	success = Template{Summary: summary, Body: "Your recent {job} was successful. Yay!", Icon: "dialog-information"}
	warning = Template{
		Summary: summary,
		Body:    "Your recent {job} finished with warnings. This might not be a problem, but you should check your logs.",
		Icon:    "dialog-warning",
	}
	fail = Template{Summary: summary, Body: failure, Icon: "dialog-error"}
	return success, warning, fail
}

// GenericDefaults is the plain cron notifier
func GenericDefaults() Variant {
	success, warning, failure := statusTemplates("cron-notify", "Your recent {job} failed. Check your logs!")
	return Variant{
		Name:       "generic",
		App:        "cron-notify",
		ExitPolicy: exec.ExitPolicyGeneralized,
		Messages: Messages{
			Unnamed: "cronjob",
			Named:   `cronjob "{name}"`,
			Prompt:  Template{Summary: "cron-notify", Body: "It's time to execute {job}!", Icon: "appointment-soon"},
			Success: success,
			Warning: warning,
			Failure: failure,
		},
		Actions: []ActionButton{
			{Key: ActionStart, Label: "Start"},
			{Key: ActionSkip, Label: "Skip"},
			{Key: ActionLater, Label: "Later"},
			{Key: ActionDefault, Label: ""},
		},
	}
}

// BackupDefaults is the notifier for backup jobs. It has no "later" action;
// activating the body is labelled "Not Now" and counts as a dismissal.
func BackupDefaults() Variant {
	success, warning, failure := statusTemplates("Backup",
		"Your recent {job} failed due to a misconfiguration. Check your logs, your backup didn't run!")
	return Variant{
		Name:       "backup",
		App:        "backup-notify",
		ExitPolicy: exec.ExitPolicySimple,
		Messages: Messages{
			Unnamed: "backup",
			Named:   `backup "{name}"`,
			Prompt: Template{
				Summary: "Backup",
				Body:    "It's time to backup your data! Your next {job} is on schedule.",
				Icon:    "appointment-soon",
			},
			Success: success,
			Warning: warning,
			Failure: failure,
		},
		Actions: []ActionButton{
			{Key: ActionStart, Label: "Start"},
			{Key: ActionSkip, Label: "Skip"},
			{Key: ActionDefault, Label: "Not Now"},
		},
	}
}

// BorgDefaults is the backup notifier branded for Borg Backup
func BorgDefaults() Variant {
	v := BackupDefaults()
	v.Name = "borg"
	v.App = "borg-notify"
	v.Messages.Unnamed = "Borg Backup"
	v.Messages.Named = `Borg Backup "{name}"`
	for _, t := range []*Template{&v.Messages.Prompt, &v.Messages.Success, &v.Messages.Warning, &v.Messages.Failure} {
		t.Summary = "Borg Backup"
	}
	v.Messages.Prompt.Icon = "borg"
	v.Messages.Success.Icon = "borg"
	v.Messages.Warning.Icon = "borg"
	return v
}

// VariantByName returns the named preset
func VariantByName(name string) (Variant, bool) {
	switch strings.ToLower(name) {
	case "", "generic":
		return GenericDefaults(), true
	case "backup":
		return BackupDefaults(), true
	case "borg":
		return BorgDefaults(), true
	default:
		return Variant{}, false
	}
}
