package am

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/teranos/cronnotify/pulse/schedule"
)

// EnvPrefix prefixes environment overrides, e.g. CRONNOTIFY_JOB_CRON
const EnvPrefix = "CRONNOTIFY"

// File locations
const (
	ConfigFileName = "am.toml"
	SystemConfig   = "/etc/cronnotify/" + ConfigFileName
)

// DefaultDirPermissions for created config directories
const DefaultDirPermissions = 0o755

// UserConfigPath returns $XDG_CONFIG_HOME/cronnotify/am.toml
func UserConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "cronnotify", ConfigFileName)
}

// SetDefaults configures default values for all configuration options.
// Every key needs a default so environment overrides are picked up.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("notify.app", "")
	v.SetDefault("notify.variant", "generic")
	v.SetDefault("notify.exit_policy", "")

	v.SetDefault("job.id", "")
	v.SetDefault("job.name", "")
	v.SetDefault("job.cron", schedule.DefaultCronExpression)
	v.SetDefault("job.sleep_seconds", int(schedule.DefaultSleepInterval.Seconds()))
	v.SetDefault("job.main_power", false)
	v.SetDefault("job.async", false)
	v.SetDefault("job.commands", []string{})

	v.SetDefault("messages.name_template.unnamed", "")
	v.SetDefault("messages.name_template.named", "")
	for _, kind := range []string{"prompt", "success", "warning", "failure"} {
		v.SetDefault("messages."+kind+".summary", "")
		v.SetDefault("messages."+kind+".body", "")
		v.SetDefault("messages."+kind+".icon", "")
	}

	v.SetDefault("log.json", false)
	v.SetDefault("log.verbosity", 0)
}

// BindEnvVars maps CRONNOTIFY_SECTION_KEY variables onto section.key
func BindEnvVars(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Starter returns a configuration spelling out the preset of variant, as
// written by `am init`
func Starter(variant string, commands []string) (*Config, bool) {
	preset, ok := schedule.VariantByName(variant)
	if !ok {
		return nil, false
	}
	if len(commands) == 0 {
		commands = []string{"echo 'replace me'"}
	}

	m := preset.Messages
	tmpl := func(t schedule.Template) TemplateConfig {
		return TemplateConfig{Summary: t.Summary, Body: t.Body, Icon: t.Icon}
	}

	return &Config{
		Notify: NotifyConfig{App: preset.App, Variant: preset.Name, ExitPolicy: preset.ExitPolicy.String()},
		Job: JobConfig{
			Cron:         schedule.DefaultCronExpression,
			SleepSeconds: int(schedule.DefaultSleepInterval.Seconds()),
			Commands:     commands,
		},
		Messages: MessagesConfig{
			NameTemplate: NameTemplateConfig{Unnamed: m.Unnamed, Named: m.Named},
			Prompt:       tmpl(m.Prompt),
			Success:      tmpl(m.Success),
			Warning:      tmpl(m.Warning),
			Failure:      tmpl(m.Failure),
		},
	}, true
}
