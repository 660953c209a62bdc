package am

import (
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/teranos/cronnotify/errors"
)

// Sources describes where a loaded configuration came from
type Sources struct {
	Files       []string // Merged config files, lowest precedence first
	UnknownKeys []string // "file: key" for keys no option recognizes
}

// Load reads the configuration. Precedence (lowest to highest): defaults,
// system file, user file, explicit file, CRONNOTIFY_* environment.
// explicit may be empty; when set, the file must exist.
func Load(explicit string) (*Config, *Sources, error) {
	v, sources, err := NewViper(explicit)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := LoadWithViper(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, sources, nil
}

// NewViper builds a viper instance with defaults, files and environment
func NewViper(explicit string) (*viper.Viper, *Sources, error) {
	v := viper.New()
	SetDefaults(v)
	BindEnvVars(v)

	sources := &Sources{}
	paths := []string{SystemConfig, UserConfigPath()}
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := mergeConfigFile(v, path, sources); err != nil {
			return nil, nil, err
		}
	}

	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return nil, nil, errors.Mark(errors.Wrapf(err, "config file %s", explicit), errors.ErrConfiguration)
		}
		if err := mergeConfigFile(v, explicit, sources); err != nil {
			return nil, nil, err
		}
	}

	return v, sources, nil
}

// LoadWithViper decodes and validates the configuration held by v
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to unmarshal config"), errors.ErrConfiguration)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// mergeConfigFile merges path into v below the environment layer
func mergeConfigFile(v *viper.Viper, path string, sources *Sources) error {
	fileViper := viper.New()
	fileViper.SetConfigFile(path)
	fileViper.SetConfigType("toml")
	if err := fileViper.ReadInConfig(); err != nil {
		return errors.Mark(errors.Wrapf(err, "failed to read config file %s", path), errors.ErrConfiguration)
	}
	if err := v.MergeConfigMap(fileViper.AllSettings()); err != nil {
		return errors.Mark(errors.Wrapf(err, "failed to merge config file %s", path), errors.ErrConfiguration)
	}

	sources.Files = append(sources.Files, path)
	unknown, err := UnknownKeys(path)
	if err != nil {
		return err
	}
	for _, key := range unknown {
		sources.UnknownKeys = append(sources.UnknownKeys, fmt.Sprintf("%s: %s", path, key))
	}
	return nil
}

// UnknownKeys lists the keys of a TOML file no option recognizes
func UnknownKeys(path string) ([]string, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to parse config file %s", path), errors.ErrConfiguration)
	}

	var keys []string
	for _, key := range md.Undecoded() {
		keys = append(keys, key.String())
	}
	sort.Strings(keys)
	return keys, nil
}
