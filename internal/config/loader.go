package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/turtacn/ResumeLens/pkg/errors"
)

const envPrefix = "RESUMELENS"

type loadOptions struct {
	path      string
	overrides map[string]interface{}
}

// Option adjusts a single Load call.
type Option func(*loadOptions)

// WithConfigPath reads the YAML file at path. An empty path reads nothing.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) { o.path = path }
}

// WithOverrides sets keys after the file and the environment have been read,
// e.g. values bound from command-line flags. Keys use dotted form.
func WithOverrides(kv map[string]interface{}) Option {
	return func(o *loadOptions) {
		if o.overrides == nil {
			o.overrides = make(map[string]interface{}, len(kv))
		}
		for k, v := range kv {
			o.overrides[k] = v
		}
	}
}

// newViper returns a viper instance with defaults registered and
// RESUMELENS_* environment overrides enabled.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)
	return v
}

// Load resolves the configuration from defaults, an optional file, the
// environment and overrides, in increasing precedence, and validates it.
func Load(opts ...Option) (*Config, error) {
	o := &loadOptions{}
	for _, opt := range opts {
		opt(o)
	}

	v := newViper()
	if o.path != "" {
		v.SetConfigFile(o.path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfiguration, fmt.Sprintf("config: read %s", o.path))
		}
	}
	for k, val := range o.overrides {
		v.Set(k, val)
	}
	return unmarshalAndFinalize(v)
}

// LoadFromEnv resolves the configuration from defaults and the environment.
func LoadFromEnv() (*Config, error) {
	return Load()
}

// MustLoad is Load for program entry points.
func MustLoad(opts ...Option) *Config {
	cfg, err := Load(opts...)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Watch re-reads the file at path whenever it changes and hands each valid
// result to onChange. Invalid edits are reported to onError and otherwise
// ignored; the previous configuration stays in force.
func Watch(path string, onChange func(*Config), onError func(error)) error {
	if path == "" {
		return errors.Configuration("config: watch requires a file path")
	}
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfiguration, fmt.Sprintf("config: read %s", path))
	}
	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		if onChange != nil {
			onChange(cfg)
		}
	})
	v.WatchConfig()
	return nil
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfiguration, "config: decode")
	}
	ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
