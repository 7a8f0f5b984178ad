package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix used by all service settings.
const envPrefix = "AGRINLU"

// DotEnvFile is read before the environment is consulted when present.
const DotEnvFile = ".env"

// newViper builds a pre-configured Viper instance: YAML file type, AGRINLU_
// env prefix, "." → "_" key replacer and every Config key registered with
// its default, so that nested keys like "redis.addr" resolve to
// AGRINLU_REDIS_ADDR even without a config file.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	registerKeys(v, reflect.ValueOf(*Defaults()), "")
	return v
}

// registerKeys walks the Config struct by its mapstructure tags, binding an
// env variable and a default for every leaf key.
func registerKeys(v *viper.Viper, val reflect.Value, prefix string) {
	t := val.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "-" || f.Type.Kind() == reflect.Func {
			continue
		}
		fv := val.Field(i)
		if opts == "squash" {
			registerKeys(v, fv, prefix)
			continue
		}
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}
		if f.Type.Kind() == reflect.Struct {
			registerKeys(v, fv, key)
			continue
		}
		_ = v.BindEnv(key)
		switch fv.Kind() {
		case reflect.Slice, reflect.Map:
			if fv.IsNil() {
				continue
			}
		}
		v.SetDefault(key, fv.Interface())
	}
}

// loadDotEnv exports the variables of a .env file into the process
// environment. Variables already set are not overridden; a missing file is
// not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}

// Load reads the YAML file at configPath, merges .env and AGRINLU_*
// environment overrides, applies defaults for unset fields and validates the
// result.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(DotEnvFile); err != nil {
		return nil, err
	}
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config entirely from AGRINLU_* environment variables
// and defaults, with no config file required.
//
//	AGRINLU_<SECTION>_<FIELD>   e.g.  AGRINLU_MODEL_BACKEND, AGRINLU_REDIS_ADDR
func LoadFromEnv() (*Config, error) {
	if err := loadDotEnv(DotEnvFile); err != nil {
		return nil, err
	}
	return unmarshalAndFinalize(newViper())
}

// LoadOrEnv loads configPath when set and the environment otherwise. Used by
// the binaries whose --config flag is optional.
func LoadOrEnv(configPath string) (*Config, error) {
	if configPath == "" {
		return LoadFromEnv()
	}
	return Load(configPath)
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// Watch monitors configPath and invokes onChange with the newly parsed
// Config whenever the file is written. Callers apply only the reloadable
// subset (log level, rate limits). A change that fails to parse or validate
// is reported to onError and onChange is not called.
//
// Watch is non-blocking; viper runs the fsnotify loop in the background.
func Watch(configPath string, onChange func(*Config), onError func(error)) error {
	v := newViper()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// MustLoad is Load that panics on any error. It is intended for main()
// where a config-load failure is always fatal.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

//Personal.AI order the ending
