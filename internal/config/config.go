// Package config loads the on-disk capabilities descriptor (the static
// equivalent of the MstCapa shared-memory page, §4.1) and the runtime
// environment settings (§6) that every binary in the core reads at start.
package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ParamDescriptor describes one named argument an input or output binary
// accepts, as listed in a capabilities descriptor's required/optional
// arrays.
type ParamDescriptor struct {
	Option string `mapstructure:"option" yaml:"option"`
	Type   string `mapstructure:"type" yaml:"type,omitempty"`
}

// InputDescriptor is one entry of the capabilities snapshot's "inputs" list
// (§4.2 Input matcher).
type InputDescriptor struct {
	Name        string            `mapstructure:"name" yaml:"name"`
	SourceMatch []string          `mapstructure:"source_match" yaml:"source_match"`
	Priority    int               `mapstructure:"priority" yaml:"priority"`
	NonProvider bool              `mapstructure:"non_provider" yaml:"non_provider,omitempty"`
	Required    []ParamDescriptor `mapstructure:"required" yaml:"required,omitempty"`
	Optional    []ParamDescriptor `mapstructure:"optional" yaml:"optional,omitempty"`
}

// TemplateSlot is one position within a codec-combination template (§4.5
// "Select tracks" default-selection rule): Specs lists OR-matched
// alternatives for this slot, each optionally "@"-prefixed to match by
// track kind instead of codec name ("*" matches anything) and
// "+"-prefixed to select every matching track instead of just one.
// Mirrors one group of the original's `capa["codecs"][combination]`.
type TemplateSlot struct {
	Specs []string `mapstructure:"specs" yaml:"specs"`
}

// OutputDescriptor is one entry of the capabilities snapshot's "outputs"
// list, additionally carrying the push_urls glob list used to resolve
// push-output auto-start (§4.2 supplemented feature).
type OutputDescriptor struct {
	Name      string            `mapstructure:"name" yaml:"name"`
	PushURLs  []string          `mapstructure:"push_urls" yaml:"push_urls,omitempty"`
	Priority  int               `mapstructure:"priority" yaml:"priority"`
	Required  []ParamDescriptor `mapstructure:"required" yaml:"required,omitempty"`
	Optional  []ParamDescriptor `mapstructure:"optional" yaml:"optional,omitempty"`
	Templates [][]TemplateSlot  `mapstructure:"codecs" yaml:"codecs,omitempty"`
}

// Capabilities is the full descriptor set a controller publishes for inputs
// and outputs, loaded from a single YAML file.
type Capabilities struct {
	Inputs  []InputDescriptor  `mapstructure:"inputs" yaml:"inputs"`
	Outputs []OutputDescriptor `mapstructure:"outputs" yaml:"outputs"`
}

// Loader wraps a viper instance bound to a single capabilities YAML file so
// callers can both read the current snapshot and subscribe to hot reloads.
type Loader struct {
	v *viper.Viper
}

// NewLoader reads path once (failing if it cannot be parsed) and returns a
// Loader ready to serve Current snapshots and Watch subscriptions.
func NewLoader(path string) (*Loader, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading capabilities descriptor %s: %w", path, err)
	}
	return &Loader{v: v}, nil
}

// Current unmarshals the most recently loaded capabilities snapshot.
func (l *Loader) Current() (*Capabilities, error) {
	var caps Capabilities
	if err := l.v.Unmarshal(&caps); err != nil {
		return nil, fmt.Errorf("config: decoding capabilities: %w", err)
	}
	return &caps, nil
}

// Watch installs a filesystem watch on the backing YAML file and invokes
// onChange with the freshly reloaded snapshot whenever it is modified. The
// capabilities registry (internal/registry) uses this to pick up new input
// binaries without restarting the controller.
func (l *Loader) Watch(onChange func(*Capabilities)) {
	l.v.OnConfigChange(func(_ fsnotify.Event) {
		caps, err := l.Current()
		if err != nil {
			return
		}
		onChange(caps)
	})
	l.v.WatchConfig()
}

// Settings holds the process-environment overrides named in §6:
// MISTPROVIDER, NOFORK, TMP/TEMP/TMPDIR, and DEBUG. Unlike Capabilities
// these are read once at process start, not hot-reloaded.
type Settings struct {
	Provider bool   `mapstructure:"MISTPROVIDER"`
	NoFork   bool   `mapstructure:"NOFORK"`
	TmpDir   string `mapstructure:"TMP"`
	Debug    string `mapstructure:"DEBUG"`
}

// LoadSettings binds the §6 environment variables through viper's env
// layer, so a single code path handles both the capabilities file and the
// ambient process environment.
func LoadSettings() Settings {
	v := viper.New()
	v.AutomaticEnv()
	_ = v.BindEnv("MISTPROVIDER")
	_ = v.BindEnv("NOFORK")
	_ = v.BindEnv("TMP")
	_ = v.BindEnv("TEMP")
	_ = v.BindEnv("TMPDIR")
	_ = v.BindEnv("DEBUG")

	tmpDir := v.GetString("TMP")
	if tmpDir == "" {
		tmpDir = v.GetString("TEMP")
	}
	if tmpDir == "" {
		tmpDir = v.GetString("TMPDIR")
	}

	return Settings{
		Provider: v.GetString("MISTPROVIDER") == "1",
		NoFork:   v.GetString("NOFORK") != "",
		TmpDir:   tmpDir,
		Debug:    v.GetString("DEBUG"),
	}
}
