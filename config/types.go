package config

import (
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
)

// Defaults applied by SetDefaults.
const (
	DefaultListen         = "127.0.0.1:3001"
	DefaultStaticDir      = "dist"
	DefaultProjectsRoot   = "../projects"
	DefaultProjectPort    = 5173
	DefaultMetadataTTL    = 10 * time.Second
	DefaultGitTTL         = 30 * time.Second
	DefaultProbeTimeout   = 5 * time.Second
	DefaultGitTimeout     = 5 * time.Second
	DefaultKillTimeout    = 10 * time.Second
	DefaultLaunchGrace    = 30 * time.Second
	DefaultStreamInterval = 3 * time.Second
	DefaultMCPTimeout     = 15 * time.Second

	LaunchModeBackground = "background"
	LaunchModeTerminal   = "terminal"
)

// DefaultPorts is the dev-server port table for the projects the dashboard
// was first built around. Unknown projects use DefaultProjectPort.
func DefaultPorts() map[string]int {
	return map[string]int{
		"google-calendar-clone": 5173,
		"jira-wrapper":          5174,
		"lastfm-clone":          5175,
		"livejournal-clone":     5176,
		"react-ts-templates":    5177,
		"task-manager":          5178,
		"quantified-life":       5179,
		"chronicle":             3002,
	}
}

// DefaultLaunchCommand is run in the project directory by a background launch.
func DefaultLaunchCommand() []string {
	return []string{"npm", "run", "dev"}
}

// Config is the devdash configuration, usually loaded from devdash.yml.
type Config struct {
	ProjectsRoot string         `yaml:"projects_root,omitempty" toml:"projects_root,omitempty" json:"projects_root,omitempty" jsonschema:"description=Directory whose subdirectories are listed as projects"`
	Listen       string         `yaml:"listen,omitempty" toml:"listen,omitempty" json:"listen,omitempty" jsonschema:"description=host:port the HTTP API listens on"`
	StaticDir    string         `yaml:"static_dir,omitempty" toml:"static_dir,omitempty" json:"static_dir,omitempty" jsonschema:"description=Directory with the built dashboard UI"`
	DefaultPort  int            `yaml:"default_port,omitempty" toml:"default_port,omitempty" json:"default_port,omitempty" jsonschema:"minimum=1,maximum=65535,description=Port assumed for projects missing from the port table"`
	Ports        map[string]int `yaml:"ports,omitempty" toml:"ports,omitempty" json:"ports,omitempty" jsonschema:"description=Dev-server port per project name"`
	Ignore       []string       `yaml:"ignore,omitempty" toml:"ignore,omitempty" json:"ignore,omitempty" jsonschema:"description=Patterns of directories excluded from the project list"`

	Cache       CacheConfig       `yaml:"cache,omitempty" toml:"cache,omitempty" json:"cache,omitempty"`
	Probe       ProbeConfig       `yaml:"probe,omitempty" toml:"probe,omitempty" json:"probe,omitempty"`
	Launch      LaunchConfig      `yaml:"launch,omitempty" toml:"launch,omitempty" json:"launch,omitempty"`
	Stream      StreamConfig      `yaml:"stream,omitempty" toml:"stream,omitempty" json:"stream,omitempty"`
	MemoryShack MemoryShackConfig `yaml:"memory_shack,omitempty" toml:"memory_shack,omitempty" json:"memory_shack,omitempty"`

	// Extensions captures all other top-level keys for extensibility.
	Extensions map[string]interface{} `yaml:"-" toml:"-" json:"-"`

	// path is the file the configuration was read from, empty for defaults.
	path string
}

// CacheConfig holds the metadata cache lifetimes.
type CacheConfig struct {
	MetadataTTL Duration `yaml:"metadata_ttl,omitempty" toml:"metadata_ttl,omitempty" json:"metadata_ttl,omitempty" jsonschema:"description=Lifetime of composed project metadata"`
	GitTTL      Duration `yaml:"git_ttl,omitempty" toml:"git_ttl,omitempty" json:"git_ttl,omitempty" jsonschema:"description=Lifetime of git status"`
}

// ProbeConfig holds timeouts for external commands.
type ProbeConfig struct {
	Timeout     Duration `yaml:"timeout,omitempty" toml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"description=Timeout of process and port probes"`
	GitTimeout  Duration `yaml:"git_timeout,omitempty" toml:"git_timeout,omitempty" json:"git_timeout,omitempty" jsonschema:"description=Timeout of each git query"`
	KillTimeout Duration `yaml:"kill_timeout,omitempty" toml:"kill_timeout,omitempty" json:"kill_timeout,omitempty" jsonschema:"description=Overall budget of a force close"`
}

// LaunchConfig controls how projects are started.
type LaunchConfig struct {
	Mode    string   `yaml:"mode,omitempty" toml:"mode,omitempty" json:"mode,omitempty" jsonschema:"enum=background,enum=terminal,description=background spawns a detached child; terminal opens a terminal window"`
	Command []string `yaml:"command,omitempty" toml:"command,omitempty" json:"command,omitempty" jsonschema:"minItems=1,description=Command run inside the project directory"`
	Grace   Duration `yaml:"grace,omitempty" toml:"grace,omitempty" json:"grace,omitempty" jsonschema:"description=How long a launched project reports launching before it reports stopped"`
}

// StreamConfig controls the websocket status stream.
type StreamConfig struct {
	Interval Duration `yaml:"interval,omitempty" toml:"interval,omitempty" json:"interval,omitempty" jsonschema:"description=Interval between status snapshots"`
}

// MemoryShackConfig describes how to reach the memory-shack MCP server.
type MemoryShackConfig struct {
	Command string            `yaml:"command,omitempty" toml:"command,omitempty" json:"command,omitempty" jsonschema:"description=Executable of the memory-shack MCP server; the proxy is disabled when empty"`
	Args    []string          `yaml:"args,omitempty" toml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" toml:"env,omitempty" json:"env,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty" toml:"timeout,omitempty" json:"timeout,omitempty"`
	Tools   []string          `yaml:"tools,omitempty" toml:"tools,omitempty" json:"tools,omitempty" jsonschema:"description=Narrows the tools the proxy forwards"`
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string {
	return c.path
}

// SetDefaults fills every unset field.
func (c *Config) SetDefaults() {
	if c.ProjectsRoot == "" {
		c.ProjectsRoot = DefaultProjectsRoot
	}
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.StaticDir == "" {
		c.StaticDir = DefaultStaticDir
	}
	if c.DefaultPort == 0 {
		c.DefaultPort = DefaultProjectPort
	}
	if c.Ports == nil {
		c.Ports = DefaultPorts()
	}
	defaultDuration(&c.Cache.MetadataTTL, DefaultMetadataTTL)
	defaultDuration(&c.Cache.GitTTL, DefaultGitTTL)
	defaultDuration(&c.Probe.Timeout, DefaultProbeTimeout)
	defaultDuration(&c.Probe.GitTimeout, DefaultGitTimeout)
	defaultDuration(&c.Probe.KillTimeout, DefaultKillTimeout)
	if c.Launch.Mode == "" {
		c.Launch.Mode = LaunchModeBackground
	}
	if len(c.Launch.Command) == 0 {
		c.Launch.Command = DefaultLaunchCommand()
	}
	defaultDuration(&c.Launch.Grace, DefaultLaunchGrace)
	defaultDuration(&c.Stream.Interval, DefaultStreamInterval)
	defaultDuration(&c.MemoryShack.Timeout, DefaultMCPTimeout)
}

func defaultDuration(d *Duration, def time.Duration) {
	if *d == 0 {
		*d = Duration(def)
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// Duration is a time.Duration written as a Go duration string ("10s", "1m30s")
// in YAML, TOML and JSON.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String implements fmt.Stringer.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", string(text))
	}
	*d = Duration(parsed)
	return nil
}

// JSONSchema describes Duration as a duration string.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
		Description: "Go duration string, e.g. 10s or 1m30s",
	}
}

// Redacted returns a copy safe to expose over the API: memory-shack
// environment values are replaced since they usually carry credentials.
func (c *Config) Redacted() *Config {
	cpy := *c
	if len(c.MemoryShack.Env) > 0 {
		cpy.MemoryShack.Env = make(map[string]string, len(c.MemoryShack.Env))
		for k := range c.MemoryShack.Env {
			cpy.MemoryShack.Env[k] = "***"
		}
	}
	return &cpy
}
