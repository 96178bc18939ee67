package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"

	"github.com/grovetools/devdash/errors"
	"github.com/grovetools/devdash/pkg/paths"
	"github.com/grovetools/devdash/util/pathutil"
	"github.com/mitchellh/mapstructure"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable pointing at a config file.
const EnvConfigPath = "DEVDASH_CONFIG"

// FileNames are the config file names searched for, in order.
var FileNames = []string{"devdash.yml", "devdash.yaml", "devdash.toml"}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// FindConfigFile resolves the configuration file: the explicit path first,
// then $DEVDASH_CONFIG, then the working directory, then the XDG config
// directory. It returns "" when no file exists.
func FindConfigFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", errors.ConfigNotFound(explicit)
		}
		return explicit, nil
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		if _, err := os.Stat(env); err != nil {
			return "", errors.ConfigNotFound(env)
		}
		return env, nil
	}

	var dirs []string
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	if dir := paths.ConfigDir(); dir != "" {
		dirs = append(dirs, dir)
	}
	for _, dir := range dirs {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}
	}
	return "", nil
}

// LoadDefault finds and loads the configuration. A missing file yields the
// defaults with projects_root resolved against the working directory.
func LoadDefault(explicit string) (*Config, error) {
	path, err := FindConfigFile(explicit)
	if err != nil {
		return nil, err
	}
	if path == "" {
		cfg := Default()
		if err := cfg.resolvePaths(""); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return Load(path)
}

// Load reads and parses a configuration file. The format follows the file
// extension. Relative paths inside the file resolve against its directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}

	cfg, err := LoadFromBytes(data, formatOf(path))
	if err != nil {
		if de, ok := err.(*errors.DashError); ok {
			return nil, de.WithDetail("path", path)
		}
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err == nil {
		path = abs
	}
	cfg.path = path
	if err := cfg.resolvePaths(filepath.Dir(path)); err != nil {
		return nil, err
	}
	return cfg, nil
}

func formatOf(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return "toml"
	}
	return "yaml"
}

// LoadFromBytes parses configuration in the given format ("yaml" or "toml"),
// validates it and applies defaults. Relative paths are left unresolved.
func LoadFromBytes(data []byte, format string) (*Config, error) {
	expanded := []byte(expandEnvVars(string(data)))

	var (
		cfg Config
		raw map[string]interface{}
	)
	switch format {
	case "toml":
		if err := toml.Unmarshal(expanded, &cfg); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse TOML configuration")
		}
		if err := toml.Unmarshal(expanded, &raw); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse TOML configuration")
		}
	default:
		if len(bytes.TrimSpace(expanded)) > 0 {
			if err := yaml.Unmarshal(expanded, &cfg); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse YAML configuration")
			}
			if err := yaml.Unmarshal(expanded, &raw); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse YAML configuration")
			}
		}
	}

	cfg.Extensions = extensionsOf(raw)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// knownKeys lists the top-level keys that map onto Config fields.
var knownKeys = func() map[string]bool {
	keys := make(map[string]bool)
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("yaml"), ",")[0]
		if tag != "" && tag != "-" {
			keys[tag] = true
		}
	}
	return keys
}()

func extensionsOf(raw map[string]interface{}) map[string]interface{} {
	ext := make(map[string]interface{})
	for k, v := range raw {
		if !knownKeys[k] {
			ext[k] = v
		}
	}
	return ext
}

func (c *Config) resolvePaths(base string) error {
	root, err := pathutil.Expand(c.ProjectsRoot, base)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid projects_root").
			WithDetail("projects_root", c.ProjectsRoot)
	}
	c.ProjectsRoot = root

	static, err := pathutil.Expand(c.StaticDir, base)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid static_dir").
			WithDetail("static_dir", c.StaticDir)
	}
	c.StaticDir = static
	return nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment values.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := envVarRegex.FindStringSubmatch(match)[1]

		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]
		defaultValue := ""
		if len(parts) > 1 {
			defaultValue = parts[1]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// UnmarshalExtension decodes a top-level section that devdash itself does not
// define (for example `logging`) into target, which must be a pointer. A
// missing section leaves target untouched.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}
