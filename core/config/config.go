package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tristendillon/bundlefix/core/logger"
	"github.com/tristendillon/bundlefix/core/paths"
	"gopkg.in/yaml.v3"
)

const FileName = "bundlefix.yaml"

const (
	ListerOtool = "otool"
	ListerMachO = "macho"
)

type Config struct {
	Lister           string   `yaml:"lister"`
	Tools            Tools    `yaml:"tools"`
	Ignore           Ignore   `yaml:"ignore"`
	PluginExtensions []string `yaml:"plugin_extensions"`
	Watch            Watch    `yaml:"watch"`
}

type Tools struct {
	Otool           string `yaml:"otool"`
	InstallNameTool string `yaml:"install_name_tool"`
}

type Ignore struct {
	SystemLibrary   string   `yaml:"system_library"`
	SystemFramework string   `yaml:"system_framework"`
	Extra           []string `yaml:"extra"`
}

type Watch struct {
	Debounce time.Duration `yaml:"debounce"`
}

func Default() *Config {
	return &Config{
		Lister: ListerOtool,
		Tools: Tools{
			Otool:           "otool",
			InstallNameTool: "install_name_tool",
		},
		Ignore: Ignore{
			SystemLibrary:   paths.DefaultSystemLibrary,
			SystemFramework: paths.DefaultSystemFramework,
		},
		PluginExtensions: []string{".dylib"},
		Watch: Watch{
			Debounce: 500 * time.Millisecond,
		},
	}
}

// Load reads path, or bundlefix.yaml in the working directory when path is
// empty. A missing default file yields Default(); a missing explicit file is
// an error. Keys left out of the file keep their default values.
func Load(path string) (*Config, error) {
	filePath := path
	if filePath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("cannot determine working dir: %w", err)
		}
		candidate := filepath.Join(wd, FileName)
		if _, err := os.Stat(candidate); err == nil {
			filePath = candidate
		}
	}

	if filePath == "" {
		logger.Debug("No config file found, using default config")
		return Default(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filePath, err)
	}
	logger.Debug("Config file found: %s", filePath)
	logger.Debug("Config: %+v", *cfg)

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Lister {
	case ListerOtool, ListerMachO:
	default:
		return fmt.Errorf("unknown lister %q (want %s or %s)", c.Lister, ListerOtool, ListerMachO)
	}
	if c.Lister == ListerOtool && c.Tools.Otool == "" {
		return fmt.Errorf("tools.otool must not be empty")
	}
	if c.Tools.InstallNameTool == "" {
		return fmt.Errorf("tools.install_name_tool must not be empty")
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	return nil
}

// Rules builds the ignore rules from the ignore section.
func (c *Config) Rules() paths.RuleSet {
	return paths.NewRules(c.Ignore.SystemLibrary, c.Ignore.SystemFramework, c.Ignore.Extra...)
}
