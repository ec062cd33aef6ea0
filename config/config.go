// Package config provides configuration loading for url-preview using TOML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/BurntSushi/toml"
)

// Cache settings
type Cache struct {
	Dir string `toml:"dir"` // empty = user cache dir
}

// Display settings
type Display struct {
	Prefix         string `toml:"prefix"`
	PostRenderHook string `toml:"postRenderHook"`
}

// HTTP fetching settings
type Fetcher struct {
	UserAgent      string `toml:"userAgent"`
	TimeoutSeconds int    `toml:"timeoutSeconds"`
	ChromePath     string `toml:"chromePath"`
	UseBrowser     bool   `toml:"useBrowser"` // retry blocked or thin pages in headless Chrome
}

// Modules selects which modules run. Enabled and Disabled override the
// modules' own defaults, Disabled winning.
type Modules struct {
	Enabled  []string `toml:"enabled"`
	Disabled []string `toml:"disabled"`
}

// Template declares a user module. See preview.TemplateSpec.
type Template struct {
	Name      string            `toml:"name"`
	Pattern   string            `toml:"pattern"`
	Rewrite   string            `toml:"rewrite"`
	Headers   map[string]string `toml:"headers"`
	Fields    map[string]string `toml:"fields"`
	Selectors map[string]string `toml:"selectors"`
	Format    string            `toml:"format"`
	Disabled  bool              `toml:"disabled"`
}

// Config is the main configuration struct
type Config struct {
	Cache     Cache      `toml:"cache"`
	Display   Display    `toml:"display"`
	Fetcher   Fetcher    `toml:"fetcher"`
	Modules   Modules    `toml:"modules"`
	Templates []Template `toml:"template"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Display: Display{
			Prefix:         "url-preview",
			PostRenderHook: "url-preview-after-render",
		},
		Fetcher: Fetcher{
			UserAgent:      "url-preview/1.0",
			TimeoutSeconds: 30,
		},
	}
}

// configDir returns the configuration directory path.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "url-preview"), nil
}

// ConfigPath returns the path to the user's config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load loads configuration, layering user config on top of defaults.
// Returns the default config if no user config exists.
func Load() (*Config, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return Default(), nil
	}
	return LoadFile(configPath)
}

// LoadFile is Load for an explicit path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	userCfg, md, err := loadFromTOML(path)
	if err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}
	result := merge(cfg, userCfg, md)
	if err := result.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return result, nil
}

// loadFromTOML loads a TOML config file and returns the config.
func loadFromTOML(path string) (*Config, toml.MetaData, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, md, fmt.Errorf("parsing config TOML: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, md, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return &cfg, md, nil
}

// merge layers user config on top of defaults.
// Only non-zero values from user config override defaults; booleans
// override whenever the key is present.
func merge(defaults, user *Config, md toml.MetaData) *Config {
	result := *defaults

	if user.Cache.Dir != "" {
		result.Cache.Dir = user.Cache.Dir
	}

	if user.Display.Prefix != "" {
		result.Display.Prefix = user.Display.Prefix
	}
	if user.Display.PostRenderHook != "" {
		result.Display.PostRenderHook = user.Display.PostRenderHook
	}

	if user.Fetcher.UserAgent != "" {
		result.Fetcher.UserAgent = user.Fetcher.UserAgent
	}
	if user.Fetcher.TimeoutSeconds != 0 {
		result.Fetcher.TimeoutSeconds = user.Fetcher.TimeoutSeconds
	}
	if user.Fetcher.ChromePath != "" {
		result.Fetcher.ChromePath = user.Fetcher.ChromePath
	}
	if md.IsDefined("fetcher", "useBrowser") {
		result.Fetcher.UseBrowser = user.Fetcher.UseBrowser
	}

	result.Modules.Enabled = slices.Clone(user.Modules.Enabled)
	result.Modules.Disabled = slices.Clone(user.Modules.Disabled)
	result.Templates = slices.Clone(user.Templates)

	return &result
}

func (c *Config) validate() error {
	if c.Fetcher.TimeoutSeconds < 0 {
		return fmt.Errorf("fetcher.timeoutSeconds must not be negative")
	}
	seen := make(map[string]bool)
	for i, t := range c.Templates {
		if t.Name == "" || t.Pattern == "" {
			return fmt.Errorf("template #%d: name and pattern are required", i+1)
		}
		if seen[t.Name] {
			return fmt.Errorf("template %s: defined twice", t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}

// ModuleEnabled applies the [modules] lists to a module's default state.
func (c *Config) ModuleEnabled(name string, def bool) bool {
	if slices.Contains(c.Modules.Disabled, name) {
		return false
	}
	if slices.Contains(c.Modules.Enabled, name) {
		return true
	}
	return def
}

// DefaultTOML returns the default configuration as a TOML string.
// Used for init-config to generate a user config file.
func DefaultTOML() string {
	return `# url-preview configuration
# Save to ~/.config/url-preview/config.toml and customize
# Only include settings you want to change from defaults

# Content cache
[cache]
dir = ""                      # empty = $XDG_CACHE_HOME/url-preview

# Rendering
[display]
prefix = "url-preview"        # tag in "[prefix] module - message"
postRenderHook = "url-preview-after-render"

# HTTP fetching settings
[fetcher]
userAgent = "url-preview/1.0"
timeoutSeconds = 30
chromePath = ""               # Path to Chrome/Chromium for JS rendering (empty = auto-detect)
useBrowser = false            # Retry blocked or script-only pages in headless Chrome

# Module selection (built-ins: image github hackernews reddit youtube wikipedia page summary)
[modules]
enabled = []                  # e.g. ["page"]
disabled = []                 # e.g. ["image"]

# User-defined modules
# [[template]]
# name = "crates"
# pattern = 'crates\.io/crates/([\w-]+)'
# rewrite = "https://crates.io/api/v1/crates/$1"
# format = "{{.name}} {{.version}}"
# [template.fields]
# name = "crate.name"
# version = "crate.max_version"
`
}
