package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is everything an application server reads at startup.
type Config struct {
	// Bind is the listen address. Anything but loopback additionally
	// needs AllowNonLoopback.
	Bind             string `json:"bind" mapstructure:"bind"`
	AllowNonLoopback bool   `json:"allowNonLoopback" mapstructure:"allowNonLoopback"`

	FirstByteTimeoutMs int `json:"firstByteTimeoutMs" mapstructure:"firstByteTimeoutMs"`
	RequestTimeoutMs   int `json:"requestTimeoutMs" mapstructure:"requestTimeoutMs"`
	WriteTimeoutMs     int `json:"writeTimeoutMs" mapstructure:"writeTimeoutMs"`
	MaxRequestBytes    int `json:"maxRequestBytes" mapstructure:"maxRequestBytes"`

	Templates TemplatesConfig `json:"templates" mapstructure:"templates"`
	Static    StaticConfig    `json:"static" mapstructure:"static"`
	Database  DatabaseConfig  `json:"database" mapstructure:"database"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
}

// TemplatesConfig locates the page templates.
type TemplatesConfig struct {
	Dir string `json:"dir" mapstructure:"dir"`
	Ext string `json:"ext" mapstructure:"ext"`

	// AutoReload recompiles templates on every request. Development
	// convenience.
	AutoReload bool `json:"autoReload" mapstructure:"autoReload"`
}

// StaticConfig locates the static asset folder. An empty Dir disables
// static serving.
type StaticConfig struct {
	Dir string `json:"dir" mapstructure:"dir"`
}

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// LoggingConfig selects log output.
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Bind:               "127.0.0.1:8080",
		FirstByteTimeoutMs: 1000,
		RequestTimeoutMs:   30000,
		WriteTimeoutMs:     60000,
		MaxRequestBytes:    10 << 20,
		Templates: TemplatesConfig{
			Dir: "templates",
			Ext: ".tpl",
		},
		Static: StaticConfig{
			Dir: "static",
		},
		Database: DatabaseConfig{
			Path: "app.db",
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// Load reads dir/config.json, layered under KALE_* environment
// variables (KALE_BIND, KALE_LOGGING_LEVEL, and so on). A missing file
// is not an error; the defaults and environment still apply.
func Load(dir string) (*Config, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault("bind", defaults.Bind)
	v.SetDefault("allowNonLoopback", defaults.AllowNonLoopback)
	v.SetDefault("firstByteTimeoutMs", defaults.FirstByteTimeoutMs)
	v.SetDefault("requestTimeoutMs", defaults.RequestTimeoutMs)
	v.SetDefault("writeTimeoutMs", defaults.WriteTimeoutMs)
	v.SetDefault("maxRequestBytes", defaults.MaxRequestBytes)
	v.SetDefault("templates.dir", defaults.Templates.Dir)
	v.SetDefault("templates.ext", defaults.Templates.Ext)
	v.SetDefault("templates.autoReload", defaults.Templates.AutoReload)
	v.SetDefault("static.dir", defaults.Static.Dir)
	v.SetDefault("database.path", defaults.Database.Path)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("logging.level", defaults.Logging.Level)

	v.SetEnvPrefix("KALE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the configuration to dir/config.json.
func (c *Config) Save(dir string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), append(data, '\n'), 0644)
}

// Validate checks the fields that would otherwise fail much later and
// more confusingly.
func (c *Config) Validate() error {
	if c.Bind == "" {
		return &Error{Field: "bind", Message: "must not be empty"}
	}
	if c.FirstByteTimeoutMs <= 0 {
		return &Error{Field: "firstByteTimeoutMs", Message: "must be positive"}
	}
	if c.MaxRequestBytes <= 0 {
		return &Error{Field: "maxRequestBytes", Message: "must be positive"}
	}
	if c.Database.Path == "" {
		return &Error{Field: "database.path", Message: "must not be empty"}
	}
	switch c.Logging.Format {
	case "json", "human":
	default:
		return &Error{Field: "logging.format", Message: "must be json or human"}
	}
	return nil
}

// FirstByteTimeout returns the timeout as a duration.
func (c *Config) FirstByteTimeout() time.Duration {
	return time.Duration(c.FirstByteTimeoutMs) * time.Millisecond
}

// RequestTimeout returns the timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// WriteTimeout returns the timeout as a duration.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMs) * time.Millisecond
}

// Error reports an invalid configuration field.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
