/*
config.go - Deployment configuration

PURPOSE:
  Reads the TOML configuration shared by the HTTP server and the punchctl
  CLI, applies defaults, and layers environment overrides on top.

SOURCES (later wins):
  1. Default()
  2. TOML file (Manager.Read / ReadFromFile)
  3. .env file, when present (godotenv, never overrides the real env)
  4. PUNCHCLOCK_* environment variables

SEE ALSO:
  - app/app.go: builds the store and services from a Config
  - attendance/rules.go: the thresholds the [rules] section feeds
*/
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/warp/punchclock/attendance"
)

// Environment variables that override the file.
const (
	EnvDBPath       = "PUNCHCLOCK_DB_PATH"
	EnvSMTPPassword = "PUNCHCLOCK_SMTP_PASSWORD"
	EnvTimezone     = "PUNCHCLOCK_TIMEZONE"
	EnvListen       = "PUNCHCLOCK_LISTEN"
)

// Config is the root of the TOML document.
type Config struct {
	Timezone  string          `toml:"timezone"`
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Photos    PhotosConfig    `toml:"photos"`
	Rules     RulesConfig     `toml:"rules"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Mail      MailConfig      `toml:"mail"`
	Log       LogConfig       `toml:"log"`
}

type ServerConfig struct {
	Listen         string   `toml:"listen"`
	AllowedOrigins []string `toml:"allowed_origins"`
	ReadTimeout    Duration `toml:"read_timeout"`
	WriteTimeout   Duration `toml:"write_timeout"`
}

// DatabaseConfig uses the tagged union pattern: Path only applies to sqlite.
type DatabaseConfig struct {
	Type string `toml:"type"` // "sqlite" or "memory"
	Path string `toml:"path,omitempty"`
	// AutoMigrate applies pending migrations on startup. When false a
	// stale schema is an error and `punchctl migrate` must be run.
	AutoMigrate bool `toml:"auto_migrate"`
}

// PhotosConfig uses the tagged union pattern: Dir only applies to filesystem.
type PhotosConfig struct {
	Type string `toml:"type"` // "filesystem" or "memory"
	Dir  string `toml:"dir,omitempty"`
}

type RulesConfig struct {
	PayrollLateTolerance  Duration `toml:"payroll_late_tolerance"`
	AbsenceTolerance      Duration `toml:"absence_tolerance"`
	FatigueMargin         Duration `toml:"fatigue_margin"`
	ForgottenExitAfter    Duration `toml:"forgotten_exit_after"`
	ForgottenExitLookback Duration `toml:"forgotten_exit_lookback"`
}

type SchedulerConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval Duration `toml:"interval"`
}

// MailConfig is disabled when Host is empty.
type MailConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password,omitempty"`
	From     string `toml:"from"`
}

func (m MailConfig) Enabled() bool { return m.Host != "" }

type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text or json
}

// Default returns a configuration that runs out of the box against a local
// SQLite file.
func Default() *Config {
	rules := attendance.DefaultRules()
	return &Config{
		Timezone: "America/Santiago",
		Server: ServerConfig{
			Listen:         ":8080",
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
			ReadTimeout:    Duration{15 * time.Second},
			WriteTimeout:   Duration{15 * time.Second},
		},
		Database: DatabaseConfig{Type: "sqlite", Path: "punchclock.db", AutoMigrate: true},
		Photos:   PhotosConfig{Type: "filesystem", Dir: "photos"},
		Rules: RulesConfig{
			PayrollLateTolerance:  Duration{rules.PayrollLateTolerance},
			AbsenceTolerance:      Duration{rules.AbsenceTolerance},
			FatigueMargin:         Duration{rules.FatigueMargin},
			ForgottenExitAfter:    Duration{rules.ForgottenExitAfter},
			ForgottenExitLookback: Duration{rules.ForgottenExitLookback},
		},
		Scheduler: SchedulerConfig{Enabled: true, Interval: Duration{5 * time.Minute}},
		Mail:      MailConfig{Port: 587},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// AttendanceRules converts the [rules] section.
func (c *Config) AttendanceRules() attendance.Rules {
	return attendance.Rules{
		PayrollLateTolerance:  c.Rules.PayrollLateTolerance.Duration,
		AbsenceTolerance:      c.Rules.AbsenceTolerance.Duration,
		FatigueMargin:         c.Rules.FatigueMargin.Duration,
		ForgottenExitAfter:    c.Rules.ForgottenExitAfter.Duration,
		ForgottenExitLookback: c.Rules.ForgottenExitLookback.Duration,
	}
}

// Location loads the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) Validate() error {
	switch c.Database.Type {
	case "memory":
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	default:
		return fmt.Errorf("unknown database type %q", c.Database.Type)
	}
	switch c.Photos.Type {
	case "memory":
	case "filesystem":
		if c.Photos.Dir == "" {
			return fmt.Errorf("photos.dir is required for filesystem")
		}
	default:
		return fmt.Errorf("unknown photos type %q", c.Photos.Type)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	r := c.Rules
	for name, d := range map[string]time.Duration{
		"payroll_late_tolerance": r.PayrollLateTolerance.Duration,
		"absence_tolerance":      r.AbsenceTolerance.Duration,
		"fatigue_margin":         r.FatigueMargin.Duration,
	} {
		if d < 0 {
			return fmt.Errorf("rules.%s must not be negative", name)
		}
	}
	if r.ForgottenExitAfter.Duration <= 0 || r.ForgottenExitLookback.Duration <= 0 {
		return fmt.Errorf("rules.forgotten_exit_after and rules.forgotten_exit_lookback must be positive")
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval.Duration <= 0 {
		return fmt.Errorf("scheduler.interval must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// =============================================================================
// READ / WRITE
// =============================================================================

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from r on top of Default().
func (m *Manager) Read(r io.Reader) (*Config, error) {
	cfg := Default()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Write encodes a Config to w.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Init writes cfg to path, refusing to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("initializing config at %s: %w", path, err)
	}
	return nil
}

// Load reads path (an empty path or a missing file yields the defaults),
// loads envFile when it exists and applies the environment overrides.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()
	if path != "" {
		loaded, err := ReadFromFile(path)
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}

	if err := LoadEnv(envFile); err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadEnv loads a .env file into the process environment. A missing file is
// not an error.
func LoadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from the PUNCHCLOCK_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDBPath); ok && v != "" {
		c.Database.Type = "sqlite"
		c.Database.Path = v
	}
	if v, ok := lookup(EnvSMTPPassword); ok {
		c.Mail.Password = v
	}
	if v, ok := lookup(EnvTimezone); ok && v != "" {
		c.Timezone = v
	}
	if v, ok := lookup(EnvListen); ok && v != "" {
		c.Server.Listen = v
	}
}

// =============================================================================
// DURATION
// =============================================================================

// Duration is a time.Duration written as "45m" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
