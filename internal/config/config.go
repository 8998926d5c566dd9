// Package config loads coachcal settings from YAML with environment overrides.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"coachcal/internal/application/planner"
)

// Environment names.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Server configures the HTTP server and its database.
type Server struct {
	Listen             string `yaml:"listen"`
	DBPath             string `yaml:"db_path"`
	Env                string `yaml:"env"`
	StaticDir          string `yaml:"static_dir"`
	CSRFKey            string `yaml:"csrf_key"` // 64 hex characters
	RateLimitPerSecond int    `yaml:"rate_limit_per_second"`
	SlowQueryMs        int    `yaml:"slow_query_ms"`
	SlowRequestMs      int    `yaml:"slow_request_ms"`
}

// Planner configures the calendar window and how it reaches the item store.
type Planner struct {
	// ServerURL is the coachcal API used by the board command. Empty means
	// open the database directly.
	ServerURL          string        `yaml:"server_url"`
	PaddingWeeks       int           `yaml:"padding_weeks"`
	PageDays           int           `yaml:"page_days"`
	EdgeThresholdPx    float64       `yaml:"edge_threshold_px"`
	WeekStart          string        `yaml:"week_start"` // monday or sunday
	RemoteTimeout      time.Duration `yaml:"remote_timeout"`
	ReconcileAfterMove bool          `yaml:"reconcile_after_move"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Config is the top-level application configuration.
type Config struct {
	Server  Server  `yaml:"server"`
	Planner Planner `yaml:"planner"`
	Log     Log     `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	w := planner.DefaultWindowConfig()
	return Config{
		Server: Server{
			Listen:             ":8080",
			DBPath:             "coachcal.db",
			Env:                EnvDevelopment,
			StaticDir:          "static",
			RateLimitPerSecond: 10,
			SlowQueryMs:        50,
			SlowRequestMs:      200,
		},
		Planner: Planner{
			PaddingWeeks:    w.PaddingWeeks,
			PageDays:        w.PageDays,
			EdgeThresholdPx: w.EdgeThresholdPx,
			WeekStart:       "monday",
			RemoteTimeout:   10 * time.Second,
		},
		Log: Log{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
// PRE: none
// POST: returned config passed Validate
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from COACHCAL_* variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v := getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("COACHCAL_ADDR", &c.Server.Listen)
	str("COACHCAL_DB", &c.Server.DBPath)
	str("COACHCAL_ENV", &c.Server.Env)
	str("COACHCAL_CSRF_KEY", &c.Server.CSRFKey)
	str("COACHCAL_LOG_LEVEL", &c.Log.Level)
	str("COACHCAL_SERVER_URL", &c.Planner.ServerURL)
	if err := num("COACHCAL_SLOW_QUERY_MS", &c.Server.SlowQueryMs); err != nil {
		return err
	}
	return num("COACHCAL_SLOW_REQUEST_MS", &c.Server.SlowRequestMs)
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen is required"))
	}
	if c.Server.DBPath == "" {
		errs = append(errs, errors.New("server.db_path is required"))
	}
	if c.Server.Env != EnvDevelopment && c.Server.Env != EnvProduction {
		errs = append(errs, fmt.Errorf("server.env must be %s or %s", EnvDevelopment, EnvProduction))
	}
	if c.Server.RateLimitPerSecond <= 0 {
		errs = append(errs, errors.New("server.rate_limit_per_second must be positive"))
	}
	if c.Server.CSRFKey != "" {
		if key, err := hex.DecodeString(c.Server.CSRFKey); err != nil || len(key) != 32 {
			errs = append(errs, errors.New("server.csrf_key must be 64 hex characters (32 bytes)"))
		}
	} else if c.Production() {
		errs = append(errs, errors.New("server.csrf_key is required in production"))
	}
	if c.Planner.PaddingWeeks < 0 {
		errs = append(errs, errors.New("planner.padding_weeks cannot be negative"))
	}
	if c.Planner.PageDays <= 0 {
		errs = append(errs, errors.New("planner.page_days must be positive"))
	}
	if c.Planner.EdgeThresholdPx < 0 {
		errs = append(errs, errors.New("planner.edge_threshold_px cannot be negative"))
	}
	if _, err := parseWeekStart(c.Planner.WeekStart); err != nil {
		errs = append(errs, err)
	}
	if c.Planner.RemoteTimeout < 0 {
		errs = append(errs, errors.New("planner.remote_timeout cannot be negative"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, errors.New("log.format must be text or json"))
	}
	return errors.Join(errs...)
}

// Production reports whether the server runs in production mode.
func (c Config) Production() bool { return c.Server.Env == EnvProduction }

// CSRFKeyBytes returns the decoded CSRF key. Outside production a missing
// key is replaced by a random one, so sessions do not survive a restart.
func (c Config) CSRFKeyBytes() ([]byte, error) {
	if c.Server.CSRFKey != "" {
		key, err := hex.DecodeString(c.Server.CSRFKey)
		if err != nil || len(key) != 32 {
			return nil, errors.New("csrf key must be 64 hex characters (32 bytes)")
		}
		return key, nil
	}
	if c.Production() {
		return nil, errors.New("csrf key is required in production")
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate csrf key: %w", err)
	}
	slog.Warn("csrf_key_generated", "reason", "COACHCAL_CSRF_KEY not set; forms will not survive a restart")
	return key, nil
}

// Window converts the planner section into the window settings.
func (c Config) Window() planner.WindowConfig {
	ws, _ := parseWeekStart(c.Planner.WeekStart)
	return planner.WindowConfig{
		PaddingWeeks:     c.Planner.PaddingWeeks,
		PageDays:         c.Planner.PageDays,
		WeekStartsSunday: ws == time.Sunday,
		EdgeThresholdPx:  c.Planner.EdgeThresholdPx,
	}
}

func parseWeekStart(s string) (time.Weekday, error) {
	switch strings.ToLower(s) {
	case "monday", "":
		return time.Monday, nil
	case "sunday":
		return time.Sunday, nil
	}
	return 0, fmt.Errorf("planner.week_start must be monday or sunday, got %q", s)
}
