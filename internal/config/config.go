// Package config resolves lodgectl settings from defaults, JSONC files,
// a .env file, LODGE_* environment variables and command-line overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tailscale/hujson"

	"lodge/internal/domain/failure"
)

// File names looked up relative to the working directory.
const (
	ProjectFileName = ".lodge.json"
	DotEnvFileName  = ".env"
	EnvPrefix       = "LODGE_"
)

// Config errors
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigInvalid      = errors.New("invalid config")
	ErrEnvInvalid         = errors.New("invalid environment variable")
)

// Email configures report delivery. An empty ResendKey selects the no-op sender.
type Email struct {
	ResendKey string   `json:"resend_key,omitempty"`
	From      string   `json:"from,omitempty" validate:"omitempty,email"`
	ReplyTo   string   `json:"reply_to,omitempty" validate:"omitempty,email"`
	ReportTo  []string `json:"report_to,omitempty" validate:"dive,email"`
}

// Config holds every lodgectl setting.
type Config struct {
	APIBaseURL       string `json:"api_base_url" validate:"required,url"`
	APIToken         string `json:"api_token,omitempty"`
	RequestTimeoutMs int    `json:"request_timeout_ms" validate:"gte=100,lte=120000"`
	SearchDebounceMs int    `json:"search_debounce_ms" validate:"gte=1,lte=5000"`
	PageSize         int    `json:"page_size" validate:"oneof=10 20 50 100 200"`
	SlowRequestMs    int    `json:"slow_request_ms" validate:"gte=1"`
	JournalPath      string `json:"journal_path,omitempty"` // empty disables the journal
	LogLevel         string `json:"log_level" validate:"oneof=debug info warn error"`
	Email            Email  `json:"email"`

	// Sources lists the files that were applied, lowest precedence first.
	Sources []string `json:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		APIBaseURL:       "http://localhost:3000/api",
		RequestTimeoutMs: 15000,
		SearchDebounceMs: 300,
		PageSize:         20,
		SlowRequestMs:    800,
		LogLevel:         "info",
	}
}

// Overrides are command-line values. Zero values leave the setting alone.
type Overrides struct {
	APIBaseURL  string
	APIToken    string
	PageSize    int
	JournalPath string
	LogLevel    string
}

// LoadInput holds the inputs for Load.
type LoadInput struct {
	WorkDir    string            // defaults to os.Getwd()
	ConfigPath string            // explicit file; replaces the project file and must exist
	Env        map[string]string // process environment
	Overrides  Overrides
}

// Load resolves the configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global file ($XDG_CONFIG_HOME/lodge/config.json or ~/.config/lodge/config.json)
// 3. Project file .lodge.json, or the explicit ConfigPath
// 4. .env in the working directory, then LODGE_* variables from Env
// 5. Overrides
//
// PRE: none
// POST: Returns a validated Config, or an error wrapping ErrConfigInvalid,
// ErrConfigFileNotFound or ErrEnvInvalid
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
		workDir = wd
	}

	cfg := Default()

	if path := globalPath(input.Env); path != "" {
		if err := applyFile(&cfg, path, false); err != nil {
			return Config{}, err
		}
	}

	projectPath, mustExist := filepath.Join(workDir, ProjectFileName), false
	if input.ConfigPath != "" {
		projectPath, mustExist = input.ConfigPath, true
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}
	}
	if err := applyFile(&cfg, projectPath, mustExist); err != nil {
		return Config{}, err
	}

	env, err := environment(filepath.Join(workDir, DotEnvFileName), input.Env)
	if err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg, env); err != nil {
		return Config{}, err
	}

	applyOverrides(&cfg, input.Overrides)

	if err := failure.Check(cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}
	if cfg.Email.ResendKey != "" && cfg.Email.From == "" {
		return Config{}, fmt.Errorf("%w: %w", ErrConfigInvalid,
			failure.Validation("invalid payload", map[string][]string{"from": {"from is required when resend_key is set"}}))
	}
	return cfg, nil
}

// RequestTimeout is the per-request bound for remote calls.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// SearchDebounce is the quiet period before search text is fetched.
func (c Config) SearchDebounce() time.Duration {
	return time.Duration(c.SearchDebounceMs) * time.Millisecond
}

// SlowRequest is the duration above which a remote call is logged at Warn.
func (c Config) SlowRequest() time.Duration {
	return time.Duration(c.SlowRequestMs) * time.Millisecond
}

// Level maps LogLevel to a slog level.
func (c Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	if c.APIToken != "" {
		c.APIToken = "***"
	}
	if c.Email.ResendKey != "" {
		c.Email.ResendKey = "***"
	}
	return c
}

// globalPath returns $XDG_CONFIG_HOME/lodge/config.json, falling back to
// ~/.config/lodge/config.json. Empty when neither variable is set.
func globalPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "lodge", "config.json")
	}
	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "lodge", "config.json")
	}
	return ""
}

// applyFile decodes a JSONC file over cfg. Keys absent from the file keep
// their current value.
func applyFile(cfg *Config, path string, mustExist bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if mustExist {
				return fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
			}
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("%w %s: invalid JSONC: %w", ErrConfigInvalid, path, err)
	}
	dec := json.NewDecoder(strings.NewReader(string(standardized)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}
	cfg.Sources = append(cfg.Sources, path)
	return nil
}

// environment merges the .env file (if any) under the process environment.
func environment(dotEnvPath string, process map[string]string) (map[string]string, error) {
	merged := make(map[string]string)
	fileEnv, err := godotenv.Read(dotEnvPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s: %w", ErrEnvInvalid, dotEnvPath, err)
	}
	for k, v := range fileEnv {
		merged[k] = v
	}
	for k, v := range process {
		merged[k] = v
	}
	return merged, nil
}

func applyEnv(cfg *Config, env map[string]string) error {
	strs := map[string]*string{
		"API_BASE_URL":   &cfg.APIBaseURL,
		"API_TOKEN":      &cfg.APIToken,
		"JOURNAL_PATH":   &cfg.JournalPath,
		"LOG_LEVEL":      &cfg.LogLevel,
		"RESEND_KEY":     &cfg.Email.ResendKey,
		"EMAIL_FROM":     &cfg.Email.From,
		"EMAIL_REPLY_TO": &cfg.Email.ReplyTo,
	}
	for key, dst := range strs {
		if v, ok := env[EnvPrefix+key]; ok {
			*dst = strings.TrimSpace(v)
		}
	}

	ints := map[string]*int{
		"REQUEST_TIMEOUT_MS": &cfg.RequestTimeoutMs,
		"SEARCH_DEBOUNCE_MS": &cfg.SearchDebounceMs,
		"PAGE_SIZE":          &cfg.PageSize,
		"SLOW_REQUEST_MS":    &cfg.SlowRequestMs,
	}
	for key, dst := range ints {
		v, ok := env[EnvPrefix+key]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q", ErrEnvInvalid, EnvPrefix, key, v)
		}
		*dst = n
	}

	if v, ok := env[EnvPrefix+"REPORT_TO"]; ok {
		cfg.Email.ReportTo = splitList(v)
	}
	return nil
}

func applyOverrides(cfg *Config, o Overrides) {
	if o.APIBaseURL != "" {
		cfg.APIBaseURL = o.APIBaseURL
	}
	if o.APIToken != "" {
		cfg.APIToken = o.APIToken
	}
	if o.PageSize != 0 {
		cfg.PageSize = o.PageSize
	}
	if o.JournalPath != "" {
		cfg.JournalPath = o.JournalPath
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
