package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for wabridge. It is built once at startup
// and handed by pointer to every component; nothing mutates it afterwards.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	WhatsApp WhatsAppConfig `json:"whatsapp" yaml:"whatsapp"`
	Model    ModelConfig    `json:"model" yaml:"model"`
	Dispatch DispatchConfig `json:"dispatch" yaml:"dispatch"`
	Memory   MemoryConfig   `json:"memory" yaml:"memory"`
	Dedupe   DedupeConfig   `json:"dedupe" yaml:"dedupe"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
}

type ServerConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// WhatsAppConfig holds the Cloud API channel credentials.
type WhatsAppConfig struct {
	AuthToken          string `json:"auth_token" yaml:"auth_token"`
	PhoneNumberID      string `json:"phone_number_id" yaml:"phone_number_id"`
	VerifyToken        string `json:"verify_token" yaml:"verify_token"`
	AppSecret          string `json:"app_secret,omitempty" yaml:"app_secret,omitempty"` // enables X-Hub-Signature-256 checks
	APIBase            string `json:"api_base" yaml:"api_base"`
	APIVersion         string `json:"api_version" yaml:"api_version"`
	SendTimeoutSeconds int    `json:"send_timeout_seconds" yaml:"send_timeout_seconds"`
}

func (w WhatsAppConfig) SendTimeout() time.Duration {
	return time.Duration(w.SendTimeoutSeconds) * time.Second
}

// ModelConfig tunes the local language model used for free-form replies.
type ModelConfig struct {
	APIBase        string  `json:"api_base" yaml:"api_base"`
	Name           string  `json:"name" yaml:"name"`
	Temperature    float64 `json:"temperature" yaml:"temperature"`
	TopP           float64 `json:"top_p" yaml:"top_p"`
	MaxPairs       int     `json:"max_pairs" yaml:"max_pairs"`
	TimeoutSeconds int     `json:"timeout_seconds" yaml:"timeout_seconds"`
	MaxRetries     int     `json:"max_retries" yaml:"max_retries"`
	RatePerMinute  float64 `json:"rate_per_minute" yaml:"rate_per_minute"`                 // 0 = unlimited
	SystemPrompt   string  `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"` // empty = built-in prompt
}

func (m ModelConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}

type DispatchConfig struct {
	MaxConcurrent        int `json:"max_concurrent" yaml:"max_concurrent"`
	TimeoutSeconds       int `json:"timeout_seconds" yaml:"timeout_seconds"`
	ShutdownGraceSeconds int `json:"shutdown_grace_seconds" yaml:"shutdown_grace_seconds"`
}

func (d DispatchConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}

func (d DispatchConfig) ShutdownGrace() time.Duration {
	return time.Duration(d.ShutdownGraceSeconds) * time.Second
}

// MemoryConfig configures the turn log. When disabled turns live in process memory.
type MemoryConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	DBPath        string `json:"db_path" yaml:"db_path"`
	MaxTurns      int    `json:"max_turns" yaml:"max_turns"`
	RetentionDays int    `json:"retention_days" yaml:"retention_days"` // 0 keeps turns forever
}

func (m MemoryConfig) Retention() time.Duration {
	return time.Duration(m.RetentionDays) * 24 * time.Hour
}

type DedupeConfig struct {
	TTLSeconds int `json:"ttl_seconds" yaml:"ttl_seconds"` // 0 disables dedupe
	MaxSize    int `json:"max_size" yaml:"max_size"`
}

func (d DedupeConfig) TTL() time.Duration {
	return time.Duration(d.TTLSeconds) * time.Second
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug | info | warn | error
	Format string `json:"format" yaml:"format"` // text | json
}

// DefaultConfigDir returns the default config directory (~/.wabridge).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wabridge"
	}
	return filepath.Join(home, ".wabridge")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads a JSON or YAML config file, overlays it on Defaults and validates
// the result. A .env file next to the config is loaded first; it never
// overrides variables already present in the environment.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("cannot load %s: %w", envFile, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	cfg, err := Parse(path, []byte(ExpandEnvVars(string(data))))
	if err != nil {
		return nil, err
	}

	cfg.Memory.DBPath = ExpandPath(cfg.Memory.DBPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Parse decodes data over Defaults, choosing YAML or JSON by the file extension.
func Parse(path string, data []byte) (*Config, error) {
	cfg := Defaults()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}
	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses default when VAR is unset or empty. Unresolved
// references without a default are left untouched.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		val, ok := os.LookupEnv(groups[1])
		if ok && val != "" {
			return val
		}
		if groups[2] != "" {
			return groups[2]
		}
		return match
	})
}

// Save writes cfg as JSON or YAML depending on the path extension.
func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	// Credentials live in this file.
	return os.WriteFile(path, data, 0o600)
}

// Validate checks value ranges. Credentials are checked separately by
// RequireWebhook and RequireSender since not every command needs them.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if id := cfg.WhatsApp.PhoneNumberID; !unresolved(id) && !isDigits(id) {
		errs = append(errs, "whatsapp.phone_number_id must be numeric")
	}
	if cfg.WhatsApp.APIBase == "" {
		errs = append(errs, "whatsapp.api_base is required")
	}
	if cfg.WhatsApp.APIVersion == "" {
		errs = append(errs, "whatsapp.api_version is required")
	}
	if cfg.WhatsApp.SendTimeoutSeconds < 1 {
		errs = append(errs, "whatsapp.send_timeout_seconds must be >= 1")
	}

	if cfg.Model.APIBase == "" {
		errs = append(errs, "model.api_base is required")
	}
	if cfg.Model.Name == "" {
		errs = append(errs, "model.name is required")
	}
	if cfg.Model.Temperature < 0 || cfg.Model.Temperature > 2 {
		errs = append(errs, "model.temperature must be between 0 and 2")
	}
	if cfg.Model.TopP <= 0 || cfg.Model.TopP > 1 {
		errs = append(errs, "model.top_p must be in (0, 1]")
	}
	if cfg.Model.MaxPairs < 1 {
		errs = append(errs, "model.max_pairs must be >= 1")
	}
	if cfg.Model.TimeoutSeconds < 1 {
		errs = append(errs, "model.timeout_seconds must be >= 1")
	}
	if cfg.Model.MaxRetries < 0 || cfg.Model.MaxRetries > 5 {
		errs = append(errs, "model.max_retries must be between 0 and 5")
	}
	if cfg.Model.RatePerMinute < 0 {
		errs = append(errs, "model.rate_per_minute must be >= 0")
	}

	if cfg.Dispatch.MaxConcurrent < 1 || cfg.Dispatch.MaxConcurrent > 1000 {
		errs = append(errs, "dispatch.max_concurrent must be between 1 and 1000")
	}
	if cfg.Dispatch.TimeoutSeconds < 1 {
		errs = append(errs, "dispatch.timeout_seconds must be >= 1")
	}
	if cfg.Dispatch.ShutdownGraceSeconds < 0 {
		errs = append(errs, "dispatch.shutdown_grace_seconds must be >= 0")
	}

	if cfg.Memory.Enabled && cfg.Memory.DBPath == "" {
		errs = append(errs, "memory.db_path is required when memory is enabled")
	}
	if cfg.Memory.MaxTurns < 1 {
		errs = append(errs, "memory.max_turns must be >= 1")
	}
	if cfg.Memory.RetentionDays < 0 {
		errs = append(errs, "memory.retention_days must be >= 0")
	}

	if cfg.Dedupe.TTLSeconds < 0 {
		errs = append(errs, "dedupe.ttl_seconds must be >= 0")
	}
	if cfg.Dedupe.TTLSeconds > 0 && cfg.Dedupe.MaxSize < 1 {
		errs = append(errs, "dedupe.max_size must be >= 1 when dedupe is enabled")
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, "metrics.path must start with /")
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, "logging.format must be one of: text, json")
	}

	return joinErrors(errs)
}

// RequireWebhook checks the credentials needed to accept provider webhooks.
func RequireWebhook(cfg *Config) error {
	var errs []string
	if unresolved(cfg.WhatsApp.VerifyToken) {
		errs = append(errs, "whatsapp.verify_token is not set")
	}
	return joinErrors(append(errs, senderErrors(cfg)...))
}

// RequireSender checks the credentials needed to call the provider send API.
func RequireSender(cfg *Config) error {
	return joinErrors(senderErrors(cfg))
}

func senderErrors(cfg *Config) []string {
	var errs []string
	if unresolved(cfg.WhatsApp.AuthToken) {
		errs = append(errs, "whatsapp.auth_token is not set")
	}
	if unresolved(cfg.WhatsApp.PhoneNumberID) {
		errs = append(errs, "whatsapp.phone_number_id is not set")
	}
	return errs
}

// unresolved reports an empty value or a ${VAR} reference nobody expanded.
func unresolved(v string) bool {
	return v == "" || envVarPattern.MatchString(v)
}

func joinErrors(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
}

func isDigits(s string) bool {
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
