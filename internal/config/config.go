package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cgast/agdesk/internal/fsutil"
	"github.com/cgast/agdesk/internal/sandbox"
)

// Environment overrides applied after the file is read.
const (
	EnvDryRun      = "AGDESK_DRY_RUN"
	EnvLLMProvider = "AGDESK_LLM_PROVIDER"
	EnvGeminiKey   = "GEMINI_API_KEY"
)

// LLM providers.
const (
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
	ProviderNone   = "none"
)

// Confirmation modes.
const (
	ConfirmTerminal = "terminal"
	ConfirmDeny     = "deny"
)

// Config represents the runtime configuration from .agdesk/config.yaml.
type Config struct {
	DryRun             bool                `yaml:"dry_run"`
	LogLevel           string              `yaml:"log_level"`
	DataDir            string              `yaml:"data_dir"`
	LLM                LLMConfig           `yaml:"llm"`
	Confirmation       ConfirmationConfig  `yaml:"confirmation"`
	Consent            ConsentConfig       `yaml:"consent"`
	Audit              AuditConfig         `yaml:"audit"`
	Sandbox            SandboxConfig       `yaml:"sandbox"`
	Web                WebConfig           `yaml:"web"`
	Apps               map[string][]string `yaml:"apps,omitempty"`
	ProtectedProcesses []string            `yaml:"protected_processes,omitempty"`
}

// LLMConfig selects the generation backend.
type LLMConfig struct {
	Provider   string `yaml:"provider"` // "ollama", "gemini", "none"
	Endpoint   string `yaml:"endpoint,omitempty"`
	Model      string `yaml:"model,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
	Timeout    int    `yaml:"timeout"` // seconds
	MaxRetries int    `yaml:"max_retries"`
}

// ConfirmationConfig defines how consent is asked.
type ConfirmationConfig struct {
	Mode    string `yaml:"mode"`    // "terminal", "deny"
	Timeout int    `yaml:"timeout"` // seconds
}

// ConsentConfig defines remembered-consent settings.
type ConsentConfig struct {
	ExpiryDays int `yaml:"expiry_days"`
}

// AuditConfig defines journal limits.
type AuditConfig struct {
	MaxEntries int    `yaml:"max_entries"`
	MaxSize    string `yaml:"max_size"`
	MaxFiles   int    `yaml:"max_files"`
}

// SandboxConfig defines filesystem restrictions for the file handlers.
type SandboxConfig struct {
	AllowedPaths []string `yaml:"allowed_paths"`
	DeniedPaths  []string `yaml:"denied_paths"`
	MaxFileSize  string   `yaml:"max_file_size"`
}

// WebConfig defines browser and network handler settings.
type WebConfig struct {
	AllowedDomains []string `yaml:"allowed_domains"`
	SearchURL      string   `yaml:"search_url"`
	WeatherURL     string   `yaml:"weather_url"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DryRun:   true,
		LogLevel: "info",
		DataDir:  "~/.agdesk",
		LLM: LLMConfig{
			Provider:   ProviderOllama,
			Endpoint:   "http://localhost:11434",
			Timeout:    30,
			MaxRetries: 3,
		},
		Confirmation: ConfirmationConfig{
			Mode:    ConfirmTerminal,
			Timeout: 30,
		},
		Consent: ConsentConfig{
			ExpiryDays: 30,
		},
		Audit: AuditConfig{
			MaxEntries: 1000,
			MaxSize:    "5MB",
			MaxFiles:   5,
		},
		Sandbox: SandboxConfig{
			AllowedPaths: []string{"~/Documents", "~/Downloads", "~/Desktop", "~/Projects"},
			DeniedPaths:  []string{"~/.ssh", "~/.gnupg"},
			MaxFileSize:  "5MB",
		},
		Web: WebConfig{
			AllowedDomains: []string{"wttr.in"},
			SearchURL:      "https://www.google.com/search?q=",
			WeatherURL:     "https://wttr.in/%s?format=3",
		},
	}
}

// LoadConfig reads and parses a runtime config YAML file, interpolating
// ${VAR} references first. Returns the defaults if the file doesn't exist.
// Environment overrides are applied and the result validated either way.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		interpolated := interpolateEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	dir, err := ExpandHome(cfg.DataDir)
	if err != nil {
		return cfg, fmt.Errorf("config: data_dir: %w", err)
	}
	cfg.DataDir = dir

	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv(EnvDryRun); ok && v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s=%q: %w", EnvDryRun, v, err)
		}
		cfg.DryRun = on
	}
	if v := os.Getenv(EnvLLMProvider); v != "" {
		cfg.LLM.Provider = strings.ToLower(v)
	}
	if cfg.LLM.Provider == ProviderGemini && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv(EnvGeminiKey)
	}
	return nil
}

// Validate checks enumerated fields and sizes.
func (c Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOllama, ProviderGemini, ProviderNone:
	default:
		return fmt.Errorf("config: unknown llm provider %q", c.LLM.Provider)
	}
	switch c.Confirmation.Mode {
	case ConfirmTerminal, ConfirmDeny:
	default:
		return fmt.Errorf("config: unknown confirmation mode %q", c.Confirmation.Mode)
	}
	if _, err := sandbox.ParseFileSize(c.Audit.MaxSize); err != nil {
		return fmt.Errorf("config: audit.max_size: %w", err)
	}
	if c.Sandbox.MaxFileSize != "" {
		if _, err := sandbox.ParseFileSize(c.Sandbox.MaxFileSize); err != nil {
			return fmt.Errorf("config: sandbox.max_file_size: %w", err)
		}
	}
	if c.LLM.Timeout < 0 || c.Confirmation.Timeout < 0 {
		return fmt.Errorf("config: timeouts must not be negative")
	}
	return nil
}

// ConfirmTimeout returns the confirmation timeout.
func (c Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.Confirmation.Timeout) * time.Second
}

// LLMTimeout returns the per-request generation timeout.
func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.Timeout) * time.Second
}

// ConsentExpiry returns how long permanent consent lasts.
func (c Config) ConsentExpiry() time.Duration {
	return time.Duration(c.Consent.ExpiryDays) * 24 * time.Hour
}

// AuditMaxSize returns the journal rotation threshold in bytes.
func (c Config) AuditMaxSize() int64 {
	n, _ := sandbox.ParseFileSize(c.Audit.MaxSize)
	return n
}

// CapabilitiesPath is the capability flags file under the data directory.
func (c Config) CapabilitiesPath() string { return filepath.Join(c.DataDir, "capabilities.yaml") }

// ConsentPath is the consent database under the data directory.
func (c Config) ConsentPath() string { return filepath.Join(c.DataDir, "consent.db") }

// LogDir is the audit journal directory under the data directory.
func (c Config) LogDir() string { return filepath.Join(c.DataDir, "logs") }

// WriteConfig writes cfg as YAML to path.
func WriteConfig(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return fsutil.WriteFileAtomic(path, data, 0o644)
}

// ExpandHome replaces a leading "~" with the home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// envVarPattern matches ${VAR_NAME} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// interpolateEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func interpolateEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${")
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match // Leave unresolved if not set.
	})
}
