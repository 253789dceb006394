// internal/config/config.go
//
// This package handles configuration and the .negotiator directory structure.
// Every project that runs negotiations gets a .negotiator/ folder holding the
// config file and the run logs.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// NegotiatorDir is the name of the directory we create in each project
	NegotiatorDir = ".negotiator"

	ProtocolRich   = "rich"
	ProtocolLegacy = "legacy"

	FailurePolicyFailRun = "fail_run"
	FailurePolicyDegrade = "degrade"

	ProviderAuto      = "auto"
	ProviderSimulated = "simulated"
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"

	// GroqBaseURL is the OpenAI-compatible endpoint used when only GROQ_API_KEY is set.
	GroqBaseURL = "https://api.groq.com/openai/v1"

	defaultResponderTimeout = 90 * time.Second
	defaultMaxParallel      = 8

	DefaultServerHost   = "127.0.0.1"
	DefaultServerPort   = 3000
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 15 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

var defaultModels = map[string]string{
	ProviderGemini: "gemini-2.0-flash",
	ProviderOpenAI: "gpt-4o-mini",
}

var defaultKeyEnvs = map[string]string{
	ProviderGemini: "GEMINI_API_KEY",
	ProviderOpenAI: "OPENAI_API_KEY",
}

const defaultProjectConfigYAML = `# negotiator project configuration
version: 1

# Optional catalog override. Leave empty to use the built-in footwear catalog.
# catalog: ./catalog.yaml

# rich: bill of materials in the RFQ plus a cross-supplier reflection memo
# legacy: plain RFQ and a fixed counter-offer template
protocol: rich

# fail_run: any supplier responder failure fails the run
# degrade: drop the failing supplier and keep negotiating with the rest
failure_policy: fail_run

max_parallel: 8

# Ask an independent auditor persona to review the final decision.
audit: false

responder:
  # auto picks gemini, openai or groq from the API keys in the environment
  # and falls back to the offline simulator.
  provider: auto
  timeout: 90s

server:
  host: 127.0.0.1
  port: 3000
`

// ResponderConfig selects and tunes the conversational back-end.
type ResponderConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model,omitempty"`
	BaseURL     string        `yaml:"base_url,omitempty"`
	APIKeyEnv   string        `yaml:"api_key_env,omitempty"`
	Temperature *float64      `yaml:"temperature,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

// ServerConfig holds the HTTP listener preferences. A nil Enabled means off;
// NewConfig turns it on unless the file or environment says otherwise.
type ServerConfig struct {
	Enabled      *bool         `yaml:"enabled,omitempty"`
	Host         string        `yaml:"host,omitempty"`
	Port         int           `yaml:"port,omitempty"`
	ReadTimeout  time.Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty"`
	IdleTimeout  time.Duration `yaml:"idle_timeout,omitempty"`
}

// On reports whether the listener should start.
func (s ServerConfig) On() bool {
	return s.Enabled != nil && *s.Enabled
}

// Address returns the bind address in host:port form.
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL returns the HTTP base URL for the listener.
func (s ServerConfig) URL() string {
	return "http://" + s.Address()
}

// ProjectConfig models .negotiator/config.yaml.
type ProjectConfig struct {
	Version       int             `yaml:"version"`
	Catalog       string          `yaml:"catalog,omitempty"`
	Protocol      string          `yaml:"protocol"`
	FailurePolicy string          `yaml:"failure_policy"`
	MaxParallel   int             `yaml:"max_parallel,omitempty"`
	Audit         bool            `yaml:"audit,omitempty"`
	Responder     ResponderConfig `yaml:"responder"`
	Server        ServerConfig    `yaml:"server"`
}

// Config holds the runtime configuration for the negotiator.
type Config struct {
	// ProjectDir is the directory the CLI was started from
	ProjectDir string

	// NegotiatorProjectDir is ProjectDir/.negotiator
	NegotiatorProjectDir string

	Project ProjectConfig
}

// InitDir creates the .negotiator directory structure in the given project
// directory and writes a default config.yaml when none exists.
//
// Structure created:
// .negotiator/
// ├── config.yaml
// └── logs/         <- run logs
func InitDir(projectDir string) error {
	dir := filepath.Join(projectDir, NegotiatorDir)
	if err := os.MkdirAll(filepath.Join(dir, "logs"), 0o755); err != nil {
		return err
	}
	return ensureProjectConfig(filepath.Join(dir, "config.yaml"))
}

// NewConfig creates a Config populated from .negotiator/config.yaml (when
// present) and environment overrides.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:           projectDir,
		NegotiatorProjectDir: filepath.Join(projectDir, NegotiatorDir),
		Project:              defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	cfg.Project.applyDefaults()
	cfg.Project.applyEnvOverrides()
	cfg.Project.normalize(projectDir)
	if err := cfg.Project.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.NegotiatorProjectDir, "logs")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.NegotiatorProjectDir, "config.yaml")
}

// CatalogPath returns the configured catalog file, or "" for the built-in one.
func (c *Config) CatalogPath() string {
	return c.Project.Catalog
}

// RichProtocol reports whether the reflection-based protocol is enabled.
func (c *Config) RichProtocol() bool {
	return c.Project.Protocol == ProtocolRich
}

// DegradeOnFailure reports whether supplier failures are tolerated.
func (c *Config) DegradeOnFailure() bool {
	return c.Project.FailurePolicy == FailurePolicyDegrade
}

// ResolvedResponder returns the responder settings with "auto" resolved
// against the API keys present in the environment.
func (c *Config) ResolvedResponder() ResponderConfig {
	r := c.Project.Responder
	if r.Provider == ProviderAuto {
		switch {
		case os.Getenv(defaultKeyEnvs[ProviderGemini]) != "":
			r.Provider = ProviderGemini
		case os.Getenv(defaultKeyEnvs[ProviderOpenAI]) != "":
			r.Provider = ProviderOpenAI
		case os.Getenv("GROQ_API_KEY") != "":
			r.Provider = ProviderOpenAI
			r.APIKeyEnv = "GROQ_API_KEY"
			if r.BaseURL == "" {
				r.BaseURL = GroqBaseURL
			}
			if r.Model == "" {
				r.Model = "llama-3.3-70b-versatile"
			}
		default:
			r.Provider = ProviderSimulated
		}
	}
	if r.Model == "" {
		r.Model = defaultModels[r.Provider]
	}
	if r.APIKeyEnv == "" {
		r.APIKeyEnv = defaultKeyEnvs[r.Provider]
	}
	return r
}

// APIKey reads the API key for the resolved responder from the environment.
func (r ResponderConfig) APIKey() string {
	if r.APIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(r.APIKeyEnv))
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	parsed := defaultProjectConfig()
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version:       1,
		Protocol:      ProtocolRich,
		FailurePolicy: FailurePolicyFailRun,
		MaxParallel:   defaultMaxParallel,
		Responder: ResponderConfig{
			Provider: ProviderAuto,
			Timeout:  defaultResponderTimeout,
		},
		Server: ServerConfig{
			Host: DefaultServerHost,
			Port: DefaultServerPort,
		},
	}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.MaxParallel == 0 {
		pc.MaxParallel = defaultMaxParallel
	}
	if pc.Responder.Timeout == 0 {
		pc.Responder.Timeout = defaultResponderTimeout
	}
	if pc.Server.Enabled == nil {
		enabled := true
		pc.Server.Enabled = &enabled
	}
	if pc.Server.Host == "" {
		pc.Server.Host = DefaultServerHost
	}
	if pc.Server.Port == 0 {
		pc.Server.Port = DefaultServerPort
	}
	if pc.Server.ReadTimeout <= 0 {
		pc.Server.ReadTimeout = defaultReadTimeout
	}
	if pc.Server.WriteTimeout <= 0 {
		pc.Server.WriteTimeout = defaultWriteTimeout
	}
	if pc.Server.IdleTimeout <= 0 {
		pc.Server.IdleTimeout = defaultIdleTimeout
	}
}

func (pc *ProjectConfig) applyEnvOverrides() {
	if v := strings.TrimSpace(os.Getenv("NEGOTIATOR_PROVIDER")); v != "" {
		pc.Responder.Provider = v
	}
	if v := strings.TrimSpace(os.Getenv("NEGOTIATOR_MODEL")); v != "" {
		pc.Responder.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("NEGOTIATOR_PROTOCOL")); v != "" {
		pc.Protocol = v
	}
	if v := strings.TrimSpace(os.Getenv("NEGOTIATOR_FAILURE_POLICY")); v != "" {
		pc.FailurePolicy = v
	}
	if v := strings.TrimSpace(os.Getenv("NEGOTIATOR_AUDIT")); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			pc.Audit = enabled
		}
	}
	if v := strings.TrimSpace(os.Getenv("NEGOTIATOR_HTTP_ENABLED")); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			pc.Server.Enabled = &enabled
		}
	}
	if v := strings.TrimSpace(os.Getenv("NEGOTIATOR_HTTP_HOST")); v != "" {
		pc.Server.Host = v
	}
	port := strings.TrimSpace(os.Getenv("NEGOTIATOR_HTTP_PORT"))
	if port == "" {
		port = strings.TrimSpace(os.Getenv("PORT"))
	}
	if port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			pc.Server.Port = parsed
		}
	}
}

func (pc *ProjectConfig) normalize(base string) {
	pc.Catalog = resolvePath(base, pc.Catalog)
	pc.Protocol = normalizeKeyword(pc.Protocol)
	if pc.Protocol == "" {
		pc.Protocol = ProtocolRich
	}
	pc.FailurePolicy = normalizeKeyword(pc.FailurePolicy)
	if pc.FailurePolicy == "" {
		pc.FailurePolicy = FailurePolicyFailRun
	}
	pc.Responder.Provider = normalizeKeyword(pc.Responder.Provider)
	if pc.Responder.Provider == "" {
		pc.Responder.Provider = ProviderAuto
	}
	pc.Responder.Model = strings.TrimSpace(pc.Responder.Model)
	pc.Responder.BaseURL = strings.TrimRight(strings.TrimSpace(pc.Responder.BaseURL), "/")
	pc.Responder.APIKeyEnv = strings.TrimSpace(pc.Responder.APIKeyEnv)
	pc.Server.Host = strings.TrimSpace(pc.Server.Host)
	if pc.Server.Host == "" {
		pc.Server.Host = DefaultServerHost
	}
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	switch pc.Protocol {
	case ProtocolRich, ProtocolLegacy:
	default:
		return fmt.Errorf("protocol must be 'rich' or 'legacy'")
	}
	switch pc.FailurePolicy {
	case FailurePolicyFailRun, FailurePolicyDegrade:
	default:
		return fmt.Errorf("failure_policy must be 'fail_run' or 'degrade'")
	}
	if pc.MaxParallel < 0 {
		return fmt.Errorf("max_parallel must not be negative")
	}
	switch pc.Responder.Provider {
	case ProviderAuto, ProviderSimulated, ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("responder.provider must be one of auto, simulated, gemini, openai")
	}
	if pc.Responder.Timeout < 0 {
		return fmt.Errorf("responder.timeout must not be negative")
	}
	if t := pc.Responder.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("responder.temperature must be within 0-2")
	}
	if pc.Server.Port < 0 || pc.Server.Port > 65535 {
		return fmt.Errorf("server.port must be within 0-65535")
	}
	return nil
}

func normalizeKeyword(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0644)
}
