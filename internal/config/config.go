package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"chat-widget/internal/session"
)

const appName = "chat-widget"

// Store backends for the persisted session id.
const (
	StoreMemory   = "memory"
	StorePebble   = "pebble"
	StoreDynamoDB = "dynamodb"
)

const (
	DefaultEndpoint = "http://localhost:8000"
	DefaultTimeout  = 60 * time.Second
)

type Config struct {
	Endpoint      string        `yaml:"endpoint" env:"CHATWIDGET_ENDPOINT"`
	EndpointParam string        `yaml:"endpoint_param" env:"CHATWIDGET_ENDPOINT_PARAM"`
	SessionMode   string        `yaml:"session_mode" env:"CHATWIDGET_SESSION_MODE"`
	Store         string        `yaml:"store" env:"CHATWIDGET_STORE"`
	Profile       string        `yaml:"profile" env:"CHATWIDGET_PROFILE"`
	DataDir       string        `yaml:"data_dir" env:"CHATWIDGET_DATA_DIR"`
	DynamoTable   string        `yaml:"dynamo_table" env:"CHATWIDGET_DYNAMO_TABLE"`
	Timeout       time.Duration `yaml:"timeout" env:"CHATWIDGET_TIMEOUT"`
	ShowLoading   bool          `yaml:"show_loading" env:"CHATWIDGET_SHOW_LOADING"`
	LogLevel      string        `yaml:"log_level" env:"CHATWIDGET_LOG_LEVEL"`
	LogFile       string        `yaml:"log_file" env:"CHATWIDGET_LOG_FILE"`
	Transcript    string        `yaml:"transcript" env:"CHATWIDGET_TRANSCRIPT"`
}

func Default() *Config {
	return &Config{
		Endpoint:    DefaultEndpoint,
		SessionMode: string(session.ModePersisted),
		Store:       StorePebble,
		Profile:     "default",
		Timeout:     DefaultTimeout,
		ShowLoading: true,
		LogLevel:    "info",
	}
}

// DefaultPath is $XDG_CONFIG_HOME/chat-widget/config.yaml, or the platform
// equivalent.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, appName, "config.yaml")
}

// LoadOptions controls where Load reads from. The zero value reads the
// default config path, ./.env and the process environment.
type LoadOptions struct {
	// Path is the YAML file. When set explicitly it must exist.
	Path string
	// DotEnvFiles default to ".env". Missing files are skipped.
	DotEnvFiles []string
	// Environ replaces os.Environ when non-nil.
	Environ []string
}

// Load builds the configuration from defaults, the YAML file, .env files and
// the environment, in that order of increasing precedence.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	path, required := opts.Path, true
	if path == "" {
		path, required = DefaultPath(), false
	}
	if path != "" {
		if err := cfg.readFile(path, required); err != nil {
			return nil, err
		}
	}

	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}
	vars := dotEnv(opts.DotEnvFiles)
	for k, v := range env.ToMap(environ) {
		vars[k] = v
	}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	return cfg, nil
}

func (c *Config) readFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// dotEnv reads .env files without touching the process environment.
func dotEnv(files []string) map[string]string {
	if len(files) == 0 {
		files = []string{".env"}
	}
	vars := map[string]string{}
	for _, f := range files {
		m, err := godotenv.Read(f)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				log.Warn().Err(err).Str("file", f).Msg("failed to load .env file, continuing without it")
			}
			continue
		}
		for k, v := range m {
			vars[k] = v
		}
	}
	return vars
}

// Overrides carries values set on the command line. Nil fields are unset.
type Overrides struct {
	Endpoint    *string
	SessionMode *string
	Store       *string
	Profile     *string
	ShowLoading *bool
	Transcript  *string
	LogLevel    *string
}

func (c *Config) Apply(o Overrides) {
	setString(&c.Endpoint, o.Endpoint)
	setString(&c.SessionMode, o.SessionMode)
	setString(&c.Store, o.Store)
	setString(&c.Profile, o.Profile)
	setString(&c.Transcript, o.Transcript)
	setString(&c.LogLevel, o.LogLevel)
	if o.ShowLoading != nil {
		c.ShowLoading = *o.ShowLoading
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func (c *Config) Validate() error {
	if _, err := session.ParseMode(c.SessionMode); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(c.Store)) {
	case StoreMemory, StorePebble:
	case StoreDynamoDB:
		if strings.TrimSpace(c.DynamoTable) == "" {
			return errors.New("config: dynamo_table is required for the dynamodb store")
		}
	default:
		return fmt.Errorf("config: unknown store %q", c.Store)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("config: timeout must not be negative, got %s", c.Timeout)
	}
	if strings.TrimSpace(c.Endpoint) == "" && strings.TrimSpace(c.EndpointParam) == "" {
		return errors.New("config: endpoint is required")
	}
	return nil
}

// Mode returns the parsed session mode. Call Validate first.
func (c *Config) Mode() session.Mode {
	m, err := session.ParseMode(c.SessionMode)
	if err != nil {
		return session.ModePersisted
	}
	return m
}

// StoreKind returns the normalized store name.
func (c *Config) StoreKind() string {
	return strings.ToLower(strings.TrimSpace(c.Store))
}

// PebbleDir is where the pebble store lives: data_dir when set, otherwise
// $XDG_DATA_HOME/chat-widget/sessions (~/.local/share when unset).
func (c *Config) PebbleDir() (string, error) {
	if c.DataDir != "" {
		return filepath.Join(expandHome(c.DataDir), "sessions"), nil
	}
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("config: resolve data dir: %w", err)
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, appName, "sessions"), nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

// EndpointSource reads the endpoint from a parameter store.
type EndpointSource interface {
	GetEndpoint(ctx context.Context, name string) (string, error)
}

// NeedsEndpointLookup reports whether the endpoint comes from a parameter.
func (c *Config) NeedsEndpointLookup() bool {
	return strings.TrimSpace(c.EndpointParam) != ""
}

// ResolveEndpoint replaces Endpoint with the value of EndpointParam when one
// is configured.
func (c *Config) ResolveEndpoint(ctx context.Context, src EndpointSource) error {
	if !c.NeedsEndpointLookup() {
		return nil
	}
	if src == nil {
		return errors.New("config: endpoint source must not be nil")
	}
	v, err := src.GetEndpoint(ctx, c.EndpointParam)
	if err != nil {
		return fmt.Errorf("config: resolve endpoint: %w", err)
	}
	c.Endpoint = v
	return nil
}
