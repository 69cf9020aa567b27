package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix namespaces environment overrides. Nested keys are separated by a
// double underscore: ARCA_PATHS__STATE_FILE.
const EnvPrefix = "ARCA_"

type Config struct {
	LogLevel string        `koanf:"log_level"`
	Paths    PathsConfig   `koanf:"paths"`
	State    StateConfig   `koanf:"state"`
	PDF      PDFConfig     `koanf:"pdf"`
	Server   ServerConfig  `koanf:"server"`
	Metrics  MetricsConfig `koanf:"metrics"`
}

// PathsConfig locates every artifact the pipelines read or write. Relative
// paths resolve against Root.
type PathsConfig struct {
	Root             string `koanf:"root"`
	ResearcherOutput string `koanf:"researcher_output"`
	GeneratorReport  string `koanf:"generator_report"`
	AuditorOutput    string `koanf:"auditor_output"`
	Preferences      string `koanf:"preferences"`
	StateFile        string `koanf:"state_file"`
	NewslettersDir   string `koanf:"newsletters_dir"`
	LogsDir          string `koanf:"logs_dir"`
	HTMLTemplate     string `koanf:"html_template"`
	TextTemplate     string `koanf:"text_template"`
}

type StateConfig struct {
	// Backend is one of file, redis, memory.
	Backend  string `koanf:"backend"`
	RedisURL string `koanf:"redis_url"`
	RedisKey string `koanf:"redis_key"`
}

type PDFConfig struct {
	Enabled      bool          `koanf:"enabled"`
	ChromiumPath string        `koanf:"chromium_path"`
	Timeout      time.Duration `koanf:"timeout"`
	Output       string        `koanf:"output"`
}

type ServerConfig struct {
	Addr         string        `koanf:"addr"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	// APIKeyHash is a bcrypt or argon2id hash from `arca keygen`. Empty
	// leaves /api open.
	APIKeyHash string `koanf:"api_key_hash"`
}

type MetricsConfig struct {
	Textfile string `koanf:"textfile"`
}

const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

func Defaults() Config {
	return Config{
		LogLevel: "info",
		Paths: PathsConfig{
			Root:             ".",
			ResearcherOutput: "outputs/researcher_output_chroma.json",
			GeneratorReport:  "GeneratorAgent/outputs/final_report.json",
			AuditorOutput:    "AuditorAgent/outputs/auditor_output.json",
			Preferences:      "NotificationsAgent/user_preferences.json",
			StateFile:        "NotificationsAgent/outputs/last_state.json",
			NewslettersDir:   "NotificationsAgent/outputs/newsletters",
			LogsDir:          "NotificationsAgent/outputs/logs",
			HTMLTemplate:     "NotificationsAgent/templates/email_template.html",
			TextTemplate:     "NotificationsAgent/templates/email_template.txt",
		},
		State: StateConfig{
			Backend:  BackendFile,
			RedisURL: "redis://localhost:6379/0",
			RedisKey: "arca:tracker:state",
		},
		PDF: PDFConfig{
			Enabled: false,
			Timeout: 15 * time.Second,
			Output:  "GeneratorAgent/outputs/final_report.pdf",
		},
		Server: ServerConfig{
			Addr:         "127.0.0.1:8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Load layers defaults, an optional config file and ARCA_ environment
// variables, in that order. An empty path skips the file; a named file that
// does not exist is an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}

func (c Config) Validate() error {
	switch c.State.Backend {
	case BackendFile, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("state.backend must be one of file, redis, memory; got %q", c.State.Backend)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	return nil
}

// Resolve joins a configured path onto Root unless it is already absolute.
func (p PathsConfig) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || p.Root == "" {
		return path
	}
	return filepath.Join(p.Root, path)
}

// fileExists reports whether path names an existing regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) || err != nil {
		return false
	}
	return !info.IsDir()
}
