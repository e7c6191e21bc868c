package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/meltforce/posecoach/internal/models"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Tailscale  TailscaleConfig  `yaml:"tailscale"`
	Evaluator  EvaluatorConfig  `yaml:"evaluator"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Log        LogConfig        `yaml:"log"`
	Session    SessionConfig    `yaml:"session"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// EvaluatorConfig tunes the confidence gate and the hip feedback band.
type EvaluatorConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	FeatureSet          string  `yaml:"feature_set"`
	HipLow              float64 `yaml:"hip_low"`
	HipHigh             float64 `yaml:"hip_high"`
}

// ClassifierConfig selects the classifier backend. ModelPath loads a local
// MLP; RemoteURL calls an inference service; with neither set the hip
// threshold rule classifies.
type ClassifierConfig struct {
	ModelPath string `yaml:"model_path"`
	RemoteURL string `yaml:"remote_url"`
	InputDim  int    `yaml:"input_dim"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type SessionConfig struct {
	LogPath string `yaml:"log_path"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Load reads the server config from a YAML file, then applies environment
// variable overrides. Env vars use the prefix POSECOACH_ and
// underscore-separated paths:
//
//	POSECOACH_SERVER_HOST, POSECOACH_SERVER_PORT,
//	POSECOACH_DB_HOST, POSECOACH_DB_PORT, POSECOACH_DB_NAME,
//	POSECOACH_DB_USER, POSECOACH_DB_PASSWORD, POSECOACH_DB_SSLMODE,
//	POSECOACH_AUTH_API_KEY, POSECOACH_TAILSCALE_ENABLED,
//	POSECOACH_EVALUATOR_CONFIDENCE_THRESHOLD, POSECOACH_CLASSIFIER_MODEL_PATH,
//	POSECOACH_CLASSIFIER_REMOTE_URL, POSECOACH_LOG_LEVEL, POSECOACH_LOG_FORMAT,
//	POSECOACH_SESSION_LOG_PATH
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// LoadEvaluator reads a config for the offline binaries, which never touch
// the server, database or auth sections. path may be empty.
func LoadEvaluator(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateEvaluator(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// read parses the YAML at path. An empty path yields env overrides and
// defaults only.
func read(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Evaluator.ConfidenceThreshold == 0 {
		cfg.Evaluator.ConfidenceThreshold = 0.5
	}
	if cfg.Evaluator.FeatureSet == "" {
		cfg.Evaluator.FeatureSet = models.EvaluationFeatures.Name
	}
	if cfg.Evaluator.HipLow == 0 && cfg.Evaluator.HipHigh == 0 {
		cfg.Evaluator.HipLow = 85
		cfg.Evaluator.HipHigh = 95
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Session.LogPath == "" {
		cfg.Session.LogPath = "pose_data.csv"
	}
	if cfg.Tailscale.Hostname == "" {
		cfg.Tailscale.Hostname = "posecoach"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("POSECOACH_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("POSECOACH_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("POSECOACH_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("POSECOACH_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("POSECOACH_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("POSECOACH_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("POSECOACH_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("POSECOACH_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("POSECOACH_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("POSECOACH_TAILSCALE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tailscale.Enabled = b
		}
	}
	if v := os.Getenv("POSECOACH_EVALUATOR_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Evaluator.ConfidenceThreshold = f
		}
	}
	if v := os.Getenv("POSECOACH_CLASSIFIER_MODEL_PATH"); v != "" {
		cfg.Classifier.ModelPath = v
	}
	if v := os.Getenv("POSECOACH_CLASSIFIER_REMOTE_URL"); v != "" {
		cfg.Classifier.RemoteURL = v
	}
	if v := os.Getenv("POSECOACH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("POSECOACH_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("POSECOACH_SESSION_LOG_PATH"); v != "" {
		cfg.Session.LogPath = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	return c.validateEvaluator()
}

func (c *Config) validateEvaluator() error {
	if t := c.Evaluator.ConfidenceThreshold; t < 0 || t > 1 {
		return fmt.Errorf("evaluator.confidence_threshold must be within [0, 1], got %v", t)
	}
	if _, err := models.FeatureSetByName(c.Evaluator.FeatureSet); err != nil {
		return fmt.Errorf("evaluator.feature_set: %w", err)
	}
	if c.Evaluator.HipLow >= c.Evaluator.HipHigh {
		return fmt.Errorf("evaluator.hip_low (%v) must be below hip_high (%v)", c.Evaluator.HipLow, c.Evaluator.HipHigh)
	}
	if c.Classifier.ModelPath != "" && c.Classifier.RemoteURL != "" {
		return fmt.Errorf("classifier.model_path and classifier.remote_url are mutually exclusive")
	}
	if c.Classifier.InputDim < 0 {
		return fmt.Errorf("classifier.input_dim must not be negative")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// FeatureSet resolves the configured feature set, falling back to the
// evaluation set for unknown names.
func (c *Config) FeatureSet() models.FeatureSet {
	fs, err := models.FeatureSetByName(c.Evaluator.FeatureSet)
	if err != nil {
		return models.EvaluationFeatures
	}
	return fs
}
