// Package config loads pipeline settings from .env, an optional YAML file
// and the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/tendant/detect-archive-pipeline/internal/dedupe"
)

// Remote kinds
const (
	RemoteLocal = "local"
	RemoteSMB   = "smb"
	RemoteS3    = "s3"
)

// Dedupe backends
const (
	DedupeMemory   = "memory"
	DedupePostgres = "postgres"
	DedupeRedis    = "redis"
)

// Config is the full pipeline configuration
type Config struct {
	Remote   RemoteConfig   `yaml:"remote"`
	Detector DetectorConfig `yaml:"detector"`
	Stores   StoresConfig   `yaml:"stores"`
	Dedupe   DedupeConfig   `yaml:"dedupe"`
	DBOS     DBOSConfig     `yaml:"dbos"`

	PollInterval time.Duration `yaml:"poll_interval"`
	Workers      int           `yaml:"workers"`

	MetricsAddr      string `yaml:"metrics_addr"`       // empty disables the metrics server
	ContentMirrorDir string `yaml:"content_mirror_dir"` // empty disables the mirror
	MarkerAddr       string `yaml:"marker_addr"`
	LogLevel         string `yaml:"log_level"`

	// malformed controller settings, reported by Validate
	envErrs []error
}

// RemoteConfig selects and configures the remote share
type RemoteConfig struct {
	Kind string    `yaml:"kind"` // local, smb, s3
	Dir  string    `yaml:"dir"`  // local only
	SMB  SMBConfig `yaml:"smb"`
	S3   S3Config  `yaml:"s3"`
}

// SMBConfig holds SMB share settings
type SMBConfig struct {
	Addr     string `yaml:"addr"`
	Share    string `yaml:"share"`
	Dir      string `yaml:"dir"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Domain   string `yaml:"domain"`
}

// S3Config holds S3 bucket settings
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// DetectorConfig describes the external classifier process
type DetectorConfig struct {
	Command string `yaml:"command"` // split on whitespace
	Weights string `yaml:"weights"`
	Root    string `yaml:"root"` // staging root, e.g. runs/detect
}

// StoresConfig names the archival directories
type StoresConfig struct {
	Positive string `yaml:"positive"`
	Negative string `yaml:"negative"`
}

// DedupeConfig selects the dedup backend and recording policy
type DedupeConfig struct {
	Backend       string `yaml:"backend"`
	DatabaseURL   string `yaml:"database_url"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisKey      string `yaml:"redis_key"`
	Policy        string `yaml:"policy"`
}

// DBOSConfig enables durable dispatch when DatabaseURL is set
type DBOSConfig struct {
	DatabaseURL string `yaml:"database_url"`
	QueueName   string `yaml:"queue_name"`
}

// Load reads .env (if present), the YAML file named by PIPELINE_CONFIG (if
// set) and environment overrides, then applies defaults and validates.
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadMarker loads the same sources as Load but only validates what the
// marker server reads, so controller settings never block it.
func LoadMarker() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateMarker(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load() (*Config, error) {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if path := os.Getenv("PIPELINE_CONFIG"); path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	cfg.applyEnv()
	cfg.WithDefaults()
	return cfg, nil
}

// LoadFile parses a YAML config file. ${VAR} references are expanded from
// the environment before parsing.
func LoadFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// WithDefaults fills in default values for optional fields
func (c *Config) WithDefaults() {
	if c.Remote.Kind == "" {
		c.Remote.Kind = RemoteLocal
	}
	if c.Remote.Dir == "" {
		c.Remote.Dir = "remote"
	}
	if c.Detector.Command == "" {
		c.Detector.Command = "python yolov5/detect.py"
	}
	if c.Detector.Weights == "" {
		c.Detector.Weights = "pothole.pt"
	}
	if c.Detector.Root == "" {
		c.Detector.Root = "runs/detect"
	}
	if c.Stores.Positive == "" {
		c.Stores.Positive = "db/real"
	}
	if c.Stores.Negative == "" {
		c.Stores.Negative = "db/fake"
	}
	if c.Dedupe.Backend == "" {
		c.Dedupe.Backend = DedupeMemory
	}
	if c.Dedupe.Policy == "" {
		c.Dedupe.Policy = string(dedupe.RecordOnSubmit)
	}
	if c.DBOS.QueueName == "" {
		c.DBOS.QueueName = "archive"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MarkerAddr == "" {
		c.MarkerAddr = ":5001"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate reports missing or inconsistent settings
func (c *Config) Validate() error {
	errs := append([]error(nil), c.envErrs...)

	switch c.Remote.Kind {
	case RemoteLocal:
	case RemoteSMB:
		if c.Remote.SMB.Addr == "" || c.Remote.SMB.Share == "" {
			errs = append(errs, errors.New("SMB_ADDR and SMB_SHARE are required for the smb remote"))
		}
	case RemoteS3:
		if c.Remote.S3.Endpoint == "" || c.Remote.S3.Bucket == "" {
			errs = append(errs, errors.New("S3_ENDPOINT and S3_BUCKET are required for the s3 remote"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown REMOTE_KIND %q", c.Remote.Kind))
	}

	switch c.Dedupe.Backend {
	case DedupeMemory:
	case DedupePostgres:
		if c.Dedupe.DatabaseURL == "" {
			errs = append(errs, errors.New("DEDUPE_DATABASE_URL is required for the postgres dedupe backend"))
		}
	case DedupeRedis:
		if c.Dedupe.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis dedupe backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DEDUPE_BACKEND %q", c.Dedupe.Backend))
	}

	if _, err := dedupe.ParsePolicy(c.Dedupe.Policy); err != nil {
		errs = append(errs, err)
	}
	if c.Stores.Positive == c.Stores.Negative {
		errs = append(errs, errors.New("POSITIVE_STORE and NEGATIVE_STORE must differ"))
	}

	return errors.Join(errs...)
}

// ValidateMarker checks the settings the marker server uses
func (c *Config) ValidateMarker() error {
	var errs []error
	if c.Stores.Positive == "" {
		errs = append(errs, errors.New("POSITIVE_STORE is required"))
	}
	if c.MarkerAddr == "" {
		errs = append(errs, errors.New("MARKER_HTTP_ADDR is required"))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL: %w", err))
	}
	return errors.Join(errs...)
}

// DetectorCommand splits the detector command line
func (c *Config) DetectorCommand() []string {
	return strings.Fields(c.Detector.Command)
}

// DurableDispatch reports whether jobs run as DBOS workflows
func (c *Config) DurableDispatch() bool {
	return c.DBOS.DatabaseURL != ""
}

func (c *Config) applyEnv() {
	setString(&c.Remote.Kind, "REMOTE_KIND")
	setString(&c.Remote.Dir, "REMOTE_DIR")

	setString(&c.Remote.SMB.Addr, "SMB_ADDR")
	setString(&c.Remote.SMB.Share, "SMB_SHARE")
	setString(&c.Remote.SMB.Dir, "SMB_DIR")
	setString(&c.Remote.SMB.User, "SMB_USER")
	setString(&c.Remote.SMB.Password, "SMB_PASSWORD")
	setString(&c.Remote.SMB.Domain, "SMB_DOMAIN")

	setString(&c.Remote.S3.Endpoint, "S3_ENDPOINT")
	setString(&c.Remote.S3.AccessKey, "S3_ACCESS_KEY")
	setString(&c.Remote.S3.SecretKey, "S3_SECRET_KEY")
	setString(&c.Remote.S3.Bucket, "S3_BUCKET")
	setString(&c.Remote.S3.Prefix, "S3_PREFIX")
	setString(&c.Remote.S3.Region, "S3_REGION")

	setString(&c.Detector.Command, "DETECTOR_COMMAND")
	setString(&c.Detector.Weights, "DETECTOR_WEIGHTS")
	setString(&c.Detector.Root, "DETECT_ROOT")
	setString(&c.Stores.Positive, "POSITIVE_STORE")
	setString(&c.Stores.Negative, "NEGATIVE_STORE")

	setString(&c.Dedupe.Backend, "DEDUPE_BACKEND")
	setString(&c.Dedupe.DatabaseURL, "DEDUPE_DATABASE_URL")
	setString(&c.Dedupe.RedisAddr, "REDIS_ADDR")
	setString(&c.Dedupe.RedisPassword, "REDIS_PASSWORD")
	setString(&c.Dedupe.RedisKey, "REDIS_KEY")
	setString(&c.Dedupe.Policy, "DEDUPE_POLICY")

	setString(&c.DBOS.DatabaseURL, "DBOS_SYSTEM_DATABASE_URL")
	setString(&c.DBOS.QueueName, "DBOS_QUEUE_NAME")

	setString(&c.MetricsAddr, "METRICS_ADDR")
	setString(&c.ContentMirrorDir, "CONTENT_MIRROR_DIR")
	setString(&c.MarkerAddr, "MARKER_HTTP_ADDR")
	setString(&c.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("S3_USE_SSL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.envErrs = append(c.envErrs, fmt.Errorf("invalid S3_USE_SSL: %w", err))
		} else {
			c.Remote.S3.UseSSL = b
		}
	}
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			c.envErrs = append(c.envErrs, fmt.Errorf("invalid POLL_INTERVAL: %w", err))
		} else {
			c.PollInterval = d
		}
	}
	if v := os.Getenv("WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.envErrs = append(c.envErrs, fmt.Errorf("invalid WORKERS: %w", err))
		} else {
			c.Workers = n
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
