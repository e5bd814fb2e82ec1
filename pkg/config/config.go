// Package config loads kernel configuration from KERNEL_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Artifact backends.
const (
	ArtifactBackendMemory = "memory"
	ArtifactBackendFS     = "fs"
	ArtifactBackendS3     = "s3"
	ArtifactBackendGCS    = "gcs"
)

// State store backends.
const (
	StateBackendFile     = "file"
	StateBackendPostgres = "postgres"
	StateBackendSQLite   = "sqlite"
	StateBackendRedis    = "redis"
)

// Config holds kernel configuration.
type Config struct {
	DataDir  string
	LogLevel string
	// Mode is reported in the control snapshot ("autonomous", "supervised", ...).
	Mode string

	Artifacts ArtifactConfig
	State     StateConfig
	Policy    PolicyConfig
	Telemetry TelemetryConfig
}

// ArtifactConfig selects and configures the artifact backend.
type ArtifactConfig struct {
	Backend  string
	Dir      string
	Compress bool

	S3Bucket   string
	S3Region   string
	S3Endpoint string
	S3Prefix   string

	GCSBucket string
	GCSPrefix string
}

// StateConfig selects and configures the state store.
type StateConfig struct {
	Backend string
	Dir     string
	DSN     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// Prefix namespaces redis keys.
	Prefix string
}

// PolicyConfig points at the policy profile documents.
type PolicyConfig struct {
	Path    string
	Profile string
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	ServiceName string
}

// Load reads configuration from environment variables with sensible
// defaults and validates it.
func Load() (*Config, error) {
	dataDir := envStr("KERNEL_DATA_DIR", "data")

	cfg := &Config{
		DataDir:  dataDir,
		LogLevel: strings.ToUpper(envStr("KERNEL_LOG_LEVEL", "INFO")),
		Mode:     envStr("KERNEL_MODE", "autonomous"),
		Artifacts: ArtifactConfig{
			Backend:    envStr("KERNEL_ARTIFACT_BACKEND", ArtifactBackendFS),
			Dir:        envStr("KERNEL_ARTIFACT_DIR", filepath.Join(dataDir, "artifacts")),
			Compress:   envBool("KERNEL_ARTIFACT_COMPRESS", false),
			S3Bucket:   envStr("KERNEL_ARTIFACT_S3_BUCKET", ""),
			S3Region:   envStr("KERNEL_ARTIFACT_S3_REGION", envStr("AWS_REGION", "us-east-1")),
			S3Endpoint: envStr("KERNEL_ARTIFACT_S3_ENDPOINT", ""),
			S3Prefix:   envStr("KERNEL_ARTIFACT_S3_PREFIX", ""),
			GCSBucket:  envStr("KERNEL_ARTIFACT_GCS_BUCKET", ""),
			GCSPrefix:  envStr("KERNEL_ARTIFACT_GCS_PREFIX", ""),
		},
		State: StateConfig{
			Backend:       envStr("KERNEL_STATE_BACKEND", StateBackendFile),
			Dir:           envStr("KERNEL_STATE_DIR", filepath.Join(dataDir, "state")),
			DSN:           envStr("KERNEL_STATE_DSN", ""),
			RedisAddr:     envStr("KERNEL_REDIS_ADDR", "localhost:6379"),
			RedisPassword: envStr("KERNEL_REDIS_PASSWORD", ""),
			RedisDB:       envInt("KERNEL_REDIS_DB", 0),
			Prefix:        envStr("KERNEL_REDIS_PREFIX", "agentkernel:"),
		},
		Policy: PolicyConfig{
			Path:    envStr("KERNEL_POLICY_PATH", "policies"),
			Profile: envStr("KERNEL_POLICY_PROFILE", "default"),
		},
		Telemetry: TelemetryConfig{
			Enabled:     envBool("KERNEL_OTEL_ENABLED", false),
			Endpoint:    envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    envBool("KERNEL_OTEL_INSECURE", true),
			ServiceName: envStr("OTEL_SERVICE_NAME", "agentkernel"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// OverrideDataDir moves the data dir and every directory still at its
// default location beneath it.
func (c *Config) OverrideDataDir(dir string) {
	old := c.DataDir
	c.DataDir = dir
	if c.Artifacts.Dir == filepath.Join(old, "artifacts") {
		c.Artifacts.Dir = filepath.Join(dir, "artifacts")
	}
	if c.State.Dir == filepath.Join(old, "state") {
		c.State.Dir = filepath.Join(dir, "state")
	}
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, errors.New("config: KERNEL_DATA_DIR is required"))
	}
	switch c.LogLevel {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		errs = append(errs, fmt.Errorf("config: KERNEL_LOG_LEVEL %q is not one of DEBUG, INFO, WARN, ERROR", c.LogLevel))
	}

	switch c.Artifacts.Backend {
	case ArtifactBackendMemory:
	case ArtifactBackendFS:
		if c.Artifacts.Dir == "" {
			errs = append(errs, errors.New("config: KERNEL_ARTIFACT_DIR is required for fs artifacts"))
		}
	case ArtifactBackendS3:
		if c.Artifacts.S3Bucket == "" {
			errs = append(errs, errors.New("config: KERNEL_ARTIFACT_S3_BUCKET is required for s3 artifacts"))
		}
	case ArtifactBackendGCS:
		if c.Artifacts.GCSBucket == "" {
			errs = append(errs, errors.New("config: KERNEL_ARTIFACT_GCS_BUCKET is required for gcs artifacts"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unsupported artifact backend %q", c.Artifacts.Backend))
	}

	switch c.State.Backend {
	case StateBackendFile:
		if c.State.Dir == "" {
			errs = append(errs, errors.New("config: KERNEL_STATE_DIR is required for file state"))
		}
	case StateBackendPostgres, StateBackendSQLite:
		if c.State.DSN == "" {
			errs = append(errs, fmt.Errorf("config: KERNEL_STATE_DSN is required for %s state", c.State.Backend))
		}
	case StateBackendRedis:
		if c.State.RedisAddr == "" {
			errs = append(errs, errors.New("config: KERNEL_REDIS_ADDR is required for redis state"))
		}
		if c.State.RedisDB < 0 {
			errs = append(errs, errors.New("config: KERNEL_REDIS_DB must not be negative"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unsupported state backend %q", c.State.Backend))
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		errs = append(errs, errors.New("config: OTEL_EXPORTER_OTLP_ENDPOINT is required when telemetry is enabled"))
	}

	return errors.Join(errs...)
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
