package streamd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"streamd/pkg/rtmp"
)

type Config struct {
	RTMP    RTMPConfig    `yaml:"rtmp"`
	Relay   RelayConfig   `yaml:"relay"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type RTMPConfig struct {
	Port            int           `yaml:"port"`
	ChunkSize       int           `yaml:"chunk_size"`
	GopCache        bool          `yaml:"gop_cache"`
	GopCacheSize    int           `yaml:"gop_cache_size"`
	QueueSize       int           `yaml:"queue_size"`
	Ping            time.Duration `yaml:"ping"`
	PingTimeout     time.Duration `yaml:"ping_timeout"`
	StrictHandshake bool          `yaml:"strict_handshake"`
}

type RelayConfig struct {
	FFmpeg string      `yaml:"ffmpeg"`
	Tasks  []RelayTask `yaml:"tasks"`
}

type RelayTask struct {
	App  string `yaml:"app"`
	Mode string `yaml:"mode"`
	Edge string `yaml:"edge"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type MetricsConfig struct {
	Port int `yaml:"port"` // 0이면 비활성화
}

// 환경 변수 이름
const (
	EnvConfigPath  = "STREAMD_CONFIG"
	EnvRTMPPort    = "STREAMD_RTMP_PORT"
	EnvLogLevel    = "STREAMD_LOG_LEVEL"
	EnvMetricsPort = "STREAMD_METRICS_PORT"
	EnvFFmpeg      = "STREAMD_FFMPEG"
)

var defaultConfigPath = filepath.Join("configs", "default.yaml")

// GetConfigWithDefaults returns default configuration values
func GetConfigWithDefaults() *Config {
	return &Config{
		RTMP: RTMPConfig{
			Port:         rtmp.DefaultPort,
			ChunkSize:    60000,
			GopCache:     true,
			GopCacheSize: 4096,
			QueueSize:    8192,
			Ping:         rtmp.DefaultPingInterval,
			PingTimeout:  rtmp.DefaultPingTimeout,
		},
		Relay: RelayConfig{
			FFmpeg: "ffmpeg",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads an optional .env file, then loads the YAML configuration named
// by STREAMD_CONFIG (configs/default.yaml when unset) and applies environment
// overrides.
func Load() (*Config, error) {
	// .env가 없으면 시스템 환경 변수만 사용
	_ = godotenv.Load()

	path := getEnv(EnvConfigPath, "")
	return LoadConfig(path)
}

// LoadConfig loads configuration from a yaml file on top of the defaults.
// An empty path means configs/default.yaml, which may be absent.
func LoadConfig(path string) (*Config, error) {
	config := GetConfigWithDefaults()

	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// 기본 설정 파일이 없으면 기본값 사용
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func getEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func (c *Config) applyEnv() error {
	var err error
	if c.RTMP.Port, err = getEnvInt(EnvRTMPPort, c.RTMP.Port); err != nil {
		return err
	}
	if c.Metrics.Port, err = getEnvInt(EnvMetricsPort, c.Metrics.Port); err != nil {
		return err
	}
	c.Logging.Level = getEnv(EnvLogLevel, c.Logging.Level)
	c.Relay.FFmpeg = getEnv(EnvFFmpeg, c.Relay.FFmpeg)
	return nil
}

var validLevels = []string{"debug", "info", "warn", "error"}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	// RTMP 포트 검증
	if c.RTMP.Port <= 0 || c.RTMP.Port > 65535 {
		return fmt.Errorf("invalid rtmp port: %d (must be between 1-65535)", c.RTMP.Port)
	}

	if c.RTMP.ChunkSize < 1 || c.RTMP.ChunkSize > rtmp.MaxChunkSize {
		return fmt.Errorf("invalid chunk_size: %d", c.RTMP.ChunkSize)
	}

	if c.RTMP.GopCacheSize < 0 {
		return fmt.Errorf("invalid gop_cache_size: %d (must be non-negative)", c.RTMP.GopCacheSize)
	}

	if c.RTMP.QueueSize <= 0 {
		return fmt.Errorf("invalid queue_size: %d (must be positive)", c.RTMP.QueueSize)
	}

	if c.RTMP.Ping <= 0 || c.RTMP.PingTimeout <= 0 {
		return fmt.Errorf("ping and ping_timeout must be positive (ping=%s, ping_timeout=%s)", c.RTMP.Ping, c.RTMP.PingTimeout)
	}
	if c.RTMP.PingTimeout < c.RTMP.Ping {
		return fmt.Errorf("ping_timeout %s must not be shorter than ping %s", c.RTMP.PingTimeout, c.RTMP.Ping)
	}

	// 로그 레벨 검증
	if !slices.Contains(validLevels, strings.ToLower(c.Logging.Level)) {
		return fmt.Errorf("invalid log level: %s (must be one of: %v)", c.Logging.Level, validLevels)
	}

	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
	}
	if c.Metrics.Port != 0 && c.Metrics.Port == c.RTMP.Port {
		return fmt.Errorf("metrics port %d conflicts with rtmp port", c.Metrics.Port)
	}

	for i, task := range c.Relay.Tasks {
		if task.App == "" {
			return fmt.Errorf("relay task %d: app is required", i)
		}
		if !strings.EqualFold(task.Mode, "push") {
			return fmt.Errorf("relay task %d: unsupported mode %q (only push)", i, task.Mode)
		}
		if !strings.HasPrefix(task.Edge, "rtmp://") {
			return fmt.Errorf("relay task %d: edge must be an rtmp:// url, got %q", i, task.Edge)
		}
	}
	if len(c.Relay.Tasks) > 0 && c.Relay.FFmpeg == "" {
		return errors.New("relay tasks configured but ffmpeg path is empty")
	}

	return nil
}

// GetSlogLevel returns slog.Level from config
func (c *Config) GetSlogLevel() slog.Level {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
