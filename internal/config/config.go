package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for the site server and CLI.
type Config struct {
	Env         string `yaml:"env"`
	HTTPPort    string `yaml:"http_port"`
	WebDir      string `yaml:"web_dir"`
	UploadDir   string `yaml:"upload_dir"`
	BackupDir   string `yaml:"backup_dir"`
	DBFile      string `yaml:"db_file"`
	PostgresDSN string `yaml:"postgres_dsn"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`

	AdminPassword  string        `yaml:"admin_password"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
	CaptchaTimeout time.Duration `yaml:"captcha_timeout"`

	AITool         string        `yaml:"ai_tool"`
	AIDefaultModel string        `yaml:"ai_default_model"`
	AISystemPrompt string        `yaml:"ai_system_prompt"`
	AITimeout      time.Duration `yaml:"ai_timeout"`
	AIWorkers      int           `yaml:"ai_workers"`
	JobRetention   time.Duration `yaml:"job_retention"`

	RedisAddr         string  `yaml:"redis_addr"`
	RedisPassword     string  `yaml:"redis_password"`
	RedisDB           int     `yaml:"redis_db"`
	RateLimitCapacity int     `yaml:"rate_limit_capacity"`
	RateLimitRefill   float64 `yaml:"rate_limit_refill_per_sec"`

	UploadS3Bucket    string `yaml:"upload_s3_bucket"`
	UploadS3Region    string `yaml:"upload_s3_region"`
	UploadS3Endpoint  string `yaml:"upload_s3_endpoint"`
	UploadS3PathStyle bool   `yaml:"upload_s3_path_style"`
	ThumbnailWidth    int    `yaml:"thumbnail_width"`
}

// Defaults returns the configuration used for local development.
func Defaults() Config {
	return Config{
		Env:               "dev",
		HTTPPort:          "8000",
		WebDir:            ".",
		UploadDir:         "upload",
		BackupDir:         "backups",
		DBFile:            "churchdata.db",
		LogLevel:          "info",
		LogFormat:         "text",
		AdminPassword:     "admin123",
		SessionTimeout:    time.Hour,
		CaptchaTimeout:    10 * time.Minute,
		AITool:            "claude",
		AIDefaultModel:    "claude-3-opus-20240229",
		AISystemPrompt:    "You are a concise AI assistant who edits HTML code.",
		AITimeout:         45 * time.Second,
		AIWorkers:         4,
		RateLimitCapacity: 20,
		RateLimitRefill:   0.5,
		UploadS3Region:    "us-east-1",
		ThumbnailWidth:    320,
	}
}

// Load reads configuration from environment variables on top of Defaults.
func Load() Config {
	return applyEnv(Defaults())
}

// LoadFile reads a YAML file over Defaults and then applies environment
// overrides. An empty path behaves like Load.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	return applyEnv(cfg), nil
}

func applyEnv(c Config) Config {
	return Config{
		Env:         getEnv("APP_ENV", c.Env),
		HTTPPort:    getEnv("HTTP_PORT", getEnv("PORT", c.HTTPPort)),
		WebDir:      getEnv("WEB_DIR", c.WebDir),
		UploadDir:   getEnv("UPLOAD_DIR", c.UploadDir),
		BackupDir:   getEnv("BACKUP_DIR", c.BackupDir),
		DBFile:      getEnv("DB_FILE", c.DBFile),
		PostgresDSN: getEnv("POSTGRES_DSN", c.PostgresDSN),
		LogLevel:    getEnv("LOG_LEVEL", c.LogLevel),
		LogFormat:   getEnv("LOG_FORMAT", c.LogFormat),

		AdminPassword:  getEnv("ADMIN_PASSWORD", c.AdminPassword),
		SessionTimeout: getEnvDuration("SESSION_TIMEOUT", c.SessionTimeout),
		CaptchaTimeout: getEnvDuration("CAPTCHA_TIMEOUT", c.CaptchaTimeout),

		AITool:         getEnv("AI_TOOL", c.AITool),
		AIDefaultModel: getEnv("AI_DEFAULT_MODEL", c.AIDefaultModel),
		AISystemPrompt: getEnv("AI_SYSTEM_PROMPT", c.AISystemPrompt),
		AITimeout:      getEnvDuration("AI_TIMEOUT", c.AITimeout),
		AIWorkers:      getEnvInt("AI_WORKERS", c.AIWorkers),
		JobRetention:   getEnvDuration("JOB_RETENTION", c.JobRetention),

		RedisAddr:         getEnv("REDIS_ADDR", c.RedisAddr),
		RedisPassword:     getEnv("REDIS_PASSWORD", c.RedisPassword),
		RedisDB:           getEnvInt("REDIS_DB", c.RedisDB),
		RateLimitCapacity: getEnvInt("RATE_LIMIT_CAPACITY", c.RateLimitCapacity),
		RateLimitRefill:   getEnvFloat("RATE_LIMIT_REFILL_PER_SEC", c.RateLimitRefill),

		UploadS3Bucket:    getEnv("UPLOAD_S3_BUCKET", c.UploadS3Bucket),
		UploadS3Region:    getEnv("UPLOAD_S3_REGION", c.UploadS3Region),
		UploadS3Endpoint:  getEnv("UPLOAD_S3_ENDPOINT", c.UploadS3Endpoint),
		UploadS3PathStyle: getEnvBool("UPLOAD_S3_PATH_STYLE", c.UploadS3PathStyle),
		ThumbnailWidth:    getEnvInt("THUMBNAIL_WIDTH", c.ThumbnailWidth),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
