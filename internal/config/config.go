package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Synthesis SynthesisConfig `mapstructure:"synthesis"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type ProvidersConfig struct {
	OpenAI         ProviderEndpoint `mapstructure:"openai"`
	Gemini         ProviderEndpoint `mapstructure:"gemini"`
	RequestTimeout time.Duration    `mapstructure:"request_timeout"`
}

type ProviderEndpoint struct {
	BaseURL string `mapstructure:"base_url"`
}

type JobsConfig struct {
	MaxAge          time.Duration `mapstructure:"max_age"`
	MaxCount        int           `mapstructure:"max_count"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

type SynthesisConfig struct {
	MaxSegments    int           `mapstructure:"max_segments"`
	MaxTotalChars  int           `mapstructure:"max_total_chars"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
}

type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Type      string `mapstructure:"type"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Policy defaults; every numeric limit is tunable, none are hard-coded law
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("providers.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("providers.gemini.base_url", "https://generativelanguage.googleapis.com/v1beta/openai")
	v.SetDefault("providers.request_timeout", "120s")
	v.SetDefault("jobs.max_age", "45m")
	v.SetDefault("jobs.max_count", 1000)
	v.SetDefault("jobs.janitor_interval", "5m")
	v.SetDefault("jobs.request_timeout", "300s")
	v.SetDefault("synthesis.max_segments", 300)
	v.SetDefault("synthesis.max_total_chars", 40000)
	v.SetDefault("synthesis.max_concurrency", 4)
	v.SetDefault("synthesis.max_retries", 3)
	v.SetDefault("synthesis.base_delay", "500ms")
	v.SetDefault("synthesis.max_delay", "4s")
	v.SetDefault("synthesis.attempt_timeout", "60s")
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.use_ssl", true)
	v.SetDefault("archive.bucket", "relay-audio")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("providers.openai.base_url", "OPENAI_BASE_URL")
	v.BindEnv("providers.gemini.base_url", "GEMINI_BASE_URL")
	v.BindEnv("archive.endpoint", "ARCHIVE_ENDPOINT")
	v.BindEnv("archive.access_key", "ARCHIVE_ACCESS_KEY")
	v.BindEnv("archive.secret_key", "ARCHIVE_SECRET_KEY")
	v.BindEnv("archive.bucket", "ARCHIVE_BUCKET")
	v.BindEnv("archive.public_url", "ARCHIVE_PUBLIC_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
