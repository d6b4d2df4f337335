package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	OpenFDA  OpenFDAConfig
	RxNorm   RxNormConfig
	LLM      LLMConfig
	Workflow WorkflowConfig
}

type ServerConfig struct {
	Port           int `mapstructure:"port" envconfig:"SERVER_PORT"`
	TimeoutSeconds int `mapstructure:"timeoutSeconds" envconfig:"SERVER_TIMEOUT_SECONDS"`
	RateLimit      int `mapstructure:"rateLimit" envconfig:"SERVER_RATE_LIMIT"`
	RateBurst      int `mapstructure:"rateBurst" envconfig:"SERVER_RATE_BURST"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host" envconfig:"DB_HOST"`
	Port     int    `mapstructure:"port" envconfig:"DB_PORT"`
	User     string `mapstructure:"user" envconfig:"DB_USER"`
	Password string `mapstructure:"password" envconfig:"DB_PASSWORD"`
	Name     string `mapstructure:"name" envconfig:"DB_NAME"`
	SSLMode  string `mapstructure:"sslmode" envconfig:"DB_SSLMODE"`
}

type RedisConfig struct {
	URL          string `mapstructure:"url" envconfig:"REDIS_URL"`
	PoolSize     int    `mapstructure:"poolSize" envconfig:"REDIS_POOL_SIZE"`
	MinIdleConns int    `mapstructure:"minIdleConns" envconfig:"REDIS_MIN_IDLE_CONNS"`
}

type OpenFDAConfig struct {
	BaseURL        string `mapstructure:"baseUrl" envconfig:"OPENFDA_BASE_URL"`
	APIKey         string `mapstructure:"apiKey" envconfig:"OPENFDA_API_KEY"`
	TimeoutSeconds int    `mapstructure:"timeoutSeconds" envconfig:"OPENFDA_TIMEOUT_SECONDS"`
	CacheTTLMin    int    `mapstructure:"cacheTtlMinutes" envconfig:"OPENFDA_CACHE_TTL_MINUTES"`
}

type RxNormConfig struct {
	BaseURL        string `mapstructure:"baseUrl" envconfig:"RXNORM_BASE_URL"`
	TimeoutSeconds int    `mapstructure:"timeoutSeconds" envconfig:"RXNORM_TIMEOUT_SECONDS"`
	CacheTTLMin    int    `mapstructure:"cacheTtlMinutes" envconfig:"RXNORM_CACHE_TTL_MINUTES"`
}

type LLMConfig struct {
	BaseURL        string `mapstructure:"baseUrl" envconfig:"LLM_BASE_URL"`
	APIKey         string `mapstructure:"apiKey" envconfig:"LLM_API_KEY"`
	Model          string `mapstructure:"model" envconfig:"LLM_MODEL"`
	TimeoutSeconds int    `mapstructure:"timeoutSeconds" envconfig:"LLM_TIMEOUT_SECONDS"`
}

type WorkflowConfig struct {
	CheckpointTTLHours int `mapstructure:"checkpointTtlHours" envconfig:"WORKFLOW_CHECKPOINT_TTL_HOURS"`
}

// LoadConfig reads config.yaml and then applies environment overrides, so a
// deploy can ship a file and still inject secrets via env.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	return &config, nil
}
