package types

import (
	"time"
)

type ConfigManager interface {
	Load() error
	GetConfig() *ServiceConfig
	GetValue(path string, defaultValue interface{}) interface{}
	GetAs(path string, target interface{}) error
}

type ServiceConfig struct {
	Name    string         `yaml:"name" json:"name" validate:"required"`
	Version string         `yaml:"version" json:"version" validate:"required"`
	Logger  *LoggerConfig  `yaml:"logger" json:"logger" validate:"required"`
	Client  *ClientConfig  `yaml:"client" json:"client" validate:"required"`
	Cache   *CacheConfig   `yaml:"cache" json:"cache" validate:"required"`
	Metrics *MetricsConfig `yaml:"metrics" json:"metrics"`
}

type LoggerConfig struct {
	Type   string      `yaml:"type" json:"type"`
	Level  string      `yaml:"level" json:"level" validate:"required,oneof=debug info warn warning error fatal"`
	Config interface{} `yaml:"config" json:"config"`
}

type CacheConfig struct {
	Name                string        `yaml:"name" json:"name"`
	DefaultTTL          time.Duration `yaml:"default_ttl" json:"default_ttl" validate:"min=0"`
	PrefetchConcurrency int           `yaml:"prefetch_concurrency" json:"prefetch_concurrency" validate:"min=0"`
}

type ClientConfig struct {
	BaseURL        string                `yaml:"base_url" json:"base_url" validate:"required,url"`
	Timeout        time.Duration         `yaml:"timeout" json:"timeout" validate:"min=0"`
	Retries        int                   `yaml:"retries" json:"retries" validate:"min=0,max=10"`
	Headers        map[string]string     `yaml:"headers" json:"headers"`
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold" validate:"min=0"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" json:"recovery_timeout" validate:"min=0"`
	HalfOpenRequests int           `yaml:"half_open_requests" json:"half_open_requests" validate:"min=0"`
}

type MetricsConfig struct {
	Enabled bool              `yaml:"enabled" json:"enabled"`
	Type    string            `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Config  interface{}       `yaml:"config" json:"config"`
	Labels  map[string]string `yaml:"labels" json:"labels"`
	Listen  string            `yaml:"listen" json:"listen"`
}
