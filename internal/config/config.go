package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rideflow/gateway/internal/domain"
	"gopkg.in/yaml.v2"
)

// Config represents the main configuration structure
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Services    []ServiceConfig   `yaml:"services"`
	HealthCheck HealthCheckConfig `yaml:"health_check"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Admin       AdminConfig       `yaml:"admin"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig contains HTTP server specific configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// ServiceConfig contains the configuration of one logical backend service
type ServiceConfig struct {
	Name             string           `yaml:"name"`
	Instances        []InstanceConfig `yaml:"instances"`
	HealthCheckPath  string           `yaml:"health_check_path"`
	RequestTimeout   time.Duration    `yaml:"request_timeout"`
	MaxRetries       int              `yaml:"max_retries"`
	BreakerThreshold int              `yaml:"breaker_threshold"`
	RecoveryTimeout  time.Duration    `yaml:"recovery_timeout"`
}

// InstanceConfig contains one backend instance endpoint
type InstanceConfig struct {
	Address string `yaml:"address"`
	Weight  int    `yaml:"weight"`
}

// HealthCheckConfig contains health probe configuration
type HealthCheckConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

// AdminConfig contains admin API configuration
type AdminConfig struct {
	Enabled   bool   `yaml:"enabled"`
	JWTSecret string `yaml:"jwt_secret"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		HealthCheck: HealthCheckConfig{
			Enabled:  true,
			Interval: 30 * time.Second,
			Timeout:  5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 100,
			BurstSize:         200,
		},
		Admin: AdminConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// LoadFromEnv loads configuration from environment variables with defaults.
// When GATEWAY_CONFIG_FILE points at a readable file it takes precedence.
func LoadFromEnv() (*Config, error) {
	if configFile := os.Getenv("GATEWAY_CONFIG_FILE"); configFile != "" {
		return LoadFromFile(configFile)
	}

	config := DefaultConfig()

	if logLevel := os.Getenv("GATEWAY_LOG_LEVEL"); logLevel != "" {
		config.Logging.Level = logLevel
	}
	if secret := os.Getenv("GATEWAY_ADMIN_JWT_SECRET"); secret != "" {
		config.Admin.JWTSecret = secret
	}

	return config, nil
}

// Validate validates the configuration for correctness
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	serviceNames := make(map[string]bool)
	for i, svc := range c.Services {
		if svc.Name == "" {
			return fmt.Errorf("services[%d]: name cannot be empty", i)
		}
		if serviceNames[svc.Name] {
			return fmt.Errorf("services[%d]: duplicate service name '%s'", i, svc.Name)
		}
		serviceNames[svc.Name] = true

		if len(svc.Instances) == 0 {
			return fmt.Errorf("services[%d]: at least one instance must be configured", i)
		}

		addresses := make(map[string]bool)
		for j, inst := range svc.Instances {
			if inst.Address == "" {
				return fmt.Errorf("services[%d].instances[%d]: address cannot be empty", i, j)
			}
			if addresses[inst.Address] {
				return fmt.Errorf("services[%d].instances[%d]: duplicate address '%s'", i, j, inst.Address)
			}
			addresses[inst.Address] = true
			if inst.Weight < 0 {
				return fmt.Errorf("services[%d].instances[%d]: weight cannot be negative", i, j)
			}
		}

		if svc.RequestTimeout <= 0 {
			return fmt.Errorf("services[%d]: request_timeout must be positive", i)
		}
		if svc.MaxRetries < 0 {
			return fmt.Errorf("services[%d]: max_retries cannot be negative", i)
		}
		if svc.BreakerThreshold <= 0 {
			return fmt.Errorf("services[%d]: breaker_threshold must be positive", i)
		}
		if svc.RecoveryTimeout <= 0 {
			return fmt.Errorf("services[%d]: recovery_timeout must be positive", i)
		}
	}

	if c.HealthCheck.Enabled {
		if c.HealthCheck.Interval <= 0 {
			return fmt.Errorf("health_check.interval must be positive")
		}
		if c.HealthCheck.Timeout <= 0 {
			return fmt.Errorf("health_check.timeout must be positive")
		}
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limit.requests_per_second must be positive")
		}
		if c.RateLimit.BurstSize <= 0 {
			return fmt.Errorf("rate_limit.burst_size must be positive")
		}
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// ToServiceConfigs converts the service table to domain service configurations
func (c *Config) ToServiceConfigs() []domain.ServiceConfig {
	configs := make([]domain.ServiceConfig, len(c.Services))
	for i, svc := range c.Services {
		instances := make([]domain.InstanceConfig, len(svc.Instances))
		for j, inst := range svc.Instances {
			weight := inst.Weight
			if weight == 0 {
				weight = 1
			}
			instances[j] = domain.InstanceConfig{Address: inst.Address, Weight: weight}
		}

		healthCheckPath := svc.HealthCheckPath
		if healthCheckPath == "" {
			healthCheckPath = "/health"
		}

		configs[i] = domain.ServiceConfig{
			ServiceName:      svc.Name,
			Instances:        instances,
			HealthCheckPath:  healthCheckPath,
			RequestTimeout:   svc.RequestTimeout,
			MaxRetries:       svc.MaxRetries,
			BreakerThreshold: svc.BreakerThreshold,
			RecoveryTimeout:  svc.RecoveryTimeout,
		}
	}
	return configs
}
