package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rideflow/gateway/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Services = []config.ServiceConfig{
		{
			Name: "ride-service",
			Instances: []config.InstanceConfig{
				{Address: "http://ride-a:8080", Weight: 1},
				{Address: "http://ride-b:8080", Weight: 1},
			},
			HealthCheckPath:  "/health",
			RequestTimeout:   2 * time.Second,
			MaxRetries:       1,
			BreakerThreshold: 3,
			RecoveryTimeout:  time.Second,
		},
	}
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.HealthCheck.Enabled)
	assert.Equal(t, 30*time.Second, cfg.HealthCheck.Interval)
	assert.Equal(t, 5*time.Second, cfg.HealthCheck.Timeout)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	require.NoError(t, cfg.Validate(), "defaults must validate")
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "invalid port",
			mutate:  func(c *config.Config) { c.Server.Port = 0 },
			wantErr: "invalid port",
		},
		{
			name:    "empty service name",
			mutate:  func(c *config.Config) { c.Services[0].Name = "" },
			wantErr: "name cannot be empty",
		},
		{
			name: "duplicate service name",
			mutate: func(c *config.Config) {
				c.Services = append(c.Services, c.Services[0])
			},
			wantErr: "duplicate service name",
		},
		{
			name:    "no instances",
			mutate:  func(c *config.Config) { c.Services[0].Instances = nil },
			wantErr: "at least one instance",
		},
		{
			name: "duplicate instance address",
			mutate: func(c *config.Config) {
				c.Services[0].Instances[1].Address = c.Services[0].Instances[0].Address
			},
			wantErr: "duplicate address",
		},
		{
			name:    "negative weight",
			mutate:  func(c *config.Config) { c.Services[0].Instances[0].Weight = -1 },
			wantErr: "weight cannot be negative",
		},
		{
			name:    "zero request timeout",
			mutate:  func(c *config.Config) { c.Services[0].RequestTimeout = 0 },
			wantErr: "request_timeout must be positive",
		},
		{
			name:    "negative max retries",
			mutate:  func(c *config.Config) { c.Services[0].MaxRetries = -1 },
			wantErr: "max_retries cannot be negative",
		},
		{
			name:    "zero breaker threshold",
			mutate:  func(c *config.Config) { c.Services[0].BreakerThreshold = 0 },
			wantErr: "breaker_threshold must be positive",
		},
		{
			name:    "zero recovery timeout",
			mutate:  func(c *config.Config) { c.Services[0].RecoveryTimeout = 0 },
			wantErr: "recovery_timeout must be positive",
		},
		{
			name: "health check interval",
			mutate: func(c *config.Config) {
				c.HealthCheck.Enabled = true
				c.HealthCheck.Interval = 0
			},
			wantErr: "health_check.interval",
		},
		{
			name: "rate limit rps",
			mutate: func(c *config.Config) {
				c.RateLimit.Enabled = true
				c.RateLimit.RequestsPerSecond = 0
			},
			wantErr: "requests_per_second",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *config.Config) { c.Logging.Level = "verbose" },
			wantErr: "invalid log level",
		},
		{
			name:    "invalid log format",
			mutate:  func(c *config.Config) { c.Logging.Format = "xml" },
			wantErr: "invalid log format",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	content := `
server:
  port: 9090
  read_timeout: 15s
  write_timeout: 15s
  idle_timeout: 45s

services:
  - name: ride-service
    health_check_path: /healthz
    request_timeout: 2s
    max_retries: 2
    breaker_threshold: 5
    recovery_timeout: 1500ms
    instances:
      - address: http://ride-a:8080
        weight: 2
      - address: http://ride-b:8080

health_check:
  enabled: true
  interval: 10s
  timeout: 3s

logging:
  level: debug
  format: text
`

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.HealthCheck.Interval)
	assert.Equal(t, "debug", cfg.Logging.Level)

	require.Len(t, cfg.Services, 1)
	svc := cfg.Services[0]
	assert.Equal(t, "ride-service", svc.Name)
	assert.Equal(t, "/healthz", svc.HealthCheckPath)
	assert.Equal(t, 2*time.Second, svc.RequestTimeout)
	assert.Equal(t, 1500*time.Millisecond, svc.RecoveryTimeout)
	require.Len(t, svc.Instances, 2)
	assert.Equal(t, 2, svc.Instances[0].Weight)
}

func TestLoadFromFileErrors(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	badYAML := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(badYAML, []byte("services: [unclosed"), 0o644))
	_, err = config.LoadFromFile(badYAML)
	assert.Error(t, err)

	invalid := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("server:\n  port: -1\n"), 0o644))
	_, err = config.LoadFromFile(invalid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GATEWAY_CONFIG_FILE", "")
	t.Setenv("GATEWAY_LOG_LEVEL", "warn")
	t.Setenv("GATEWAY_ADMIN_JWT_SECRET", "test-secret")

	cfg, err := config.LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "test-secret", cfg.Admin.JWTSecret)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestToServiceConfigsDefaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Services[0].HealthCheckPath = ""
	cfg.Services[0].Instances[0].Weight = 0

	domainConfigs := cfg.ToServiceConfigs()
	require.Len(t, domainConfigs, 1)

	svc := domainConfigs[0]
	assert.Equal(t, "ride-service", svc.ServiceName)
	assert.Equal(t, "/health", svc.HealthCheckPath, "health check path defaults to /health")
	assert.Equal(t, 1, svc.Instances[0].Weight, "zero weight defaults to 1")
	assert.Equal(t, 3, svc.BreakerThreshold)
}
