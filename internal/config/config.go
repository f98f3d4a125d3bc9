// Package config provides configuration for the control plane daemon.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/edcet/complete-homelab-orchestrator/internal/afcp"
)

// Config holds the afcpd daemon configuration.
type Config struct {
	// Server settings
	HTTPPort     int
	InternalPort int

	// Admission control
	AdmissionWindow      time.Duration
	AdmissionMaxRequests int
	AdmissionBurst       int

	// Health monitor
	HealthTickInterval     time.Duration
	HealthOfflineThreshold time.Duration

	// Timeouts
	RouteTimeout     time.Duration
	ConsensusTimeout time.Duration

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:               getEnvInt("HTTP_PORT", 8080),
		InternalPort:           getEnvInt("INTERNAL_PORT", 8081),
		AdmissionWindow:        time.Duration(getEnvInt("ADMISSION_WINDOW_MS", 60000)) * time.Millisecond,
		AdmissionMaxRequests:   getEnvInt("ADMISSION_MAX_REQUESTS", 100),
		AdmissionBurst:         getEnvInt("ADMISSION_BURST", 20),
		HealthTickInterval:     time.Duration(getEnvInt("HEALTH_TICK_INTERVAL_MS", 10000)) * time.Millisecond,
		HealthOfflineThreshold: time.Duration(getEnvInt("HEALTH_OFFLINE_THRESHOLD_MS", 60000)) * time.Millisecond,
		RouteTimeout:           time.Duration(getEnvInt("ROUTE_TIMEOUT_MS", 30000)) * time.Millisecond,
		ConsensusTimeout:       time.Duration(getEnvInt("CONSENSUS_TIMEOUT_MS", 20000)) * time.Millisecond,
		LogLevel:               getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

// AFCPConfig projects Config into the afcp.Config the control plane is
// constructed from.
func (c *Config) AFCPConfig() afcp.Config {
	return afcp.Config{
		RouteTimeout:     c.RouteTimeout,
		ConsensusTimeout: c.ConsensusTimeout,
		Admission: afcp.AdmissionConfig{
			WindowLength: c.AdmissionWindow,
			MaxRequests:  c.AdmissionMaxRequests,
			Burst:        float64(c.AdmissionBurst),
		},
		Health: afcp.HealthConfig{
			TickInterval:        c.HealthTickInterval,
			OfflineThreshold:    c.HealthOfflineThreshold,
			DecayMultiplicative: afcp.DefaultHealthConfig().DecayMultiplicative,
			DecayAdditive:       afcp.DefaultHealthConfig().DecayAdditive,
		},
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
