package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	OTEL      OTELConfig
	Triage    TriageConfig
	Queue     QueueConfig
	Registry  RegistryConfig
	Allocator AllocatorConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string
	Port int
	Env  string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// TriageConfig holds severity scoring configuration
type TriageConfig struct {
	// TeleconsultMaxSeverity is the highest severity score still eligible
	// for a teleconsultation instead of an in-person visit.
	TeleconsultMaxSeverity int
}

// QueueConfig holds priority queue configuration
type QueueConfig struct {
	// Weights of the composite priority score. They should sum to 1.0.
	SeverityWeight float64
	WaitWeight     float64
	AgeWeight      float64
	ChronicWeight  float64

	// MaxWait is the wait duration at which the normalized wait
	// component saturates at 1.0.
	MaxWait time.Duration

	// RescoreInterval is how often every waiting entry is re-scored.
	RescoreInterval time.Duration
}

// RegistryConfig holds department registry configuration
type RegistryConfig struct {
	// Crowd level cutoffs on utilization. Below BusyThreshold a
	// department is normal, above OverloadedThreshold it is overloaded.
	BusyThreshold       float64
	OverloadedThreshold float64

	// AvgConsultationMinutes is the assumed mean consultation length,
	// which implies a per-doctor throughput of 60/AvgConsultationMinutes
	// patients per hour.
	AvgConsultationMinutes int
}

// AllocatorConfig holds spare doctor allocator configuration
type AllocatorConfig struct {
	// AssignThreshold is the minimum confidence at which an assignment
	// decision is auto-executed rather than surfaced as a recommendation.
	AssignThreshold float64

	// ReleaseUtilization is the utilization below which assigned spare
	// doctors become candidates for release.
	ReleaseUtilization float64

	// CriticalSeverity is the severity score at or above which a queue
	// entry counts as critical for allocation triggers.
	CriticalSeverity int

	MaxSparePerDepartment int

	// SessionTarget is the number of patients after which an assigned
	// spare doctor is released back to the pool.
	SessionTarget int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
			Env:  getEnv("APP_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "smartqueue"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "smartqueue"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
		Triage: TriageConfig{
			TeleconsultMaxSeverity: getEnvAsInt("TRIAGE_TELECONSULT_MAX_SEVERITY", 4),
		},
		Queue: QueueConfig{
			SeverityWeight:  getEnvAsFloat("QUEUE_SEVERITY_WEIGHT", 0.40),
			WaitWeight:      getEnvAsFloat("QUEUE_WAIT_WEIGHT", 0.30),
			AgeWeight:       getEnvAsFloat("QUEUE_AGE_WEIGHT", 0.15),
			ChronicWeight:   getEnvAsFloat("QUEUE_CHRONIC_WEIGHT", 0.15),
			MaxWait:         getEnvAsDuration("QUEUE_MAX_WAIT", 2*time.Hour),
			RescoreInterval: getEnvAsDuration("QUEUE_RESCORE_INTERVAL", 5*time.Minute),
		},
		Registry: RegistryConfig{
			BusyThreshold:          getEnvAsFloat("REGISTRY_BUSY_THRESHOLD", 0.50),
			OverloadedThreshold:    getEnvAsFloat("REGISTRY_OVERLOADED_THRESHOLD", 0.85),
			AvgConsultationMinutes: getEnvAsInt("REGISTRY_AVG_CONSULTATION_MINUTES", 12),
		},
		Allocator: AllocatorConfig{
			AssignThreshold:       getEnvAsFloat("ALLOCATOR_ASSIGN_THRESHOLD", 0.65),
			ReleaseUtilization:    getEnvAsFloat("ALLOCATOR_RELEASE_UTILIZATION", 0.45),
			CriticalSeverity:      getEnvAsInt("ALLOCATOR_CRITICAL_SEVERITY", 7),
			MaxSparePerDepartment: getEnvAsInt("ALLOCATOR_MAX_SPARE_PER_DEPARTMENT", 3),
			SessionTarget:         getEnvAsInt("ALLOCATOR_SESSION_TARGET", 10),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Registry.BusyThreshold >= c.Registry.OverloadedThreshold {
		return fmt.Errorf("busy threshold (%.2f) must be below overloaded threshold (%.2f)",
			c.Registry.BusyThreshold, c.Registry.OverloadedThreshold)
	}
	if c.Allocator.AssignThreshold < 0 || c.Allocator.AssignThreshold > 1 {
		return fmt.Errorf("assign threshold must be in [0,1], got %.2f", c.Allocator.AssignThreshold)
	}
	if c.Registry.AvgConsultationMinutes <= 0 {
		return fmt.Errorf("average consultation minutes must be positive, got %d", c.Registry.AvgConsultationMinutes)
	}
	return nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
