package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// RuntimeEnvironment represents the execution environment
type RuntimeEnvironment string

const (
	RuntimeKubernetes RuntimeEnvironment = "kubernetes"
	RuntimeContainer  RuntimeEnvironment = "container"
	RuntimeVM         RuntimeEnvironment = "vm"
)

// StorageMode represents where the ranking is persisted
type StorageMode string

const (
	StorageFile       StorageMode = "file"
	StorageMemory     StorageMode = "memory"
	StorageKubernetes StorageMode = "kubernetes"
	StorageRedis      StorageMode = "redis"
	StorageSQLite     StorageMode = "sqlite"
)

// ServerMode represents how connections are scheduled
type ServerMode string

const (
	ServerConcurrent ServerMode = "concurrent"
	ServerSequential ServerMode = "sequential"
)

// Config holds all application configuration
type Config struct {
	// Core
	Debug     bool
	LogFormat string // text, json

	// Runtime
	Runtime   RuntimeEnvironment
	Namespace string // Only for Kubernetes storage

	// Server
	ListenPort       string
	HealthServerPort string // empty disables the HTTP server
	ServerMode       ServerMode
	LedgerCapacity   int

	// Storage
	StorageMode StorageMode
	ScoresFile  string

	ConfigMapName  string
	ConfigMapKey   string
	KubeConfigPath string
	KubeContext    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string

	SQLitePath string
}

// LoadFromEnv loads configuration from environment variables. A .env file
// in the working directory is read first when present; real environment
// variables win over it.
func LoadFromEnv() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		// Core
		Debug:     getEnvBool("DEBUG", false),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),

		// Runtime - Auto-detect or explicit
		Runtime:   determineRuntime(),
		Namespace: determineNamespace(),

		// Server
		ListenPort:       getEnv("SCORE_SERVER_PORT", "1234"),
		HealthServerPort: getEnvAllowEmpty("HEALTH_SERVER_PORT", "8080"),
		ServerMode:       determineServerMode(),
		LedgerCapacity:   getEnvInt("LEDGER_CAPACITY", 10),

		// Storage
		StorageMode: determineStorageMode(),
		ScoresFile:  getEnv("SCORES_FILE", "scores.txt"),

		ConfigMapName:  getEnv("SCORES_CONFIGMAP", ""),
		ConfigMapKey:   getEnv("SCORES_CONFIGMAP_KEY", "scores.txt"),
		KubeConfigPath: getEnv("KUBECONFIG", ""),
		KubeContext:    getEnv("KUBE_CONTEXT", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisKey:      getEnv("REDIS_KEY", "highscores"),

		SQLitePath: getEnv("SQLITE_PATH", ""),
	}

	// Legacy support
	cfg.applyLegacySupport()

	// Validation
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Sequential reports whether connections are served one at a time.
func (c *Config) Sequential() bool {
	return c.ServerMode == ServerSequential
}

// validate ensures configuration is coherent
func (c *Config) validate() error {
	if err := validatePort("SCORE_SERVER_PORT", c.ListenPort); err != nil {
		return err
	}
	if c.HealthServerPort != "" {
		if err := validatePort("HEALTH_SERVER_PORT", c.HealthServerPort); err != nil {
			return err
		}
		if c.HealthServerPort == c.ListenPort {
			return fmt.Errorf("HEALTH_SERVER_PORT and SCORE_SERVER_PORT must differ (both %s)", c.ListenPort)
		}
	}

	if c.LedgerCapacity < 1 {
		return fmt.Errorf("LEDGER_CAPACITY must be at least 1, got %d", c.LedgerCapacity)
	}

	validFormats := []string{"text", "json"}
	if !contains(validFormats, c.LogFormat) {
		return fmt.Errorf("unsupported LOG_FORMAT: %s (supported: %s)",
			c.LogFormat, strings.Join(validFormats, ", "))
	}

	switch c.StorageMode {
	case StorageFile:
		if c.ScoresFile == "" {
			return fmt.Errorf("SCORES_FILE must be set when using file storage")
		}
	case StorageMemory:
	case StorageKubernetes:
		if c.ConfigMapName == "" {
			return fmt.Errorf("SCORES_CONFIGMAP must be set when using kubernetes storage")
		}
		if c.ConfigMapKey == "" {
			return fmt.Errorf("SCORES_CONFIGMAP_KEY must not be empty")
		}
	case StorageRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR must be set when using redis storage")
		}
		if c.RedisKey == "" {
			return fmt.Errorf("REDIS_KEY must not be empty")
		}
	case StorageSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH must be set when using sqlite storage")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_MODE: %s", c.StorageMode)
	}

	return nil
}

// applyLegacySupport handles backward compatibility
func (c *Config) applyLegacySupport() {
	// Legacy: PORT
	if legacyPort := getEnv("PORT", ""); legacyPort != "" && os.Getenv("SCORE_SERVER_PORT") == "" {
		c.ListenPort = legacyPort
	}
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty lets an explicitly empty variable switch a feature off.
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func validatePort(key, value string) error {
	port, err := strconv.Atoi(value)
	if err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("%s must be a port number, got %q", key, value)
	}
	return nil
}

func determineRuntime() RuntimeEnvironment {
	// Explicit runtime setting
	if runtime := os.Getenv("RUNTIME"); runtime != "" {
		switch strings.ToLower(runtime) {
		case "kubernetes", "k8s":
			return RuntimeKubernetes
		case "container", "docker":
			return RuntimeContainer
		case "vm", "virtual-machine", "bare-metal":
			return RuntimeVM
		}
	}

	// Auto-detect: Check if running in Kubernetes
	if _, err := os.Stat("/var/run/secrets/kubernetes.io/serviceaccount"); err == nil {
		return RuntimeKubernetes
	}

	// Auto-detect: Check if running in container
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return RuntimeContainer
	}

	// Default to VM
	return RuntimeVM
}

func determineNamespace() string {
	// Explicit namespace
	if ns := os.Getenv("NAMESPACE"); ns != "" {
		return ns
	}

	// Kubernetes downward API
	if ns := os.Getenv("POD_NAMESPACE"); ns != "" {
		return ns
	}

	// Read from service account (in-cluster)
	if data, err := os.ReadFile("/var/run/secrets/kubernetes.io/serviceaccount/namespace"); err == nil {
		return strings.TrimSpace(string(data))
	}

	return "default"
}

func determineServerMode() ServerMode {
	if strings.EqualFold(os.Getenv("SERVER_MODE"), string(ServerSequential)) {
		return ServerSequential
	}
	return ServerConcurrent
}

func determineStorageMode() StorageMode {
	// Explicit mode
	if mode := os.Getenv("STORAGE_MODE"); mode != "" {
		switch strings.ToLower(mode) {
		case "file", "filesystem":
			return StorageFile
		case "memory", "in-memory":
			return StorageMemory
		case "kubernetes", "k8s", "configmap":
			return StorageKubernetes
		case "redis":
			return StorageRedis
		case "sqlite", "sqlite3":
			return StorageSQLite
		}
		return StorageMode(strings.ToLower(mode))
	}

	// Auto-detect based on configuration
	if os.Getenv("SCORES_CONFIGMAP") != "" {
		return StorageKubernetes
	}

	if os.Getenv("REDIS_ADDR") != "" {
		return StorageRedis
	}

	if os.Getenv("SQLITE_PATH") != "" {
		return StorageSQLite
	}

	return StorageFile
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
