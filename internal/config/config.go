// Package config loads runtime configuration for an e2ecore-backed
// client or service: storage backend selection, optional Vault
// key-wrapping, and prekey/skipped-cache tuning, read from environment
// files and variables the way the teacher's own config package does.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// StoreBackend selects which internal/store implementation Load wires
// up for the caller.
type StoreBackend string

const (
	StoreBackendMemory   StoreBackend = "memory"
	StoreBackendSQLite   StoreBackend = "sqlite"
	StoreBackendPostgres StoreBackend = "postgres"
)

// Config holds everything a caller needs to construct a core client.
type Config struct {
	StoreBackend StoreBackend
	SQLitePath   string
	PostgresURL  string

	VaultAddr       string
	VaultToken      string
	VaultTransitKey string

	OneTimePrekeyBatchSize int
	SkippedKeyCacheLimit   int
}

// loadEnvFiles loads environment files in the same order the teacher
// does: .env, then .env.{APP_ENV}, then .env.local overrides, each
// optional.
func loadEnvFiles() {
	_ = godotenv.Load()
	if env := os.Getenv("APP_ENV"); env != "" {
		_ = godotenv.Load(".env." + env)
	}
	_ = godotenv.Load(".env.local")
}

// Load reads Config from environment files and variables.
func Load() (*Config, error) {
	loadEnvFiles()

	cfg := &Config{
		StoreBackend:           StoreBackend(getEnv("E2ECORE_STORE_BACKEND", string(StoreBackendMemory))),
		SQLitePath:             getEnv("E2ECORE_SQLITE_PATH", "e2ecore.db"),
		PostgresURL:            getEnv("E2ECORE_POSTGRES_URL", ""),
		VaultAddr:              getEnv("VAULT_ADDR", ""),
		VaultToken:             getEnv("VAULT_TOKEN", ""),
		VaultTransitKey:        getEnv("E2ECORE_VAULT_TRANSIT_KEY", "e2ecore-identity"),
		OneTimePrekeyBatchSize: 100,
		SkippedKeyCacheLimit:   256,
	}

	batchSize, err := getEnvInt("E2ECORE_PREKEY_BATCH_SIZE", cfg.OneTimePrekeyBatchSize)
	if err != nil {
		return nil, fmt.Errorf("config: parse E2ECORE_PREKEY_BATCH_SIZE: %w", err)
	}
	cfg.OneTimePrekeyBatchSize = batchSize

	cacheLimit, err := getEnvInt("E2ECORE_SKIPPED_KEY_CACHE_LIMIT", cfg.SkippedKeyCacheLimit)
	if err != nil {
		return nil, fmt.Errorf("config: parse E2ECORE_SKIPPED_KEY_CACHE_LIMIT: %w", err)
	}
	cfg.SkippedKeyCacheLimit = cacheLimit

	switch cfg.StoreBackend {
	case StoreBackendMemory, StoreBackendSQLite, StoreBackendPostgres:
	default:
		return nil, fmt.Errorf("config: unknown E2ECORE_STORE_BACKEND %q", cfg.StoreBackend)
	}
	if cfg.StoreBackend == StoreBackendPostgres && cfg.PostgresURL == "" {
		return nil, fmt.Errorf("config: E2ECORE_POSTGRES_URL is required when store backend is postgres")
	}

	if cfg.VaultAddr != "" && cfg.VaultToken == "" {
		log.Printf("config: VAULT_ADDR set without VAULT_TOKEN, identity wrapping disabled")
		cfg.VaultAddr = ""
	}

	return cfg, nil
}

// VaultEnabled reports whether enough Vault configuration is present to
// construct a store.IdentityWrapper.
func (c *Config) VaultEnabled() bool {
	return c.VaultAddr != "" && c.VaultToken != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}
