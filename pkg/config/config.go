package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// RegistryEntry names one schema registry endpoint.
type RegistryEntry struct {
	Name    string
	BaseURL string
}

// Config holds the server configuration, loaded from the environment.
type Config struct {
	Port     string
	PoolSize int

	// Registries the server can compare and migrate between, parsed from
	// SCHEMA_REGISTRIES as comma-separated name=url pairs.
	Registries []RegistryEntry

	RegistryTimeoutSeconds int
	RegistryRequestsPerSec float64
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                   envOr("SERVER_PORT", "8080"),
		PoolSize:               envInt("TASK_POOL_SIZE", 0),
		RegistryTimeoutSeconds: envInt("REGISTRY_TIMEOUT_SECONDS", 30),
		RegistryRequestsPerSec: envFloat("REGISTRY_REQUESTS_PER_SEC", 20),
	}

	raw := os.Getenv("SCHEMA_REGISTRIES")
	if raw == "" {
		return nil, fmt.Errorf("SCHEMA_REGISTRIES is required (comma-separated name=url pairs)")
	}
	entries, err := parseRegistries(raw)
	if err != nil {
		return nil, err
	}
	cfg.Registries = entries

	return cfg, nil
}

func parseRegistries(raw string) ([]RegistryEntry, error) {
	var entries []RegistryEntry
	seen := make(map[string]bool)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, url, ok := strings.Cut(pair, "=")
		if !ok || name == "" || url == "" {
			return nil, fmt.Errorf("invalid registry entry %q, expected name=url", pair)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate registry name %q", name)
		}
		seen[name] = true
		entries = append(entries, RegistryEntry{Name: name, BaseURL: url})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("SCHEMA_REGISTRIES contains no registry entries")
	}
	return entries, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
