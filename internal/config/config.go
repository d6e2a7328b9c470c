package config

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// PoolConfig describes one upstream mining pool.
type PoolConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Name string `yaml:"name"`
}

// TunnelConfig describes one local listener relaying to a named pool.
type TunnelConfig struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
	Pool string `yaml:"pool"`
}

// DatabaseConfig holds the Postgres connection parameters the persistence
// layer builds its DSN from.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

// Config is the full contents of config.yml.
type Config struct {
	Pools    map[string]PoolConfig   `yaml:"pools"`
	Tunnels  map[string]TunnelConfig `yaml:"tunnels"`
	APIPort  int                     `yaml:"api_port"`
	Database DatabaseConfig          `yaml:"database"`
	RedisURL string                  `yaml:"redis_url,omitempty"`
}

// Default returns the one-pool, one-tunnel configuration written to disk
// the first time the process runs without a config.yml.
func Default() *Config {
	return &Config{
		Pools: map[string]PoolConfig{
			"pool1": {Host: "pool.example.com", Port: 4444, Name: "Example Pool"},
		},
		Tunnels: map[string]TunnelConfig{
			"tunnel1": {IP: "0.0.0.0", Port: 3333, Pool: "pool1"},
		},
		APIPort: 8080,
		Database: DatabaseConfig{
			Host:   "localhost",
			Port:   5432,
			User:   "postgres",
			DBName: "mining_tunnel",
		},
	}
}

// LoadOrCreate reads path as YAML, or, if it does not exist, writes out
// Default() and returns that so a fresh deployment starts with a working
// template to edit.
func LoadOrCreate(path string) (*Config, error) {
	var cfg *Config

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		cfg = Default()
		out, marshalErr := yaml.Marshal(cfg)
		if marshalErr != nil {
			return nil, fmt.Errorf("config: failed to marshal default config: %w", marshalErr)
		}
		if writeErr := os.WriteFile(path, out, 0o644); writeErr != nil {
			return nil, fmt.Errorf("config: failed to write default config to %s: %w", path, writeErr)
		}
		log.Printf("[INFO] config: created default %s", path)
	case err != nil:
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	default:
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	// Env vars take precedence over the file regardless of which branch
	// above produced cfg, so a fresh deployment with no checked-in
	// config.yml still picks up TUNNEL_DB_*/TUNNEL_REDIS_URL.
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides layers environment variables over the database and
// Redis settings, the fields operators most often need to change per
// deployment without touching a checked-in file.
func applyEnvOverrides(cfg *Config) {
	cfg.Database.Host = GetEnv("TUNNEL_DB_HOST", cfg.Database.Host)
	cfg.Database.Port = GetEnvInt("TUNNEL_DB_PORT", cfg.Database.Port)
	cfg.Database.User = GetEnv("TUNNEL_DB_USER", cfg.Database.User)
	cfg.Database.Password = GetEnv("TUNNEL_DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DBName = GetEnv("TUNNEL_DB_NAME", cfg.Database.DBName)
	cfg.RedisURL = GetEnv("TUNNEL_REDIS_URL", cfg.RedisURL)
}

// Validate checks cross-field invariants that YAML unmarshaling alone
// can't enforce: every tunnel's pool reference must resolve.
func (c *Config) Validate() error {
	for tunnelID, t := range c.Tunnels {
		if _, ok := c.Pools[t.Pool]; !ok {
			return fmt.Errorf("config: tunnel %q references unknown pool %q", tunnelID, t.Pool)
		}
	}
	return nil
}
