package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration with precedence CLI flags > environment > config
// file > defaults. Flag overrides are applied by the caller after Load.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Defaults must match Default()
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 50061)
	v.SetDefault("audit.log_path", "./data/audit/decisions.jsonl")
	v.SetDefault("audit.max_size_mb", 100)
	v.SetDefault("audit.max_backups", 10)
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.ttl", "30s")
	v.SetDefault("listing.default_page_size", 20)
	v.SetDefault("listing.max_page_size", 200)

	v.SetEnvPrefix("ADJ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Connection strings carry credentials and are environment-only
	// (ADJ_DATABASE_URL); a config file copy would end up in version control.
	if v.InConfig("database.url") {
		return nil, fmt.Errorf("database URL not allowed in config files (use ADJ_DATABASE_URL environment variable)")
	}

	cfg := &Config{
		Host:            v.GetString("server.host"),
		Port:            v.GetInt("server.port"),
		DatabaseURL:     v.GetString("database.url"),
		AuditLogPath:    v.GetString("audit.log_path"),
		AuditMaxSizeMB:  v.GetInt("audit.max_size_mb"),
		AuditMaxBackups: v.GetInt("audit.max_backups"),
		RedisAddr:       v.GetString("cache.redis_addr"),
		CacheTTL:        v.GetDuration("cache.ttl"),
		DefaultPageSize: v.GetInt("listing.default_page_size"),
		MaxPageSize:     v.GetInt("listing.max_page_size"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
