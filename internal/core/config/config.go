// Package config provides configuration management for the adjudicator
// service.
package config

import (
	"fmt"
	"time"
)

// Config holds service configuration. Database URLs carry credentials and
// are environment-only; everything else may come from a config file.
type Config struct {
	Host string
	Port int

	DatabaseURL string

	AuditLogPath    string
	AuditMaxSizeMB  int
	AuditMaxBackups int

	RedisAddr string
	CacheTTL  time.Duration

	DefaultPageSize int
	MaxPageSize     int
}

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            50061,
		AuditLogPath:    "./data/audit/decisions.jsonl",
		AuditMaxSizeMB:  100,
		AuditMaxBackups: 10,
		CacheTTL:        30 * time.Second,
		DefaultPageSize: 20,
		MaxPageSize:     200,
	}
}

// Validate checks ranges and positivity. The database URL is checked at
// connection time, not here, so migrate-only invocations can skip it.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.AuditLogPath == "" {
		return fmt.Errorf("audit_log_path must not be empty")
	}
	if c.AuditMaxSizeMB <= 0 {
		return fmt.Errorf("audit_max_size_mb must be positive, got %d", c.AuditMaxSizeMB)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be positive, got %v", c.CacheTTL)
	}
	if c.DefaultPageSize <= 0 || c.MaxPageSize <= 0 || c.DefaultPageSize > c.MaxPageSize {
		return fmt.Errorf("page sizes must be positive and default <= max, got %d/%d", c.DefaultPageSize, c.MaxPageSize)
	}
	return nil
}
