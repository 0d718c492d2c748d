package registration

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"persistkit/internal/behavior"
	"persistkit/internal/dbcontext"
	"persistkit/internal/infrastructure/storage"
	"persistkit/pkg/logger"
)

// Config is the file form of Options plus the optional custom units.
//
//	provider: postgres
//	database:
//	  dsn: ${DATABASE_URL}
//	  max_conns: 20
//	pooling:
//	  enabled: true
//	  size: 256
//	audit:
//	  enabled: true
//	rules:
//	  - entity: Product
//	    name: price-positive
//	    expr: row.price > 0.0
type Config struct {
	Provider      string             `yaml:"provider"`
	Database      storage.PoolConfig `yaml:"database"`
	Pooling       PoolingConfig      `yaml:"pooling"`
	EnsureCreated bool               `yaml:"ensure_created"`
	Audit         AuditConfig        `yaml:"audit"`
	Rules         []behavior.Rule    `yaml:"rules"`
	Logger        logger.Config      `yaml:"logger"`
}

type PoolingConfig struct {
	Enabled bool `yaml:"enabled"`
	Size    int  `yaml:"size"`
}

type AuditConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Table             string `yaml:"table"`
	CompressThreshold int    `yaml:"compress_threshold"`
}

// LoadConfig reads a YAML file. ${VAR} references are expanded from the
// environment before parsing.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration over the defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{
		Provider: storage.Postgres.Name,
		Logger:   logger.Config{Level: "info"},
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	defaults := storage.DefaultPoolConfig(cfg.Database.DSN)
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = defaults.MaxConns
	}
	if cfg.Database.MinConns == 0 {
		cfg.Database.MinConns = defaults.MinConns
	}
	if cfg.Database.MaxConnLifetime == 0 {
		cfg.Database.MaxConnLifetime = defaults.MaxConnLifetime
	}
	if cfg.Database.MaxConnIdleTime == 0 {
		cfg.Database.MaxConnIdleTime = defaults.MaxConnIdleTime
	}
	if cfg.Database.HealthCheckPeriod == 0 {
		cfg.Database.HealthCheckPeriod = defaults.HealthCheckPeriod
	}
	if cfg.Database.ApplicationName == "" {
		cfg.Database.ApplicationName = defaults.ApplicationName
	}
	return cfg, nil
}

// Options turns the file into an options builder, building the audit trail
// and rule units it enables.
func (c *Config) Options() (*OptionsBuilder, error) {
	b := NewOptions().UseProvider(c.Provider, c.Database.DSN)
	if b.err != nil {
		return nil, b.err
	}
	pool := c.Database
	b.WithPoolConfig(func(cfg *storage.PoolConfig) { *cfg = pool })
	if c.Pooling.Enabled {
		b.WithPooling(c.Pooling.Size)
	}
	if c.EnsureCreated {
		b.EnsureCreated()
	}

	var custom []dbcontext.Behavior
	if c.Audit.Enabled {
		var opts []behavior.AuditOption
		if c.Audit.Table != "" {
			opts = append(opts, behavior.WithAuditTable(c.Audit.Table))
		}
		if c.Audit.CompressThreshold > 0 {
			opts = append(opts, behavior.WithCompressThreshold(c.Audit.CompressThreshold))
		}
		audit, err := behavior.NewAuditTrail(opts...)
		if err != nil {
			return nil, err
		}
		custom = append(custom, audit)
	}
	if len(c.Rules) > 0 {
		rules, err := behavior.NewRules(c.Rules...)
		if err != nil {
			return nil, fmt.Errorf("config rules: %w", err)
		}
		custom = append(custom, rules)
	}
	return b.AddBehaviors(custom...), nil
}
