package hashcache

import (
	"context"
	"fmt"
	"time"
)

const (
	BackendMemory    = "memory"
	BackendSqlite    = "sqlite"
	BackendFirestore = "firestore"
	BackendNone      = "none"
)

// Config selects and tunes the cache backend.
type Config struct {
	Backend    string        `mapstructure:"backend"`
	KeyPrefix  string        `mapstructure:"key_prefix"`
	TTL        time.Duration `mapstructure:"ttl"`
	Size       int           `mapstructure:"size"`
	Path       string        `mapstructure:"path"`
	ProjectID  string        `mapstructure:"project_id"`
	Collection string        `mapstructure:"collection"`
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendNone:
	case BackendSqlite:
		if c.Path == "" {
			return fmt.Errorf("cache.path is required for the %s backend", c.Backend)
		}
	case BackendFirestore:
		if c.ProjectID == "" {
			return fmt.Errorf("cache.project_id is required for the %s backend", c.Backend)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}
	if c.Size < 0 {
		return fmt.Errorf("cache.size must be >= 0")
	}
	if c.TTL < 0 {
		return fmt.Errorf("cache.ttl must be >= 0")
	}
	return nil
}

// Prefix returns the configured key prefix or DefaultKeyPrefix.
func (c *Config) Prefix() string {
	if c.KeyPrefix == "" {
		return DefaultKeyPrefix
	}
	return c.KeyPrefix
}

// Open builds the configured backend.
func Open(ctx context.Context, cfg *Config) (Cache, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryCache(cfg.Size, cfg.TTL), nil
	case BackendSqlite:
		return NewSqliteCache(cfg.Path, cfg.TTL)
	case BackendFirestore:
		return NewFirestoreCache(ctx, cfg.ProjectID, cfg.Collection, cfg.TTL)
	case BackendNone:
		return NoneCache{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
