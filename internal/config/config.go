// Package config holds the process-wide settings of a syftsync run.
package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/openmined/syftsync/internal/collect"
	"github.com/openmined/syftsync/internal/hashcache"
	"github.com/openmined/syftsync/internal/hasher"
	"github.com/openmined/syftsync/internal/storage"
	"github.com/openmined/syftsync/internal/storage/backends"
	"github.com/openmined/syftsync/internal/utils"
	"github.com/spf13/viper"
)

var (
	home, _          = os.UserHomeDir()
	DefaultDir       = filepath.Join(home, ".syftsync")
	DefaultLockPath  = filepath.Join(DefaultDir, "syftsync.lock")
	DefaultCachePath = filepath.Join(DefaultDir, "hashcache.db")
)

const (
	DefaultCacheSize = 10000
	// minPartSize is the smallest part S3 accepts in a multipart upload.
	minPartSize = 5 << 20
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Enabled            bool                   `mapstructure:"enabled"`
	Debug              bool                   `mapstructure:"debug"`
	Threads            int                    `mapstructure:"threads"`
	Strategy           string                 `mapstructure:"strategy"`
	MultipartChunkSize int64                  `mapstructure:"multipart_chunk_size"`
	Manifest           string                 `mapstructure:"manifest"`
	Sources            []collect.SourceConfig `mapstructure:"sources"`
	Ignore             []string               `mapstructure:"ignore"`
	Include            []string               `mapstructure:"include"`
	Keep               []string               `mapstructure:"keep"`
	Cache              hashcache.Config       `mapstructure:"cache"`
	Compression        hasher.Compression     `mapstructure:"compression"`
	Storage            backends.Config        `mapstructure:"storage"`
	LockPath           string                 `mapstructure:"lock_path"`
	LogFile            string                 `mapstructure:"log_file"`

	// Path is the config file the values were read from, if any.
	Path string `mapstructure:"-"`
}

// Default returns a config with every default applied and no sources.
func Default() *Config {
	return &Config{
		Enabled:            true,
		MultipartChunkSize: hasher.DefaultChunkSize,
		Cache: hashcache.Config{
			Backend:   hashcache.BackendMemory,
			KeyPrefix: hashcache.DefaultKeyPrefix,
			Size:      DefaultCacheSize,
		},
		Compression: hasher.Compression{
			Level: hasher.DefaultGzipLevel,
		},
		Storage: backends.Config{
			Backend: storage.KindFilesystem,
		},
		LockPath: DefaultLockPath,
	}
}

// SetDefaults registers the defaults with v. Keys only become visible to
// environment lookups once they have a default.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("enabled", d.Enabled)
	v.SetDefault("debug", d.Debug)
	v.SetDefault("threads", d.Threads)
	v.SetDefault("strategy", d.Strategy)
	v.SetDefault("multipart_chunk_size", d.MultipartChunkSize)
	v.SetDefault("manifest", d.Manifest)
	v.SetDefault("lock_path", d.LockPath)
	v.SetDefault("log_file", d.LogFile)

	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.key_prefix", d.Cache.KeyPrefix)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.size", d.Cache.Size)
	v.SetDefault("cache.path", DefaultCachePath)
	v.SetDefault("cache.project_id", "")
	v.SetDefault("cache.collection", hashcache.DefaultCollection)

	v.SetDefault("compression.enabled", d.Compression.Enabled)
	v.SetDefault("compression.level", d.Compression.Level)

	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.location", "")
	for _, key := range []string{
		"s3.bucket", "s3.region", "s3.access_key", "s3.secret_key", "s3.endpoint",
		"minio.endpoint", "minio.bucket", "minio.access_key", "minio.secret_key", "minio.region",
		"gcs.bucket", "gcs.project_id", "gcs.credentials_file", "gcs.endpoint",
		"filesystem.root",
	} {
		v.SetDefault("storage."+key, "")
	}
	for _, key := range []string{"s3.use_accelerate", "s3.gzip", "minio.secure", "minio.gzip", "gcs.gzip", "filesystem.gzip"} {
		v.SetDefault("storage."+key, false)
	}
}

// Load decodes v into a validated Config.
func Load(v *viper.Viper) (*Config, error) {
	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode is Load without validation, for commands that only need one section.
func Decode(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	cfg.Path = v.ConfigFileUsed()
	return cfg, nil
}

// Validate checks the config and resolves local paths to absolute ones.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Threads < 0 {
		return fmt.Errorf("threads must be >= 0, got %d", c.Threads)
	}
	if c.MultipartChunkSize <= 0 {
		return fmt.Errorf("multipart_chunk_size must be > 0, got %d", c.MultipartChunkSize)
	}
	if c.usesMultipart() && c.MultipartChunkSize < minPartSize {
		return fmt.Errorf("multipart_chunk_size must be at least %d for the %s backend", minPartSize, c.Storage.Backend)
	}

	if len(c.Sources) == 0 {
		return errors.New("at least one source is required")
	}
	for i := range c.Sources {
		src := &c.Sources[i]
		if src.Dir == "" {
			return fmt.Errorf("sources[%d].dir is required", i)
		}
		dir, err := utils.ResolvePath(src.Dir)
		if err != nil {
			return fmt.Errorf("sources[%d].dir: %w", i, err)
		}
		src.Dir = dir
		src.Prefix = strings.Trim(utils.ToSlashKey(src.Prefix), "/")
	}

	if c.Manifest != "" {
		c.Manifest = strings.TrimPrefix(utils.ToSlashKey(c.Manifest), "/")
		if c.Manifest == "" || path.Clean(c.Manifest) != c.Manifest {
			return fmt.Errorf("manifest %q is not a clean storage name", c.Manifest)
		}
	}

	for _, list := range [][]string{c.Include, c.Keep} {
		for _, pattern := range list {
			if !doublestar.ValidatePattern(pattern) {
				return fmt.Errorf("invalid pattern %q", pattern)
			}
		}
	}

	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if c.Cache.Backend == hashcache.BackendSqlite {
		p, err := utils.ResolvePath(c.Cache.Path)
		if err != nil {
			return fmt.Errorf("cache.path: %w", err)
		}
		c.Cache.Path = p
	}
	if err := c.Compression.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if c.Storage.Backend == storage.KindFilesystem {
		root, err := utils.ResolvePath(c.Storage.Filesystem.Root)
		if err != nil {
			return fmt.Errorf("storage.filesystem.root: %w", err)
		}
		c.Storage.Filesystem.Root = root
	}

	for _, p := range []*string{&c.LockPath, &c.LogFile} {
		if *p == "" {
			continue
		}
		abs, err := utils.ResolvePath(*p)
		if err != nil {
			return err
		}
		*p = abs
	}
	return nil
}

func (c *Config) usesMultipart() bool {
	return c.Storage.Backend == storage.KindS3 || c.Storage.Backend == storage.KindMinio
}

// Warnings lists settings that are valid but probably not what was meant.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Enabled && c.Cache.Backend == hashcache.BackendMemory {
		warnings = append(warnings, "cache.backend is memory: remote hashes are fetched again on every run, use sqlite or firestore to keep them")
	}
	if c.usesMultipart() && c.MultipartChunkSize != hasher.DefaultChunkSize {
		warnings = append(warnings, fmt.Sprintf("multipart_chunk_size is %d, objects uploaded by other tools with the default %d byte parts will never match", c.MultipartChunkSize, hasher.DefaultChunkSize))
	}
	if c.Compression.Enabled && !c.Storage.GzipEnabled() {
		warnings = append(warnings, fmt.Sprintf("compression is enabled but storage.%s.gzip is off, files are uploaded uncompressed", c.Storage.Backend))
	}
	if c.Strategy != "" && !c.Enabled {
		warnings = append(warnings, "strategy is set but enabled is false, every file is copied")
	}
	return warnings
}
