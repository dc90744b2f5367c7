// Package backends builds the configured storage backend.
package backends

import (
	"fmt"
	"log/slog"

	"github.com/openmined/syftsync/internal/storage"
	"github.com/openmined/syftsync/internal/storage/fsstore"
	"github.com/openmined/syftsync/internal/storage/gcsstore"
	"github.com/openmined/syftsync/internal/storage/memstore"
	"github.com/openmined/syftsync/internal/storage/miniostore"
	"github.com/openmined/syftsync/internal/storage/s3store"
)

// Config is the storage section of the configuration. Only the section named
// by Backend is read.
type Config struct {
	Backend    string            `mapstructure:"backend"`
	Location   string            `mapstructure:"location"`
	S3         s3store.Config    `mapstructure:"s3"`
	Minio      miniostore.Config `mapstructure:"minio"`
	GCS        gcsstore.Config   `mapstructure:"gcs"`
	Filesystem fsstore.Config    `mapstructure:"filesystem"`
}

func (c *Config) Validate() error {
	switch c.Backend {
	case storage.KindS3:
		return c.S3.Validate()
	case storage.KindMinio:
		return c.Minio.Validate()
	case storage.KindGCS:
		return c.GCS.Validate()
	case storage.KindFilesystem:
		return c.Filesystem.Validate()
	case storage.KindMemory:
		return nil
	case "":
		return fmt.Errorf("storage.backend is required")
	default:
		return fmt.Errorf("unknown storage backend %q", c.Backend)
	}
}

// Open returns the backend named by cfg.Backend. chunkSize is the multipart
// part size for the S3 family.
func Open(cfg *Config, chunkSize int64) (storage.Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case storage.KindS3:
		return s3store.New(&cfg.S3, cfg.Location, chunkSize), nil
	case storage.KindMinio:
		return miniostore.New(&cfg.Minio, cfg.Location, chunkSize), nil
	case storage.KindGCS:
		return gcsstore.New(&cfg.GCS, cfg.Location), nil
	case storage.KindFilesystem:
		return fsstore.New(&cfg.Filesystem, cfg.Location)
	default:
		return memstore.New(memstore.WithLocation(cfg.Location), memstore.WithChunkSize(chunkSize)), nil
	}
}

// GzipEnabled reports whether the selected backend stores compressible files
// gzipped.
func (c *Config) GzipEnabled() bool {
	switch c.Backend {
	case storage.KindS3:
		return c.S3.Gzip
	case storage.KindMinio:
		return c.Minio.Gzip
	case storage.KindGCS:
		return c.GCS.Gzip
	case storage.KindFilesystem:
		return c.Filesystem.Gzip
	default:
		return false
	}
}

// LogValue renders the selected backend section only.
func (c Config) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("backend", c.Backend),
		slog.String("location", c.Location),
	}
	switch c.Backend {
	case storage.KindS3:
		attrs = append(attrs, slog.Any("s3", c.S3))
	case storage.KindMinio:
		attrs = append(attrs, slog.Any("minio", c.Minio))
	case storage.KindGCS:
		attrs = append(attrs, slog.String("bucket", c.GCS.Bucket), slog.String("project_id", c.GCS.ProjectID))
	case storage.KindFilesystem:
		attrs = append(attrs, slog.String("root", c.Filesystem.Root))
	}
	return slog.GroupValue(attrs...)
}
