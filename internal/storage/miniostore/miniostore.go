// Package miniostore stores objects on a MinIO (or other S3 compatible)
// server through minio-go.
package miniostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/openmined/syftsync/internal/connscope"
	"github.com/openmined/syftsync/internal/hasher"
	"github.com/openmined/syftsync/internal/storage"
	"github.com/openmined/syftsync/internal/utils"
)

type Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
	Secure    bool   `mapstructure:"secure"`
	Gzip      bool   `mapstructure:"gzip"`
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("storage.minio.endpoint is required")
	}
	if c.Bucket == "" {
		return errors.New("storage.minio.bucket is required")
	}
	return nil
}

func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("endpoint", c.Endpoint),
		slog.String("bucket", c.Bucket),
		slog.String("access_key", utils.MaskSecret(c.AccessKey)),
		slog.String("secret_key", utils.MaskSecret(c.SecretKey)),
		slog.Bool("secure", c.Secure),
		slog.Bool("gzip", c.Gzip),
	)
}

type Backend struct {
	cfg       *Config
	location  string
	chunkSize int64
	clients   *connscope.Scope[*minio.Client]
}

var (
	_ storage.Backend        = (*Backend)(nil)
	_ storage.ClientResetter = (*Backend)(nil)
)

func New(cfg *Config, location string, chunkSize int64) *Backend {
	if chunkSize <= 0 {
		chunkSize = hasher.DefaultChunkSize
	}
	b := &Backend{
		cfg:       cfg,
		location:  strings.Trim(utils.ToSlashKey(location), "/"),
		chunkSize: chunkSize,
	}
	b.clients = connscope.New(b.newClient)
	return b
}

func (b *Backend) newClient(ctx context.Context) (*minio.Client, error) {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(b.cfg.Endpoint, "https://"), "http://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(b.cfg.AccessKey, b.cfg.SecretKey, ""),
		Secure: b.cfg.Secure,
		Region: b.cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	slog.Debug("minio client", "worker", connscope.WorkerID(ctx), "endpoint", endpoint)
	return client, nil
}

func (b *Backend) Kind() string      { return storage.KindMinio }
func (b *Backend) Location() string  { return b.location }
func (b *Backend) GzipEnabled() bool { return b.cfg.Gzip }
func (b *Backend) ChunkSize() int64  { return b.chunkSize }

func (b *Backend) Key(name string) string {
	return utils.JoinKey(b.location, name)
}

func (b *Backend) ResetClient(ctx context.Context) {
	b.clients.Reset(ctx)
}

// ETag returns the normalized ETag of name, or storage.ErrNotFound.
func (b *Backend) ETag(ctx context.Context, name string) (string, error) {
	client, err := b.clients.Get(ctx)
	if err != nil {
		return "", err
	}
	key := b.Key(name)
	info, err := client.StatObject(ctx, b.cfg.Bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return "", err
	}
	return hasher.NormalizeDigest(info.ETag), nil
}

func (b *Backend) Save(ctx context.Context, name string, obj *storage.Object) error {
	client, err := b.clients.Get(ctx)
	if err != nil {
		return err
	}
	key := b.Key(name)
	opts := minio.PutObjectOptions{
		ContentType:     obj.ContentType,
		ContentEncoding: obj.ContentEncoding,
		PartSize:        uint64(b.chunkSize),
		// a single part object must report a plain md5 etag
		DisableMultipart: obj.Size <= b.chunkSize,
	}
	if _, err := client.PutObject(ctx, b.cfg.Bucket, key, obj.Body, obj.Size, opts); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, name string) error {
	client, err := b.clients.Get(ctx)
	if err != nil {
		return err
	}
	key := b.Key(name)
	if err := client.RemoveObject(ctx, b.cfg.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (b *Backend) List(ctx context.Context) ([]string, error) {
	client, err := b.clients.Get(ctx)
	if err != nil {
		return nil, err
	}

	opts := minio.ListObjectsOptions{Recursive: true}
	if b.location != "" {
		opts.Prefix = b.location + "/"
	}

	var names []string
	for info := range client.ListObjects(ctx, b.cfg.Bucket, opts) {
		if info.Err != nil {
			return nil, fmt.Errorf("list %s: %w", b.cfg.Bucket, info.Err)
		}
		if name, ok := utils.TrimKeyLocation(b.location, info.Key); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

func (b *Backend) Close() error {
	return nil
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}
