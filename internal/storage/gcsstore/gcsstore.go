// Package gcsstore stores objects in a Google Cloud Storage bucket.
package gcsstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	gcs "cloud.google.com/go/storage"
	"github.com/openmined/syftsync/internal/storage"
	"github.com/openmined/syftsync/internal/utils"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type Config struct {
	Bucket          string `mapstructure:"bucket"`
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
	Endpoint        string `mapstructure:"endpoint"`
	Gzip            bool   `mapstructure:"gzip"`
}

func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("storage.gcs.bucket is required")
	}
	return nil
}

// Backend shares one client between workers; the GCS client is safe for
// concurrent use.
type Backend struct {
	cfg      *Config
	location string

	once   sync.Once
	client *gcs.Client
	err    error
}

var _ storage.Backend = (*Backend)(nil)

func New(cfg *Config, location string) *Backend {
	return &Backend{
		cfg:      cfg,
		location: strings.Trim(utils.ToSlashKey(location), "/"),
	}
}

func (b *Backend) clientOptions() []option.ClientOption {
	var opts []option.ClientOption
	if b.cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(b.cfg.CredentialsFile))
	}
	if b.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(b.cfg.Endpoint), option.WithoutAuthentication())
	}
	return opts
}

func (b *Backend) bucket(ctx context.Context) (*gcs.BucketHandle, error) {
	b.once.Do(func() {
		b.client, b.err = gcs.NewClient(context.WithoutCancel(ctx), b.clientOptions()...)
		if b.err != nil {
			b.err = fmt.Errorf("gcs client: %w", b.err)
		}
	})
	if b.err != nil {
		return nil, b.err
	}
	return b.client.Bucket(b.cfg.Bucket), nil
}

func (b *Backend) Kind() string      { return storage.KindGCS }
func (b *Backend) Location() string  { return b.location }
func (b *Backend) GzipEnabled() bool { return b.cfg.Gzip }

func (b *Backend) Key(name string) string {
	return utils.JoinKey(b.location, name)
}

// MD5 returns the hex md5 GCS recorded for name, or storage.ErrNotFound.
// Composite objects carry no md5 and report an empty digest.
func (b *Backend) MD5(ctx context.Context, name string) (string, error) {
	bkt, err := b.bucket(ctx)
	if err != nil {
		return "", err
	}
	key := b.Key(name)
	attrs, err := bkt.Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return "", fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return "", err
	}
	return hex.EncodeToString(attrs.MD5), nil
}

func (b *Backend) Save(ctx context.Context, name string, obj *storage.Object) error {
	bkt, err := b.bucket(ctx)
	if err != nil {
		return err
	}
	key := b.Key(name)

	// cancelling wctx is the only way to abort an upload; Close would
	// finalize whatever was written so far
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := bkt.Object(key).NewWriter(wctx)
	w.ContentType = obj.ContentType
	w.ContentEncoding = obj.ContentEncoding
	if _, err := io.Copy(w, obj.Body); err != nil {
		cancel()
		_ = w.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, name string) error {
	bkt, err := b.bucket(ctx)
	if err != nil {
		return err
	}
	key := b.Key(name)
	if err := bkt.Object(key).Delete(ctx); err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (b *Backend) List(ctx context.Context) ([]string, error) {
	bkt, err := b.bucket(ctx)
	if err != nil {
		return nil, err
	}

	query := &gcs.Query{}
	if b.location != "" {
		query.Prefix = b.location + "/"
	}
	if err := query.SetAttrSelection([]string{"Name"}); err != nil {
		return nil, err
	}

	var names []string
	it := bkt.Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", b.cfg.Bucket, err)
		}
		if name, ok := utils.TrimKeyLocation(b.location, attrs.Name); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

func (b *Backend) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}
