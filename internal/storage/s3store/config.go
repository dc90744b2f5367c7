package s3store

import (
	"errors"
	"log/slog"

	"github.com/openmined/syftsync/internal/utils"
)

// Config is the s3 section of the storage configuration.
type Config struct {
	Bucket        string `mapstructure:"bucket"`
	Region        string `mapstructure:"region"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	Endpoint      string `mapstructure:"endpoint"`
	UseAccelerate bool   `mapstructure:"use_accelerate"`
	Gzip          bool   `mapstructure:"gzip"`
}

func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("storage.s3.bucket is required")
	}
	if c.Region == "" && c.Endpoint == "" {
		return errors.New("storage.s3.region or storage.s3.endpoint is required")
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return errors.New("storage.s3.access_key and storage.s3.secret_key must be set together")
	}
	return nil
}

// LogValue masks the credentials.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("bucket", c.Bucket),
		slog.String("region", c.Region),
		slog.String("endpoint", c.Endpoint),
		slog.String("access_key", utils.MaskSecret(c.AccessKey)),
		slog.String("secret_key", utils.MaskSecret(c.SecretKey)),
		slog.Bool("gzip", c.Gzip),
	)
}
