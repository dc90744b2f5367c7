package hasher

import (
	"bytes"
	"fmt"
	"slices"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/openmined/syftsync/internal/utils"
)

const DefaultGzipLevel = gzip.DefaultCompression

// DefaultCompressibleTypes are the media types gzipped before upload when
// compression is enabled.
var DefaultCompressibleTypes = []string{
	"text/css",
	"text/javascript",
	"application/javascript",
	"application/json",
	"application/xml",
	"text/xml",
	"text/html",
	"text/plain",
	"image/svg+xml",
}

// Gzip compresses data deterministically: no file name and an epoch mtime, so
// equal input and level always give equal bytes. The upload path and the
// hasher must both go through this function.
func Gzip(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("gzip level %d: %w", level, err)
	}
	// a zero time.Time would be written as its truncated unix seconds
	zw.ModTime = time.Unix(0, 0)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Compression describes which files are gzipped before upload.
type Compression struct {
	Enabled      bool     `mapstructure:"enabled"`
	Level        int      `mapstructure:"level"`
	ContentTypes []string `mapstructure:"content_types"`
}

func (c Compression) Validate() error {
	if c.Level < gzip.HuffmanOnly || c.Level > gzip.BestCompression {
		return fmt.Errorf("compression.level %d out of range [%d, %d]", c.Level, gzip.HuffmanOnly, gzip.BestCompression)
	}
	return nil
}

// Applies reports whether the file at path is gzipped before upload. head is
// the leading content, used only when the extension says nothing.
func (c Compression) Applies(path string, head []byte) bool {
	if !c.Enabled {
		return false
	}
	types := c.ContentTypes
	if len(types) == 0 {
		types = DefaultCompressibleTypes
	}
	return slices.Contains(types, utils.MediaType(path, head))
}
