package utils

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const defaultContentType = "application/octet-stream"

// DetectContentType returns the content type for an object key. The extension
// decides first; head (the leading bytes of the content, may be nil) is only
// sniffed when the extension is unknown.
func DetectContentType(key string, head []byte) string {
	if isTextLike(key) {
		return "text/plain; charset=utf-8"
	} else if mimeType := mime.TypeByExtension(filepath.Ext(key)); mimeType != "" {
		return mimeType
	}
	if len(head) > 0 {
		if mt := mimetype.Detect(head); mt != nil && mt.String() != "" {
			return mt.String()
		}
	}
	return defaultContentType
}

// MediaType is DetectContentType without parameters, e.g. "text/css".
func MediaType(key string, head []byte) string {
	ct := DetectContentType(key, head)
	if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
		return mediaType
	}
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		return strings.TrimSpace(ct[:i])
	}
	return ct
}

func isTextLike(key string) bool {
	return strings.HasSuffix(key, ".yaml") ||
		strings.HasSuffix(key, ".yml") ||
		strings.HasSuffix(key, ".toml") ||
		strings.HasSuffix(key, ".md")
}
