package hasher

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// DefaultChunkSize matches the S3 uploader's default part size and multipart
// threshold.
const DefaultChunkSize int64 = 8 << 20

// MD5Hex is the plain content hash form.
func MD5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// MultipartETag hashes data the way S3 reports the ETag of an object uploaded
// in parts of chunkSize bytes. A single part (or empty data) yields the plain
// md5; two or more yield md5(concat(md5(part_i)))-N.
func MultipartETag(data []byte, chunkSize int64) string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if int64(len(data)) <= chunkSize {
		return MD5Hex(data)
	}

	var digests []byte
	parts := 0
	for off := int64(0); off < int64(len(data)); off += chunkSize {
		end := off + chunkSize
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		sum := md5.Sum(data[off:end])
		digests = append(digests, sum[:]...)
		parts++
	}
	return fmt.Sprintf("%s-%d", MD5Hex(digests), parts)
}

// NormalizeDigest turns a remote digest into the canonical lower-case hex
// form: surrounding quotes are stripped and a base64 encoded md5 (as GCS and
// Content-MD5 headers carry it) is decoded. Multipart suffixes are kept.
func NormalizeDigest(digest string) string {
	d := strings.TrimSpace(digest)
	d = strings.TrimPrefix(d, "W/")
	d = strings.Trim(d, `"`)
	if d == "" {
		return ""
	}

	if isHex(d) || isMultipart(d) {
		return strings.ToLower(d)
	}
	if raw, err := base64.StdEncoding.DecodeString(d); err == nil && len(raw) == md5.Size {
		return hex.EncodeToString(raw)
	}
	return strings.ToLower(d)
}

func isHex(s string) bool {
	if len(s) != 2*md5.Size {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func isMultipart(s string) bool {
	hash, count, ok := strings.Cut(s, "-")
	if !ok || !isHex(hash) || count == "" {
		return false
	}
	for _, r := range count {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
