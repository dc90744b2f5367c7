// Package storage defines the object storage backends a sync run writes to.
package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
)

const (
	KindS3         = "s3"
	KindMinio      = "minio"
	KindGCS        = "gcs"
	KindFilesystem = "filesystem"
	KindMemory     = "memory"
)

var ErrNotFound = errors.New("object not found")

// Object is the payload of a Save. Body is read exactly once.
type Object struct {
	Body            io.Reader
	Size            int64
	ContentType     string
	ContentEncoding string
}

// Backend stores objects under Location. Names passed in and returned by
// List are relative to Location and always use forward slashes.
type Backend interface {
	Kind() string
	Location() string
	Save(ctx context.Context, name string, obj *Object) error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]string, error)
	// GzipEnabled reports whether compressible files are stored gzipped.
	GzipEnabled() bool
	Close() error
}

// LocalSource is a named local tree files are collected from. The name keys
// per-run memos, since not every fs.FS value is comparable.
type LocalSource struct {
	Name string
	FS   fs.FS
}

// ClientResetter is implemented by backends holding per-worker connections.
type ClientResetter interface {
	ResetClient(ctx context.Context)
}
