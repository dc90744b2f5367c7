// Package s3store stores objects in an S3 bucket (or an S3 compatible
// endpoint) with the aws-sdk-go-v2 client.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/openmined/syftsync/internal/connscope"
	"github.com/openmined/syftsync/internal/hasher"
	"github.com/openmined/syftsync/internal/storage"
	"github.com/openmined/syftsync/internal/utils"
)

type Backend struct {
	cfg       *Config
	location  string
	chunkSize int64
	clients   *connscope.Scope[*s3.Client]

	mu        sync.Mutex
	awsCfg    *aws.Config
	transport *http.Transport
}

var (
	_ storage.Backend        = (*Backend)(nil)
	_ storage.ClientResetter = (*Backend)(nil)
)

// New returns a backend writing under location in cfg.Bucket. Objects larger
// than chunkSize are uploaded in chunkSize parts, which is what the chunked
// hasher assumes.
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

// awsConfig loads the shared aws config once. Every worker client is built
// from it, so all of them share one http connection pool.
func (b *Backend) awsConfig(ctx context.Context) (aws.Config, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.awsCfg != nil {
		return *b.awsCfg, nil
	}

	// a buildable client lets the sdk apply AWS_CA_BUNDLE and friends
	httpClient := awshttp.NewBuildableClient().
		WithTimeout(5 * time.Minute).
		WithTransportOptions(func(tr *http.Transport) {
			tr.Proxy = http.ProxyFromEnvironment
			tr.MaxIdleConns = 100
			tr.MaxIdleConnsPerHost = 20
			tr.IdleConnTimeout = 90 * time.Second
			tr.TLSHandshakeTimeout = 10 * time.Second
			tr.ExpectContinueTimeout = 1 * time.Second
			tr.ForceAttemptHTTP2 = true
		})

	opts := []func(*config.LoadOptions) error{
		config.WithHTTPClient(httpClient),
	}
	if b.cfg.Region != "" {
		opts = append(opts, config.WithRegion(b.cfg.Region))
	} else {
		opts = append(opts, config.WithRegion("us-east-1"))
	}
	if b.cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(b.cfg.AccessKey, b.cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	// the sdk has applied the ca bundle to the buildable transport by now;
	// pin it so every worker client dials through the same pool
	if buildable, ok := awsCfg.HTTPClient.(*awshttp.BuildableClient); ok {
		b.transport = buildable.GetTransport()
		awsCfg.HTTPClient = &http.Client{
			Transport: b.transport,
			Timeout:   buildable.GetTimeout(),
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	b.awsCfg = &awsCfg
	return awsCfg, nil
}

func (b *Backend) newClient(ctx context.Context) (*s3.Client, error) {
	awsCfg, err := b.awsConfig(ctx)
	if err != nil {
		return nil, err
	}

	slog.Debug("s3 client", "worker", connscope.WorkerID(ctx), "bucket", b.cfg.Bucket)
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if b.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(b.cfg.Endpoint)
			o.UsePathStyle = true
		}
		if b.cfg.UseAccelerate {
			o.UseAccelerate = true
		}
		// flexible checksums would change nothing about the etag but force
		// seekable bodies on plain http endpoints
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	}), nil
}

func (b *Backend) Kind() string      { return storage.KindS3 }
func (b *Backend) Location() string  { return b.location }
func (b *Backend) GzipEnabled() bool { return b.cfg.Gzip }
func (b *Backend) ChunkSize() int64  { return b.chunkSize }
func (b *Backend) Bucket() string    { return b.cfg.Bucket }

// Key maps a storage name to the bucket key.
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
	resp, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &b.cfg.Bucket,
		Key:    &key,
	})
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return "", err
	}
	return hasher.NormalizeDigest(aws.ToString(resp.ETag)), nil
}

func (b *Backend) Save(ctx context.Context, name string, obj *storage.Object) error {
	client, err := b.clients.Get(ctx)
	if err != nil {
		return err
	}
	key := b.Key(name)

	if obj.Size > b.chunkSize {
		return b.saveMultipart(ctx, client, key, obj)
	}

	input := &s3.PutObjectInput{
		Bucket:        &b.cfg.Bucket,
		Key:           &key,
		Body:          obj.Body,
		ContentLength: aws.Int64(obj.Size),
	}
	setContentHeaders(input, obj)
	if _, err := client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func setContentHeaders(input *s3.PutObjectInput, obj *storage.Object) {
	if obj.ContentType != "" {
		input.ContentType = aws.String(obj.ContentType)
	}
	if obj.ContentEncoding != "" {
		input.ContentEncoding = aws.String(obj.ContentEncoding)
	}
}

func (b *Backend) saveMultipart(ctx context.Context, client *s3.Client, key string, obj *storage.Object) error {
	create := &s3.CreateMultipartUploadInput{
		Bucket: &b.cfg.Bucket,
		Key:    &key,
	}
	if obj.ContentType != "" {
		create.ContentType = aws.String(obj.ContentType)
	}
	if obj.ContentEncoding != "" {
		create.ContentEncoding = aws.String(obj.ContentEncoding)
	}

	upload, err := client.CreateMultipartUpload(ctx, create)
	if err != nil {
		return fmt.Errorf("create multipart upload %s: %w", key, err)
	}

	parts, err := b.uploadParts(ctx, client, key, upload.UploadId, obj.Body)
	if err != nil {
		_, abortErr := client.AbortMultipartUpload(context.WithoutCancel(ctx), &s3.AbortMultipartUploadInput{
			Bucket:   &b.cfg.Bucket,
			Key:      &key,
			UploadId: upload.UploadId,
		})
		return errors.Join(err, abortErr)
	}

	_, err = client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   &b.cfg.Bucket,
		Key:      &key,
		UploadId: upload.UploadId,
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: parts,
		},
	})
	if err != nil {
		return fmt.Errorf("complete multipart upload %s: %w", key, err)
	}
	return nil
}

func (b *Backend) uploadParts(ctx context.Context, client *s3.Client, key string, uploadID *string, body io.Reader) ([]types.CompletedPart, error) {
	var parts []types.CompletedPart
	buf := make([]byte, b.chunkSize)
	for partNumber := int32(1); ; partNumber++ {
		n, err := io.ReadFull(body, buf)
		if n > 0 {
			resp, upErr := client.UploadPart(ctx, &s3.UploadPartInput{
				Bucket:        &b.cfg.Bucket,
				Key:           &key,
				UploadId:      uploadID,
				PartNumber:    aws.Int32(partNumber),
				Body:          bytes.NewReader(buf[:n]),
				ContentLength: aws.Int64(int64(n)),
			})
			if upErr != nil {
				return nil, fmt.Errorf("upload part %d of %s: %w", partNumber, key, upErr)
			}
			parts = append(parts, types.CompletedPart{
				ETag:       resp.ETag,
				PartNumber: aws.Int32(partNumber),
			})
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return parts, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read part %d of %s: %w", partNumber, key, err)
		}
	}
}

func (b *Backend) Delete(ctx context.Context, name string) error {
	client, err := b.clients.Get(ctx)
	if err != nil {
		return err
	}
	key := b.Key(name)
	if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &b.cfg.Bucket,
		Key:    &key,
	}); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (b *Backend) List(ctx context.Context) ([]string, error) {
	etags, err := b.ListETags(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(etags))
	for name := range etags {
		names = append(names, name)
	}
	return names, nil
}

// ListETags returns the normalized ETag of every object under Location, keyed
// by storage name.
func (b *Backend) ListETags(ctx context.Context) (map[string]string, error) {
	client, err := b.clients.Get(ctx)
	if err != nil {
		return nil, err
	}

	input := &s3.ListObjectsV2Input{Bucket: &b.cfg.Bucket}
	if b.location != "" {
		input.Prefix = aws.String(b.location + "/")
	}

	etags := make(map[string]string)
	paginator := s3.NewListObjectsV2Paginator(client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", b.cfg.Bucket, err)
		}
		for _, obj := range page.Contents {
			name, ok := utils.TrimKeyLocation(b.location, aws.ToString(obj.Key))
			if !ok {
				continue
			}
			etags[name] = hasher.NormalizeDigest(aws.ToString(obj.ETag))
		}
	}
	return etags, nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.transport != nil {
		b.transport.CloseIdleConnections()
	}
	return nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
