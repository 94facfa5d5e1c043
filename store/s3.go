package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sandeepkandula/blobsync/sync"
)

// S3Config selects the bucket endpoint and credentials. Empty AccessKey
// falls back to the SDK's default chain (env, shared config, IMDS), the
// managed-identity path.
type S3Config struct {
	Region    string
	Endpoint  string // optional, for MinIO-style stores
	AccessKey string
	SecretKey string
}

// NewS3Client builds an S3 client from the config.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// S3Store reads and writes one bucket, optionally under a fixed key prefix.
// It serves as both a sync source and a sync target.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

func NewS3Store(client *s3.Client, bucket, prefix string) *S3Store {
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
	}
}

func (s *S3Store) fullKey(rel string) string {
	rel = strings.TrimPrefix(rel, "/")
	if s.prefix == "" {
		return rel
	}
	return strings.TrimSuffix(s.prefix, "/") + "/" + rel
}

func (s *S3Store) relKey(full string) string {
	if s.prefix == "" {
		return full
	}
	return strings.TrimPrefix(full, strings.TrimSuffix(s.prefix, "/")+"/")
}

// List returns every object under the store prefix whose relative key starts
// with prefix. Marker blobs come back flagged as placeholders with their
// store last-modified metadata.
func (s *S3Store) List(ctx context.Context, prefix string) ([]sync.Object, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.fullKey(prefix)),
	})

	var objects []sync.Object
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			rel := s.relKey(aws.ToString(obj.Key))
			size := aws.ToInt64(obj.Size)
			objects = append(objects, sync.Object{
				Path:        rel,
				Size:        size,
				ModTime:     aws.ToTime(obj.LastModified),
				Placeholder: size == 0 && sync.IsPlaceholderPath(rel),
			})
		}
	}
	return objects, nil
}

func (s *S3Store) Open(ctx context.Context, rel string) (io.ReadCloser, int64, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(rel)),
	})
	if err != nil {
		return nil, 0, err
	}
	return out.Body, aws.ToInt64(out.ContentLength), nil
}

func (s *S3Store) Put(ctx context.Context, rel string, r io.Reader, size int64, modTime time.Time, metadata map[string]string) error {
	md := map[string]string{
		"mtime": strconv.FormatInt(modTime.Unix(), 10),
		"size":  strconv.FormatInt(size, 10),
	}
	for k, v := range metadata {
		md[k] = v
	}
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(s.fullKey(rel)),
		Body:     r,
		Metadata: md,
	})
	return err
}

func (s *S3Store) Delete(ctx context.Context, rel string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(rel)),
	})
	return err
}

// EnsureFolder uploads the folder's zero-byte marker unless it already
// exists. Idempotent.
func (s *S3Store) EnsureFolder(ctx context.Context, folder string) error {
	marker := sync.PlaceholderFor(folder)
	exists, err := s.exists(ctx, marker)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.fullKey(marker)),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
	})
	return err
}

func (s *S3Store) exists(ctx context.Context, rel string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(rel)),
	})
	if err != nil {
		var re *awshttp.ResponseError
		if errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
