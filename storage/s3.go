package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/ruteri/certificate-ledger/cryptoutils"
	"github.com/ruteri/certificate-ledger/interfaces"
)

// S3Backend archives artifacts in Amazon S3 or a compatible service.
// Objects are keyed by the hex SHA-256 of their bytes.
type S3Backend struct {
	client      *s3.S3
	bucketName  string
	prefix      string
	region      string
	endpoint    string
	pathStyle   bool
	log         *slog.Logger
	locationURI string
}

// S3Options configures an S3Backend.
type S3Options struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PathStyle bool
}

// NewS3Backend creates a new S3 pinner.
// Without an explicit key pair the default AWS credential chain is used.
func NewS3Backend(opts S3Options, log *slog.Logger) (*S3Backend, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket is required", interfaces.ErrInvalidLocationURI)
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}

	uri := fmt.Sprintf("s3://%s/%s?region=%s", opts.Bucket, opts.Prefix, opts.Region)
	if opts.AccessKey != "" {
		uri = fmt.Sprintf("s3://%s:***@%s/%s?region=%s", opts.AccessKey, opts.Bucket, opts.Prefix, opts.Region)
	}
	if opts.Endpoint != "" {
		uri += fmt.Sprintf("&endpoint=%s", opts.Endpoint)
	}

	cfg := aws.Config{
		Region:           aws.String(opts.Region),
		S3ForcePathStyle: aws.Bool(opts.PathStyle),
	}
	if opts.Endpoint != "" {
		cfg.Endpoint = aws.String(opts.Endpoint)
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(opts.AccessKey, opts.SecretKey, "")
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Backend{
		client:      s3.New(sess),
		bucketName:  opts.Bucket,
		prefix:      strings.Trim(opts.Prefix, "/"),
		region:      opts.Region,
		endpoint:    strings.TrimSuffix(opts.Endpoint, "/"),
		pathStyle:   opts.PathStyle,
		log:         log,
		locationURI: uri,
	}, nil
}

// Pin uploads the artifact and returns s3://bucket/key as its address.
func (b *S3Backend) Pin(ctx context.Context, artifact io.ReadSeeker, name string) (interfaces.ContentAddress, error) {
	start := time.Now()

	offset, err := artifact.Seek(0, io.SeekCurrent)
	if err != nil {
		return "", fmt.Errorf("%w: %v", interfaces.ErrSourceRead, err)
	}
	digest, err := cryptoutils.Digest(artifact)
	if err != nil {
		return "", err
	}
	if _, err := artifact.Seek(offset, io.SeekStart); err != nil {
		return "", fmt.Errorf("%w: %v", interfaces.ErrSourceRead, err)
	}

	key := b.objectKey(digest.String())

	_, err = b.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(key),
		Body:   artifact,
		Metadata: map[string]*string{
			"Filename": aws.String(name),
		},
	})
	if err != nil {
		b.log.Error("Failed to upload artifact to S3",
			slog.String("bucket", b.bucketName),
			slog.String("key", key),
			"err", err,
			slog.Duration("duration", time.Since(start)))

		var reqErr awserr.RequestFailure
		if errors.As(err, &reqErr) {
			return "", fmt.Errorf("%w: s3: status %d: %s", interfaces.ErrPinningRejected, reqErr.StatusCode(), reqErr.Code())
		}
		return "", fmt.Errorf("%w: s3: %v", interfaces.ErrTransport, err)
	}

	b.log.Debug("Stored artifact in S3",
		slog.String("bucket", b.bucketName),
		slog.String("key", key),
		slog.String("name", name),
		slog.Duration("duration", time.Since(start)))

	return interfaces.ContentAddress(fmt.Sprintf("s3://%s/%s", b.bucketName, key)), nil
}

// ContentURL returns the HTTP URL of an object pinned by this backend.
func (b *S3Backend) ContentURL(addr interfaces.ContentAddress) string {
	key, ok := strings.CutPrefix(string(addr), fmt.Sprintf("s3://%s/", b.bucketName))
	if !ok {
		return ""
	}
	switch {
	case b.endpoint != "" && b.pathStyle:
		return fmt.Sprintf("%s/%s/%s", b.endpoint, b.bucketName, key)
	case b.endpoint != "":
		return fmt.Sprintf("%s/%s", b.endpoint, key)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", b.bucketName, b.region, key)
	}
}

// Available checks if the S3 backend is accessible by attempting to head the bucket.
func (b *S3Backend) Available(ctx context.Context) bool {
	start := time.Now()

	_, err := b.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucketName),
	})
	if err != nil {
		b.log.Warn("S3 backend unavailable",
			slog.String("bucket", b.bucketName),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return false
	}

	return true
}

// Name returns a unique identifier for this storage backend.
func (b *S3Backend) Name() string {
	return fmt.Sprintf("s3-%s", b.bucketName)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *S3Backend) LocationURI() string {
	return b.locationURI
}

func (b *S3Backend) objectKey(id string) string {
	if b.prefix == "" {
		return id
	}
	return path.Join(b.prefix, id)
}
