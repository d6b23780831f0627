package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/goldengai/venuesync/internal/config"
	"github.com/goldengai/venuesync/internal/models"
	"github.com/google/uuid"
)

const s3Scheme = "s3://"

// s3API is the part of the S3 client the blob store uses
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3BlobStore keeps venue photos in an S3 compatible bucket
type S3BlobStore struct {
	client s3API
	bucket string
	now    func() time.Time
}

// NewS3BlobStore builds a client from static credentials, or the default
// AWS chain when no keys are configured
func NewS3BlobStore(ctx context.Context, cfg config.S3) (*S3BlobStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3BlobStore(client, cfg.Bucket), nil
}

func newS3BlobStore(client s3API, bucket string) *S3BlobStore {
	return &S3BlobStore{client: client, bucket: bucket, now: time.Now}
}

// objectKey follows venues/<owner>/<yyyy>/<mm>/<uuid>.jpg
func (s *S3BlobStore) objectKey(ownerID string) string {
	d := s.now().UTC()
	owner := strings.NewReplacer("/", "_", "\\", "_").Replace(ownerID)
	return fmt.Sprintf("venues/%s/%04d/%02d/%s.jpg", owner, d.Year(), d.Month(), uuid.New())
}

// Put uploads data and returns an s3:// reference
func (s *S3BlobStore) Put(ctx context.Context, ownerID string, data []byte) (string, error) {
	key := s.objectKey(ownerID)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String("image/jpeg"),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", classifyS3Error(err)
	}
	return s3Scheme + s.bucket + "/" + key, nil
}

// Get downloads the object behind an s3:// reference
func (s *S3BlobStore) Get(ctx context.Context, ref string) ([]byte, error) {
	bucket, key, err := parseS3Ref(ref)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyS3Error(err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyTransportError(err)
	}
	return data, nil
}

func parseS3Ref(ref string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(ref, s3Scheme)
	if !ok {
		return "", "", fmt.Errorf("%w: not an s3 reference: %q", models.ErrInvalidResponse, ref)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: malformed s3 reference: %q", models.ErrInvalidResponse, ref)
	}
	return bucket, key, nil
}

func classifyS3Error(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return fmt.Errorf("%w: %v", models.ErrAuthenticationFailed, err)
		case "NoSuchKey", "NoSuchBucket":
			return fmt.Errorf("%w: %v", models.ErrInvalidResponse, err)
		}
	}
	return classifyTransportError(err)
}
