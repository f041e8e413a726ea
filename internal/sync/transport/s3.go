package transport

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/kimhsiao/memonexus/contentsync/internal/logging"
	"github.com/kimhsiao/memonexus/contentsync/internal/models"
)

// S3API is the subset of the S3 client used by S3Transport.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3 connection configuration.
type S3Config struct {
	Provider       Provider
	Bucket         string
	Region         string
	Endpoint       string
	AccountID      string // R2 only
	AccessKey      string // empty uses the default credential chain
	SecretKey      string
	UseSSL         bool // MinIO endpoints without a scheme
	ForcePathStyle bool
}

// S3Transport publishes content as objects in an S3-compatible bucket.
// The public ID of a published item is its object key.
type S3Transport struct {
	client  S3API
	bucket  string
	useACLs bool
}

// permanentCodes are S3 error codes that no retry can fix.
var permanentCodes = map[string]bool{
	"AccessDenied":      true,
	"InvalidArgument":   true,
	"InvalidBucketName": true,
	"NoSuchBucket":      true,
	"EntityTooLarge":    true,
}

var _ Validator = (*S3Transport)(nil)

// NewS3Transport creates an S3Transport from cfg, loading AWS credentials
// from the default chain unless static keys are configured.
func NewS3Transport(ctx context.Context, cfg S3Config) (*S3Transport, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	ep, err := ResolveEndpoint(cfg)
	if err != nil {
		return nil, err
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(ep.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if ep.URL != "" {
			o.BaseEndpoint = aws.String(ep.URL)
		}
		o.UsePathStyle = ep.ForcePathStyle
	})

	t := NewWithClient(client, cfg.Bucket)
	// R2 does not implement object ACLs
	t.useACLs = cfg.Provider != ProviderR2
	return t, nil
}

// NewWithClient creates an S3Transport over a custom S3API implementation.
func NewWithClient(client S3API, bucket string) *S3Transport {
	return &S3Transport{client: client, bucket: bucket, useACLs: true}
}

// Publish uploads payload under the key for visibility and returns the key.
func (t *S3Transport) Publish(ctx context.Context, contentID models.ContentID, visibility models.Visibility, payload []byte) (string, error) {
	key, err := ObjectKey(contentID, visibility)
	if err != nil {
		return "", err
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(t.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(payload),
		ContentLength: aws.Int64(int64(len(payload))),
		ContentType:   aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-id": contentID.String(),
			"visibility": visibility.String(),
			"sha256":     PayloadChecksum(payload),
		},
	}
	if t.useACLs {
		input.ACL = cannedACL(visibility)
	}

	if _, err := t.client.PutObject(ctx, input); err != nil {
		return "", classify("put object", key, err)
	}

	logging.Debug("Published object", map[string]interface{}{
		"bucket": t.bucket,
		"key":    key,
		"size":   len(payload),
	})
	return key, nil
}

// ValidatePublicID rejects public IDs this transport could never have issued for contentID.
func (t *S3Transport) ValidatePublicID(contentID models.ContentID, publicID string) error {
	return ValidatePublicID(contentID, publicID)
}

// Unpublish deletes the object named by publicID.
// Deleting an object that no longer exists succeeds.
func (t *S3Transport) Unpublish(ctx context.Context, contentID models.ContentID, publicID string) error {
	if err := ValidatePublicID(contentID, publicID); err != nil {
		return err
	}

	_, err := t.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(publicID),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
			return nil
		}
		return classify("delete object", publicID, err)
	}

	logging.Debug("Unpublished object", map[string]interface{}{
		"bucket": t.bucket,
		"key":    publicID,
	})
	return nil
}

// PayloadChecksum returns the hex SHA-256 of payload, stored with each object
// so re-publishes of identical content can be recognized remotely.
func PayloadChecksum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func cannedACL(visibility models.Visibility) types.ObjectCannedACL {
	if visibility == models.VisibilityPrivate {
		return types.ObjectCannedACLPrivate
	}
	return types.ObjectCannedACLPublicRead
}

// classify adds operation context and marks client-fault API errors permanent.
func classify(op, key string, err error) error {
	wrapped := fmt.Errorf("s3 %s %s: %w", op, key, err)

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && permanentCodes[apiErr.ErrorCode()] {
		return Permanent(wrapped)
	}
	return wrapped
}
