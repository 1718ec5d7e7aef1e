package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/bofstudio/pipeline-console/internal/config"
)

// ArchiveStore keeps finished export archives and hands out time limited
// links to them.
type ArchiveStore interface {
	PutArchive(ctx context.Context, key string, data []byte) error
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	DeleteArchive(ctx context.Context, key string) error
}

var errR2Incomplete = errors.New("R2 configuration incomplete")

// R2Client stores archives in an S3-compatible bucket, Cloudflare R2 by
// default. With a public base URL set, links point there instead of being
// presigned.
type R2Client struct {
	s3Client  *s3.Client
	presigner *s3.PresignClient
	bucket    string
	publicURL string
}

func r2Endpoint(cfg *config.R2Config) string {
	if cfg.Endpoint != "" {
		return strings.TrimRight(cfg.Endpoint, "/")
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
}

func NewR2Client(cfg *config.R2Config) (*R2Client, error) {
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" || cfg.BucketName == "" {
		return nil, errR2Incomplete
	}
	if cfg.AccountID == "" && cfg.Endpoint == "" {
		return nil, errR2Incomplete
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("load object storage config: %w", err)
	}

	endpoint := r2Endpoint(cfg)
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &R2Client{
		s3Client:  s3Client,
		presigner: s3.NewPresignClient(s3Client),
		bucket:    cfg.BucketName,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
	}, nil
}

func (c *R2Client) PutArchive(ctx context.Context, key string, data []byte) error {
	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(c.bucket),
		Key:                aws.String(key),
		Body:               bytes.NewReader(data),
		ContentType:        aws.String("application/zip"),
		ContentLength:      aws.Int64(int64(len(data))),
		ContentDisposition: aws.String(attachmentFor(key)),
	})
	if err != nil {
		return fmt.Errorf("upload archive %s: %w", key, err)
	}
	return nil
}

// SignedURL returns a download link for key that forces a file save.
func (c *R2Client) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if c.publicURL != "" {
		return publicLink(c.publicURL, key), nil
	}
	req, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(c.bucket),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String(attachmentFor(key)),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("presign archive %s: %w", key, err)
	}
	return req.URL, nil
}

func (c *R2Client) DeleteArchive(ctx context.Context, key string) error {
	_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete archive %s: %w", key, err)
	}
	return nil
}

func publicLink(base, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return base + "/" + strings.Join(parts, "/")
}

func attachmentFor(key string) string {
	name := key[strings.LastIndex(key, "/")+1:]
	return fmt.Sprintf(`attachment; filename="%s"`, name)
}
