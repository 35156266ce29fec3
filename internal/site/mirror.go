package site

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"churchsite/internal/config"
)

// Mirror keeps an off-site copy of uploads.
type Mirror interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
	Remove(ctx context.Context, key string) error
}

// NewMirror returns an S3 mirror when cfg names a bucket, otherwise nil.
func NewMirror(ctx context.Context, cfg config.Config) (Mirror, error) {
	if cfg.UploadS3Bucket == "" {
		return nil, nil
	}
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &s3Mirror{client: client, bucket: cfg.UploadS3Bucket, prefix: "upload/"}, nil
}

func newS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.UploadS3Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.UploadS3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.UploadS3Endpoint)
		}
		o.UsePathStyle = cfg.UploadS3PathStyle
	}), nil
}

type s3Mirror struct {
	client *s3.Client
	bucket string
	prefix string
}

func (s *s3Mirror) key(name string) string {
	return s.prefix + strings.TrimPrefix(name, "/")
}

func (s *s3Mirror) Put(ctx context.Context, name string, body []byte, contentType string) (string, error) {
	key := s.key(name)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

func (s *s3Mirror) Remove(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}
