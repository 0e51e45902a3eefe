package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"bizscout/config"
	"bizscout/models"
)

// S3Uploader uploads files to S3-compatible storage
type S3Uploader struct {
	client *s3.Client
	cfg    config.S3Config
}

func NewS3Uploader(ctx context.Context, cfg config.S3Config) (*S3Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	return &S3Uploader{client: client, cfg: cfg}, nil
}

func (u *S3Uploader) Upload(ctx context.Context, key string, data io.Reader, contentType string) error {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// PublicURL returns the public URL for an S3 key
func (u *S3Uploader) PublicURL(key string) string {
	if u.cfg.Endpoint != "" && strings.Contains(u.cfg.Endpoint, "digitaloceanspaces.com") {
		host := strings.TrimPrefix(u.cfg.Endpoint, "https://")
		return fmt.Sprintf("https://%s.%s/%s", u.cfg.Bucket, host, key)
	}
	if u.cfg.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(u.cfg.Endpoint, "/"), u.cfg.Bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.cfg.Bucket, u.cfg.Region, key)
}

// ReportArchiver writes finished session reports as JSON objects.
type ReportArchiver struct {
	uploader *S3Uploader
	prefix   string
}

func NewReportArchiver(ctx context.Context, cfg config.S3Config) (*ReportArchiver, error) {
	u, err := NewS3Uploader(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &ReportArchiver{uploader: u, prefix: cfg.Prefix}, nil
}

// Archive uploads the session and returns its public URL.
func (a *ReportArchiver) Archive(ctx context.Context, session *models.ScrapeSession) (string, error) {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}

	key := ArchiveKey(a.prefix, session)
	if err := a.uploader.Upload(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
		return "", err
	}
	return a.uploader.PublicURL(key), nil
}

// ArchiveKey is sessions/YYYY/MM/DD/<session id>.json under prefix.
func ArchiveKey(prefix string, session *models.ScrapeSession) string {
	return path.Join(prefix, "sessions", session.StartTime.UTC().Format("2006/01/02"), session.SessionID+".json")
}
