package storage

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// ArchiveConfig holds credentials for an S3-compatible bucket (AWS S3,
// Cloudflare R2, MinIO) used as offsite clip storage.
type ArchiveConfig struct {
	AccessKey string
	SecretKey string
	Bucket    string
	Endpoint  string
	Region    string
	// BaseURL is the public URL the bucket is served under. When empty,
	// uploads return the s3:// location instead.
	BaseURL string
	// Prefix is prepended to every object key.
	Prefix string
}

// Enabled reports whether the config is complete enough to archive.
func (c ArchiveConfig) Enabled() bool {
	return c.AccessKey != "" && c.SecretKey != "" && c.Bucket != ""
}

// ClipArchiver uploads exported clips to an S3-compatible bucket.
type ClipArchiver struct {
	config   ArchiveConfig
	uploader *s3manager.Uploader
}

// NewClipArchiver creates an archiver from the config. Region defaults to
// "auto", which R2 expects.
func NewClipArchiver(config ArchiveConfig) (*ClipArchiver, error) {
	if config.Region == "" {
		config.Region = "auto"
	}

	sess, err := session.NewSession(&aws.Config{
		Credentials:      credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, ""),
		Endpoint:         aws.String(config.Endpoint),
		Region:           aws.String(config.Region),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("creating storage session: %w", err)
	}

	uploader := s3manager.NewUploader(sess, func(u *s3manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024
		u.Concurrency = 1
	})

	return &ClipArchiver{config: config, uploader: uploader}, nil
}

// UploadClip pushes the clip at localPath to the bucket under key and
// returns the public URL of the uploaded object.
func (a *ClipArchiver) UploadClip(ctx context.Context, localPath, key string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer f.Close()

	key = a.objectKey(key)
	_, err = a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(a.config.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentTypeFor(localPath)),
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}
	return a.publicURL(key), nil
}

func (a *ClipArchiver) objectKey(key string) string {
	key = strings.TrimPrefix(filepath.ToSlash(key), "/")
	if a.config.Prefix != "" {
		key = path.Join(a.config.Prefix, key)
	}
	return key
}

func (a *ClipArchiver) publicURL(key string) string {
	if a.config.BaseURL != "" {
		return strings.TrimSuffix(a.config.BaseURL, "/") + "/" + key
	}
	return fmt.Sprintf("s3://%s/%s", a.config.Bucket, key)
}

func contentTypeFor(p string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(p))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
