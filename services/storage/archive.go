// Package storage archives uploaded knowledge base documents in
// S3-compatible object storage (DigitalOcean Spaces, MinIO, AWS S3).
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

const pdfPrefix = "knowledge-base/pdf"

// ArchiveConfig holds the object storage settings
type ArchiveConfig struct {
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Endpoint  string
}

// Enabled reports whether enough settings are present to archive files
func (c ArchiveConfig) Enabled() bool {
	return c.AccessKey != "" && c.SecretKey != "" && c.Bucket != "" && c.Endpoint != ""
}

// PDFArchive stores uploaded PDFs under knowledge-base/pdf/<filename>
type PDFArchive struct {
	s3Client s3iface.S3API
	bucket   string
	endpoint string
}

// NewPDFArchive creates an archive client for the configured bucket
func NewPDFArchive(cfg ArchiveConfig) (*PDFArchive, error) {
	if !cfg.Enabled() {
		return nil, errors.New("object storage is not configured")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	sess, err := session.NewSession(&aws.Config{
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
		Endpoint:         aws.String(cfg.Endpoint),
		Region:           aws.String(region),
		S3ForcePathStyle: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage session: %w", err)
	}

	return NewPDFArchiveWithClient(s3.New(sess), cfg.Bucket, cfg.Endpoint), nil
}

// NewPDFArchiveWithClient wraps an existing S3 API client
func NewPDFArchiveWithClient(client s3iface.S3API, bucket, endpoint string) *PDFArchive {
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	return &PDFArchive{s3Client: client, bucket: bucket, endpoint: endpoint}
}

// Key returns the object key used for filename
func Key(filename string) string {
	return path.Join(pdfPrefix, path.Base(filename))
}

// ArchivePDF uploads the document privately and returns its object URL
func (a *PDFArchive) ArchivePDF(ctx context.Context, filename string, data []byte) (string, error) {
	key := Key(filename)
	_, err := a.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ACL:         aws.String("private"),
		ContentType: aws.String("application/pdf"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive %s: %w", filename, err)
	}
	return fmt.Sprintf("https://%s.%s/%s", a.bucket, a.endpoint, key), nil
}

// DeletePDF removes an archived document
func (a *PDFArchive) DeletePDF(ctx context.Context, filename string) error {
	_, err := a.s3Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(Key(filename)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete archived %s: %w", filename, err)
	}
	return nil
}
