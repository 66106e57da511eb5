package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
)

// Exporter mirrors archive snapshots to cold storage.
type Exporter interface {
	ExportDeletedUser(ctx context.Context, d *models.DeletedUser) error
}

// NopExporter exports nothing.
type NopExporter struct{}

func (NopExporter) ExportDeletedUser(context.Context, *models.DeletedUser) error { return nil }

// S3Config is the object storage the snapshots go to. MinIO works too.
type S3Config struct {
	Bucket       string
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) objectPutter {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// S3Exporter writes DeletedUser snapshots as JSON objects.
type S3Exporter struct {
	bucket string
	client objectPutter
}

// NewS3Exporter builds the S3 client from static credentials.
func NewS3Exporter(ctx context.Context, c S3Config) (*S3Exporter, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(c.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Exporter{bucket: c.Bucket, client: client}, nil
}

// DeletedUserKey is deleted-users/YYYY/MM/<snapshot id>.json, by deletion time.
func DeletedUserKey(d *models.DeletedUser) string {
	at := d.DeletedAt.UTC()
	return fmt.Sprintf("deleted-users/%04d/%02d/%s.json", at.Year(), int(at.Month()), d.ID)
}

func (e *S3Exporter) ExportDeletedUser(ctx context.Context, d *models.DeletedUser) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(DeletedUserKey(d)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}
