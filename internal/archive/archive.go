// Package archive stores the normalized input of each sync run in S3 so a
// run can be audited or replayed.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/kinsync/internal/models"
	"github.com/google/uuid"
)

// Run is the archived payload of one sync run.
type Run struct {
	JobID        string                 `json:"job_id"`
	ConnectionID string                 `json:"connection_id"`
	UserID       string                 `json:"user_id"`
	Provider     models.Provider        `json:"provider"`
	StartedAt    time.Time              `json:"started_at"`
	Contacts     []models.ContactRecord `json:"contacts,omitempty"`
	Events       []models.EventRecord   `json:"events,omitempty"`
}

type Archiver interface {
	Archive(ctx context.Context, run *Run) (string, error)
}

type Settings struct {
	Bucket       string
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
}

var (
	loadDefaultAWSConfig  = config.LoadDefaultConfig
	newS3ClientFromConfig = s3.NewFromConfig
)

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Archiver struct {
	bucket string
	client objectPutter
}

func NewS3Archiver(ctx context.Context, s Settings) (*S3Archiver, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(s.Region)}
	if s.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.AccessKey, s.SecretKey, "")))
	}
	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if s.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(s.BaseEndpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Archiver{bucket: s.Bucket, client: client}, nil
}

// StorageKey places a run under its connection and start date.
func StorageKey(run *Run) string {
	d := run.StartedAt.UTC()
	return fmt.Sprintf("runs/%s/%d/%02d/%02d/%s-%s.json", run.ConnectionID, d.Year(), d.Month(), d.Day(), run.JobID, uuid.NewString())
}

func (a *S3Archiver) Archive(ctx context.Context, run *Run) (string, error) {
	payload, err := json.Marshal(run)
	if err != nil {
		return "", fmt.Errorf("encode run: %w", err)
	}
	key := StorageKey(run)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}
