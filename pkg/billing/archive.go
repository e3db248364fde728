package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Config describes where run reports are archived.
type S3Config struct {
	Bucket         string `env:"S3_BUCKET"`
	Region         string `env:"S3_REGION" envDefault:"eu-central-1"`
	AccessKeyID    string `env:"S3_ACCESS_KEY_ID"`
	SecretKey      string `env:"S3_SECRET_KEY"`
	Endpoint       string `env:"S3_ENDPOINT"` // S3-compatible services
	ForcePathStyle bool   `env:"S3_FORCE_PATH_STYLE" envDefault:"false"`
	Prefix         string `env:"S3_REPORT_PREFIX" envDefault:"billing/reports"`
}

// Enabled reports whether archiving is configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// S3PutObjectAPI is the part of the S3 client used by S3Archiver.
type S3PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver implements ReportArchiver by writing each run report as a JSON object.
type S3Archiver struct {
	client S3PutObjectAPI
	bucket string
	prefix string
}

// NewS3Archiver builds an archiver from static config, loading the default
// AWS credential chain when no keys are given.
func NewS3Archiver(ctx context.Context, cfg S3Config) (*S3Archiver, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, errors.New("billing: s3 bucket and region are required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return NewS3ArchiverWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3ArchiverWithClient wraps an existing client.
func NewS3ArchiverWithClient(client S3PutObjectAPI, bucket, prefix string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Key returns the object key for a report: <prefix>/<yyyy>/<mm>/<dd>/<started>_<run id>.json.
func (a *S3Archiver) Key(report *RunReport) string {
	started := report.StartedAt.UTC()
	name := fmt.Sprintf("%s_%s.json", started.Format("20060102T150405Z"), report.RunID)
	return path.Join(a.prefix, started.Format("2006/01/02"), name)
}

// Archive implements ReportArchiver.
func (a *S3Archiver) Archive(ctx context.Context, report *RunReport) error {
	if report == nil {
		return nil
	}
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode run report: %w", err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.Key(report)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("archive run report %s (code: %s): %w", report.RunID, apiErr.ErrorCode(), err)
		}
		return fmt.Errorf("archive run report %s: %w", report.RunID, err)
	}
	return nil
}
