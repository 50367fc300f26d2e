// Package publish uploads the collected documents for the static dashboard
package publish

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// PutObjectAPI is the subset of the S3 client used for uploads
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Publisher copies JSON documents into a bucket under a key prefix
type S3Publisher struct {
	client PutObjectAPI
	bucket string
	prefix string
}

// NewS3Publisher builds a publisher from the default AWS credential chain
func NewS3Publisher(ctx context.Context, bucket, prefix, region string) (*S3Publisher, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}
	return NewS3PublisherWithClient(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// NewS3PublisherWithClient builds a publisher over an existing client
func NewS3PublisherWithClient(client PutObjectAPI, bucket, prefix string) *S3Publisher {
	return &S3Publisher{client: client, bucket: bucket, prefix: prefix}
}

// Key returns the object key a local file is uploaded to
func (p *S3Publisher) Key(localPath string) string {
	return path.Join(p.prefix, filepath.Base(localPath))
}

// PublishFiles uploads each file. A file that does not exist yet is skipped;
// the first upload failure stops the remaining uploads.
func (p *S3Publisher) PublishFiles(ctx context.Context, paths ...string) error {
	for _, local := range paths {
		data, err := os.ReadFile(local)
		if err != nil {
			if os.IsNotExist(err) {
				log.Warn().Str("path", local).Msg("Skipping publish of missing document")
				continue
			}
			return fmt.Errorf("failed to read %s: %w", local, err)
		}

		key := p.Key(local)
		_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:       aws.String(p.bucket),
			Key:          aws.String(key),
			Body:         bytes.NewReader(data),
			ContentType:  aws.String("application/json"),
			CacheControl: aws.String("no-cache"),
		})
		if err != nil {
			log.Error().Err(err).Str("bucket", p.bucket).Str("key", key).Msg("Failed to upload document")
			return fmt.Errorf("failed to upload %s to s3://%s/%s: %w", filepath.Base(local), p.bucket, key, err)
		}

		log.Info().Str("bucket", p.bucket).Str("key", key).Int("bytes", len(data)).Msg("Document published")
	}
	return nil
}
