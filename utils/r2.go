package utils

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	appconfig "roundabout/config"
)

// ObjectPutter is the part of the S3 API the proof store needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ProofStore keeps engagement proof screenshots in an R2 bucket.
type ProofStore struct {
	client     ObjectPutter
	bucket     string
	cdnBaseURL string
}

// NewR2Client builds an S3 client pointed at the account's R2 endpoint.
func NewR2Client(ctx context.Context, cfg appconfig.R2Config) (*s3.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.AccessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	}), nil
}

func NewProofStore(client ObjectPutter, bucket, cdnBaseURL, accountID string) *ProofStore {
	if cdnBaseURL == "" {
		cdnBaseURL = fmt.Sprintf("https://%s.r2.cloudflarestorage.com/%s", accountID, bucket)
	}
	return &ProofStore{client: client, bucket: bucket, cdnBaseURL: strings.TrimRight(cdnBaseURL, "/")}
}

var proofTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ProofExtension returns the file extension for an accepted screenshot type.
func ProofExtension(contentType string) (string, bool) {
	ext, ok := proofTypes[strings.ToLower(strings.TrimSpace(contentType))]
	return ext, ok
}

// Upload stores a screenshot under proofs/<user>/ and returns its public URL.
func (p *ProofStore) Upload(ctx context.Context, userID, contentType string, size int64, body io.Reader) (string, error) {
	ext, ok := ProofExtension(contentType)
	if !ok {
		return "", fmt.Errorf("unsupported proof content type %q", contentType)
	}
	key := path.Join("proofs", userID, uuid.NewString()+ext)

	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to R2: %w", err)
	}
	return fmt.Sprintf("%s/%s", p.cdnBaseURL, key), nil
}
