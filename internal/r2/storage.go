package r2

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	conf "github.com/trunov/assethub/internal/config"
)

// Store publishes assets to a Cloudflare R2 (or any S3 compatible) bucket.
// PutObject overwrites in place, so publishing the same key twice leaves one object.
type Store struct {
	Bucket        string
	PublicBaseURL string
	CacheControl  string

	S3Client *s3.Client
	Uploader *manager.Uploader
}

func NewStore(ctx context.Context, cfg *conf.AssetStoreConfig) (*Store, error) {
	r2 := cfg.R2

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			r2.AccessKeyID, r2.SecretKey, "",
		)),
		// R2 ignores the region but the signer needs one
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := r2.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r2.AccountID)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	log.Info().Str("component", "r2").Str("bucket", r2.BucketName).Str("endpoint", endpoint).Msg("client initialized")

	return &Store{
		Bucket:        r2.BucketName,
		PublicBaseURL: strings.TrimRight(r2.PublicBaseURL, "/"),
		CacheControl:  cfg.CacheControl,
		S3Client:      client,
		Uploader:      manager.NewUploader(client),
	}, nil
}

// Upsert writes payload at key and returns its public URL.
func (s *Store) Upsert(ctx context.Context, key string, payload []byte, contentType string) (string, error) {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String(contentType),
	}
	if s.CacheControl != "" {
		in.CacheControl = aws.String(s.CacheControl)
	}

	if _, err := s.Uploader.Upload(ctx, in); err != nil {
		return "", fmt.Errorf("r2: upload %q: %w", key, err)
	}
	return s.PublicURL(key), nil
}

func (s *Store) PublicURL(key string) string {
	return s.PublicBaseURL + "/" + key
}
