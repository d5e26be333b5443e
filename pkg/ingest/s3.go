package ingest

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/plantpulse/plantpulse/pkg/errors"
	"github.com/plantpulse/plantpulse/pkg/store"
)

// S3Source loads the dataset from an s3://bucket/key URL. It implements
// engine.Loader.
type S3Source struct {
	URL       string
	Region    string
	Endpoint  string
	Delimiter rune
	Logger    *zap.Logger

	client *s3.Client
}

// IsS3URL reports whether path names an S3 object.
func IsS3URL(path string) bool {
	return strings.HasPrefix(path, "s3://")
}

// Name implements engine.Loader.
func (s *S3Source) Name() string {
	return s.URL
}

// Load implements engine.Loader.
func (s *S3Source) Load(ctx context.Context) (*store.Store, error) {
	bucket, key, err := splitS3URL(s.URL)
	if err != nil {
		return nil, err
	}

	client, err := s.s3Client(ctx)
	if err != nil {
		return nil, err
	}

	obj, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSourceRead, "failed to fetch dataset object").
			WithContext("bucket", bucket).
			WithContext("key", key)
	}
	defer obj.Body.Close()

	return NewParser(s.Delimiter, s.Logger).Parse(ctx, obj.Body)
}

func (s *S3Source) s3Client(ctx context.Context) (*s3.Client, error) {
	if s.client != nil {
		return s.client, nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if s.Region != "" {
		opts = append(opts, awsconfig.WithRegion(s.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSourceRead, "failed to load AWS config")
	}

	var s3Opts []func(*s3.Options)
	if s.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(s.Endpoint)
		})
	}
	s.client = s3.NewFromConfig(cfg, s3Opts...)
	return s.client, nil
}

func splitS3URL(url string) (bucket, key string, err error) {
	trimmed := strings.TrimPrefix(url, "s3://")
	if trimmed == url {
		return "", "", errors.New(errors.CodeInvalidFormat, "not an s3 URL").
			WithContext("url", url)
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New(errors.CodeInvalidFormat, "s3 URL must be s3://bucket/key").
			WithContext("url", url)
	}
	return parts[0], parts[1], nil
}
