// Package s3src reads the event file from an S3 (or S3-compatible) bucket.
package s3src

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"sessionetl/internal/config"
)

// Getter is the part of *s3.Client an Object needs.
type Getter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Object is a single S3 object opened as a stream.
type Object struct {
	client Getter
	bucket string
	key    string
}

// New builds an S3 client from the default AWS credential chain. A custom
// endpoint (MinIO, LocalStack) switches to path-style addressing.
func New(ctx context.Context, cfg config.SourceS3) (*Object, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return NewWithClient(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket, cfg.Key), nil
}

// NewWithClient returns an Object read through client.
func NewWithClient(client Getter, bucket, key string) *Object {
	return &Object{client: client, bucket: bucket, key: key}
}

// String returns the s3:// URI of the object.
func (o *Object) String() string { return "s3://" + o.bucket + "/" + o.key }

// Open starts a GET and returns the body. A missing object or bucket
// matches fs.ErrNotExist.
func (o *Object) Open(ctx context.Context) (io.ReadCloser, error) {
	out, err := o.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		var noBucket *types.NoSuchBucket
		if errors.As(err, &noKey) || errors.As(err, &noBucket) {
			return nil, fmt.Errorf("open %s: %w", o, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("open %s: %w", o, err)
	}
	return out.Body, nil
}
