package sinks

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Uploader is an interface for uploading objects to S3.
// This allows for easy mocking in tests.
type S3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Config contains configuration for the S3 sink.
type S3Config struct {
	Bucket          string
	Key             string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

// S3Sink streams the archive to S3-compatible object storage. Bytes are
// uploaded as they are written; Close waits for the upload to finish.
type S3Sink struct {
	ctx      context.Context
	bucket   string
	key      string
	prefix   string
	uploader S3Uploader
}

// NewS3Sink creates a new S3 sink with the given configuration. The
// context bounds the whole upload, not just construction.
func NewS3Sink(ctx context.Context, cfg S3Config) (*S3Sink, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)

	// Custom endpoint for S3-compatible services (R2, MinIO, etc.)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	// Path-style addressing for MinIO and some S3-compatible services
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	uploader := manager.NewUploader(client)

	return NewS3SinkWithUploader(ctx, cfg.Bucket, cfg.Prefix, cfg.Key, uploader), nil
}

// NewS3SinkWithUploader creates a new S3 sink with a custom uploader.
// This is useful for testing.
func NewS3SinkWithUploader(ctx context.Context, bucket, prefix, key string, uploader S3Uploader) *S3Sink {
	return &S3Sink{
		ctx:      ctx,
		bucket:   bucket,
		key:      key,
		prefix:   prefix,
		uploader: uploader,
	}
}

func (s *S3Sink) Name() string {
	if s.prefix != "" {
		return fmt.Sprintf("s3(%s/%s)", s.bucket, s.prefix)
	}
	return fmt.Sprintf("s3(%s)", s.bucket)
}

func (s *S3Sink) Open(ext string) (io.WriteCloser, error) {
	key := s.key + ext
	if s.prefix != "" {
		key = path.Join(s.prefix, key)
	}

	pr, pw := io.Pipe()
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        pr,
		ContentType: aws.String(contentTypeForExtension(ext)),
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.uploader.Upload(s.ctx, input)
		if err != nil {
			err = fmt.Errorf("failed to upload to s3://%s/%s: %w", s.bucket, key, err)
		}
		// Unblocks writers when the upload dies mid-stream.
		pr.CloseWithError(err)
		done <- err
	}()

	return &pipeStream{pw: pw, done: done}, nil
}

// pipeStream is the write side of a pipe whose reader is consumed by a
// background transfer. Close waits for the transfer result.
type pipeStream struct {
	pw     *io.PipeWriter
	done   chan error
	closed bool
}

func (w *pipeStream) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *pipeStream) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.pw.Close(); err != nil {
		return err
	}
	return <-w.done
}
