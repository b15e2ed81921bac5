package s3client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

const (
	defaultMaxRetries = 5
	defaultBaseDelay  = 100 * time.Millisecond
	defaultMaxDelay   = 30 * time.Second

	// Objects above this size are uploaded in parts by the upload manager.
	defaultPartSize = 16 * 1024 * 1024
)

// AWSClient implements Client on top of the AWS SDK, retrying throttling and
// server-side errors with exponential backoff.
type AWSClient struct {
	client     *s3.Client
	uploader   *manager.Uploader
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewAWSClient(cfg aws.Config) *AWSClient {
	client := s3.NewFromConfig(cfg)
	return &AWSClient{
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = defaultPartSize
		}),
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
		maxDelay:   defaultMaxDelay,
	}
}

func (c *AWSClient) HeadObject(ctx context.Context, req *HeadObjectRequest) (*ObjectInfo, error) {
	var resp *s3.HeadObjectOutput
	err := c.withRetry(ctx, func() error {
		var err error
		resp, err = c.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(req.Bucket),
			Key:    aws.String(req.Key),
		})
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to head object: %w", err)
	}

	return &ObjectInfo{
		Size:     aws.ToInt64(resp.ContentLength),
		Checksum: resp.Metadata[ChecksumMetadataKey],
	}, nil
}

// PutObject uploads through the upload manager, which switches to multipart
// uploads for bodies larger than one part. The body is read only once, so a
// retry is attempted only when the body can be rewound.
func (c *AWSClient) PutObject(ctx context.Context, req *PutObjectRequest) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(req.Bucket),
		Key:           aws.String(req.Key),
		Body:          req.Body,
		ContentLength: aws.Int64(req.Size),
	}
	if req.Checksum != "" {
		input.Metadata = map[string]string{ChecksumMetadataKey: req.Checksum}
	}
	if req.ContentType != "" {
		input.ContentType = aws.String(req.ContentType)
	}

	seeker, rewindable := req.Body.(io.Seeker)
	err := c.withRetry(ctx, func() error {
		_, err := c.uploader.Upload(ctx, input)
		if err == nil {
			return nil
		}
		if !rewindable {
			return &permanentError{err: err}
		}
		if _, serr := seeker.Seek(0, io.SeekStart); serr != nil {
			return &permanentError{err: serr}
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}

	return nil
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func (c *AWSClient) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if isNotFound(err) || !isRetryableError(err) {
			return err
		}

		lastErr = err
		if attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.calculateDelay(attempt)):
			}
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

// isRetryableError checks if an error is retryable
func isRetryableError(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "SlowDown", "ServiceUnavailable", "RequestTimeout", "RequestTimeoutException":
			return true
		}
		if httpErr, ok := apiErr.(interface{ HTTPStatusCode() int }); ok {
			code := httpErr.HTTPStatusCode()
			return code >= 500 && code < 600
		}
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF)
}

// calculateDelay calculates the retry delay with exponential backoff and jitter
func (c *AWSClient) calculateDelay(attempt int) time.Duration {
	delay := float64(c.baseDelay) * math.Pow(2.0, float64(attempt))

	// ±25% jitter
	delay += delay * 0.25 * (2*rand.Float64() - 1)

	if delay > float64(c.maxDelay) {
		delay = float64(c.maxDelay)
	}

	return time.Duration(delay)
}
