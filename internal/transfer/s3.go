package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/yuya-takeyama/split-sync/internal/checksum"
	"github.com/yuya-takeyama/split-sync/pkg/s3client"
)

// S3 uploads unit members to an S3 bucket. A batch is uploaded member by
// member and fails when any member fails.
type S3 struct {
	client s3client.Client
	bucket string
	prefix string
}

// NewS3 creates an S3-backed Transferer for a destination of the form
// s3://bucket/prefix.
func NewS3(client s3client.Client, destURI string) (*S3, error) {
	bucket, prefix, err := s3client.ParseS3URI(destURI)
	if err != nil {
		return nil, err
	}
	return &S3{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func (s *S3) Transfer(ctx context.Context, req Request) error {
	var result *multierror.Error
	for _, rel := range req.Unit.RelPaths() {
		if err := ctx.Err(); err != nil {
			result = multierror.Append(result, err)
			break
		}
		if err := s.upload(ctx, req, rel); err != nil {
			logf(req.Log, "upload failed: %s: %v\n", rel, err)
			result = multierror.Append(result, fmt.Errorf("%s: %w", rel, err))
		}
	}
	return result.ErrorOrNil()
}

func (s *S3) upload(ctx context.Context, req Request, rel string) error {
	localPath := filepath.Join(req.SourceRoot, filepath.FromSlash(rel))
	key := s3client.ObjectKey(s.prefix, rel)
	target := fmt.Sprintf("s3://%s/%s", s.bucket, key)

	if req.DryRun {
		logf(req.Log, "(dryrun) upload: %s to %s\n", localPath, target)
		return nil
	}

	stat, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	if req.Resume {
		upToDate, err := s.upToDate(ctx, localPath, key, stat.Size())
		if err != nil {
			return err
		}
		if upToDate {
			logf(req.Log, "skip (up to date): %s\n", target)
			return nil
		}
	}

	sum, err := checksum.CalculateFileSHA256(localPath)
	if err != nil {
		return err
	}

	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer file.Close()

	logf(req.Log, "upload: %s to %s\n", localPath, target)
	err = s.client.PutObject(ctx, &s3client.PutObjectRequest{
		Bucket:      s.bucket,
		Key:         key,
		Body:        file,
		Size:        stat.Size(),
		Checksum:    sum,
		ContentType: guessContentType(localPath),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// upToDate reports whether the object already holds the local file, judged by
// size and the stored SHA-256 metadata.
func (s *S3) upToDate(ctx context.Context, localPath, key string, size int64) (bool, error) {
	info, err := s.client.HeadObject(ctx, &s3client.HeadObjectRequest{Bucket: s.bucket, Key: key})
	if errors.Is(err, s3client.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("head object: %w", err)
	}
	if info.Size != size {
		return false, nil
	}
	return checksum.Matches(localPath, info.Checksum)
}

func logf(w io.Writer, format string, args ...any) {
	if w == nil {
		return
	}
	fmt.Fprintf(w, format, args...)
}
