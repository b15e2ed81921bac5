package s3client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrNotFound is returned by HeadObject when the key does not exist.
var ErrNotFound = errors.New("object not found")

// ChecksumMetadataKey is the user metadata key holding the base64 SHA-256 of
// an uploaded object.
const ChecksumMetadataKey = "sha256"

type Client interface {
	HeadObject(ctx context.Context, req *HeadObjectRequest) (*ObjectInfo, error)
	PutObject(ctx context.Context, req *PutObjectRequest) error
}

type ObjectInfo struct {
	Size     int64
	Checksum string
}

type HeadObjectRequest struct {
	Bucket string
	Key    string
}

type PutObjectRequest struct {
	Bucket      string
	Key         string
	Body        io.Reader
	Size        int64
	Checksum    string
	ContentType string
}

// ParseS3URI parses an S3 URI into bucket and prefix. The returned prefix
// has no leading or trailing slash.
func ParseS3URI(uri string) (bucket, prefix string, err error) {
	if !strings.HasPrefix(uri, "s3://") {
		return "", "", fmt.Errorf("invalid S3 URI: must start with s3://")
	}

	p := strings.TrimPrefix(uri, "s3://")
	parts := strings.SplitN(p, "/", 2)

	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid S3 URI: missing bucket name")
	}

	bucket = parts[0]
	if len(parts) > 1 {
		prefix = strings.Trim(path.Clean("/"+parts[1]), "/")
	}

	return bucket, prefix, nil
}

// ObjectKey joins a prefix and a slash-separated relative path.
func ObjectKey(prefix, relPath string) string {
	if prefix == "" {
		return relPath
	}
	return prefix + "/" + relPath
}
