package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuya-takeyama/split-sync/internal/checksum"
	"github.com/yuya-takeyama/split-sync/internal/plan"
	"github.com/yuya-takeyama/split-sync/pkg/s3client"
)

type storedObject struct {
	body        []byte
	checksum    string
	contentType string
}

type mockS3Client struct {
	mu      sync.Mutex
	objects map[string]storedObject
	puts    int
	failKey string
}

func newMockS3Client() *mockS3Client {
	return &mockS3Client{objects: map[string]storedObject{}}
}

func (m *mockS3Client) HeadObject(_ context.Context, req *s3client.HeadObjectRequest) (*s3client.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[req.Bucket+"/"+req.Key]
	if !ok {
		return nil, s3client.ErrNotFound
	}
	return &s3client.ObjectInfo{Size: int64(len(obj.body)), Checksum: obj.checksum}, nil
}

func (m *mockS3Client) PutObject(_ context.Context, req *s3client.PutObjectRequest) error {
	if req.Key == m.failKey {
		return errors.New("access denied")
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	m.objects[req.Bucket+"/"+req.Key] = storedObject{body: body, checksum: req.Checksum, contentType: req.ContentType}
	return nil
}

func TestNewS3RejectsInvalidURI(t *testing.T) {
	_, err := NewS3(newMockS3Client(), "/local/path")
	assert.Error(t, err)
}

func TestS3TransferBatch(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "hello")
	writeFile(t, filepath.Join(src, "dir", "page.html"), "<html></html>")

	client := newMockS3Client()
	s3, err := NewS3(client, "s3://bucket/backup/")
	require.NoError(t, err)

	unit := &plan.Batch{Seq: 1, Number: 1, Paths: []string{"a.txt", "dir/page.html"}, Size: 18}
	require.NoError(t, s3.Transfer(context.Background(), Request{Unit: unit, SourceRoot: src}))

	require.Contains(t, client.objects, "bucket/backup/a.txt")
	require.Contains(t, client.objects, "bucket/backup/dir/page.html")
	assert.Equal(t, "hello", string(client.objects["bucket/backup/a.txt"].body))
	assert.Contains(t, client.objects["bucket/backup/dir/page.html"].contentType, "text/html")

	want, err := checksum.CalculateFileSHA256(filepath.Join(src, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, want, client.objects["bucket/backup/a.txt"].checksum)
}

func TestS3TransferResumeSkipsUpToDate(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "big.bin"), "payload")

	client := newMockS3Client()
	s3, err := NewS3(client, "s3://bucket")
	require.NoError(t, err)

	req := Request{
		Unit:       &plan.SingleFile{Seq: 1, Path: filepath.Join(src, "big.bin"), RelPath: "big.bin", Size: 7},
		SourceRoot: src,
		Resume:     true,
	}
	require.NoError(t, s3.Transfer(context.Background(), req))
	require.NoError(t, s3.Transfer(context.Background(), req))
	assert.Equal(t, 1, client.puts)

	// Same size, different content: only the checksum tells them apart.
	writeFile(t, filepath.Join(src, "big.bin"), "PAYLOAD")
	require.NoError(t, s3.Transfer(context.Background(), req))
	assert.Equal(t, 2, client.puts)
	require.NoError(t, s3.Transfer(context.Background(), req))
	assert.Equal(t, 2, client.puts)

	writeFile(t, filepath.Join(src, "big.bin"), "changed payload")
	require.NoError(t, s3.Transfer(context.Background(), req))
	assert.Equal(t, 3, client.puts)
}

func TestS3TransferDryRun(t *testing.T) {
	client := newMockS3Client()
	s3, err := NewS3(client, "s3://bucket/p")
	require.NoError(t, err)

	var log bytes.Buffer
	err = s3.Transfer(context.Background(), Request{
		Unit:       &plan.Batch{Seq: 1, Number: 1, Paths: []string{"missing.txt"}},
		SourceRoot: t.TempDir(),
		DryRun:     true,
		Log:        &log,
	})
	require.NoError(t, err)
	assert.Zero(t, client.puts)
	assert.Contains(t, log.String(), "(dryrun) upload:")
	assert.Contains(t, log.String(), "s3://bucket/p/missing.txt")
}

func TestS3TransferBatchFailsWhenAnyMemberFails(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "a")
	writeFile(t, filepath.Join(src, "b.txt"), "b")

	client := newMockS3Client()
	client.failKey = "a.txt"
	s3, err := NewS3(client, "s3://bucket")
	require.NoError(t, err)

	err = s3.Transfer(context.Background(), Request{
		Unit:       &plan.Batch{Seq: 1, Number: 1, Paths: []string{"a.txt", "b.txt", "gone.txt"}},
		SourceRoot: src,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a.txt")
	assert.Contains(t, err.Error(), "gone.txt")
	assert.Contains(t, client.objects, "bucket/b.txt")
}
