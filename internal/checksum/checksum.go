package checksum

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
)

const bufferSize = 64 * 1024 // 64KB buffer

// CalculateFileSHA256 calculates SHA-256 checksum of a file and returns base64 encoded string
func CalculateFileSHA256(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	return CalculateSHA256(file)
}

// CalculateSHA256 calculates SHA-256 checksum from reader and returns base64 encoded string
func CalculateSHA256(r io.Reader) (string, error) {
	hash := sha256.New()
	if _, err := io.CopyBuffer(hash, r, make([]byte, bufferSize)); err != nil {
		return "", fmt.Errorf("read: %w", err)
	}

	// Same format S3 uses for checksum headers
	return base64.StdEncoding.EncodeToString(hash.Sum(nil)), nil
}

// Matches reports whether the file at filePath has the expected checksum.
// An empty expected checksum never matches.
func Matches(filePath, expected string) (bool, error) {
	if expected == "" {
		return false, nil
	}
	actual, err := CalculateFileSHA256(filePath)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}
