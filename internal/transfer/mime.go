package transfer

import (
	"mime"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// guessContentType resolves a Content-Type from the file extension and
// falls back to sniffing the file's leading bytes.
func guessContentType(filename string) string {
	if ext := filepath.Ext(filename); ext != "" {
		if contentType := mime.TypeByExtension(ext); contentType != "" {
			return contentType
		}
	}

	mt, err := mimetype.DetectFile(filename)
	if err != nil {
		return ""
	}
	return mt.String()
}
