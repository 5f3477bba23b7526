// Package blob stores synced files in durable, publicly readable object storage.
package blob

import (
	"context"
	"path"
	"strings"
)

// Store writes an object and returns its public URL
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// DefaultContentType is used for extensions with no known type.
const DefaultContentType = "application/octet-stream"

var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".json": "application/json",
}

// ContentTypeFor infers the content type from a file name's extension
func ContentTypeFor(filename string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(filename))]; ok {
		return ct
	}
	return DefaultContentType
}
