// Package storage contains the blob store abstraction and its S3-compatible and GCS backends.
// The store holds the uploaded document bytes; the registry never sees these pointers.
package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
)

// ErrUnavailable wraps every backend failure. A failed Put may still have landed server-side.
var ErrUnavailable = errors.New("blob store unavailable")

// PutObjectOptions define optional parameters for uploading objects.
// ContentType and Metadata are stored alongside the object as-is.
type PutObjectOptions struct {
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo describes a stored object and how to retrieve it.
type ObjectInfo struct {
	Key         string
	URL         string
	Size        int64
	ETag        string
	ContentType string
	Metadata    map[string]string
}

// Storage is the blob store client used by the registration workflow.
// No dedup is provided: callers must dedup upstream through the registry.
type Storage interface {
	// Put uploads size bytes from r under key and returns a durable retrieval pointer.
	Put(ctx context.Context, key string, r io.Reader, size int64, opt PutObjectOptions) (ObjectInfo, error)
	// Delete removes an object by key.
	Delete(ctx context.Context, key string) error
	// Ping checks that the backing bucket is reachable.
	Ping(ctx context.Context) error
}

// joinURL appends an object key to a public base URL, escaping each path segment.
func joinURL(base, key string) string {
	segs := strings.Split(key, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segs, "/")
}
