package service

import (
	"fmt"
	"io"
	"strings"
)

var allowedMIMETypes = map[string]struct{}{
	"application/pdf":    {},
	"image/jpeg":         {},
	"image/jpg":          {},
	"image/png":          {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
}

// normalizeMIME lower-cases a Content-Type and drops its parameters.
func normalizeMIME(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// AllowedMIME reports whether contentType is an accepted document type.
func AllowedMIME(contentType string) bool {
	_, ok := allowedMIMETypes[normalizeMIME(contentType)]
	return ok
}

// readUpload applies the absent/type/size gate and reads at most maxSize bytes.
// declaredSize < 0 means unknown. Gate failures wrap ErrInvalidInput; a read
// failure is returned as is.
func readUpload(r io.Reader, contentType string, declaredSize, maxSize int64) ([]byte, string, error) {
	if r == nil {
		return nil, "", fmt.Errorf("%w: no file uploaded", ErrInvalidInput)
	}
	mt := normalizeMIME(contentType)
	if _, ok := allowedMIMETypes[mt]; !ok {
		return nil, "", fmt.Errorf("%w: file type %q is not allowed", ErrInvalidInput, contentType)
	}
	if declaredSize > maxSize {
		return nil, "", fmt.Errorf("%w: file exceeds maximum size of %d bytes", ErrInvalidInput, maxSize)
	}
	if declaredSize == 0 {
		return nil, "", fmt.Errorf("%w: file is empty", ErrInvalidInput)
	}

	body, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(body)) > maxSize {
		return nil, "", fmt.Errorf("%w: file exceeds maximum size of %d bytes", ErrInvalidInput, maxSize)
	}
	if len(body) == 0 {
		return nil, "", fmt.Errorf("%w: file is empty", ErrInvalidInput)
	}
	return body, mt, nil
}
