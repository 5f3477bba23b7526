package dropbox

import (
	"errors"
	"fmt"
)

// ErrReadOnly is returned for any operation that could modify the remote tree
var ErrReadOnly = errors.New("client is read-only")

// APIError is a non-2xx answer from the Dropbox API
type APIError struct {
	Endpoint string
	Status   int
	Summary  string
}

func (e *APIError) Error() string {
	if e.Summary != "" {
		return fmt.Sprintf("dropbox %s: status %d: %s", e.Endpoint, e.Status, e.Summary)
	}
	return fmt.Sprintf("dropbox %s: status %d", e.Endpoint, e.Status)
}

// ListError reports a failed folder listing
type ListError struct {
	Path string
	Err  error
}

func (e *ListError) Error() string {
	path := e.Path
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("list %s: %v", path, e.Err)
}

func (e *ListError) Unwrap() error { return e.Err }

// TokenError reports a failed access token refresh
type TokenError struct {
	Err error
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("dropbox token refresh failed: %v", e.Err)
}

func (e *TokenError) Unwrap() error { return e.Err }
