package dropbox

import (
	"context"
	"fmt"
)

// Write operations are refused without touching the network.

func blocked(op string) error {
	return fmt.Errorf("dropbox write operation %q is blocked: %w", op, ErrReadOnly)
}

// Upload always fails with ErrReadOnly
func (c *Client) Upload(context.Context, string, []byte) error { return blocked("upload") }

// Delete always fails with ErrReadOnly
func (c *Client) Delete(context.Context, string) error { return blocked("delete") }

// Move always fails with ErrReadOnly
func (c *Client) Move(context.Context, string, string) error { return blocked("move") }

// Copy always fails with ErrReadOnly
func (c *Client) Copy(context.Context, string, string) error { return blocked("copy") }

// CreateFolder always fails with ErrReadOnly
func (c *Client) CreateFolder(context.Context, string) error { return blocked("create_folder") }
