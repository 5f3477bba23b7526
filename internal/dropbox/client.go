package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf16"
)

// readEndpoints are the only API routes the client will call.
var readEndpoints = map[string]bool{
	"files/list_folder":          true,
	"files/list_folder/continue": true,
	"files/download":             true,
}

// Client is a read-only Dropbox API client
type Client struct {
	apiURL     string
	contentURL string
	rootPath   string
	excluded   map[string]bool
	tokens     TokenSource
	httpClient *http.Client
}

// Options configures a Client
type Options struct {
	APIURL          string
	ContentURL      string
	RootPath        string
	ExcludedFolders []string
	Timeout         time.Duration
	HTTPClient      *http.Client
}

// NewClient creates a new Dropbox API client
func NewClient(tokens TokenSource, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	excluded := make(map[string]bool, len(opts.ExcludedFolders))
	for _, name := range opts.ExcludedFolders {
		excluded[strings.ToLower(name)] = true
	}

	return &Client{
		apiURL:     strings.TrimRight(opts.APIURL, "/"),
		contentURL: strings.TrimRight(opts.ContentURL, "/"),
		rootPath:   normalizePath(opts.RootPath),
		excluded:   excluded,
		tokens:     tokens,
		httpClient: httpClient,
	}
}

// normalizePath maps "/" to "" since Dropbox names the root with an empty path
func normalizePath(p string) string {
	p = strings.TrimRight(strings.TrimSpace(p), "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// rpc performs a JSON request against an API endpoint
func (c *Client) rpc(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	if !readEndpoints[endpoint] {
		return fmt.Errorf("%s: %w", endpoint, ErrReadOnly)
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/"+endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return newAPIError(endpoint, resp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

func newAPIError(endpoint string, status int, body []byte) *APIError {
	apiErr := &APIError{Endpoint: endpoint, Status: status}
	var parsed apiErrorBody
	if json.Unmarshal(body, &parsed) == nil && parsed.ErrorSummary != "" {
		apiErr.Summary = parsed.ErrorSummary
	} else {
		apiErr.Summary = strings.TrimSpace(string(body))
	}
	return apiErr
}

// listAll lists a folder, following the cursor until has_more is false
func (c *Client) listAll(ctx context.Context, path string, recursive bool, visit func(entry)) error {
	var page listFolderResult
	if err := c.rpc(ctx, "files/list_folder", listFolderRequest{Path: path, Recursive: recursive}, &page); err != nil {
		return &ListError{Path: path, Err: err}
	}

	for {
		for _, e := range page.Entries {
			visit(e)
		}
		if !page.HasMore {
			return nil
		}

		cursor := page.Cursor
		page = listFolderResult{}
		if err := c.rpc(ctx, "files/list_folder/continue", listFolderContinueRequest{Cursor: cursor}, &page); err != nil {
			return &ListError{Path: path, Err: err}
		}
	}
}

// ListCategoryFolders returns the folders directly under the root, minus the excluded names
func (c *Client) ListCategoryFolders(ctx context.Context) ([]Folder, error) {
	var folders []Folder
	err := c.listAll(ctx, c.rootPath, false, func(e entry) {
		if e.Tag != "folder" || c.excluded[strings.ToLower(e.Name)] {
			return
		}
		folders = append(folders, Folder{Name: e.Name, Path: e.PathLower})
	})
	if err != nil {
		return nil, err
	}
	return folders, nil
}

// ListFilesRecursive returns every file below path, in listing order
func (c *Client) ListFilesRecursive(ctx context.Context, path string) ([]FileEntry, error) {
	var files []FileEntry
	err := c.listAll(ctx, path, true, func(e entry) {
		if e.Tag != "file" {
			return
		}
		files = append(files, FileEntry{Name: e.Name, Path: e.PathLower, Size: e.Size})
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Download fetches the contents of the file at path
func (c *Client) Download(ctx context.Context, path string) ([]byte, error) {
	const endpoint = "files/download"

	arg, err := apiArg(downloadArg{Path: path})
	if err != nil {
		return nil, fmt.Errorf("marshal arg: %w", err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.contentURL+"/"+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Dropbox-API-Arg", arg)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: %w", path, newAPIError(endpoint, resp.StatusCode, body))
	}

	return body, nil
}

// apiArg encodes v for an HTTP header, escaping non-ASCII runes as the API requires
func apiArg(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, r := range string(raw) {
		if r < 0x7f {
			b.WriteRune(r)
			continue
		}
		if r > 0xffff {
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(&b, "\\u%04x\\u%04x", hi, lo)
			continue
		}
		fmt.Fprintf(&b, "\\u%04x", r)
	}
	return b.String(), nil
}
