package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// VercelStore uploads objects to Vercel Blob over its HTTP API
type VercelStore struct {
	apiURL     string
	token      string
	httpClient *http.Client
}

// NewVercelStore creates a Vercel Blob store using a read-write token
func NewVercelStore(apiURL, token string, timeout time.Duration) *VercelStore {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &VercelStore{
		apiURL:     strings.TrimRight(apiURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// putResponse is the JSON answer to an upload
type putResponse struct {
	URL         string `json:"url"`
	Pathname    string `json:"pathname"`
	ContentType string `json:"contentType"`
}

// Put uploads data as a public object at key
func (s *VercelStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}

	endpoint := s.apiURL + "/?pathname=" + url.QueryEscape(clean)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("x-api-version", "7")
	req.Header.Set("x-content-type", contentType)
	req.Header.Set("x-add-random-suffix", "0")
	req.Header.Set("x-allow-overwrite", "1")
	req.Header.Set("x-vercel-blob-access", "public")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", clean, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload %s: unexpected status %d: %s", clean, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out putResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("upload %s: response has no url", clean)
	}

	return out.URL, nil
}
