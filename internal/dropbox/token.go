package dropbox

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// TokenSource hands out a valid access token for API calls
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// refreshTimeout bounds one token exchange
const refreshTimeout = 30 * time.Second

// StaticToken is a fixed access token, handy for development
type StaticToken string

// Token returns the fixed token
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// TokenCache caches one access token and refreshes it through the
// refresh-token grant once it is missing or past its expiry.
type TokenCache struct {
	conf         *oauth2.Config
	refreshToken string
	margin       time.Duration
	httpClient   *http.Client
	now          func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time // zero when the server reported no lifetime

	group singleflight.Group
}

// TokenCacheOptions configures a TokenCache
type TokenCacheOptions struct {
	AppKey       string
	AppSecret    string
	RefreshToken string
	TokenURL     string
	// Margin is subtracted from the reported lifetime.
	Margin     time.Duration
	HTTPClient *http.Client
}

// NewTokenCache creates a token cache; no exchange happens until the first Token call
func NewTokenCache(opts TokenCacheOptions) *TokenCache {
	return &TokenCache{
		conf: &oauth2.Config{
			ClientID:     opts.AppKey,
			ClientSecret: opts.AppSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  opts.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		refreshToken: opts.RefreshToken,
		margin:       opts.Margin,
		httpClient:   opts.HTTPClient,
		now:          time.Now,
	}
}

// Token returns the cached token, refreshing it first if it is stale
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if tok, ok := c.cached(); ok {
		return tok, nil
	}

	// The exchange is shared by every waiter and outlives the caller that started it.
	ch := c.group.DoChan("refresh", func() (any, error) {
		// Another caller may have refreshed while we waited.
		if tok, ok := c.cached(); ok {
			return tok, nil
		}
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return c.refresh(refreshCtx)
	})

	select {
	case <-ctx.Done():
		return "", &TokenError{Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *TokenCache) cached() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == "" {
		return "", false
	}
	if !c.expiry.IsZero() && !c.now().Before(c.expiry) {
		return "", false
	}
	return c.token, true
}

func (c *TokenCache) refresh(ctx context.Context) (string, error) {
	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}

	tok, err := c.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: c.refreshToken}).Token()
	if err != nil {
		return "", &TokenError{Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = tok.AccessToken
	c.expiry = time.Time{}
	if !tok.Expiry.IsZero() {
		c.expiry = tok.Expiry.Add(-c.margin)
	}
	return c.token, nil
}
