package main

import (
	"context"
	"fmt"

	"github.com/sassh/portal/internal/blob"
	"github.com/sassh/portal/internal/config"
	"github.com/sassh/portal/internal/dropbox"
	"github.com/sassh/portal/internal/sync"
)

// newDropboxClient prefers the refresh-token flow and falls back to a static token
func newDropboxClient(cfg config.Config) *dropbox.Client {
	var tokens dropbox.TokenSource
	if cfg.Dropbox.RefreshToken != "" {
		tokens = dropbox.NewTokenCache(dropbox.TokenCacheOptions{
			AppKey:       cfg.Dropbox.AppKey,
			AppSecret:    cfg.Dropbox.AppSecret,
			RefreshToken: cfg.Dropbox.RefreshToken,
			TokenURL:     cfg.Dropbox.TokenURL,
			Margin:       cfg.Dropbox.ExpiryMargin,
		})
	} else {
		tokens = dropbox.StaticToken(cfg.Dropbox.AccessToken)
	}

	return dropbox.NewClient(tokens, dropbox.Options{
		APIURL:          cfg.Dropbox.APIURL,
		ContentURL:      cfg.Dropbox.ContentURL,
		RootPath:        cfg.Dropbox.RootPath,
		ExcludedFolders: cfg.Dropbox.ExcludedFolders,
		Timeout:         cfg.Dropbox.Timeout,
	})
}

// newBlobStore returns the configured store, plus the FSStore when files are served locally
func newBlobStore(cfg config.Config) (blob.Store, *blob.FSStore, error) {
	switch cfg.Blob.Driver {
	case "fs":
		fs := blob.NewFSStore(cfg.BlobDir(), cfg.BlobBaseURL())
		return fs, fs, nil
	case "vercel":
		return blob.NewVercelStore(cfg.Blob.APIURL, cfg.Blob.Token, cfg.Dropbox.Timeout), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown blob driver %q", cfg.Blob.Driver)
	}
}

// unconfiguredSyncer answers sync requests when credentials are missing
type unconfiguredSyncer struct {
	err error
}

func (u unconfiguredSyncer) Sync(context.Context) (*sync.Stats, error) {
	return nil, fmt.Errorf("sync is not configured: %w", u.err)
}
