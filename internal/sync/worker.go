// Package sync mirrors the shared Dropbox folder tree into the article catalog.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/sassh/portal/internal/blob"
	"github.com/sassh/portal/internal/dropbox"
	"github.com/sassh/portal/internal/metadata"
	"github.com/sassh/portal/internal/storage"
)

var (
	// ErrSyncBotMissing means the bot account that owns synced articles is not in the catalog
	ErrSyncBotMissing = errors.New("sync bot user not found")
	// ErrSyncInProgress is returned when another run holds the worker
	ErrSyncInProgress = errors.New("sync already in progress")
)

// BlobPrefix is the key prefix for every file uploaded by the sync
const BlobPrefix = "articles/sync"

// Source is the read-only remote tree
type Source interface {
	ListCategoryFolders(ctx context.Context) ([]dropbox.Folder, error)
	ListFilesRecursive(ctx context.Context, path string) ([]dropbox.FileEntry, error)
	Download(ctx context.Context, path string) ([]byte, error)
}

// Catalog is the subset of the catalog store the sync writes through
type Catalog interface {
	GetUserByEmail(ctx context.Context, email string) (*storage.User, error)
	EnsureCategory(ctx context.Context, name string) (*storage.Category, bool, error)
	GetArticleBySourcePath(ctx context.Context, sourcePath string) (*storage.Article, error)
	CreateArticle(ctx context.Context, a *storage.Article) error
}

// Indexer receives newly created articles
type Indexer interface {
	IndexArticle(ctx context.Context, a *storage.Article, category string) error
}

// Worker handles syncing folders from Dropbox
type Worker struct {
	source   Source
	catalog  Catalog
	blobs    blob.Store
	index    Indexer // optional
	botEmail string
	logger   *slog.Logger
	now      func() time.Time

	running sync.Mutex
}

// NewWorker creates a new sync worker
func NewWorker(source Source, catalog Catalog, blobs blob.Store, index Indexer, botEmail string, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		source:   source,
		catalog:  catalog,
		blobs:    blobs,
		index:    index,
		botEmail: botEmail,
		logger:   logger,
		now:      time.Now,
	}
}

// ItemError records one failed folder or file
type ItemError struct {
	Folder string `json:"folder"`
	File   string `json:"file"`
	Error  string `json:"error"`
}

// Stats holds sync statistics
type Stats struct {
	Created  int           `json:"created"`
	Skipped  int           `json:"skipped"`
	Errors   []ItemError   `json:"errors"`
	Duration time.Duration `json:"-"`
}

func (s *Stats) fail(folder, file string, err error) {
	s.Errors = append(s.Errors, ItemError{Folder: folder, File: file, Error: err.Error()})
}

// Sync performs one full pass over the category folders. Only a missing bot
// user or a failed root listing abort the run; everything else is recorded in
// the returned stats.
func (w *Worker) Sync(ctx context.Context) (*Stats, error) {
	if !w.running.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer w.running.Unlock()

	startTime := w.now()
	stats := &Stats{Errors: []ItemError{}}

	w.logger.Info("starting sync")

	bot, err := w.catalog.GetUserByEmail(ctx, w.botEmail)
	if err != nil {
		return nil, fmt.Errorf("get sync bot: %w", err)
	}
	if bot == nil {
		return nil, fmt.Errorf("%w: %s", ErrSyncBotMissing, w.botEmail)
	}

	folders, err := w.source.ListCategoryFolders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list category folders: %w", err)
	}
	w.logger.Info("found category folders", "count", len(folders))

	for _, folder := range folders {
		w.syncFolder(ctx, folder, bot, stats)
	}

	stats.Duration = w.now().Sub(startTime)
	w.logger.Info("sync complete",
		"created", stats.Created,
		"skipped", stats.Skipped,
		"errors", len(stats.Errors),
		"duration", stats.Duration)

	return stats, nil
}

// syncFolder syncs every candidate of a single category folder
func (w *Worker) syncFolder(ctx context.Context, folder dropbox.Folder, bot *storage.User, stats *Stats) {
	log := w.logger.With("folder", folder.Name)

	files, err := w.source.ListFilesRecursive(ctx, folder.Path)
	if err != nil {
		log.Error("list folder failed", "error", err)
		stats.fail(folder.Name, "*", err)
		return
	}

	if !metadata.HasSyncable(files) {
		log.Debug("no syncable files")
		return
	}

	candidates, err := metadata.Resolve(ctx, w.source, folder.Path, files)
	if err != nil {
		log.Error("resolve metadata failed", "error", err)
		stats.fail(folder.Name, "metadata", err)
		return
	}
	if len(candidates) == 0 {
		return
	}

	category, created, err := w.catalog.EnsureCategory(ctx, folder.Name)
	if err != nil {
		log.Error("ensure category failed", "error", err)
		stats.fail(folder.Name, "*", err)
		return
	}
	if created {
		log.Info("created category", "order", category.Order)
	}

	for _, c := range candidates {
		skipped, err := w.syncCandidate(ctx, folder, category, bot, c)
		switch {
		case err != nil:
			log.Error("sync file failed", "file", c.Filename, "error", err)
			stats.fail(folder.Name, c.Filename, err)
		case skipped:
			stats.Skipped++
		default:
			stats.Created++
		}
	}
}

// syncCandidate creates the article for c unless one already exists for its path
func (w *Worker) syncCandidate(ctx context.Context, folder dropbox.Folder, category *storage.Category, bot *storage.User, c metadata.Candidate) (bool, error) {
	existing, err := w.catalog.GetArticleBySourcePath(ctx, c.Path)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return true, nil
	}

	pdfURL, err := w.transfer(ctx, folder, c.Filename, c.Path)
	if err != nil {
		return false, err
	}

	var imageURL *string
	if c.HasImage() {
		url, err := w.transfer(ctx, folder, c.ImageFilename, c.ImagePath)
		if err != nil {
			w.logger.Warn("cover image skipped",
				"folder", folder.Name,
				"file", c.Filename,
				"image", c.ImageFilename,
				"error", err)
		} else {
			imageURL = &url
		}
	}

	syncedAt := w.now().UTC()
	sourcePath := c.Path
	article := &storage.Article{
		Title:       c.Title,
		Description: c.Description,
		PDFURL:      pdfURL,
		ImageURL:    imageURL,
		Published:   true,
		AuthorID:    bot.ID,
		CategoryID:  category.ID,
		SourcePath:  &sourcePath,
		SyncedAt:    &syncedAt,
	}
	if err := w.catalog.CreateArticle(ctx, article); err != nil {
		return false, err
	}
	w.logger.Info("created article", "folder", folder.Name, "file", c.Filename, "id", article.ID)

	if w.index != nil {
		if err := w.index.IndexArticle(ctx, article, category.Name); err != nil {
			w.logger.Warn("index article failed", "id", article.ID, "error", err)
		}
	}

	return false, nil
}

// transfer copies one remote file into the blob store and returns its public URL
func (w *Worker) transfer(ctx context.Context, folder dropbox.Folder, filename, path string) (string, error) {
	data, err := w.source.Download(ctx, path)
	if err != nil {
		return "", err
	}

	key := blobKey(folder, filename, path)
	url, err := w.blobs.Put(ctx, key, data, blob.ContentTypeFor(filename))
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return url, nil
}

// blobKey namespaces a file by its category folder and any subfolder below
// it, so same-named files in different subfolders never share a key.
func blobKey(folder dropbox.Folder, filename, remotePath string) string {
	key := BlobPrefix + "/" + folder.Name
	rel := strings.TrimPrefix(remotePath, folder.Path+"/")
	if dir := path.Dir(rel); rel != remotePath && dir != "." {
		key += "/" + dir
	}
	return key + "/" + path.Base(filename)
}
