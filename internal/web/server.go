// Package web exposes the sync trigger and the read-only catalog API over HTTP.
package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sassh/portal/internal/search"
	"github.com/sassh/portal/internal/storage"
	"github.com/sassh/portal/internal/sync"
)

// Syncer runs one sync pass
type Syncer interface {
	Sync(ctx context.Context) (*sync.Stats, error)
}

// Catalog is the read side of the catalog store
type Catalog interface {
	ListCategories(ctx context.Context, publishedOnly bool) ([]*storage.CategorySummary, error)
	ListArticles(ctx context.Context, f storage.ArticleFilter) ([]*storage.Article, error)
	GetArticle(ctx context.Context, id string) (*storage.Article, error)
	CountArticles(ctx context.Context) (int, error)
}

// Searcher queries the article index
type Searcher interface {
	Search(queryStr, categoryID string, limit int) ([]*search.SearchResult, error)
	Count() (uint64, error)
}

// Options configures a Server
type Options struct {
	CronSecret    string
	SyncAPISecret string
	SyncTimeout   time.Duration
	FilesDir      string // served at /files when set
	Logger        *slog.Logger
}

type Server struct {
	syncer  Syncer
	catalog Catalog
	idx     Searcher
	opts    Options
	logger  *slog.Logger
}

type SearchResponse struct {
	Results []*search.SearchResult `json:"results"`
	Query   string                 `json:"query"`
	Count   int                    `json:"count"`
}

func NewServer(syncer Syncer, catalog Catalog, idx Searcher, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = 5 * time.Minute
	}
	return &Server{
		syncer:  syncer,
		catalog: catalog,
		idx:     idx,
		opts:    opts,
		logger:  logger,
	}
}

func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests)

	if s.opts.FilesDir != "" {
		r.Static("/files", s.opts.FilesDir)
	}

	r.GET("/health", s.handleHealth)

	syncRoutes := r.Group("/api/sync")
	syncRoutes.Use(s.syncAuthRequired)
	{
		syncRoutes.GET("/dropbox", s.handleSync)
		syncRoutes.POST("/dropbox", s.handleSync)
	}

	api := r.Group("/api")
	{
		api.GET("/categories", s.handleCategories)
		api.GET("/articles", s.handleArticles)
		api.GET("/articles/:id", s.handleGetArticle)
		api.GET("/search", s.handleSearch)
	}

	return r
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Info("request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start))
}

// syncAuthRequired accepts the scheduler's shared secret or the admin bearer token
func (s *Server) syncAuthRequired(c *gin.Context) {
	if secretMatches(c.GetHeader("X-Cron-Secret"), s.opts.CronSecret) {
		c.Next()
		return
	}

	auth := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok && secretMatches(token, s.opts.SyncAPISecret) {
		c.Next()
		return
	}

	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
}

// secretMatches compares in constant time; an unset secret never matches
func secretMatches(got, want string) bool {
	if want == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// handleSync runs a full pass; a client disconnect does not end it, only SyncTimeout does
func (s *Server) handleSync(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), s.opts.SyncTimeout)
	defer cancel()

	stats, err := s.syncer.Sync(ctx)
	if errors.Is(err, sync.ErrSyncInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		s.logger.Error("sync failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"created": stats.Created,
		"skipped": stats.Skipped,
		"errors":  stats.Errors,
	})
}

func (s *Server) handleCategories(c *gin.Context) {
	categories, err := s.catalog.ListCategories(c.Request.Context(), true)
	if err != nil {
		s.logger.Error("list categories", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch categories"})
		return
	}
	if categories == nil {
		categories = []*storage.CategorySummary{}
	}
	c.JSON(http.StatusOK, categories)
}

func (s *Server) handleArticles(c *gin.Context) {
	articles, err := s.catalog.ListArticles(c.Request.Context(), storage.ArticleFilter{
		CategoryID:    c.Query("category"),
		PublishedOnly: true,
	})
	if err != nil {
		s.logger.Error("list articles", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch articles"})
		return
	}
	if articles == nil {
		articles = []*storage.Article{}
	}
	c.JSON(http.StatusOK, articles)
}

func (s *Server) handleGetArticle(c *gin.Context) {
	article, err := s.catalog.GetArticle(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.logger.Error("get article", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch article"})
		return
	}
	if article == nil || !article.Published {
		c.JSON(http.StatusNotFound, gin.H{"error": "Article not found"})
		return
	}
	c.JSON(http.StatusOK, article)
}

func (s *Server) handleSearch(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing q parameter"})
		return
	}

	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	results, err := s.idx.Search(query, c.Query("category"), limit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, SearchResponse{Results: results, Query: query, Count: len(results)})
}

func (s *Server) handleHealth(c *gin.Context) {
	dbCount, _ := s.catalog.CountArticles(c.Request.Context())
	indexCount, _ := s.idx.Count()

	c.JSON(http.StatusOK, gin.H{
		"status":            "ok",
		"articles_in_db":    dbCount,
		"articles_in_index": indexCount,
	})
}
