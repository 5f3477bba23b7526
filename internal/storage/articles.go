package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

var articleColumns = []string{
	"id", "title", "description", "pdf_url", "image_url", "published",
	"author_id", "category_id", "source_path", "synced_at", "created_at",
}

func scanArticle(row interface{ Scan(...interface{}) error }) (*Article, error) {
	a := &Article{}
	err := row.Scan(
		&a.ID, &a.Title, &a.Description, &a.PDFURL, &a.ImageURL, &a.Published,
		&a.AuthorID, &a.CategoryID, &a.SourcePath, &a.SyncedAt, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (d *DB) getArticle(ctx context.Context, where sq.Eq) (*Article, error) {
	row, err := d.queryRow(ctx, sq.Select(articleColumns...).From("articles").Where(where))
	if err != nil {
		return nil, err
	}

	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// GetArticle retrieves an article by ID, or nil if none exists
func (d *DB) GetArticle(ctx context.Context, id string) (*Article, error) {
	a, err := d.getArticle(ctx, sq.Eq{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get article %s: %w", id, err)
	}
	return a, nil
}

// GetArticleBySourcePath retrieves the article synced from a source path, or nil
func (d *DB) GetArticleBySourcePath(ctx context.Context, sourcePath string) (*Article, error) {
	a, err := d.getArticle(ctx, sq.Eq{"source_path": sourcePath})
	if err != nil {
		return nil, fmt.Errorf("get article by source %s: %w", sourcePath, err)
	}
	return a, nil
}

// CreateArticle inserts an article, assigning an ID and creation time when unset.
// A second article with the same source path fails with ErrDuplicate.
func (d *DB) CreateArticle(ctx context.Context, a *Article) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	err := d.exec(ctx, sq.Insert("articles").
		Columns(articleColumns...).
		Values(
			a.ID, a.Title, a.Description, a.PDFURL, a.ImageURL, a.Published,
			a.AuthorID, a.CategoryID, a.SourcePath, a.SyncedAt, a.CreatedAt,
		))
	if isUniqueViolation(err) {
		return fmt.Errorf("create article %q: %w", a.Title, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("create article %q: %w", a.Title, err)
	}
	return nil
}

// ListArticles returns articles newest first
func (d *DB) ListArticles(ctx context.Context, f ArticleFilter) ([]*Article, error) {
	b := sq.Select(articleColumns...).From("articles").OrderBy("created_at DESC", "title")
	if f.CategoryID != "" {
		b = b.Where(sq.Eq{"category_id": f.CategoryID})
	}
	if f.PublishedOnly {
		b = b.Where(sq.Eq{"published": true})
	}
	if f.Limit > 0 {
		b = b.Limit(f.Limit)
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	var articles []*Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, a)
	}

	return articles, rows.Err()
}

// CountArticles returns the total number of articles
func (d *DB) CountArticles(ctx context.Context) (int, error) {
	row, err := d.queryRow(ctx, sq.Select("COUNT(*)").From("articles"))
	if err != nil {
		return 0, err
	}

	var count int
	err = row.Scan(&count)
	return count, err
}
