package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/sassh/portal/internal/storage"
)

// Index wraps a Bleve search index of catalog articles
type Index struct {
	index bleve.Index
}

// IndexedArticle represents an article in the search index
type IndexedArticle struct {
	ID          string
	Title       string
	Description string
	Category    string
	CategoryID  string
	PDFURL      string
	CreatedAt   time.Time
}

// SearchResult represents a search result
type SearchResult struct {
	ID        string              `json:"id"`
	Title     string              `json:"title"`
	Category  string              `json:"category"`
	PDFURL    string              `json:"pdfUrl"`
	Score     float64             `json:"score"`
	Fragments map[string][]string `json:"fragments,omitempty"` // Highlighted snippets
}

// Open opens or creates a Bleve index
func Open(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	return &Index{index: idx}, nil
}

// buildIndexMapping weights titles with the English analyzer and keeps IDs exact
func buildIndexMapping() mapping.IndexMapping {
	titleFieldMapping := bleve.NewTextFieldMapping()
	titleFieldMapping.Analyzer = "en"

	keywordFieldMapping := bleve.NewTextFieldMapping()
	keywordFieldMapping.Analyzer = keyword.Name

	storedOnly := bleve.NewTextFieldMapping()
	storedOnly.Index = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("ID", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("Title", titleFieldMapping)
	docMapping.AddFieldMappingsAt("Description", bleve.NewTextFieldMapping())
	docMapping.AddFieldMappingsAt("Category", bleve.NewTextFieldMapping())
	docMapping.AddFieldMappingsAt("CategoryID", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("PDFURL", storedOnly)
	docMapping.AddFieldMappingsAt("CreatedAt", bleve.NewDateTimeFieldMapping())

	indexMapping := bleve.NewIndexMapping()
	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}

// Close closes the index
func (i *Index) Close() error {
	return i.index.Close()
}

// IndexArticle adds or updates an article in the index
func (i *Index) IndexArticle(_ context.Context, a *storage.Article, category string) error {
	doc := toIndexed(a, category)
	if err := i.index.Index(doc.ID, doc); err != nil {
		return fmt.Errorf("index article %s: %w", a.ID, err)
	}
	return nil
}

// Delete removes an article from the index
func (i *Index) Delete(id string) error {
	return i.index.Delete(id)
}

func toIndexed(a *storage.Article, category string) *IndexedArticle {
	return &IndexedArticle{
		ID:          a.ID,
		Title:       a.Title,
		Description: a.Description,
		Category:    category,
		CategoryID:  a.CategoryID,
		PDFURL:      a.PDFURL,
		CreatedAt:   a.CreatedAt,
	}
}

// Search performs a query string search, optionally restricted to one category
func (i *Index) Search(queryStr, categoryID string, limit int) ([]*SearchResult, error) {
	// Query strings support quotes, boolean operators and fuzzy ~
	var q query.Query = bleve.NewQueryStringQuery(queryStr)
	if categoryID != "" {
		term := bleve.NewTermQuery(categoryID)
		term.SetField("CategoryID")
		q = bleve.NewConjunctionQuery(q, term)
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Highlight = bleve.NewHighlightWithStyle("html")
	req.Fields = []string{"Title", "Category", "PDFURL"}

	results, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	searchResults := make([]*SearchResult, 0, len(results.Hits))
	for _, hit := range results.Hits {
		result := &SearchResult{
			ID:        hit.ID,
			Score:     hit.Score,
			Fragments: hit.Fragments,
		}

		if title, ok := hit.Fields["Title"].(string); ok {
			result.Title = title
		}
		if category, ok := hit.Fields["Category"].(string); ok {
			result.Category = category
		}
		if url, ok := hit.Fields["PDFURL"].(string); ok {
			result.PDFURL = url
		}

		searchResults = append(searchResults, result)
	}

	return searchResults, nil
}

// IndexFromStorage indexes every published article in the catalog
func (i *Index) IndexFromStorage(ctx context.Context, db *storage.DB) (int, error) {
	categories, err := db.ListCategories(ctx, false)
	if err != nil {
		return 0, fmt.Errorf("list categories: %w", err)
	}
	names := make(map[string]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	articles, err := db.ListArticles(ctx, storage.ArticleFilter{PublishedOnly: true})
	if err != nil {
		return 0, fmt.Errorf("list articles: %w", err)
	}

	batch := i.index.NewBatch()
	for _, a := range articles {
		doc := toIndexed(a, names[a.CategoryID])
		if err := batch.Index(doc.ID, doc); err != nil {
			return 0, fmt.Errorf("batch index %s: %w", a.ID, err)
		}
	}

	if err := i.index.Batch(batch); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}

	return len(articles), nil
}

// Count returns the number of articles in the index
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}
