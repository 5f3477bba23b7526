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

var categoryColumns = []string{"id", "name", "sort_order", "created_at"}

// GetCategoryByName retrieves a category by exact name, or nil if none exists
func (d *DB) GetCategoryByName(ctx context.Context, name string) (*Category, error) {
	row, err := d.queryRow(ctx, sq.Select(categoryColumns...).From("categories").Where(sq.Eq{"name": name}))
	if err != nil {
		return nil, err
	}

	c := &Category{}
	err = row.Scan(&c.ID, &c.Name, &c.Order, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get category %q: %w", name, err)
	}
	return c, nil
}

// MaxCategoryOrder returns the highest sort order in use, or 0 when empty
func (d *DB) MaxCategoryOrder(ctx context.Context) (int, error) {
	row, err := d.queryRow(ctx, sq.Select("COALESCE(MAX(sort_order), 0)").From("categories"))
	if err != nil {
		return 0, err
	}

	var highest int
	if err := row.Scan(&highest); err != nil {
		return 0, fmt.Errorf("max category order: %w", err)
	}
	return highest, nil
}

// CreateCategory inserts a category with the given order
func (d *DB) CreateCategory(ctx context.Context, name string, order int) (*Category, error) {
	c := &Category{
		ID:        uuid.NewString(),
		Name:      name,
		Order:     order,
		CreatedAt: time.Now().UTC(),
	}

	err := d.exec(ctx, sq.Insert("categories").
		Columns(categoryColumns...).
		Values(c.ID, c.Name, c.Order, c.CreatedAt))
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("create category %q: %w", name, ErrDuplicate)
	}
	if err != nil {
		return nil, fmt.Errorf("create category %q: %w", name, err)
	}
	return c, nil
}

// EnsureCategory returns the category called name, creating it at the end of
// the ordering if it does not exist yet
func (d *DB) EnsureCategory(ctx context.Context, name string) (*Category, bool, error) {
	c, err := d.GetCategoryByName(ctx, name)
	if err != nil || c != nil {
		return c, false, err
	}

	highest, err := d.MaxCategoryOrder(ctx)
	if err != nil {
		return nil, false, err
	}

	c, err = d.CreateCategory(ctx, name, highest+1)
	if errors.Is(err, ErrDuplicate) {
		// Lost a race with another writer; use theirs.
		c, err = d.GetCategoryByName(ctx, name)
		if err == nil && c == nil {
			err = fmt.Errorf("category %q vanished after conflict", name)
		}
		return c, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// SetCategoryOrder creates or reorders a category to the given position
func (d *DB) SetCategoryOrder(ctx context.Context, name string, order int) (*Category, error) {
	c, err := d.GetCategoryByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return d.CreateCategory(ctx, name, order)
	}
	if c.Order == order {
		return c, nil
	}

	err = d.exec(ctx, sq.Update("categories").Set("sort_order", order).Where(sq.Eq{"id": c.ID}))
	if err != nil {
		return nil, fmt.Errorf("update category %q: %w", name, err)
	}
	c.Order = order
	return c, nil
}

// ListCategories returns every category in display order with article counts
func (d *DB) ListCategories(ctx context.Context, publishedOnly bool) ([]*CategorySummary, error) {
	join := "articles a ON a.category_id = c.id"
	if publishedOnly {
		join += " AND a.published = 1"
	}

	query, args, err := sq.Select("c.id", "c.name", "c.sort_order", "c.created_at", "COUNT(a.id)").
		From("categories c").
		LeftJoin(join).
		GroupBy("c.id").
		OrderBy("c.sort_order", "c.name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []*CategorySummary
	for rows.Next() {
		s := &CategorySummary{}
		if err := rows.Scan(&s.ID, &s.Name, &s.Order, &s.CreatedAt, &s.ArticleCount); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
