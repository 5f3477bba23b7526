package storage

import (
	"context"
	"fmt"
)

// DefaultCategories are the portal's launch categories in display order
var DefaultCategories = []string{
	"Tendon Repairs",
	"Nerve Repairs",
	"Scaphoid",
	"Arthritis",
	"Dupuytrens",
	"Carpal Tunnel",
}

// SeedResult reports what Seed changed
type SeedResult struct {
	Bot               *User
	BotCreated        bool
	CategoriesCreated int
}

// Seed creates the sync bot and the default categories. It is safe to run repeatedly;
// existing default categories are moved back to their seeded position.
func (d *DB) Seed(ctx context.Context, botEmail string) (*SeedResult, error) {
	bot, created, err := d.EnsureUser(ctx, &User{
		Email:   botEmail,
		Name:    "Dropbox",
		Surname: "Sync",
		Role:    RoleAdmin,
		Status:  StatusApproved,
	})
	if err != nil {
		return nil, fmt.Errorf("seed sync bot: %w", err)
	}

	result := &SeedResult{Bot: bot, BotCreated: created}
	for i, name := range DefaultCategories {
		existing, err := d.GetCategoryByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if _, err := d.SetCategoryOrder(ctx, name, i+1); err != nil {
			return nil, fmt.Errorf("seed category %q: %w", name, err)
		}
		if existing == nil {
			result.CategoriesCreated++
		}
	}
	return result, nil
}
