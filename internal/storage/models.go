package storage

import "time"

// User roles and statuses mirrored from the portal's account model
const (
	RoleAdmin  = "ADMIN"
	RoleMember = "MEMBER"

	StatusApproved = "APPROVED"
	StatusPending  = "PENDING"
)

// User is a portal account
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Surname   string    `json:"surname"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Category groups articles; sync creates one per top-level folder
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"createdAt"`
}

// CategorySummary is a category with its article count
type CategorySummary struct {
	Category
	ArticleCount int `json:"articleCount"`
}

// Article is a catalog entry pointing at a stored document
type Article struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	PDFURL      string     `json:"pdfUrl"`
	ImageURL    *string    `json:"imageUrl"`
	Published   bool       `json:"published"`
	AuthorID    string     `json:"authorId"`
	CategoryID  string     `json:"categoryId"`
	SourcePath  *string    `json:"sourcePath,omitempty"` // NULL for manually created articles
	SyncedAt    *time.Time `json:"syncedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// ArticleFilter narrows ListArticles
type ArticleFilter struct {
	CategoryID    string
	PublishedOnly bool
	Limit         uint64
}
