package catalog

import "time"

// User roles.
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// Request statuses. A request only ever moves pending -> completed.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// Key is the (grade, subject, category, topic) tuple that identifies a
// material for matching purposes. It is a filter key, not a uniqueness
// constraint: several materials may share one key.
type Key struct {
	Grade    int    `db:"grade"`
	Subject  string `db:"subject"`
	Category string `db:"category"`
	Topic    string `db:"topic"`
}

// User is a member of the school community known to the bot.
type User struct {
	TelegramID int64     `db:"telegram_id"`
	Username   string    `db:"username"`
	FirstName  string    `db:"first_name"`
	Role       string    `db:"role"`
	JoinedAt   time.Time `db:"joined_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// Material is one uploaded study file.
type Material struct {
	ID          int64     `db:"id"`
	Grade       int       `db:"grade"`
	Subject     string    `db:"subject"`
	Category    string    `db:"category"`
	Topic       string    `db:"topic"`
	StoragePath string    `db:"storage_path"`
	DisplayName string    `db:"display_name"`
	ByteSize    int64     `db:"byte_size"`
	UploadedAt  time.Time `db:"uploaded_at"`
	Downloads   int64     `db:"downloads"`
	UploadedBy  int64     `db:"uploaded_by"`
}

// Key returns the material's taxonomy key.
func (m Material) Key() Key {
	return Key{Grade: m.Grade, Subject: m.Subject, Category: m.Category, Topic: m.Topic}
}

// Listing is the compact material row shown on topic keyboards.
type Listing struct {
	Topic       string `db:"topic"`
	Downloads   int64  `db:"downloads"`
	StoragePath string `db:"storage_path"`
	DisplayName string `db:"display_name"`
}

// Request is a member's ask for a material that is not in the catalog yet.
type Request struct {
	ID          int64      `db:"id"`
	RequesterID int64      `db:"requester_id"`
	Grade       int        `db:"grade"`
	Subject     string     `db:"subject"`
	Category    string     `db:"category"`
	Topic       string     `db:"topic"`
	Description *string    `db:"description"`
	Status      string     `db:"status"`
	CreatedAt   time.Time  `db:"created_at"`
	CompletedAt *time.Time `db:"completed_at"`
}

// IsPending reports whether the request still awaits a material.
func (r Request) IsPending() bool { return r.Status == StatusPending }

// Key returns the request's taxonomy key.
func (r Request) Key() Key {
	return Key{Grade: r.Grade, Subject: r.Subject, Category: r.Category, Topic: r.Topic}
}

// RequestView is a request joined with its requester, for the admin review list.
type RequestView struct {
	Request
	Username  *string `db:"username"`
	FirstName *string `db:"first_name"`
}

// Stats aggregates catalog counters for the admin statistics screen.
type Stats struct {
	TotalMaterials    int64 `db:"total_materials"`
	TotalDownloads    int64 `db:"total_downloads"`
	TotalUsers        int64 `db:"total_users"`
	PendingRequests   int64 `db:"pending_requests"`
	CompletedRequests int64 `db:"completed_requests"`
}
