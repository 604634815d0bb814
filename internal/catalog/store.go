// Package catalog persists users, materials and material requests. Every
// store method is a single SQL statement and therefore atomic with respect to
// concurrent callers; there are no retries at this layer.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// Store provides persistence for the material/request catalog.
type Store struct {
	db *sqlx.DB
}

// NewStore constructs the store.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// RegisterUser creates the user on first contact and returns the stored
// record. Idempotent: an existing user keeps their role, only the profile
// fields are refreshed.
func (s *Store) RegisterUser(ctx context.Context, telegramID int64, username, firstName string) (User, error) {
	const query = `
INSERT INTO users (telegram_id, username, first_name, role)
VALUES ($1, $2, $3, 'student')
ON CONFLICT (telegram_id) DO UPDATE
SET username = EXCLUDED.username, first_name = EXCLUDED.first_name
RETURNING telegram_id, username, first_name, role, joined_at`

	var u User
	if err := s.db.GetContext(ctx, &u, query, telegramID, username, firstName); err != nil {
		return User{}, fmt.Errorf("register user %d: %w", telegramID, err)
	}
	return u, nil
}

// PromoteToAdmin grants the admin role. No-op when already admin.
func (s *Store) PromoteToAdmin(ctx context.Context, telegramID int64) error {
	const query = `UPDATE users SET role = 'admin' WHERE telegram_id = $1`
	if _, err := s.db.ExecContext(ctx, query, telegramID); err != nil {
		return fmt.Errorf("promote user %d: %w", telegramID, err)
	}
	return nil
}

// GetUser fetches a user record.
func (s *Store) GetUser(ctx context.Context, telegramID int64) (User, error) {
	const query = `
SELECT telegram_id, username, first_name, role, joined_at
FROM users WHERE telegram_id = $1`

	var u User
	if err := s.db.GetContext(ctx, &u, query, telegramID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("get user %d: %w", telegramID, err)
	}
	return u, nil
}

// ListMaterials returns materials for a (grade, subject, category) shelf,
// ordered by topic. An empty slice is a valid outcome: the category always
// exists, it may just hold nothing.
func (s *Store) ListMaterials(ctx context.Context, grade int, subject, category string) ([]Listing, error) {
	const query = `
SELECT topic, downloads, storage_path, display_name
FROM materials
WHERE grade = $1 AND subject = $2 AND category = $3
ORDER BY topic`

	var items []Listing
	if err := s.db.SelectContext(ctx, &items, query, grade, subject, category); err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	return items, nil
}

// FetchMaterial returns one material by its taxonomy key. When duplicates
// share the key the oldest row wins, which keeps retrieval deterministic.
func (s *Store) FetchMaterial(ctx context.Context, key Key) (Material, error) {
	const query = `
SELECT id, grade, subject, category, topic, storage_path, display_name,
       byte_size, uploaded_at, downloads, uploaded_by
FROM materials
WHERE grade = $1 AND subject = $2 AND category = $3 AND topic = $4
ORDER BY id
LIMIT 1`

	var m Material
	err := s.db.GetContext(ctx, &m, query, key.Grade, key.Subject, key.Category, key.Topic)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Material{}, ErrNotFound
		}
		return Material{}, fmt.Errorf("fetch material: %w", err)
	}
	return m, nil
}

// IncrementDownloads bumps the download counter for every material matching
// the key and returns the number of rows touched. Zero rows is ErrNotFound.
func (s *Store) IncrementDownloads(ctx context.Context, key Key) (int64, error) {
	const query = `
UPDATE materials SET downloads = downloads + 1
WHERE grade = $1 AND subject = $2 AND category = $3 AND topic = $4`

	res, err := s.db.ExecContext(ctx, query, key.Grade, key.Subject, key.Category, key.Topic)
	if err != nil {
		return 0, fmt.Errorf("increment downloads: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("increment downloads: rows affected: %w", err)
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	return n, nil
}

// InsertMaterial stores a new material record and returns its id. The storage
// path is unique in the schema; a collision yields ErrStorageConflict.
func (s *Store) InsertMaterial(ctx context.Context, m Material) (int64, error) {
	const query = `
INSERT INTO materials (grade, subject, category, topic, storage_path,
                       display_name, byte_size, uploaded_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`

	var id int64
	err := s.db.GetContext(ctx, &id, query,
		m.Grade, m.Subject, m.Category, m.Topic,
		m.StoragePath, m.DisplayName, m.ByteSize, m.UploadedBy)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return 0, ErrStorageConflict
		}
		return 0, fmt.Errorf("insert material: %w", err)
	}
	return id, nil
}

// DeleteMaterial removes the material and returns the deleted record, so the
// caller can clean up the backing blob.
func (s *Store) DeleteMaterial(ctx context.Context, id int64) (Material, error) {
	const query = `
DELETE FROM materials WHERE id = $1
RETURNING id, grade, subject, category, topic, storage_path, display_name,
          byte_size, uploaded_at, downloads, uploaded_by`

	var m Material
	if err := s.db.GetContext(ctx, &m, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Material{}, ErrNotFound
		}
		return Material{}, fmt.Errorf("delete material %d: %w", id, err)
	}
	return m, nil
}

// CreateRequest stores a new pending request and returns its id.
func (s *Store) CreateRequest(ctx context.Context, r Request) (int64, error) {
	const query = `
INSERT INTO requests (requester_id, grade, subject, category, topic, description)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`

	var id int64
	err := s.db.GetContext(ctx, &id, query,
		r.RequesterID, r.Grade, r.Subject, r.Category, r.Topic, r.Description)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	return id, nil
}

// ListPendingMatching returns every pending request whose taxonomy key equals
// the given key exactly (string equality, no fuzzy matching).
func (s *Store) ListPendingMatching(ctx context.Context, key Key) ([]Request, error) {
	const query = `
SELECT id, requester_id, grade, subject, category, topic, description,
       status, created_at, completed_at
FROM requests
WHERE status = 'pending'
  AND grade = $1 AND subject = $2 AND category = $3 AND topic = $4
ORDER BY id`

	var reqs []Request
	err := s.db.SelectContext(ctx, &reqs, query, key.Grade, key.Subject, key.Category, key.Topic)
	if err != nil {
		return nil, fmt.Errorf("list pending matching: %w", err)
	}
	return reqs, nil
}

// CompleteRequest marks a pending request completed and stamps completed_at.
// A request that is already completed or missing yields ErrNotFound; the
// pending -> completed transition never reverses.
func (s *Store) CompleteRequest(ctx context.Context, id int64) error {
	const query = `
UPDATE requests SET status = 'completed', completed_at = now()
WHERE id = $1 AND status = 'pending'`

	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("complete request %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete request %d: rows affected: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRequest removes a request entirely.
func (s *Store) DeleteRequest(ctx context.Context, id int64) error {
	const query = `DELETE FROM requests WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete request %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete request %d: rows affected: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRequest returns one request joined with its requester profile.
func (s *Store) GetRequest(ctx context.Context, id int64) (RequestView, error) {
	const query = `
SELECT r.id, r.requester_id, r.grade, r.subject, r.category, r.topic,
       r.description, r.status, r.created_at, r.completed_at,
       u.username, u.first_name
FROM requests r
LEFT JOIN users u ON u.telegram_id = r.requester_id
WHERE r.id = $1`

	var rv RequestView
	if err := s.db.GetContext(ctx, &rv, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RequestView{}, ErrNotFound
		}
		return RequestView{}, fmt.Errorf("get request %d: %w", id, err)
	}
	return rv, nil
}

// ListRequests returns the most recent requests for the admin review list,
// pending first, newest within each status.
func (s *Store) ListRequests(ctx context.Context, limit int) ([]RequestView, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `
SELECT r.id, r.requester_id, r.grade, r.subject, r.category, r.topic,
       r.description, r.status, r.created_at, r.completed_at,
       u.username, u.first_name
FROM requests r
LEFT JOIN users u ON u.telegram_id = r.requester_id
ORDER BY r.status DESC, r.created_at DESC
LIMIT $1`

	var out []RequestView
	if err := s.db.SelectContext(ctx, &out, query, limit); err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return out, nil
}

// Stats aggregates the counters shown on the admin statistics screen.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	const query = `
SELECT
    (SELECT count(*) FROM materials)                              AS total_materials,
    (SELECT coalesce(sum(downloads), 0) FROM materials)           AS total_downloads,
    (SELECT count(*) FROM users)                                  AS total_users,
    (SELECT count(*) FROM requests WHERE status = 'pending')      AS pending_requests,
    (SELECT count(*) FROM requests WHERE status = 'completed')    AS completed_requests`

	var st Stats
	if err := s.db.GetContext(ctx, &st, query); err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}
