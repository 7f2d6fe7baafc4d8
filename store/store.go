package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when no record matches the lookup.
	ErrNotFound = errors.New("store: record not found")
	// ErrConflict is wrapped by ConflictError for unique-constraint violations.
	ErrConflict = errors.New("store: unique constraint violated")
	// ErrUpdateContention is returned when the optimistic retry budget of Update is exhausted.
	ErrUpdateContention = errors.New("store: update contention")
	// ErrUnavailable wraps backend failures (network, driver, decode).
	ErrUnavailable = errors.New("store: backend unavailable")
)

// Unique fields reported by ConflictError.
const (
	FieldNickname = "nickname"
	FieldEmail    = "email"
)

// MaxUpdateRetries bounds the compare-and-set loop of Update implementations.
const MaxUpdateRetries = 8

// ConflictError reports which unique field rejected a write.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("store: %s already exists", e.Field)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// ConflictField extracts the conflicting field name from err, if any.
func ConflictField(err error) (string, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.Field, true
	}
	return "", false
}

// MutateFunc mutates a private copy of the current record inside Update.
// Returning an error aborts the update without writing; the error is
// returned unchanged to the caller.
type MutateFunc func(u *User) error

// ListFilter selects a page of users for admin listings.
type ListFilter struct {
	Page     int
	Limit    int
	Role     Role
	IsActive *bool
}

// Normalize clamps paging to sane bounds (page >= 1, 1 <= limit <= 100).
func (f ListFilter) Normalize() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 10
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	return f
}

// Offset returns the number of records to skip for the filter page.
func (f ListFilter) Offset() int {
	n := f.Normalize()
	return (n.Page - 1) * n.Limit
}

// Matches reports whether u passes the role and status filters.
func (f ListFilter) Matches(u *User) bool {
	if f.Role != "" && u.Role != f.Role {
		return false
	}
	if f.IsActive != nil && u.IsActive != *f.IsActive {
		return false
	}
	return true
}

// Stats aggregates user counts for the admin dashboard.
type Stats struct {
	Total    int            `json:"total"`
	ByRole   map[string]int `json:"byRole"`
	ByStatus map[string]int `json:"byStatus"`
}

// NewStats returns a Stats value with initialized maps.
func NewStats() Stats {
	return Stats{
		ByRole:   map[string]int{},
		ByStatus: map[string]int{},
	}
}

// Add counts u into the aggregate.
func (s *Stats) Add(u *User) {
	s.Total++
	s.ByRole[string(u.Role)]++
	if u.IsActive {
		s.ByStatus["active"]++
	} else {
		s.ByStatus["inactive"]++
	}
}

// Store is the persistence contract consumed by the engine. Implementations
// must make Insert atomic with respect to nickname/email uniqueness and
// Update atomic with respect to concurrent writers of the same record.
type Store interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByNickname(ctx context.Context, nickname string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (*User, error)
	Insert(ctx context.Context, u *User) (*User, error)
	Update(ctx context.Context, id string, fn MutateFunc) (*User, error)
	List(ctx context.Context, filter ListFilter) ([]*User, int, error)
	Stats(ctx context.Context) (Stats, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}
