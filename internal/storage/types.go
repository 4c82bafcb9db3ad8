package storage

import "errors"

var (
	// ErrNotFound indicates that the requested resource was not found, or
	// is not visible to the requesting user. Ownership misses and true
	// misses are deliberately indistinguishable.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicate indicates a uniqueness violation (e.g. username taken).
	ErrDuplicate = errors.New("duplicate resource")
)

// PaginatedResult represents a paginated result set.
type PaginatedResult[T any] struct {
	// Items is the slice of results for the current page.
	Items []T

	// Total is the total number of items across all pages.
	Total int

	// Page is the current page number (1-indexed).
	Page int

	// PageSize is the number of items per page.
	PageSize int

	// HasMore indicates whether there are more pages available.
	HasMore bool
}

// ListOptions provides pagination and sorting for list operations.
type ListOptions struct {
	// Page is the page number to retrieve (1-indexed, default: 1).
	Page int

	// Limit is the number of items per page (default: 20, max: 100).
	Limit int

	// SortBy specifies the field to sort by.
	SortBy string

	// SortOrder specifies the sort direction ("asc" or "desc").
	SortOrder string

	// Species filters grows/teks by exact species match. Empty means no
	// filter.
	Species string

	// ActiveOnly restricts grow results to ones not yet completed.
	ActiveOnly bool
}

// Normalize applies defaults and validates the ListOptions.
func (o *ListOptions) Normalize() {
	// Whitelist validation for SortBy to prevent SQL injection.
	allowedSortFields := map[string]bool{
		"created_at":       true,
		"updated_at":       true,
		"id":               true,
		"name":             true,
		"species":          true,
		"inoculation_date": true,
	}

	if !allowedSortFields[o.SortBy] {
		o.SortBy = "created_at"
	}

	if o.SortOrder != "asc" && o.SortOrder != "desc" {
		o.SortOrder = "desc"
	}

	if o.Page < 1 {
		o.Page = 1
	}

	if o.Limit < 1 {
		o.Limit = 20
	}

	if o.Limit > 100 {
		o.Limit = 100
	}
}

// Offset calculates the offset for SQL queries based on page and limit.
func (o *ListOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}
