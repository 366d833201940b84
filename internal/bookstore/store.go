// Package bookstore defines the Book Store collaborator the lending workflow
// talks to, and the closed set of failure kinds it may report.
package bookstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmynk/holocron/internal/catalog"
	"github.com/mmynk/holocron/internal/models"
)

// Store is the remote book store as seen by clients.
type Store interface {
	// LookupByCode returns the book registered under code.
	// Returns nil and no error if no book has that code.
	LookupByCode(ctx context.Context, code string) (*models.Book, error)

	// Borrow lends the book to the token's user for dueDays days.
	// A book already borrowed by someone else is a KindConflict.
	Borrow(ctx context.Context, bookID string, dueDays int, token string) error

	// Return ends the current lending of the book, whoever holds it.
	// A book that is not borrowed is a KindConflict.
	Return(ctx context.Context, bookID, token string) error

	// Register persists a new book from a validated draft.
	Register(ctx context.Context, draft models.BookDraft, token string) (*models.Book, error)
}

// Catalog is the browsing and upkeep side of the remote book store.
type Catalog interface {
	// Search returns one page of books matching keyword. Zero limit means
	// the server default.
	Search(ctx context.Context, keyword string, limit, offset int) (*Page, error)

	// Get returns a book by ID. An unknown ID is a KindNotFound.
	Get(ctx context.Context, bookID string) (*models.Book, error)

	// Borrowings returns the books the token's user holds.
	Borrowings(ctx context.Context, token string) ([]*models.Book, error)

	// Update applies a validated patch.
	Update(ctx context.Context, bookID string, patch models.BookPatch, token string) (*models.Book, error)

	// Delete takes a book off the shelf. A borrowed book is a KindConflict.
	Delete(ctx context.Context, bookID string, reason catalog.DeleteReason, memo *string, token string) error

	// RegisterByCode registers a book from catalogue data for its ISBN.
	// A code no catalogue knows is a KindNotFound.
	RegisterByCode(ctx context.Context, code, token string) (*models.Book, error)
}

// Page is one page of search results.
type Page struct {
	Books  []*models.Book
	Total  int
	Limit  int
	Offset int
}

// Kind classifies store failures.
type Kind int

const (
	// KindTransport covers every failure that is not one of the others,
	// including network errors and unexpected responses.
	KindTransport Kind = iota
	KindValidation
	KindConflict
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "transport"
	}
}

// Error is a classified store failure.
type Error struct {
	Kind Kind
	// Op is the store operation that failed, e.g. "borrow".
	Op string
	// Code is the machine-readable code reported by the store, if any.
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err. Errors that were not classified by a store
// are transport failures.
func KindOf(err error) Kind {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Kind
	}
	return KindTransport
}
