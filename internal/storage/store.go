// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mmynk/holocron/internal/catalog"
	"github.com/mmynk/holocron/internal/models"
)

var (
	ErrBookNotFound        = errors.New("book not found")
	ErrBookAlreadyBorrowed = errors.New("book is already borrowed")
	ErrBookNotBorrowed     = errors.New("book is not borrowed")
	ErrCodeExists          = errors.New("a book with this code is already registered")
	ErrBookOnLoan          = errors.New("book is currently borrowed")
)

// Store defines the interface for book and lending storage operations.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL, etc.)
// without changing the service layer.
type Store interface {
	// CreateBook persists a validated draft and returns the stored book.
	// Returns ErrCodeExists if another book already has the draft's code.
	CreateBook(ctx context.Context, draft models.BookDraft) (*models.Book, error)

	// GetBook retrieves a book by its ID, with its current borrower.
	// Returns nil and no error if the book is not found or was deleted.
	GetBook(ctx context.Context, bookID string) (*models.Book, error)

	// GetBookByCode retrieves a book by its normalized ISBN.
	// Returns nil and no error if no book has that code.
	GetBookByCode(ctx context.Context, code string) (*models.Book, error)

	// SearchBooks returns one page of books whose title or an author contains
	// the query keyword, newest first, and the number of matches overall.
	SearchBooks(ctx context.Context, q catalog.Query) ([]*models.Book, int, error)

	// ListBorrowings returns the books borrowerID currently holds, soonest due first.
	ListBorrowings(ctx context.Context, borrowerID string) ([]*models.Book, error)

	// UpdateBook applies a validated patch and returns the updated book.
	// Returns ErrBookNotFound or ErrCodeExists.
	UpdateBook(ctx context.Context, bookID string, patch models.BookPatch) (*models.Book, error)

	// DeleteBook removes a book from the shelf, keeping the reason on record.
	// Its code becomes free for a new registration.
	// Returns ErrBookNotFound or ErrBookOnLoan.
	DeleteBook(ctx context.Context, bookID string, reason catalog.DeleteReason, memo *string, now time.Time) error

	// BorrowBook opens a lending for borrower, or extends the borrower's open
	// lending. requestedDays nil means the default loan period.
	// Returns ErrBookNotFound, ErrBookAlreadyBorrowed or lending.ErrInvalidDueDays.
	BorrowBook(ctx context.Context, bookID string, borrower *models.User, requestedDays *int, now time.Time) (*models.Lending, error)

	// ReturnBook closes the open lending of a book, whoever holds it.
	// Returns ErrBookNotFound or ErrBookNotBorrowed.
	ReturnBook(ctx context.Context, bookID string, now time.Time) (*models.Lending, error)

	// Close releases any resources held by the store.
	Close() error
}
