package models

import "time"

// BookStatus is the stored lending state of a book.
type BookStatus string

const (
	BookAvailable BookStatus = "available"
	BookBorrowed  BookStatus = "borrowed"
)

// Book represents a registered physical book.
type Book struct {
	// ID is the unique identifier for the book (UUID format).
	ID string

	// Code is the normalized ISBN printed on the book, if it was registered by code.
	Code *string

	// Title is the trimmed, non-empty title.
	Title string

	// Authors holds at least one trimmed author name, in the order entered.
	Authors []string

	Publisher *string

	// PublishedDate is a YYYY-MM-DD string. Only its shape is validated.
	PublishedDate *string

	ThumbnailURL *string

	Status BookStatus

	// Borrower is set if and only if Status is BookBorrowed.
	Borrower *Borrower

	CreatedAt time.Time
}

// Borrower identifies who holds a borrowed book and since when.
type Borrower struct {
	ID         string
	Name       string
	BorrowedAt time.Time
	DueDate    time.Time
}

// BookDraft is a validated registration form, ready to be persisted.
type BookDraft struct {
	Code          *string
	Title         string
	Authors       []string
	Publisher     *string
	PublishedDate *string
	ThumbnailURL  *string
}

// BookPatch is a validated partial update. Nil fields stay unchanged; an
// empty string clears an optional field. Authors, when non-nil, replaces the
// whole author list.
type BookPatch struct {
	Code          *string
	Title         *string
	Authors       []string
	Publisher     *string
	PublishedDate *string
	ThumbnailURL  *string
}

// Lending is one borrow period of a book. It stays open until ReturnedAt is set.
type Lending struct {
	ID         string
	BookID     string
	BorrowerID string
	BorrowedAt time.Time
	DueDate    time.Time
	ReturnedAt *time.Time
}
