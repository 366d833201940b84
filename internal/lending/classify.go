// Package lending holds the pure lending rules: how a book's state looks to a
// given viewer, and how due dates are computed.
package lending

import "github.com/mmynk/holocron/internal/models"

// Status is a book's lending state relative to one viewer.
// It is derived on every read and never stored.
type Status string

const (
	StatusAvailable       Status = "available"
	StatusBorrowedByMe    Status = "borrowed_by_me"
	StatusBorrowedByOther Status = "borrowed_by_other"
)

// Classify reports how book looks to viewerID.
// An available book is available regardless of any borrower data it carries.
func Classify(book *models.Book, viewerID string) Status {
	if book.Status != models.BookBorrowed {
		return StatusAvailable
	}
	if book.Borrower != nil && book.Borrower.ID == viewerID {
		return StatusBorrowedByMe
	}
	return StatusBorrowedByOther
}

// CanBorrow reports whether a borrow may be started for a book in status s.
func CanBorrow(s Status) bool {
	return s == StatusAvailable
}

// CanReturn reports whether a return may be issued for a book in status s.
// Any identified user may return a borrowed book on behalf of its borrower.
func CanReturn(s Status) bool {
	return s == StatusBorrowedByMe || s == StatusBorrowedByOther
}
