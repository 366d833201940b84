package bookstore

import (
	"time"

	"github.com/mmynk/holocron/internal/models"
)

// WireBook is the JSON form of a book exchanged with the server.
type WireBook struct {
	ID            string        `json:"id"`
	Code          *string       `json:"code,omitempty"`
	Title         string        `json:"title"`
	Authors       []string      `json:"authors"`
	Publisher     *string       `json:"publisher,omitempty"`
	PublishedDate *string       `json:"publishedDate,omitempty"`
	ThumbnailURL  *string       `json:"thumbnailUrl,omitempty"`
	Status        string        `json:"status"`
	Borrower      *WireBorrower `json:"borrower,omitempty"`
	CreatedAt     string        `json:"createdAt"`
}

type WireBorrower struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	BorrowedAt string `json:"borrowedAt"`
	DueDate    string `json:"dueDate"`
}

// WireDraft is the body of a registration request.
type WireDraft struct {
	Code          *string  `json:"code,omitempty"`
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	Publisher     *string  `json:"publisher,omitempty"`
	PublishedDate *string  `json:"publishedDate,omitempty"`
	ThumbnailURL  *string  `json:"thumbnailUrl,omitempty"`
}

// BorrowRequest is the body of a borrow request. DueDays defaults server side.
type BorrowRequest struct {
	DueDays *int `json:"dueDays,omitempty"`
}

// WirePatch is the body of an update request. Absent fields are unchanged
// and an empty string clears an optional field.
type WirePatch struct {
	Code          *string  `json:"code,omitempty"`
	Title         *string  `json:"title,omitempty"`
	Authors       []string `json:"authors"`
	Publisher     *string  `json:"publisher,omitempty"`
	PublishedDate *string  `json:"publishedDate,omitempty"`
	ThumbnailURL  *string  `json:"thumbnailUrl,omitempty"`
}

// DeleteRequest is the body of a delete request.
type DeleteRequest struct {
	Reason string  `json:"reason"`
	Memo   *string `json:"memo,omitempty"`
}

// RegisterByCodeRequest is the body of a registration by ISBN.
type RegisterByCodeRequest struct {
	Code string `json:"code"`
}

// WireBookList is a plain list of books.
type WireBookList struct {
	Books []WireBook `json:"books"`
}

// WirePage is one page of search results.
type WirePage struct {
	Books  []WireBook `json:"books"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// ErrorBody is the JSON error envelope returned by the server.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToWire converts a book for the wire. Timestamps use RFC 3339.
func ToWire(b *models.Book) WireBook {
	w := WireBook{
		ID:            b.ID,
		Code:          b.Code,
		Title:         b.Title,
		Authors:       b.Authors,
		Publisher:     b.Publisher,
		PublishedDate: b.PublishedDate,
		ThumbnailURL:  b.ThumbnailURL,
		Status:        string(b.Status),
		CreatedAt:     b.CreatedAt.UTC().Format(time.RFC3339),
	}
	if w.Authors == nil {
		w.Authors = []string{}
	}
	if b.Borrower != nil {
		w.Borrower = &WireBorrower{
			ID:         b.Borrower.ID,
			Name:       b.Borrower.Name,
			BorrowedAt: b.Borrower.BorrowedAt.UTC().Format(time.RFC3339),
			DueDate:    b.Borrower.DueDate.UTC().Format(time.RFC3339),
		}
	}
	return w
}

// FromWire converts a wire book back to the domain model.
// A borrower is kept only for borrowed books.
func FromWire(w WireBook) (*models.Book, error) {
	createdAt, err := time.Parse(time.RFC3339, w.CreatedAt)
	if err != nil {
		return nil, err
	}
	b := &models.Book{
		ID:            w.ID,
		Code:          w.Code,
		Title:         w.Title,
		Authors:       w.Authors,
		Publisher:     w.Publisher,
		PublishedDate: w.PublishedDate,
		ThumbnailURL:  w.ThumbnailURL,
		Status:        models.BookStatus(w.Status),
		CreatedAt:     createdAt,
	}
	if b.Status == models.BookBorrowed && w.Borrower != nil {
		borrowedAt, err := time.Parse(time.RFC3339, w.Borrower.BorrowedAt)
		if err != nil {
			return nil, err
		}
		dueDate, err := time.Parse(time.RFC3339, w.Borrower.DueDate)
		if err != nil {
			return nil, err
		}
		b.Borrower = &models.Borrower{
			ID:         w.Borrower.ID,
			Name:       w.Borrower.Name,
			BorrowedAt: borrowedAt,
			DueDate:    dueDate,
		}
	}
	return b, nil
}

// DraftToWire converts a validated draft to a registration body.
func DraftToWire(d models.BookDraft) WireDraft {
	return WireDraft{
		Code:          d.Code,
		Title:         d.Title,
		Authors:       d.Authors,
		Publisher:     d.Publisher,
		PublishedDate: d.PublishedDate,
		ThumbnailURL:  d.ThumbnailURL,
	}
}

// PatchToWire converts a validated patch to an update body.
func PatchToWire(p models.BookPatch) WirePatch {
	return WirePatch{
		Code:          p.Code,
		Title:         p.Title,
		Authors:       p.Authors,
		Publisher:     p.Publisher,
		PublishedDate: p.PublishedDate,
		ThumbnailURL:  p.ThumbnailURL,
	}
}

// BooksToWire converts a list of books, never returning nil.
func BooksToWire(books []*models.Book) []WireBook {
	out := make([]WireBook, len(books))
	for i, b := range books {
		out[i] = ToWire(b)
	}
	return out
}

// BooksFromWire converts a list of wire books.
func BooksFromWire(ws []WireBook) ([]*models.Book, error) {
	books := make([]*models.Book, len(ws))
	for i, w := range ws {
		b, err := FromWire(w)
		if err != nil {
			return nil, err
		}
		books[i] = b
	}
	return books, nil
}
