package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mmynk/holocron/internal/auth"
	"github.com/mmynk/holocron/internal/bookform"
	"github.com/mmynk/holocron/internal/bookinfo"
	"github.com/mmynk/holocron/internal/catalog"
	"github.com/mmynk/holocron/internal/isbn"
	"github.com/mmynk/holocron/internal/lending"
	"github.com/mmynk/holocron/internal/metrics"
	"github.com/mmynk/holocron/internal/models"
	"github.com/mmynk/holocron/internal/storage"
)

// ErrIncompleteInfo is returned when a catalogue knows a code but not enough
// about it to register the book.
var ErrIncompleteInfo = errors.New("book info is incomplete, register the book manually")

// LibraryService implements the book and lending operations of the shelf.
type LibraryService struct {
	store   storage.Store
	users   auth.UserStorage
	info    bookinfo.Source
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewLibraryService creates a new LibraryService with the given storage backend.
// info and metrics may be nil; without info no code can be looked up.
func NewLibraryService(store storage.Store, users auth.UserStorage, info bookinfo.Source, m *metrics.Metrics, logger *slog.Logger) *LibraryService {
	return &LibraryService{
		store:   store,
		users:   users,
		info:    info,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// SearchBooks returns one page of books whose title or author contains the
// query keyword, and the number of matches overall.
func (s *LibraryService) SearchBooks(ctx context.Context, q catalog.Query) ([]*models.Book, int, error) {
	books, total, err := s.store.SearchBooks(ctx, q)
	if err != nil {
		s.logger.Error("Failed to search books", "keyword", q.Keyword, "error", err)
		return nil, 0, fmt.Errorf("failed to search books: %w", err)
	}
	return books, total, nil
}

// GetBook returns a book by ID, or storage.ErrBookNotFound.
func (s *LibraryService) GetBook(ctx context.Context, bookID string) (*models.Book, error) {
	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		s.logger.Error("Failed to get book", "book_id", bookID, "error", err)
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	if book == nil {
		return nil, storage.ErrBookNotFound
	}
	return book, nil
}

// Borrowings returns the books userID currently holds, soonest due first.
func (s *LibraryService) Borrowings(ctx context.Context, userID string) ([]*models.Book, error) {
	books, err := s.store.ListBorrowings(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to list borrowings", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to list borrowings: %w", err)
	}
	return books, nil
}

// GetBookByCode looks a book up by ISBN. The code is normalized first, so
// hyphenated input matches. Returns nil and no error if nothing matches.
func (s *LibraryService) GetBookByCode(ctx context.Context, code string) (*models.Book, error) {
	book, err := s.store.GetBookByCode(ctx, normalizeCode(code))
	if err != nil {
		s.logger.Error("Failed to get book by code", "code", code, "error", err)
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	return book, nil
}

// RegisterBook validates form and adds the book to the shelf.
func (s *LibraryService) RegisterBook(ctx context.Context, userID string, form bookform.Form) (*models.Book, error) {
	draft, err := bookform.Parse(form)
	if err != nil {
		return nil, err
	}

	book, err := s.store.CreateBook(ctx, draft)
	if err != nil {
		s.logger.Warn("Failed to register book", "title", draft.Title, "user_id", userID, "error", err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ObserveRegistration()
	}
	s.logger.Info("Book registered", "book_id", book.ID, "title", book.Title, "user_id", userID)
	return book, nil
}

// RegisterByCode adds a book using what the catalogues know about code.
// Returns storage.ErrCodeExists before any lookup if the code is taken.
func (s *LibraryService) RegisterByCode(ctx context.Context, userID, code string) (*models.Book, error) {
	parsed, ok := isbn.Parse(code)
	if !ok {
		return nil, &bookform.ValidationError{Field: "code", Err: bookform.ErrInvalidCode}
	}
	code = parsed.String()

	existing, err := s.store.GetBookByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	if existing != nil {
		return nil, storage.ErrCodeExists
	}

	if s.info == nil {
		return nil, bookinfo.ErrNotFound
	}
	info, err := s.info.Lookup(ctx, code)
	if err != nil {
		s.logger.Info("Book info lookup failed", "code", code, "error", err)
		return nil, err
	}

	form := bookform.Form{
		Code:         code,
		Title:        info.Title,
		Authors:      bookform.AuthorsFrom(info.Authors),
		Publisher:    info.Publisher,
		ThumbnailURL: info.ThumbnailURL,
	}
	// Catalogues often know only the year or month.
	if bookform.IsPublishedDate(info.PublishedDate) {
		form.PublishedDate = info.PublishedDate
	}
	if _, err := bookform.Parse(form); err != nil {
		s.logger.Info("Book info incomplete", "code", code, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrIncompleteInfo, err)
	}

	return s.RegisterBook(ctx, userID, form)
}

// UpdateBook validates form and applies the fields it carries.
func (s *LibraryService) UpdateBook(ctx context.Context, bookID, userID string, form bookform.PatchForm) (*models.Book, error) {
	patch, err := bookform.ParsePatch(form)
	if err != nil {
		return nil, err
	}

	book, err := s.store.UpdateBook(ctx, bookID, patch)
	if err != nil {
		s.logger.Warn("Failed to update book", "book_id", bookID, "user_id", userID, "error", err)
		return nil, err
	}

	s.logger.Info("Book updated", "book_id", bookID, "user_id", userID)
	return book, nil
}

// DeleteBook takes a book off the shelf for the given reason. Borrowed books
// must be returned first.
func (s *LibraryService) DeleteBook(ctx context.Context, bookID, userID, reason string, memo *string) error {
	r, err := catalog.ParseDeleteReason(reason)
	if err != nil {
		return err
	}
	if memo != nil {
		if m := strings.TrimSpace(*memo); m != "" {
			memo = &m
		} else {
			memo = nil
		}
	}

	if err := s.store.DeleteBook(ctx, bookID, r, memo, s.now()); err != nil {
		s.logger.Warn("Failed to delete book", "book_id", bookID, "user_id", userID, "error", err)
		return err
	}

	s.logger.Info("Book deleted", "book_id", bookID, "user_id", userID, "reason", r)
	return nil
}

// Borrow lends a book to userID, or extends the loan if userID already holds it.
func (s *LibraryService) Borrow(ctx context.Context, bookID, userID string, dueDays *int) (*models.Lending, error) {
	s.logger.Info("Borrow request", "book_id", bookID, "user_id", userID)

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, auth.ErrInvalidToken
	}

	l, err := s.store.BorrowBook(ctx, bookID, user, dueDays, s.now())
	s.observe("borrow", err)
	if err != nil {
		s.logger.Warn("Borrow failed", "book_id", bookID, "user_id", userID, "error", err)
		return nil, err
	}

	s.logger.Info("Book borrowed", "book_id", bookID, "user_id", userID, "due_date", l.DueDate.Format(time.DateOnly))
	return l, nil
}

// Return closes the loan of a book. Any signed-in user may return a book
// on behalf of its borrower.
func (s *LibraryService) Return(ctx context.Context, bookID, userID string) (*models.Book, error) {
	s.logger.Info("Return request", "book_id", bookID, "user_id", userID)

	l, err := s.store.ReturnBook(ctx, bookID, s.now())
	s.observe("return", err)
	if err != nil {
		s.logger.Warn("Return failed", "book_id", bookID, "user_id", userID, "error", err)
		return nil, err
	}
	if l.BorrowerID != userID {
		s.logger.Info("Proxy return", "book_id", bookID, "user_id", userID, "borrower_id", l.BorrowerID)
	}

	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	if book == nil {
		return nil, storage.ErrBookNotFound
	}
	return book, nil
}

func (s *LibraryService) observe(op string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveLending(op, outcome(err))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, storage.ErrBookAlreadyBorrowed), errors.Is(err, storage.ErrBookNotBorrowed):
		return metrics.OutcomeConflict
	case errors.Is(err, storage.ErrBookNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, lending.ErrInvalidDueDays):
		return metrics.OutcomeValidation
	default:
		return metrics.OutcomeError
	}
}

// normalizeCode returns the canonical form of a valid ISBN and the trimmed
// input otherwise, so lookups of malformed codes simply find nothing.
func normalizeCode(code string) string {
	if parsed, ok := isbn.Parse(code); ok {
		return parsed.String()
	}
	return strings.TrimSpace(code)
}
