package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/holocron/internal/catalog"
	"github.com/mmynk/holocron/internal/models"
	"github.com/mmynk/holocron/internal/storage"
)

// bookSelect reads books on the shelf together with their open lending, if
// any. Further conditions are appended with AND.
const bookSelect = `
	SELECT b.id, b.code, b.title, b.publisher, b.published_date, b.thumbnail_url, b.created_at,
	       l.borrower_id, u.display_name, l.borrowed_at, l.due_date
	FROM books b
	LEFT JOIN lendings l ON l.book_id = b.id AND l.returned_at IS NULL
	LEFT JOIN users u ON u.id = l.borrower_id
	WHERE b.deleted_at IS NULL
`

// keywordFilter matches the title or any author against a LIKE pattern.
const keywordFilter = ` AND (b.title LIKE ? ESCAPE '\' OR EXISTS (
		SELECT 1 FROM book_authors a WHERE a.book_id = b.id AND a.name LIKE ? ESCAPE '\'))`

// CreateBook persists a new book and its authors.
func (s *SQLiteStore) CreateBook(ctx context.Context, draft models.BookDraft) (*models.Book, error) {
	book := &models.Book{
		ID:            uuid.New().String(),
		Code:          draft.Code,
		Title:         draft.Title,
		Authors:       append([]string(nil), draft.Authors...),
		Publisher:     draft.Publisher,
		PublishedDate: draft.PublishedDate,
		ThumbnailURL:  draft.ThumbnailURL,
		Status:        models.BookAvailable,
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO books (id, code, title, publisher, published_date, thumbnail_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		book.ID, book.Code, book.Title, book.Publisher, book.PublishedDate, book.ThumbnailURL, book.CreatedAt.Unix(),
	)
	if isUniqueViolation(err) {
		return nil, storage.ErrCodeExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert book: %w", err)
	}

	if err := insertAuthors(ctx, tx, book.ID, book.Authors); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return book, nil
}

// GetBook retrieves a book by ID.
func (s *SQLiteStore) GetBook(ctx context.Context, bookID string) (*models.Book, error) {
	return s.getBookWhere(ctx, "b.id = ?", bookID)
}

// GetBookByCode retrieves a book by its normalized ISBN.
func (s *SQLiteStore) GetBookByCode(ctx context.Context, code string) (*models.Book, error) {
	return s.getBookWhere(ctx, "b.code = ?", code)
}

func (s *SQLiteStore) getBookWhere(ctx context.Context, where string, arg any) (*models.Book, error) {
	book, err := scanBook(s.db.QueryRowContext(ctx, bookSelect+" AND "+where, arg))
	if err == sql.ErrNoRows {
		return nil, nil // Book not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get book: %w", err)
	}

	authors, err := s.loadAuthors(ctx, []string{book.ID})
	if err != nil {
		return nil, err
	}
	book.Authors = authors[book.ID]

	return book, nil
}

// SearchBooks returns one page of matching books, newest first.
func (s *SQLiteStore) SearchBooks(ctx context.Context, q catalog.Query) ([]*models.Book, int, error) {
	var (
		filter string
		args   []any
	)
	if q.Keyword != "" {
		pattern := q.LikePattern()
		filter = keywordFilter
		args = []any{pattern, pattern}
	}

	var total int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM books b WHERE b.deleted_at IS NULL"+filter, args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count books: %w", err)
	}

	books, err := s.queryBooks(ctx,
		bookSelect+filter+" ORDER BY b.created_at DESC, b.title, b.id LIMIT ? OFFSET ?",
		append(args, q.Limit, q.Offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	return books, total, nil
}

// ListBorrowings returns the books borrowerID holds, soonest due first.
func (s *SQLiteStore) ListBorrowings(ctx context.Context, borrowerID string) ([]*models.Book, error) {
	return s.queryBooks(ctx, bookSelect+" AND l.borrower_id = ? ORDER BY l.due_date, b.title", borrowerID)
}

// UpdateBook applies patch inside one transaction.
func (s *SQLiteStore) UpdateBook(ctx context.Context, bookID string, patch models.BookPatch) (*models.Book, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := bookExists(ctx, tx, bookID); err != nil {
		return nil, err
	}

	var (
		sets []string
		args []any
	)
	set := func(column string, v *string, clearable bool) {
		if v == nil {
			return
		}
		sets = append(sets, column+" = ?")
		if clearable && *v == "" {
			args = append(args, nil)
		} else {
			args = append(args, *v)
		}
	}
	set("code", patch.Code, true)
	set("title", patch.Title, false)
	set("publisher", patch.Publisher, true)
	set("published_date", patch.PublishedDate, true)
	set("thumbnail_url", patch.ThumbnailURL, true)

	if len(sets) > 0 {
		_, err = tx.ExecContext(ctx,
			"UPDATE books SET "+strings.Join(sets, ", ")+" WHERE id = ?",
			append(args, bookID)...,
		)
		if isUniqueViolation(err) {
			return nil, storage.ErrCodeExists
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update book: %w", err)
		}
	}

	if patch.Authors != nil {
		if _, err := tx.ExecContext(ctx, "DELETE FROM book_authors WHERE book_id = ?", bookID); err != nil {
			return nil, fmt.Errorf("failed to clear authors: %w", err)
		}
		if err := insertAuthors(ctx, tx, bookID, patch.Authors); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	book, err := s.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, storage.ErrBookNotFound
	}
	return book, nil
}

// DeleteBook marks a book as deleted. Borrowed books cannot be deleted.
func (s *SQLiteStore) DeleteBook(ctx context.Context, bookID string, reason catalog.DeleteReason, memo *string, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := bookExists(ctx, tx, bookID); err != nil {
		return err
	}

	current, err := openLending(ctx, tx, bookID)
	if err != nil {
		return err
	}
	if current != nil {
		return storage.ErrBookOnLoan
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE books SET deleted_at = ?, delete_reason = ?, delete_memo = ? WHERE id = ?",
		now.UTC().Unix(), string(reason), memo, bookID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// queryBooks runs a bookSelect query and fills in the authors.
func (s *SQLiteStore) queryBooks(ctx context.Context, query string, args ...any) ([]*models.Book, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	var books []*models.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate books: %w", err)
	}

	ids := make([]string, len(books))
	for i, b := range books {
		ids[i] = b.ID
	}
	authors, err := s.loadAuthors(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, b := range books {
		b.Authors = authors[b.ID]
	}

	return books, nil
}

func insertAuthors(ctx context.Context, tx *sql.Tx, bookID string, names []string) error {
	for i, name := range names {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO book_authors (book_id, position, name) VALUES (?, ?, ?)",
			bookID, i, name,
		)
		if err != nil {
			return fmt.Errorf("failed to insert author: %w", err)
		}
	}
	return nil
}

// loadAuthors returns the ordered author names of each given book.
func (s *SQLiteStore) loadAuthors(ctx context.Context, bookIDs []string) (map[string][]string, error) {
	authors := make(map[string][]string, len(bookIDs))
	if len(bookIDs) == 0 {
		return authors, nil
	}

	args := make([]any, len(bookIDs))
	for i, id := range bookIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT book_id, name FROM book_authors WHERE book_id IN ("+placeholders(len(bookIDs))+") ORDER BY book_id, position",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get authors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var bookID, name string
		if err := rows.Scan(&bookID, &name); err != nil {
			return nil, fmt.Errorf("failed to scan author: %w", err)
		}
		authors[bookID] = append(authors[bookID], name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate authors: %w", err)
	}

	return authors, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanBook reads one bookSelect row. The borrower is set only when the book
// has an open lending, which keeps Status and Borrower consistent.
func scanBook(row rowScanner) (*models.Book, error) {
	var (
		book                              models.Book
		code, publisher, published, thumb sql.NullString
		createdAt                         int64
		borrowerID, borrowerName          sql.NullString
		borrowedAt, dueDate               sql.NullInt64
	)
	err := row.Scan(
		&book.ID, &code, &book.Title, &publisher, &published, &thumb, &createdAt,
		&borrowerID, &borrowerName, &borrowedAt, &dueDate,
	)
	if err != nil {
		return nil, err
	}

	book.Code = nullable(code)
	book.Publisher = nullable(publisher)
	book.PublishedDate = nullable(published)
	book.ThumbnailURL = nullable(thumb)
	book.CreatedAt = time.Unix(createdAt, 0).UTC()
	book.Status = models.BookAvailable

	if borrowerID.Valid {
		book.Status = models.BookBorrowed
		book.Borrower = &models.Borrower{
			ID:         borrowerID.String,
			Name:       borrowerName.String,
			BorrowedAt: time.Unix(borrowedAt.Int64, 0).UTC(),
			DueDate:    time.Unix(dueDate.Int64, 0).UTC(),
		}
	}

	return &book, nil
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
