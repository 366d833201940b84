package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/holocron/internal/lending"
	"github.com/mmynk/holocron/internal/models"
	"github.com/mmynk/holocron/internal/storage"
)

// BorrowBook opens or extends a lending inside one transaction.
func (s *SQLiteStore) BorrowBook(ctx context.Context, bookID string, borrower *models.User, requestedDays *int, now time.Time) (*models.Lending, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := bookExists(ctx, tx, bookID); err != nil {
		return nil, err
	}

	current, err := openLending(ctx, tx, bookID)
	if err != nil {
		return nil, err
	}
	if current != nil && current.BorrowerID != borrower.ID {
		return nil, storage.ErrBookAlreadyBorrowed
	}

	dueDate, _, err := lending.CalculateDueDate(now, requestedDays, current)
	if err != nil {
		return nil, err
	}

	var result *models.Lending
	if current != nil {
		current.DueDate = dueDate
		_, err = tx.ExecContext(ctx,
			"UPDATE lendings SET due_date = ? WHERE id = ?",
			dueDate.Unix(), current.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to extend lending: %w", err)
		}
		result = current
	} else {
		result = &models.Lending{
			ID:         uuid.New().String(),
			BookID:     bookID,
			BorrowerID: borrower.ID,
			BorrowedAt: now.UTC().Truncate(time.Second),
			DueDate:    dueDate.UTC().Truncate(time.Second),
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO lendings (id, book_id, borrower_id, borrowed_at, due_date) VALUES (?, ?, ?, ?, ?)",
			result.ID, result.BookID, result.BorrowerID, result.BorrowedAt.Unix(), result.DueDate.Unix(),
		)
		if isUniqueViolation(err) {
			return nil, storage.ErrBookAlreadyBorrowed
		}
		if err != nil {
			return nil, fmt.Errorf("failed to insert lending: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}

// ReturnBook closes the open lending of a book.
func (s *SQLiteStore) ReturnBook(ctx context.Context, bookID string, now time.Time) (*models.Lending, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := bookExists(ctx, tx, bookID); err != nil {
		return nil, err
	}

	current, err := openLending(ctx, tx, bookID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, storage.ErrBookNotBorrowed
	}

	returnedAt := now.UTC().Truncate(time.Second)
	_, err = tx.ExecContext(ctx,
		"UPDATE lendings SET returned_at = ? WHERE id = ?",
		returnedAt.Unix(), current.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to close lending: %w", err)
	}
	current.ReturnedAt = &returnedAt

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return current, nil
}

func bookExists(ctx context.Context, tx *sql.Tx, bookID string) error {
	var one int
	err := tx.QueryRowContext(ctx, "SELECT 1 FROM books WHERE id = ? AND deleted_at IS NULL", bookID).Scan(&one)
	if err == sql.ErrNoRows {
		return storage.ErrBookNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get book: %w", err)
	}
	return nil
}

// openLending returns the lending of bookID that has not been returned, or nil.
func openLending(ctx context.Context, tx *sql.Tx, bookID string) (*models.Lending, error) {
	var (
		l                   models.Lending
		borrowedAt, dueDate int64
	)
	err := tx.QueryRowContext(ctx,
		`SELECT id, book_id, borrower_id, borrowed_at, due_date
		 FROM lendings WHERE book_id = ? AND returned_at IS NULL`,
		bookID,
	).Scan(&l.ID, &l.BookID, &l.BorrowerID, &borrowedAt, &dueDate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open lending: %w", err)
	}
	l.BorrowedAt = time.Unix(borrowedAt, 0).UTC()
	l.DueDate = time.Unix(dueDate, 0).UTC()
	return &l, nil
}
