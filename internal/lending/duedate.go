package lending

import (
	"errors"
	"time"

	"github.com/mmynk/holocron/internal/models"
)

// DefaultDueDays is the loan period used when the borrower does not pick one.
const DefaultDueDays = 7

var ErrInvalidDueDays = errors.New("due days must be at least 1")

// DefaultDueDate returns the calendar date DefaultDueDays after today.
func DefaultDueDate(today time.Time) time.Time {
	return civilDate(today).AddDate(0, 0, DefaultDueDays)
}

// DueDays returns the number of whole calendar days from today to due.
// Times of day and locations are ignored; only the calendar dates count.
// The result is negative when due lies before today.
func DueDays(today, due time.Time) int {
	d := civilDate(due).Sub(civilDate(today))
	return int(d / (24 * time.Hour))
}

// CalculateDueDate returns the due date for a borrow made at now.
// requestedDays defaults to DefaultDueDays and must be at least 1. When current
// is non-nil the borrower already holds the book and the loan is extended from
// its current due date instead of from now.
func CalculateDueDate(now time.Time, requestedDays *int, current *models.Lending) (time.Time, int, error) {
	days := DefaultDueDays
	if requestedDays != nil {
		if *requestedDays < 1 {
			return time.Time{}, 0, ErrInvalidDueDays
		}
		days = *requestedDays
	}

	base := now
	if current != nil {
		base = current.DueDate
	}
	return base.AddDate(0, 0, days), days, nil
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
