package lending

import (
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/mmynk/holocron/internal/models"
)

// genInstant yields times between 2000 and 2100 with a random time of day.
func genInstant() gopter.Gen {
	return gen.Int64Range(946684800, 4102444800).Map(func(sec int64) time.Time {
		return time.Unix(sec, 0).UTC()
	})
}

func TestCalculateDueDate_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("new loan is due days after now", prop.ForAll(
		func(now time.Time, days int) bool {
			due, got, err := CalculateDueDate(now, &days, nil)
			return err == nil && got == days && due.Equal(now.AddDate(0, 0, days))
		},
		genInstant(), gen.IntRange(1, 365),
	))
	properties.Property("extension counts from the current due date", prop.ForAll(
		func(now, current time.Time, days int) bool {
			due, _, err := CalculateDueDate(now, &days, &models.Lending{DueDate: current})
			return err == nil && due.Equal(current.AddDate(0, 0, days))
		},
		genInstant(), genInstant(), gen.IntRange(1, 365),
	))
	properties.Property("less than one day is rejected", prop.ForAll(
		func(now time.Time, days int) bool {
			_, _, err := CalculateDueDate(now, &days, nil)
			return errors.Is(err, ErrInvalidDueDays)
		},
		genInstant(), gen.IntRange(-365, 0),
	))
	properties.TestingRun(t)
}

func TestDueDays_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("counts calendar days whatever the time of day", prop.ForAll(
		func(today time.Time, n int, minutes int) bool {
			due := civilDate(today).AddDate(0, 0, n).Add(time.Duration(minutes) * time.Minute)
			return DueDays(today, due) == n
		},
		genInstant(), gen.IntRange(-1000, 1000), gen.IntRange(0, 24*60-1),
	))
	properties.Property("default due date is DefaultDueDays away", prop.ForAll(
		func(today time.Time) bool {
			return DueDays(today, DefaultDueDate(today)) == DefaultDueDays
		},
		genInstant(),
	))
	properties.TestingRun(t)
}
