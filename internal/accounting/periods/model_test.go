package periods

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestCloseCoversInclusiveBounds(t *testing.T) {
	c := Close{ChartID: 1, Start: date("2025-01-01"), End: date("2025-01-31")}
	require.True(t, c.Covers(date("2025-01-01")))
	require.True(t, c.Covers(date("2025-01-31").Add(23*time.Hour)))
	require.False(t, c.Covers(date("2025-02-01")))
	require.False(t, c.Covers(date("2024-12-31")))
}

func TestCloseOverlaps(t *testing.T) {
	c := Close{Start: date("2025-01-01"), End: date("2025-01-31")}
	require.True(t, c.Overlaps(date("2025-01-31"), date("2025-02-28")))
	require.True(t, c.Overlaps(date("2024-12-01"), date("2025-01-01")))
	require.False(t, c.Overlaps(date("2025-02-01"), date("2025-02-28")))
}

func TestEndOfDayStaysOnDate(t *testing.T) {
	end := EndOfDay(date("2025-01-31"))
	require.Equal(t, date("2025-01-31"), Day(end))
	require.Equal(t, date("2025-02-01"), Day(end.Add(time.Microsecond)))
}

func TestErrPeriodOverlapIsValidation(t *testing.T) {
	require.ErrorIs(t, ErrPeriodOverlap, shared.ErrValidation)
}
