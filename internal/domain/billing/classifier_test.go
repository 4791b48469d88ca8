package billing

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoadLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestDaysUntilDue(t *testing.T) {
	loc := mustLoadLocation(t, "America/Sao_Paulo")
	today := time.Date(2025, 6, 15, 0, 0, 0, 0, loc)

	t.Run("positive offset for future due date", func(t *testing.T) {
		due := today.AddDate(0, 0, 5)
		assert.Equal(t, 5, DaysUntilDue(today, due, loc))
	})

	t.Run("zero offset for same day", func(t *testing.T) {
		assert.Equal(t, 0, DaysUntilDue(today, today, loc))
	})

	t.Run("negative offset for overdue", func(t *testing.T) {
		due := today.AddDate(0, 0, -3)
		assert.Equal(t, -3, DaysUntilDue(today, due, loc))
	})

	t.Run("time of day does not affect the offset", func(t *testing.T) {
		lateToday := time.Date(2025, 6, 15, 23, 59, 59, 0, loc)
		earlyDue := time.Date(2025, 6, 18, 0, 0, 1, 0, loc)
		assert.Equal(t, 3, DaysUntilDue(lateToday, earlyDue, loc))

		earlyToday := time.Date(2025, 6, 15, 0, 0, 1, 0, loc)
		lateDue := time.Date(2025, 6, 18, 23, 59, 59, 0, loc)
		assert.Equal(t, 3, DaysUntilDue(earlyToday, lateDue, loc))
	})

	t.Run("instants in other zones are converted first", func(t *testing.T) {
		// 2025-06-16 01:00 UTC is still 2025-06-15 22:00 in Sao Paulo.
		dueUTC := time.Date(2025, 6, 16, 1, 0, 0, 0, time.UTC)
		assert.Equal(t, 0, DaysUntilDue(today, dueUTC, loc))
	})
}

func TestClassify(t *testing.T) {
	loc := mustLoadLocation(t, "America/Sao_Paulo")
	today := time.Date(2025, 6, 15, 10, 30, 0, 0, loc)

	tests := []struct {
		offset int
		want   Category
	}{
		{offset: 10, want: CategoryNone},
		{offset: 9, want: CategoryNone},
		{offset: 8, want: CategoryNone},
		{offset: 7, want: CategoryNone},
		{offset: 6, want: CategoryNone},
		{offset: 5, want: CategoryReminder5},
		{offset: 4, want: CategoryNone},
		{offset: 3, want: CategoryReminder3},
		{offset: 2, want: CategoryReminder2},
		{offset: 1, want: CategoryNone},
		{offset: 0, want: CategoryDueToday},
		{offset: -1, want: CategoryOverdueShort},
		{offset: -2, want: CategoryOverdueShort},
		{offset: -3, want: CategoryUrgent},
		{offset: -4, want: CategoryOverdueMid},
		{offset: -5, want: CategoryOverdueMid},
		{offset: -6, want: CategoryOverdueMid},
		{offset: -7, want: CategorySuspension},
		{offset: -8, want: CategorySuspension},
		{offset: -9, want: CategorySuspension},
		{offset: -10, want: CategorySuspension},
		{offset: -30, want: CategorySuspension},
		{offset: -365, want: CategorySuspension},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(fmt.Sprintf("offset %d", tc.offset), func(t *testing.T) {
			due := today.AddDate(0, 0, tc.offset)
			assert.Equal(t, tc.want, Classify(today, due, loc))
		})
	}
}

func TestClassifyAcrossMonthBoundary(t *testing.T) {
	loc := mustLoadLocation(t, "America/Sao_Paulo")
	today := time.Date(2025, 1, 30, 8, 0, 0, 0, loc)
	due := time.Date(2025, 2, 2, 0, 0, 0, 0, loc)

	assert.Equal(t, CategoryReminder3, Classify(today, due, loc))
}
