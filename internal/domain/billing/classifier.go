package billing

import (
	"math"
	"time"
)

// Category is the reminder bucket an invoice falls into for one sweep pass.
// It is derived from the day offset between the due date and today and is
// never persisted.
type Category string

const (
	CategoryNone         Category = ""
	CategoryReminder5    Category = "REMINDER_5"
	CategoryReminder3    Category = "REMINDER_3"
	CategoryReminder2    Category = "REMINDER_2"
	CategoryDueToday     Category = "DUE_TODAY"
	CategoryOverdueShort Category = "OVERDUE_SHORT"
	CategoryUrgent       Category = "URGENT"
	CategoryOverdueMid   Category = "OVERDUE_MID"
	CategorySuspension   Category = "SUSPENSION"
)

// DaysUntilDue returns the signed whole-day offset between dueDate and today
// in loc. Positive means not yet due, negative means overdue. Both instants
// are normalized to midnight first, so time-of-day never affects the result.
func DaysUntilDue(today, dueDate time.Time, loc *time.Location) int {
	t := midnight(today, loc)
	d := midnight(dueDate, loc)
	return int(math.Round(d.Sub(t).Hours() / 24))
}

func midnight(t time.Time, loc *time.Location) time.Time {
	year, month, day := t.In(loc).Date()
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

// Classify maps an invoice's due date to its reminder category for today.
// The offset table is deliberately sparse: offsets 4 and 1 (and anything
// else not listed) send nothing.
func Classify(today, dueDate time.Time, loc *time.Location) Category {
	offset := DaysUntilDue(today, dueDate, loc)

	switch {
	case offset == 5:
		return CategoryReminder5
	case offset == 3:
		return CategoryReminder3
	case offset == 2:
		return CategoryReminder2
	case offset == 0:
		return CategoryDueToday
	case offset == -1 || offset == -2:
		return CategoryOverdueShort
	case offset == -3:
		return CategoryUrgent
	case offset >= -6 && offset <= -4:
		return CategoryOverdueMid
	case offset <= -7:
		return CategorySuspension
	default:
		return CategoryNone
	}
}
