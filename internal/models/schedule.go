package models

// Schedule is a dated entry on a team's shared calendar.
// Schedules are created and deleted but never edited.
type Schedule struct {
	// ID is the unique identifier for the schedule (UUID format).
	ID string

	// TeamID is the team whose calendar holds the entry.
	TeamID string

	// Title is the human-readable description (e.g., "Standup").
	Title string

	// Date is the calendar date in YYYY-MM-DD form.
	Date string

	// DueTime is the deadline in HH:MM form, or empty when unset.
	DueTime string

	// CreatorID is the user who added the entry.
	CreatorID string

	// CreatedAt is the Unix timestamp when the entry was created.
	CreatedAt int64

	// Seq is the insertion sequence assigned by the store.
	// It breaks ties between entries with the same deadline.
	Seq int64
}

// Clone returns a copy of the schedule.
func (s *Schedule) Clone() *Schedule {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
