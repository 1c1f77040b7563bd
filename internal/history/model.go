package history

import "time"

// Entry is one recorded step in a booking's life. Entries are never
// updated or deleted.
type Entry struct {
	ID        string
	BookingID string
	Event     string
	Status    string
	ActorID   string
	ActorName string
	ActorRole string
	Note      string
	At        time.Time
}
