package domain

import "time"

// AlertStatus represents the status of a waiting-list entry
type AlertStatus string

const (
	AlertStatusActive    AlertStatus = "active"
	AlertStatusNotified  AlertStatus = "notified"
	AlertStatusClaimed   AlertStatus = "claimed"
	AlertStatusExpired   AlertStatus = "expired"
	AlertStatusCancelled AlertStatus = "cancelled"
)

// IsOpen reports whether the status still occupies the diner's place on the slot
func (s AlertStatus) IsOpen() bool {
	return s == AlertStatusActive || s == AlertStatusNotified
}

// Alert is a diner's registered interest in a slot they cannot book now
type Alert struct {
	ID         string      `json:"id"`
	SlotID     string      `json:"slot_id"`
	DinerID    string      `json:"diner_id"`
	Status     AlertStatus `json:"status"`
	Sequence   int64       `json:"sequence"`
	CreatedAt  time.Time   `json:"created_at"`
	NotifiedAt *time.Time  `json:"notified_at,omitempty"`
}

// Promotion describes a queue head that was just given an exclusive hold
type Promotion struct {
	SlotID        string    `json:"slot_id"`
	AlertID       string    `json:"alert_id"`
	DinerID       string    `json:"diner_id"`
	Sequence      int64     `json:"sequence"`
	NotifiedAt    time.Time `json:"notified_at"`
	ReservedUntil time.Time `json:"reserved_until"`
}

// QueueEntry is one row of the per-slot queue read model
type QueueEntry struct {
	AlertID  string      `json:"alert_id"`
	DinerID  string      `json:"diner_id"`
	Status   AlertStatus `json:"status"`
	Sequence int64       `json:"sequence"`
	// Position is 1-based among active alerts, 0 for the notified holder
	Position      int           `json:"position"`
	HoldRemaining time.Duration `json:"hold_remaining,omitempty"`
}

// QueuePosition is a diner's standing on one slot's queue
type QueuePosition struct {
	SlotID        string      `json:"slot_id"`
	DinerID       string      `json:"diner_id"`
	Status        AlertStatus `json:"status"`
	Position      int         `json:"position"`
	HoldExpiresAt *time.Time  `json:"hold_expires_at,omitempty"`
}

// BuildQueue turns open alerts into the ordered read model. Alerts must be
// sorted by sequence ascending.
func BuildQueue(alerts []*Alert, reservedUntil *time.Time, now time.Time) []*QueueEntry {
	entries := make([]*QueueEntry, 0, len(alerts))
	position := 0
	for _, a := range alerts {
		entry := &QueueEntry{
			AlertID:  a.ID,
			DinerID:  a.DinerID,
			Status:   a.Status,
			Sequence: a.Sequence,
		}
		switch a.Status {
		case AlertStatusActive:
			position++
			entry.Position = position
		case AlertStatusNotified:
			if reservedUntil != nil {
				if remaining := reservedUntil.Sub(now); remaining > 0 {
					entry.HoldRemaining = remaining
				}
			}
		default:
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}
