package domain

import "time"

// ClaimNotification tells a promoted diner that a slot is held for them
type ClaimNotification struct {
	NotificationID string    `json:"notification_id"`
	AlertID        string    `json:"alert_id"`
	DinerID        string    `json:"diner_id"`
	SlotID         string    `json:"slot_id"`
	VenueName      string    `json:"venue_name"`
	SlotStart      time.Time `json:"slot_start"`
	PartyMin       int       `json:"party_min"`
	PartyMax       int       `json:"party_max"`
	HoldDeadline   time.Time `json:"hold_deadline"`
}

// NewClaimNotification builds the notification for a promotion
func NewClaimNotification(notificationID string, slot *Slot, p *Promotion) *ClaimNotification {
	return &ClaimNotification{
		NotificationID: notificationID,
		AlertID:        p.AlertID,
		DinerID:        p.DinerID,
		SlotID:         slot.ID,
		VenueName:      slot.VenueName,
		SlotStart:      slot.StartsAt,
		PartyMin:       slot.PartyMin,
		PartyMax:       slot.PartyMax,
		HoldDeadline:   p.ReservedUntil,
	}
}
