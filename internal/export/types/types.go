package types

import "time"

// ExportRecord is one exported reaction.
type ExportRecord struct {
	Domain         string
	NotificationID string
	UserID         string
	AccountHash    string // Booster, pseudonymized
	PostID         string
	ReactionID     string
	BoostedAt      time.Time
	ReactedAt      time.Time
	FromMutual     bool
}

// DelaySeconds returns the reaction delay in seconds.
func (r *ExportRecord) DelaySeconds() float64 {
	return r.ReactedAt.Sub(r.BoostedAt).Seconds()
}
