package types

import "time"

// Reaction is a resolved boost reaction.
type Reaction struct {
	NotificationID string    `json:"notificationId"`
	AccountID      string    `json:"accountId"`
	PostID         string    `json:"postId"`
	ReactionID     string    `json:"reactionId"`
	BoostedAt      time.Time `json:"boostedAt"`
	ReactedAt      time.Time `json:"reactedAt"`
	DelaySeconds   float64   `json:"delaySeconds"`
	FromMutual     bool      `json:"fromMutual"`
}

// ListReactionsResponse is returned by the reaction listing.
type ListReactionsResponse struct {
	Window    string      `json:"window"`
	Reactions []*Reaction `json:"reactions"`
}

// FlushResponse carries the notification ids resolved since the previous flush.
type FlushResponse struct {
	NotificationIDs []string `json:"notificationIds"`
}

// ReactionEvent is streamed when a notification of the account resolves.
type ReactionEvent struct {
	NotificationID string `json:"notificationId"`
}

// HealthResponse is returned by the health check.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is returned for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}
