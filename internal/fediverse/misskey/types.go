package misskey

import "time"

type user struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type note struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	UserID     string    `json:"userId"`
	Visibility string    `json:"visibility"`
	Text       *string   `json:"text"`
	CW         *string   `json:"cw"`
	RenoteID   *string   `json:"renoteId"`
	FileIDs    []string  `json:"fileIds"`
	Poll       any       `json:"poll"`
	Renote     *note     `json:"renote"`
}

// isPureRenote reports whether the note only renotes another note.
// A renote carrying its own content is a quote and counts as an original post.
func (n *note) isPureRenote() bool {
	return n.RenoteID != nil && *n.RenoteID != "" &&
		(n.Text == nil || *n.Text == "") &&
		n.CW == nil &&
		len(n.FileIDs) == 0 &&
		n.Poll == nil
}

type notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
	UserID    string    `json:"userId"`
	Note      *note     `json:"note"`
}

type relation struct {
	ID          string `json:"id"`
	IsFollowing bool   `json:"isFollowing"`
	IsFollowed  bool   `json:"isFollowed"`
}

type pageRequest struct {
	Limit   int    `json:"limit,omitempty"`
	SinceID string `json:"sinceId,omitempty"`
	UntilID string `json:"untilId,omitempty"`
}

type notificationsRequest struct {
	pageRequest

	IncludeTypes []string `json:"includeTypes"`
}

type notesRequest struct {
	pageRequest

	UserID      string `json:"userId"`
	WithRenotes bool   `json:"withRenotes"`
	WithReplies bool   `json:"withReplies"`
}

type relationRequest struct {
	UserID string `json:"userId"`
}
