package mastodon

import "time"

type account struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Acct     string `json:"acct"`
}

type status struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Visibility string    `json:"visibility"`
	Account    account   `json:"account"`
	Reblog     *status   `json:"reblog"`
}

type notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Account   account   `json:"account"`
	Status    *status   `json:"status"`
}

type relationship struct {
	ID         string `json:"id"`
	Following  bool   `json:"following"`
	FollowedBy bool   `json:"followed_by"`
}
