// Package fediverse defines the remote feed contract shared by every server software.
package fediverse

import (
	"context"
	"time"

	"github.com/robalyx/decelerator/internal/database/types"
)

// Page selects a slice of a remote timeline.
// MinID returns items strictly newer than it, MaxID items strictly older.
// Setting both returns the window between them.
type Page struct {
	MinID string
	MaxID string
	Limit int
}

// Notification is a boost notification as reported by the remote server.
type Notification struct {
	ID        string
	CreatedAt time.Time
	AccountID string // Booster
	PostID    string // Boosted post
	Raw       map[string]any
}

// Post is a remote post. A boost carries the id of the boosted post in BoostOfID.
type Post struct {
	ID         string
	AccountID  string
	BoostOfID  string
	Visibility string
	CreatedAt  time.Time
	Raw        map[string]any
	// Embedded is set on a boosted post that was returned inside a boost.
	// It is not part of the listed timeline and must not move paging cursors.
	Embedded bool
}

// Relationship describes how the credential owner relates to another account.
type Relationship struct {
	AccountID  string
	Following  bool
	FollowedBy bool
}

// Mutual reports whether both accounts follow each other.
func (r Relationship) Mutual() bool {
	return r.Following && r.FollowedBy
}

// Account identifies the credential owner.
type Account struct {
	ID       string
	Username string
}

// Client is one remote server software's implementation of the feed calls.
type Client interface {
	// Software returns the server software the client talks to.
	Software() types.ServerSoftware
	// ListNotifications returns boost notifications of the credential owner.
	ListNotifications(ctx context.Context, page Page) ([]Notification, error)
	// ListPosts returns posts authored by accountID, excluding replies.
	// A page may contain more posts than requested because boosts also yield the boosted post.
	ListPosts(ctx context.Context, accountID string, page Page) ([]Post, error)
	// FetchRelationship returns the relationship with accountID.
	FetchRelationship(ctx context.Context, accountID string) (Relationship, error)
	// VerifyCredentials returns the credential owner.
	VerifyCredentials(ctx context.Context) (Account, error)
}

// Credential is what a Factory needs to build a client.
type Credential struct {
	Domain   string
	Software types.ServerSoftware
	Token    string
}

// Factory builds a Client for a credential.
type Factory interface {
	NewClient(cred Credential) (Client, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(cred Credential) (Client, error)

// NewClient calls f.
func (f FactoryFunc) NewClient(cred Credential) (Client, error) {
	return f(cred)
}

// CompareIDs orders two remote ids. Longer ids are newer; ids of equal length compare lexically.
// This holds for Mastodon snowflake ids as well as Misskey aid ids.
func CompareIDs(a, b string) int {
	switch {
	case len(a) != len(b):
		if len(a) < len(b) {
			return -1
		}

		return 1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// IDBounds returns the oldest and newest ids among ids.
func IDBounds(ids []string) (string, string) {
	var oldest, newest string

	for _, id := range ids {
		if oldest == "" || CompareIDs(id, oldest) < 0 {
			oldest = id
		}

		if newest == "" || CompareIDs(id, newest) > 0 {
			newest = id
		}
	}

	return oldest, newest
}
