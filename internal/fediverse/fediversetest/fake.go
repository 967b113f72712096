// Package fediversetest provides an in-memory remote server for tests.
package fediversetest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/robalyx/decelerator/internal/database/types"
	"github.com/robalyx/decelerator/internal/fediverse"
)

// Server is a scripted remote server. Credentials are matched by token:
// a client created with token T sees the notifications added for T and
// the relationships added for T.
type Server struct {
	mu sync.Mutex

	software      types.ServerSoftware
	notifications map[string][]fediverse.Notification
	posts         map[string][]fediverse.Post
	relationships map[string]map[string]fediverse.Relationship
	owners        map[string]fediverse.Account
	revoked       map[string]bool

	// calls before the server starts answering with a rate limit, -1 disables it
	rateLimitAfter int
	retryAfter     time.Duration
	calls          Calls
}

// Calls counts requests per endpoint.
type Calls struct {
	Notifications int
	Posts         int
	Relationships int
	Verify        int
}

// NewServer creates an empty server running software.
func NewServer(software types.ServerSoftware) *Server {
	return &Server{
		software:       software,
		notifications:  make(map[string][]fediverse.Notification),
		posts:          make(map[string][]fediverse.Post),
		relationships:  make(map[string]map[string]fediverse.Relationship),
		owners:         make(map[string]fediverse.Account),
		revoked:        make(map[string]bool),
		rateLimitAfter: -1,
	}
}

// AddOwner registers the account a token belongs to.
func (s *Server) AddOwner(token string, account fediverse.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.owners[token] = account
}

// AddNotifications adds boost notifications visible to token.
func (s *Server) AddNotifications(token string, notifications ...fediverse.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notifications[token] = append(s.notifications[token], notifications...)
}

// AddPosts adds posts to the timeline of their authors.
func (s *Server) AddPosts(posts ...fediverse.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range posts {
		s.posts[p.AccountID] = append(s.posts[p.AccountID], p)
	}
}

// SetRelationship sets how the owner of token relates to rel.AccountID.
func (s *Server) SetRelationship(token string, rel fediverse.Relationship) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.relationships[token] == nil {
		s.relationships[token] = make(map[string]fediverse.Relationship)
	}

	s.relationships[token][rel.AccountID] = rel
}

// Revoke makes every request made with token fail as unauthorized.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revoked[token] = true
}

// RateLimitAfter makes the server answer with a rate limit once n more requests succeeded.
// A negative n lifts the limit.
func (s *Server) RateLimitAfter(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rateLimitAfter = n
}

// SetRetryAfter sets the hint sent with rate limit answers.
func (s *Server) SetRetryAfter(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.retryAfter = d
}

// Calls returns the request counters.
func (s *Server) Calls() Calls {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

// Factory returns a fediverse.Factory whose clients talk to s.
func (s *Server) Factory() fediverse.Factory {
	return fediverse.FactoryFunc(func(cred fediverse.Credential) (fediverse.Client, error) {
		return &client{server: s, token: cred.Token}, nil
	})
}

// Client returns a client using token.
func (s *Server) Client(token string) fediverse.Client {
	return &client{server: s, token: token}
}

// admit counts a request and applies the scripted failures. The lock must be held.
func (s *Server) admit(token string, counter *int) error {
	if s.revoked[token] {
		return fediverse.ErrUnauthorized
	}

	if s.rateLimitAfter == 0 {
		return &fediverse.RateLimitError{RetryAfter: s.retryAfter}
	}

	if s.rateLimitAfter > 0 {
		s.rateLimitAfter--
	}

	*counter++

	return nil
}

type client struct {
	server *Server
	token  string
}

func (c *client) Software() types.ServerSoftware {
	return c.server.software
}

func (c *client) ListNotifications(_ context.Context, page fediverse.Page) ([]fediverse.Notification, error) {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.admit(c.token, &s.calls.Notifications); err != nil {
		return nil, err
	}

	return paginate(s.notifications[c.token], page, func(n fediverse.Notification) string { return n.ID }), nil
}

func (c *client) ListPosts(_ context.Context, accountID string, page fediverse.Page) ([]fediverse.Post, error) {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.admit(c.token, &s.calls.Posts); err != nil {
		return nil, err
	}

	listed := paginate(s.posts[accountID], page, func(p fediverse.Post) string { return p.ID })

	// Boosts carry the boosted post like the real APIs do
	out := make([]fediverse.Post, 0, len(listed))
	for _, p := range listed {
		out = append(out, p)

		if p.BoostOfID == "" {
			continue
		}

		if original, ok := s.findPost(p.BoostOfID); ok {
			original.Embedded = true
			out = append(out, original)
		}
	}

	return out, nil
}

// findPost looks a post up in every timeline. The lock must be held.
func (s *Server) findPost(id string) (fediverse.Post, bool) {
	for _, posts := range s.posts {
		for _, p := range posts {
			if p.ID == id {
				return p, true
			}
		}
	}

	return fediverse.Post{}, false
}

func (c *client) FetchRelationship(_ context.Context, accountID string) (fediverse.Relationship, error) {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.admit(c.token, &s.calls.Relationships); err != nil {
		return fediverse.Relationship{}, err
	}

	if rel, ok := s.relationships[c.token][accountID]; ok {
		return rel, nil
	}

	return fediverse.Relationship{AccountID: accountID}, nil
}

func (c *client) VerifyCredentials(_ context.Context) (fediverse.Account, error) {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.admit(c.token, &s.calls.Verify); err != nil {
		return fediverse.Account{}, err
	}

	owner, ok := s.owners[c.token]
	if !ok {
		return fediverse.Account{}, fediverse.ErrUnauthorized
	}

	return owner, nil
}

// paginate mirrors Mastodon paging: with MinID the page adjacent to MinID is returned,
// otherwise the newest page below MaxID. Pages are ordered newest first.
func paginate[T any](items []T, page fediverse.Page, id func(T) string) []T {
	matched := make([]T, 0, len(items))
	for _, item := range items {
		if page.MinID != "" && fediverse.CompareIDs(id(item), page.MinID) <= 0 {
			continue
		}

		if page.MaxID != "" && fediverse.CompareIDs(id(item), page.MaxID) >= 0 {
			continue
		}

		matched = append(matched, item)
	}

	limit := page.Limit
	if limit <= 0 {
		limit = 20
	}

	if page.MinID != "" {
		slices.SortFunc(matched, func(a, b T) int { return fediverse.CompareIDs(id(a), id(b)) })
		matched = matched[:min(limit, len(matched))]
		slices.Reverse(matched)

		return matched
	}

	slices.SortFunc(matched, func(a, b T) int { return fediverse.CompareIDs(id(b), id(a)) })

	return matched[:min(limit, len(matched))]
}
