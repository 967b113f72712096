// Package mastodon implements the remote feed calls for Mastodon servers.
package mastodon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/robalyx/decelerator/internal/database/types"
	"github.com/robalyx/decelerator/internal/fediverse"
)

const notificationTypeReblog = "reblog"

// Client talks to the Mastodon REST API.
type Client struct {
	transport *fediverse.Transport
}

var _ fediverse.Client = (*Client)(nil)

// New creates a Mastodon client.
func New(transport *fediverse.Transport) *Client {
	return &Client{transport: transport}
}

// Software implements fediverse.Client.
func (c *Client) Software() types.ServerSoftware {
	return types.SoftwareMastodon
}

// ListNotifications implements fediverse.Client.
func (c *Client) ListNotifications(ctx context.Context, page fediverse.Page) ([]fediverse.Notification, error) {
	query := pageQuery(page)
	query.Add("types[]", notificationTypeReblog)

	var raw []json.RawMessage
	if err := c.transport.Get(ctx, "/api/v1/notifications", query, &raw); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	out := make([]fediverse.Notification, 0, len(raw))
	for _, r := range raw {
		var n notification
		if err := sonic.Unmarshal(r, &n); err != nil {
			return nil, fmt.Errorf("%w: %w", fediverse.ErrInvalidResponse, err)
		}

		// Servers ignoring the type filter still send other kinds
		if n.Type != notificationTypeReblog || n.Status == nil {
			continue
		}

		out = append(out, fediverse.Notification{
			ID:        n.ID,
			CreatedAt: n.CreatedAt,
			AccountID: n.Account.ID,
			PostID:    n.Status.ID,
			Raw:       fediverse.DecodeMap(r),
		})
	}

	return out, nil
}

// ListPosts implements fediverse.Client.
// A reblog yields both the boost and the boosted post.
func (c *Client) ListPosts(ctx context.Context, accountID string, page fediverse.Page) ([]fediverse.Post, error) {
	query := pageQuery(page)
	query.Set("exclude_replies", "true")

	var raw []json.RawMessage
	if err := c.transport.Get(ctx, "/api/v1/accounts/"+url.PathEscape(accountID)+"/statuses", query, &raw); err != nil {
		return nil, fmt.Errorf("failed to list statuses: %w", err)
	}

	out := make([]fediverse.Post, 0, len(raw))
	for _, r := range raw {
		var s status
		if err := sonic.Unmarshal(r, &s); err != nil {
			return nil, fmt.Errorf("%w: %w", fediverse.ErrInvalidResponse, err)
		}

		post := fediverse.Post{
			ID:         s.ID,
			AccountID:  s.Account.ID,
			Visibility: s.Visibility,
			CreatedAt:  s.CreatedAt,
			Raw:        fediverse.DecodeMap(r),
		}

		if s.Reblog != nil {
			post.BoostOfID = s.Reblog.ID

			out = append(out, post, fediverse.Post{
				ID:         s.Reblog.ID,
				AccountID:  s.Reblog.Account.ID,
				Visibility: s.Reblog.Visibility,
				CreatedAt:  s.Reblog.CreatedAt,
				Raw:        fediverse.NestedMap(post.Raw, "reblog"),
				Embedded:   true,
			})

			continue
		}

		out = append(out, post)
	}

	return out, nil
}

// FetchRelationship implements fediverse.Client.
func (c *Client) FetchRelationship(ctx context.Context, accountID string) (fediverse.Relationship, error) {
	query := url.Values{}
	query.Add("id[]", accountID)

	var rels []relationship
	if err := c.transport.Get(ctx, "/api/v1/accounts/relationships", query, &rels); err != nil {
		return fediverse.Relationship{}, fmt.Errorf("failed to fetch relationship: %w", err)
	}

	for _, rel := range rels {
		if rel.ID == accountID {
			return fediverse.Relationship{
				AccountID:  rel.ID,
				Following:  rel.Following,
				FollowedBy: rel.FollowedBy,
			}, nil
		}
	}

	return fediverse.Relationship{AccountID: accountID}, nil
}

// VerifyCredentials implements fediverse.Client.
func (c *Client) VerifyCredentials(ctx context.Context) (fediverse.Account, error) {
	var acc account
	if err := c.transport.Get(ctx, "/api/v1/accounts/verify_credentials", nil, &acc); err != nil {
		return fediverse.Account{}, fmt.Errorf("failed to verify credentials: %w", err)
	}

	return fediverse.Account{ID: acc.ID, Username: acc.Username}, nil
}

func pageQuery(page fediverse.Page) url.Values {
	query := url.Values{}
	if page.Limit > 0 {
		query.Set("limit", strconv.Itoa(page.Limit))
	}

	if page.MinID != "" {
		query.Set("min_id", page.MinID)
	}

	if page.MaxID != "" {
		query.Set("max_id", page.MaxID)
	}

	return query
}
