// Package misskey implements the remote feed calls for Misskey servers.
package misskey

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/robalyx/decelerator/internal/database/types"
	"github.com/robalyx/decelerator/internal/fediverse"
)

const notificationTypeRenote = "renote"

// Client talks to the Misskey API.
type Client struct {
	transport *fediverse.Transport
}

var _ fediverse.Client = (*Client)(nil)

// New creates a Misskey client.
func New(transport *fediverse.Transport) *Client {
	return &Client{transport: transport}
}

// Software implements fediverse.Client.
func (c *Client) Software() types.ServerSoftware {
	return types.SoftwareMisskey
}

// ListNotifications implements fediverse.Client.
func (c *Client) ListNotifications(ctx context.Context, page fediverse.Page) ([]fediverse.Notification, error) {
	req := notificationsRequest{
		pageRequest:  toPageRequest(page),
		IncludeTypes: []string{notificationTypeRenote},
	}

	var raw []json.RawMessage
	if err := c.transport.Post(ctx, "/api/i/notifications", req, &raw); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	out := make([]fediverse.Notification, 0, len(raw))
	for _, r := range raw {
		var n notification
		if err := sonic.Unmarshal(r, &n); err != nil {
			return nil, fmt.Errorf("%w: %w", fediverse.ErrInvalidResponse, err)
		}

		// The notified note is the renote; it points at the user's note
		if n.Type != notificationTypeRenote || n.Note == nil || n.Note.RenoteID == nil {
			continue
		}

		out = append(out, fediverse.Notification{
			ID:        n.ID,
			CreatedAt: n.CreatedAt,
			AccountID: n.UserID,
			PostID:    *n.Note.RenoteID,
			Raw:       fediverse.DecodeMap(r),
		})
	}

	return out, nil
}

// ListPosts implements fediverse.Client.
// A pure renote yields both the boost and the renoted note.
func (c *Client) ListPosts(ctx context.Context, accountID string, page fediverse.Page) ([]fediverse.Post, error) {
	req := notesRequest{
		pageRequest: toPageRequest(page),
		UserID:      accountID,
		WithRenotes: true,
		WithReplies: false,
	}

	var raw []json.RawMessage
	if err := c.transport.Post(ctx, "/api/users/notes", req, &raw); err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}

	out := make([]fediverse.Post, 0, len(raw))
	for _, r := range raw {
		var n note
		if err := sonic.Unmarshal(r, &n); err != nil {
			return nil, fmt.Errorf("%w: %w", fediverse.ErrInvalidResponse, err)
		}

		post := fediverse.Post{
			ID:         n.ID,
			AccountID:  n.UserID,
			Visibility: n.Visibility,
			CreatedAt:  n.CreatedAt,
			Raw:        fediverse.DecodeMap(r),
		}

		if n.isPureRenote() {
			post.BoostOfID = *n.RenoteID
		}

		out = append(out, post)

		if n.Renote != nil {
			out = append(out, fediverse.Post{
				ID:         n.Renote.ID,
				AccountID:  n.Renote.UserID,
				Visibility: n.Renote.Visibility,
				CreatedAt:  n.Renote.CreatedAt,
				Raw:        fediverse.NestedMap(post.Raw, "renote"),
				Embedded:   true,
			})
		}
	}

	return out, nil
}

// FetchRelationship implements fediverse.Client.
func (c *Client) FetchRelationship(ctx context.Context, accountID string) (fediverse.Relationship, error) {
	var rel relation
	if err := c.transport.Post(ctx, "/api/users/relation", relationRequest{UserID: accountID}, &rel); err != nil {
		return fediverse.Relationship{}, fmt.Errorf("failed to fetch relation: %w", err)
	}

	return fediverse.Relationship{
		AccountID:  accountID,
		Following:  rel.IsFollowing,
		FollowedBy: rel.IsFollowed,
	}, nil
}

// VerifyCredentials implements fediverse.Client.
func (c *Client) VerifyCredentials(ctx context.Context) (fediverse.Account, error) {
	var u user
	if err := c.transport.Post(ctx, "/api/i", struct{}{}, &u); err != nil {
		return fediverse.Account{}, fmt.Errorf("failed to verify credentials: %w", err)
	}

	return fediverse.Account{ID: u.ID, Username: u.Username}, nil
}

func toPageRequest(page fediverse.Page) pageRequest {
	return pageRequest{
		Limit:   page.Limit,
		SinceID: page.MinID,
		UntilID: page.MaxID,
	}
}
