package convert

import (
	"github.com/robalyx/decelerator/internal/database/types"
	"github.com/robalyx/decelerator/internal/delivery"
	restTypes "github.com/robalyx/decelerator/internal/rest/types"
)

// Reaction converts a stored reaction to its REST form.
func Reaction(reaction *types.UserReaction) *restTypes.Reaction {
	if reaction == nil {
		return nil
	}

	return &restTypes.Reaction{
		NotificationID: reaction.NotificationID,
		AccountID:      reaction.AccountID,
		PostID:         reaction.PostID,
		ReactionID:     reaction.ReactionID,
		BoostedAt:      reaction.CreatedAt,
		ReactedAt:      reaction.ReactedAt,
		DelaySeconds:   reaction.Delay().Seconds(),
		FromMutual:     reaction.FromMutual,
	}
}

// Reactions converts a list of stored reactions.
func Reactions(reactions []*types.UserReaction) []*restTypes.Reaction {
	out := make([]*restTypes.Reaction, 0, len(reactions))
	for _, r := range reactions {
		out = append(out, Reaction(r))
	}

	return out
}

// Event converts a delivery event to its stream payload.
func Event(event delivery.Event) restTypes.ReactionEvent {
	return restTypes.ReactionEvent{NotificationID: event.NotificationID}
}
