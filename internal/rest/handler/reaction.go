package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robalyx/decelerator/internal/database"
	"github.com/robalyx/decelerator/internal/database/types"
	"github.com/robalyx/decelerator/internal/rest/convert"
	restTypes "github.com/robalyx/decelerator/internal/rest/types"
	"go.uber.org/zap"
)

// Display window bounds and listing limits.
const (
	MinWindow    = 30 * time.Second
	MaxWindow    = 10 * time.Minute
	DefaultLimit = 50
	MaxLimit     = 500
)

// ReactionHandler serves reaction listings.
type ReactionHandler struct {
	db            database.Client
	defaultWindow time.Duration
	logger        *zap.Logger
}

// NewReactionHandler creates a new reaction handler.
func NewReactionHandler(db database.Client, defaultWindow time.Duration, logger *zap.Logger) *ReactionHandler {
	return &ReactionHandler{
		db:            db,
		defaultWindow: defaultWindow,
		logger:        logger,
	}
}

// ListReactions returns the account's reactions that arrived within the display window.
func (h *ReactionHandler) ListReactions(c *gin.Context) {
	domain, userID := c.Param("domain"), c.Param("id")

	filter, err := h.parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, restTypes.ErrorResponse{Error: err.Error()})
		return
	}

	if !lookupAccount(c, h.db, h.logger, domain, userID) {
		return
	}

	reactions, err := h.db.Model().Reaction().List(c.Request.Context(), domain, userID, filter)
	if err != nil {
		h.logger.Error("Failed to list reactions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, restTypes.ErrorResponse{Error: "internal server error"})

		return
	}

	c.JSON(http.StatusOK, restTypes.ListReactionsResponse{
		Window:    filter.Window.String(),
		Reactions: convert.Reactions(reactions),
	})
}

func (h *ReactionHandler) parseFilter(c *gin.Context) (types.ReactionFilter, error) {
	filter := types.ReactionFilter{Window: h.defaultWindow, Limit: DefaultLimit}

	if raw := c.Query("window"); raw != "" {
		window, err := time.ParseDuration(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid window %q", raw)
		}

		filter.Window = window
	}

	if filter.Window < MinWindow || filter.Window > MaxWindow {
		return filter, fmt.Errorf("window must be between %s and %s", MinWindow, MaxWindow)
	}

	if raw := c.Query("mutual"); raw != "" {
		mutual, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid mutual %q", raw)
		}

		filter.MutualOnly = mutual
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return filter, fmt.Errorf("invalid limit %q", raw)
		}

		filter.Limit = min(limit, MaxLimit)
	}

	return filter, nil
}
