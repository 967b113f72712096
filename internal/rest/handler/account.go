package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robalyx/decelerator/internal/database"
	"github.com/robalyx/decelerator/internal/database/types"
	"github.com/robalyx/decelerator/internal/delivery"
	"github.com/robalyx/decelerator/internal/rest/convert"
	restTypes "github.com/robalyx/decelerator/internal/rest/types"
	"go.uber.org/zap"
)

// Delivery is the live delivery channel used by the account endpoints.
type Delivery interface {
	Flush(ctx context.Context, domain, userID string) ([]string, error)
	Subscribe(ctx context.Context, domain, userID string, fn func(delivery.Event)) error
}

// AccountHandler serves the flush and event stream endpoints of local accounts.
type AccountHandler struct {
	db            database.Client
	delivery      Delivery
	flushInterval time.Duration
	logger        *zap.Logger
}

// NewAccountHandler creates a new account handler.
func NewAccountHandler(db database.Client, d Delivery, flushInterval time.Duration, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		db:            db,
		delivery:      d,
		flushInterval: flushInterval,
		logger:        logger,
	}
}

// Flush returns the notification ids resolved since the previous flush.
func (h *AccountHandler) Flush(c *gin.Context) {
	domain, userID := c.Param("domain"), c.Param("id")
	if !lookupAccount(c, h.db, h.logger, domain, userID) {
		return
	}

	ids, err := h.delivery.Flush(c.Request.Context(), domain, userID)
	if err != nil {
		h.logger.Error("Failed to flush", zap.String("domain", domain), zap.String("userID", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, restTypes.ErrorResponse{Error: "internal server error"})

		return
	}

	c.JSON(http.StatusOK, restTypes.FlushResponse{NotificationIDs: ids})
}

// Events streams reaction events as they resolve and flush events on an interval.
func (h *AccountHandler) Events(c *gin.Context) {
	domain, userID := c.Param("domain"), c.Param("id")
	if !lookupAccount(c, h.db, h.logger, domain, userID) {
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events := make(chan delivery.Event, 16)

	go func() {
		err := h.delivery.Subscribe(ctx, domain, userID, func(e delivery.Event) {
			select {
			case events <- e:
			case <-ctx.Done():
			}
		})
		if err != nil {
			h.logger.Warn("Subscription ended", zap.String("domain", domain), zap.String("userID", userID), zap.Error(err))
		}

		cancel()
	}()

	ticker := time.NewTicker(h.flushInterval)
	defer ticker.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case e := <-events:
			c.SSEvent("reaction", convert.Event(e))
		case <-ticker.C:
			ids, err := h.delivery.Flush(ctx, domain, userID)
			if err != nil {
				h.logger.Error("Failed to flush", zap.String("domain", domain), zap.String("userID", userID), zap.Error(err))
				return false
			}

			c.SSEvent("flush", restTypes.FlushResponse{NotificationIDs: ids})
		}

		return true
	})
}

// lookupAccount writes an error response and returns false when the account is unknown.
func lookupAccount(c *gin.Context, db database.Client, logger *zap.Logger, domain, userID string) bool {
	_, err := db.Model().Account().Get(c.Request.Context(), domain, userID)
	if errors.Is(err, types.ErrAccountNotFound) {
		c.JSON(http.StatusNotFound, restTypes.ErrorResponse{Error: "account not found"})
		return false
	}

	if err != nil {
		logger.Error("Failed to get account", zap.Error(err))
		c.JSON(http.StatusInternalServerError, restTypes.ErrorResponse{Error: "internal server error"})

		return false
	}

	return true
}
