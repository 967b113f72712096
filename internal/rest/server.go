// Package rest serves the live delivery HTTP surface.
package rest

import (
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/robalyx/decelerator/internal/database"
	"github.com/robalyx/decelerator/internal/rest/handler"
	"github.com/robalyx/decelerator/internal/rest/middleware/ratelimit"
	restTypes "github.com/robalyx/decelerator/internal/rest/types"
	"github.com/robalyx/decelerator/internal/setup/config"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// ServiceName identifies the HTTP surface in traces.
const ServiceName = "decelerator-rest"

// Server implements the REST API service.
type Server struct {
	accountHandler  *handler.AccountHandler
	reactionHandler *handler.ReactionHandler
}

// NewServer creates the REST API handler.
func NewServer(db database.Client, d handler.Delivery, cfg *config.API, logger *zap.Logger) http.Handler {
	logger = logger.Named("rest")

	server := &Server{
		accountHandler:  handler.NewAccountHandler(db, d, config.Millis(cfg.FlushInterval), logger),
		reactionHandler: handler.NewReactionHandler(db, config.Millis(cfg.DefaultWindow), logger),
	}

	rateLimiter := ratelimit.New(cfg.RequestsPerSecond, cfg.Burst, logger)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		otelgin.Middleware(ServiceName),
	)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, restTypes.HealthResponse{Status: "ok"})
	})

	v1 := router.Group("/v1/:domain/accounts/:id", rateLimiter.Handler())
	v1.POST("/flush", server.accountHandler.Flush)
	v1.GET("/reactions", gzip.Gzip(gzip.DefaultCompression), server.reactionHandler.ListReactions)

	// The event stream must not be buffered by compression
	v1.GET("/events", server.accountHandler.Events)

	return router
}
