package database

import (
	"github.com/robalyx/decelerator/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	server       *models.ServerModel
	account      *models.AccountModel
	post         *models.PostModel
	notification *models.NotificationModel
	reaction     *models.ReactionModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		server:       models.NewServer(db, logger),
		account:      models.NewAccount(db, logger),
		post:         models.NewPost(db, logger),
		notification: models.NewNotification(db, logger),
		reaction:     models.NewReaction(db, logger),
	}
}

// Server returns the server model.
func (r *Repository) Server() *models.ServerModel {
	return r.server
}

// Account returns the account model.
func (r *Repository) Account() *models.AccountModel {
	return r.account
}

// Post returns the post index model.
func (r *Repository) Post() *models.PostModel {
	return r.post
}

// Notification returns the boost notification model.
func (r *Repository) Notification() *models.NotificationModel {
	return r.notification
}

// Reaction returns the user reaction model.
func (r *Repository) Reaction() *models.ReactionModel {
	return r.reaction
}
