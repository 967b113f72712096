package database

import (
	"github.com/robalyx/decelerator/internal/database/service"
	"github.com/robalyx/decelerator/internal/security"
	"go.uber.org/zap"
)

// Service provides access to all business logic services.
type Service struct {
	account *service.AccountService
}

// NewService creates a new service instance with all services.
func NewService(repository *Repository, sealer *security.Sealer, logger *zap.Logger) *Service {
	return &Service{
		account: service.NewAccount(repository.Server(), repository.Account(), sealer, logger),
	}
}

// Account returns the account service.
func (s *Service) Account() *service.AccountService {
	return s.account
}
