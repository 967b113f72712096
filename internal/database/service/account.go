package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/robalyx/decelerator/internal/database/models"
	"github.com/robalyx/decelerator/internal/database/types"
	"github.com/robalyx/decelerator/internal/security"
	"go.uber.org/zap"
)

// Credential is an unsealed account credential ready for remote calls.
type Credential struct {
	Domain    string
	Software  types.ServerSoftware
	AccountID string
	Token     string
}

// RegisterInput describes an account to register.
type RegisterInput struct {
	Domain    string
	Software  types.ServerSoftware
	AccountID string
	Username  string
	Token     string
}

// AccountService handles account registration and credential access.
type AccountService struct {
	servers  *models.ServerModel
	accounts *models.AccountModel
	sealer   *security.Sealer
	logger   *zap.Logger
}

// NewAccount creates an AccountService.
func NewAccount(
	servers *models.ServerModel, accounts *models.AccountModel, sealer *security.Sealer, logger *zap.Logger,
) *AccountService {
	if !sealer.Enabled() {
		logger.Warn("Token sealing is disabled, access tokens are stored in plaintext")
	}

	return &AccountService{
		servers:  servers,
		accounts: accounts,
		sealer:   sealer,
		logger:   logger.Named("account_service"),
	}
}

// Register upserts the server and the account with a sealed token.
func (s *AccountService) Register(ctx context.Context, input RegisterInput) (*types.Account, error) {
	if err := s.servers.Upsert(ctx, &types.Server{
		Domain:   input.Domain,
		Software: input.Software,
	}); err != nil {
		return nil, err
	}

	sealed, err := s.sealer.Seal(input.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to seal token: %w", err)
	}

	account := &types.Account{
		Domain:      input.Domain,
		AccountID:   input.AccountID,
		Username:    input.Username,
		AccessToken: sealed,
	}
	if err := s.accounts.Upsert(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info("Registered account",
		zap.String("domain", input.Domain),
		zap.String("accountID", input.AccountID),
		zap.String("username", input.Username))

	return account, nil
}

// Credential returns the unsealed credential of an authorized account.
func (s *AccountService) Credential(ctx context.Context, domain, accountID string) (*Credential, error) {
	server, err := s.servers.Get(ctx, domain)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.Get(ctx, domain, accountID)
	if err != nil {
		return nil, err
	}

	return s.Unseal(server, account)
}

// Unseal converts a loaded account into a credential.
func (s *AccountService) Unseal(server *types.Server, account *types.Account) (*Credential, error) {
	if !account.Authorized() {
		return nil, types.ErrAccountUnauthorized
	}

	token, err := s.sealer.Open(account.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to open token for %s@%s: %w", account.AccountID, account.Domain, err)
	}

	return &Credential{
		Domain:    account.Domain,
		Software:  server.Software,
		AccountID: account.AccountID,
		Token:     token,
	}, nil
}

// Revoke marks an account unauthorized.
func (s *AccountService) Revoke(ctx context.Context, domain, accountID string) error {
	if _, err := s.accounts.Get(ctx, domain, accountID); err != nil {
		if errors.Is(err, types.ErrAccountNotFound) {
			return err
		}

		return fmt.Errorf("failed to load account: %w", err)
	}

	return s.accounts.MarkUnauthorized(ctx, domain, accountID)
}
