package commands

import (
	"errors"

	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

var ErrNameRequired = errors.New("NAME argument required")

// CLIDependencies holds the common dependencies needed by CLI commands.
type CLIDependencies struct {
	Migrator *migrate.Migrator
	Logger   *zap.Logger
}
