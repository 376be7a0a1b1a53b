package runner

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/monahq/mona/config"
	"github.com/monahq/mona/models"
	"github.com/monahq/mona/postgres"
	"github.com/monahq/mona/sqlite"
)

// Stores bundles the repositories over one database handle.
type Stores struct {
	DB           *sql.DB
	Users        models.UserRepository
	Integrations models.IntegrationRepository
	Events       models.CalendarEventRepository
	Emails       models.EmailMessageRepository
	Runs         models.SyncRunRepository
	Chat         models.ChatMessageRepository
}

// OpenStores opens the configured database and builds the repositories.
// The postgres driver applies pending schema migrations first; sqlite
// creates its schema on open.
func OpenStores(cfg *config.Config, logger *zap.Logger) (*Stores, error) {
	var (
		db  *sql.DB
		err error
	)

	switch cfg.DatabaseDriver {
	case "sqlite":
		db, err = sqlite.Open(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}

		return &Stores{
			DB:           db,
			Users:        sqlite.NewUserRepository(db),
			Integrations: sqlite.NewIntegrationRepository(db),
			Events:       sqlite.NewCalendarEventRepository(db),
			Emails:       sqlite.NewEmailMessageRepository(db),
			Runs:         sqlite.NewSyncRunRepository(db),
			Chat:         sqlite.NewChatMessageRepository(db),
		}, nil
	case "postgres":
		migrator := postgres.NewMigrationRunner(cfg.DatabaseDSN, logger)
		if err := migrator.RunMigrations(); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		db, err = postgres.Open(cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres database: %w", err)
		}

		return &Stores{
			DB:           db,
			Users:        postgres.NewUserRepository(db),
			Integrations: postgres.NewIntegrationRepository(db),
			Events:       postgres.NewCalendarEventRepository(db),
			Emails:       postgres.NewEmailMessageRepository(db),
			Runs:         postgres.NewSyncRunRepository(db),
			Chat:         postgres.NewChatMessageRepository(db),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
}

// Close releases the database handle.
func (s *Stores) Close() error {
	return s.DB.Close()
}
