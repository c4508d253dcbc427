package notification

import (
	"context"
	"embed"

	"github.com/jmoiron/sqlx"

	"github.com/nao1215/neighborly/pkg/logging"
	"github.com/nao1215/neighborly/pkg/migration"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate は通知サービスのスキーマを適用する。
func Migrate(ctx context.Context, db *sqlx.DB, logger logging.Logger) error {
	_, err := migration.Run(ctx, db, migrationFS, "migrations", logger)
	return err
}
