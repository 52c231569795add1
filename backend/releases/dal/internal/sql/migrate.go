package sql

import (
	"context"
	"embed"
	"fmt"
	"net/url"

	"github.com/amacneil/dbmate/v2/pkg/dbmate"
	_ "github.com/amacneil/dbmate/v2/pkg/driver/postgres"

	"github.com/stockpile-io/stockpile/internal/log"
)

//go:embed schema
var schema embed.FS

// Migrate the database.
func Migrate(ctx context.Context, dsn string) error {
	u, err := url.Parse(dsn)
	if err != nil {
		return fmt.Errorf("invalid DSN: %w", err)
	}
	db := dbmate.New(u)
	db.FS = schema
	db.Log = log.FromContext(ctx).Scope("migrate").WriterAt(log.Debug)
	db.MigrationsDir = []string{"schema"}
	if err := db.CreateAndMigrate(); err != nil {
		return fmt.Errorf("failed to create and migrate database: %w", err)
	}
	return nil
}
