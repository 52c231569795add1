package dal

import (
	"context"
	"os"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/stockpile-io/stockpile/backend/releases/dal/databasetesting"
	"github.com/stockpile-io/stockpile/internal/log"
)

func TestPostgresRegistry(t *testing.T) {
	dsn := os.Getenv("STOCKPILE_TEST_DSN")
	if dsn == "" {
		t.Skip("set STOCKPILE_TEST_DSN to run Postgres registry tests")
	}
	ctx := log.ContextWithNewDefaultLogger(context.Background())
	pool, err := databasetesting.CreateForDevel(ctx, dsn, true)
	assert.NoError(t, err)
	t.Cleanup(pool.Close)
	testRegistry(t, ctx, NewPostgres(pool))
}
