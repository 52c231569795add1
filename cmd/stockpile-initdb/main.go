package main

import (
	"context"
	"os"

	"github.com/alecthomas/kong"

	"github.com/stockpile-io/stockpile/backend/releases/dal/databasetesting"
	"github.com/stockpile-io/stockpile/internal/log"
)

var cli struct {
	log.Config
	Recreate bool   `help:"Drop and recreate the database."`
	DSN      string `help:"Postgres DSN." default:"postgres://localhost:5432/stockpile?sslmode=disable&user=postgres&password=secret" env:"STOCKPILE_DSN"`
}

func main() {
	kctx := kong.Parse(&cli)
	ctx := log.ContextWithLogger(context.Background(), log.Configure(os.Stderr, cli.Config))
	conn, err := databasetesting.CreateForDevel(ctx, cli.DSN, cli.Recreate)
	kctx.FatalIfErrorf(err)
	conn.Close()
}
