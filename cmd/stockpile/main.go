package main

import (
	"context"
	"os"

	"github.com/alecthomas/kong"

	"github.com/stockpile-io/stockpile"
	"github.com/stockpile-io/stockpile/backend/releases"
	_ "github.com/stockpile-io/stockpile/internal/automaxprocs" // Set GOMAXPROCS to match Linux container CPU quota.
	"github.com/stockpile-io/stockpile/internal/log"
	"github.com/stockpile-io/stockpile/internal/observability"
)

var cli struct {
	Version             kong.VersionFlag     `help:"Show version."`
	ObservabilityConfig observability.Config `embed:"" prefix:"o11y-"`
	LogConfig           log.Config           `embed:"" prefix:"log-"`
	ReleasesConfig      releases.Config      `embed:""`
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Description(`Stockpile - a registry for release artifacts`),
		kong.UsageOnError(),
		kong.Vars{"version": stockpile.Version},
	)

	ctx := log.ContextWithLogger(context.Background(), log.Configure(os.Stderr, cli.LogConfig))
	err := observability.Init(ctx, "stockpile", stockpile.Version, cli.ObservabilityConfig)
	kctx.FatalIfErrorf(err, "failed to initialize observability")
	err = releases.Start(ctx, cli.ReleasesConfig)
	kctx.FatalIfErrorf(err)
}
