package main

import (
	"fmt"

	"github.com/alecthomas/kong"
	"github.com/gravitational/trace"

	"github.com/memberlift/memberlift/lib"
	"github.com/memberlift/memberlift/lib/logger"
)

const (
	toolName        = "memberlift"
	toolDescription = "Collects Discord OAuth2 authorizations and adds the authorized users to a target guild"
)

var cli CLI

func main() {
	logger.Init()

	ctx := kong.Parse(
		&cli,
		kong.UsageOnError(),
		kong.Configuration(KongTOMLResolver),
		kong.Name(toolName),
		kong.Description(toolDescription),
	)

	if err := setupLogging(&cli); err != nil {
		lib.Bail(err)
	}

	// See respective commands Run() methods
	err := ctx.Run()
	if cli.Debug {
		fmt.Printf("%v\n", trace.DebugReport(err))
	}
	ctx.FatalIfErrorf(err)
}
