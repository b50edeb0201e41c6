package main

import (
	"github.com/alecthomas/kong"

	"github.com/chaz8081/invisa-link/internal/cli"
)

func main() {
	var c cli.CLI
	ctx := kong.Parse(&c,
		kong.Name("invisa-link"),
		kong.Description("Scan for, connect to, and exchange data with Invisa BLE tags."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	ctx.FatalIfErrorf(ctx.Run(&c))
}
