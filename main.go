package main

import (
	"github.com/alecthomas/kong"
	"github.com/alexbotov/dond/internal/api"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version kong.VersionFlag `short:"v" help:"Show version"`
	Serve   ServeCmd         `cmd:"" default:"withargs" help:"Run the game server"`
	State   StateCmd         `cmd:"" help:"Print the current game board"`
	Watch   WatchCmd         `cmd:"" help:"Follow the game live"`
}

func main() {
	api.Version = version

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("dond"),
		kong.Description("Deal or No Deal game server"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
