package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/housecat-inc/qtex"
	"github.com/housecat-inc/qtex/pkg/config"
	"github.com/housecat-inc/qtex/pkg/version"
)

var CLI struct {
	Dir         string           `arg:"" optional:"" default:"." help:"Project directory" type:"path"`
	JSON        bool             `name:"json" help:"Emit one JSON object per result"`
	Open        bool             `help:"Open the PDF, or the live view in watch mode"`
	Output      string           `short:"o" help:"Output PDF filename (default output.pdf)"`
	Port        int              `short:"p" help:"Preview port (default 4343)"`
	Prevalidate bool             `help:"Validate sources before compiling"`
	Server      string           `short:"s" help:"Compilation service URL"`
	Verbose     bool             `short:"v" help:"Enable debug logging"`
	Verify      bool             `help:"Validate sources instead of compiling"`
	Version     kong.VersionFlag `help:"Show version and exit"`
	Watch       bool             `short:"w" help:"Rebuild on change and serve a live preview"`
}

func main() {
	kong.Parse(&CLI,
		kong.Name("qtex"),
		kong.Description("Compile LaTeX projects on a remote service, with live preview."),
		kong.Vars{"version": version.Get()},
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := qtex.Run(ctx, qtex.DefaultConfig(), qtex.In{
		Dir: CLI.Dir,
		Flags: config.Flags{
			Open:        CLI.Open,
			Output:      CLI.Output,
			Port:        CLI.Port,
			Prevalidate: CLI.Prevalidate,
			Server:      CLI.Server,
		},
		JSON:    CLI.JSON,
		Verbose: CLI.Verbose,
		Verify:  CLI.Verify,
		Watch:   CLI.Watch,
	})
	cancel()
	os.Exit(code)
}
