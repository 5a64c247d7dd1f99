package main

import (
	"fmt"
	"os"

	"github.com/mwantia/fluxupload/cmd/fluxupload/cli"
	"github.com/mwantia/fluxupload/cmd/fluxupload/cli/client"
	"github.com/mwantia/fluxupload/cmd/fluxupload/cli/server"
)

var (
	version = "0.0.1-dev"
	commit  = "main"
)

func main() {
	root := cli.NewRootCommand(cli.VersionInfo{
		Version: version,
		Commit:  commit,
	})

	root.AddCommand(cli.NewVersionCommand())

	root.AddCommand(server.NewServeCommand())
	root.AddCommand(server.NewConfigCommand())
	root.AddCommand(server.NewCleanCommand())
	root.AddCommand(server.NewDatabaseCommand())

	root.AddCommand(client.NewClientCommands()...)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
