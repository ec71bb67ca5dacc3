package main

import (
	"log"
	"os"

	"github.com/cshum/megacmd/internal/auth"
	"github.com/cshum/megacmd/internal/backup"
	"github.com/cshum/megacmd/internal/config"
	"github.com/cshum/megacmd/internal/server"
	"github.com/cshum/megacmd/internal/shell"
	"github.com/cshum/megacmd/internal/sync"
	"github.com/cshum/megacmd/internal/updater"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:           "megacmd",
		Usage:          "Command line access to your MEGA cloud drive",
		Version:        config.Version,
		DefaultCommand: "shell",
		Commands: []*cli.Command{
			auth.Command(),
			backup.Command(),
			config.Command(),
			shell.EventsCommand(),
			shell.ExecCommand(),
			server.Command(),
			shell.Command(),
			sync.Command(),
			updater.Command(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
