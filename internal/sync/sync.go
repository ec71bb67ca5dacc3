package sync

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/cshum/megacmd/internal/shell"
)

func Command() *cli.Command {
	return &cli.Command{
		Name:      "sync",
		Usage:     "List, add or control the syncs of the server",
		ArgsUsage: "[localpath remotepath | ID|localpath]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "delete",
				Aliases: []string{"d"},
				Usage:   "Remove the sync",
			},
			&cli.BoolFlag{
				Name:    "pause",
				Aliases: []string{"p"},
				Usage:   "Pause the sync",
			},
			&cli.BoolFlag{
				Name:    "enable",
				Aliases: []string{"e"},
				Usage:   "Resume a paused or disabled sync",
			},
			&cli.BoolFlag{
				Name:  "show-handles",
				Usage: "Show remote folder handles",
			},
		},
		Action: syncAction,
	}
}

// Words builds the sync petition. Only one of delete, pause and enable may
// be given and they need the sync to act on.
func Words(args []string, del, pause, enable, handles bool) ([]string, error) {
	words := []string{"sync"}
	n := 0
	for _, set := range []struct {
		on   bool
		flag string
	}{{del, "-d"}, {pause, "-p"}, {enable, "-e"}} {
		if set.on {
			n++
			words = append(words, set.flag)
		}
	}
	if n > 1 {
		return nil, fmt.Errorf("--delete, --pause and --enable are exclusive")
	}
	if n == 1 && len(args) != 1 {
		return nil, fmt.Errorf("please provide the ID or local path of the sync")
	}
	if len(args) > 2 {
		return nil, fmt.Errorf("too many arguments")
	}
	if handles {
		words = append(words, "--show-handles")
	}
	return append(words, args...), nil
}

func syncAction(c *cli.Context) error {
	words, err := Words(c.Args().Slice(), c.Bool("delete"), c.Bool("pause"), c.Bool("enable"), c.Bool("show-handles"))
	if err != nil {
		return err
	}
	return shell.Execute(c.Context, words...)
}
