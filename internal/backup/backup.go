package backup

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/cshum/megacmd/internal/shell"
)

func Command() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Manage the scheduled backups of the server",
		Subcommands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Back up a local folder into a remote one on a schedule",
				ArgsUsage: "<localpath> <remotepath>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "period",
						Usage:    "Time between backups, e.g. \"1d\", or a cron expression",
						Required: true,
					},
					&cli.IntFlag{
						Name:     "num-backups",
						Usage:    "How many backups to keep",
						Required: true,
					},
				},
				Action: createBackup,
			},
			{
				Name:      "ls",
				Usage:     "List the configured backups",
				ArgsUsage: "[TAG|localpath]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "all",
						Aliases: []string{"a"},
						Usage:   "Show the schedule and history of each backup",
					},
				},
				Action: listBackups,
			},
			{
				Name:      "set",
				Usage:     "Change the schedule of a backup",
				ArgsUsage: "<TAG|localpath>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "period",
						Usage: "New time between backups",
					},
					&cli.IntFlag{
						Name:  "num-backups",
						Usage: "New number of backups to keep",
					},
				},
				Action: setBackup,
			},
			{
				Name:      "abort",
				Usage:     "Abort the backup that is running",
				ArgsUsage: "<TAG|localpath>",
				Action:    targetAction("-a"),
			},
			{
				Name:      "rm",
				Usage:     "Remove a backup",
				ArgsUsage: "<TAG|localpath>",
				Action:    targetAction("-d"),
			},
		},
	}
}

// CreateWords builds the petition that establishes a backup.
func CreateWords(args []string, period string, num int) ([]string, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("please provide the local and remote paths")
	}
	if num <= 0 {
		return nil, fmt.Errorf("--num-backups must be positive")
	}
	return []string{"backup", args[0], args[1], "--period=" + period, fmt.Sprintf("--num-backups=%d", num)}, nil
}

func createBackup(c *cli.Context) error {
	words, err := CreateWords(c.Args().Slice(), c.String("period"), c.Int("num-backups"))
	if err != nil {
		return err
	}
	return shell.Execute(c.Context, words...)
}

func listBackups(c *cli.Context) error {
	words := []string{"backup"}
	if c.Bool("all") {
		words = append(words, "-l", "-h")
	}
	return shell.Execute(c.Context, append(words, c.Args().Slice()...)...)
}

// SetWords builds the petition that changes the schedule of a backup.
func SetWords(args []string, period string, num int) ([]string, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("please provide the TAG or local path of the backup")
	}
	if period == "" && num == 0 {
		return nil, fmt.Errorf("nothing to change: pass --period or --num-backups")
	}
	words := []string{"backup"}
	if period != "" {
		words = append(words, "--period="+period)
	}
	if num != 0 {
		words = append(words, fmt.Sprintf("--num-backups=%d", num))
	}
	return append(words, args[0]), nil
}

func setBackup(c *cli.Context) error {
	words, err := SetWords(c.Args().Slice(), c.String("period"), c.Int("num-backups"))
	if err != nil {
		return err
	}
	return shell.Execute(c.Context, words...)
}

func targetAction(flag string) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() != 1 {
			return fmt.Errorf("please provide the TAG or local path of the backup")
		}
		return shell.Execute(c.Context, "backup", flag, c.Args().First())
	}
}
