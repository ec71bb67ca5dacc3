package auth

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/cshum/megacmd/internal/shell"
)

func Command() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the MEGA session of the server",
		Subcommands: []*cli.Command{
			{
				Name:      "login",
				Usage:     "Log into an account, an exported folder or a saved session",
				ArgsUsage: "<email> [password] | <folderlink#key> | <session>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "auth-code",
						Usage: "Two factor authentication code",
					},
				},
				Action: login,
			},
			{
				Name:  "logout",
				Usage: "Log out, optionally keeping the session for a later login",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "keep-session",
						Usage: "Keep the current session",
					},
				},
				Action: logout,
			},
			{
				Name:  "whoami",
				Usage: "Show the account the server is logged into",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "long",
						Aliases: []string{"l"},
						Usage:   "Show account details as well",
					},
				},
				Action: whoami,
			},
		},
	}
}

// LoginWords builds the login petition out of the command arguments.
func LoginWords(args []string, authCode string) ([]string, error) {
	if len(args) == 0 || len(args) > 2 {
		return nil, fmt.Errorf("please provide an email, a folder link or a session")
	}
	words := []string{"login"}
	if authCode != "" {
		words = append(words, "--auth-code="+authCode)
	}
	return append(words, args...), nil
}

func login(c *cli.Context) error {
	words, err := LoginWords(c.Args().Slice(), c.String("auth-code"))
	if err != nil {
		return err
	}
	return shell.Execute(c.Context, words...)
}

func logout(c *cli.Context) error {
	words := []string{"logout"}
	if c.Bool("keep-session") {
		words = append(words, "--keep-session")
	}
	return shell.Execute(c.Context, words...)
}

func whoami(c *cli.Context) error {
	words := []string{"whoami"}
	if c.Bool("long") {
		words = append(words, "-l")
	}
	return shell.Execute(c.Context, words...)
}
