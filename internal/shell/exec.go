package shell

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/cshum/megacmd/internal/cmdline"
	"github.com/cshum/megacmd/internal/comms"
	"github.com/cshum/megacmd/internal/config"
)

// ExitError carries the exit code of a petition. The process exits with its
// absolute value.
func ExitError(code int) error {
	if code == cmdline.ExitOK {
		return nil
	}
	if code < 0 {
		code = -code
	}
	return cli.Exit("", code)
}

// Execute runs one petition made of words on the server, starting it if
// needed, and returns the resulting error for urfave/cli.
func Execute(ctx context.Context, words ...string) error {
	client, err := Connect(ctx)
	if err != nil {
		return err
	}
	t := NewTerminal(os.Stdin, os.Stderr)
	code, err := client.Execute(ctx, JoinLine(words), os.Stdout, os.Stderr, t)
	if err != nil {
		return err
	}
	return ExitError(code)
}

func ExecCommand() *cli.Command {
	return &cli.Command{
		Name:      "exec",
		Usage:     "Run a single MEGAcmd command and exit with its code",
		ArgsUsage: "<command> [args...]",
		// every flag belongs to the MEGAcmd command
		SkipFlagParsing: true,
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return fmt.Errorf("please provide a command")
			}
			return Execute(c.Context, c.Args().Slice()...)
		},
	}
}

func EventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Follow the state messages mirrored by the server as server sent events",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Events address, defaults to the events_addr setting",
			},
		},
		Action: func(c *cli.Context) error {
			addr := c.String("addr")
			if addr == "" {
				addr = config.GetConfig().GetString("events_addr", "")
			}
			if addr == "" {
				return fmt.Errorf("no events address: pass --addr or set events_addr")
			}
			return comms.SubscribeEvents(c.Context, addr, func(msg string) {
				m := comms.ParseStateMessage(msg)
				if m.Kind == "ack" {
					return
				}
				if len(m.Args) == 0 {
					fmt.Println(m.Kind)
					return
				}
				fmt.Printf("%s: %v\n", m.Kind, m.Args)
			})
		},
	}
}
