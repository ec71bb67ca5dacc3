// Package server runs the long lived process that owns the SDK session and
// executes the petitions sent by the shell and exec clients.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/cshum/megacmd/internal/comms"
	"github.com/cshum/megacmd/internal/config"
	"github.com/cshum/megacmd/internal/executer"
	"github.com/cshum/megacmd/internal/logger"
	"github.com/cshum/megacmd/internal/provider"
	"github.com/cshum/megacmd/internal/syncissues"
	"github.com/cshum/megacmd/internal/transfers"
	"github.com/cshum/megacmd/internal/updater"
)

const updatedMessage = "MEGAcmd has been updated to version %s. Use \"version -c\" to see the changes."

type Options struct {
	Dirs        config.Dirs
	Client      *config.Config
	Version     string
	Addr        string
	EventsAddr  string
	LogToStderr bool
	Debug       bool
}

// Run serves until ctx is done or a client sends "exit".
func Run(ctx context.Context, o Options) error {
	if err := o.Dirs.Create(); err != nil {
		return err
	}
	loggers, err := logger.NewWithFile(o.Dirs.ConfigDir, o.LogToStderr)
	if err != nil {
		return err
	}
	defer loggers.Close()
	if o.Debug {
		loggers.SetCmdLevel(logrus.DebugLevel)
	}
	log := loggers.Cmd.WithField("component", "server")

	cfg := config.NewManager(o.Dirs, loggers.Cmd)
	if err := cfg.LockExecution(); err != nil {
		if errors.Is(err, config.ErrAlreadyRunning) {
			return fmt.Errorf("another MEGAcmd server is running on %s", o.Dirs.ConfigDir)
		}
		return err
	}
	defer cfg.UnlockExecution()
	if err := cfg.LoadConfiguration(o.Version); err != nil {
		return err
	}

	api, err := provider.GetProvider(o.Client.GetString("provider", "local"), o.Client, loggers.API)
	if err != nil {
		return err
	}
	if c, ok := api.(io.Closer); ok {
		defer c.Close()
	}

	var srv *comms.Server
	downloads := transfers.NewDownloadsManager(loggers.Cmd.WithField("component", "transfers"))
	issues := syncissues.NewManager(loggers.Cmd.WithField("component", "syncissues"), func(msg string) {
		if srv != nil {
			srv.Broadcast(comms.InfoMessage(msg))
		}
	}, cfg.GetBool(syncissues.WarningProperty, true))
	defer issues.Stop()

	ex := executer.New(executer.Options{
		API:       api,
		Config:    cfg,
		Loggers:   loggers,
		Downloads: downloads,
		Issues:    issues,
		Version:   o.Version,
	})
	defer ex.Close()

	srv = comms.NewServer(comms.HandlerFunc(func(ctx context.Context, p *comms.Petition) int {
		return ex.Execute(ctx, p.Line, p.ClientID, p)
	}), loggers.Cmd.WithField("component", "comms"))
	ex.SetNotifier(srv)

	updated := cfg.HasBeenUpdated()
	srv.OnNewStateListener(func(clientID int) {
		srv.SendToClient(clientID, comms.PromptMessage(ex.Prompt()))
		if updated {
			srv.SendToClient(clientID, comms.InfoMessage(fmt.Sprintf(updatedMessage, o.Version)))
		}
	})

	socket := o.Dirs.SocketPath()
	if err := srv.ListenUnix(socket); err != nil {
		return err
	}
	log.WithField("socket", socket).Info("Listening for petitions")
	if o.Addr != "" {
		addr, err := srv.ListenWebsocket(o.Addr)
		if err != nil {
			srv.Close()
			return err
		}
		log.WithField("addr", addr.String()).Info("Listening for websocket petitions")
	}
	if o.EventsAddr != "" {
		addr, err := srv.ListenEvents(o.EventsAddr)
		if err != nil {
			srv.Close()
			return err
		}
		log.WithField("addr", addr.String()).Info("Serving events")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go srv.KeepAlive(ctx)

	if err := ex.ResumeSession(ctx); err != nil {
		log.Warnf("Session not resumed: %v", err)
	}
	if cfg.GetBool(updater.AutoUpdateProperty, false) {
		go checkForUpdates(ctx, srv, o, log)
	}

	select {
	case <-ctx.Done():
		log.Info("Signal received, shutting down")
	case <-ex.Done():
		log.Info("Exit requested, shutting down")
	}
	if err := srv.Close(); err != nil {
		log.Errorf("Could not close server: %v", err)
	}
	if err := downloads.Shutdown(false); err != nil {
		log.Errorf("Could not close transfers database: %v", err)
	}
	return nil
}

func checkForUpdates(ctx context.Context, srv *comms.Server, o Options, log logrus.FieldLogger) {
	r, err := updater.Check(ctx, o.Client.GetString("update_url", updater.DefaultManifestURL), o.Version)
	if err != nil {
		log.Debugf("Update check failed: %v", err)
		return
	}
	if r.Newer {
		srv.Broadcast(comms.InfoMessage(r.Message()))
	}
}

// OptionsFromContext builds the server options out of the global client
// config, overridden by the command flags.
func OptionsFromContext(c *cli.Context) Options {
	cfg := config.GetConfig()
	o := Options{
		Dirs:        config.PlatformDirs(),
		Client:      cfg,
		Version:     config.Version,
		Addr:        cfg.GetString("port", ""),
		EventsAddr:  cfg.GetString("events_addr", ""),
		LogToStderr: c.Bool("log-to-stderr"),
		Debug:       c.Bool("debug"),
	}
	if c.IsSet("port") {
		o.Addr = c.String("port")
	}
	if c.IsSet("events-addr") {
		o.EventsAddr = c.String("events-addr")
	}
	return o
}

func Command() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Run the MEGAcmd server in the foreground",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "port",
				Usage: "Also accept petitions over websocket on this address, e.g. 127.0.0.1:12300",
			},
			&cli.StringFlag{
				Name:  "events-addr",
				Usage: "Mirror state messages as server sent events on this address",
			},
			&cli.BoolFlag{
				Name:  "log-to-stderr",
				Usage: "Write the log to stderr as well as to the log file",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Start with the MEGAcmd log level at DEBUG",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return Run(ctx, OptionsFromContext(c))
		},
	}
}
