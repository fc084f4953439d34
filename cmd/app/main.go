package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"custody_go/internal/app"
	"custody_go/internal/infra"
	"custody_go/internal/infra/storage"

	"github.com/urfave/cli"
)

// set by the linker: go build -ldflags "-X main.version=M.N" ./...
var version = "dev"

func main() {
	a := cli.NewApp()
	a.Name = "custody"
	a.Usage = "asset custody and exchange engine"
	a.Version = version
	a.Writer = os.Stdout
	a.ErrWriter = os.Stderr
	a.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Value: "configs/config.yaml",
			Usage: " configuration `FILE`",
		},
	}
	a.Commands = []cli.Command{
		{
			Name:  "serve",
			Usage: "recover state and serve the HTTP API",
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  "allow-unsigned",
					Usage: " accept unsigned commands when auth.keys is empty (development only)",
				},
			},
			Action: runServe,
		},
		{
			Name:  "dump",
			Usage: "recover state and write it as JSON",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "out, o",
					Value: "state_dump.json",
					Usage: " output `FILE`",
				},
			},
			Action: runDump,
		},
		{
			Name:   "compact",
			Usage:  "delete journal entries covered by the stored checkpoint",
			Action: runCompact,
		},
	}
	a.Action = runServe

	if err := a.Run(os.Args); err != nil {
		slog.Error("❌ Command failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func runServe(c *cli.Context) error {
	// Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootstrap := app.NewBootstrap(c.GlobalString("config"))
	defer bootstrap.Close()
	if err := bootstrap.Initialize(ctx); err != nil {
		return fmt.Errorf("bootstrapping failed: %w", err)
	}
	if c.Bool("allow-unsigned") {
		bootstrap.Config.Auth.AllowUnsigned = true
	}

	slog.InfoContext(ctx, "✨ Custody engine fully operational. Press Ctrl+C to exit.")
	return bootstrap.Serve(ctx)
}

func runDump(c *cli.Context) error {
	bootstrap := app.NewBootstrap(c.GlobalString("config"))
	if err := bootstrap.Initialize(context.Background()); err != nil {
		return err
	}
	defer bootstrap.Storage.Close()

	out := c.String("out")
	bootstrap.Sequencer.DumpState(out)
	fmt.Fprintf(c.App.Writer, "state at seq %d written to %s\n", bootstrap.Sequencer.NextSeq()-1, out)
	return nil
}

func runCompact(c *cli.Context) error {
	cfg, err := infra.LoadConfig(c.GlobalString("config"))
	if err != nil {
		return err
	}
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.CompactJournal(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "removed %d journal entries\n", n)
	return nil
}
