// Command imagejob submits image jobs to the remote service and waits for
// their results.
//
//	imagejob tryon -person me.jpg -garment shirt.png
//	imagejob hairstyle -photo me.jpg -description "short bob"
//	imagejob figurine -photo me.jpg -style chibi
//	imagejob styles
//	imagejob batch -manifest jobs.json -zip results.zip
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"imagejob/internal/imagegen"
	"imagejob/internal/infra"
	"imagejob/internal/jobs"
	"imagejob/internal/providers/remote"
	"imagejob/internal/storage"
)

const usage = `usage: imagejob <command> [flags]

commands:
  tryon      dress a person in a garment
  hairstyle  restyle the hair of a portrait
  figurine   turn a photo into a figurine
  styles     list figurine styles
  batch      run the jobs of a manifest concurrently
`

// cli carries what every subcommand needs.
type cli struct {
	cfg       *infra.Config
	logger    *infra.Logger
	transport jobs.Transport
	styles    *imagegen.StyleCatalog
	store     storage.Store
	stdout    io.Writer
	stderr    io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cfg, err := infra.LoadConfig()
	if err == nil {
		err = imagegen.CheckRoutes(cfg)
	}
	if err != nil {
		fmt.Fprintf(stderr, "imagejob: %v\n", err)
		return 1
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)
	client, err := remote.NewClient(remote.Options{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		Logger:         &logger,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		fmt.Fprintf(stderr, "imagejob: %v\n", err)
		return 1
	}
	store, err := storage.Open(ctx, cfg, &logger)
	if err != nil {
		fmt.Fprintf(stderr, "imagejob: %v\n", err)
		return 1
	}
	c := &cli{
		cfg:       cfg,
		logger:    &logger,
		transport: client,
		styles:    imagegen.NewStyleCatalog(client, &logger),
		store:     store,
		stdout:    stdout,
		stderr:    stderr,
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "tryon", "try-on":
		err = c.tryOn(ctx, rest)
	case "hairstyle":
		err = c.hairstyle(ctx, rest)
	case "figurine":
		err = c.figurine(ctx, rest)
	case "styles":
		err = c.listStyles(ctx)
	case "batch":
		err = c.batch(ctx, rest)
	default:
		fmt.Fprintf(stderr, "imagejob: unknown command %q\n\n%s", cmd, usage)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(stderr, "imagejob: cancelled")
		return 130
	default:
		fmt.Fprintf(stderr, "imagejob: %v\n", err)
		return 1
	}
}
