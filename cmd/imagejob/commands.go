package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"imagejob/internal/domain"
	"imagejob/internal/imagegen"
	"imagejob/internal/jobs"
	"imagejob/internal/storage"
)

func (c *cli) tryOn(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tryon", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	person := fs.String("person", "", "photo of the person")
	garment := fs.String("garment", "", "image of the garment")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := readRequest(map[string]*string{"person": person, "garment": garment})
	if err != nil {
		return err
	}
	_, err = c.runJob(ctx, domain.JobKindTryOn, req, c.stdout)
	return err
}

func (c *cli) hairstyle(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("hairstyle", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	photo := fs.String("photo", "", "portrait to restyle")
	description := fs.String("description", "", "the hairstyle to apply")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := readRequest(map[string]*string{"photo": photo})
	if err != nil {
		return err
	}
	req.Description = *description
	_, err = c.runJob(ctx, domain.JobKindHairstyle, req, c.stdout)
	return err
}

func (c *cli) figurine(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("figurine", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	photo := fs.String("photo", "", "photo to turn into a figurine")
	style := fs.String("style", imagegen.DefaultStyleKeys[0], "figurine style (see the styles command)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := readRequest(map[string]*string{"photo": photo})
	if err != nil {
		return err
	}
	req.Style = *style
	_, err = c.runJob(ctx, domain.JobKindFigurine, req, c.stdout)
	return err
}

func (c *cli) listStyles(ctx context.Context) error {
	styles, err := c.styles.List(ctx)
	if err != nil {
		return err
	}
	for _, s := range styles {
		fmt.Fprintf(c.stdout, "%-16s %s\n", s.Key, s.Title)
	}
	return nil
}

// runJob drives one job to its end, printing progress to out, and stores the
// artifact. It returns the storage key.
func (c *cli) runJob(ctx context.Context, kind domain.JobKind, req imagegen.Request, out io.Writer) (string, error) {
	k, err := imagegen.Lookup(string(kind))
	if err != nil {
		return "", err
	}
	payload, err := imagegen.BuildPayload(ctx, c.styles, k.Kind, req, c.cfg.MaxUploadDimension)
	if err != nil {
		return "", err
	}
	controller := jobs.NewController(c.transport, k.Configure(c.cfg).Spec, jobs.Options{
		PollInterval:    c.cfg.PollInterval,
		PollMaxAttempts: c.cfg.PollMaxAttempts,
		Logger:          c.logger,
	})

	artifact, err := jobs.Await(ctx, controller.Run(ctx, payload), func(ev domain.Event) {
		fmt.Fprintf(out, "[%s] %s\n", kind, ev.Message)
	})
	if err != nil {
		return "", err
	}
	key, err := storage.SaveArtifact(ctx, c.store, kind, artifact)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(out, "[%s] saved %dx%d %s to %s\n", kind, artifact.Width, artifact.Height, artifact.Format, c.store.Location(key))
	return key, nil
}

// readRequest loads every named image flag; all of them are required.
func readRequest(files map[string]*string) (imagegen.Request, error) {
	var req imagegen.Request
	for name, path := range files {
		if *path == "" {
			return req, fmt.Errorf("-%s is required", name)
		}
		data, err := os.ReadFile(*path)
		if err != nil {
			return req, fmt.Errorf("read %s image: %w", name, err)
		}
		switch name {
		case "person":
			req.Person = data
		case "garment":
			req.Garment = data
		case "photo":
			req.Photo = data
		}
	}
	return req, nil
}
