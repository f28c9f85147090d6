package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"imagejob/internal/domain"
	"imagejob/internal/imagegen"
	"imagejob/pkg/zip"
)

// manifestJob is one entry of a batch manifest, written as JSON or YAML.
// Image paths are relative to the manifest file.
type manifestJob struct {
	Kind        string `json:"kind" yaml:"kind"`
	Person      string `json:"person" yaml:"person"`
	Garment     string `json:"garment" yaml:"garment"`
	Photo       string `json:"photo" yaml:"photo"`
	Description string `json:"description" yaml:"description"`
	Style       string `json:"style" yaml:"style"`
}

type batchResult struct {
	key string
	err error
}

func (c *cli) batch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	manifestPath := fs.String("manifest", "", "JSON or YAML list of jobs")
	zipPath := fs.String("zip", "", "write all results into this zip archive")
	concurrency := fs.Int("concurrency", 3, "jobs running at the same time")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *manifestPath == "" {
		return fmt.Errorf("-manifest is required")
	}
	manifest, err := loadManifest(*manifestPath)
	if err != nil {
		return err
	}

	results := make([]batchResult, len(manifest))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(*concurrency, 1))
	for i, job := range manifest {
		g.Go(func() error {
			kind, req, err := job.request(filepath.Dir(*manifestPath))
			if err != nil {
				results[i] = batchResult{err: err}
				return nil
			}
			var out bytes.Buffer
			key, err := c.runJob(gctx, kind, req, &out)
			results[i] = batchResult{key: key, err: err}
			mu.Lock()
			_, _ = c.stdout.Write(out.Bytes())
			mu.Unlock()
			// Only cancellation stops the batch; job failures are reported below.
			if gctx.Err() != nil {
				return gctx.Err()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var entries []zip.Entry
	failed := 0
	for i, res := range results {
		if res.err != nil {
			failed++
			fmt.Fprintf(c.stdout, "job %d (%s): failed: %v\n", i+1, manifest[i].Kind, res.err)
			continue
		}
		fmt.Fprintf(c.stdout, "job %d (%s): %s\n", i+1, manifest[i].Kind, res.key)
		if *zipPath != "" {
			data, err := c.store.Read(ctx, res.key)
			if err != nil {
				return err
			}
			entries = append(entries, zip.Entry{Filename: fmt.Sprintf("%02d_%s", i+1, path.Base(res.key)), Data: data})
		}
	}
	if *zipPath != "" && len(entries) > 0 {
		archive, err := zip.Archive(entries)
		if err != nil {
			return err
		}
		if err := os.WriteFile(*zipPath, archive, 0o644); err != nil {
			return fmt.Errorf("write archive: %w", err)
		}
		fmt.Fprintf(c.stdout, "wrote %d results to %s\n", len(entries), *zipPath)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", failed, len(manifest))
	}
	return nil
}

func loadManifest(p string) ([]manifestJob, error) {
	raw, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var jobs []manifestJob
	switch strings.ToLower(filepath.Ext(p)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &jobs)
	default:
		err = json.Unmarshal(raw, &jobs)
	}
	if err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("manifest %s has no jobs", p)
	}
	return jobs, nil
}

func (j manifestJob) request(dir string) (domain.JobKind, imagegen.Request, error) {
	kind, err := imagegen.Lookup(j.Kind)
	if err != nil {
		return "", imagegen.Request{}, err
	}
	req := imagegen.Request{Description: j.Description, Style: j.Style}
	load := func(rel string, dst *[]byte) error {
		if strings.TrimSpace(rel) == "" {
			return nil
		}
		if !filepath.IsAbs(rel) {
			rel = filepath.Join(dir, rel)
		}
		data, err := os.ReadFile(rel)
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		*dst = data
		return nil
	}
	for _, f := range []struct {
		rel string
		dst *[]byte
	}{{j.Person, &req.Person}, {j.Garment, &req.Garment}, {j.Photo, &req.Photo}} {
		if err := load(f.rel, f.dst); err != nil {
			return "", imagegen.Request{}, err
		}
	}
	return kind.Kind, req, nil
}
