package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/poiesic/quicksearch"
	"github.com/poiesic/quicksearch/config"
	"github.com/poiesic/quicksearch/core"
	"github.com/poiesic/quicksearch/fields"
	"github.com/poiesic/quicksearch/ingestion"
	"github.com/poiesic/quicksearch/search"
	"github.com/prometheus/common/expfmt"
	"github.com/urfave/cli/v2"
)

const configKey = "config"

// setup loads the configuration, applies global flag overrides and installs
// the default logger.
func setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("db") {
		cfg.DataDir = c.String("db")
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Logging.Format = c.String("log-format")
	}
	if c.Bool("metrics") {
		cfg.Metrics.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := cfg.Logging.NewLogger(c.App.ErrWriter)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

func loadedConfig(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[configKey].(*config.Config); ok {
		return cfg
	}
	return config.DefaultConfig()
}

// withDatabase opens the configured database for the duration of fn.
func withDatabase(c *cli.Context, fn func(db *quicksearch.Database) error, opts ...quicksearch.DatabaseOption) error {
	cfg := loadedConfig(c)
	opts = append([]quicksearch.DatabaseOption{quicksearch.WithLogger(slog.Default())}, opts...)
	db, err := quicksearch.NewDatabase(cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := fn(db); err != nil {
		return err
	}
	if cfg.Metrics.Enabled {
		return writeMetrics(c.App.ErrWriter, db)
	}
	return nil
}

func writeMetrics(w io.Writer, db *quicksearch.Database) error {
	gatherer := db.Gatherer()
	if gatherer == nil {
		return nil
	}
	families, err := gatherer.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// parseFields reads name or name^boost values.
func parseFields(values []string) ([]fields.Spec, error) {
	specs := make([]fields.Spec, 0, len(values))
	for _, value := range values {
		name, boostStr, boosted := strings.Cut(value, "^")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("invalid field %q", value)
		}
		boost := 1.0
		if boosted {
			var err error
			boost, err = strconv.ParseFloat(boostStr, 64)
			if err != nil || boost <= 0 {
				return nil, fmt.Errorf("invalid boost in field %q", value)
			}
		}
		specs = append(specs, fields.Parse(name, boost))
	}
	return specs, nil
}

// indexOptions builds the index-shaping part of a search request.
func indexOptions(c *cli.Context) (search.Options, error) {
	values := c.StringSlice("field")
	if len(values) == 0 {
		return search.Options{}, errors.New("at least one --field is required")
	}
	specs, err := parseFields(values)
	if err != nil {
		return search.Options{}, err
	}
	return search.Options{
		Fields:         specs,
		Language:       c.String("language"),
		HighResolution: c.Bool("high-resolution"),
	}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func loadCommand(c *cli.Context) error {
	ctx := context.Background()

	var in io.Reader = os.Stdin
	if path := c.String("file"); path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	return withDatabase(c, func(db *quicksearch.Database) error {
		tracker := NewProgressTracker(c.App.ErrWriter, "documents", c.Int("batch-size"))
		opts := []ingestion.Option{
			ingestion.WithBatchSize(c.Int("batch-size")),
			ingestion.WithOverwrite(c.Bool("overwrite")),
			ingestion.WithLogger(slog.Default()),
			ingestion.WithProgress(tracker.Update),
		}
		if warm := c.StringSlice("warm"); len(warm) > 0 {
			specs, err := parseFields(warm)
			if err != nil {
				return err
			}
			ix, err := search.ResolveIndex(search.Options{Fields: specs, Language: loadedConfig(c).Language})
			if err != nil {
				return err
			}
			opts = append(opts, ingestion.WithWarmIndexes(db.Engine(), ix.Definition()))
		}

		pipeline, err := ingestion.NewPipeline(db.Documents(), opts...)
		if err != nil {
			return err
		}
		defer pipeline.Release()

		tracker.Start(0)
		n, err := pipeline.Load(ctx, in)
		tracker.Finish()
		pipeline.Wait()
		if err != nil {
			return fmt.Errorf("load failed after %d documents: %w", n, err)
		}
		fmt.Fprintf(c.App.ErrWriter, "Loaded %d documents\n", n)
		return nil
	})
}

func searchCommand(c *cli.Context) error {
	opts, err := indexOptions(c)
	if err != nil {
		return err
	}
	stale, err := core.ParseStaleMode(c.String("stale"))
	if err != nil {
		return err
	}
	opts.Query = c.String("query")
	opts.MinShouldMatch = c.String("mm")
	opts.Limit = c.Int("limit")
	opts.Skip = c.Int("skip")
	opts.IncludeDocs = c.Bool("include-docs")
	opts.Highlighting = c.Bool("highlight")
	opts.HighlightPre = c.String("highlight-pre")
	opts.HighlightPost = c.String("highlight-post")
	opts.Stale = stale

	return withDatabase(c, func(db *quicksearch.Database) error {
		resp, err := db.Search(context.Background(), opts)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		return writeJSON(c.App.Writer, resp)
	})
}

func buildCommand(c *cli.Context) error {
	opts, err := indexOptions(c)
	if err != nil {
		return err
	}
	opts.Build = true

	tracker := NewProgressTracker(c.App.ErrWriter, "changes", c.Int("report-interval"))
	progress := quicksearch.WithObserver(&indexProgress{tracker: tracker})
	return withDatabase(c, func(db *quicksearch.Database) error {
		ctx := context.Background()
		seq, err := db.Documents().UpdateSeq(ctx)
		if err != nil {
			return err
		}
		tracker.Start(int(seq))
		resp, err := db.Search(ctx, opts)
		if err != nil {
			return fmt.Errorf("build failed: %w", err)
		}
		return writeJSON(c.App.Writer, resp)
	}, progress)
}

func destroyCommand(c *cli.Context) error {
	ctx := context.Background()
	if c.Bool("all") {
		return withDatabase(c, func(db *quicksearch.Database) error {
			if err := db.Destroy(ctx); err != nil {
				return fmt.Errorf("destroy failed: %w", err)
			}
			return writeJSON(c.App.Writer, &search.Response{OK: true})
		})
	}

	opts, err := indexOptions(c)
	if err != nil {
		return err
	}
	opts.Destroy = true
	return withDatabase(c, func(db *quicksearch.Database) error {
		resp, err := db.Search(ctx, opts)
		if err != nil {
			return fmt.Errorf("destroy failed: %w", err)
		}
		return writeJSON(c.App.Writer, resp)
	})
}

type changeLine struct {
	Seq     uint64         `json:"seq"`
	ID      string         `json:"id"`
	Changes []string       `json:"changes"`
	Deleted bool           `json:"deleted,omitempty"`
	Doc     *core.Document `json:"doc,omitempty"`
}

func changesCommand(c *cli.Context) error {
	return withDatabase(c, func(db *quicksearch.Database) error {
		changes, err := db.Documents().Changes(context.Background(), c.Uint64("since"), c.Int("limit"))
		if err != nil {
			return fmt.Errorf("failed to read changes: %w", err)
		}
		enc := json.NewEncoder(c.App.Writer)
		for _, change := range changes {
			line := changeLine{Seq: change.Seq, ID: change.ID, Changes: change.Changes, Deleted: change.Deleted}
			if c.Bool("include-docs") && !change.Deleted {
				line.Doc = change.Doc
			}
			if err := enc.Encode(line); err != nil {
				return err
			}
		}
		return nil
	})
}
