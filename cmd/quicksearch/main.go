// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "quicksearch",
		Usage: "Full-text search over a local document collection",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Set logging format (text, json)",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "metrics",
				Usage: "Print Prometheus metrics to stderr when the command finishes",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "load",
				Usage:  "Load JSON documents into the collection",
				Action: loadCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "JSON array or newline-delimited JSON file, - for stdin",
						Value:   "-",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of documents written per transaction",
						Value: 500,
					},
					&cli.BoolFlag{
						Name:  "overwrite",
						Usage: "Replace existing documents with the same ID",
					},
					&cli.StringSliceFlag{
						Name:  "warm",
						Usage: "Fields of a search index to keep warm while loading (repeatable)",
					},
				},
			},
			{
				Name:   "search",
				Usage:  "Search the collection",
				Action: searchCommand,
				Flags: append(indexFlags(),
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Usage:    "Query text",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "mm",
						Usage: "Minimum share of query terms a document must match, e.g. 50%",
						Value: "100%",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results, 0 for all",
						Value: 10,
					},
					&cli.IntFlag{
						Name:  "skip",
						Usage: "Number of results to skip",
					},
					&cli.BoolFlag{
						Name:  "include-docs",
						Usage: "Include matching documents",
					},
					&cli.BoolFlag{
						Name:  "highlight",
						Usage: "Highlight matched terms",
					},
					&cli.StringFlag{
						Name:  "highlight-pre",
						Usage: "Marker placed before highlighted terms",
						Value: "<strong>",
					},
					&cli.StringFlag{
						Name:  "highlight-post",
						Usage: "Marker placed after highlighted terms",
						Value: "</strong>",
					},
					&cli.StringFlag{
						Name:  "stale",
						Usage: "Read without updating the index (ok, update_after)",
					},
				),
			},
			{
				Name:   "build",
				Usage:  "Build or update a search index",
				Action: buildCommand,
				Flags: append(indexFlags(),
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N changes",
						Value: 100,
					},
				),
			},
			{
				Name:   "destroy",
				Usage:  "Destroy a search index, or the whole collection with --all",
				Action: destroyCommand,
				Flags: append(indexFlags(),
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Destroy every document and index",
					},
				),
			},
			{
				Name:   "changes",
				Usage:  "Print the change feed as newline-delimited JSON",
				Action: changesCommand,
				Flags: []cli.Flag{
					&cli.Uint64Flag{
						Name:  "since",
						Usage: "Only changes after this sequence",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of changes, 0 for all",
					},
					&cli.BoolFlag{
						Name:  "include-docs",
						Usage: "Include document bodies",
					},
				},
			},
		},
	}
}

// indexFlags identify a search index.
func indexFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "field",
			Aliases: []string{"f"},
			Usage:   "Field to index, optionally boosted as name^boost (repeatable)",
		},
		&cli.StringFlag{
			Name:  "language",
			Usage: "Analyzer language",
		},
		&cli.BoolFlag{
			Name:  "high-resolution",
			Usage: "Index word prefixes for partial matches",
		},
	}
}
