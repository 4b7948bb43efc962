package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "gazctl: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	queryFlags := []cli.Flag{
		&cli.StringFlag{
			Name:     "q",
			Aliases:  []string{"term"},
			Usage:    "Place name to look up",
			Required: true,
		},
		&cli.IntFlag{
			Name:  "rows",
			Usage: "Maximum candidates to return (0 uses the server default)",
		},
	}
	ccFlag := &cli.StringFlag{
		Name:  "cc",
		Usage: "ISO country code to restrict the global gazetteer to",
	}

	return &cli.App{
		Name:  "gazctl",
		Usage: "Query the gazetteer lookup service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "RPC address of a running lookup service",
				Value:   "localhost:9000",
				EnvVars: []string{"GZ_RPC_ADDR"},
			},
			&cli.BoolFlag{
				Name:  "local",
				Usage: "Open the gazetteers from --config in-process instead of dialing --addr",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file used with --local",
				Value:   "configs/development.yaml",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level for --local (debug, info, warn, error)",
				Value: "warn",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Per-command deadline",
				Value: 10 * time.Second,
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "lookup",
				Usage:  "Search both gazetteers and merge the candidates",
				Flags:  append([]cli.Flag{ccFlag}, queryFlags...),
				Action: lookupCommand(opFind),
			},
			{
				Name:   "global",
				Usage:  "Search the worldwide gazetteer",
				Flags:  append([]cli.Flag{ccFlag}, queryFlags...),
				Action: lookupCommand(opGlobal),
			},
			{
				Name:   "national",
				Usage:  "Search the national gazetteer",
				Flags:  queryFlags,
				Action: lookupCommand(opNational),
			},
			{
				Name:   "invalidate",
				Usage:  "Drop every cached lookup result",
				Action: invalidateCommand,
			},
			{
				Name:   "loadtest",
				Usage:  "Drive GET /api/v1/lookup with concurrent workers and report latency",
				Action: loadtestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "url", Usage: "Base URL of the HTTP API", Value: "http://localhost:8080"},
					&cli.IntFlag{Name: "concurrency", Usage: "Concurrent workers", Value: 10},
					&cli.DurationFlag{Name: "duration", Usage: "Test duration", Value: 30 * time.Second},
					&cli.IntFlag{Name: "rows", Usage: "Rows per lookup (0 uses the server default)"},
					&cli.StringSliceFlag{Name: "place", Usage: "Place name to query; repeat to add more"},
				},
			},
		},
	}
}
