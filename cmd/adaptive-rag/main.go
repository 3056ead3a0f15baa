// Command adaptive-rag answers questions over a local document index with
// web search fallback, as a CLI, an HTTP API or an MCP server.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/sweetpotato0/adaptive-rag/config"
	"github.com/sweetpotato0/adaptive-rag/pkg/logging"
	"github.com/sweetpotato0/adaptive-rag/pkg/telemetry"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCLI().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newCLI() *cli.App {
	ingestFlag := &cli.StringSliceFlag{
		Name:    "docs",
		Aliases: []string{"d"},
		Usage:   "Files or directories to index before serving (.txt, .md, .html)",
		EnvVars: []string{config.Prefix + "DOCS"},
	}
	threadFlag := &cli.StringFlag{
		Name:    "thread",
		Aliases: []string{"t"},
		Usage:   "Conversation thread id; a new one is generated when empty",
	}

	return &cli.App{
		Name:    "adaptive-rag",
		Usage:   "Adaptive retrieval-augmented question answering",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{config.Prefix + "LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "env-file",
				Usage:   "Environment file loaded before configuration; missing files are skipped",
				Value:   ".env",
				EnvVars: []string{config.Prefix + "ENV_FILE"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (json, text)",
				Value:   "text",
				EnvVars: []string{config.Prefix + "LOG_FORMAT"},
			},
		},
		Before: before,
		Commands: []*cli.Command{
			{
				Name:      "ask",
				Usage:     "Answer a single question",
				ArgsUsage: "<question>",
				Flags:     []cli.Flag{ingestFlag, threadFlag},
				Action:    askCommand,
			},
			{
				Name:   "chat",
				Usage:  "Interactive session (/clear, /good, /bad, /history, /quit)",
				Flags:  []cli.Flag{ingestFlag, threadFlag},
				Action: chatCommand,
			},
			{
				Name:      "ingest",
				Usage:     "Index documents into the configured vector store",
				ArgsUsage: "<path>...",
				Action:    ingestCommand,
			},
			{
				Name:  "serve",
				Usage: "Serve the HTTP API",
				Flags: []cli.Flag{
					ingestFlag,
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address (defaults to " + config.Prefix + "HTTP_ADDR)",
					},
				},
				Action: serveCommand,
			},
			{
				Name:  "mcp",
				Usage: "Serve the MCP tools over stdio or streamable HTTP",
				Flags: []cli.Flag{
					ingestFlag,
					&cli.StringFlag{
						Name:  "http",
						Usage: "Listen address for streamable HTTP; stdio when empty",
					},
				},
				Action: mcpCommand,
			},
		},
	}
}

func before(c *cli.Context) error {
	if err := config.LoadDotEnv(c.String("env-file")); err != nil {
		return err
	}
	return setupLogger(c)
}

func setupLogger(c *cli.Context) error {
	logging.SetLogger(logging.New(logging.ParseLevel(c.String("log-level")), c.String("log-format")))
	return nil
}

// bootstrap loads configuration, starts telemetry and wires the app. The
// returned cleanup flushes traces and closes every backend.
func bootstrap(c *cli.Context) (*app, func(), error) {
	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	shutdown, err := telemetry.Init(c.Context, telemetry.Config{
		ServiceName:    "adaptive-rag",
		ServiceVersion: version,
		Environment:    cfg.Environment,
		Disable:        !cfg.Telemetry,
		SampleRatio:    cfg.TraceSampleRatio,
	})
	if err != nil {
		return nil, nil, err
	}

	a, err := buildApp(c.Context, cfg)
	if err != nil {
		_ = shutdown(context.Background())
		return nil, nil, err
	}
	cleanup := func() {
		if err := a.Close(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
		_ = shutdown(context.Background())
	}

	if docs := c.StringSlice("docs"); len(docs) > 0 {
		if _, err := a.ingest(c.Context, docs); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("ingest: %w", err)
		}
	}
	return a, cleanup, nil
}
