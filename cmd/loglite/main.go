// Package main starts loglite: a lightweight log-aggregation service that
// ingests structured and raw log lines over HTTP and by tailing local
// files, persists them to PostgreSQL, mirrors a searchable projection
// into a full-text index, and evicts expired data from both on a timer.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/loglite/loglite/internal/api"
	"github.com/loglite/loglite/internal/idgen"
	"github.com/loglite/loglite/internal/ingest"
	"github.com/loglite/loglite/internal/query"
	"github.com/loglite/loglite/internal/reaper"
	"github.com/loglite/loglite/internal/searchindex"
	"github.com/loglite/loglite/internal/storage"
	"github.com/loglite/loglite/internal/tail"
)

const (
	version = "1.0.0-dev"
	name    = "loglite"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("starting loglite service", slog.String("version", version))

	dbConfig := storage.LoadConfig()
	if err := dbConfig.Validate(); err != nil {
		logger.Error("invalid database configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	conn, err := storage.NewConnection(dbConfig)
	if err != nil {
		logger.Error("failed to connect to database",
			slog.String("error", err.Error()),
			slog.String("url", dbConfig.MaskDatabaseURL()),
		)
		os.Exit(1)
	}
	defer conn.Close()

	indexConfig := searchindex.LoadConfig()

	index, err := searchindex.Open(indexConfig)
	if err != nil {
		logger.Error("failed to open search index",
			slog.String("error", err.Error()),
			slog.String("dir", indexConfig.Dir),
		)
		os.Exit(1)
	}
	defer index.Close()

	nodeID := idgen.LoadNodeID()
	ids := idgen.New(nodeID)

	events := storage.NewEventRepository(conn)
	apps := storage.NewAppRepository(conn)
	sources := storage.NewSourceRepository(conn)
	offsets := storage.NewTailOffsetRepository(conn)

	ingestor := ingest.New(ids, events, index)
	planner := query.New(events, index)

	server := api.NewServer(&serverConfig, api.Deps{
		Apps:     apps,
		Sources:  sources,
		Ingestor: ingestor,
		Planner:  planner,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reaperConfig := reaper.LoadConfig()
	r := reaper.New(events, index, logger, reaperConfig.Interval, reaperConfig.Retention)

	go r.Run(ctx)

	t := tail.New(sources, offsets, ingestor, logger, tail.LoadInterval())

	go t.Run(ctx)

	if err := server.Start(); err != nil {
		logger.Error("server failed to start", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("loglite service stopped")
}
