// Command import-storms bulk-loads a cleaned storm-events CSV into the
// history tables and derives the county reference data the matcher
// resolves subscriptions against. Run it once per dataset refresh; the
// import is idempotent.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/stormsignal/weather-notify/internal/config"
	"github.com/stormsignal/weather-notify/internal/importer"
	"github.com/stormsignal/weather-notify/internal/logging"
	"github.com/stormsignal/weather-notify/internal/repository"
)

func main() {
	_ = godotenv.Load()

	csvPath := flag.String("csv", "", "path to the storm events CSV file")
	dbPath := flag.String("db", "", "path to the sqlite database (defaults to DB_PATH)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	if *csvPath == "" {
		logging.Fatalf("usage: import-storms -csv <file> [-db <path>]")
	}
	path := cfg.DB.Path
	if *dbPath != "" {
		path = *dbPath
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		logging.Fatalf("Failed to open %s: %v", *csvPath, err)
	}
	defer f.Close()

	db, err := repository.NewSQLiteDB(path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	res, err := importer.New(db).Run(context.Background(), f)
	if err != nil {
		logging.Fatalf("Import failed: %v", err)
	}

	slog.Info("import complete",
		"events", res.EventsImported,
		"areas", res.AreasImported,
		"skipped", res.RowsSkipped)
}
