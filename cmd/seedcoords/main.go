// Command seedcoords loads the ICON coordinate catalog from a CSV file into
// the icon_coordinates table. The converter refuses to run against an empty
// catalog, so this is the first thing to run on a fresh database.
//
// The CSV has a header row and two columns, latitude and longitude:
//
//	latitude,longitude
//	52.5200,13.4050
//
// Usage:
//
//	go run ./cmd/seedcoords -csv coordinates.csv
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/couchcryptid/icon-grid-etl/internal/config"
	"github.com/couchcryptid/icon-grid-etl/internal/observability"
)

const insertBatchSize = 1000

func main() {
	csvPath := flag.String("csv", "", "path to the coordinate CSV file")
	flag.Parse()

	if *csvPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	if err := run(context.Background(), cfg, logger, *csvPath); err != nil {
		logger.Error("seeding coordinates failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, csvPath string) error {
	f, err := os.Open(csvPath)
	if err != nil {
		return err
	}
	defer f.Close()

	conn, err := pgx.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer conn.Close(ctx)

	r := csv.NewReader(f)
	if _, err := r.Read(); err != nil {
		return fmt.Errorf("reading CSV header: %w", err)
	}

	sql := fmt.Sprintf(
		`INSERT INTO %s.icon_coordinates (latitude, longitude, coordinate_type)
		 VALUES ($1, $2, 'ICON') ON CONFLICT DO NOTHING`, cfg.DatabaseSchema)

	var total, line int
	batch := &pgx.Batch{}
	for {
		line++
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading CSV line %d: %w", line, err)
		}
		if len(record) < 2 {
			logger.Warn("skipping short CSV line", "line", line)
			continue
		}
		lat, latErr := strconv.ParseFloat(record[0], 64)
		lon, lonErr := strconv.ParseFloat(record[1], 64)
		if latErr != nil || lonErr != nil {
			logger.Warn("skipping unparseable CSV line", "line", line)
			continue
		}
		batch.Queue(sql, lat, lon)
		if batch.Len() >= insertBatchSize {
			if err := conn.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("inserting batch at line %d: %w", line, err)
			}
			total += batch.Len()
			batch = &pgx.Batch{}
		}
	}
	if batch.Len() > 0 {
		if err := conn.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting final batch: %w", err)
		}
		total += batch.Len()
	}

	logger.Info("coordinate catalog seeded", "coordinates", total)
	return nil
}
