package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/banshee-data/sensorsync/internal/export"
	"github.com/banshee-data/sensorsync/internal/monitoring"
	"github.com/banshee-data/sensorsync/internal/store"
)

func listRuns(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, verbose := newFlagSet("runs", stderr)
	dbPath := fs.String("db", "sensorsync.db", "SQLite run database")
	limit := fs.Int("limit", 20, "Number of runs to list (0 = all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setupLogging(stderr, *verbose)

	db, err := store.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(ctx, *limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tEPOCH\tMETHOD\tGNSS\tIMU\tINTERPOLATED\tAFTER <=5ms")
	for _, r := range runs {
		reports, err := db.Reports(ctx, r.RunID)
		if err != nil {
			return err
		}
		after := "-"
		if rep, ok := reports[store.StageAfter]; ok {
			after = monitoring.Percent(rep.Fraction5ms())
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", r.RunID, export.UTC(r.Epoch), r.Method,
			monitoring.Count(r.GnssRecords), monitoring.Count(r.ImuRecords), monitoring.Count(r.InterpolatedRecords), after)
	}
	return tw.Flush()
}

func migrateDB(args []string, stdout, stderr io.Writer) error {
	fs, verbose := newFlagSet("migrate", stderr)
	dbPath := fs.String("db", "sensorsync.db", "SQLite run database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setupLogging(stderr, *verbose)
	action := "version"
	if fs.NArg() > 0 {
		action = fs.Arg(0)
	}

	// Open applies every pending migration.
	db, err := store.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	switch action {
	case "up", "version":
	case "down":
		if err := db.MigrateDown(); err != nil {
			return err
		}
	default:
		fmt.Fprintf(stderr, "unknown migrate action %q: expected up, down or version\n", action)
		return errUsage
	}
	v, dirty, err := db.MigrateVersion()
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("database is dirty at version %d", v)
	}
	fmt.Fprintf(stdout, "schema version %d\n", v)
	return nil
}
