// Command sensorsync decodes GNSS and IMU logs, puts the IMU records on
// the GNSS clock and reports how well the two streams line up.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/sensorsync/internal/frames"
	"github.com/banshee-data/sensorsync/internal/monitoring"
	"github.com/banshee-data/sensorsync/internal/pipeline"
	"github.com/banshee-data/sensorsync/internal/version"
)

// errUsage marks errors already explained by the usage text.
var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	switch {
	case err == nil:
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "sensorsync: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		printUsage(stderr)
		return errUsage
	}
	command, args := args[0], args[1:]
	switch command {
	case "run":
		return runPipeline(ctx, args, stdout, stderr)
	case "serve":
		return serve(ctx, args, stderr)
	case "capture":
		return captureSerial(ctx, args, stdout, stderr)
	case "runs":
		return listRuns(ctx, args, stdout, stderr)
	case "migrate":
		return migrateDB(args, stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, version.String())
		return nil
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		printUsage(stderr)
		return errUsage
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `sensorsync - GNSS/IMU time synchronisation

Usage: sensorsync <command> [options]

Commands:
  run       Decode, stamp, resample and align a GNSS and an IMU log
  serve     Run the HTTP upload and processing service
  capture   Record raw frames from a serial port and stamp them live
  runs      List runs stored in the run database
  migrate   Apply or roll back run database migrations
  version   Show the build version
  help      Show this help message

Run 'sensorsync <command> -h' for the options of a command.
`)
}

// newFlagSet returns a flag set writing its usage to stderr, with the -v
// flag every command shares.
func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.Bool("v", false, "Log per-frame decode details to stderr")
	return fs, verbose
}

// setupLogging routes operational logs to stderr and, when verbose, the
// package debug loggers too.
func setupLogging(stderr io.Writer, verbose bool) {
	monitoring.SetOutput(stderr, "")
	if verbose {
		frames.SetDebugLogger(stderr)
		pipeline.SetDebugLogger(stderr)
		return
	}
	frames.SetDebugLogger(nil)
	pipeline.SetDebugLogger(nil)
}
