package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/meltforce/posecoach/internal/dataset"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	root := flag.String("path", "", "recordings directory with one subdirectory per label")
	output := flag.String("out", "dataset.csv", "training CSV to write")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("posecoach-dataset", Version)
		return
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *root == "" {
		fmt.Fprintf(os.Stderr, "Usage: posecoach-dataset -path <recordings dir> [-out dataset.csv]\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	f, err := os.Create(*output)
	if err != nil {
		log.Error("failed to create output", "path", *output, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats, buildErr := dataset.New(log).Build(ctx, *root, f)
	if err := f.Close(); err != nil && buildErr == nil {
		buildErr = err
	}
	printStats(stats)
	if buildErr != nil {
		log.Error("dataset build failed", "error", buildErr)
		os.Exit(1)
	}
	log.Info("dataset written", "path", *output)
}

func printStats(stats *dataset.Stats) {
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "=== Dataset Summary ===")
	fmt.Fprintf(os.Stderr, "  Labels:           %s\n", strings.Join(stats.Labels, ", "))
	fmt.Fprintf(os.Stderr, "  Files processed:  %d\n", stats.FilesProcessed)
	fmt.Fprintf(os.Stderr, "  Files skipped:    %d\n", stats.FilesSkipped)
	fmt.Fprintf(os.Stderr, "  Files errored:    %d\n", stats.FilesErrored)
	fmt.Fprintf(os.Stderr, "  Rows written:     %d\n", stats.RowsWritten)
	fmt.Fprintf(os.Stderr, "  Frames skipped:   %d (incomplete pose)\n", stats.FramesSkipped)
	fmt.Fprintln(os.Stderr)
}
