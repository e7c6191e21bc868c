package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/meltforce/posecoach/internal/config"
	"github.com/meltforce/posecoach/internal/evaluate"
	"github.com/meltforce/posecoach/internal/extract"
	posemcp "github.com/meltforce/posecoach/internal/mcp"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	serverURL := flag.String("server", "", "PoseCoach server URL (e.g. https://posecoach.tail1234.ts.net)")
	configPath := flag.String("config", "", "evaluator config for evaluate_pose (defaults and env only when empty)")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("posecoach-mcp", Version)
		return
	}

	// stdout carries the MCP protocol
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *serverURL == "" {
		fmt.Fprintf(os.Stderr, "Usage: posecoach-mcp -server <URL> [-config config.yaml]\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := config.LoadEvaluator(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cls, err := evaluate.ClassifierFromConfig(cfg)
	if err != nil {
		log.Error("failed to set up classifier", "error", err)
		os.Exit(1)
	}
	ev, err := evaluate.New(extract.New(cfg.FeatureSet()), cls, nil, evaluate.OptionsFromConfig(cfg), log)
	if err != nil {
		log.Error("evaluator setup failed", "error", err)
		os.Exit(1)
	}

	s := posemcp.New(posemcp.NewHTTPClient(*serverURL), ev, Version, log)
	log.Info("serving MCP over stdio", "server", *serverURL)
	if err := mcpserver.ServeStdio(s); err != nil {
		log.Error("mcp server stopped", "error", err)
		os.Exit(1)
	}
}
