package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"sentinel-edge/app"
	"sentinel-edge/config"
	"sentinel-edge/logger"
	"sentinel-edge/models"
	"sentinel-edge/service"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	mode := flag.String("mode", string(models.ModeLegalRiskScoring), fmt.Sprintf("analysis mode %v", models.AnalysisModes()))
	prompt := flag.String("prompt", "", "additional instructions for the model")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config file] [-mode mode] [-prompt text] document.pdf\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	analysisMode, err := models.ParseAnalysisMode(*mode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Log.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.File); err != nil {
		logger.Log.Fatalf("Failed to initialize logger: %v", err)
	}
	// stdout carries only the JSON result
	if cfg.Log.File == "" {
		logger.Log.SetOutput(os.Stderr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	components, err := app.Build(ctx, cfg)
	if err != nil {
		logger.Log.Fatalf("Failed to build analysis pipeline: %v", err)
	}
	defer components.Close()

	result, err := components.Analysis.Run(ctx, service.RunRequest{
		DocumentPath: flag.Arg(0),
		Mode:         analysisMode,
		UserPrompt:   *prompt,
		OnProgress: func(done, total int) {
			logger.Log.Infof("analyzed chunk %d/%d", done, total)
		},
	})
	if err != nil {
		logger.Log.Errorf("Analysis failed: %v", err)
		components.Close()
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.Log.Fatalf("Failed to encode result: %v", err)
	}
}
