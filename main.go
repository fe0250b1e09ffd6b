package main

import (
	"flag"
	"log/slog"
	"os"

	"objwatch/internal/config"
	"objwatch/internal/tracker"
	ui "objwatch/internal/ui"
	processing "objwatch/processing/detector"

	_ "objwatch/processing/capture/opencv"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "path to the TOML settings file")
	logLevel := flag.String("log-level", "", "debug, info, warn or error (overrides the settings file)")
	flag.Parse()

	cfg, err := config.LoadConfigFile(*configPath)
	if err != nil {
		slog.Error("load config, using defaults", "path", *configPath, "err", err)
	}

	level := cfg.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	setupLogger(level)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "path", *configPath, "err", err)
		os.Exit(1)
	}

	trk, err := tracker.New(cfg.GetAbsenceSeconds())
	if err != nil {
		slog.Error("create tracker", "err", err)
		os.Exit(1)
	}

	det, err := processing.NewDetector(cfg)
	if err != nil {
		slog.Error("create detector", "err", err)
		os.Exit(1)
	}
	defer det.Close()

	proc := processing.NewProcessor(cfg, det, trk)

	app := ui.CreateApp(proc, cfg, *configPath)

	app.Run()
}

func setupLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
