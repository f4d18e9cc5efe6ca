package main

import (
	"context"
	"flag"
	"log"
	"os"

	"TrendScan/internal/di"
	"TrendScan/pkg/config"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config/config.yaml", "config file path")
	once := flag.Bool("once", false, "run a single batch and exit")
	fastPeriod := flag.Int("fast_period", 0, "fast ATR length (overrides config)")
	fastMult := flag.Float64("fast_mult", 0, "fast ATR multiplier (overrides config)")
	slowPeriod := flag.Int("slow_period", 0, "slow ATR length (overrides config)")
	slowMult := flag.Float64("slow_mult", 0, "slow ATR multiplier (overrides config)")
	asOf := flag.String("as_of", "", "last week of the history window, e.g. 2024-03-08 (overrides config)")
	flag.Parse()

	// Load config
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	// Only flags given on the command line override the file and env
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "fast_period":
			cfg.TrailStop.FastLength = *fastPeriod
		case "fast_mult":
			cfg.TrailStop.FastMultiplier = *fastMult
		case "slow_period":
			cfg.TrailStop.SlowLength = *slowPeriod
		case "slow_mult":
			cfg.TrailStop.SlowMultiplier = *slowMult
		case "as_of":
			cfg.TrailStop.AsOf = *asOf
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid flags: %v", err)
	}

	log.Printf("env=%s fast=%d/%.2f slow=%d/%.2f once=%t",
		cfg.Environment,
		cfg.TrailStop.FastLength, cfg.TrailStop.FastMultiplier,
		cfg.TrailStop.SlowLength, cfg.TrailStop.SlowMultiplier,
		*once)

	// Wire DI: Initialize all dependencies
	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if *once {
		if err := app.RunOnce(context.Background()); err != nil {
			log.Printf("run failed: %v", err)
			os.Exit(1)
		}
		return
	}

	// Run application (blocks until signal)
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
