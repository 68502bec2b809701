package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/avstrong/staytrust/internal/app"
	"github.com/avstrong/staytrust/internal/config"
	"github.com/avstrong/staytrust/internal/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("STAYTRUST_CONFIG"), "path to the YAML config file")
	flag.Parse()

	boot := logger.NewJSON(os.Stderr, slog.LevelInfo)

	if err := config.LoadEnvFiles(".env"); err != nil {
		boot.LogErrorf("Failed to load .env: %v", err.Error())
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot.LogErrorf("Failed to load config: %v", err.Error())
		os.Exit(1)
	}

	l := logger.NewJSON(os.Stdout, logger.ParseLevel(cfg.LogLevel)).With("service", cfg.Tracing.ServiceName)

	var exitCode int

	if err := app.Run(l, cfg); err != nil {
		l.LogErrorf("Failed to run app: %v", err.Error())

		exitCode = 1
	}

	os.Exit(exitCode)
}
