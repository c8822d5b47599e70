package main

import (
	"fmt"
	"os"

	"quotewatch/internal/cli"
	"quotewatch/internal/config"
	"quotewatch/internal/logging"
)

func main() {
	cfg, err := config.Load(os.Getenv("QUOTEWATCH_CONFIG_DIR"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logCfg := logging.DefaultLogConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.File = cfg.Logging.File
	// Log lines would interleave with the live quote stream on the terminal.
	logCfg.Console = !cfg.Logging.File
	logger := logging.NewLoggerWithConfig(logCfg)

	if err := cli.NewRootCmd(cfg, logger).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", cli.ErrorMessage(err))
		os.Exit(1)
	}
}
