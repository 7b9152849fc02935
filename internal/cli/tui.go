package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"portfolio-chat/internal/chat"
	"portfolio-chat/internal/tui"
	"portfolio-chat/internal/utils"
)

func runTUI(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("tui", flag.ContinueOnError)
	fs.SetOutput(stderr)
	common := registerCommon(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	cfg, err := common.buildConfig()
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	logFile, err := openLogFile(cfg.DataDir)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	defer logFile.Close()
	logger := utils.NewLoggerWithOutput(cfg.Logging.Level, cfg.Logging.Format, logFile)

	backend, err := chat.NewBackend(cfg, logger)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	ctx, cancel := contextWithSignals()
	defer cancel()

	client := chat.NewClient(cfg, backend, logger)
	if err := tui.Run(ctx, cfg, client, logger); err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	return 0
}

func openLogFile(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dir, "portfolio-chat.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
