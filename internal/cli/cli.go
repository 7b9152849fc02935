package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"portfolio-chat/internal/chat"
)

func Run() int {
	return run(os.Args[1:], os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return runTUI(args, stderr)
	}
	switch args[0] {
	case "tui":
		return runTUI(args[1:], stderr)
	case "ask":
		return runAsk(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		usage(stderr)
		return 1
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "portfolio-chat <command> [options]")
	fmt.Fprintln(w, "Commands: tui (default), ask \"<question>\", help")
}

type commonFlags struct {
	backend  *string
	baseURL  *string
	cardURL  *string
	agentCmd *string
	agentDir *string
	envFile  *string
	verbose  *bool
}

func registerCommon(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		backend:  fs.String("backend", "", "backend: http|a2a|exec"),
		baseURL:  fs.String("url", "", "base url of the http backend"),
		cardURL:  fs.String("agent-card", "", "agent card url for the a2a backend"),
		agentCmd: fs.String("agent-cmd", "", "agent command for the exec backend"),
		agentDir: fs.String("agent-dir", "", "working directory for the exec backend"),
		envFile:  fs.String("env", ".env", "env file to load"),
		verbose:  fs.Bool("verbose", false, "debug logging"),
	}
}

// buildConfig layers defaults, the env file, the environment and flags.
func (f commonFlags) buildConfig() (chat.Config, error) {
	if err := chat.LoadEnv(*f.envFile); err != nil {
		return chat.Config{}, err
	}
	cfg := chat.DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		return chat.Config{}, err
	}
	if *f.backend != "" {
		cfg.Backend.Kind = strings.ToLower(*f.backend)
	}
	if *f.baseURL != "" {
		cfg.Backend.BaseURL = *f.baseURL
	}
	if *f.cardURL != "" {
		cfg.Backend.AgentCardURL = *f.cardURL
	}
	if *f.agentCmd != "" {
		cfg.Backend.AgentCmd = *f.agentCmd
	}
	if *f.agentDir != "" {
		cfg.Backend.AgentDir = *f.agentDir
	}
	if *f.verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, cfg.Validate()
}

func contextWithSignals() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
