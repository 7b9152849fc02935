package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"portfolio-chat/internal/chat"
	"portfolio-chat/internal/stream"
	"portfolio-chat/internal/transcript"
	"portfolio-chat/internal/utils"
)

func runAsk(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	fs.SetOutput(stderr)
	common := registerCommon(fs)
	format := fs.String("format", "pretty", "output format: json|pretty")
	timeout := fs.Duration("timeout", 0, "overall timeout, 0 for none")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(stderr, "usage: portfolio-chat ask [options] \"question\"")
		return 1
	}
	query := strings.Join(fs.Args(), " ")

	cfg, err := common.buildConfig()
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	logger := utils.NewLoggerWithOutput(cfg.Logging.Level, cfg.Logging.Format, stderr)
	backend, err := chat.NewBackend(cfg, logger)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	ctx, cancel := contextWithSignals()
	defer cancel()
	if *timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, *timeout)
		defer cancelTimeout()
	}

	client := chat.NewClient(cfg, backend, logger)
	defer client.Close()
	if _, err := client.Connect(ctx); err != nil {
		fmt.Fprintln(stderr, "session unavailable:", err.Error())
		return 1
	}
	askErr := client.Ask(ctx, query)
	printTranscript(stdout, client.Segments(), *format)
	return askOutcome(ctx, askErr, stderr)
}

// askOutcome maps the result of Ask to an exit code. A stream closed because
// the user interrupted is not a failure; a timeout is.
func askOutcome(ctx context.Context, err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, stream.ErrClosed) && ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			fmt.Fprintln(stderr, "query timed out")
			return 1
		}
		fmt.Fprintln(stderr, "interrupted")
		return 0
	}
	fmt.Fprintln(stderr, err.Error())
	return 1
}

func printTranscript(w io.Writer, segs []transcript.Segment, format string) {
	if format == "json" {
		data, _ := json.MarshalIndent(segs, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}
	for _, seg := range segs {
		switch seg.Kind {
		case transcript.KindUser:
			fmt.Fprintf(w, "> %s\n\n", seg.Content)
		case transcript.KindBotTool:
			fmt.Fprintf(w, "[%s]", seg.Content)
			if seg.Input != "" && seg.Input != "{}" {
				fmt.Fprintf(w, " %s", seg.Input)
			}
			fmt.Fprintln(w)
			if seg.Output != "" {
				narrative, code, ok := transcript.ExtractCode(seg.Output)
				if narrative != "" {
					fmt.Fprintf(w, "  %s\n", strings.ReplaceAll(narrative, "\n", "\n  "))
				}
				if ok {
					fmt.Fprintf(w, "  ---\n  %s\n  ---\n", strings.ReplaceAll(strings.TrimRight(code, "\n"), "\n", "\n  "))
				}
			}
		default:
			fmt.Fprintf(w, "%s\n", seg.Content)
		}
	}
}
