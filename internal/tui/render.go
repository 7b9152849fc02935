package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"portfolio-chat/internal/transcript"
)

const emptyHeadline = "Your portfolio insights, unlocked."

var toolMessages = map[string]string{
	"top_headlines":           "Fetching top headlines...",
	"web_search":              "Performing web search for query",
	"query_portfolio_analyst": "Querying portfolio analyst with",
	"finance_qa":              "Querying finance Q&A agent with",
	"stress_test":             "Running stress test on scenario:",
}

// toolLine is the one-line summary of a tool segment.
func toolLine(seg transcript.Segment) string {
	label := seg.Content
	if msg, ok := toolMessages[label]; ok {
		label = msg
	}
	if seg.Input != "" && seg.Input != "{}" {
		input := seg.Input
		if !strings.HasPrefix(input, `"`) {
			input = `"` + input + `"`
		}
		label += " " + input + "..."
	}
	return label
}

// renderTranscript lays out segments for a viewport of the given width.
func renderTranscript(segs []transcript.Segment, width int, expanded bool) []string {
	if width < 10 {
		width = 10
	}
	lines := make([]string, 0, len(segs)*3)
	for i, seg := range segs {
		switch seg.Kind {
		case transcript.KindUser:
			if i > 0 {
				lines = append(lines, "")
			}
			box := userStyle.MaxWidth(width).Render(ansi.Wrap(seg.Content, width*3/4, ""))
			lines = append(lines, strings.Split(lipgloss.PlaceHorizontal(width, lipgloss.Right, box), "\n")...)
		case transcript.KindBotTool:
			lines = append(lines, renderTool(seg, width, expanded)...)
		default:
			wrapped := ansi.Wrap(seg.Content, width-2, "")
			for _, line := range strings.Split(wrapped, "\n") {
				lines = append(lines, "  "+line)
			}
		}
	}
	return lines
}

func renderTool(seg transcript.Segment, width int, expanded bool) []string {
	head := toolLine(seg)
	if seg.Output != "" {
		marker := "▸"
		if expanded {
			marker = "▾"
		}
		head += " " + marker
	}
	var lines []string
	for _, line := range strings.Split(ansi.Wrap(head, width-2, ""), "\n") {
		lines = append(lines, toolStyle.Render("  "+line))
	}
	if seg.Output == "" || !expanded {
		return lines
	}

	narrative, code, ok := transcript.ExtractCode(seg.Output)
	if narrative != "" {
		for _, line := range strings.Split(ansi.Wrap(narrative, width-4, ""), "\n") {
			lines = append(lines, dimStyle.Render("    "+line))
		}
	}
	if ok {
		box := codeStyle.Width(max(width-6, 4)).Render(strings.TrimRight(code, "\n"))
		for _, line := range strings.Split(box, "\n") {
			lines = append(lines, "    "+line)
		}
	}
	return lines
}

// latestCode returns the most recent fenced block found in any tool output.
func latestCode(segs []transcript.Segment) (string, bool) {
	for i := len(segs) - 1; i >= 0; i-- {
		if segs[i].Kind != transcript.KindBotTool || segs[i].Output == "" {
			continue
		}
		if _, code, ok := transcript.ExtractCode(segs[i].Output); ok {
			return code, true
		}
	}
	return "", false
}
