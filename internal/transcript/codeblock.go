package transcript

import (
	"regexp"
	"strings"
)

// The optional first line is the info string (language tag and attributes).
var fencedBlock = regexp.MustCompile("(?s)```(?:[^\\n`]*\\n)?(.*?)```")

// ExtractCode splits a tool output into narrative text and the first fenced
// code block. Later blocks stay in the narrative. When a block is found,
// CRLF line endings are folded to LF in both results; otherwise output is
// returned unchanged.
func ExtractCode(output string) (narrative, code string, ok bool) {
	loc := fencedBlock.FindStringSubmatchIndex(output)
	if loc == nil {
		return output, "", false
	}
	code = strings.ReplaceAll(output[loc[2]:loc[3]], "\r\n", "\n")
	narrative = strings.TrimSpace(strings.ReplaceAll(output[:loc[0]]+output[loc[1]:], "\r\n", "\n"))
	return narrative, code, true
}
