package transcript

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestExtractCode(t *testing.T) {
	cases := []struct {
		name      string
		in        string
		narrative string
		code      string
		ok        bool
	}{
		{
			name:      "tagged block",
			in:        "before\n```py\nprint(1)\n```\nafter",
			narrative: "before\n\nafter",
			code:      "print(1)\n",
			ok:        true,
		},
		{
			name:      "untagged block",
			in:        "```\nx = 1\n```",
			narrative: "",
			code:      "x = 1\n",
			ok:        true,
		},
		{
			name:      "inline block",
			in:        "run ```ls -la``` now",
			narrative: "run  now",
			code:      "ls -la",
			ok:        true,
		},
		{
			name:      "first block only",
			in:        "a\n```go\none\n```\nb\n```go\ntwo\n```",
			narrative: "a\n\nb\n```go\ntwo\n```",
			code:      "one\n",
			ok:        true,
		},
		{
			name:      "crlf line endings",
			in:        "before\r\n```py\r\nprint(1)\r\n```\r\nafter",
			narrative: "before\n\nafter",
			code:      "print(1)\n",
			ok:        true,
		},
		{
			name:      "info string with attributes",
			in:        "```python title=x\nprint(1)\n```",
			narrative: "",
			code:      "print(1)\n",
			ok:        true,
		},
		{
			name:      "no block",
			in:        "  plain text  ",
			narrative: "  plain text  ",
			ok:        false,
		},
		{
			name:      "unterminated fence",
			in:        "```py\nprint(1)",
			narrative: "```py\nprint(1)",
			ok:        false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			narrative, code, ok := ExtractCode(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.narrative, narrative)
			assert.Equal(t, tc.code, code)
		})
	}
}

func TestExtractCodeIsTotal(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("never panics and passes through fence-free input", prop.ForAll(
		func(s string) bool {
			narrative, code, ok := ExtractCode(s)
			if ok {
				return true
			}
			return narrative == s && code == ""
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
