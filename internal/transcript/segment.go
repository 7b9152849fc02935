package transcript

import "fmt"

// Kind discriminates segments. It never changes after creation.
type Kind int

const (
	KindUser Kind = iota
	KindBot
	KindBotTool
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindBot:
		return "bot"
	case KindBotTool:
		return "bot_tool"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "user":
		*k = KindUser
	case "bot":
		*k = KindBot
	case "bot_tool":
		*k = KindBotTool
	default:
		return fmt.Errorf("unknown segment kind %q", text)
	}
	return nil
}

// Segment is one rendered unit of the conversation. For KindBotTool,
// Content holds the tool name or reasoning label and Input/Output
// accumulate argument and result fragments.
type Segment struct {
	ID      string `json:"id"`
	Kind    Kind   `json:"kind"`
	Content string `json:"content"`
	Input   string `json:"input,omitempty"`
	Output  string `json:"output,omitempty"`
}

// Transcript is an append-only list of segments plus the id of the segment
// currently receiving stream fragments.
type Transcript struct {
	segments []Segment
	index    map[string]int
	active   string
}

func New() *Transcript {
	return &Transcript{index: make(map[string]int)}
}

// Segments returns a copy in display order.
func (t *Transcript) Segments() []Segment {
	out := make([]Segment, len(t.segments))
	copy(out, t.segments)
	return out
}

func (t *Transcript) Len() int {
	return len(t.segments)
}

func (t *Transcript) Get(id string) (Segment, bool) {
	i, ok := t.index[id]
	if !ok {
		return Segment{}, false
	}
	return t.segments[i], true
}

// ActiveID is empty when no segment is receiving fragments.
func (t *Transcript) ActiveID() string {
	return t.active
}

func (t *Transcript) append(seg Segment) *Segment {
	t.segments = append(t.segments, seg)
	t.index[seg.ID] = len(t.segments) - 1
	return &t.segments[len(t.segments)-1]
}

func (t *Transcript) lookup(id string) *Segment {
	if id == "" {
		return nil
	}
	i, ok := t.index[id]
	if !ok {
		return nil
	}
	return &t.segments[i]
}
