package transcript

import (
	"math/rand/v2"

	"portfolio-chat/internal/types"
	"portfolio-chat/internal/utils"
)

// ReasoningLabels are shown in place of reasoning payloads.
var ReasoningLabels = []string{"Reasoning…", "Thinking…", "Pondering…"}

// Classify maps a wire event type to the segment kind it belongs to.
func Classify(eventType string) Kind {
	switch eventType {
	case types.EventReasoning, types.EventToolStart, types.EventToolArgs, types.EventToolOutput:
		return KindBotTool
	default:
		return KindBot
	}
}

type Option func(*Assembler)

func WithIDGenerator(fn func() string) Option {
	return func(a *Assembler) { a.newID = fn }
}

func WithLabelPicker(fn func(labels []string) string) Option {
	return func(a *Assembler) { a.pickLabel = fn }
}

// Assembler folds stream events into a Transcript. It is the only writer of
// the transcript and is not safe for concurrent use.
type Assembler struct {
	t         *Transcript
	newID     func() string
	pickLabel func([]string) string
}

func NewAssembler(t *Transcript, opts ...Option) *Assembler {
	a := &Assembler{
		t:     t,
		newID: func() string { return utils.NewID("seg") },
		pickLabel: func(labels []string) string {
			return labels[rand.IntN(len(labels))]
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Assembler) Transcript() *Transcript {
	return a.t
}

// BeginQuery appends the user's message and detaches any active segment so
// the reply starts fresh.
func (a *Assembler) BeginQuery(text string) Segment {
	a.t.active = ""
	return *a.t.append(Segment{ID: a.newID(), Kind: KindUser, Content: text})
}

// Apply folds one event into the transcript.
func (a *Assembler) Apply(eventType, chunk string) {
	kind := Classify(eventType)
	active := a.t.lookup(a.t.active)
	if active == nil || active.Kind == KindUser {
		a.open(eventType, kind, chunk)
		return
	}

	switch eventType {
	case types.EventReasoning, types.EventToolStart:
		a.open(eventType, kind, chunk)
	case types.EventToolArgs:
		if active.Kind != KindBotTool {
			a.open(eventType, kind, chunk)
			return
		}
		active.Input += chunk
	case types.EventToolRequest:
		// marker only
	case types.EventToolOutput:
		if active.Kind != KindBotTool {
			a.open(eventType, kind, chunk)
			return
		}
		active.Output += chunk
	default:
		if active.Kind != kind {
			a.open(eventType, kind, chunk)
			return
		}
		active.Content += chunk
	}
}

// EndStream detaches the active segment. Content is left untouched.
func (a *Assembler) EndStream() {
	a.t.active = ""
}

func (a *Assembler) open(eventType string, kind Kind, chunk string) {
	content := chunk
	switch {
	case eventType == types.EventReasoning:
		content = a.pickLabel(ReasoningLabels)
	case kind == KindBot && chunk == "":
		return
	}
	seg := a.t.append(Segment{ID: a.newID(), Kind: kind, Content: content})
	a.t.active = seg.ID
}
