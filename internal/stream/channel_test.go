package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-chat/internal/transport"
	"portfolio-chat/internal/types"
	"portfolio-chat/internal/utils"
)

// scriptStream replays payloads, then ends with end (io.EOF when nil).
// When hold is set it blocks after the script until closed.
type scriptStream struct {
	payloads [][]byte
	end      error
	hold     bool

	mu     sync.Mutex
	pos    int
	closed chan struct{}
	once   sync.Once
}

func newScript(end error, hold bool, payloads ...string) *scriptStream {
	s := &scriptStream{end: end, hold: hold, closed: make(chan struct{})}
	for _, p := range payloads {
		s.payloads = append(s.payloads, []byte(p))
	}
	return s
}

func (s *scriptStream) Next() ([]byte, error) {
	s.mu.Lock()
	if s.pos < len(s.payloads) {
		p := s.payloads[s.pos]
		s.pos++
		s.mu.Unlock()
		return p, nil
	}
	s.mu.Unlock()
	if s.hold {
		<-s.closed
		return nil, errors.New("use of closed connection")
	}
	if s.end != nil {
		return nil, s.end
	}
	return nil, io.EOF
}

func (s *scriptStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type fakeQuerier struct {
	mu      sync.Mutex
	streams []*scriptStream
	err     error
}

func (f *fakeQuerier) Query(ctx context.Context, sessionID, query string) (transport.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s := f.streams[0]
	f.streams = f.streams[1:]
	return s, nil
}

func collect(t *testing.T, h *Handle) ([]types.StreamEvent, Delivery) {
	t.Helper()
	var events []types.StreamEvent
	timeout := time.After(2 * time.Second)
	for {
		got := make(chan Delivery, 1)
		go func() { got <- h.Recv() }()
		select {
		case d := <-got:
			if d.Done {
				return events, d
			}
			events = append(events, d.Event)
		case <-timeout:
			t.Fatal("timed out waiting for deliveries")
		}
	}
}

func TestHandleDeliversAndEnds(t *testing.T) {
	q := &fakeQuerier{streams: []*scriptStream{newScript(nil, false,
		`{"type":"on_tool_start","content":"web_search"}`,
		`{"type":"text","content":"hi"}`,
	)}}
	c := NewChannel(q, utils.Discard())

	h := c.Open(context.Background(), "sess-1", "q")
	events, end := collect(t, h)

	assert.Equal(t, []types.StreamEvent{
		{Type: types.EventToolStart, Content: "web_search"},
		{Type: types.EventText, Content: "hi"},
	}, events)
	assert.True(t, end.Done)
	assert.NoError(t, end.Err)
	assert.Equal(t, h.Generation(), end.Gen)

	for i := 0; i < 2; i++ {
		assert.Equal(t, end, h.Recv(), "later Recv calls repeat the terminal delivery")
	}
	<-h.Done()
}

func TestMalformedPayloadsAreDropped(t *testing.T) {
	q := &fakeQuerier{streams: []*scriptStream{newScript(nil, false,
		`{"type":"text","content":"a"}`,
		`not json at all`,
		`{"type":"text"}`,
		`{"content":"x"}`,
		`{"type":"text","content":"b"}`,
	)}}
	c := NewChannel(q, utils.Discard())

	events, end := collect(t, c.Open(context.Background(), "s", "q"))
	assert.NoError(t, end.Err)
	assert.Equal(t, []types.StreamEvent{
		{Type: types.EventText, Content: "a"},
		{Type: types.EventText, Content: "b"},
	}, events)
}

func TestTransportErrorIsTerminal(t *testing.T) {
	boom := errors.New("connection reset")
	q := &fakeQuerier{streams: []*scriptStream{newScript(boom, false, `{"type":"text","content":"partial"}`)}}
	c := NewChannel(q, utils.Discard())

	events, end := collect(t, c.Open(context.Background(), "s", "q"))
	assert.Len(t, events, 1)
	assert.ErrorIs(t, end.Err, boom)
}

func TestOpenFailureIsTerminal(t *testing.T) {
	q := &fakeQuerier{err: errors.New("dial refused")}
	c := NewChannel(q, utils.Discard())

	events, end := collect(t, c.Open(context.Background(), "s", "q"))
	assert.Empty(t, events)
	assert.EqualError(t, end.Err, "dial refused")
}

func TestCloseIsIdempotent(t *testing.T) {
	s := newScript(nil, true)
	q := &fakeQuerier{streams: []*scriptStream{s}}
	c := NewChannel(q, utils.Discard())

	h := c.Open(context.Background(), "s", "q")
	h.Close()
	h.Close()
	c.Close()

	_, end := collect(t, h)
	assert.ErrorIs(t, end.Err, ErrClosed)
	select {
	case <-s.closed:
	default:
		t.Fatal("transport stream was not closed")
	}
}

func TestOpenClosesPrevious(t *testing.T) {
	first := newScript(nil, true, `{"type":"text","content":"old"}`)
	second := newScript(nil, false, `{"type":"text","content":"new"}`)
	q := &fakeQuerier{streams: []*scriptStream{first, second}}
	c := NewChannel(q, utils.Discard())

	a := c.Open(context.Background(), "s", "first")
	d := a.Recv()
	require.False(t, d.Done)
	assert.Equal(t, "old", d.Event.Content)

	b := c.Open(context.Background(), "s", "second")
	assert.Greater(t, b.Generation(), a.Generation())
	assert.Equal(t, b.Generation(), c.Generation())
	assert.Same(t, b, c.Current())

	_, endA := collect(t, a)
	assert.ErrorIs(t, endA.Err, ErrClosed)

	events, endB := collect(t, b)
	assert.NoError(t, endB.Err)
	assert.Equal(t, []types.StreamEvent{{Type: types.EventText, Content: "new"}}, events)
}
