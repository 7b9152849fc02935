package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"portfolio-chat/internal/transport"
	"portfolio-chat/internal/types"
	"portfolio-chat/internal/utils"
)

// ErrClosed is the terminal error of a handle closed by its owner.
var ErrClosed = errors.New("query channel closed")

// Querier opens the raw event stream for one query.
type Querier interface {
	Query(ctx context.Context, sessionID, query string) (transport.Stream, error)
}

// Delivery is one item received from a handle. A handle terminates once;
// the first delivery with Done set marks it, and later Recv calls repeat that
// same terminal delivery. Err is nil for a clean end marker.
type Delivery struct {
	Gen   uint64
	Event types.StreamEvent
	Done  bool
	Err   error
}

// Channel keeps at most one query stream open at a time.
type Channel struct {
	querier Querier
	logger  *utils.Logger
	gen     atomic.Uint64

	mu      sync.Mutex
	current *Handle
}

func NewChannel(querier Querier, logger *utils.Logger) *Channel {
	return &Channel{querier: querier, logger: logger}
}

// Open closes the current handle, if any, then starts a new stream. The
// returned handle carries a generation higher than every earlier one.
func (c *Channel) Open(ctx context.Context, sessionID, query string) *Handle {
	c.mu.Lock()
	prev := c.current
	gen := c.gen.Add(1)
	h := newHandle(ctx, gen, c.logger.WithField("gen", gen))
	c.current = h
	c.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	go h.pump(c.querier, sessionID, query)
	return h
}

// Generation is the generation of the most recently opened handle.
func (c *Channel) Generation() uint64 {
	return c.gen.Load()
}

func (c *Channel) Current() *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Close closes the current handle. Safe to call repeatedly.
func (c *Channel) Close() {
	c.mu.Lock()
	h := c.current
	c.mu.Unlock()
	if h != nil {
		h.Close()
	}
}

// Handle is one open query stream.
type Handle struct {
	gen    uint64
	logger *utils.Logger
	ctx    context.Context
	cancel context.CancelFunc

	events chan Delivery
	done   chan struct{}

	closeOnce sync.Once
	closed    chan struct{}

	mu     sync.Mutex
	stream transport.Stream
	err    error
}

func newHandle(parent context.Context, gen uint64, logger *utils.Logger) *Handle {
	ctx, cancel := context.WithCancel(parent)
	return &Handle{
		gen:    gen,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		events: make(chan Delivery),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
}

func (h *Handle) Generation() uint64 {
	return h.gen
}

// Recv blocks until the next delivery. After the terminal delivery it keeps
// returning that same delivery.
func (h *Handle) Recv() Delivery {
	d, ok := <-h.events
	if ok {
		return d
	}
	return h.terminal()
}

// Done is closed once the stream has terminated.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Close stops delivery and releases the transport. Idempotent.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		close(h.closed)
		h.cancel()
		h.mu.Lock()
		s := h.stream
		h.mu.Unlock()
		if s != nil {
			_ = s.Close()
		}
	})
}

func (h *Handle) terminal() Delivery {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Delivery{Gen: h.gen, Done: true, Err: h.err}
}

func (h *Handle) isClosed() bool {
	select {
	case <-h.closed:
		return true
	default:
		return false
	}
}

func (h *Handle) pump(querier Querier, sessionID, query string) {
	var termErr error
	defer func() {
		if h.isClosed() {
			termErr = ErrClosed
		}
		h.mu.Lock()
		h.err = termErr
		s := h.stream
		h.mu.Unlock()
		if s != nil {
			_ = s.Close()
		}
		h.cancel()
		close(h.events)
		close(h.done)
	}()

	s, err := querier.Query(h.ctx, sessionID, query)
	if err != nil {
		termErr = err
		h.logger.Warnf("open query stream: %v", err)
		return
	}
	h.mu.Lock()
	h.stream = s
	h.mu.Unlock()
	if h.isClosed() {
		return
	}

	for {
		raw, err := s.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				termErr = err
				if !h.isClosed() {
					h.logger.Warnf("query stream ended with error: %v", err)
				}
			}
			return
		}
		ev, err := types.DecodeStreamEvent(raw)
		if err != nil {
			h.logger.Warnf("dropping event: %v", err)
			continue
		}
		if h.isClosed() {
			return
		}
		select {
		case h.events <- Delivery{Gen: h.gen, Event: ev}:
		case <-h.closed:
			return
		}
	}
}
