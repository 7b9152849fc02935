package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"portfolio-chat/internal/session"
	"portfolio-chat/internal/stream"
	"portfolio-chat/internal/transcript"
	"portfolio-chat/internal/transport"
	"portfolio-chat/internal/utils"
)

var (
	ErrNoSession  = errors.New("no session yet")
	ErrEmptyQuery = errors.New("empty query")
)

// NewBackend builds the transport selected by cfg.
func NewBackend(cfg Config, logger *utils.Logger) (transport.Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = logger.WithField("backend", cfg.Backend.Kind)
	switch cfg.Backend.Kind {
	case transport.KindA2A:
		return transport.NewA2ABackend(cfg.Backend.AgentCardURL, cfg.Backend.AgentEndpoint, logger), nil
	case transport.KindExec:
		return transport.NewExecBackend(cfg.Backend.AgentCmd, cfg.Backend.AgentArgs, cfg.Backend.AgentDir, logger), nil
	default:
		return transport.NewHTTPBackend(cfg.Backend.BaseURL, cfg.Backend.RequestTimeout, logger), nil
	}
}

// Client holds one conversation. Apart from Connect, its methods must be
// called from a single goroutine, the one consuming deliveries.
type Client struct {
	sessions  *session.Manager
	channel   *stream.Channel
	assembler *transcript.Assembler
	logger    *utils.Logger
	exitGrace time.Duration

	live    *stream.Handle
	lastErr error
}

type Option func(*Client)

func WithAssemblerOptions(opts ...transcript.Option) Option {
	return func(c *Client) {
		c.assembler = transcript.NewAssembler(c.assembler.Transcript(), opts...)
	}
}

func NewClient(cfg Config, backend transport.Backend, logger *utils.Logger, opts ...Option) *Client {
	c := &Client{
		sessions:  session.NewManager(backend, cfg.Backend.RequestTimeout, cfg.Session.EndTimeout, logger),
		channel:   stream.NewChannel(backend, logger),
		assembler: transcript.NewAssembler(transcript.New()),
		logger:    logger,
		exitGrace: cfg.Session.ExitGrace,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect acquires the session. Safe to call from any goroutine.
func (c *Client) Connect(ctx context.Context) (string, error) {
	return c.sessions.Start(ctx)
}

func (c *Client) SessionID() (string, bool) {
	return c.sessions.ID()
}

// Submit records the user's message and opens a query stream for it. Any
// stream still open is closed first.
func (c *Client) Submit(ctx context.Context, query string) (*stream.Handle, error) {
	sessionID, ok := c.sessions.ID()
	if !ok {
		return nil, ErrNoSession
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	c.assembler.BeginQuery(query)
	c.lastErr = nil
	c.live = c.channel.Open(ctx, sessionID, query)
	c.logger.WithFields(map[string]any{"session": sessionID, "gen": c.live.Generation()}).Debugf("query submitted")
	return c.live, nil
}

// Handle applies a delivery when it belongs to the live stream and reports
// whether it did. Stale deliveries are ignored.
func (c *Client) Handle(d stream.Delivery) bool {
	if c.live == nil || d.Gen != c.live.Generation() {
		return false
	}
	if d.Done {
		c.assembler.EndStream()
		c.live = nil
		if d.Err != nil && !errors.Is(d.Err, stream.ErrClosed) {
			c.lastErr = d.Err
			c.logger.Warnf("query stream ended: %v", d.Err)
		}
		return true
	}
	c.assembler.Apply(d.Event.Type, d.Event.Content)
	return true
}

// Waiting reports whether a query stream is open.
func (c *Client) Waiting() bool {
	return c.live != nil
}

// Live is the open handle, or nil.
func (c *Client) Live() *stream.Handle {
	return c.live
}

// LastError is the transport error that ended the most recent stream.
func (c *Client) LastError() error {
	return c.lastErr
}

func (c *Client) Segments() []transcript.Segment {
	return c.assembler.Transcript().Segments()
}

// Cancel closes the open stream. Its terminal delivery still arrives and
// clears the waiting state.
func (c *Client) Cancel() {
	if c.live != nil {
		c.live.Close()
	}
}

// Ask submits query and consumes the stream on the calling goroutine until
// it ends.
func (c *Client) Ask(ctx context.Context, query string) error {
	h, err := c.Submit(ctx, query)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, h.Close)
	defer stop()
	for {
		d := h.Recv()
		c.Handle(d)
		if d.Done {
			if d.Err != nil {
				return fmt.Errorf("query: %w", d.Err)
			}
			return nil
		}
	}
}

// Close tears the conversation down: the open stream is closed and the
// session released in the background, with a bounded wait for the release.
func (c *Client) Close() {
	c.channel.Close()
	c.sessions.Release()
	if c.exitGrace > 0 && !c.sessions.Wait(c.exitGrace) {
		c.logger.Warnf("session release still pending after %s", c.exitGrace)
	}
}
