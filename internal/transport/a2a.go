package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"sync"

	"portfolio-chat/internal/types"
	"portfolio-chat/internal/utils"

	sdka2a "github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2aclient"
)

// A2ABackend drives a remote A2A agent. Each session owns one SDK client and
// uses the session id as the A2A context id.
type A2ABackend struct {
	cardURL  string
	endpoint string
	http     *http.Client
	logger   *utils.Logger

	mu      sync.Mutex
	clients map[string]*a2aclient.Client
}

// NewA2ABackend resolves the agent from cardURL when set, otherwise it talks
// JSON-RPC to endpoint directly.
func NewA2ABackend(cardURL, endpoint string, logger *utils.Logger) *A2ABackend {
	return &A2ABackend{
		cardURL:  cardURL,
		endpoint: endpoint,
		http:     http.DefaultClient,
		logger:   logger,
		clients:  make(map[string]*a2aclient.Client),
	}
}

func (b *A2ABackend) StartSession(ctx context.Context) (string, error) {
	client, err := b.newClient(ctx)
	if err != nil {
		return "", err
	}
	sessionID := utils.NewID("session")
	b.mu.Lock()
	b.clients[sessionID] = client
	b.mu.Unlock()
	return sessionID, nil
}

func (b *A2ABackend) newClient(ctx context.Context) (*a2aclient.Client, error) {
	if b.cardURL != "" {
		card, err := fetchAgentCard(ctx, b.http, b.cardURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch agent card: %w", err)
		}
		client, err := a2aclient.NewFromCard(ctx, card)
		if err != nil {
			return nil, fmt.Errorf("failed to create client: %w", err)
		}
		b.logger.Debugf("connected to agent %q", card.Name)
		return client, nil
	}
	if b.endpoint == "" {
		return nil, errors.New("a2a backend needs an agent card url or endpoint")
	}
	client, err := a2aclient.NewFromEndpoints(ctx, []sdka2a.AgentInterface{
		{URL: b.endpoint, Transport: sdka2a.TransportProtocolJSONRPC},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return client, nil
}

func (b *A2ABackend) EndSession(ctx context.Context, sessionID string) error {
	b.mu.Lock()
	client, ok := b.clients[sessionID]
	delete(b.clients, sessionID)
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	return client.Destroy()
}

func (b *A2ABackend) Query(ctx context.Context, sessionID, query string) (Stream, error) {
	b.mu.Lock()
	client, ok := b.clients[sessionID]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}

	msg := sdka2a.NewMessage(sdka2a.MessageRoleUser, &sdka2a.TextPart{Text: query})
	msg.ContextID = sessionID

	streamCtx, cancel := context.WithCancel(ctx)
	s := &a2aStream{items: make(chan a2aItem), cancel: cancel}
	go s.run(streamCtx, client.SendStreamingMessage(streamCtx, &sdka2a.MessageSendParams{Message: msg}))
	return s, nil
}

type a2aItem struct {
	data []byte
	err  error
}

type a2aStream struct {
	items  chan a2aItem
	cancel context.CancelFunc
	err    error
	done   bool
}

func (s *a2aStream) run(ctx context.Context, events iter.Seq2[sdka2a.Event, error]) {
	defer close(s.items)
	send := func(it a2aItem) bool {
		select {
		case s.items <- it:
			return true
		case <-ctx.Done():
			return false
		}
	}
	for ev, err := range events {
		if err != nil {
			send(a2aItem{err: err})
			return
		}
		payloads, final, failure := translateA2AEvent(ev)
		for _, p := range payloads {
			if !send(a2aItem{data: p}) {
				return
			}
		}
		if failure != nil {
			send(a2aItem{err: failure})
			return
		}
		if final {
			return
		}
	}
}

func (s *a2aStream) Next() ([]byte, error) {
	if s.done {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	it, ok := <-s.items
	if !ok {
		s.done = true
		return nil, io.EOF
	}
	if it.err != nil {
		s.done = true
		s.err = it.err
		return nil, it.err
	}
	return it.data, nil
}

func (s *a2aStream) Close() error {
	s.cancel()
	return nil
}

// translateA2AEvent maps an SDK event to stream payloads. final reports that
// the agent finished the turn; failure is set for failed or rejected tasks.
func translateA2AEvent(ev sdka2a.Event) (payloads [][]byte, final bool, failure error) {
	switch e := ev.(type) {
	case *sdka2a.Message:
		return partsToPayloads(e.Parts), true, nil
	case *sdka2a.Task:
		if e.Status.Message != nil {
			payloads = partsToPayloads(e.Status.Message.Parts)
		}
		return payloads, isTerminalState(e.Status.State), stateFailure(e.Status)
	case *sdka2a.TaskStatusUpdateEvent:
		if e.Status.Message != nil {
			payloads = partsToPayloads(e.Status.Message.Parts)
		}
		return payloads, e.Final || isTerminalState(e.Status.State), stateFailure(e.Status)
	case *sdka2a.TaskArtifactUpdateEvent:
		if e.Artifact != nil {
			payloads = partsToPayloads(e.Artifact.Parts)
		}
		return payloads, false, nil
	default:
		return nil, false, nil
	}
}

func isTerminalState(state sdka2a.TaskState) bool {
	switch state {
	case sdka2a.TaskStateCompleted, sdka2a.TaskStateFailed, sdka2a.TaskStateCanceled, sdka2a.TaskStateRejected:
		return true
	default:
		return false
	}
}

func stateFailure(status sdka2a.TaskStatus) error {
	if status.State != sdka2a.TaskStateFailed && status.State != sdka2a.TaskStateRejected {
		return nil
	}
	reason := string(status.State)
	if status.Message != nil {
		if text := partsText(status.Message.Parts); text != "" {
			reason = text
		}
	}
	return fmt.Errorf("agent task %s", reason)
}

// partsToPayloads turns text parts into plain answer events and passes data
// parts through as they are, so agents can emit typed tool events.
func partsToPayloads(parts sdka2a.ContentParts) [][]byte {
	out := make([][]byte, 0, len(parts))
	for _, p := range parts {
		switch pt := p.(type) {
		case *sdka2a.TextPart:
			out = append(out, types.EncodeStreamEvent(types.StreamEvent{Type: types.EventText, Content: pt.Text}))
		case sdka2a.TextPart:
			out = append(out, types.EncodeStreamEvent(types.StreamEvent{Type: types.EventText, Content: pt.Text}))
		case *sdka2a.DataPart:
			if data, err := json.Marshal(pt.Data); err == nil {
				out = append(out, data)
			}
		case sdka2a.DataPart:
			if data, err := json.Marshal(pt.Data); err == nil {
				out = append(out, data)
			}
		}
	}
	return out
}

func partsText(parts sdka2a.ContentParts) string {
	var sb strings.Builder
	for _, p := range parts {
		switch pt := p.(type) {
		case *sdka2a.TextPart:
			sb.WriteString(pt.Text)
		case sdka2a.TextPart:
			sb.WriteString(pt.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

// fetchAgentCard fetches an agent card, appending the well-known path when
// given a bare base URL.
func fetchAgentCard(ctx context.Context, client *http.Client, url string) (*sdka2a.AgentCard, error) {
	if !strings.HasSuffix(url, ".json") && !strings.Contains(url, "/.well-known/") {
		url = strings.TrimRight(url, "/") + "/.well-known/agent.json"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("fetch agent card", resp)
	}

	var card sdka2a.AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, fmt.Errorf("failed to decode agent card: %w", err)
	}
	return &card, nil
}
