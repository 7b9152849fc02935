package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"portfolio-chat/internal/utils"
)

// HTTPBackend talks to the web backend: JSON session endpoints and a
// Server-Sent Events query stream.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
	stream  *http.Client
	logger  *utils.Logger
}

func NewHTTPBackend(baseURL string, timeout time.Duration, logger *utils.Logger) *HTTPBackend {
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		// streams stay open for as long as the agent works
		stream: &http.Client{},
		logger: logger,
	}
}

type startSessionResponse struct {
	SessionID string `json:"session_id"`
}

func (b *HTTPBackend) StartSession(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/start_session", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", statusError("start session", resp)
	}
	var out startSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode start session response: %w", err)
	}
	if out.SessionID == "" {
		return "", fmt.Errorf("start session: empty session_id")
	}
	return out.SessionID, nil
}

func (b *HTTPBackend) EndSession(ctx context.Context, sessionID string) error {
	endpoint := b.baseURL + "/api/end_session?" + url.Values{"session_id": {sessionID}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError("end session", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (b *HTTPBackend) Query(ctx context.Context, sessionID, query string) (Stream, error) {
	params := url.Values{"query": {query}, "session_id": {sessionID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/query?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	resp, err := b.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open query stream: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		return nil, statusError("query", resp)
	}
	if ct := strings.ToLower(resp.Header.Get("Content-Type")); ct != "" && !strings.HasPrefix(ct, "text/event-stream") {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected content type %q: %s", resp.Header.Get("Content-Type"), string(raw))
	}
	b.logger.Debugf("query stream opened for session %s", sessionID)
	return &sseStream{body: resp.Body, reader: bufio.NewReader(resp.Body)}, nil
}

func statusError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{Op: op, Status: resp.StatusCode, Body: string(raw)}
}

type sseStream struct {
	body   io.ReadCloser
	reader *bufio.Reader

	closeOnce sync.Once
	ended     bool
}

// Next returns the data of the next default-typed SSE event. "start" events
// and comments are skipped; an "end" event yields io.EOF. A body that ends
// before the "end" event is reported as io.ErrUnexpectedEOF.
func (s *sseStream) Next() ([]byte, error) {
	if s.ended {
		return nil, io.EOF
	}
	for {
		event, data, err := readSSEEvent(s.reader)
		if err != nil {
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		switch event {
		case "end":
			s.ended = true
			return nil, io.EOF
		case "", "message":
			if len(data) == 0 {
				continue
			}
			return data, nil
		default:
			continue
		}
	}
}

func (s *sseStream) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.body.Close() })
	return err
}

func readSSEEvent(reader *bufio.Reader) (string, []byte, error) {
	var event string
	var data []byte
	var seenData bool
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if event == "" && !seenData {
				continue
			}
			return event, data, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if after, ok := strings.CutPrefix(line, "event:"); ok {
			event = strings.TrimSpace(after)
			continue
		}
		if after, ok := strings.CutPrefix(line, "data:"); ok {
			after = strings.TrimPrefix(after, " ")
			if seenData {
				data = append(data, '\n')
			}
			data = append(data, after...)
			seenData = true
			continue
		}
		// retry: and id: fields carry nothing the client uses
	}
}
