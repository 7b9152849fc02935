package transport

import (
	"context"
	"fmt"
	"strings"
)

// Stream yields raw {"type","content"} payloads. Next returns io.EOF at the
// end-of-stream marker and any other error on transport failure.
type Stream interface {
	Next() ([]byte, error)
	Close() error
}

// Backend is the remote agent as seen by the client.
type Backend interface {
	StartSession(ctx context.Context) (string, error)
	EndSession(ctx context.Context, sessionID string) error
	Query(ctx context.Context, sessionID, query string) (Stream, error)
}

const (
	KindHTTP = "http"
	KindA2A  = "a2a"
	KindExec = "exec"
)

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, body)
}
