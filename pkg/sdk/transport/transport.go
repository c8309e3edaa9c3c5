package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loadpulse/loadpulse/pkg/pipeline"
)

// Transport delivers push envelopes to a collector.
type Transport interface {
	Send(ctx context.Context, envelopes []pipeline.PushEnvelope) error
	Close() error
}

const httpTimeout = 10 * time.Second

// HTTP posts each envelope to the collector's push endpoint. Simple and
// stateless; one request per envelope.
type HTTP struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTP creates an HTTP transport. base is the collector root, e.g.
// "http://localhost:8080"; run names the target run.
func NewHTTP(base, run, apiKey string) (*HTTP, error) {
	endpoint, err := pushURL(base, "/v1/events/push", run, "http")
	if err != nil {
		return nil, err
	}
	return &HTTP{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: httpTimeout},
	}, nil
}

func (t *HTTP) Send(ctx context.Context, envelopes []pipeline.PushEnvelope) error {
	for _, env := range envelopes {
		body, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("marshal envelope: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if t.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+t.apiKey)
		}
		resp, err := t.client.Do(req)
		if err != nil {
			return fmt.Errorf("send envelope: %w", err)
		}
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("push rejected with status %d", resp.StatusCode)
		}
	}
	return nil
}

func (t *HTTP) Close() error { return nil }

// WS streams envelopes over the collector's push socket, one JSON frame
// per envelope. The connection is dialed lazily and re-dialed once after
// a write failure.
type WS struct {
	endpoint string

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWS creates a websocket transport against the collector root URL.
func NewWS(base, run string) (*WS, error) {
	endpoint, err := pushURL(base, "/v1/events/ws", run, "ws")
	if err != nil {
		return nil, err
	}
	return &WS{endpoint: endpoint}, nil
}

func (t *WS) Send(ctx context.Context, envelopes []pipeline.PushEnvelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		if err := t.dial(ctx); err != nil {
			return err
		}
	}
	for i, env := range envelopes {
		if err := t.conn.WriteJSON(env); err != nil {
			// Stale connection; retry the rest once on a fresh one.
			t.conn.Close()
			t.conn = nil
			if dialErr := t.dial(ctx); dialErr != nil {
				return fmt.Errorf("redial after write failure: %w", dialErr)
			}
			for _, rest := range envelopes[i:] {
				if err := t.conn.WriteJSON(rest); err != nil {
					t.conn.Close()
					t.conn = nil
					return fmt.Errorf("write envelope: %w", err)
				}
			}
			return nil
		}
	}
	return nil
}

func (t *WS) dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.endpoint, err)
	}
	t.conn = conn
	return nil
}

func (t *WS) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// pushURL resolves base+path, rewrites the scheme family, and attaches
// the run query parameter.
func pushURL(base, path, run, family string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = family
	case "https", "wss":
		if family == "ws" {
			u.Scheme = "wss"
		} else {
			u.Scheme = "https"
		}
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = path
	if run != "" {
		q := u.Query()
		q.Set("run", run)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
