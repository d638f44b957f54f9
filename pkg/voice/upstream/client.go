// Package upstream opens the duplex streaming connection to the realtime
// AI provider. The relay treats the connection as an opaque endpoint:
// frames in, frames out, close.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ConnectError wraps a failed upstream handshake so the session
// controller can distinguish it from relay-time failures.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string { return fmt.Sprintf("upstream connect: %v", e.Err) }
func (e *ConnectError) Unwrap() error { return e.Err }

type Config struct {
	URL            string
	Model          string
	APIKey         string
	ConnectTimeout time.Duration
}

// Dialer opens realtime sessions. The zero value dials with gorilla's
// default dialer.
type Dialer struct {
	// WSDialer overrides the websocket dialer, for tests.
	WSDialer *websocket.Dialer
}

// Dial performs the websocket handshake and returns a duplex connection.
// Failures return a *ConnectError.
func (d Dialer) Dial(ctx context.Context, cfg Config) (*Conn, error) {
	endpoint, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, &ConnectError{Err: fmt.Errorf("parse url: %w", err)}
	}
	if strings.TrimSpace(cfg.Model) != "" {
		q := endpoint.Query()
		q.Set("model", cfg.Model)
		endpoint.RawQuery = q.Encode()
	}

	header := http.Header{}
	if strings.TrimSpace(cfg.APIKey) != "" {
		header.Set("Authorization", "Bearer "+cfg.APIKey)
		header.Set("OpenAI-Beta", "realtime=v1")
	}

	dialer := d.WSDialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	ws, resp, err := dialer.DialContext(ctx, endpoint.String(), header)
	if err != nil {
		if resp != nil {
			return nil, &ConnectError{Err: fmt.Errorf("handshake status %d: %w", resp.StatusCode, err)}
		}
		return nil, &ConnectError{Err: err}
	}
	return &Conn{ws: ws}, nil
}

// Conn is one live upstream session. Send and Receive may be used from
// different goroutines; Close is safe to call more than once and from
// either side.
type Conn struct {
	ws *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// Send forwards one raw frame upstream.
func (c *Conn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// SendJSON marshals v and sends it as a single frame.
func (c *Conn) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal upstream frame: %w", err)
	}
	return c.Send(data)
}

// Receive blocks for the next upstream frame. It returns an error when
// the connection closes, which is how the relay loop observes upstream
// termination.
func (c *Conn) Receive() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

// Close tears the connection down, unblocking any pending Receive.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
