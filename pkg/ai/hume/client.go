// Package hume measures vocal emotion over the Hume streaming API. A
// short audio prefix of the session is sent as one WAV payload; the
// response is reduced to a tracked-emotion map and a sentiment score.
package hume

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const defaultStreamURL = "wss://api.hume.ai/v0/stream/models"

type Client struct {
	apiKey    string
	streamURL string
	dialer    *websocket.Dialer
}

type Option func(*Client)

func WithStreamURL(url string) Option {
	return func(c *Client) { c.streamURL = url }
}

func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:    apiKey,
		streamURL: defaultStreamURL,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type streamRequest struct {
	Data   string `json:"data"`
	Models struct {
		Prosody struct{} `json:"prosody"`
	} `json:"models"`
}

type streamResponse struct {
	Error   string `json:"error"`
	Prosody struct {
		Predictions []struct {
			Emotions []struct {
				Name  string  `json:"name"`
				Score float64 `json:"score"`
			} `json:"emotions"`
		} `json:"predictions"`
	} `json:"prosody"`
}

// AnalyzeAudio runs prosody analysis over one WAV payload and returns
// scores for tracked emotions only. Untracked emotion names in the
// response are dropped.
func (c *Client) AnalyzeAudio(ctx context.Context, wav []byte) (map[string]float64, error) {
	header := http.Header{"X-Hume-Api-Key": []string{c.apiKey}}
	conn, resp, err := c.dialer.DialContext(ctx, c.streamURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connect to emotion stream: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("connect to emotion stream: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}

	req := streamRequest{Data: base64.StdEncoding.EncodeToString(wav)}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode stream request: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return nil, fmt.Errorf("send audio: %w", err)
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read prediction: %w", err)
	}

	var result streamResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parse prediction: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("emotion stream error: %s", result.Error)
	}

	emotions := make(map[string]float64)
	for _, pred := range result.Prosody.Predictions {
		for _, e := range pred.Emotions {
			if isTracked(e.Name) {
				emotions[e.Name] = e.Score
			}
		}
	}
	return emotions, nil
}
