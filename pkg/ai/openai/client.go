// Package openai is a thin client for the OpenAI REST endpoints the
// engine uses outside the realtime relay: moderation, chat completions
// for summarization, and embeddings.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ponohq/pono/pkg/voice/moderation"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"

	summaryModel   = "gpt-4o-mini"
	embeddingModel = "text-embedding-3-small"
)

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option tweaks client construction. Tests use WithBaseURL to point the
// client at a local server.
type Option func(*Client)

func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Moderate classifies text against the moderation endpoint. It satisfies
// moderation.Checker.
func (c *Client) Moderate(ctx context.Context, text string) (moderation.Verdict, error) {
	payload := struct {
		Model string `json:"model"`
		Input string `json:"input"`
	}{Model: "omni-moderation-latest", Input: text}

	var result struct {
		Results []struct {
			Flagged        bool               `json:"flagged"`
			Categories     map[string]bool    `json:"categories"`
			CategoryScores map[string]float64 `json:"category_scores"`
		} `json:"results"`
	}
	if err := c.post(ctx, "/moderations", payload, &result); err != nil {
		return moderation.Verdict{}, err
	}
	if len(result.Results) == 0 {
		return moderation.Verdict{}, fmt.Errorf("moderation returned no results")
	}

	r := result.Results[0]
	return moderation.Verdict{
		Flagged:    r.Flagged,
		Categories: r.Categories,
		Scores:     r.CategoryScores,
	}, nil
}

const summarySystemPrompt = `You are a life coaching AI assistant. Your task is to take this conversation transcript and create a bulleted list of 10 items or less summarizing the most key insights, breakthroughs, actions, or takeaways from the conversation. Write in chronological order of the conversation transcript.

After the summary, append a block listing any action plans the user explicitly agreed to, in exactly this format:

ACTION_ITEMS:
- title | status | description
END_ACTION_ITEMS

Status is "open" or "closed". If no actions were agreed, write "No actions agreed." inside the block.`

// Summarize condenses a session transcript. The returned text carries a
// trailing machine-readable action-item block that the caller parses
// separately.
func (c *Client) Summarize(ctx context.Context, transcriptText string) (string, error) {
	temp := 0.3
	req := chatRequest{
		Model: summaryModel,
		Messages: []chatMessage{
			{Role: "system", Content: summarySystemPrompt},
			{Role: "user", Content: "Create a summary of this conversation:\n\n" + transcriptText},
		},
		Temperature: &temp,
	}

	var resp chatResponse
	if err := c.post(ctx, "/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("summary returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

const profileSystemPrompt = `You are a coaching assistant. Analyze this onboarding conversation and create a bulleted list of 10 items or less summarizing: 1) User's main goals and intentions, 2) Current challenges and pain points, 3) Previous attempts at achieving the goals. Write in third person.`

// ProfileSummary distills an onboarding conversation into the standing
// coaching profile stored on the user.
func (c *Client) ProfileSummary(ctx context.Context, transcriptText string) (string, error) {
	temp := 0.3
	req := chatRequest{
		Model: summaryModel,
		Messages: []chatMessage{
			{Role: "system", Content: profileSystemPrompt},
			{Role: "user", Content: "Create a coaching profile from this conversation:\n\n" + transcriptText},
		},
		Temperature: &temp,
	}

	var resp chatResponse
	if err := c.post(ctx, "/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("profile summary returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	payload := struct {
		Model string `json:"model"`
		Input string `json:"input"`
	}{Model: embeddingModel, Input: text}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/embeddings", payload, &result); err != nil {
		return nil, err
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("embedding returned no data")
	}
	return result.Data[0].Embedding, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, truncate(raw, 200))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
