// Package insight turns a dashboard report into short prose via an
// OpenAI-compatible chat-completions API. It does no analysis of its
// own; all numbers come from the analytics engine.
package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tmajkow/coursepulse/internal/analytics"
)

// Generator produces creator-facing insight text for a report.
type Generator interface {
	Generate(ctx context.Context, report *analytics.DashboardReport) (string, error)
}

// Client calls an OpenAI-compatible chat-completions endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewClient creates an insight client. baseURL is the API root
// (e.g. "https://api.openai.com/v1"); the chat-completions path is
// appended.
func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

const systemPrompt = "You are an analytics assistant for online course creators. " +
	"Summarize the metrics you are given in two short paragraphs of plain, " +
	"encouraging English. Mention specific numbers. Do not invent data."

// Generate produces insight text for a report.
func (c *Client) Generate(ctx context.Context, report *analytics.DashboardReport) (string, error) {
	summary, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(summary)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("insight request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read insight response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("insight API returned status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode insight response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("insight API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("insight API returned no content")
	}

	return parsed.Choices[0].Message.Content, nil
}
