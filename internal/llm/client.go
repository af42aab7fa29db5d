// Package llm talks to an OpenAI-compatible chat completions endpoint.
// Responses stream token by token; transport failures are not auto-retried.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/figurechat/figurechat/internal/config"
	ferrors "github.com/figurechat/figurechat/internal/errors"
)

// Chat message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client streams chat completions from an OpenAI-compatible endpoint.
type Client struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
}

// NewClient creates a client from the LLM configuration.
func NewClient(cfg config.LLMConfig) *Client {
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		// Streaming responses can outlive a per-request timeout; the
		// transport timeout guards dial and header receipt, the caller's
		// context bounds the stream.
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: timeout,
			},
		},
	}
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ChatStream sends the messages and streams the reply, calling onToken for
// each content delta. It returns the assembled reply. A non-nil error from
// onToken cancels the stream and is returned unchanged.
func (c *Client) ChatStream(ctx context.Context, messages []Message, onToken func(string) error) (string, error) {
	body, err := json.Marshal(chatRequest{Model: c.model, Messages: messages, Stream: true})
	if err != nil {
		return "", ferrors.Transport("encoding chat request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", ferrors.Transport("building chat request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", ferrors.Transport("chat request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", ferrors.Transport(
			fmt.Sprintf("chat endpoint returned %d: %s",
				resp.StatusCode, strings.TrimSpace(string(msg))), nil)
	}

	var sb strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			slog.Warn("skipping malformed stream chunk", slog.String("error", err.Error()))
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		token := chunk.Choices[0].Delta.Content
		if token == "" {
			token = chunk.Choices[0].Message.Content
		}
		if token == "" {
			continue
		}

		sb.WriteString(token)
		if onToken != nil {
			if err := onToken(token); err != nil {
				return sb.String(), err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return sb.String(), ferrors.Transport("reading chat stream", err)
	}

	return sb.String(), nil
}

// Chat is ChatStream without a token callback.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	return c.ChatStream(ctx, messages, nil)
}

const rewritePrompt = `Rewrite the user's latest message as a standalone search query. Use the conversation for missing context. Reply with the query only, no explanation.`

// RewriteQuery asks the model to turn the latest user message into a
// self-contained retrieval query. Any failure falls back to the raw query;
// rewriting is an optimization, never a gate.
func (c *Client) RewriteQuery(ctx context.Context, query string, history []Message) string {
	rctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: RoleSystem, Content: rewritePrompt})
	messages = append(messages, history...)
	messages = append(messages, Message{Role: RoleUser, Content: query})

	rewritten, err := c.Chat(rctx, messages)
	if err != nil {
		slog.Warn("query rewrite failed, using raw query", slog.String("error", err.Error()))
		return query
	}

	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		return query
	}
	return rewritten
}
