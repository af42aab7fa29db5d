package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	ferrors "github.com/figurechat/figurechat/internal/errors"
	"github.com/figurechat/figurechat/internal/llm"
	"github.com/figurechat/figurechat/internal/search"
)

type chatRequest struct {
	FigureID  string `json:"figure_id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// source is the passage provenance attached to the done event.
type source struct {
	DocumentID string   `json:"document_id"`
	Filename   string   `json:"filename"`
	Similarity float64  `json:"similarity"`
	TopWords   []string `json:"top_words,omitempty"`
}

// handleChat retrieves passages for the message and streams the figure's
// reply as SSE token events. The conversation is updated only after the
// reply completes; a cancelled stream leaves history untouched.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, ferrors.Validation("message must not be empty"))
		return
	}

	fig, err := s.figures.Get(req.FigureID)
	if err != nil {
		writeError(w, err)
		return
	}

	conv, err := s.resolveSession(req.SessionID, req.FigureID)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()

	// Rewriting folds conversation context into the retrieval query; chat
	// still sees the user's literal message.
	retrievalQuery := req.Message
	if s.cfg.LLM.RewriteQueries && len(conv.Messages) > 0 {
		retrievalQuery = s.llm.RewriteQuery(ctx, req.Message, conv.Messages)
	}

	results, err := s.engine.Search(ctx, req.FigureID, retrievalQuery, s.cfg.Search.DefaultNResults)
	if err != nil {
		writeError(w, err)
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, err)
		return
	}

	messages := buildChatMessages(fig.Name, fig.Persona, results, conv.Messages, req.Message)

	reply, err := s.llm.ChatStream(ctx, messages, func(token string) error {
		return sse.Send("token", map[string]string{"token": token})
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Debug("chat stream cancelled",
				slog.String("session_id", conv.ID))
			return
		}
		_ = sse.Send("error", errorBody{Error: err.Error(), Code: ferrors.GetCode(err)})
		return
	}

	if _, err := s.sessions.Append(conv.ID, llm.RoleUser, req.Message); err != nil {
		slog.Warn("appending user message failed", slog.String("error", err.Error()))
	}
	if _, err := s.sessions.Append(conv.ID, llm.RoleAssistant, reply); err != nil {
		slog.Warn("appending reply failed", slog.String("error", err.Error()))
	}

	sources := make([]source, 0, len(results))
	for _, res := range results {
		sources = append(sources, source{
			DocumentID: res.DocumentID,
			Filename:   res.Metadata.OriginalFilename,
			Similarity: res.CosineSimilarity,
			TopWords:   res.TopMatchingWords,
		})
	}
	_ = sse.Send("done", map[string]any{
		"session_id": conv.ID,
		"sources":    sources,
	})
}

func (s *Server) resolveSession(sessionID, figureID string) (conv *sessionSnapshot, err error) {
	if sessionID != "" {
		c, err := s.sessions.Get(sessionID)
		if err != nil {
			return nil, err
		}
		if c.FigureID != figureID {
			return nil, ferrors.Validation("session belongs to a different figure")
		}
		return &sessionSnapshot{ID: c.ID, Messages: c.Messages}, nil
	}

	c, err := s.sessions.Create(figureID)
	if err != nil {
		return nil, err
	}
	return &sessionSnapshot{ID: c.ID, Messages: c.Messages}, nil
}

type sessionSnapshot struct {
	ID       string
	Messages []llm.Message
}

// buildChatMessages assembles the system prompt from the persona and the
// retrieved passages, then appends history and the new user message.
func buildChatMessages(name, persona string, results []search.Result, history []llm.Message, userMessage string) []llm.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s. Stay in character and answer as they would.\n", name)
	if persona != "" {
		sb.WriteString(persona)
		sb.WriteString("\n")
	}

	if len(results) > 0 {
		sb.WriteString("\nDraw on these passages from your writings and records when relevant:\n")
		for i, res := range results {
			fmt.Fprintf(&sb, "\n[%d] %s\n", i+1, res.Text)
		}
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: sb.String()})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userMessage})
	return messages
}
