package services

import (
	"context"
	"fmt"
	"strings"

	"llm-chatbot/internal/ai"
	"llm-chatbot/internal/conversation"
	"llm-chatbot/internal/logger"
	"llm-chatbot/models"
	"llm-chatbot/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// ChatService answers prompts with the loaded model, optionally grounding
// them in retrieved documents, and records each turn in the log.
type ChatService struct {
	model        ai.Generator
	retriever    Retriever
	log          *conversation.Log
	topK         int
	archive      HistoryReader
	archiveLimit int
}

// DefaultArchiveHistoryLimit caps how many archived entries History returns.
const DefaultArchiveHistoryLimit = 100

// HistoryReader reads persisted turns. The conversation archive implements it.
type HistoryReader interface {
	History(ctx context.Context, sessionID string, limit int) ([]models.Entry, error)
}

// NewChatService wires the chat path. A nil model puts the service in
// degraded mode. A nil retriever selects plain mode.
func NewChatService(model ai.Generator, retriever Retriever, log *conversation.Log, topK int) *ChatService {
	if m, ok := model.(*ai.Model); ok && m == nil {
		model = nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &ChatService{model: model, retriever: retriever, log: log, topK: topK}
}

// ModelLoaded reports whether generation is available.
func (s *ChatService) ModelLoaded() bool { return s.model != nil }

// RAGEnabled reports whether prompts are augmented with retrieved context.
func (s *ChatService) RAGEnabled() bool { return s.retriever != nil }

// BuildRAGPrompt joins the retrieved texts with single spaces and frames them
// with the query.
func BuildRAGPrompt(contexts []string, query string) string {
	return fmt.Sprintf("Context: %s Query: %s", strings.Join(contexts, " "), query)
}

// Chat generates a response for prompt in the given session. The user turn is
// logged before generation and stays in the log even when generation fails.
func (s *ChatService) Chat(ctx context.Context, sessionID, prompt string) (string, error) {
	ctx, span := otel.Tracer("chat").Start(ctx, "chat.respond")
	defer span.End()
	span.SetAttributes(
		attribute.String("chat.session_id", sessionID),
		attribute.Bool("chat.rag", s.RAGEnabled()),
	)

	if s.model == nil {
		return "", utils.NewAppError(utils.KindModelUnavailable, utils.MsgModelUnavailable, nil)
	}

	s.log.Append(sessionID, models.Entry{Role: models.RoleUser, Content: prompt})

	input, maxLength := prompt, ai.PlainMaxLength
	if s.retriever != nil {
		contexts, err := s.retriever.Retrieve(ctx, prompt, s.topK)
		if err != nil {
			span.RecordError(err)
			logger.Error("Retrieval failed", "session_id", sessionID, "error", err)
			if utils.KindOf(err) == utils.KindInternal {
				err = utils.NewAppError(utils.KindUpstream, "Retrieval failed", err)
			}
			return "", err
		}
		input, maxLength = BuildRAGPrompt(contexts, prompt), ai.RAGMaxLength
		span.SetAttributes(attribute.Int("chat.contexts", len(contexts)))
	}

	response, err := s.model.Generate(ctx, input, ai.GenerateOptions{MaxLength: maxLength})
	if err != nil {
		span.RecordError(err)
		logger.Error("Generation failed", "session_id", sessionID, "error", err)
		return "", utils.NewAppError(utils.KindGeneration, utils.MsgGeneration, err)
	}

	s.log.Append(sessionID, models.Entry{Role: models.RoleBot, Content: response})
	return response, nil
}

// UseArchive makes History fall back to r for sessions that are no longer in
// memory, for example after the janitor evicted them.
func (s *ChatService) UseArchive(r HistoryReader, limit int) {
	if limit <= 0 {
		limit = DefaultArchiveHistoryLimit
	}
	s.archive, s.archiveLimit = r, limit
}

// History returns the session's in-memory log, or its archived entries when
// memory holds none.
func (s *ChatService) History(ctx context.Context, sessionID string) ([]models.Entry, error) {
	entries := s.log.Entries(sessionID)
	if len(entries) > 0 || s.archive == nil {
		return entries, nil
	}

	archived, err := s.archive.History(ctx, sessionID, s.archiveLimit)
	if err != nil {
		return nil, utils.NewAppError(utils.KindUpstream, "Failed to read conversation history", err)
	}
	if archived == nil {
		archived = []models.Entry{}
	}
	return archived, nil
}
