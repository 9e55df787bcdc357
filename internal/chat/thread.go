package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/modelgate/modelgate/internal/models"
	"github.com/modelgate/modelgate/internal/providers"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// SendInput is one user turn appended to a thread.
type SendInput struct {
	Content      string
	PreferenceID *uint64
}

// SendMessage appends the user message to the thread, generates the
// assistant reply over the full conversation context, and persists it.
func (s *Service) SendMessage(ctx context.Context, userID, threadID uint64, in SendInput) (*models.Message, error) {
	thread, _, req, resolution, errPrepare := s.prepareTurn(userID, threadID, in)
	if errPrepare != nil {
		return nil, errPrepare
	}

	result, errGen := resolution.Client.GenerateConversation(ctx, *req)
	if errGen != nil {
		return nil, errGen
	}

	cost, _, errPrice := s.calculator.Compute(result.Tokens.PromptTokens, result.Tokens.CompletionTokens, resolution.Client.Code(), req.Model, in.PreferenceID, false)
	if errPrice != nil {
		log.WithError(errPrice).Warn("chat: thread pricing failed, using provider estimate")
		cost = result.Cost
	}

	assistant, errPersist := s.persistAssistant(thread, result.Text, result.Tokens, cost, in.PreferenceID, nil)
	if errPersist != nil {
		return nil, errPersist
	}

	go s.recorder.Record(userID, thread.ProviderID, thread.ModelID, result.Tokens, cost, time.Now())
	s.bumpPreference(in.PreferenceID)
	return assistant, nil
}

// StreamEvent is one server-sent increment of a streamed thread turn.
type StreamEvent struct {
	Delta   string                 `json:"delta,omitempty"`
	Done    bool                   `json:"done,omitempty"`
	Message *models.Message        `json:"message,omitempty"`
	Err     *providers.ClientError `json:"error,omitempty"`
}

// StreamMessage is the streaming variant of SendMessage. Deltas arrive
// on the returned channel; when the caller's context is cancelled the
// partial text accumulated so far is still persisted as the assistant
// message, marked stopped_early. A mid-stream provider error is the
// stream's only terminal event and the failed turn is never billed.
func (s *Service) StreamMessage(ctx context.Context, userID, threadID uint64, in SendInput) (<-chan StreamEvent, error) {
	thread, _, req, resolution, errPrepare := s.prepareTurn(userID, threadID, in)
	if errPrepare != nil {
		return nil, errPrepare
	}

	chunks, errOpen := resolution.Client.StreamConversation(ctx, *req)
	if errOpen != nil {
		return nil, errOpen
	}

	out := make(chan StreamEvent)
	go func() {
		defer close(out)

		var text string
		var tokens providers.TokenUsage
		var cost float64
		var streamErr *providers.ClientError
		stopped := true

		for chunk := range chunks {
			if chunk.Err != nil {
				stopped = false
				streamErr = chunk.Err
				s.finishStream(ctx, out, StreamEvent{Done: true, Err: chunk.Err})
				break
			}
			if chunk.Done {
				stopped = false
				if chunk.Tokens != nil {
					tokens = *chunk.Tokens
				}
				cost = chunk.Cost
				break
			}
			text += chunk.Delta
			if !s.forwardDelta(ctx, out, chunk.Delta) {
				break
			}
		}
		if streamErr != nil {
			// The error event above is the stream's only terminal. Keep
			// the text the consumer already saw so the thread stays
			// coherent, but a failed turn is never billed and never
			// bumps the preference.
			if text == "" {
				return
			}
			partial := providers.TokenUsage{
				CompletionTokens: resolution.Client.CountTokens(text, req.Model).Count,
			}
			partial.TotalTokens = partial.CompletionTokens
			_, errPersist := s.persistAssistant(thread, text, partial, 0, in.PreferenceID, failedStreamMetadata(streamErr.Type))
			if errPersist != nil {
				log.WithError(errPersist).Error("chat: persist streamed message failed")
			}
			return
		}
		if ctx.Err() != nil {
			stopped = true
		}

		if text == "" && stopped {
			// Nothing arrived before cancellation, nothing to keep.
			return
		}

		if tokens.TotalTokens == 0 && text != "" {
			tokens = providers.TokenUsage{
				CompletionTokens: resolution.Client.CountTokens(text, req.Model).Count,
			}
			tokens.TotalTokens = tokens.PromptTokens + tokens.CompletionTokens
		}
		if cost == 0 {
			priced, _, errPrice := s.calculator.Compute(tokens.PromptTokens, tokens.CompletionTokens, resolution.Client.Code(), req.Model, in.PreferenceID, false)
			if errPrice == nil {
				cost = priced
			}
		}

		var metadata = datatypesJSONOrNil(stopped)
		assistant, errPersist := s.persistAssistant(thread, text, tokens, cost, in.PreferenceID, metadata)
		if errPersist != nil {
			log.WithError(errPersist).Error("chat: persist streamed message failed")
			return
		}

		go s.recorder.Record(userID, thread.ProviderID, thread.ModelID, tokens, cost, time.Now())
		s.bumpPreference(in.PreferenceID)
		if !stopped {
			s.finishStream(ctx, out, StreamEvent{Done: true, Message: assistant})
		}
	}()
	return out, nil
}

// prepareTurn validates the thread, persists the user message, and
// builds the provider request from the full conversation history.
func (s *Service) prepareTurn(userID, threadID uint64, in SendInput) (*models.Thread, *models.Message, *providers.Request, *providers.Resolution, error) {
	thread, errLoad := s.loadThread(userID, threadID)
	if errLoad != nil {
		return nil, nil, nil, nil, errLoad
	}

	resolution, errResolve := s.resolver.ResolveByProviderID(userID, thread.ProviderID)
	if errResolve != nil {
		return nil, nil, nil, nil, errResolve
	}

	userMsg := &models.Message{
		ThreadID: thread.ID,
		Role:     models.RoleUser,
		Content:  in.Content,
	}
	if errValidate := userMsg.Validate(); errValidate != nil {
		return nil, nil, nil, nil, errValidate
	}
	if errCreate := s.db.Create(userMsg).Error; errCreate != nil {
		return nil, nil, nil, nil, fmt.Errorf("chat: persist user message: %w", errCreate)
	}
	s.touchThread(thread.ID)

	history, errHistory := s.threadContext(thread.ID)
	if errHistory != nil {
		return nil, nil, nil, nil, errHistory
	}

	req := &providers.Request{
		Model:       thread.Model.Code,
		Messages:    history,
		MaxTokens:   thread.MaxTokens,
		Temperature: thread.Temperature,
	}
	s.applyTurnPreference(userID, resolution, req, in.PreferenceID)
	return thread, userMsg, req, resolution, nil
}

// applyTurnPreference overlays preference settings onto a thread turn;
// thread-level settings win over preference defaults.
func (s *Service) applyTurnPreference(userID uint64, resolution *providers.Resolution, req *providers.Request, preferenceID *uint64) {
	pref := s.lookupPreference(userID, resolution, preferenceID)
	if pref == nil {
		return
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = pref.MaxTokens
	}
	if pref.SystemPrompt != "" {
		req.SystemPrompt = pref.SystemPrompt
	}
}

// persistAssistant stores the assistant reply and refreshes the thread
// activity timestamp.
func (s *Service) persistAssistant(thread *models.Thread, text string, tokens providers.TokenUsage, cost float64, preferenceID *uint64, metadata datatypes.JSON) (*models.Message, error) {
	providerID := thread.ProviderID
	modelID := thread.ModelID
	msg := &models.Message{
		ThreadID:          thread.ID,
		Role:              models.RoleAssistant,
		Content:           text,
		TokensPrompt:      int64(tokens.PromptTokens),
		TokensCompletion:  int64(tokens.CompletionTokens),
		TokensTotal:       int64(tokens.TotalTokens),
		ProviderID:        &providerID,
		ModelID:           &modelID,
		Cost:              cost,
		ModelPreferenceID: preferenceID,
		Metadata:          metadata,
	}
	if errCreate := s.db.Create(msg).Error; errCreate != nil {
		return nil, fmt.Errorf("chat: persist assistant message: %w", errCreate)
	}
	s.touchThread(thread.ID)
	return msg, nil
}

// touchThread stamps last_message_at. Best effort.
func (s *Service) touchThread(threadID uint64) {
	errUpdate := s.db.Model(&models.Thread{}).
		Where("id = ?", threadID).
		Update("last_message_at", time.Now().UTC()).Error
	if errUpdate != nil {
		log.WithError(errUpdate).Warn("chat: thread touch failed")
	}
}

// forwardDelta delivers one delta to the consumer. Reports false when
// the consumer is gone.
func (s *Service) forwardDelta(ctx context.Context, out chan<- StreamEvent, delta string) bool {
	select {
	case out <- StreamEvent{Delta: delta}:
		return true
	case <-ctx.Done():
		return false
	}
}

// finishStream delivers the terminal event unless the consumer is gone.
func (s *Service) finishStream(ctx context.Context, out chan<- StreamEvent, event StreamEvent) {
	select {
	case out <- event:
	case <-ctx.Done():
	}
}

// datatypesJSONOrNil returns stopped-early metadata when stopped.
func datatypesJSONOrNil(stopped bool) datatypes.JSON {
	if !stopped {
		return nil
	}
	return stoppedEarlyMetadata()
}
