// Package chat orchestrates conversations: it resolves provider clients,
// consults the response cache, persists messages, and schedules usage
// accounting.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/modelgate/modelgate/internal/cache"
	"github.com/modelgate/modelgate/internal/models"
	"github.com/modelgate/modelgate/internal/pricing"
	"github.com/modelgate/modelgate/internal/providers"
	"github.com/modelgate/modelgate/internal/usage"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrThreadNotFound indicates a thread that does not exist or is not
// owned by the requesting user.
var ErrThreadNotFound = errors.New("thread not found")

// Service wires the generation pipeline together.
type Service struct {
	db         *gorm.DB
	resolver   *providers.Resolver
	calculator *pricing.Calculator
	recorder   *usage.Recorder
	responses  *cache.ResponseCache
}

// NewService constructs a chat Service. responses may be nil to disable
// response caching.
func NewService(db *gorm.DB, resolver *providers.Resolver, calculator *pricing.Calculator, recorder *usage.Recorder, responses *cache.ResponseCache) *Service {
	return &Service{
		db:         db,
		resolver:   resolver,
		calculator: calculator,
		recorder:   recorder,
		responses:  responses,
	}
}

// CompletionInput is a one-shot generation request outside any thread.
type CompletionInput struct {
	ProviderCode string
	Model        string
	Prompt       string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	PreferenceID *uint64
}

// CompletionOutput carries the generation result plus cache provenance.
type CompletionOutput struct {
	Result  providers.Result `json:"result"`
	Cached  bool             `json:"cached"`
	Pricing pricing.Trace    `json:"pricing"`
}

// Complete runs a single completion. The response cache is consulted
// first; on a hit the provider is never called and the avoided cost is
// recorded as savings.
func (s *Service) Complete(ctx context.Context, userID uint64, in CompletionInput) (*CompletionOutput, error) {
	resolution, errResolve := s.resolve(userID, in.ProviderCode, in.Model)
	if errResolve != nil {
		return nil, errResolve
	}
	s.applyPreference(userID, resolution, &in)

	key := cache.Key(string(resolution.Client.Code()), in.Model, in.Prompt, in.SystemPrompt, in.MaxTokens, in.Temperature)
	if hit := s.responses.Get(ctx, key); hit != nil {
		cost, trace, errPrice := s.calculator.Compute(hit.Tokens.PromptTokens, hit.Tokens.CompletionTokens, resolution.Client.Code(), in.Model, in.PreferenceID, true)
		if errPrice != nil {
			log.WithError(errPrice).Warn("chat: cache hit pricing failed")
			cost = hit.Cost
		}
		go s.recorder.RecordCacheHit(userID, resolution.Provider.ID, s.modelID(resolution, in.Model), int64(hit.Tokens.TotalTokens), hit.Cost-cost, time.Now())
		return &CompletionOutput{
			Result: providers.Result{
				Text:     hit.Text,
				Tokens:   hit.Tokens,
				Cost:     cost,
				Model:    hit.Model,
				Provider: resolution.Client.Code(),
			},
			Cached:  true,
			Pricing: trace,
		}, nil
	}

	result, errGen := resolution.Client.Generate(ctx, providers.Request{
		Model:        in.Model,
		Prompt:       in.Prompt,
		SystemPrompt: in.SystemPrompt,
		MaxTokens:    in.MaxTokens,
		Temperature:  in.Temperature,
	})
	if errGen != nil {
		return nil, errGen
	}

	cost, trace, errPrice := s.calculator.Compute(result.Tokens.PromptTokens, result.Tokens.CompletionTokens, resolution.Client.Code(), in.Model, in.PreferenceID, false)
	if errPrice != nil {
		log.WithError(errPrice).Warn("chat: pricing failed, using provider estimate")
		cost = result.Cost
	} else {
		result.Cost = cost
	}

	s.responses.Put(ctx, key, &cache.CachedResponse{
		Text:   result.Text,
		Tokens: result.Tokens,
		Cost:   cost,
		Model:  result.Model,
	})
	modelID := s.modelID(resolution, in.Model)
	go s.recorder.Record(userID, resolution.Provider.ID, modelID, result.Tokens, cost, time.Now())
	s.bumpPreference(in.PreferenceID)

	return &CompletionOutput{Result: *result, Pricing: trace}, nil
}

// CountTokens resolves a client for the provider and counts tokens.
func (s *Service) CountTokens(userID uint64, providerCode, model, text string) (providers.TokenCount, error) {
	resolution, errResolve := s.resolve(userID, providerCode, model)
	if errResolve != nil {
		return providers.TokenCount{}, errResolve
	}
	return resolution.Client.CountTokens(text, model), nil
}

// resolve picks the resolution path: explicit provider code first,
// model selector second.
func (s *Service) resolve(userID uint64, providerCode, model string) (*providers.Resolution, error) {
	if providerCode != "" {
		return s.resolver.ResolveByProviderCode(userID, providerCode)
	}
	return s.resolver.ResolveByModel(userID, model)
}

// modelID returns the resolved model row id, falling back to a lookup
// by code when resolution started from a provider.
func (s *Service) modelID(resolution *providers.Resolution, modelCode string) uint64 {
	if resolution.Model != nil {
		return resolution.Model.ID
	}
	var model models.AIModel
	errFind := s.db.Where("provider_id = ? AND code = ?", resolution.Provider.ID, modelCode).First(&model).Error
	if errFind != nil {
		return 0
	}
	return model.ID
}

// applyPreference fills unset generation parameters from the explicit
// preference, or from the user's default preference for the credential.
func (s *Service) applyPreference(userID uint64, resolution *providers.Resolution, in *CompletionInput) {
	pref := s.lookupPreference(userID, resolution, in.PreferenceID)
	if pref == nil {
		return
	}
	if in.PreferenceID == nil {
		id := pref.ID
		in.PreferenceID = &id
	}
	if in.MaxTokens <= 0 {
		in.MaxTokens = pref.MaxTokens
	}
	if in.Temperature == 0 {
		in.Temperature = pref.Temperature
	}
	if in.SystemPrompt == "" {
		in.SystemPrompt = pref.SystemPrompt
	}
	if in.Model == "" && pref.Model.Code != "" {
		in.Model = pref.Model.Code
	}
}

// lookupPreference loads the explicit preference, or the default for
// the user's credential, or the default for the provider.
func (s *Service) lookupPreference(userID uint64, resolution *providers.Resolution, preferenceID *uint64) *models.ModelPreference {
	var pref models.ModelPreference
	if preferenceID != nil {
		errFind := s.db.Preload("Model").Where("id = ? AND user_id = ?", *preferenceID, userID).First(&pref).Error
		if errFind != nil {
			return nil
		}
		return &pref
	}
	errFind := s.db.Preload("Model").
		Where("user_id = ? AND credential_id = ? AND is_default = ?", userID, resolution.Credential.ID, true).
		First(&pref).Error
	if errFind == nil {
		return &pref
	}
	errFind = s.db.Preload("Model").
		Where("user_id = ? AND provider_id = ? AND is_default = ?", userID, resolution.Provider.ID, true).
		First(&pref).Error
	if errFind != nil {
		return nil
	}
	return &pref
}

// bumpPreference increments use_count and stamps last_used_at.
// Best effort.
func (s *Service) bumpPreference(preferenceID *uint64) {
	if preferenceID == nil {
		return
	}
	now := time.Now().UTC()
	errUpdate := s.db.Model(&models.ModelPreference{}).
		Where("id = ?", *preferenceID).
		Updates(map[string]any{
			"use_count":    gorm.Expr("use_count + ?", 1),
			"last_used_at": now,
		}).Error
	if errUpdate != nil {
		log.WithError(errUpdate).Warn("chat: preference bump failed")
	}
}

// stoppedEarlyMetadata marks a partially streamed assistant message.
func stoppedEarlyMetadata() datatypes.JSON {
	data, _ := json.Marshal(map[string]any{"stopped_early": true})
	return datatypes.JSON(data)
}

// failedStreamMetadata marks a partial kept after a mid-stream provider
// error, carrying the error classification for later inspection.
func failedStreamMetadata(errType providers.ErrorType) datatypes.JSON {
	data, _ := json.Marshal(map[string]any{
		"stopped_early": true,
		"error_type":    string(errType),
	})
	return datatypes.JSON(data)
}

// loadThread fetches a thread owned by userID.
func (s *Service) loadThread(userID, threadID uint64) (*models.Thread, error) {
	var thread models.Thread
	errFind := s.db.Preload("Model").Where("id = ? AND user_id = ?", threadID, userID).First(&thread).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrThreadNotFound
		}
		return nil, fmt.Errorf("chat: load thread %d: %w", threadID, errFind)
	}
	return &thread, nil
}

// threadContext builds the ordered provider message list from a
// thread's history, oldest first.
func (s *Service) threadContext(threadID uint64) ([]providers.Message, error) {
	var rows []models.Message
	errFind := s.db.Where("thread_id = ?", threadID).Order("created_at ASC, id ASC").Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("chat: load thread messages: %w", errFind)
	}
	out := make([]providers.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, providers.Message{Role: row.Role, Content: row.Content})
	}
	return out, nil
}
