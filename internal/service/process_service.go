package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"app/internal/metrics"
	"app/internal/model"

	"github.com/rs/zerolog"
)

// ProcessUsage reports the token counts and the cost attributed to one
// chunk. Cost is computed from the tier's configured per-million rates,
// not the provider's invoice.
type ProcessUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	Cost         float64 `json:"cost"`
}

// ProcessResult is the outcome of summarizing one transcript chunk.
type ProcessResult struct {
	Content string       `json:"content"`
	Usage   ProcessUsage `json:"usage"`
	Model   string       `json:"model"`
	Tier    model.Tier   `json:"tier"`
}

// ProcessService runs transcript chunks through the shared AI provider
// on behalf of managed-tier and trial users. BYOK tiers never reach
// this service; they call the provider with their own key from the
// extension.
type ProcessService struct {
	cache    *ConfigCache
	provider *OpenRouterClient
	usage    *UsageService
	logger   zerolog.Logger
}

func NewProcessService(cache *ConfigCache, provider *OpenRouterClient, usage *UsageService, logger zerolog.Logger) *ProcessService {
	return &ProcessService{
		cache:    cache,
		provider: provider,
		usage:    usage,
		logger:   logger.With().Str("service", "ProcessService").Logger(),
	}
}

// ProcessChunk summarizes one transcript chunk for the given user.
//
// The user config and the shared API key are fetched concurrently,
// and both guards run before the provider is called: an ineligible
// tier or a missing key means zero provider calls. The usage write is
// dispatched on a detached goroutine after the result is assembled, so
// the caller never waits on the ledger.
func (s *ProcessService) ProcessChunk(ctx context.Context, extensionUserID, videoID, transcriptChunk, prompt string, requestedMaxTokens int) (*ProcessResult, error) {
	var (
		wg     sync.WaitGroup
		cfg    *model.UserModelConfig
		cfgErr error
		apiKey string
		keyErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		cfg, cfgErr = s.cache.UserConfig(ctx, extensionUserID)
	}()
	go func() {
		defer wg.Done()
		apiKey, keyErr = s.cache.APIKey(ctx)
	}()
	wg.Wait()

	if cfgErr != nil {
		return nil, cfgErr
	}
	if cfg == nil {
		return nil, ErrUserNotFound
	}
	if !cfg.User.Tier.ManagedProcessing() {
		return nil, ErrTierNotEligible
	}
	if cfg.Model == nil {
		s.logger.Error().
			Str("extension_user_id", extensionUserID).
			Str("tier", string(cfg.User.Tier)).
			Msg("No model configured for tier")
		return nil, ErrModelNotFound
	}
	if keyErr != nil {
		return nil, keyErr
	}

	maxTokens := requestedMaxTokens
	if maxTokens <= 0 || maxTokens > cfg.Model.MaxOutputTokens {
		maxTokens = cfg.Model.MaxOutputTokens
	}

	resp, err := s.provider.ChatCompletion(ctx, apiKey, &ChatRequest{
		Model: cfg.Model.ModelID,
		Messages: []ChatMessage{
			{Role: "system", Content: prompt},
			{Role: "user", Content: transcriptChunk},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.3,
	})
	if err != nil {
		var provErr *ProviderError
		if errors.As(err, &provErr) {
			metrics.ProviderCalls.WithLabelValues("upstream_error").Inc()
		} else {
			metrics.ProviderCalls.WithLabelValues("transport_error").Inc()
		}
		return nil, err
	}

	content := resp.Content()
	if content == "" {
		metrics.ProviderCalls.WithLabelValues("empty").Inc()
		s.logger.Error().
			Str("extension_user_id", extensionUserID).
			Str("model", cfg.Model.ModelID).
			Msg("Provider returned a successful response with no content")
		return nil, ErrEmptyCompletion
	}
	metrics.ProviderCalls.WithLabelValues("success").Inc()

	cost := float64(resp.Usage.PromptTokens)/1e6*cfg.Model.CostPer1MInput +
		float64(resp.Usage.CompletionTokens)/1e6*cfg.Model.CostPer1MOutput
	metrics.CostIncurredUSD.Add(cost)

	result := &ProcessResult{
		Content: content,
		Usage: ProcessUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
			Cost:         cost,
		},
		Model: cfg.Model.ModelID,
		Tier:  cfg.User.Tier,
	}

	// The response does not wait on the ledger. The write runs on a
	// context detached from the request so a client disconnect cannot
	// cancel it mid-flight.
	bgCtx := context.WithoutCancel(ctx)
	tokens := int64(resp.Usage.TotalTokens)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().Interface("panic", r).Msg("Usage recording panicked")
			}
		}()
		recordCtx, cancel := context.WithTimeout(bgCtx, 10*time.Second)
		defer cancel()
		_ = s.usage.Record(recordCtx, extensionUserID, videoID, tokens, cost, time.Now())
	}()

	return result, nil
}
