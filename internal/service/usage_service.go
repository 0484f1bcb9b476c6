package service

import (
	"context"
	"sync"
	"time"

	"app/internal/metrics"
	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

const (
	dedupRetention     = 48 * time.Hour
	dedupPurgeInterval = time.Hour
)

// UsageService is the usage ledger: idempotent per-day video counting
// with additive token/call/cost accumulation. Writes go through the
// repository's atomic insert-or-increment, so concurrent chunk writes
// for one user and day commute.
//
// The video dedup set is process-local and not durable. A restart can
// double-count at most one in-flight video toward videos_processed,
// which is accepted for a best-effort analytics ledger; nothing that
// gates access reads this table.
type UsageService struct {
	repo repository.UsageRepository

	mu        sync.Mutex
	seen      map[string]time.Time
	lastPurge time.Time

	now    func() time.Time
	logger zerolog.Logger
}

// NewUsageService creates a new UsageService. A nil now defaults to
// time.Now.
func NewUsageService(repo repository.UsageRepository, now func() time.Time, logger zerolog.Logger) *UsageService {
	if now == nil {
		now = time.Now
	}
	return &UsageService{
		repo:   repo,
		seen:   make(map[string]time.Time),
		now:    now,
		logger: logger.With().Str("service", "UsageService").Logger(),
	}
}

// Record adds one chunk's usage to the (user, day) aggregate.
// videos_processed increments only the first time a video id is seen
// for that user and day; tokens, api_calls and cost add on every call.
//
// Errors are returned for observability but callers on the request
// path ignore them: usage tracking must never fail a user-facing
// request.
func (s *UsageService) Record(ctx context.Context, extensionUserID, videoID string, tokensUsed int64, costIncurred float64, day time.Time) error {
	day = day.UTC().Truncate(24 * time.Hour)
	key := extensionUserID + "|" + videoID + "|" + day.Format("2006-01-02")

	var videosDelta int64
	s.mu.Lock()
	s.purgeLocked()
	if _, ok := s.seen[key]; !ok {
		s.seen[key] = s.now()
		videosDelta = 1
	}
	s.mu.Unlock()

	err := s.repo.AddUsage(ctx, extensionUserID, day, videosDelta, tokensUsed, 1, costIncurred)
	if err != nil {
		// Un-mark so a later chunk of the same video can still count it.
		if videosDelta == 1 {
			s.mu.Lock()
			delete(s.seen, key)
			s.mu.Unlock()
		}
		metrics.LedgerWriteFailures.Inc()
		s.logger.Error().Err(err).
			Str("extension_user_id", extensionUserID).
			Str("video_id", videoID).
			Msg("Failed to record usage")
		return err
	}

	if videosDelta == 1 {
		metrics.VideosProcessed.Inc()
	}
	return nil
}

// Track records usage a client reports for itself. BYOK tiers call the
// provider directly and never pass through the processing path, so the
// extension posts its own totals here. No video dedup applies; a zero
// video count still reports one video, matching how clients batch per
// summary.
func (s *UsageService) Track(ctx context.Context, extensionUserID string, videosProcessed, tokensUsed int64, costIncurred float64) error {
	if videosProcessed <= 0 {
		videosProcessed = 1
	}
	day := s.now().UTC().Truncate(24 * time.Hour)

	if err := s.repo.AddUsage(ctx, extensionUserID, day, videosProcessed, tokensUsed, 1, costIncurred); err != nil {
		metrics.LedgerWriteFailures.Inc()
		s.logger.Error().Err(err).
			Str("extension_user_id", extensionUserID).
			Msg("Failed to track reported usage")
		return err
	}
	metrics.VideosProcessed.Add(float64(videosProcessed))
	return nil
}

// purgeLocked drops dedup entries past retention. Runs at most once per
// purge interval to keep the hot path cheap. Caller holds mu.
func (s *UsageService) purgeLocked() {
	now := s.now()
	if now.Sub(s.lastPurge) < dedupPurgeInterval {
		return
	}
	s.lastPurge = now
	for k, firstSeen := range s.seen {
		if now.Sub(firstSeen) > dedupRetention {
			delete(s.seen, k)
		}
	}
}

// Stats aggregates a user's lifetime and recent usage.
func (s *UsageService) Stats(ctx context.Context, extensionUserID string) (*model.UsageStats, error) {
	stats, err := s.repo.Stats(ctx, extensionUserID)
	if err != nil {
		s.logger.Error().Err(err).Str("extension_user_id", extensionUserID).Msg("Failed to fetch usage stats")
		return nil, err
	}
	return stats, nil
}

// Analytics returns the per-day usage series for the admin dashboard.
func (s *UsageService) Analytics(ctx context.Context, days int) ([]model.DailyUsage, error) {
	if days <= 0 {
		days = 30
	}
	series, err := s.repo.Analytics(ctx, days)
	if err != nil {
		s.logger.Error().Err(err).Int("days", days).Msg("Failed to fetch usage analytics")
		return nil, err
	}
	return series, nil
}
