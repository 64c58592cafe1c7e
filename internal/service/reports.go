package service

import (
	"context"
	"time"

	"aynpos/backend/internal/domain"
)

const reportCacheTTL = 2 * time.Minute

func reportCacheKey(day time.Time) string {
	return "report:daily:" + day.UTC().Format("2006-01-02")
}

// DailyReport aggregates one calendar day from the ledger. Results are
// cached briefly; any sale or refund written for that day invalidates the
// cached entry.
func (s *Service) DailyReport(ctx context.Context, day time.Time) (*domain.DailyReport, error) {
	if day.IsZero() {
		day = time.Now().UTC()
	}
	key := reportCacheKey(day)

	if cached, ok, err := s.reports.Get(ctx, key); err == nil && ok {
		return cached, nil
	} else if err != nil {
		s.log.Warn("report cache read failed", "key", key, "err", err)
	}

	report, err := s.repo.GetDailyReport(ctx, day)
	if err != nil {
		return nil, err
	}
	if err := s.reports.Set(ctx, key, report, reportCacheTTL); err != nil {
		s.log.Warn("report cache write failed", "key", key, "err", err)
	}
	return report, nil
}

func (s *Service) invalidateDailyReport(ctx context.Context, at time.Time) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if err := s.reports.Invalidate(ctx, reportCacheKey(at)); err != nil {
		s.log.Warn("report cache invalidation failed", "err", err)
	}
}
