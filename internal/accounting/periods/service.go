package periods

import (
	"context"
	"time"
)

// Service resolves the fiscal year stamped on ledger lines.
type Service struct {
	repo     Repository
	fallback string
}

// NewService builds the resolver. fallback is the configured company-wide
// default used when the acting user has none saved.
func NewService(repo Repository, fallback string) *Service {
	return &Service{repo: repo, fallback: fallback}
}

// DefaultFiscalYear resolves, in order, the user's saved default, the
// configured default, and the fiscal year containing date.
func (s *Service) DefaultFiscalYear(ctx context.Context, userID string, date time.Time) (string, error) {
	value, err := s.repo.UserDefault(ctx, userID, UserDefaultFiscalYear)
	if err != nil {
		return "", err
	}
	if value != "" {
		return value, nil
	}
	if s.fallback != "" {
		return s.fallback, nil
	}
	fy, err := s.repo.FindFiscalYearByDate(ctx, date)
	if err != nil {
		return "", err
	}
	return fy.Name, nil
}
