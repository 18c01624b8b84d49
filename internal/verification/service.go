// Package verification decides whether a declared employer is legitimate:
// first against the maintained allowlist, then through an AI web search.
package verification

import (
	"context"
	"log/slog"

	"github.com/chatform/chatform/internal/errors"
	"github.com/chatform/chatform/internal/metrics"
	"github.com/chatform/chatform/internal/models"
)

// Service verifies employers
type Service struct {
	allowlist *Allowlist
	search    Searcher
	logger    *slog.Logger
}

// NewService creates a verification service. Either dependency may be nil:
// a nil allowlist never matches and a nil searcher makes misses an error.
func NewService(allowlist *Allowlist, search Searcher) *Service {
	return &Service{
		allowlist: allowlist,
		search:    search,
		logger:    slog.Default().With("component", "verification"),
	}
}

// VerifyEmployer checks the allowlist and falls back to AI search on a miss.
// An allowlist failure degrades to AI search only. A failed or unparseable
// AI search is returned as an error.
func (s *Service) VerifyEmployer(ctx context.Context, q Query) (*models.VerificationResult, error) {
	if q.CompanyName == "" {
		return nil, errors.ValidationError("companyName is required")
	}

	hit, err := s.allowlist.Contains(ctx, q.CompanyName)
	degraded := err != nil
	if degraded {
		s.logger.Warn("allowlist unavailable, using ai search only", "error", err)
	}
	if hit {
		metrics.RecordVerification(string(models.SourceAllowlist), "verified")
		s.logger.Info("employer verified", "company", q.CompanyName, "source", models.SourceAllowlist)
		return &models.VerificationResult{
			Verified:          true,
			Source:            models.SourceAllowlist,
			Explanation:       "The company is on the list of pre-verified employers.",
			AllowlistDegraded: degraded,
		}, nil
	}

	if s.search == nil {
		metrics.RecordVerification(string(models.SourceAISearch), "error")
		return nil, errors.ExternalError(errors.ErrConfig, "company is not on the allowlist and AI search is not configured")
	}

	answer, err := s.search.Search(ctx, q)
	if err != nil {
		metrics.RecordVerification(string(models.SourceAISearch), "error")
		s.logger.Warn("ai search failed", "company", q.CompanyName, "error", err)
		return nil, err
	}

	result := &models.VerificationResult{
		Verified:          answer.Result == "YES",
		Source:            models.SourceAISearch,
		Explanation:       answer.Explanation,
		Search:            answer,
		AllowlistDegraded: degraded,
	}
	if answer.ClosestCompanyName != "" {
		result.ClosestMatch = &models.CompanyMatch{
			Name:    answer.ClosestCompanyName,
			Website: answer.ClosestCompanyWebsite,
		}
	}

	outcome := "not_verified"
	if result.Verified {
		outcome = "verified"
	}
	metrics.RecordVerification(string(models.SourceAISearch), outcome)
	s.logger.Info("employer checked", "company", q.CompanyName, "source", models.SourceAISearch, "verified", result.Verified)
	return result, nil
}
