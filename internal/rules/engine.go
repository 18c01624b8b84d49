// Package rules runs the red-flag detection rules over an application.
package rules

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chatform/chatform/internal/geo"
	"github.com/chatform/chatform/internal/metrics"
	"github.com/chatform/chatform/internal/models"
	"github.com/chatform/chatform/internal/sheets"
)

// Rule inspects an application and returns a red flag, or nil when it passes
type Rule interface {
	ID() models.RuleID
	Check(ctx context.Context, app *models.ApplicationSnapshot) (*models.RedFlag, error)
}

// Engine runs rules concurrently and reports flags in rule order
type Engine struct {
	rules  []Rule
	logger *slog.Logger
}

// NewEngine creates an engine over rules
func NewEngine(rules ...Rule) *Engine {
	return &Engine{
		rules:  rules,
		logger: slog.Default().With("component", "rules"),
	}
}

// Deps are the collaborators of the standard rule set. Rules whose
// collaborator is nil are left out.
type Deps struct {
	Blacklist *sheets.Source
	Verifier  EmployerVerifier
	Geocoder  geo.Geocoder
	LimitKm   float64
}

// NewDefaultEngine builds the standard rule set in its reporting order:
// blacklist, employer, distance, political exposure, source of funds.
func NewDefaultEngine(deps Deps) *Engine {
	logger := slog.Default().With("component", "rules")
	var rules []Rule
	if deps.Blacklist != nil && deps.Blacklist.Configured() {
		rules = append(rules, NewBlacklistRule(deps.Blacklist))
	} else {
		logger.Warn("blacklist sheet not configured, blacklist_check disabled")
	}
	if deps.Verifier != nil {
		rules = append(rules, NewEmployerRule(deps.Verifier))
	} else {
		logger.Warn("employer verification not configured, employer_verification_check disabled")
	}
	if deps.Geocoder != nil {
		rules = append(rules, NewDistanceRule(deps.Geocoder, deps.LimitKm))
	} else {
		logger.Warn("geocoding not configured, distance_check disabled")
	}
	rules = append(rules, PoliticalExposureRule{}, NewSourceOfFundsRule(nil))
	return &Engine{rules: rules, logger: logger}
}

// Rules returns the ids of the configured rules, in order
func (e *Engine) Rules() []models.RuleID {
	ids := make([]models.RuleID, len(e.rules))
	for i, r := range e.rules {
		ids[i] = r.ID()
	}
	return ids
}

// Validate runs every rule. A rule that fails is logged and treated as
// passing; only cancellation of ctx fails the whole validation.
func (e *Engine) Validate(ctx context.Context, app *models.ApplicationSnapshot) ([]models.RedFlag, error) {
	start := time.Now()
	results := make([]*models.RedFlag, len(e.rules))

	g, gctx := errgroup.WithContext(ctx)
	for i, rule := range e.rules {
		i, rule := i, rule
		g.Go(func() error {
			flag, err := rule.Check(gctx, app)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				e.logger.Warn("rule failed, treating as passed", "rule", rule.ID(), "error", err)
				return nil
			}
			results[i] = flag
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	flags := make([]models.RedFlag, 0, len(results))
	for _, f := range results {
		if f == nil {
			continue
		}
		metrics.RecordRedFlag(string(f.Rule))
		flags = append(flags, *f)
	}

	e.logger.Info("application validated",
		"rules", len(e.rules),
		"red_flags", len(flags),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return flags, nil
}
