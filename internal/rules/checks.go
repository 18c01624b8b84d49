package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chatform/chatform/internal/geo"
	"github.com/chatform/chatform/internal/models"
	"github.com/chatform/chatform/internal/sheets"
	"github.com/chatform/chatform/internal/verification"
)

// Application fields the rules read
const (
	FieldFirstName      = "firstName"
	FieldLastName       = "lastName"
	FieldCompanyName    = "companyName"
	FieldCompanyWebsite = "companyWebsite"
	FieldCurrentAddress = "currentAddress"
	FieldCompanyAddress = "companyAddress"
	FieldEmploymentType = "employmentType"
	FieldSourceOfFunds  = "sourceOfFunds"
)

// DefaultLimitKm is the home to work distance allowed by distance_check
const DefaultLimitKm = 150.0

// BlacklistRule flags applicants whose full name is on the restricted list
type BlacklistRule struct {
	source *sheets.Source
	logger *slog.Logger
}

func NewBlacklistRule(source *sheets.Source) *BlacklistRule {
	return &BlacklistRule{source: source, logger: slog.Default().With("component", "rules", "rule", models.RuleBlacklist)}
}

func (r *BlacklistRule) ID() models.RuleID { return models.RuleBlacklist }

func (r *BlacklistRule) Check(ctx context.Context, app *models.ApplicationSnapshot) (*models.RedFlag, error) {
	first := strings.TrimSpace(app.String(FieldFirstName))
	last := strings.TrimSpace(app.String(FieldLastName))
	if first == "" || last == "" {
		return nil, nil
	}

	rows, err := r.source.Rows(ctx)
	if err != nil {
		// Fail open on the last good copy, which may be empty.
		r.logger.Warn("blacklist refresh failed", "error", err, "cached_rows", len(rows))
	}

	wantFirst, wantLast := strings.ToLower(first), strings.ToLower(last)
	for _, row := range rows {
		if strings.ToLower(strings.TrimSpace(row["First_name"])) == wantFirst &&
			strings.ToLower(strings.TrimSpace(row["Last_name"])) == wantLast {
			return &models.RedFlag{
				Rule:           models.RuleBlacklist,
				Message:        fmt.Sprintf("Name '%s %s' appears in restricted list", first, last),
				Severity:       models.SeverityHigh,
				AffectedFields: []string{FieldFirstName, FieldLastName},
			}, nil
		}
	}
	return nil, nil
}

// EmployerVerifier verifies a declared employer
type EmployerVerifier interface {
	VerifyEmployer(ctx context.Context, q verification.Query) (*models.VerificationResult, error)
}

// EmployerRule flags employers that cannot be verified. An inconclusive
// verification raises the flag too.
type EmployerRule struct {
	verifier EmployerVerifier
}

func NewEmployerRule(verifier EmployerVerifier) *EmployerRule {
	return &EmployerRule{verifier: verifier}
}

func (r *EmployerRule) ID() models.RuleID { return models.RuleEmployerVerification }

func (r *EmployerRule) Check(ctx context.Context, app *models.ApplicationSnapshot) (*models.RedFlag, error) {
	name := strings.TrimSpace(app.String(FieldCompanyName))
	if name == "" {
		return nil, nil
	}

	result, err := r.verifier.VerifyEmployer(ctx, verification.Query{
		CompanyName:    name,
		CompanyWebsite: strings.TrimSpace(app.String(FieldCompanyWebsite)),
	})
	if err != nil && ctx.Err() != nil {
		return nil, err
	}

	debug := models.EmployerDebug{PassedBy: "none"}
	switch {
	case err != nil:
		debug.Error = err.Error()
	case result.Verified:
		return nil, nil
	default:
		debug.AllowlistHit = result.Source == models.SourceAllowlist
		debug.AISearch = result.Search
	}

	return &models.RedFlag{
		Rule:           models.RuleEmployerVerification,
		Message:        fmt.Sprintf("Could not verify employer '%s'", name),
		Severity:       models.SeverityMedium,
		AffectedFields: []string{FieldCompanyName, FieldCompanyWebsite},
		DebugInfo:      debug,
	}, nil
}

// DistanceRule flags home and work addresses that are too far apart, or
// that cannot be located.
type DistanceRule struct {
	geocoder geo.Geocoder
	limitKm  float64
	logger   *slog.Logger
}

func NewDistanceRule(geocoder geo.Geocoder, limitKm float64) *DistanceRule {
	if limitKm <= 0 {
		limitKm = DefaultLimitKm
	}
	return &DistanceRule{
		geocoder: geocoder,
		limitKm:  limitKm,
		logger:   slog.Default().With("component", "rules", "rule", models.RuleDistance),
	}
}

func (r *DistanceRule) ID() models.RuleID { return models.RuleDistance }

func (r *DistanceRule) Check(ctx context.Context, app *models.ApplicationSnapshot) (*models.RedFlag, error) {
	home := strings.TrimSpace(app.String(FieldCurrentAddress))
	work := strings.TrimSpace(app.String(FieldCompanyAddress))
	if home == "" || work == "" {
		return nil, nil
	}

	debug := models.DistanceDebug{
		CurrentAddress: r.locate(ctx, home),
		CompanyAddress: r.locate(ctx, work),
		LimitKm:        r.limitKm,
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	flag := &models.RedFlag{
		Rule:           models.RuleDistance,
		Severity:       models.SeverityLow,
		AffectedFields: []string{FieldCurrentAddress, FieldCompanyAddress},
	}
	if debug.CurrentAddress.Lat == nil || debug.CompanyAddress.Lat == nil {
		flag.Message = "Could not verify addresses. Please ensure both addresses are valid."
		flag.DebugInfo = debug
		return flag, nil
	}

	km := geo.DistanceKm(
		geo.Point{Lat: *debug.CurrentAddress.Lat, Lng: *debug.CurrentAddress.Lng},
		geo.Point{Lat: *debug.CompanyAddress.Lat, Lng: *debug.CompanyAddress.Lng},
	)
	if km <= r.limitKm {
		return nil, nil
	}
	debug.DistanceKm = &km
	flag.Message = fmt.Sprintf("Home and work addresses are %.1fkm apart (limit: %.0fkm)", km, r.limitKm)
	flag.DebugInfo = debug
	return flag, nil
}

func (r *DistanceRule) locate(ctx context.Context, address string) models.AddressPoint {
	ap := models.AddressPoint{Address: address}
	pt, err := r.geocoder.Geocode(ctx, address)
	if err != nil {
		r.logger.Warn("geocoding failed", "address", address, "error", err)
		return ap
	}
	ap.Lat, ap.Lng = &pt.Lat, &pt.Lng
	return ap
}

// PoliticalExposureRule flags every applicant who answered yes to the
// pre-screening question, whatever the explanation.
type PoliticalExposureRule struct{}

func (PoliticalExposureRule) ID() models.RuleID { return models.RulePoliticalExposure }

func (PoliticalExposureRule) Check(ctx context.Context, app *models.ApplicationSnapshot) (*models.RedFlag, error) {
	ps, err := app.PreScreening()
	if err != nil {
		return nil, err
	}
	if ps == nil || !strings.EqualFold(strings.TrimSpace(ps.Response), "yes") {
		return nil, nil
	}

	preview := ps.Explanation
	if r := []rune(preview); len(r) > 100 {
		preview = string(r[:100])
	}
	return &models.RedFlag{
		Rule:           models.RulePoliticalExposure,
		Message:        fmt.Sprintf("Applicant indicated political exposure: %s...", preview),
		Severity:       models.SeverityHigh,
		AffectedFields: []string{models.PreScreeningKey},
		DebugInfo: models.PoliticalExposureDebug{
			Response:         ps.Response,
			Explanation:      ps.Explanation,
			ChatMessageCount: len(ps.ChatHistory),
		},
	}, nil
}

// DefaultFundsAlignment maps an employment type to the sources of funds
// typical for it.
var DefaultFundsAlignment = map[string][]string{
	"Business Owner":           {"Inheritance", "Savings", "Investments", "Pension", "Business Income"},
	"Government Officer":       {"Salary", "Inheritance", "Savings", "Investments", "Pension"},
	"Self-Employed":            {"Inheritance", "Savings", "Investments", "Pension", "Business Income"},
	"State Enterprise Officer": {"Salary", "Inheritance", "Savings", "Investments", "Pension"},
	"Freelancer":               {"Inheritance", "Savings", "Investments", "Pension", "Salary"},
	"Student":                  {"Inheritance", "Savings", "Investments"},
	"Company Employee":         {"Salary", "Inheritance", "Savings", "Investments"},
	"Politician":               {"Salary", "Inheritance", "Savings", "Investments", "Pension"},
	"Unemployed":               {"Inheritance", "Savings", "Investments", "Pension"},
}

// SourceOfFundsRule flags a declared source of funds that is atypical for
// the employment type.
type SourceOfFundsRule struct {
	alignment map[string][]string
}

// NewSourceOfFundsRule creates the rule. A nil matrix uses DefaultFundsAlignment.
func NewSourceOfFundsRule(alignment map[string][]string) *SourceOfFundsRule {
	if alignment == nil {
		alignment = DefaultFundsAlignment
	}
	return &SourceOfFundsRule{alignment: alignment}
}

func (r *SourceOfFundsRule) ID() models.RuleID { return models.RuleSourceOfFunds }

func (r *SourceOfFundsRule) Check(ctx context.Context, app *models.ApplicationSnapshot) (*models.RedFlag, error) {
	employment := strings.TrimSpace(app.String(FieldEmploymentType))
	source := strings.TrimSpace(app.String(FieldSourceOfFunds))
	if employment == "" || source == "" {
		return nil, nil
	}

	flag := &models.RedFlag{
		Rule:           models.RuleSourceOfFunds,
		Severity:       models.SeverityMedium,
		AffectedFields: []string{FieldEmploymentType, FieldSourceOfFunds},
	}

	allowed, known := r.alignment[employment]
	if !known {
		flag.Message = fmt.Sprintf("Unable to validate source of funds alignment for employment type '%s'", employment)
		flag.DebugInfo = models.SourceOfFundsDebug{
			EmploymentType: employment,
			SourceOfFunds:  source,
			Reason:         "unknown_employment_type",
		}
		return flag, nil
	}

	for _, s := range allowed {
		if s == source {
			return nil, nil
		}
	}
	flag.Message = fmt.Sprintf("The source of funds '%s' doesn't typically align with employment type '%s'. Can you provide more details?", source, employment)
	flag.DebugInfo = models.SourceOfFundsDebug{
		EmploymentType: employment,
		SourceOfFunds:  source,
		AllowedSources: allowed,
	}
	return flag, nil
}
