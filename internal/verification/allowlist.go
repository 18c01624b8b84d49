package verification

import (
	"context"

	"github.com/chatform/chatform/internal/sheets"
)

// AllowlistColumn is the sheet column holding company names
const AllowlistColumn = "company_name"

// Allowlist is the maintained list of pre-verified employers
type Allowlist struct {
	source *sheets.Source
}

// NewAllowlist creates an allowlist backed by a sheet source
func NewAllowlist(source *sheets.Source) *Allowlist {
	return &Allowlist{source: source}
}

// Contains reports whether companyName matches an allowlisted employer.
// The error is non-nil when the sheet could not be refreshed; the answer is
// then based on the last good copy, possibly empty.
func (a *Allowlist) Contains(ctx context.Context, companyName string) (bool, error) {
	if a == nil || a.source == nil || !a.source.Configured() {
		return false, nil
	}
	needle := NormalizeCompanyName(companyName)
	if needle == "" {
		return false, nil
	}

	names, err := a.source.Column(ctx, AllowlistColumn, NormalizeCompanyName)
	_, ok := names[needle]
	return ok, err
}
