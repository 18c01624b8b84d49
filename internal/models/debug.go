package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DebugInfo is the per-rule diagnostic payload attached to a red flag.
// The set of variants is closed; DecodeDebugInfo picks one by rule id.
type DebugInfo interface {
	Rule() RuleID
	// Summary is a compact, model-facing description of what the rule found.
	Summary() string
	isDebugInfo()
}

// AddressPoint is one geocoded address. Lat/Lng are nil when geocoding failed.
type AddressPoint struct {
	Address string   `json:"address"`
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
}

// DistanceDebug explains a distance_check result
type DistanceDebug struct {
	CurrentAddress AddressPoint `json:"currentAddress"`
	CompanyAddress AddressPoint `json:"companyAddress"`
	DistanceKm     *float64     `json:"distance_km"`
	LimitKm        float64      `json:"limit_km,omitempty"`
}

func (DistanceDebug) Rule() RuleID { return RuleDistance }
func (DistanceDebug) isDebugInfo() {}

func (d DistanceDebug) Summary() string {
	if d.DistanceKm == nil {
		return fmt.Sprintf("Geocoding could not locate one of the addresses (home: %q, work: %q).",
			d.CurrentAddress.Address, d.CompanyAddress.Address)
	}
	limit := d.LimitKm
	if limit == 0 {
		limit = 150
	}
	return fmt.Sprintf("Home %q and work %q are %.1f km apart (limit %.0f km).",
		d.CurrentAddress.Address, d.CompanyAddress.Address, *d.DistanceKm, limit)
}

// AISearchResult is the structured answer of the AI web search provider
type AISearchResult struct {
	Result                string `json:"result"`
	Explanation           string `json:"explanation"`
	ClosestCompanyName    string `json:"closest_company_name,omitempty"`
	ClosestCompanyWebsite string `json:"closest_company_website,omitempty"`
}

// EmployerDebug explains an employer_verification_check result
type EmployerDebug struct {
	Passed       bool            `json:"passed"`
	PassedBy     string          `json:"passed_by"`
	AllowlistHit bool            `json:"allowlistHit"`
	AISearch     *AISearchResult `json:"aiSearch,omitempty"`
	Error        string          `json:"error,omitempty"`
}

func (EmployerDebug) Rule() RuleID { return RuleEmployerVerification }
func (EmployerDebug) isDebugInfo() {}

func (d EmployerDebug) Summary() string {
	var sb strings.Builder
	if d.AllowlistHit {
		sb.WriteString("Allowlist: match.")
	} else {
		sb.WriteString("Allowlist: no match.")
	}
	switch {
	case d.AISearch != nil:
		sb.WriteString(fmt.Sprintf(" AI web search: %s (%s).", d.AISearch.Result, d.AISearch.Explanation))
		if d.AISearch.ClosestCompanyName != "" {
			sb.WriteString(fmt.Sprintf(" Closest company found: %s", d.AISearch.ClosestCompanyName))
			if d.AISearch.ClosestCompanyWebsite != "" {
				sb.WriteString(fmt.Sprintf(" (%s)", d.AISearch.ClosestCompanyWebsite))
			}
			sb.WriteString(".")
		}
	case d.Error != "":
		sb.WriteString(" AI web search was inconclusive: " + d.Error + ".")
	}
	return sb.String()
}

// PoliticalExposureDebug explains a political_exposure_check result
type PoliticalExposureDebug struct {
	Response         string `json:"response"`
	Explanation      string `json:"explanation"`
	ChatMessageCount int    `json:"chatMessageCount"`
}

func (PoliticalExposureDebug) Rule() RuleID { return RulePoliticalExposure }
func (PoliticalExposureDebug) isDebugInfo() {}

func (d PoliticalExposureDebug) Summary() string {
	return fmt.Sprintf("Pre-screening answer %q after %d messages: %s", d.Response, d.ChatMessageCount, d.Explanation)
}

// SourceOfFundsDebug explains a source_of_funds_alignment_check result
type SourceOfFundsDebug struct {
	EmploymentType string   `json:"employmentType"`
	SourceOfFunds  string   `json:"sourceOfFunds"`
	AllowedSources []string `json:"allowedSources,omitempty"`
	Reason         string   `json:"reason,omitempty"`
}

func (SourceOfFundsDebug) Rule() RuleID { return RuleSourceOfFunds }
func (SourceOfFundsDebug) isDebugInfo() {}

func (d SourceOfFundsDebug) Summary() string {
	if len(d.AllowedSources) == 0 {
		return fmt.Sprintf("Employment type %q is not in the alignment matrix (declared source %q).", d.EmploymentType, d.SourceOfFunds)
	}
	return fmt.Sprintf("Declared source %q is not typical for %q. Typical sources: %s.",
		d.SourceOfFunds, d.EmploymentType, strings.Join(d.AllowedSources, ", "))
}

// DecodeDebugInfo decodes raw into the variant for rule.
// Rules without a debug variant yield nil.
func DecodeDebugInfo(rule RuleID, raw json.RawMessage) (DebugInfo, error) {
	var (
		info DebugInfo
		err  error
	)
	switch rule {
	case RuleDistance:
		var d DistanceDebug
		err = json.Unmarshal(raw, &d)
		info = d
	case RuleEmployerVerification:
		var d EmployerDebug
		err = json.Unmarshal(raw, &d)
		info = d
	case RulePoliticalExposure:
		var d PoliticalExposureDebug
		err = json.Unmarshal(raw, &d)
		info = d
	case RuleSourceOfFunds:
		var d SourceOfFundsDebug
		err = json.Unmarshal(raw, &d)
		info = d
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode debug info: %w", err)
	}
	return info, nil
}
