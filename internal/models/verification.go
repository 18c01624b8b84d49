package models

import "fmt"

// VerificationSource names the check that decided a verification
type VerificationSource string

const (
	SourceAllowlist VerificationSource = "allowlist"
	SourceAISearch  VerificationSource = "ai_search"
)

// CompanyMatch is the closest company an AI search found
type CompanyMatch struct {
	Name    string `json:"name"`
	Website string `json:"website,omitempty"`
}

// VerificationResult is the outcome of employer verification
type VerificationResult struct {
	Verified     bool               `json:"verified"`
	Source       VerificationSource `json:"source"`
	Explanation  string             `json:"explanation"`
	ClosestMatch *CompanyMatch      `json:"closestMatch,omitempty"`
	// Search is the raw AI search answer, nil when the allowlist decided
	Search *AISearchResult `json:"aiSearch,omitempty"`
	// AllowlistDegraded is set when the allowlist could not be loaded and
	// only the AI search was consulted.
	AllowlistDegraded bool `json:"allowlistDegraded,omitempty"`
}

// Summary renders the result in one line for transcripts
func (r VerificationResult) Summary() string {
	verdict := "not verified"
	if r.Verified {
		verdict = "verified"
	}
	s := fmt.Sprintf("%s via %s. %s", verdict, r.Source, r.Explanation)
	if r.ClosestMatch != nil {
		s += fmt.Sprintf(" Closest match: %s", r.ClosestMatch.Name)
		if r.ClosestMatch.Website != "" {
			s += fmt.Sprintf(" (%s)", r.ClosestMatch.Website)
		}
		s += "."
	}
	return s
}
