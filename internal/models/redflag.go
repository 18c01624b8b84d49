package models

import (
	"encoding/json"
	"fmt"
)

// RuleID identifies a red-flag rule. It is also the identity of a flag.
type RuleID string

const (
	RuleBlacklist            RuleID = "blacklist_check"
	RuleEmployerVerification RuleID = "employer_verification_check"
	RuleDistance             RuleID = "distance_check"
	RulePoliticalExposure    RuleID = "political_exposure_check"
	RuleSourceOfFunds        RuleID = "source_of_funds_alignment_check"
)

// Severity of a red flag
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// RedFlag is a rule-engine finding that drives one resolution conversation.
// A flag is immutable once issued; re-validation supersedes it.
type RedFlag struct {
	Rule           RuleID    `json:"rule" validate:"required"`
	Message        string    `json:"message" validate:"required"`
	Severity       Severity  `json:"severity,omitempty" validate:"omitempty,oneof=low medium high"`
	AffectedFields []string  `json:"affectedFields" validate:"required,min=1,dive,required"`
	DebugInfo      DebugInfo `json:"debugInfo,omitempty"`
}

// Affects reports whether field is one of the flag's affected fields
func (f RedFlag) Affects(field string) bool {
	for _, af := range f.AffectedFields {
		if af == field {
			return true
		}
	}
	return false
}

// UnmarshalJSON decodes debugInfo into the variant owned by the flag's rule
func (f *RedFlag) UnmarshalJSON(data []byte) error {
	type alias RedFlag
	aux := struct {
		*alias
		DebugInfo json.RawMessage `json:"debugInfo,omitempty"`
	}{alias: (*alias)(f)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	f.DebugInfo = nil
	if len(aux.DebugInfo) == 0 || string(aux.DebugInfo) == "null" {
		return nil
	}

	debug, err := DecodeDebugInfo(f.Rule, aux.DebugInfo)
	if err != nil {
		return fmt.Errorf("red flag %s: %w", f.Rule, err)
	}
	f.DebugInfo = debug
	return nil
}
