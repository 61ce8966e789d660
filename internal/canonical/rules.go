package canonical

import (
	"errors"
	"fmt"
)

// Rules are the match-policy parameters shared by every process. They are
// data: the same algorithm runs for every catalog.
type Rules struct {
	// AliasScore is the score of an alias-tier step match. It must be in
	// (0, 1); exact matches always score 1.0.
	AliasScore float64

	// ProcessFuzzy enables whole-word alias containment for processes.
	ProcessFuzzy bool

	// StepFuzzy enables the containment tier for steps.
	StepFuzzy bool

	// MinFuzzyLength is the shortest label, in runes, the fuzzy tiers will
	// consider.
	MinFuzzyLength int

	// AtRiskAfterDays and StaleAfterDays classify health by the age of the
	// instance's last update.
	AtRiskAfterDays int
	StaleAfterDays  int
}

// DefaultRules returns the default match policy.
func DefaultRules() Rules {
	return Rules{
		AliasScore:      0.9,
		ProcessFuzzy:    true,
		StepFuzzy:       true,
		MinFuzzyLength:  3,
		AtRiskAfterDays: 7,
		StaleAfterDays:  14,
	}
}

// Validate checks the rules for impossible values.
func (r Rules) Validate() error {
	var errs []error
	if r.AliasScore <= 0 || r.AliasScore >= 1 {
		errs = append(errs, fmt.Errorf("alias score must be between 0 and 1 exclusive, got %v", r.AliasScore))
	}
	if r.MinFuzzyLength < 1 {
		errs = append(errs, fmt.Errorf("min fuzzy length must be at least 1, got %d", r.MinFuzzyLength))
	}
	if r.AtRiskAfterDays < 0 {
		errs = append(errs, fmt.Errorf("at_risk_after_days must not be negative, got %d", r.AtRiskAfterDays))
	}
	if r.StaleAfterDays < r.AtRiskAfterDays {
		errs = append(errs, fmt.Errorf("stale_after_days (%d) must be >= at_risk_after_days (%d)", r.StaleAfterDays, r.AtRiskAfterDays))
	}
	return errors.Join(errs...)
}
