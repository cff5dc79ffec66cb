package model

import (
	"fmt"
	"strings"
)

// Outcome is the result of one human comparison.
type Outcome string

// Possible outcomes.
const (
	OutcomeBaseline  Outcome = "baseline"
	OutcomeCandidate Outcome = "candidate"
	OutcomeTie       Outcome = "tie"
)

// ParseOutcome accepts baseline, candidate or tie, case-insensitively.
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(strings.ToLower(strings.TrimSpace(s))); o {
	case OutcomeBaseline, OutcomeCandidate, OutcomeTie:
		return o, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOutcome, s)
	}
}

// Valid reports whether o is one of the known outcomes.
func (o Outcome) Valid() bool {
	return o == OutcomeBaseline || o == OutcomeCandidate || o == OutcomeTie
}

// Scores returns the actual scores (baseline, candidate) for the outcome.
func (o Outcome) Scores() (float64, float64) {
	switch o {
	case OutcomeBaseline:
		return 1, 0
	case OutcomeCandidate:
		return 0, 1
	default:
		return 0.5, 0.5
	}
}

// Branch names the matchmaker path that produced a matchup.
type Branch string

// Matchmaker branches.
const (
	BranchExplore Branch = "explore"
	BranchExploit Branch = "exploit"
)

// Matchup is a proposed comparison. It is never persisted; ID only
// correlates the proposal with the judgment that follows it.
type Matchup struct {
	ID         string `json:"id"`
	Collection string `json:"collection"`
	Baseline   string `json:"baseline"`
	Candidate  string `json:"candidate"`
	Branch     Branch `json:"branch"`
}

// Judgment is one judged matchup submitted for rating.
type Judgment struct {
	ID         string  `json:"judgment_id"`
	Collection string  `json:"collection"`
	Baseline   string  `json:"baseline"`
	Candidate  string  `json:"candidate"`
	Outcome    Outcome `json:"outcome"`
}
