// Package challenge implements the tribe challenge lifecycle: eligibility,
// status transitions, submissions and leaderboards. Reads go through the
// fetch orchestrator; writes go through a Writer.
package challenge

import (
	"errors"
	"fmt"
	"time"

	"github.com/fitfi/service_layer/internal/domain"
)

var (
	ErrNotEligible       = errors.New("challenge not accepting submissions")
	ErrInvalidTransition = errors.New("invalid challenge status transition")
	ErrInvalidSubmission = errors.New("invalid submission")
	ErrInvalidChallenge  = errors.New("invalid challenge")
	ErrChallengeNotFound = errors.New("challenge not found")
)

// Reasons a submission is refused.
const (
	ReasonNotOpen    = "not_open"
	ReasonNotStarted = "not_started"
	ReasonEnded      = "ended"
)

// EligibilityError explains why a challenge refused a submission.
type EligibilityError struct {
	ChallengeID string
	Status      domain.ChallengeStatus
	Reason      string
	At          time.Time
}

func (e *EligibilityError) Error() string {
	return fmt.Sprintf("challenge %s (%s) not eligible: %s", e.ChallengeID, e.Status, e.Reason)
}

func (e *EligibilityError) Unwrap() error {
	return ErrNotEligible
}

// TransitionError describes a refused status change.
type TransitionError struct {
	From domain.ChallengeStatus
	To   domain.ChallengeStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move challenge from %q to %q", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
