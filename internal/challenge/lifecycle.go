package challenge

import (
	"fmt"
	"time"

	"github.com/fitfi/service_layer/internal/domain"
)

// CheckEligibility reports whether c accepts a submission at now. The status
// must be Open and now must fall inside [StartAt, EndAt]; a missing bound
// leaves that side of the window open.
func CheckEligibility(c domain.TribeChallenge, now time.Time) error {
	refuse := func(reason string) error {
		return &EligibilityError{ChallengeID: c.ID, Status: c.Status, Reason: reason, At: now}
	}

	if c.Status != domain.ChallengeOpen {
		return refuse(ReasonNotOpen)
	}
	if c.StartAt != nil && now.Before(*c.StartAt) {
		return refuse(ReasonNotStarted)
	}
	if c.EndAt != nil && now.After(*c.EndAt) {
		return refuse(ReasonEnded)
	}
	return nil
}

// ValidateTransition allows only the next linear state. Moving to the
// current state is a no-op and is allowed.
func ValidateTransition(from, to domain.ChallengeStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if from == to {
		return nil
	}
	next, ok := from.Next()
	if !ok || next != to {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// =============================================================================
// Time remaining
// =============================================================================

// RemainingKind is the unit a Remaining value is expressed in.
type RemainingKind int

const (
	RemainingUndefined RemainingKind = iota
	RemainingExpired
	RemainingDays
	RemainingHours
	RemainingFinalHours
)

// Remaining is the coarsest non-zero unit left before a challenge ends.
type Remaining struct {
	Kind  RemainingKind
	Value int
}

// TimeRemaining computes what is left of c's window at now.
func TimeRemaining(c domain.TribeChallenge, now time.Time) Remaining {
	if c.EndAt == nil {
		return Remaining{Kind: RemainingUndefined}
	}
	left := c.EndAt.Sub(now)
	if left <= 0 {
		return Remaining{Kind: RemainingExpired}
	}
	if days := int(left / (24 * time.Hour)); days > 0 {
		return Remaining{Kind: RemainingDays, Value: days}
	}
	if hours := int(left / time.Hour); hours > 0 {
		return Remaining{Kind: RemainingHours, Value: hours}
	}
	return Remaining{Kind: RemainingFinalHours}
}

// Defined reports whether the challenge has an end.
func (r Remaining) Defined() bool {
	return r.Kind != RemainingUndefined
}

func (r Remaining) String() string {
	switch r.Kind {
	case RemainingExpired:
		return "expired"
	case RemainingDays:
		return fmt.Sprintf("%d days", r.Value)
	case RemainingHours:
		return fmt.Sprintf("%d hours", r.Value)
	case RemainingFinalHours:
		return "final hours"
	default:
		return ""
	}
}

// MarshalText renders the remaining time as its label.
func (r Remaining) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}
