package domain

import "time"

// ChallengeStatus is the lifecycle state of a tribe challenge.
// The progression is linear: Draft → Open → Closed → Archived.
type ChallengeStatus string

const (
	ChallengeDraft    ChallengeStatus = "draft"
	ChallengeOpen     ChallengeStatus = "open"
	ChallengeClosed   ChallengeStatus = "closed"
	ChallengeArchived ChallengeStatus = "archived"
)

// Valid reports whether s is a known status.
func (s ChallengeStatus) Valid() bool {
	switch s {
	case ChallengeDraft, ChallengeOpen, ChallengeClosed, ChallengeArchived:
		return true
	default:
		return false
	}
}

// Next returns the state that follows s. ok is false for Archived and for
// unknown values.
func (s ChallengeStatus) Next() (next ChallengeStatus, ok bool) {
	switch s {
	case ChallengeDraft:
		return ChallengeOpen, true
	case ChallengeOpen:
		return ChallengeClosed, true
	case ChallengeClosed:
		return ChallengeArchived, true
	case ChallengeArchived:
		return "", false
	default:
		return "", false
	}
}

func (s ChallengeStatus) String() string {
	return string(s)
}

// Difficulty is an optional hint shown with a challenge.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// TribeChallenge is a time-boxed activity inside a tribe. Status is
// authoritative and independent of the StartAt/EndAt window.
type TribeChallenge struct {
	ID                 string          `json:"id" yaml:"id"`
	TribeID            string          `json:"tribe_id" yaml:"tribe_id"`
	Title              string          `json:"title" yaml:"title"`
	Description        string          `json:"description,omitempty" yaml:"description"`
	ImageURL           string          `json:"image_url,omitempty" yaml:"image_url"`
	Rules              []string        `json:"rules,omitempty" yaml:"rules"`
	RewardPoints       int             `json:"reward_points" yaml:"reward_points"`
	WinnerRewardPoints int             `json:"winner_reward_points" yaml:"winner_reward_points"`
	StartAt            *time.Time      `json:"start_at,omitempty" yaml:"start_at"`
	EndAt              *time.Time      `json:"end_at,omitempty" yaml:"end_at"`
	Status             ChallengeStatus `json:"status" yaml:"status"`
	Difficulty         Difficulty      `json:"difficulty,omitempty" yaml:"difficulty"`
	Tags               []string        `json:"tags,omitempty" yaml:"tags"`
	CreatedAt          time.Time       `json:"created_at" yaml:"created_at"`
	CreatedBy          string          `json:"created_by,omitempty" yaml:"created_by"`
}

// WindowValid reports whether StartAt <= EndAt when both are present.
func (c TribeChallenge) WindowValid() bool {
	if c.StartAt == nil || c.EndAt == nil {
		return true
	}
	return !c.StartAt.After(*c.EndAt)
}
