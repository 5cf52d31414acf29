// Package ranking turns point totals into leaderboards. It is pure: the same
// entries in any order always produce the same ranks.
package ranking

import (
	"sort"
	"time"

	"github.com/fitfi/service_layer/internal/domain"
)

// Entry is one subject's points, earned at a point in time.
type Entry struct {
	SubjectID string    `json:"subject_id"`
	Points    int       `json:"points"`
	EarnedAt  time.Time `json:"earned_at"`
}

// Ranked is an entry with its 1-based rank.
type Ranked struct {
	Entry
	Rank int `json:"rank"`
}

// Compute orders entries by points descending, then by earliest EarnedAt,
// then by SubjectID, and assigns ranks 1..N without gaps or shared ranks.
// The input slice is not modified.
func Compute(entries []Entry) []Ranked {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)

	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if !a.EarnedAt.Equal(b.EarnedAt) {
			return a.EarnedAt.Before(b.EarnedAt)
		}
		return a.SubjectID < b.SubjectID
	})

	out := make([]Ranked, len(sorted))
	for i, e := range sorted {
		out[i] = Ranked{Entry: e, Rank: i + 1}
	}
	return out
}

// Aggregate sums entries per subject. The aggregated EarnedAt is the latest
// contributing timestamp, i.e. when the subject reached its total.
func Aggregate(entries []Entry) []Entry {
	index := make(map[string]int, len(entries))
	var out []Entry
	for _, e := range entries {
		i, ok := index[e.SubjectID]
		if !ok {
			index[e.SubjectID] = len(out)
			out = append(out, e)
			continue
		}
		out[i].Points += e.Points
		if e.EarnedAt.After(out[i].EarnedAt) {
			out[i].EarnedAt = e.EarnedAt
		}
	}
	return out
}

// Top returns at most n ranked entries. n <= 0 returns all of them.
func Top(ranked []Ranked, n int) []Ranked {
	if n > 0 && len(ranked) > n {
		return ranked[:n]
	}
	return ranked
}

// =============================================================================
// Sources
// =============================================================================

// SubmissionPoints is the reward for one submission: the challenge's
// participation reward plus its winner reward when the submission won.
func SubmissionPoints(c domain.TribeChallenge, s domain.TribeChallengeSubmission) int {
	points := c.RewardPoints
	if s.IsWinner {
		points += c.WinnerRewardPoints
	}
	return points
}

// FromSubmissions converts submissions into entries keyed by subject(s).
// Submissions whose challenge is unknown earn nothing and are skipped.
func FromSubmissions(challenges map[string]domain.TribeChallenge, subs []domain.TribeChallengeSubmission, subject func(domain.TribeChallengeSubmission) string) []Entry {
	entries := make([]Entry, 0, len(subs))
	for _, s := range subs {
		c, ok := challenges[s.ChallengeID]
		if !ok {
			continue
		}
		entries = append(entries, Entry{
			SubjectID: subject(s),
			Points:    SubmissionPoints(c, s),
			EarnedAt:  s.CreatedAt,
		})
	}
	return Aggregate(entries)
}

// ByUser keys submissions by author.
func ByUser(s domain.TribeChallengeSubmission) string { return s.UserID }

// ByTribe keys submissions by tribe.
func ByTribe(s domain.TribeChallengeSubmission) string { return s.TribeID }

// Referral is one successful referral.
type Referral struct {
	ReferrerID string    `json:"referrer_id"`
	At         time.Time `json:"at"`
}

// FromReferrals awards pointsEach per referral to the referrer.
func FromReferrals(refs []Referral, pointsEach int) []Entry {
	entries := make([]Entry, 0, len(refs))
	for _, r := range refs {
		entries = append(entries, Entry{SubjectID: r.ReferrerID, Points: pointsEach, EarnedAt: r.At})
	}
	return Aggregate(entries)
}

// =============================================================================
// Projections
// =============================================================================

// Tribes projects ranked entries keyed by tribe ID onto TribeRanking.
func Tribes(ranked []Ranked, updatedAt time.Time) []domain.TribeRanking {
	out := make([]domain.TribeRanking, len(ranked))
	for i, r := range ranked {
		out[i] = domain.TribeRanking{TribeID: r.SubjectID, Points: r.Points, Rank: r.Rank, UpdatedAt: updatedAt}
	}
	return out
}

// Members projects ranked entries keyed by user ID onto MemberRanking.
func Members(tribeID string, ranked []Ranked, updatedAt time.Time) []domain.MemberRanking {
	out := make([]domain.MemberRanking, len(ranked))
	for i, r := range ranked {
		out[i] = domain.MemberRanking{TribeID: tribeID, UserID: r.SubjectID, Points: r.Points, Rank: r.Rank, UpdatedAt: updatedAt}
	}
	return out
}
