package ranking

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitfi/service_layer/internal/domain"
)

var t0 = time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

func ids(ranked []Ranked) []string {
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.SubjectID
	}
	return out
}

func TestCompute_OrdersByPoints(t *testing.T) {
	ranked := Compute([]Entry{
		{SubjectID: "A", Points: 10, EarnedAt: t0},
		{SubjectID: "B", Points: 30, EarnedAt: t0},
		{SubjectID: "C", Points: 20, EarnedAt: t0},
	})

	require.Len(t, ranked, 3)
	assert.Equal(t, []string{"B", "C", "A"}, ids(ranked))
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, 2, ranked[1].Rank)
	assert.Equal(t, 3, ranked[2].Rank)
}

func TestCompute_TieBrokenByEarliest(t *testing.T) {
	ranked := Compute([]Entry{
		{SubjectID: "late", Points: 50, EarnedAt: t0.Add(time.Hour)},
		{SubjectID: "early", Points: 50, EarnedAt: t0},
	})

	assert.Equal(t, []string{"early", "late"}, ids(ranked))
	assert.Equal(t, []int{1, 2}, []int{ranked[0].Rank, ranked[1].Rank}, "ties never share a rank")
}

func TestCompute_InputOrderIndependent(t *testing.T) {
	entries := []Entry{
		{SubjectID: "a", Points: 5, EarnedAt: t0},
		{SubjectID: "b", Points: 5, EarnedAt: t0},
		{SubjectID: "c", Points: 7, EarnedAt: t0.Add(time.Minute)},
		{SubjectID: "d", Points: 1, EarnedAt: t0},
		{SubjectID: "e", Points: 5, EarnedAt: t0.Add(-time.Minute)},
	}
	want := ids(Compute(entries))

	r := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]Entry(nil), entries...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		assert.Equal(t, want, ids(Compute(shuffled)))
	}
	assert.Equal(t, []string{"c", "e", "a", "b", "d"}, want)
}

func TestCompute_DoesNotMutateInput(t *testing.T) {
	entries := []Entry{{SubjectID: "x", Points: 1}, {SubjectID: "y", Points: 2}}
	Compute(entries)
	assert.Equal(t, "x", entries[0].SubjectID)
}

func TestCompute_Empty(t *testing.T) {
	assert.Empty(t, Compute(nil))
}

func TestAggregate(t *testing.T) {
	got := Aggregate([]Entry{
		{SubjectID: "u1", Points: 10, EarnedAt: t0},
		{SubjectID: "u2", Points: 5, EarnedAt: t0},
		{SubjectID: "u1", Points: 15, EarnedAt: t0.Add(time.Hour)},
	})

	require.Len(t, got, 2)
	assert.Equal(t, 25, got[0].Points)
	assert.Equal(t, t0.Add(time.Hour), got[0].EarnedAt)
}

func TestFromSubmissions(t *testing.T) {
	challenges := map[string]domain.TribeChallenge{
		"c1": {ID: "c1", RewardPoints: 10, WinnerRewardPoints: 50},
	}
	subs := []domain.TribeChallengeSubmission{
		{ChallengeID: "c1", UserID: "u1", TribeID: "t1", CreatedAt: t0},
		{ChallengeID: "c1", UserID: "u2", TribeID: "t1", IsWinner: true, CreatedAt: t0.Add(time.Minute)},
		{ChallengeID: "unknown", UserID: "u3", TribeID: "t1", CreatedAt: t0},
	}

	byUser := Compute(FromSubmissions(challenges, subs, ByUser))
	require.Len(t, byUser, 2)
	assert.Equal(t, "u2", byUser[0].SubjectID)
	assert.Equal(t, 60, byUser[0].Points)

	byTribe := FromSubmissions(challenges, subs, ByTribe)
	require.Len(t, byTribe, 1)
	assert.Equal(t, 70, byTribe[0].Points)
}

func TestFromReferrals(t *testing.T) {
	entries := FromReferrals([]Referral{
		{ReferrerID: "u1", At: t0},
		{ReferrerID: "u1", At: t0.Add(time.Hour)},
		{ReferrerID: "u2", At: t0},
	}, 25)

	ranked := Compute(entries)
	assert.Equal(t, []string{"u1", "u2"}, ids(ranked))
	assert.Equal(t, 50, ranked[0].Points)
}

func TestProjections(t *testing.T) {
	ranked := Compute([]Entry{{SubjectID: "t1", Points: 3}, {SubjectID: "t2", Points: 9}})

	tribes := Tribes(ranked, t0)
	assert.Equal(t, domain.TribeRanking{TribeID: "t2", Points: 9, Rank: 1, UpdatedAt: t0}, tribes[0])

	members := Members("t1", Top(ranked, 1), t0)
	require.Len(t, members, 1)
	assert.Equal(t, "t2", members[0].UserID)
	assert.Equal(t, "t1", members[0].TribeID)
}
