package challenge

import (
	"context"
	"sort"
	"sync"

	"github.com/fitfi/service_layer/internal/domain"
)

// Writer persists challenge data. remote.Adapter satisfies it; MemoryWriter
// is used when the remote store is disabled.
type Writer interface {
	InsertSubmission(ctx context.Context, s domain.TribeChallengeSubmission) error
	InsertChallenge(ctx context.Context, c domain.TribeChallenge) error
	UpdateChallengeStatus(ctx context.Context, id string, status domain.ChallengeStatus) error
}

// localReader is implemented by writers that keep their writes in process
// and must therefore serve them back to readers.
type localReader interface {
	LocalChallenge(id string) (*domain.TribeChallenge, bool)
	LocalChallenges(f domain.ChallengeFilter) []domain.TribeChallenge
	LocalSubmissions(f domain.SubmissionFilter) []domain.TribeChallengeSubmission
	StatusOverride(id string) (domain.ChallengeStatus, bool)
}

// DefaultSubmissionLimit is how many submissions MemoryWriter keeps per
// challenge.
const DefaultSubmissionLimit = 50

// MemoryWriter keeps writes in process. Submissions are stored newest first
// and trimmed to a per-challenge limit. Status changes to challenges it does
// not own are kept as overrides.
type MemoryWriter struct {
	mu          sync.RWMutex
	limit       int
	submissions map[string][]domain.TribeChallengeSubmission
	challenges  map[string]domain.TribeChallenge
	statuses    map[string]domain.ChallengeStatus
}

// NewMemoryWriter creates a writer keeping at most limit submissions per
// challenge. limit <= 0 selects DefaultSubmissionLimit.
func NewMemoryWriter(limit int) *MemoryWriter {
	if limit <= 0 {
		limit = DefaultSubmissionLimit
	}
	return &MemoryWriter{
		limit:       limit,
		submissions: make(map[string][]domain.TribeChallengeSubmission),
		challenges:  make(map[string]domain.TribeChallenge),
		statuses:    make(map[string]domain.ChallengeStatus),
	}
}

func (w *MemoryWriter) InsertSubmission(ctx context.Context, s domain.TribeChallengeSubmission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	list := append([]domain.TribeChallengeSubmission{s}, w.submissions[s.ChallengeID]...)
	if len(list) > w.limit {
		list = list[:w.limit]
	}
	w.submissions[s.ChallengeID] = list
	return nil
}

func (w *MemoryWriter) InsertChallenge(ctx context.Context, c domain.TribeChallenge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	w.challenges[c.ID] = c
	return nil
}

func (w *MemoryWriter) UpdateChallengeStatus(ctx context.Context, id string, status domain.ChallengeStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if c, ok := w.challenges[id]; ok {
		c.Status = status
		w.challenges[id] = c
		return nil
	}
	w.statuses[id] = status
	return nil
}

func (w *MemoryWriter) LocalChallenge(id string) (*domain.TribeChallenge, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	c, ok := w.challenges[id]
	if !ok {
		return nil, false
	}
	return &c, true
}

func (w *MemoryWriter) LocalChallenges(f domain.ChallengeFilter) []domain.TribeChallenge {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var out []domain.TribeChallenge
	for _, c := range w.challenges {
		if f.Match(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (w *MemoryWriter) LocalSubmissions(f domain.SubmissionFilter) []domain.TribeChallengeSubmission {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var out []domain.TribeChallengeSubmission
	for id, list := range w.submissions {
		if f.ChallengeID != "" && id != f.ChallengeID {
			continue
		}
		for _, s := range list {
			if f.Match(s) {
				out = append(out, s)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (w *MemoryWriter) StatusOverride(id string) (domain.ChallengeStatus, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	s, ok := w.statuses[id]
	return s, ok
}
