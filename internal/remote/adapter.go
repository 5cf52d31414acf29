package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fitfi/service_layer/internal/domain"
	"github.com/fitfi/service_layer/internal/logging"
	"github.com/fitfi/service_layer/internal/metrics"
	"github.com/fitfi/service_layer/internal/resilience"
)

// Tables names the table behind each entity family.
type Tables struct {
	Products     string
	Outfits      string
	Users        string
	Tribes       string
	TribeMembers string
	Challenges   string
	Submissions  string
}

// DefaultTables returns the standard table names.
func DefaultTables() Tables {
	return Tables{
		Products:     "products",
		Outfits:      "outfits",
		Users:        "users",
		Tribes:       "tribes",
		TribeMembers: "tribe_members",
		Challenges:   "tribe_challenges",
		Submissions:  "tribe_challenge_submissions",
	}
}

// HealthStatus is the result of a connectivity probe.
type HealthStatus struct {
	Healthy        bool   `json:"healthy"`
	Driver         string `json:"driver"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	Error          string `json:"error,omitempty"`
}

// Adapter maps entity reads and writes onto a Backend.
type Adapter struct {
	backend Backend
	tables  Tables
	policy  resilience.Policy
	log     *logrus.Entry
}

// NewAdapter creates an adapter. Every attempt is counted in the
// remote_attempts_total metric.
func NewAdapter(backend Backend, tables Tables, policy resilience.Policy, logger *logging.Logger) *Adapter {
	if logger == nil {
		logger = logging.NewNop()
	}
	observe := policy.Observe
	policy.Observe = func(attempt int, err error) {
		metrics.RecordRemoteAttempt(outcome(err))
		if observe != nil {
			observe(attempt, err)
		}
	}
	return &Adapter{
		backend: backend,
		tables:  tables,
		policy:  policy,
		log:     logger.WithComponent("remote").WithField("driver", backend.Name()),
	}
}

// Backend returns the underlying driver.
func (a *Adapter) Backend() Backend {
	return a.backend
}

// Tables returns the configured table names.
func (a *Adapter) Tables() Tables {
	return a.tables
}

// Close releases the backend.
func (a *Adapter) Close() error {
	return a.backend.Close()
}

// =============================================================================
// Reads
// =============================================================================

// Products lists products matching f.
func (a *Adapter) Products(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	q := Query{Table: a.tables.Products, Limit: f.Limit}.
		Where("gender", f.Gender).
		Where("category", f.Category).
		Where("archetype", f.Archetype)
	return selectAll[domain.Product](ctx, a, q)
}

// Outfits lists outfits whose tags contain f.Archetype.
func (a *Adapter) Outfits(ctx context.Context, f domain.OutfitFilter) ([]domain.Outfit, error) {
	q := Query{Table: a.tables.Outfits, Limit: f.Limit}.Has("tags", f.Archetype)
	return selectAll[domain.Outfit](ctx, a, q)
}

// User returns the profile with id, or nil when there is none.
func (a *Adapter) User(ctx context.Context, id string) (*domain.UserProfile, error) {
	if id == "" {
		return nil, nil
	}
	q := Query{Table: a.tables.Users, Single: true}.Where("id", id)
	return selectOne[domain.UserProfile](ctx, a, q)
}

// Tribes lists tribes matching f, largest first.
func (a *Adapter) Tribes(ctx context.Context, f domain.TribeFilter) ([]domain.Tribe, error) {
	q := Query{Table: a.tables.Tribes, Limit: f.Limit, OrderBy: "member_count", Desc: true}.
		Where("archetype", f.Archetype)
	if f.Featured != nil {
		q = q.Where("featured", strconv.FormatBool(*f.Featured))
	}
	return selectAll[domain.Tribe](ctx, a, q)
}

// TribeBySlug returns the tribe with the slug, annotated with the user's
// membership when l.UserID is set. It returns nil when there is no such tribe.
func (a *Adapter) TribeBySlug(ctx context.Context, l domain.TribeLookup) (*domain.Tribe, error) {
	if l.Slug == "" {
		return nil, nil
	}
	tribe, err := selectOne[domain.Tribe](ctx, a, Query{Table: a.tables.Tribes, Single: true}.Where("slug", l.Slug))
	if err != nil || tribe == nil || l.UserID == "" {
		return tribe, err
	}

	q := Query{Table: a.tables.TribeMembers, Single: true}.
		Where("tribe_id", tribe.ID).
		Where("user_id", l.UserID)
	member, err := selectOne[domain.TribeMember](ctx, a, q)
	if err != nil {
		return nil, err
	}
	annotated := tribe.WithMembership(member)
	return &annotated, nil
}

// Challenges lists challenges matching f, newest first.
func (a *Adapter) Challenges(ctx context.Context, f domain.ChallengeFilter) ([]domain.TribeChallenge, error) {
	q := Query{Table: a.tables.Challenges, Limit: f.Limit, OrderBy: "created_at", Desc: true}.
		Where("tribe_id", f.TribeID).
		Where("status", string(f.Status))
	return selectAll[domain.TribeChallenge](ctx, a, q)
}

// Challenge returns one challenge, or nil when there is none.
func (a *Adapter) Challenge(ctx context.Context, id string) (*domain.TribeChallenge, error) {
	if id == "" {
		return nil, nil
	}
	return selectOne[domain.TribeChallenge](ctx, a, Query{Table: a.tables.Challenges, Single: true}.Where("id", id))
}

// Submissions lists submissions matching f, newest first.
func (a *Adapter) Submissions(ctx context.Context, f domain.SubmissionFilter) ([]domain.TribeChallengeSubmission, error) {
	q := Query{Table: a.tables.Submissions, Limit: f.Limit, OrderBy: "created_at", Desc: true}.
		Where("challenge_id", f.ChallengeID).
		Where("tribe_id", f.TribeID).
		Where("user_id", f.UserID)
	return selectAll[domain.TribeChallengeSubmission](ctx, a, q)
}

// =============================================================================
// Writes
// =============================================================================

// InsertSubmission stores a submission.
func (a *Adapter) InsertSubmission(ctx context.Context, s domain.TribeChallengeSubmission) error {
	return a.write(ctx, "insert submission", func(ctx context.Context) error {
		return a.backend.Insert(ctx, a.tables.Submissions, s)
	})
}

// InsertChallenge stores a challenge.
func (a *Adapter) InsertChallenge(ctx context.Context, c domain.TribeChallenge) error {
	return a.write(ctx, "insert challenge", func(ctx context.Context) error {
		return a.backend.Insert(ctx, a.tables.Challenges, c)
	})
}

// UpdateChallengeStatus sets the status of challenge id.
func (a *Adapter) UpdateChallengeStatus(ctx context.Context, id string, status domain.ChallengeStatus) error {
	return a.write(ctx, "update challenge status", func(ctx context.Context) error {
		return a.backend.Update(ctx, a.tables.Challenges, id, map[string]any{"status": string(status)})
	})
}

func (a *Adapter) write(ctx context.Context, op string, fn func(context.Context) error) error {
	_, err := resilience.Do(ctx, a.policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	if err != nil {
		a.log.WithError(err).WithField("op", op).Warn("remote write failed")
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// =============================================================================
// Health
// =============================================================================

// Health probes the users table with a single-row select. It bypasses
// retries so the reported latency is one round trip.
func (a *Adapter) Health(ctx context.Context) HealthStatus {
	timeout := a.policy.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	_, err := a.backend.Select(ctx, Query{Table: a.tables.Users, Columns: []string{"id"}, Limit: 1})
	status := HealthStatus{
		Healthy:        err == nil,
		Driver:         a.backend.Name(),
		ResponseTimeMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

// =============================================================================
// Helpers
// =============================================================================

func (a *Adapter) rows(ctx context.Context, q Query) ([]json.RawMessage, error) {
	rows, err := resilience.Do(ctx, a.policy, func(ctx context.Context) ([]json.RawMessage, error) {
		return a.backend.Select(ctx, q)
	})
	if err != nil {
		a.log.WithError(err).WithField("table", q.Table).Debug("remote select failed")
		return nil, err
	}
	return rows, nil
}

func selectAll[T any](ctx context.Context, a *Adapter, q Query) ([]T, error) {
	rows, err := a.rows(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, raw := range rows {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("%w: decode %s row: %v", ErrQueryFailed, q.Table, err)
		}
		out = append(out, item)
	}
	return out, nil
}

func selectOne[T any](ctx context.Context, a *Adapter, q Query) (*T, error) {
	rows, err := a.rows(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	var item T
	if err := json.Unmarshal(rows[0], &item); err != nil {
		return nil, fmt.Errorf("%w: decode %s row: %v", ErrQueryFailed, q.Table, err)
	}
	return &item, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, resilience.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

