package challenge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fitfi/service_layer/internal/domain"
	"github.com/fitfi/service_layer/internal/fetch"
	"github.com/fitfi/service_layer/internal/logging"
	"github.com/fitfi/service_layer/internal/ranking"
)

// Reader is the read side the service depends on. *fetch.Service
// satisfies it.
type Reader interface {
	Tribes(ctx context.Context, f domain.TribeFilter) fetch.Response[[]domain.Tribe]
	Challenges(ctx context.Context, f domain.ChallengeFilter) fetch.Response[[]domain.TribeChallenge]
	Challenge(ctx context.Context, id string) fetch.Response[*domain.TribeChallenge]
	Submissions(ctx context.Context, f domain.SubmissionFilter) fetch.Response[[]domain.TribeChallengeSubmission]
	Invalidate(ctx context.Context, families ...string) (int, error)
}

// SubmissionInput is what a user submits to a challenge. At least one of
// Content, ImageURL or LinkURL must be set.
type SubmissionInput struct {
	TribeID     string `json:"tribe_id"`
	ChallengeID string `json:"challenge_id"`
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
	Content     string `json:"content,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	LinkURL     string `json:"link_url,omitempty"`
}

// ChallengeInput describes a new challenge. Status defaults to Draft.
type ChallengeInput struct {
	TribeID            string                 `json:"tribe_id"`
	Title              string                 `json:"title"`
	Description        string                 `json:"description,omitempty"`
	ImageURL           string                 `json:"image_url,omitempty"`
	Rules              []string               `json:"rules,omitempty"`
	RewardPoints       int                    `json:"reward_points"`
	WinnerRewardPoints int                    `json:"winner_reward_points"`
	StartAt            *time.Time             `json:"start_at,omitempty"`
	EndAt              *time.Time             `json:"end_at,omitempty"`
	Status             domain.ChallengeStatus `json:"status,omitempty"`
	Difficulty         domain.Difficulty      `json:"difficulty,omitempty"`
	Tags               []string               `json:"tags,omitempty"`
	CreatedBy          string                 `json:"created_by,omitempty"`
}

// Service runs the challenge lifecycle on top of the fetch orchestrator.
type Service struct {
	reader Reader
	writer Writer
	local  localReader
	log    *logrus.Entry
	now    func() time.Time
	newID  func() string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides how new IDs are minted.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// NewService creates a challenge service. Writers that keep data in process
// also serve it back on reads.
func NewService(reader Reader, writer Writer, logger *logging.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Service{
		reader: reader,
		writer: writer,
		log:    logger.WithComponent("challenge"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	if lr, ok := writer.(localReader); ok {
		s.local = lr
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// Reads
// =============================================================================

// Challenge returns one challenge, preferring locally written data.
func (s *Service) Challenge(ctx context.Context, id string) fetch.Response[*domain.TribeChallenge] {
	if s.local != nil {
		if c, ok := s.local.LocalChallenge(id); ok {
			return fetch.Response[*domain.TribeChallenge]{Data: c, Origin: domain.OriginSnapshot}
		}
	}
	resp := s.reader.Challenge(ctx, id)
	if resp.Data != nil {
		c := s.applyStatus(*resp.Data)
		resp.Data = &c
	}
	return resp
}

// Challenges lists challenges, merging locally written ones. Status
// overrides are applied before the status filter.
func (s *Service) Challenges(ctx context.Context, f domain.ChallengeFilter) fetch.Response[[]domain.TribeChallenge] {
	if s.local == nil {
		return s.reader.Challenges(ctx, f)
	}

	query := f
	if f.Status != "" {
		query.Status = ""
		query.Limit = 0
	}
	resp := s.reader.Challenges(ctx, query)

	seen := make(map[string]bool)
	merged := s.local.LocalChallenges(f)
	for _, c := range merged {
		seen[c.ID] = true
	}
	for _, c := range resp.Data {
		if seen[c.ID] {
			continue
		}
		c = s.applyStatus(c)
		if f.Match(c) {
			merged = append(merged, c)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].CreatedAt.After(merged[j].CreatedAt) })
	resp.Data = limit(merged, f.Limit)
	return resp
}

// Submissions lists submissions, merging locally written ones newest first.
func (s *Service) Submissions(ctx context.Context, f domain.SubmissionFilter) fetch.Response[[]domain.TribeChallengeSubmission] {
	resp := s.reader.Submissions(ctx, f)
	if s.local == nil {
		return resp
	}

	seen := make(map[string]bool)
	merged := s.local.LocalSubmissions(f)
	for _, sub := range merged {
		seen[sub.ID] = true
	}
	for _, sub := range resp.Data {
		if !seen[sub.ID] {
			merged = append(merged, sub)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].CreatedAt.After(merged[j].CreatedAt) })
	resp.Data = limit(merged, f.Limit)
	return resp
}

func (s *Service) applyStatus(c domain.TribeChallenge) domain.TribeChallenge {
	if s.local == nil {
		return c
	}
	if st, ok := s.local.StatusOverride(c.ID); ok {
		c.Status = st
	}
	return c
}

func limit[T any](items []T, n int) []T {
	if items == nil {
		items = []T{}
	}
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

// =============================================================================
// Writes
// =============================================================================

// CreateSubmission validates and persists a submission. The challenge must
// be eligible at the current time; otherwise nothing is written and an
// *EligibilityError is returned.
func (s *Service) CreateSubmission(ctx context.Context, in SubmissionInput) (domain.TribeChallengeSubmission, error) {
	var zero domain.TribeChallengeSubmission

	if strings.TrimSpace(in.ChallengeID) == "" || strings.TrimSpace(in.UserID) == "" {
		return zero, fmt.Errorf("%w: challenge_id and user_id are required", ErrInvalidSubmission)
	}
	kind, ok := domain.DeriveSubmissionType(in.Content, in.ImageURL, in.LinkURL)
	if !ok {
		return zero, fmt.Errorf("%w: content, image_url or link_url is required", ErrInvalidSubmission)
	}

	resp := s.Challenge(ctx, in.ChallengeID)
	if resp.Data == nil {
		return zero, fmt.Errorf("%w: %s", ErrChallengeNotFound, in.ChallengeID)
	}
	c := *resp.Data

	tribeID := in.TribeID
	if tribeID == "" {
		tribeID = c.TribeID
	}
	if tribeID != c.TribeID {
		return zero, fmt.Errorf("%w: challenge %s belongs to tribe %s", ErrInvalidSubmission, c.ID, c.TribeID)
	}

	now := s.now()
	if err := CheckEligibility(c, now); err != nil {
		s.log.WithFields(logrus.Fields{
			"challenge_id": c.ID,
			"user_id":      in.UserID,
		}).WithError(err).Info("Submission refused")
		return zero, err
	}

	sub := domain.TribeChallengeSubmission{
		ID:             s.newID(),
		TribeID:        tribeID,
		ChallengeID:    c.ID,
		UserID:         in.UserID,
		UserName:       in.UserName,
		Content:        in.Content,
		ImageURL:       in.ImageURL,
		LinkURL:        in.LinkURL,
		SubmissionType: kind,
		CreatedAt:      now,
	}
	if err := s.writer.InsertSubmission(ctx, sub); err != nil {
		return zero, fmt.Errorf("insert submission: %w", err)
	}

	s.invalidate(ctx, fetch.FamilySubmissions)
	s.log.WithFields(logrus.Fields{
		"submission_id": sub.ID,
		"challenge_id":  c.ID,
		"type":          kind,
	}).Info("Submission created")
	return sub, nil
}

// CreateChallenge validates and persists a new challenge.
func (s *Service) CreateChallenge(ctx context.Context, in ChallengeInput) (domain.TribeChallenge, error) {
	var zero domain.TribeChallenge

	var problems []string
	if strings.TrimSpace(in.TribeID) == "" {
		problems = append(problems, "tribe_id is required")
	}
	if strings.TrimSpace(in.Title) == "" {
		problems = append(problems, "title is required")
	}
	if in.RewardPoints < 0 || in.WinnerRewardPoints < 0 {
		problems = append(problems, "reward points must not be negative")
	}
	if in.Status != "" && !in.Status.Valid() {
		problems = append(problems, fmt.Sprintf("unknown status %q", in.Status))
	}

	c := domain.TribeChallenge{
		ID:                 s.newID(),
		TribeID:            in.TribeID,
		Title:              strings.TrimSpace(in.Title),
		Description:        in.Description,
		ImageURL:           in.ImageURL,
		Rules:              in.Rules,
		RewardPoints:       in.RewardPoints,
		WinnerRewardPoints: in.WinnerRewardPoints,
		StartAt:            in.StartAt,
		EndAt:              in.EndAt,
		Status:             in.Status,
		Difficulty:         in.Difficulty,
		Tags:               in.Tags,
		CreatedAt:          s.now(),
		CreatedBy:          in.CreatedBy,
	}
	if c.Status == "" {
		c.Status = domain.ChallengeDraft
	}
	if !c.WindowValid() {
		problems = append(problems, "start_at must not be after end_at")
	}
	if len(problems) > 0 {
		return zero, fmt.Errorf("%w: %s", ErrInvalidChallenge, strings.Join(problems, "; "))
	}

	if err := s.writer.InsertChallenge(ctx, c); err != nil {
		return zero, fmt.Errorf("insert challenge: %w", err)
	}

	s.invalidate(ctx, fetch.FamilyChallenges, fetch.FamilyChallenge)
	s.log.WithFields(logrus.Fields{
		"challenge_id": c.ID,
		"tribe_id":     c.TribeID,
		"status":       c.Status,
	}).Info("Challenge created")
	return c, nil
}

// SetStatus moves a challenge to the given status.
func (s *Service) SetStatus(ctx context.Context, id string, to domain.ChallengeStatus) (domain.TribeChallenge, error) {
	var zero domain.TribeChallenge

	resp := s.Challenge(ctx, id)
	if resp.Data == nil {
		return zero, fmt.Errorf("%w: %s", ErrChallengeNotFound, id)
	}
	c := *resp.Data

	if err := ValidateTransition(c.Status, to); err != nil {
		return zero, err
	}
	if c.Status == to {
		return c, nil
	}

	if err := s.writer.UpdateChallengeStatus(ctx, id, to); err != nil {
		return zero, fmt.Errorf("update challenge status: %w", err)
	}

	s.invalidate(ctx, fetch.FamilyChallenges, fetch.FamilyChallenge)
	s.log.WithFields(logrus.Fields{
		"challenge_id": id,
		"from":         c.Status,
		"to":           to,
	}).Info("Challenge status changed")

	c.Status = to
	return c, nil
}

func (s *Service) invalidate(ctx context.Context, families ...string) {
	if _, err := s.reader.Invalidate(ctx, families...); err != nil {
		s.log.WithError(err).WithField("families", families).Warn("Cache invalidation failed")
	}
}

// =============================================================================
// Leaderboards
// =============================================================================

// TribeLeaderboard ranks the members of a tribe by the points their
// submissions earned.
func (s *Service) TribeLeaderboard(ctx context.Context, tribeID string) fetch.Response[[]domain.MemberRanking] {
	challenges := s.Challenges(ctx, domain.ChallengeFilter{TribeID: tribeID})
	subs := s.Submissions(ctx, domain.SubmissionFilter{TribeID: tribeID})

	entries := ranking.FromSubmissions(byID(challenges.Data), subs.Data, ranking.ByUser)
	ranked := ranking.Compute(entries)

	return fetch.Response[[]domain.MemberRanking]{
		Data:   ranking.Members(tribeID, ranked, s.now()),
		Origin: subs.Origin,
		Cached: challenges.Cached && subs.Cached,
		Errors: join(challenges.Errors, subs.Errors),
	}
}

// TribeRankings ranks every tribe by the points its members earned. Tribes
// without points rank by creation time.
func (s *Service) TribeRankings(ctx context.Context, n int) fetch.Response[[]domain.TribeRanking] {
	tribes := s.reader.Tribes(ctx, domain.TribeFilter{})
	challenges := s.Challenges(ctx, domain.ChallengeFilter{})
	subs := s.Submissions(ctx, domain.SubmissionFilter{})

	entries := ranking.FromSubmissions(byID(challenges.Data), subs.Data, ranking.ByTribe)
	scored := make(map[string]bool, len(entries))
	for _, e := range entries {
		scored[e.SubjectID] = true
	}
	for _, t := range tribes.Data {
		if !scored[t.ID] {
			entries = append(entries, ranking.Entry{SubjectID: t.ID, EarnedAt: t.CreatedAt})
		}
	}

	ranked := ranking.Top(ranking.Compute(entries), n)
	return fetch.Response[[]domain.TribeRanking]{
		Data:   ranking.Tribes(ranked, s.now()),
		Origin: tribes.Origin,
		Cached: tribes.Cached && challenges.Cached && subs.Cached,
		Errors: join(tribes.Errors, challenges.Errors, subs.Errors),
	}
}

func byID(list []domain.TribeChallenge) map[string]domain.TribeChallenge {
	out := make(map[string]domain.TribeChallenge, len(list))
	for _, c := range list {
		out[c.ID] = c
	}
	return out
}

func join(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
