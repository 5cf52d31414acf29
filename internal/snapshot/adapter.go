package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fitfi/service_layer/internal/domain"
	"github.com/fitfi/service_layer/internal/logging"
)

// Family names as used in logs and reports.
const (
	FamilyProducts     = "products"
	FamilyOutfits      = "outfits"
	FamilyUsers        = "users"
	FamilyTribes       = "tribes"
	FamilyTribeMembers = "tribe_members"
	FamilyChallenges   = "challenges"
	FamilySubmissions  = "submissions"
)

// Adapter reads snapshot files and applies the same filters as the remote
// store in memory. Files are read on every call.
type Adapter struct {
	paths Paths
	root  string
	log   *logrus.Entry
}

// New creates an adapter. root is an optional JSONPath expression selecting
// the collection inside each file.
func New(paths Paths, root string, logger *logging.Logger) *Adapter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Adapter{
		paths: paths,
		root:  root,
		log:   logger.WithComponent("snapshot"),
	}
}

// Paths returns the configured files.
func (a *Adapter) Paths() Paths {
	return a.paths
}

// Products lists products matching f in file order.
func (a *Adapter) Products(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	items, _, err := load(a, FamilyProducts, a.paths.Products, validProduct)
	if err != nil {
		return nil, err
	}
	return limit(filter(items, f.Match), f.Limit), nil
}

// Outfits lists outfits matching f in file order.
func (a *Adapter) Outfits(ctx context.Context, f domain.OutfitFilter) ([]domain.Outfit, error) {
	items, _, err := load(a, FamilyOutfits, a.paths.Outfits, validOutfit)
	if err != nil {
		return nil, err
	}
	return limit(filter(items, f.Match), f.Limit), nil
}

// User returns the profile with id, or nil when the file has none.
func (a *Adapter) User(ctx context.Context, id string) (*domain.UserProfile, error) {
	items, _, err := load(a, FamilyUsers, a.paths.Users, validUser)
	if err != nil {
		return nil, err
	}
	return first(items, func(u domain.UserProfile) bool { return u.ID == id }), nil
}

// Tribes lists tribes matching f, largest first.
func (a *Adapter) Tribes(ctx context.Context, f domain.TribeFilter) ([]domain.Tribe, error) {
	items, _, err := load(a, FamilyTribes, a.paths.Tribes, validTribe)
	if err != nil {
		return nil, err
	}
	items = filter(items, f.Match)
	sort.SliceStable(items, func(i, j int) bool { return items[i].MemberCount > items[j].MemberCount })
	return limit(items, f.Limit), nil
}

// TribeBySlug returns the tribe with the slug, annotated with the user's
// membership when l.UserID is set. A missing members file leaves the tribe
// unannotated.
func (a *Adapter) TribeBySlug(ctx context.Context, l domain.TribeLookup) (*domain.Tribe, error) {
	items, _, err := load(a, FamilyTribes, a.paths.Tribes, validTribe)
	if err != nil {
		return nil, err
	}
	tribe := first(items, func(t domain.Tribe) bool { return t.Slug == l.Slug })
	if tribe == nil || l.UserID == "" {
		return tribe, nil
	}

	members, _, err := load(a, FamilyTribeMembers, a.paths.TribeMembers, validMember)
	if err != nil {
		a.log.WithError(err).Debug("tribe members snapshot unavailable")
		return tribe, nil
	}
	member := first(members, func(m domain.TribeMember) bool {
		return m.TribeID == tribe.ID && m.UserID == l.UserID
	})
	annotated := tribe.WithMembership(member)
	return &annotated, nil
}

// Challenges lists challenges matching f, newest first.
func (a *Adapter) Challenges(ctx context.Context, f domain.ChallengeFilter) ([]domain.TribeChallenge, error) {
	items, _, err := load(a, FamilyChallenges, a.paths.Challenges, validChallenge)
	if err != nil {
		return nil, err
	}
	items = filter(items, f.Match)
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return limit(items, f.Limit), nil
}

// Challenge returns one challenge, or nil when the file has none.
func (a *Adapter) Challenge(ctx context.Context, id string) (*domain.TribeChallenge, error) {
	items, _, err := load(a, FamilyChallenges, a.paths.Challenges, validChallenge)
	if err != nil {
		return nil, err
	}
	return first(items, func(c domain.TribeChallenge) bool { return c.ID == id }), nil
}

// Submissions lists submissions matching f, newest first.
func (a *Adapter) Submissions(ctx context.Context, f domain.SubmissionFilter) ([]domain.TribeChallengeSubmission, error) {
	items, _, err := load(a, FamilySubmissions, a.paths.Submissions, validSubmission)
	if err != nil {
		return nil, err
	}
	items = filter(items, f.Match)
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return limit(items, f.Limit), nil
}

// =============================================================================
// Generic helpers
// =============================================================================

// load decodes every record of a family and drops those failing check.
// It returns the kept records and the reasons for each dropped one.
func load[T any](a *Adapter, family, path string, check func(T) error) ([]T, []string, error) {
	raws, err := loadRecords(family, path, a.root)
	if err != nil {
		return nil, nil, err
	}

	items := make([]T, 0, len(raws))
	var dropped []string
	for i, raw := range raws {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			dropped = append(dropped, fmt.Sprintf("%s[%d]: %v", family, i, err))
			continue
		}
		if err := check(item); err != nil {
			dropped = append(dropped, fmt.Sprintf("%s[%d]: %v", family, i, err))
			continue
		}
		items = append(items, item)
	}

	if len(dropped) > 0 {
		a.log.WithFields(logrus.Fields{
			"family":  family,
			"dropped": len(dropped),
			"reasons": strings.Join(dropped, "; "),
		}).Warn("dropped invalid snapshot records")
	}
	return items, dropped, nil
}

func filter[T any](items []T, keep func(T) bool) []T {
	out := items[:0:0]
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

func first[T any](items []T, match func(T) bool) *T {
	for i := range items {
		if match(items[i]) {
			item := items[i]
			return &item
		}
	}
	return nil
}
