package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/fitfi/service_layer/internal/domain"
)

// Report summarises snapshot health.
type Report struct {
	Valid    bool           `json:"valid"`
	Errors   []string       `json:"errors"`
	Warnings []string       `json:"warnings"`
	Counts   map[string]int `json:"counts"`
}

var (
	errMissingID   = errors.New("missing id")
	errMissingName = errors.New("missing name")
)

// Validate loads every configured family. Unreadable files are errors;
// empty collections, dropped records and missing optional fields are
// warnings. Families without a configured path are skipped.
func (a *Adapter) Validate(ctx context.Context) Report {
	r := Report{Errors: []string{}, Warnings: []string{}, Counts: map[string]int{}}

	check(&r, a, FamilyProducts, a.paths.Products, validProduct, func(p domain.Product) []string {
		var w []string
		if p.ImageURL == "" {
			w = append(w, "missing image_url")
		}
		if p.Price <= 0 {
			w = append(w, "missing price")
		}
		return w
	})
	check(&r, a, FamilyOutfits, a.paths.Outfits, validOutfit, func(o domain.Outfit) []string {
		if len(o.Tags) == 0 && o.Archetype == "" {
			return []string{"no archetype tags"}
		}
		return nil
	})
	check(&r, a, FamilyUsers, a.paths.Users, validUser, func(u domain.UserProfile) []string {
		if u.Name == "" {
			return []string{"missing name"}
		}
		return nil
	})
	check(&r, a, FamilyTribes, a.paths.Tribes, validTribe, func(t domain.Tribe) []string {
		if t.Description == "" {
			return []string{"missing description"}
		}
		return nil
	})
	check(&r, a, FamilyTribeMembers, a.paths.TribeMembers, validMember, nil)
	check(&r, a, FamilyChallenges, a.paths.Challenges, validChallenge, func(c domain.TribeChallenge) []string {
		if c.RewardPoints == 0 {
			return []string{"no reward points"}
		}
		return nil
	})
	check(&r, a, FamilySubmissions, a.paths.Submissions, validSubmission, nil)

	r.Valid = len(r.Errors) == 0
	return r
}

func check[T any](r *Report, a *Adapter, family, path string, valid func(T) error, optional func(T) []string) {
	if path == "" {
		return
	}
	items, dropped, err := load(a, family, path, valid)
	if err != nil {
		r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", family, err))
		return
	}
	r.Counts[family] = len(items)
	if len(items) == 0 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("%s: collection is empty", family))
	}
	for _, d := range dropped {
		r.Warnings = append(r.Warnings, "dropped "+d)
	}
	if optional == nil {
		return
	}
	for i, item := range items {
		for _, w := range optional(item) {
			r.Warnings = append(r.Warnings, fmt.Sprintf("%s[%d]: %s", family, i, w))
		}
	}
}

func validProduct(p domain.Product) error {
	if p.ID == "" {
		return errMissingID
	}
	if p.Title == "" {
		return errMissingName
	}
	return nil
}

func validOutfit(o domain.Outfit) error {
	if o.ID == "" {
		return errMissingID
	}
	if o.Name == "" {
		return errMissingName
	}
	return nil
}

func validUser(u domain.UserProfile) error {
	if u.ID == "" {
		return errMissingID
	}
	return nil
}

func validTribe(t domain.Tribe) error {
	if t.ID == "" {
		return errMissingID
	}
	if t.Slug == "" || t.Name == "" {
		return errMissingName
	}
	return nil
}

func validMember(m domain.TribeMember) error {
	if m.TribeID == "" || m.UserID == "" {
		return errors.New("missing tribe_id or user_id")
	}
	return nil
}

func validChallenge(c domain.TribeChallenge) error {
	if c.ID == "" {
		return errMissingID
	}
	if c.TribeID == "" || c.Title == "" {
		return errors.New("missing tribe_id or title")
	}
	if !c.WindowValid() {
		return errors.New("start_at after end_at")
	}
	return nil
}

func validSubmission(s domain.TribeChallengeSubmission) error {
	if s.ID == "" {
		return errMissingID
	}
	if s.ChallengeID == "" {
		return errors.New("missing challenge_id")
	}
	if !s.HasContent() {
		return errors.New("no content, image_url or link_url")
	}
	return nil
}
