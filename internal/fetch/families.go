package fetch

import (
	"context"

	"github.com/fitfi/service_layer/internal/domain"
)

type idKey struct {
	ID string `json:"id"`
}

// Products lists products. The default is an empty list.
func (s *Service) Products(ctx context.Context, f domain.ProductFilter) Response[[]domain.Product] {
	return resolve(ctx, s, request[[]domain.Product]{
		family: FamilyProducts,
		opts:   f,
		def:    []domain.Product{},
		get: func(ctx context.Context, src Source) ([]domain.Product, error) {
			return src.Products(ctx, f)
		},
		found: always[[]domain.Product],
	})
}

// Outfits lists outfits. The default is an empty list.
func (s *Service) Outfits(ctx context.Context, f domain.OutfitFilter) Response[[]domain.Outfit] {
	return resolve(ctx, s, request[[]domain.Outfit]{
		family: FamilyOutfits,
		opts:   f,
		def:    []domain.Outfit{},
		get: func(ctx context.Context, src Source) ([]domain.Outfit, error) {
			return src.Outfits(ctx, f)
		},
		found: always[[]domain.Outfit],
	})
}

// User returns one profile. The default is nil.
func (s *Service) User(ctx context.Context, id string) Response[*domain.UserProfile] {
	return resolve(ctx, s, request[*domain.UserProfile]{
		family: FamilyUser,
		opts:   idKey{ID: id},
		get: func(ctx context.Context, src Source) (*domain.UserProfile, error) {
			return src.User(ctx, id)
		},
		found: notNil[domain.UserProfile],
	})
}

// Tribes lists tribes. The default is an empty list.
func (s *Service) Tribes(ctx context.Context, f domain.TribeFilter) Response[[]domain.Tribe] {
	return resolve(ctx, s, request[[]domain.Tribe]{
		family: FamilyTribes,
		opts:   f,
		def:    []domain.Tribe{},
		get: func(ctx context.Context, src Source) ([]domain.Tribe, error) {
			return src.Tribes(ctx, f)
		},
		found: always[[]domain.Tribe],
	})
}

// TribeBySlug returns one tribe with the caller's membership attached when
// l.UserID is set. The default is nil.
func (s *Service) TribeBySlug(ctx context.Context, l domain.TribeLookup) Response[*domain.Tribe] {
	return resolve(ctx, s, request[*domain.Tribe]{
		family: FamilyTribe,
		opts:   l,
		get: func(ctx context.Context, src Source) (*domain.Tribe, error) {
			return src.TribeBySlug(ctx, l)
		},
		found: notNil[domain.Tribe],
	})
}

// Challenges lists challenges. The default is an empty list.
func (s *Service) Challenges(ctx context.Context, f domain.ChallengeFilter) Response[[]domain.TribeChallenge] {
	return resolve(ctx, s, request[[]domain.TribeChallenge]{
		family: FamilyChallenges,
		opts:   f,
		def:    []domain.TribeChallenge{},
		get: func(ctx context.Context, src Source) ([]domain.TribeChallenge, error) {
			return src.Challenges(ctx, f)
		},
		found: always[[]domain.TribeChallenge],
	})
}

// Challenge returns one challenge. The default is nil.
func (s *Service) Challenge(ctx context.Context, id string) Response[*domain.TribeChallenge] {
	return resolve(ctx, s, request[*domain.TribeChallenge]{
		family: FamilyChallenge,
		opts:   idKey{ID: id},
		get: func(ctx context.Context, src Source) (*domain.TribeChallenge, error) {
			return src.Challenge(ctx, id)
		},
		found: notNil[domain.TribeChallenge],
	})
}

// Submissions lists submissions. The default is an empty list.
func (s *Service) Submissions(ctx context.Context, f domain.SubmissionFilter) Response[[]domain.TribeChallengeSubmission] {
	return resolve(ctx, s, request[[]domain.TribeChallengeSubmission]{
		family: FamilySubmissions,
		opts:   f,
		def:    []domain.TribeChallengeSubmission{},
		get: func(ctx context.Context, src Source) ([]domain.TribeChallengeSubmission, error) {
			return src.Submissions(ctx, f)
		},
		found: always[[]domain.TribeChallengeSubmission],
	})
}
