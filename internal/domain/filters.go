package domain

// Filter types are shared by the remote and snapshot tiers so both apply the
// same predicates. Their JSON encoding is part of the cache key, so fields
// are emitted in declaration order and empty values are omitted.

// ProductFilter selects products by equality on each set field.
type ProductFilter struct {
	Gender    string `json:"gender,omitempty"`
	Category  string `json:"category,omitempty"`
	Archetype string `json:"archetype,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// OutfitFilter selects outfits whose archetype tags contain Archetype.
type OutfitFilter struct {
	Archetype string `json:"archetype,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// TribeFilter selects tribes. A nil Featured matches both.
type TribeFilter struct {
	Featured  *bool  `json:"featured,omitempty"`
	Archetype string `json:"archetype,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// TribeLookup selects one tribe by slug, optionally annotated with a user's membership.
type TribeLookup struct {
	Slug   string `json:"slug"`
	UserID string `json:"user_id,omitempty"`
}

// ChallengeFilter selects tribe challenges.
type ChallengeFilter struct {
	TribeID string          `json:"tribe_id,omitempty"`
	Status  ChallengeStatus `json:"status,omitempty"`
	Limit   int             `json:"limit,omitempty"`
}

// SubmissionFilter selects challenge submissions.
type SubmissionFilter struct {
	ChallengeID string `json:"challenge_id,omitempty"`
	TribeID     string `json:"tribe_id,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// Match reports whether p satisfies the filter, ignoring Limit.
func (f ProductFilter) Match(p Product) bool {
	return (f.Gender == "" || p.Gender == f.Gender) &&
		(f.Category == "" || p.Category == f.Category) &&
		(f.Archetype == "" || p.Archetype == f.Archetype)
}

// Match reports whether o's tags contain the archetype, ignoring Limit.
func (f OutfitFilter) Match(o Outfit) bool {
	if f.Archetype == "" {
		return true
	}
	for _, tag := range o.Tags {
		if tag == f.Archetype {
			return true
		}
	}
	return false
}

// Match reports whether t satisfies the filter, ignoring Limit.
func (f TribeFilter) Match(t Tribe) bool {
	if f.Featured != nil && t.Featured != *f.Featured {
		return false
	}
	return f.Archetype == "" || t.Archetype == f.Archetype
}

// Match reports whether c satisfies the filter, ignoring Limit.
func (f ChallengeFilter) Match(c TribeChallenge) bool {
	return (f.TribeID == "" || c.TribeID == f.TribeID) &&
		(f.Status == "" || c.Status == f.Status)
}

// Match reports whether s satisfies the filter, ignoring Limit.
func (f SubmissionFilter) Match(s TribeChallengeSubmission) bool {
	return (f.ChallengeID == "" || s.ChallengeID == f.ChallengeID) &&
		(f.TribeID == "" || s.TribeID == f.TribeID) &&
		(f.UserID == "" || s.UserID == f.UserID)
}
