package domain

import "time"

// TribeRanking is a derived standing of a tribe. It is never authored
// directly; the ranking aggregator recomputes it from point sources.
type TribeRanking struct {
	TribeID   string    `json:"tribe_id"`
	Points    int       `json:"points"`
	Rank      int       `json:"rank"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MemberRanking is a member's standing inside one tribe.
type MemberRanking struct {
	TribeID   string    `json:"tribe_id"`
	UserID    string    `json:"user_id"`
	Points    int       `json:"points"`
	Rank      int       `json:"rank"`
	UpdatedAt time.Time `json:"updated_at"`
}
