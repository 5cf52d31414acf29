package domain

import (
	"strings"
	"time"
)

// SubmissionType is derived from which content fields a submission carries.
type SubmissionType string

const (
	SubmissionText  SubmissionType = "text"
	SubmissionImage SubmissionType = "image"
	SubmissionLink  SubmissionType = "link"
	SubmissionCombo SubmissionType = "combo"
)

// Valid reports whether t is a known submission type.
func (t SubmissionType) Valid() bool {
	switch t {
	case SubmissionText, SubmissionImage, SubmissionLink, SubmissionCombo:
		return true
	default:
		return false
	}
}

// DeriveSubmissionType maps the populated fields to a type. Image and link
// together are a combo; an image or link wins over plain text. ok is false
// when no field is populated.
func DeriveSubmissionType(content, imageURL, linkURL string) (t SubmissionType, ok bool) {
	hasContent := strings.TrimSpace(content) != ""
	hasImage := strings.TrimSpace(imageURL) != ""
	hasLink := strings.TrimSpace(linkURL) != ""

	switch {
	case hasImage && hasLink:
		return SubmissionCombo, true
	case hasImage:
		return SubmissionImage, true
	case hasLink:
		return SubmissionLink, true
	case hasContent:
		return SubmissionText, true
	default:
		return "", false
	}
}

// TribeChallengeSubmission is a user's entry into a challenge. Score and
// IsWinner are assigned later by judging.
type TribeChallengeSubmission struct {
	ID             string         `json:"id" yaml:"id"`
	TribeID        string         `json:"tribe_id" yaml:"tribe_id"`
	ChallengeID    string         `json:"challenge_id" yaml:"challenge_id"`
	UserID         string         `json:"user_id" yaml:"user_id"`
	UserName       string         `json:"user_name" yaml:"user_name"`
	Content        string         `json:"content,omitempty" yaml:"content"`
	ImageURL       string         `json:"image_url,omitempty" yaml:"image_url"`
	LinkURL        string         `json:"link_url,omitempty" yaml:"link_url"`
	SubmissionType SubmissionType `json:"submission_type" yaml:"submission_type"`
	Score          *int           `json:"score,omitempty" yaml:"score"`
	IsWinner       bool           `json:"is_winner" yaml:"is_winner"`
	CreatedAt      time.Time      `json:"created_at" yaml:"created_at"`
}

// HasContent reports whether at least one content field is populated.
func (s TribeChallengeSubmission) HasContent() bool {
	_, ok := DeriveSubmissionType(s.Content, s.ImageURL, s.LinkURL)
	return ok
}
