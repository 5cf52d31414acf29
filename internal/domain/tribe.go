package domain

import "time"

// Role is a member's role inside a tribe.
type Role string

const (
	RoleNone      Role = ""
	RoleMember    Role = "member"
	RoleModerator Role = "moderator"
	RoleOwner     Role = "owner"
)

// Tribe is a community group. ID is the identity key, Slug is unique.
type Tribe struct {
	ID          string    `json:"id" yaml:"id"`
	Slug        string    `json:"slug" yaml:"slug"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description"`
	Archetype   string    `json:"archetype,omitempty" yaml:"archetype"`
	ImageURL    string    `json:"image_url,omitempty" yaml:"image_url"`
	MemberCount int       `json:"member_count" yaml:"member_count"`
	Tags        []string  `json:"tags,omitempty" yaml:"tags"`
	Featured    bool      `json:"featured" yaml:"featured"`
	IsMember    bool      `json:"is_member" yaml:"is_member"`
	UserRole    Role      `json:"user_role,omitempty" yaml:"user_role"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// TribeMember links a user to a tribe.
type TribeMember struct {
	ID       string    `json:"id" yaml:"id"`
	TribeID  string    `json:"tribe_id" yaml:"tribe_id"`
	UserID   string    `json:"user_id" yaml:"user_id"`
	Role     Role      `json:"role" yaml:"role"`
	JoinedAt time.Time `json:"joined_at" yaml:"joined_at"`
}

// WithMembership returns a copy of t annotated with the given membership.
// A nil member clears the membership fields.
func (t Tribe) WithMembership(m *TribeMember) Tribe {
	if m == nil {
		t.IsMember = false
		t.UserRole = RoleNone
		return t
	}
	t.IsMember = true
	t.UserRole = m.Role
	if t.UserRole == RoleNone {
		t.UserRole = RoleMember
	}
	return t
}
