package domain

import "time"

// Gender values used by the product catalogue.
const (
	GenderFemale = "female"
	GenderMale   = "male"
	GenderUnisex = "unisex"
)

// Product is a single catalogue item.
type Product struct {
	ID           string    `json:"id" yaml:"id"`
	Title        string    `json:"title" yaml:"title"`
	Brand        string    `json:"brand,omitempty" yaml:"brand"`
	Description  string    `json:"description,omitempty" yaml:"description"`
	Gender       string    `json:"gender,omitempty" yaml:"gender"`
	Category     string    `json:"category,omitempty" yaml:"category"`
	Archetype    string    `json:"archetype,omitempty" yaml:"archetype"`
	Price        float64   `json:"price" yaml:"price"`
	ImageURL     string    `json:"image_url,omitempty" yaml:"image_url"`
	AffiliateURL string    `json:"affiliate_url,omitempty" yaml:"affiliate_url"`
	StyleTags    []string  `json:"style_tags,omitempty" yaml:"style_tags"`
	Season       string    `json:"season,omitempty" yaml:"season"`
	CreatedAt    time.Time `json:"created_at,omitempty" yaml:"created_at"`
}

// Outfit is a curated combination of products.
type Outfit struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description"`
	Archetype   string    `json:"archetype,omitempty" yaml:"archetype"`
	Tags        []string  `json:"tags,omitempty" yaml:"tags"`
	Season      string    `json:"season,omitempty" yaml:"season"`
	Occasion    string    `json:"occasion,omitempty" yaml:"occasion"`
	ProductIDs  []string  `json:"product_ids,omitempty" yaml:"product_ids"`
	ImageURL    string    `json:"image_url,omitempty" yaml:"image_url"`
	MatchScore  float64   `json:"match_score,omitempty" yaml:"match_score"`
	CreatedAt   time.Time `json:"created_at,omitempty" yaml:"created_at"`
}

// StylePreferences holds 1-5 affinities per style axis.
type StylePreferences struct {
	Casual     int `json:"casual" yaml:"casual"`
	Formal     int `json:"formal" yaml:"formal"`
	Sporty     int `json:"sporty" yaml:"sporty"`
	Vintage    int `json:"vintage" yaml:"vintage"`
	Minimalist int `json:"minimalist" yaml:"minimalist"`
}

// UserProfile is the style profile of a single user.
type UserProfile struct {
	ID          string           `json:"id" yaml:"id"`
	Name        string           `json:"name" yaml:"name"`
	Email       string           `json:"email,omitempty" yaml:"email"`
	Gender      string           `json:"gender,omitempty" yaml:"gender"`
	Archetypes  []string         `json:"archetypes,omitempty" yaml:"archetypes"`
	Preferences StylePreferences `json:"preferences" yaml:"preferences"`
	IsPremium   bool             `json:"is_premium" yaml:"is_premium"`
	CreatedAt   time.Time        `json:"created_at,omitempty" yaml:"created_at"`
}
