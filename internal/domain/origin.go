// Package domain holds the entity types shared by the data-access core and the
// challenge domain.
package domain

// Origin names the tier that satisfied a fetch.
type Origin string

const (
	OriginRemote   Origin = "remote"
	OriginSnapshot Origin = "snapshot"
	OriginDefault  Origin = "default"
)

// Valid reports whether o is one of the known tiers.
func (o Origin) Valid() bool {
	switch o {
	case OriginRemote, OriginSnapshot, OriginDefault:
		return true
	default:
		return false
	}
}

func (o Origin) String() string {
	return string(o)
}
