// Package gametype classifies how a game was organized.
package gametype

// Type distinguishes ladder quickmatches from organized events.
type Type int

const (
	Unknown Type = iota
	Quickmatch
	Showmatch
	WorldSeries

	Count
)

var names = [Count]string{"Unknown", "Quickmatch", "Showmatch", "World Series"}
var shortNames = [Count]string{"?", "qm", "show", "ws"}

func (t Type) String() string {
	if t < 0 || t >= Count {
		return names[Unknown]
	}
	return names[t]
}

// ShortName is the identifier used in exports.
func (t Type) ShortName() string {
	if t < 0 || t >= Count {
		return shortNames[Unknown]
	}
	return shortNames[t]
}

// FromShortName resolves an export identifier back to its type.
func FromShortName(s string) Type {
	for i := Type(0); i < Count; i++ {
		if shortNames[i] == s {
			return i
		}
	}
	return Unknown
}
