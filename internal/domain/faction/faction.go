// Package faction models the playable Red Alert 2 / Yuri's Revenge sides
// and the 1v1 faction matchups derived from them.
package faction

import "strings"

// Faction identifies a playable side. Combined is the cross-faction
// aggregate used for the overall rating of a player.
type Faction int

const (
	Soviet Faction = iota
	Allied
	Yuri
	Combined
	Unknown
)

// Count is the number of rated factions, including Combined.
const Count = 4

var names = [Count]string{"Soviet", "Allied", "Yuri", "All/Sov"}
var shortNames = [Count]string{"sov", "all", "yur", "mix"}
var letters = [Count]string{"s", "a", "y", "m"}

func (f Faction) String() string    { return names[int(f)%Count] }
func (f Faction) ShortName() string { return shortNames[int(f)%Count] }
func (f Faction) Letter() string    { return letters[int(f)%Count] }

// All lists the rated factions in index order.
func All() [Count]Faction {
	return [Count]Faction{Soviet, Allied, Yuri, Combined}
}

// FromCountry resolves the country name stored with a game participant to
// its faction. Matching is by substring so decorated names still resolve.
func FromCountry(name string) Faction {
	lowered := strings.ToLower(name)

	for _, c := range []string{"greece", "turkey", "england", "spain", "france", "germany", "america", "korea", "britain"} {
		if strings.Contains(lowered, c) {
			return Allied
		}
	}
	for _, c := range []string{"ukraine", "iraq", "russia", "cuba", "libya"} {
		if strings.Contains(lowered, c) {
			return Soviet
		}
	}
	if strings.Contains(lowered, "yuri") {
		return Yuri
	}
	return Unknown
}

// FromShortName resolves the short names used in the JSON exports.
func FromShortName(short string) Faction {
	for i, s := range shortNames {
		if s == short {
			return Faction(i)
		}
	}
	return Unknown
}

// Country identifies the exact country of a participant where the ladder
// records one. Only used for per-country statistics.
type Country int

const (
	UnknownCountry Country = iota
	Libya
	Cuba
	Russia
	Iraq
	Germany
	America
	Britain
	Korea
	France
)

var countriesByName = map[string]Country{
	"iraq":    Iraq,
	"britain": Britain,
	"france":  France,
	"america": America,
	"germany": Germany,
	"korea":   Korea,
	"russia":  Russia,
	"cuba":    Cuba,
	"libya":   Libya,
}

// CountryFromName resolves a lowercase-insensitive country name.
func CountryFromName(name string) Country {
	if c, ok := countriesByName[strings.ToLower(name)]; ok {
		return c
	}
	return UnknownCountry
}
