package faction

// Setup is a 1v1 faction matchup from the first player's point of view.
type Setup int

const (
	SvS Setup = iota
	AvS
	SvA
	AvA
	SvY
	YvS
	AvY
	YvA
	YvY
	UnknownSetup
)

// SetupCount is the number of distinct matchups.
const SetupCount = 9

var setupNames = map[Setup]string{
	SvS: "SvS", AvS: "AvS", SvA: "SvA", AvA: "AvA",
	SvY: "SvY", YvS: "YvS", AvY: "AvY", YvA: "YvA", YvY: "YvY",
}

func (s Setup) String() string {
	if n, ok := setupNames[s]; ok {
		return n
	}
	return "???"
}

// SetupOf builds the matchup for the given pair of factions.
func SetupOf(first, second Faction) Setup {
	switch first {
	case Soviet:
		switch second {
		case Soviet:
			return SvS
		case Allied:
			return SvA
		case Yuri:
			return SvY
		}
	case Allied:
		switch second {
		case Soviet:
			return AvS
		case Allied:
			return AvA
		case Yuri:
			return AvY
		}
	case Yuri:
		switch second {
		case Soviet:
			return YvS
		case Allied:
			return YvA
		case Yuri:
			return YvY
		}
	}
	return UnknownSetup
}

// First returns the faction of the first player in the matchup.
func (s Setup) First() Faction {
	switch s {
	case AvA, AvS, AvY:
		return Allied
	case SvA, SvS, SvY:
		return Soviet
	case YvA, YvS, YvY:
		return Yuri
	}
	return Unknown
}

// Second returns the faction of the second player in the matchup.
func (s Setup) Second() Faction {
	switch s {
	case AvA, SvA, YvA:
		return Allied
	case AvS, SvS, YvS:
		return Soviet
	case AvY, SvY, YvY:
		return Yuri
	}
	return Unknown
}

// Mirror swaps the point of view of the matchup.
func (s Setup) Mirror() Setup {
	return SetupOf(s.Second(), s.First())
}
