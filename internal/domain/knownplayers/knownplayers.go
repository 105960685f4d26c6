// Package knownplayers carries hand-maintained knowledge about individual
// ladder accounts: seed ratings, pro players, and test accounts.
package knownplayers

import "github.com/blitzladder/blitzrate/internal/domain/gamemode"

// Well-known user ids, mostly long-time community members. Handy for
// seeding and for regression checks against published ladder history.
const (
	Luke       uint32 = 152
	Marko      uint32 = 928
	Edd        uint32 = 2152
	Latof      uint32 = 3118
	Lloyd      uint32 = 17221
	Qien       uint32 = 17651
	Mueller    uint32 = 24830
	Lgnd       uint32 = 35501
	Snark      uint32 = 36141
	Diego      uint32 = 42083
	Root       uint32 = 48373
	Ardee      uint32 = 51203
	Iver       uint32 = 53431
	Kwos       uint32 = 54423
	Gator      uint32 = 55403
	Sneer      uint32 = 58860
	FourLights uint32 = 58868
	Ziggy      uint32 = 60864
	BlitzBot   uint32 = 64304
)

// Accounts which caused rating instabilities in the past.
const (
	Buffalo  uint32 = 21
	Kain     uint32 = 39603
	GemZKing uint32 = 70820
)

var proPlayers = []uint32{Marko, Latof, Qien}

// IsProPlayer reports whether the account belongs to the pro bracket.
func IsProPlayer(id uint32) bool {
	for _, p := range proPlayers {
		if p == id {
			return true
		}
	}
	return false
}

// testAccounts are staff and QA accounts that never enter the ratings.
var testAccounts = map[uint32]struct{}{
	59825: {}, 69266: {}, 75413: {}, 75411: {}, 75636: {},
	11533: {}, 12934: {}, 59854: {}, 60320: {}, 60348: {},
	60366: {}, 63387: {}, 69268: {}, 76947: {},
}

// IsTestAccount reports whether the account is excluded from rating.
func IsTestAccount(id uint32) bool {
	_, ok := testAccounts[id]
	return ok
}

// InitialRatingAndDeviation returns the seed rating for an account.
//
// A couple of players carry starting values. These values do not change
// the final result in terms of gaps, they just anchor everyone's rating:
// whenever the system is tuned, these seeds keep published ratings stable
// so players do not see their number move without having played. Because
// of the high initial deviation the seed has no effect after 20-30 games.
func InitialRatingAndDeviation(userID uint32, mode gamemode.Mode) (rating, deviation float64) {
	rating, deviation = 1500.0, 350.0

	in := func(ids ...uint32) bool {
		for _, id := range ids {
			if id == userID {
				return true
			}
		}
		return false
	}

	switch mode {
	case gamemode.Blitz:
		switch {
		case in(Latof, Qien, Marko, Kwos):
			rating, deviation = 1850.0, 250.0
		case in(Ardee, Edd, Root, Luke):
			rating, deviation = 1700.0, 250.0
		case in(Iver, Sneer, Diego):
			rating, deviation = 1150.0, 250.0
		case in(BlitzBot):
			rating, deviation = 500.0, 200.0
		}
	case gamemode.RedAlert2:
		switch {
		case in(Latof, Qien, Marko, Kwos, Lgnd):
			rating, deviation = 1650.0, 300.0
		case in(Mueller):
			rating, deviation = 800.0, 250.0
		}
	default:
		if in(Mueller) {
			rating, deviation = 800.0, 250.0
		}
	}
	return rating, deviation
}
