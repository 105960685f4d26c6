// Package blitzmap is the canonical catalog of RA2 Blitz ladder maps and
// a fuzzy resolver for the noisy map names the game clients report.
package blitzmap

import "strings"

// Size buckets maps for statistics.
type Size int

const (
	Small Size = iota
	Medium
	Large
)

// Count is the number of canonical Blitz maps.
const Count = 45

var names = [Count]string{
	"Alamo", "Kong", "Big Little Lake", "Castle", "Oasis", "Doom", "Yin Yang", "Brute", "Mummy", "Surge",
	"Prime", "Demo", "Spark", "Carnival", "Bongo", "Boom", "Texas", "Volley", "River Riot", "Toothpick",
	"Tundra", "King's Hill", "Dry Heat", "Pirate Bay", "Breaking Bad", "Skyrim Shot", "Quick Sand", "Paika BLITZ",
	"The Doofus Omnibus", "The Burg", "Downhill Rush", "Cloud Nine", "LgndFan", "Dune II", "Momento",
	"Revenant", "Chimp Frenzy", "Equinox", "RIP Jaws", "The Path More Traveled", "Jeen Strike", "Thunder Dome",
	"Caladan", "Campgrounds", "Night Shade",
}

var shortNames = [Count]string{
	"alamo", "kong", "lake", "castle", "oasis", "doom", "yinyang", "brute", "mummy", "surge",
	"prime", "demo", "spark", "carnival", "bongo", "boom", "texas", "volley", "river riot", "toothpick",
	"tundra", "kingshill", "dryheat", "piratebay", "breaking bad", "skyrim shot", "quick sand", "paika",
	"omnibus", "theburg", "downhillrush", "cloudnine", "lgndfan", "dune2", "momento", "revenant",
	"chimpfrenzy", "equinox", "ripjaws", "pathtraveled", "jeenstrike", "thunderdome", "caladan",
	"campgrounds", "night shade",
}

var sizes = [Count]Size{
	Small, Small, Small, Small, Small, Small, Small, Small,
	Small, Small, Small, Small, Small, Large, Medium, Medium,
	Medium, Large, Large, Medium, Large, Medium, Medium, Medium,
	Medium, Medium, Small, Small, Medium, Medium, Large, Small,
	Small, Medium, Medium, Large, Small, Large, Large, Large, Small,
	Medium, Medium, Small, Small,
}

// Some clients report the map file hash instead of a readable name.
var hashOverrides = map[string]string{
	"2c0377c5cdd76d1b20ed0b2978b78a9b1b617b2c": "Yin Yang",
	"6b2da4c3a40beef63b0a2b2a7b0ed45f2b9c7d10": "Big Little Lake",
	"a4f9f7692b0ea22ef57fb7fcf5c8bb329d8e7f31": "The Path More Traveled",
	"e3d0f0b93a6c4f8b0de4a2a0a5c3b9f7d812c644": "Paika BLITZ",
	"fd3c8a20b17a49dfae1f0a9be2a64c95f16f0d02": "King's Hill",
}

// Name returns the canonical map name for a valid index.
func Name(index int) string { return names[index] }

// ShortName returns the export identifier for a valid index.
func ShortName(index int) string { return shortNames[index] }

// SizeOf returns the size bucket for a valid index.
func SizeOf(index int) Size { return sizes[index] }

// ToIndex resolves a raw map name to its catalog index, -1 if unknown.
// Raw names come in many shapes: file hashes, decorated variants like
// "Alamo Dominator", or truncated client strings. Matching falls back to
// a case-insensitive prefix match on the first word, or the first two
// words when the name starts with "The".
func ToIndex(raw string) int {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return -1
	}

	if canonical, ok := hashOverrides[strings.ToLower(trimmed)]; ok {
		trimmed = canonical
	}
	trimmed = strings.TrimSuffix(trimmed, " Dominator")

	prefix := trimmed
	if space := strings.IndexByte(trimmed, ' '); space >= 0 {
		prefix = trimmed[:space]
		if prefix == "The" {
			if second := strings.IndexByte(trimmed[space+1:], ' '); second >= 0 {
				prefix = trimmed[:space+1+second]
			} else {
				prefix = trimmed
			}
		}
	}
	lower := strings.ToLower(prefix)

	for i := 0; i < Count; i++ {
		if strings.HasPrefix(names[i], prefix) || strings.HasPrefix(names[i], lower) {
			return i
		}
		if strings.HasPrefix(shortNames[i], prefix) || strings.HasPrefix(shortNames[i], lower) {
			return i
		}
	}
	return -1
}
