// Package identity collapses duplicate ladder accounts onto one primary
// account per person. Accounts are considered the same person when they
// share an IP history, corrected by a fixed override table.
package identity

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
)

// Policy selects how duplicates are resolved.
type Policy int

const (
	// Full applies the IP hints plus the override table.
	Full Policy = iota
	// WebLike mirrors the duplicate view of the ladder website: IP
	// hints only, no overrides.
	WebLike
	// Passthrough maps every account onto itself. Diagnostic runs only.
	Passthrough
)

func (p Policy) String() string {
	switch p {
	case Full:
		return "full"
	case WebLike:
		return "web-like"
	case Passthrough:
		return "passthrough"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// PolicyFromName parses a policy name from the configuration.
func PolicyFromName(name string) (Policy, error) {
	switch name {
	case "full", "":
		return Full, nil
	case "web-like", "cncnet":
		return WebLike, nil
	case "passthrough", "none":
		return Passthrough, nil
	default:
		return Full, fmt.Errorf("unknown duplicate policy %q", name)
	}
}

// Directory is the external view of the account database the resolver
// consults: shared-IP neighbours and account metadata.
type Directory interface {
	// RelatedUsers lists accounts sharing the most recent IP address.
	RelatedUsers(userID uint32) ([]uint32, error)

	// Alias returns the community alias, empty when none is set.
	Alias(userID uint32) (string, error)

	// Exists reports whether the account still exists. Deleted accounts
	// may linger in game reports and must not become primaries.
	Exists(userID uint32) bool
}

// knownEquivalences are account groups the IP seed misses, usually
// players reporting their own smurf accounts.
var knownEquivalences = [][]uint32{
	{152, 64543},
	{39603, 41177},
	{21, 59911, 61042},
}

// knownSeparations are distinct players sharing a connection, like
// siblings or team houses. These edges are cut after seeding.
var knownSeparations = [][2]uint32{
	{70820, 70821},
	{11533, 12934},
}

// Resolver computes the duplicate-to-primary mapping.
type Resolver struct {
	dir Directory
}

// NewResolver creates a resolver over the given account directory.
func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve maps every account observed in the games onto its primary
// account. gameCounts carries the number of appearances per user id.
// The result contains an entry for every key of gameCounts.
func (r *Resolver) Resolve(gameCounts map[uint32]int, policy Policy) (map[uint32]uint32, error) {
	userIDs := sortedIDs(gameCounts)

	if policy == Passthrough {
		log.Warn().Msg("duplicates are ignored, the resulting ranks are for testing purposes only")
		primaries := make(map[uint32]uint32, len(userIDs))
		for _, id := range userIDs {
			primaries[id] = id
		}
		return primaries, nil
	}

	edges, err := r.seedEdges(userIDs)
	if err != nil {
		return nil, err
	}

	if policy == Full {
		applyOverrides(edges)
	}

	primaries := make(map[uint32]uint32, len(userIDs))
	visited := make(map[uint32]struct{}, len(userIDs))

	for _, id := range userIDs {
		if _, ok := visited[id]; ok {
			continue
		}

		component := collectComponent(id, edges)
		for _, member := range component {
			visited[member] = struct{}{}
		}

		primary, err := r.baseAccount(component, gameCounts)
		if err != nil {
			return nil, err
		}

		for _, member := range component {
			primaries[member] = primary
			if member != primary {
				log.Debug().Uint32("duplicate", member).Uint32("primary", primary).
					Msg("account resolved to primary")
			}
		}
	}

	return primaries, nil
}

// seedEdges builds the symmetric IP-proximity graph. Every hint set
// also forms a clique among its members, matching the website view.
func (r *Resolver) seedEdges(userIDs []uint32) (map[uint32]map[uint32]struct{}, error) {
	edges := make(map[uint32]map[uint32]struct{}, len(userIDs))

	for _, id := range userIDs {
		related, err := r.dir.RelatedUsers(id)
		if err != nil {
			return nil, fmt.Errorf("failed to query identity hints for user %d: %w", id, err)
		}

		for _, other := range related {
			connect(edges, id, other)
			for _, third := range related {
				if third != other {
					connect(edges, other, third)
				}
			}
		}
	}

	return edges, nil
}

func applyOverrides(edges map[uint32]map[uint32]struct{}) {
	for _, group := range knownEquivalences {
		for _, a := range group {
			for _, b := range group {
				if a != b {
					connect(edges, a, b)
				}
			}
		}
	}

	for _, pair := range knownSeparations {
		disconnect(edges, pair[0], pair[1])
	}
}

func connect(edges map[uint32]map[uint32]struct{}, a, b uint32) {
	if edges[a] == nil {
		edges[a] = make(map[uint32]struct{})
	}
	if edges[b] == nil {
		edges[b] = make(map[uint32]struct{})
	}
	edges[a][b] = struct{}{}
	edges[b][a] = struct{}{}
}

func disconnect(edges map[uint32]map[uint32]struct{}, a, b uint32) {
	delete(edges[a], b)
	delete(edges[b], a)
}

// collectComponent runs a breadth-first search from start. The result
// is sorted so representative selection is deterministic.
func collectComponent(start uint32, edges map[uint32]map[uint32]struct{}) []uint32 {
	seen := map[uint32]struct{}{start: {}}
	queue := []uint32{start}
	var component []uint32

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		component = append(component, current)

		for _, next := range sortedSet(edges[current]) {
			if _, ok := seen[next]; !ok {
				seen[next] = struct{}{}
				queue = append(queue, next)
			}
		}
	}

	sort.Slice(component, func(i, j int) bool { return component[i] < component[j] })
	return component
}

// baseAccount picks the primary of one component: the account holding
// an alias wins, otherwise the one with the most games. Deleted
// accounts never become primaries.
func (r *Resolver) baseAccount(component []uint32, gameCounts map[uint32]int) (uint32, error) {
	var withAlias uint32
	aliasFound := ""

	for _, id := range component {
		if !r.dir.Exists(id) {
			continue
		}
		alias, err := r.dir.Alias(id)
		if err != nil {
			return 0, fmt.Errorf("failed to query alias for user %d: %w", id, err)
		}
		if alias == "" {
			continue
		}
		if aliasFound != "" {
			log.Warn().Uint32("user_id", id).Str("alias", alias).
				Uint32("primary", withAlias).Str("primary_alias", aliasFound).
				Msg("multiple accounts of one player carry an alias")
			continue
		}
		withAlias = id
		aliasFound = alias
	}

	if withAlias != 0 {
		return withAlias, nil
	}

	var best uint32
	bestGames := -1
	for _, id := range component {
		if !r.dir.Exists(id) {
			continue
		}
		if games := gameCounts[id]; games > bestGames {
			best = id
			bestGames = games
		}
	}

	if best == 0 {
		return 0, fmt.Errorf("no base account among user ids %v", component)
	}
	return best, nil
}

func sortedIDs(counts map[uint32]int) []uint32 {
	ids := make([]uint32, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedSet(set map[uint32]struct{}) []uint32 {
	ids := make([]uint32, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
