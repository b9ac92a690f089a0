package domain

import (
	"github.com/agnivade/levenshtein"
)

// DefaultNearDuplicateDistance is the default edit-distance bound for the
// near-duplicate scan.
const DefaultNearDuplicateDistance = 2

// DuplicateReport is the outcome of checking a new username against the
// identity registry. IsDuplicate and IsNearDuplicate are mutually
// exclusive: an exact member is never also reported as a near-duplicate.
type DuplicateReport struct {
	IsDuplicate     bool   `json:"is_duplicate"`
	IsNearDuplicate bool   `json:"is_near_duplicate"`
	Similar         string `json:"similar,omitempty"`
	Distance        int    `json:"distance,omitempty"`
}

// Registry holds the set of previously accepted canonical usernames.
//
// During the parallel phase of a batch the registry is a read-only
// snapshot shared by all workers. Additions happen only on the sequential
// merge thread after all workers complete, so no locking is required; the
// registry only ever grows.
type Registry struct {
	members map[string]struct{}
}

// NewRegistry builds a registry from an initial set of usernames.
// Duplicate entries collapse; ordering is irrelevant.
func NewRegistry(usernames []string) *Registry {
	members := make(map[string]struct{}, len(usernames))
	for _, u := range usernames {
		if u != "" {
			members[u] = struct{}{}
		}
	}
	return &Registry{members: members}
}

// Len returns the number of registered usernames.
func (r *Registry) Len() int { return len(r.members) }

// Contains reports exact membership. The canonical form is already
// lower-cased, so the test is case-sensitive by construction.
func (r *Registry) Contains(username string) bool {
	_, ok := r.members[username]
	return ok
}

// Add registers a newly accepted username. It must only be called from the
// sequential merge phase, never from a worker.
func (r *Registry) Add(username string) {
	if username != "" {
		r.members[username] = struct{}{}
	}
}

// Usernames returns the members as a slice, in no particular order.
func (r *Registry) Usernames() []string {
	out := make([]string, 0, len(r.members))
	for u := range r.members {
		out = append(out, u)
	}
	return out
}

// Check tests a new username for exact and near-duplicate membership.
// The near-duplicate scan only visits members whose length differs from
// the candidate by at most maxDistance, and keeps the minimum positive
// edit distance within the bound. A maxDistance of zero or less disables
// the near-duplicate scan.
func (r *Registry) Check(username string, maxDistance int) DuplicateReport {
	if username == "" {
		return DuplicateReport{}
	}

	if r.Contains(username) {
		return DuplicateReport{IsDuplicate: true}
	}

	if maxDistance <= 0 {
		return DuplicateReport{}
	}

	bestDist := maxDistance + 1
	best := ""
	for member := range r.members {
		diff := len(member) - len(username)
		if diff < 0 {
			diff = -diff
		}
		if diff > maxDistance {
			continue
		}
		dist := levenshtein.ComputeDistance(username, member)
		if dist > 0 && dist < bestDist {
			best = member
			bestDist = dist
		}
	}

	if best == "" {
		return DuplicateReport{}
	}

	return DuplicateReport{
		IsNearDuplicate: true,
		Similar:         best,
		Distance:        bestDist,
	}
}
