// Package assign computes reviewer assignments for a batch of papers.
//
// The construction is circulant: authors are placed in a fixed order and the
// paper of the author at position i is reviewed by the authors at positions
// i+1, ..., i+k (mod n). Offsets are never zero, so nobody reviews their own
// paper, and every author is an offset target from exactly k positions, so
// every author reviews exactly k papers.
package assign

import (
	"fmt"
	"math/rand/v2"

	"github.com/sevigo/peer-warden/internal/core"
)

// Assign maps every paper to k distinct reviewers using the order of papers as
// the author ordering. k is clamped to n-1 when larger. Assign is pure: it does
// not persist anything and returns no partial plan on error.
func Assign(papers []core.Paper, k int) (*core.Plan, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: review count must be at least 1, got %d", core.ErrParameter, k)
	}
	if err := validatePapers(papers); err != nil {
		return nil, err
	}

	n := len(papers)
	if n < 2 {
		return nil, fmt.Errorf("%w: need at least 2 authors, got %d", core.ErrPopulation, n)
	}
	if k > n-1 {
		k = n - 1
	}

	plan := &core.Plan{
		ReviewNum: k,
		Entries:   make([]core.PlanEntry, 0, n),
	}
	for i, p := range papers {
		reviewers := make([]string, 0, k)
		for offset := 1; offset <= k; offset++ {
			reviewers = append(reviewers, papers[(i+offset)%n].AuthorID)
		}
		plan.Entries = append(plan.Entries, core.PlanEntry{
			PaperID:   p.PaperID,
			AuthorID:  p.AuthorID,
			Reviewers: reviewers,
		})
	}
	return plan, nil
}

// validatePapers enforces one paper per author with non-empty identifiers.
func validatePapers(papers []core.Paper) error {
	authors := make(map[string]struct{}, len(papers))
	paperIDs := make(map[string]struct{}, len(papers))
	for _, p := range papers {
		if p.PaperID == "" || p.AuthorID == "" {
			return fmt.Errorf("%w: paper and author ids must be set", core.ErrParameter)
		}
		if _, dup := authors[p.AuthorID]; dup {
			return fmt.Errorf("%w: author %s has more than one paper", core.ErrParameter, p.AuthorID)
		}
		if _, dup := paperIDs[p.PaperID]; dup {
			return fmt.Errorf("%w: paper %s listed twice", core.ErrParameter, p.PaperID)
		}
		authors[p.AuthorID] = struct{}{}
		paperIDs[p.PaperID] = struct{}{}
	}
	return nil
}

// Shuffle returns a permuted copy of papers. Batches are shuffled before
// assignment so reviewer choice does not follow submission time.
func Shuffle(papers []core.Paper, rng *rand.Rand) []core.Paper {
	out := make([]core.Paper, len(papers))
	copy(out, papers)
	rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// NewRand returns a deterministic generator for a batch seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Loads counts how many papers each reviewer was given.
func Loads(plan *core.Plan) map[string]int {
	loads := make(map[string]int, len(plan.Entries))
	for _, e := range plan.Entries {
		for _, r := range e.Reviewers {
			loads[r]++
		}
	}
	return loads
}
