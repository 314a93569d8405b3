package verify

import (
	"log/slog"
	"sort"

	"github.com/veriweb/veriweb/pkg/models"
	"github.com/veriweb/veriweb/pkg/webenv"
)

// minVerifiedForAccept is how many VERIFIED groups an attempt needs
// before its evidence is accepted outright.
const minVerifiedForAccept = 2

// fallbackDomainFloor applies when fewer than two groups exist: a
// single VERIFIED group still accepts if this many distinct domains
// support it.
const fallbackDomainFloor = 3

// Stop reasons recorded on the planner trace.
const (
	StopReasonBudgetExhausted = "attempt budget exhausted"
	StopReasonStableLow       = "stable low-confidence state, further searching unlikely to improve"
)

// Engine labels claim groups and produces VerificationDecisions.
type Engine struct{}

// NewEngine creates an Engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Verify groups the attempt's claims and resolves each group into a
// VerifiedClaim. Group order follows first claim appearance.
func (e *Engine) Verify(claimList []models.Claim) []models.VerifiedClaim {
	groups := Group(claimList)
	out := make([]models.VerifiedClaim, 0, len(groups))
	for _, group := range groups {
		out = append(out, resolveGroup(group))
	}
	slog.Debug("Verification complete",
		"claims", len(claimList),
		"groups", len(out))
	return out
}

// resolveGroup labels one equivalence class.
//
// VERIFIED needs at least two distinct registered domains on one side
// of the polarity split. UNSPECIFIED claims corroborate whichever
// stance the group asserts and never create a conflict on their own.
func resolveGroup(group []models.Claim) models.VerifiedClaim {
	var affirms, negates, neutrals []models.Claim
	for _, c := range group {
		switch c.Polarity {
		case models.PolarityAffirm:
			affirms = append(affirms, c)
		case models.PolarityNegate:
			negates = append(negates, c)
		default:
			neutrals = append(neutrals, c)
		}
	}

	vc := models.VerifiedClaim{CanonicalText: group[0].Text}

	if len(affirms) > 0 && len(negates) > 0 {
		vc.Status = models.ClaimConflict
		vc.SupportURLs = claimURLs(append(affirms, neutrals...))
		vc.OpposeURLs = claimURLs(negates)
		vc.DomainCount = countDomains(append(affirms, neutrals...))
		return vc
	}

	// One-sided group: neutrals count as supporting.
	supporting := group
	var opposing []models.Claim
	if len(negates) > 0 {
		supporting = append(negates, neutrals...)
		opposing = nil
	}
	vc.SupportURLs = claimURLs(supporting)
	vc.OpposeURLs = claimURLs(opposing)
	vc.DomainCount = countDomains(supporting)

	if vc.DomainCount >= 2 {
		vc.Status = models.ClaimVerified
	} else {
		vc.Status = models.ClaimUnverified
	}
	return vc
}

// Decide applies the acceptance rules for one attempt.
//
// attempt is 1-based; maxAttempts is the total budget. When the
// counts argue equally for RETRY and STOP, RETRY wins while budget
// remains.
func (e *Engine) Decide(groups []models.VerifiedClaim, attempt, maxAttempts int) (models.VerificationDecision, string) {
	var verified, conflicts int
	maxVerifiedDomains := 0
	for _, g := range groups {
		switch g.Status {
		case models.ClaimVerified:
			verified++
			if g.DomainCount > maxVerifiedDomains {
				maxVerifiedDomains = g.DomainCount
			}
		case models.ClaimConflict:
			conflicts++
		}
	}

	if conflicts == 0 {
		if verified >= minVerifiedForAccept {
			return models.DecisionAccept, ""
		}
		// Sparse-evidence fallback: with fewer than two groups in
		// total, one strongly corroborated claim suffices.
		if len(groups) < minVerifiedForAccept && verified >= 1 && maxVerifiedDomains >= fallbackDomainFloor {
			return models.DecisionAccept, ""
		}
	}

	distinctDomains := totalDomains(groups)
	if verified == 0 && (conflicts > 0 || distinctDomains < fallbackDomainFloor) {
		if attempt < maxAttempts {
			return models.DecisionRetry, ""
		}
		return models.DecisionStop, StopReasonBudgetExhausted
	}

	// Some VERIFIED evidence exists but not enough to accept; a new
	// strategy may still surface corroboration.
	if attempt < maxAttempts && verified == 0 {
		return models.DecisionRetry, ""
	}
	if attempt >= maxAttempts {
		return models.DecisionStop, StopReasonBudgetExhausted
	}
	return models.DecisionStop, StopReasonStableLow
}

func claimURLs(group []models.Claim) []string {
	seen := make(map[string]bool)
	var urls []string
	for _, c := range group {
		if c.SourceURL == "" || seen[c.SourceURL] {
			continue
		}
		seen[c.SourceURL] = true
		urls = append(urls, c.SourceURL)
	}
	return urls
}

func countDomains(group []models.Claim) int {
	domains := make(map[string]bool)
	for _, c := range group {
		if c.SourceDomain != "" {
			domains[c.SourceDomain] = true
		}
	}
	return len(domains)
}

// totalDomains counts distinct domains across all groups by their
// source URLs.
func totalDomains(groups []models.VerifiedClaim) int {
	domains := make(map[string]bool)
	for _, g := range groups {
		for _, u := range g.SupportURLs {
			domains[webenv.Domain(u)] = true
		}
		for _, u := range g.OpposeURLs {
			domains[webenv.Domain(u)] = true
		}
	}
	delete(domains, "")
	return len(domains)
}

// SortByStrength orders groups VERIFIED first, then by domain count
// descending, for stable evidence output.
func SortByStrength(groups []models.VerifiedClaim) {
	rank := func(s models.VerificationStatus) int {
		switch s {
		case models.ClaimVerified:
			return 0
		case models.ClaimUnverified:
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(groups, func(i, j int) bool {
		ri, rj := rank(groups[i].Status), rank(groups[j].Status)
		if ri != rj {
			return ri < rj
		}
		return groups[i].DomainCount > groups[j].DomainCount
	})
}
