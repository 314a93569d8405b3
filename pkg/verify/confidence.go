package verify

import (
	"fmt"

	"github.com/veriweb/veriweb/pkg/models"
	"github.com/veriweb/veriweb/pkg/webenv"
)

// Score is a pure function of the resolved claim groups. The reason
// string is templated and never produced by an LLM.
func Score(groups []models.VerifiedClaim) (models.ConfidenceLevel, string) {
	var verified, unverified, conflicts int
	supportDomains := make(map[string]bool)
	for _, g := range groups {
		switch g.Status {
		case models.ClaimVerified:
			verified++
			for _, u := range g.SupportURLs {
				if d := webenv.Domain(u); d != "" {
					supportDomains[d] = true
				}
			}
		case models.ClaimUnverified:
			unverified++
		case models.ClaimConflict:
			conflicts++
		}
	}
	domains := len(supportDomains)

	switch {
	case conflicts > 0:
		return models.ConfidenceLow, fmt.Sprintf(
			"%d claim group(s) have conflicting sources; confidence cannot exceed LOW.", conflicts)
	case verified >= 2 && domains >= 3:
		return models.ConfidenceHigh, fmt.Sprintf(
			"%d claims verified across %d independent domains with no conflicts.", verified, domains)
	case verified >= 1:
		return models.ConfidenceMedium, fmt.Sprintf(
			"%d claim(s) verified across %d domain(s); corroboration is limited.", verified, domains)
	default:
		return models.ConfidenceLow, fmt.Sprintf(
			"No claims could be verified across independent sources (%d unverified).", unverified)
	}
}
