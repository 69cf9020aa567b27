// Package escalation turns detected changes and severity counts into update
// notices and one recommendation. Everything here is pure.
package escalation

import (
	"fmt"

	"github.com/yourorg/arca/internal/findings"
)

const (
	RecommendImmediate    = "Immediate attention required for HIGH risk items."
	RecommendMediumReview = "Medium-level conflicts detected. Review MEDIUM risks with the compliance team."
	RecommendReview       = "Review the changes and follow recommended actions."
	RecommendNone         = "No new recommendations."
)

// Marker tokens prefixed to each update notice.
const (
	MarkerInternal      = "📘"
	MarkerNational      = "🇲🇦"
	MarkerInternational = "🌍"
	MarkerHigh          = "⚠️"
	MarkerMedium        = "‼️"
	MarkerLow           = "ℹ️"
)

// Changes says which watched sources moved since the last run.
type Changes struct {
	Internal  bool
	Generator bool
	Findings  bool
	// InternalQuery optionally names the researcher query behind an internal
	// policy change.
	InternalQuery string
}

func (c Changes) Any() bool {
	return c.Internal || c.Generator || c.Findings
}

// Subscriptions gates each notice category.
type Subscriptions struct {
	Internal      bool
	National      bool
	International bool
	HighRisk      bool
	MediumRisk    bool
	LowRisk       bool
}

// AllSubscribed enables every category.
func AllSubscribed() Subscriptions {
	return Subscriptions{Internal: true, National: true, International: true, HighRisk: true, MediumRisk: true, LowRisk: true}
}

// WantsGenerator reports whether any category depends on the generator report.
func (s Subscriptions) WantsGenerator() bool {
	return s.National || s.International
}

// WantsFindings reports whether any category depends on the auditor findings.
func (s Subscriptions) WantsFindings() bool {
	return s.HighRisk || s.MediumRisk || s.LowRisk
}

// Evaluate builds the ordered update notices for subscribed, changed
// categories and derives the recommendation from counts.
func Evaluate(changes Changes, counts findings.SeverityCounts, subs Subscriptions) ([]string, string) {
	updates := make([]string, 0, 6)

	if changes.Internal && subs.Internal {
		if changes.InternalQuery != "" {
			updates = append(updates, fmt.Sprintf("%s Internal policy update detected (query: %s).", MarkerInternal, changes.InternalQuery))
		} else {
			updates = append(updates, MarkerInternal+" Internal policy updates detected (Researcher).")
		}
	}
	if changes.Generator && subs.National {
		updates = append(updates, MarkerNational+" New national regulation or report detected (Generator).")
	}
	if changes.Generator && subs.International {
		updates = append(updates, MarkerInternational+" International regulation updates detected (Generator).")
	}
	if changes.Findings {
		if subs.HighRisk && counts.High() > 0 {
			updates = append(updates, fmt.Sprintf("%s Auditor detected HIGH risks: %d.", MarkerHigh, counts.High()))
		}
		if subs.MediumRisk && counts.Medium() > 0 {
			updates = append(updates, fmt.Sprintf("%s Auditor detected MEDIUM risks: %d.", MarkerMedium, counts.Medium()))
		}
		if subs.LowRisk && counts.Low() > 0 {
			updates = append(updates, fmt.Sprintf("%s Auditor detected LOW risks: %d.", MarkerLow, counts.Low()))
		}
	}

	return updates, Recommend(counts, len(updates) > 0)
}

// Recommend applies the severity precedence HIGH > MEDIUM > any update >
// nothing. It looks only at counts, never at notice text.
func Recommend(counts findings.SeverityCounts, hasUpdates bool) string {
	switch {
	case counts.High() > 0:
		return RecommendImmediate
	case counts.Medium() > 0:
		return RecommendMediumReview
	case hasUpdates:
		return RecommendReview
	default:
		return RecommendNone
	}
}
