package escalation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yourorg/arca/internal/findings"
)

func counts(high, medium, low int) findings.SeverityCounts {
	return findings.SeverityCounts{"HIGH": high, "MEDIUM": medium, "LOW": low}
}

func TestRecommend_Precedence(t *testing.T) {
	tests := []struct {
		name       string
		counts     findings.SeverityCounts
		hasUpdates bool
		want       string
	}{
		{"high wins", counts(1, 5, 10), true, RecommendImmediate},
		{"high wins without updates", counts(1, 0, 0), false, RecommendImmediate},
		{"medium", counts(0, 1, 10), true, RecommendMediumReview},
		{"low only", counts(0, 0, 3), true, RecommendReview},
		{"nothing", counts(0, 0, 0), false, RecommendNone},
		{"nil counts", nil, false, RecommendNone},
		{"unrecognized only with updates", findings.SeverityCounts{"CRITICAL": 2}, true, RecommendReview},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Recommend(tt.counts, tt.hasUpdates))
		})
	}
}

func TestEvaluate_SeverityPrecedence(t *testing.T) {
	all := AllSubscribed()
	changed := Changes{Findings: true}

	_, rec := Evaluate(changed, counts(1, 5, 10), all)
	assert.Equal(t, RecommendImmediate, rec)

	_, rec = Evaluate(changed, counts(0, 1, 10), all)
	assert.Equal(t, RecommendMediumReview, rec)

	_, rec = Evaluate(changed, counts(0, 0, 3), all)
	assert.Equal(t, RecommendReview, rec)

	updates, rec := Evaluate(Changes{}, counts(0, 0, 0), all)
	assert.Empty(t, updates)
	assert.Equal(t, RecommendNone, rec)
}

func TestEvaluate_MessageOrderAndMarkers(t *testing.T) {
	updates, _ := Evaluate(
		Changes{Internal: true, Generator: true, Findings: true, InternalQuery: "GDPR retention"},
		counts(2, 3, 4),
		AllSubscribed(),
	)
	want := []string{
		"📘 Internal policy update detected (query: GDPR retention).",
		"🇲🇦 New national regulation or report detected (Generator).",
		"🌍 International regulation updates detected (Generator).",
		"⚠️ Auditor detected HIGH risks: 2.",
		"‼️ Auditor detected MEDIUM risks: 3.",
		"ℹ️ Auditor detected LOW risks: 4.",
	}
	assert.Equal(t, want, updates)
}

func TestEvaluate_SubscriptionGating(t *testing.T) {
	subs := Subscriptions{National: true, LowRisk: true}
	updates, rec := Evaluate(Changes{Internal: true, Generator: true, Findings: true}, counts(1, 1, 1), subs)

	assert.Len(t, updates, 2)
	assert.True(t, strings.HasPrefix(updates[0], MarkerNational))
	assert.True(t, strings.HasPrefix(updates[1], MarkerLow))
	assert.Equal(t, RecommendImmediate, rec, "recommendation follows counts, not emitted notices")
}

func TestEvaluate_UnchangedFindingsEmitNothing(t *testing.T) {
	updates, rec := Evaluate(Changes{}, counts(3, 0, 0), AllSubscribed())
	assert.Empty(t, updates)
	assert.Equal(t, RecommendImmediate, rec)
}

func TestEvaluate_WordingDoesNotDriveRecommendation(t *testing.T) {
	updates, rec := Evaluate(Changes{Internal: true, InternalQuery: "HIGH MEDIUM ⚠️"}, counts(0, 0, 0), AllSubscribed())
	assert.Len(t, updates, 1)
	assert.Equal(t, RecommendReview, rec)
}

func TestSubscriptions_Wants(t *testing.T) {
	assert.False(t, Subscriptions{}.WantsGenerator())
	assert.True(t, Subscriptions{International: true}.WantsGenerator())
	assert.False(t, Subscriptions{Internal: true}.WantsFindings())
	assert.True(t, Subscriptions{MediumRisk: true}.WantsFindings())
}
