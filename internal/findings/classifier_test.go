package findings

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/arca/internal/storage"
)

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestDecode_BareArray(t *testing.T) {
	res, err := Decode([]byte(`[{"policy_id":"P1","severity":"high","divergence_summary":"s","conflicting_policy_excerpt":"c","new_rule_excerpt":"n"}]`), nil)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Empty(t, res.Skipped)

	rec := res.Records[0]
	assert.Equal(t, "P1", rec.PolicyID)
	assert.Equal(t, SeverityHigh, rec.Severity)
	assert.Equal(t, "s", rec.DivergenceSummary)
	assert.Equal(t, "c", rec.ConflictingPolicyExcerpt)
	assert.Equal(t, "n", rec.NewRuleExcerpt)
}

func TestDecode_ResultsObject(t *testing.T) {
	res, err := Decode([]byte(`{"results":[{"policy_id":"P2","severity":"Medium","divergence_summary":"","conflicting_policy_excerpt":"","new_rule_excerpt":""}],"meta":{}}`), nil)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, SeverityMedium, res.Records[0].Severity)
}

func TestDecode_PartialBatchTolerance(t *testing.T) {
	doc := `[
		{"policy_id":"A","severity":"low","divergence_summary":"s","conflicting_policy_excerpt":"c","new_rule_excerpt":"n"},
		{"policy_id":"B","severity":"low","conflicting_policy_excerpt":"c","new_rule_excerpt":"n"},
		{"policy_id":"C","severity":"high","divergence_summary":"s","conflicting_policy_excerpt":"c","new_rule_excerpt":"n"},
		{"severity":"low","divergence_summary":"s","conflicting_policy_excerpt":"c","new_rule_excerpt":"n"},
		{"policy_id":"E","severity":"medium","divergence_summary":"s","conflicting_policy_excerpt":"c","new_rule_excerpt":"n"}
	]`
	logger, buf := bufferLogger()
	res, err := NewClassifier(logger).Decode([]byte(doc))
	require.NoError(t, err)

	ids := make([]string, 0, len(res.Records))
	for _, r := range res.Records {
		ids = append(ids, r.PolicyID)
	}
	assert.Equal(t, []string{"A", "C", "E"}, ids)

	require.Len(t, res.Skipped, 2)
	assert.Equal(t, 1, res.Skipped[0].Index)
	assert.Equal(t, CodeMissingField, res.Skipped[0].Code)
	assert.Equal(t, "[1].divergence_summary", res.Skipped[0].Path)
	assert.Equal(t, 3, res.Skipped[1].Index)
	assert.Contains(t, res.Skipped[1].Message, "policy_id")

	assert.Equal(t, 2, strings.Count(buf.String(), "skipping invalid risk"))
}

func TestDecode_NullFieldIsMissing(t *testing.T) {
	res, err := Decode([]byte(`[{"policy_id":null,"severity":"low","divergence_summary":"s","conflicting_policy_excerpt":"c","new_rule_excerpt":"n"}]`), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, CodeMissingField, res.Skipped[0].Code)
}

func TestDecode_KeysMatchExactly(t *testing.T) {
	logger, buf := bufferLogger()
	res, err := NewClassifier(logger).Decode([]byte(`[
		{"POLICY_ID":"P1","Severity":"high","Divergence_Summary":"s","conflicting_policy_excerpt":"c","new_rule_excerpt":"n"},
		{"policy_id":"P2","severity":"low","divergence_summary":"s","conflicting_policy_excerpt":"c","new_rule_excerpt":"n"}
	]`))
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "P2", res.Records[0].PolicyID)

	require.Len(t, res.Skipped, 1)
	skip := res.Skipped[0]
	assert.Equal(t, 0, skip.Index)
	assert.Equal(t, CodeMissingField, skip.Code)
	assert.Contains(t, skip.Message, "policy_id")
	assert.Contains(t, skip.Message, "severity")
	assert.Contains(t, skip.Message, "divergence_summary")
	assert.Contains(t, buf.String(), "skipping invalid risk")
}

func TestDecode_NonObjectElementsSkipped(t *testing.T) {
	res, err := Decode([]byte(`["oops", 4, null, {"policy_id":{"x":1},"severity":"low","divergence_summary":"s","conflicting_policy_excerpt":"c","new_rule_excerpt":"n"}]`), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	require.Len(t, res.Skipped, 4)
	for _, s := range res.Skipped {
		assert.Equal(t, CodeBadElement, s.Code)
	}
}

func TestDecode_ScalarCoercion(t *testing.T) {
	res, err := Decode([]byte(`[{"policy_id":42,"severity":"low","divergence_summary":true,"conflicting_policy_excerpt":"c","new_rule_excerpt":1.5}]`), nil)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "42", res.Records[0].PolicyID)
	assert.Equal(t, "True", res.Records[0].DivergenceSummary)
	assert.Equal(t, "1.5", res.Records[0].NewRuleExcerpt)
}

func TestDecode_UnrecognizedSeverityPassesThrough(t *testing.T) {
	res, err := Decode([]byte(`[{"policy_id":"P","severity":"critical","divergence_summary":"s","conflicting_policy_excerpt":"c","new_rule_excerpt":"n"}]`), nil)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	sev := res.Records[0].Severity
	assert.Equal(t, LevelUnrecognized, sev.Level)
	assert.Equal(t, "CRITICAL", sev.Literal)
	assert.Equal(t, 1, res.Counts()["CRITICAL"])
}

func TestDecode_MalformedInput(t *testing.T) {
	cases := map[string]string{
		"invalid json":      `{"results": [`,
		"scalar":            `"hello"`,
		"number":            `12`,
		"object no results": `{"items": []}`,
		"results not array": `{"results": {"a": 1}}`,
		"results null":      `{"results": null}`,
		"empty document":    ``,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(doc), nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedInput))
			var merr *MalformedInputError
			assert.True(t, errors.As(err, &merr))
		})
	}
}

func TestDecode_EmptyArray(t *testing.T) {
	res, err := Decode([]byte(`[]`), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.False(t, res.Missing)
}

func TestClassifierLoad_MissingArtifact(t *testing.T) {
	res, err := NewClassifier(nil).Load(context.Background(), storage.NewInMemoryStorage(), "auditor_output.json")
	require.NoError(t, err)
	assert.True(t, res.Missing)
	assert.Empty(t, res.Records)
}

func TestClassifierLoad_FromStorage(t *testing.T) {
	ctx := context.Background()
	st := storage.NewInMemoryStorage()
	require.NoError(t, st.PutObject(ctx, "auditor_output.json", []byte(`{"results":[{"policy_id":"P","severity":"LOW","divergence_summary":"s","conflicting_policy_excerpt":"c","new_rule_excerpt":"n"}]}`), "application/json"))

	res, err := NewClassifier(nil).Load(ctx, st, "auditor_output.json")
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, 1, res.Counts().Low())
}
