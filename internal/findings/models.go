package findings

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RiskRecord is one divergence between an internal policy and a new rule, as
// reported by the auditor.
type RiskRecord struct {
	PolicyID                 string   `json:"policy_id"`
	Severity                 Severity `json:"severity"`
	DivergenceSummary        string   `json:"divergence_summary"`
	ConflictingPolicyExcerpt string   `json:"conflicting_policy_excerpt"`
	NewRuleExcerpt           string   `json:"new_rule_excerpt"`
}

// rawRisk is the wire shape before validation. Pointers distinguish an absent
// field from an empty string.
type rawRisk struct {
	PolicyID                 *text `json:"policy_id" validate:"required"`
	Severity                 *text `json:"severity" validate:"required"`
	DivergenceSummary        *text `json:"divergence_summary" validate:"required"`
	ConflictingPolicyExcerpt *text `json:"conflicting_policy_excerpt" validate:"required"`
	NewRuleExcerpt           *text `json:"new_rule_excerpt" validate:"required"`
}

// decodeRawRisk matches keys exactly, so "POLICY_ID" does not satisfy
// policy_id. Absent and null values stay nil.
func decodeRawRisk(elem json.RawMessage) (rawRisk, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(elem, &fields); err != nil {
		return rawRisk{}, err
	}
	var r rawRisk
	for _, f := range []struct {
		key string
		dst **text
	}{
		{"policy_id", &r.PolicyID},
		{"severity", &r.Severity},
		{"divergence_summary", &r.DivergenceSummary},
		{"conflicting_policy_excerpt", &r.ConflictingPolicyExcerpt},
		{"new_rule_excerpt", &r.NewRuleExcerpt},
	} {
		v, ok := fields[f.key]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			continue
		}
		var t text
		if err := json.Unmarshal(v, &t); err != nil {
			return rawRisk{}, fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = &t
	}
	return r, nil
}

func (r rawRisk) record() RiskRecord {
	return RiskRecord{
		PolicyID:                 string(*r.PolicyID),
		Severity:                 ParseSeverity(string(*r.Severity)),
		DivergenceSummary:        string(*r.DivergenceSummary),
		ConflictingPolicyExcerpt: string(*r.ConflictingPolicyExcerpt),
		NewRuleExcerpt:           string(*r.NewRuleExcerpt),
	}
}

// text accepts JSON strings as well as numbers and booleans, keeping their
// literal spelling.
type text string

func (t *text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = text(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		if b {
			*t = "True"
		} else {
			*t = "False"
		}
	case '{', '[':
		return fmt.Errorf("expected a scalar, got %s", kindOf(data))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*t = text(n.String())
	}
	return nil
}

// SkipEvent describes a rejected element of the findings array.
type SkipEvent struct {
	Index   int    `json:"index"`
	Code    string `json:"code"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

const (
	CodeMissingField = "FINDINGS-REC-001"
	CodeBadElement   = "FINDINGS-REC-002"
)

// Result is the outcome of classifying one findings artifact.
type Result struct {
	Records []RiskRecord
	Skipped []SkipEvent
	// Missing is set when the artifact does not exist.
	Missing bool
}

func (r Result) Counts() SeverityCounts {
	return Count(r.Records)
}

func kindOf(data []byte) string {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "empty document"
	}
	switch data[0] {
	case '{':
		return "object"
	case '[':
		return "array"
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}
