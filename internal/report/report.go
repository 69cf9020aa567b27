package report

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/yourorg/arca/internal/escalation"
	"github.com/yourorg/arca/internal/findings"
	"github.com/yourorg/arca/internal/storage"
)

const (
	idLength      = 16
	idSeparator   = "::"
	emptySentinel = "EMPTY_RISKS"
)

// Report is the durable summary of one auditor output.
type Report struct {
	RegulationID      string                `json:"regulation_id"`
	DateProcessed     openapi_types.Date    `json:"date_processed"`
	TotalRisksFlagged int                   `json:"total_risks_flagged"`
	Risks             []findings.RiskRecord `json:"risks"`
	Recommendation    string                `json:"recommendation"`
}

// RegulationID hashes policy_id and new_rule_excerpt of every record, in
// order, and keeps the first 16 hex characters. Reordering records changes the
// id; an empty slice always yields the id of the sentinel.
func RegulationID(records []findings.RiskRecord) string {
	h := sha256.New()
	if len(records) == 0 {
		h.Write([]byte(emptySentinel))
	}
	for _, r := range records {
		h.Write([]byte(r.PolicyID + idSeparator + r.NewRuleExcerpt))
	}
	return hex.EncodeToString(h.Sum(nil))[:idLength]
}

// Build assembles a report. now only feeds date_processed, which is not part
// of the identity.
func Build(records []findings.RiskRecord, now time.Time) Report {
	risks := make([]findings.RiskRecord, len(records))
	copy(risks, records)
	y, m, d := now.Date()
	return Report{
		RegulationID:      RegulationID(risks),
		DateProcessed:     openapi_types.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)},
		TotalRisksFlagged: len(risks),
		Risks:             risks,
		Recommendation:    escalation.Recommend(findings.Count(risks), len(risks) > 0),
	}
}

// Encode renders the report as indented JSON, leaving non-ASCII text as is.
func Encode(r Report) ([]byte, error) {
	if r.Risks == nil {
		r.Risks = []findings.RiskRecord{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return buf.Bytes(), nil
}

// Save overwrites key with the encoded report.
func Save(ctx context.Context, st storage.Storage, key string, r Report) error {
	body, err := Encode(r)
	if err != nil {
		return err
	}
	if err := st.PutObject(ctx, key, body, "application/json"); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// Load reads a previously saved report.
func Load(ctx context.Context, st storage.Storage, key string) (Report, error) {
	body, err := st.GetObject(ctx, key)
	if err != nil {
		return Report{}, fmt.Errorf("load report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(body, &r); err != nil {
		return Report{}, fmt.Errorf("decode report: %w", err)
	}
	return r, nil
}
