package findings

import (
	"encoding/json"
	"strings"
)

// Level is the closed set of severities the escalation rules understand.
type Level int

const (
	LevelUnrecognized Level = iota
	LevelLow
	LevelMedium
	LevelHigh
)

func (l Level) String() string {
	switch l {
	case LevelHigh:
		return "HIGH"
	case LevelMedium:
		return "MEDIUM"
	case LevelLow:
		return "LOW"
	default:
		return "UNRECOGNIZED"
	}
}

// Severity keeps the upper-cased literal next to its level so that literals
// outside HIGH/MEDIUM/LOW survive a round trip and are still counted.
type Severity struct {
	Level   Level
	Literal string
}

var (
	SeverityHigh   = Severity{Level: LevelHigh, Literal: "HIGH"}
	SeverityMedium = Severity{Level: LevelMedium, Literal: "MEDIUM"}
	SeverityLow    = Severity{Level: LevelLow, Literal: "LOW"}
)

// ParseSeverity upper-cases raw and classifies it. No trimming or aliasing is
// applied.
func ParseSeverity(raw string) Severity {
	lit := strings.ToUpper(raw)
	switch lit {
	case SeverityHigh.Literal:
		return SeverityHigh
	case SeverityMedium.Literal:
		return SeverityMedium
	case SeverityLow.Literal:
		return SeverityLow
	default:
		return Severity{Level: LevelUnrecognized, Literal: lit}
	}
}

func (s Severity) Known() bool {
	return s.Level != LevelUnrecognized
}

func (s Severity) String() string {
	return s.Literal
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Literal)
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParseSeverity(raw)
	return nil
}

// SeverityCounts maps a severity literal to the number of records carrying it.
type SeverityCounts map[string]int

func (c SeverityCounts) High() int   { return c[SeverityHigh.Literal] }
func (c SeverityCounts) Medium() int { return c[SeverityMedium.Literal] }
func (c SeverityCounts) Low() int    { return c[SeverityLow.Literal] }

// Unrecognized sums every literal outside the known set.
func (c SeverityCounts) Unrecognized() int {
	n := 0
	for lit, v := range c {
		if !ParseSeverity(lit).Known() {
			n += v
		}
	}
	return n
}

func (c SeverityCounts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// Count tallies records by severity literal in a single pass.
func Count(records []RiskRecord) SeverityCounts {
	counts := SeverityCounts{}
	for _, r := range records {
		counts[r.Severity.Literal]++
	}
	return counts
}
