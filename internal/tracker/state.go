package tracker

import "sort"

// Well-known source names. They double as keys in the persisted state and
// match the keys written by earlier versions of the notifier.
const (
	SourceResearcher = "researcher_digest"
	SourceGenerator  = "generator_digest"
	SourceAuditor    = "auditor_digest"
)

// State maps a source name to its last-seen fingerprint.
type State map[string]Fingerprint

func NewState() State {
	return State{}
}

// HasChanged reports whether current differs from the recorded fingerprint for
// name. A positive answer also records current, so asking again with the same
// fingerprint returns false. An empty fingerprint never counts as a change and
// never touches the state.
func (s State) HasChanged(name string, current Fingerprint) bool {
	if current == None {
		return false
	}
	if prev, ok := s[name]; ok && prev == current {
		return false
	}
	s[name] = current
	return true
}

// Clone returns an independent copy.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Names returns the recorded source names in sorted order.
func (s State) Names() []string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
