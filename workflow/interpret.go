package workflow

import (
	"regexp"
	"strings"
)

// Interpretation rules for raw agent output. Agents are instructed (via
// their system prompts) to emit explicit verdict markers; the parsers here
// look only for those markers and never attempt semantic analysis.

var (
	approveMarker = regexp.MustCompile(`(?im)^\s*(?:verdict\s*:\s*)?APPROVED?\b`)
	rejectMarker  = regexp.MustCompile(`(?im)^\s*(?:verdict\s*:\s*)?REJECTED?\b|\bNEEDS[ _]CHANGES\b`)

	qaPassMarker = regexp.MustCompile(`(?im)^\s*(?:qa\s*:\s*)?PASS(?:ED)?\b`)
	qaFailMarker = regexp.MustCompile(`(?im)^\s*(?:qa\s*:\s*)?FAIL(?:ED)?\b`)

	severityMarker = regexp.MustCompile(`(?im)\[(critical|major|minor)\]`)
)

// InterpretReview maps reviewer output to an approval verdict. Approval
// requires an explicit approval marker and the absence of any rejection
// marker; everything else is a rejection, so an ambiguous review never
// waves code through.
func InterpretReview(raw string) (approved bool, feedback string) {
	feedback = strings.TrimSpace(raw)
	approved = approveMarker.MatchString(raw) && !rejectMarker.MatchString(raw)
	return approved, feedback
}

// InterpretQA maps judge output to a final verdict. A pass marker with no
// fail marker approves; anything else rejects.
func InterpretQA(raw string) (approved bool, reason string) {
	reason = strings.TrimSpace(raw)
	approved = qaPassMarker.MatchString(raw) && !qaFailMarker.MatchString(raw)
	return approved, reason
}

// SeverityCounts tallies tagged findings in reviewer output. The counts
// are advisory: the reviewer's explicit verdict always wins, and the
// runner only logs a discrepancy between the two.
type SeverityCounts struct {
	Critical int
	Major    int
	Minor    int
}

// CountSeverities scans for [critical]/[major]/[minor] tags.
func CountSeverities(raw string) SeverityCounts {
	var counts SeverityCounts
	for _, m := range severityMarker.FindAllStringSubmatch(raw, -1) {
		switch strings.ToLower(m[1]) {
		case "critical":
			counts.Critical++
		case "major":
			counts.Major++
		case "minor":
			counts.Minor++
		}
	}
	return counts
}

// Blocking reports whether the tallied findings alone would argue against
// approval.
func (c SeverityCounts) Blocking() bool {
	return c.Critical > 0 || c.Major > 0
}

// Total returns the number of tagged findings.
func (c SeverityCounts) Total() int {
	return c.Critical + c.Major + c.Minor
}
