package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterpretReview(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		approved bool
	}{
		{"plain approval", "Code is clean.\nAPPROVED", true},
		{"verdict prefix", "verdict: approved", true},
		{"plain rejection", "REJECTED", false},
		{"rejection wins over approval", "APPROVED\nactually no\nREJECTED", false},
		{"needs changes counts as rejection", "APPROVED but NEEDS CHANGES everywhere", false},
		{"no marker at all", "looks reasonable to me", false},
		{"approval mid-sentence does not count", "the approach was approved by the team", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			approved, feedback := InterpretReview(tc.raw)
			assert.Equal(t, tc.approved, approved)
			assert.NotEmpty(t, feedback)
		})
	}
}

func TestInterpretQA(t *testing.T) {
	approved, _ := InterpretQA("Everything checks out.\nPASS")
	assert.True(t, approved)

	approved, reason := InterpretQA("QA: FAIL\nTests flaky.")
	assert.False(t, approved)
	assert.Contains(t, reason, "flaky")

	approved, _ = InterpretQA("PASS\nbut also FAIL later")
	assert.False(t, approved)

	approved, _ = InterpretQA("inconclusive ramblings")
	assert.False(t, approved)
}

func TestCountSeverities(t *testing.T) {
	raw := `Findings:
[critical] unchecked error return
[major] missing timeout
[major] global mutable state
[minor] typo in comment`

	counts := CountSeverities(raw)
	assert.Equal(t, 1, counts.Critical)
	assert.Equal(t, 2, counts.Major)
	assert.Equal(t, 1, counts.Minor)
	assert.Equal(t, 4, counts.Total())
	assert.True(t, counts.Blocking())

	assert.False(t, CountSeverities("[minor] nitpick only").Blocking())
	assert.Zero(t, CountSeverities("no tags here").Total())
}
