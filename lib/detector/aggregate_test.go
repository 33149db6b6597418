package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spamd/spamd/lib/spamcheck"
)

func TestAggregate(t *testing.T) {
	tests := []struct {
		name    string
		results []spamcheck.Result
		spam    bool
		score   float64
	}{
		{name: "nil", results: nil, spam: false, score: 0},
		{name: "empty", results: []spamcheck.Result{}, spam: false, score: 0},
		{name: "single passed", results: []spamcheck.Result{{Passed: true, Score: 0.4}}, spam: false, score: 0.4},
		{name: "single failed with zero score", results: []spamcheck.Result{{Passed: false, Score: 0}}, spam: true, score: 0},
		{name: "pass and fail", results: []spamcheck.Result{{Passed: true, Score: 0}, {Passed: false, Score: 1}},
			spam: true, score: 0.5},
		{name: "all passed high scores", results: []spamcheck.Result{{Passed: true, Score: 1}, {Passed: true, Score: 0.5}},
			spam: false, score: 0.75},
		{name: "three failed", results: []spamcheck.Result{{Score: 0.3}, {Score: 0.6}, {Score: 0.9}}, spam: true, score: 0.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spam, score := Aggregate(tt.results)
			assert.Equal(t, tt.spam, spam)
			assert.InDelta(t, tt.score, score, 0.0001)
		})
	}
}
