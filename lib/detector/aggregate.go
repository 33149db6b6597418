package detector

import (
	"github.com/spamd/spamd/lib/spamcheck"
)

// Aggregate reduces check results to a verdict. The message is spam if any check failed,
// the score is the mean of all scores, 0 for no results.
func Aggregate(results []spamcheck.Result) (isSpam bool, score float64) {
	if len(results) == 0 {
		return false, 0
	}
	var sum float64
	for _, r := range results {
		sum += r.Score
		if !r.Passed {
			isSpam = true
		}
	}
	return isSpam, sum / float64(len(results))
}
