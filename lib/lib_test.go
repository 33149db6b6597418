package lib_test

import (
	"context"
	"fmt"

	"github.com/spamd/spamd/lib"
	"github.com/spamd/spamd/lib/checks"
	"github.com/spamd/spamd/lib/spamcheck"
)

// ExampleNewDetector demonstrates how to initialize a new Detector and use it to check a message for spam.
func ExampleNewDetector() {
	// initialize a detector with a custom check in addition to the built-in ones
	shouting := checks.NewBlocking("shouting", func(text string, _ spamcheck.Params) spamcheck.Result {
		return spamcheck.Result{Name: "shouting", Passed: true, Score: 0}
	})
	detector := lib.NewDetector(lib.Config{
		Workers:  4,
		Defaults: map[string]lib.Params{"message_length": {"min_length": 5}},
	}, shouting)

	// check a message for spam
	resp, err := detector.Check(context.Background(), lib.Request{
		Text:   "get FREE viagra now",
		Checks: []string{"blacklist", "message_length", "shouting", "no-such-check"},
		Options: map[string]spamcheck.CheckParams{
			"blacklist": {Params: lib.Params{"max_hits": 2}},
		},
	})
	if err != nil {
		fmt.Println("Error checking message:", err)
		return
	}

	fmt.Printf("spam: %v, score: %.2f\n", resp.IsSpam, resp.Score)
	for _, r := range resp.Results {
		fmt.Printf("%s: passed=%v score=%.2f\n", r.Name, r.Passed, r.Score)
	}

	// Output:
	// spam: true, score: 0.33
	// blacklist: passed=false score=1.00
	// message_length: passed=true score=0.00
	// shouting: passed=true score=0.00
}
