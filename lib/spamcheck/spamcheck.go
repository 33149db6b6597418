// Package spamcheck defines the request, result and response types shared by checks, the detector and clients.
package spamcheck

import (
	"fmt"
	"sort"
	"strings"
)

// Request is a request to check a message for spam.
type Request struct {
	Text       string                 `json:"text"`       // message to check
	Recipients []string               `json:"recipients"` // message recipients, provided by the client
	Checks     []string               `json:"checks"`     // names of checks to run, in order, duplicates allowed
	Options    map[string]CheckParams `json:"options"`    // optional per-check parameters, keyed by check name
}

// CheckParams is a free-form parameter bag for a single check, interpreted by the check itself.
type CheckParams struct {
	Params Params `json:"params"`
}

// ParamsFor returns parameters requested for the named check, nil if not set.
func (r *Request) ParamsFor(name string) Params {
	if r.Options == nil {
		return nil
	}
	opt, ok := r.Options[name]
	if !ok {
		return nil
	}
	return opt.Params
}

func (r *Request) String() string {
	return fmt.Sprintf("text:%q, recipients:%v, checks:%v", r.Text, r.Recipients, r.Checks)
}

// Result is a result of a single check.
type Result struct {
	Name    string         `json:"name"`    // name of the check
	Passed  bool           `json:"passed"`  // false if the check flags the message
	Score   float64        `json:"score"`   // spam likelihood, 0.0 - 1.0
	Details map[string]any `json:"details"` // check-specific diagnostic payload
}

func (r *Result) String() string {
	status := "passed"
	if !r.Passed {
		status = "failed"
	}
	keys := make([]string, 0, len(r.Details))
	for k := range r.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	details := make([]string, 0, len(keys))
	for _, k := range keys {
		details = append(details, fmt.Sprintf("%s=%v", k, r.Details[k]))
	}
	return fmt.Sprintf("%s: %s, score %.2f, %s", r.Name, status, r.Score, strings.Join(details, " "))
}

// ErrorResult makes a failing result for the named check with the error message in details.
func ErrorResult(name string, err error) Result {
	return Result{Name: name, Passed: false, Score: 0, Details: map[string]any{"error": err.Error()}}
}

// Response is an aggregated result of all checks requested.
type Response struct {
	IsSpam  bool     `json:"is_spam"` // true if any check failed
	Score   float64  `json:"score"`   // mean score of all results
	Results []Result `json:"results"` // results in the order of requested checks, unknown checks skipped
}

// ResultsToString converts a slice of results to a string
func ResultsToString(results []Result) string {
	elems := []string{}
	for _, r := range results {
		elems = append(elems, "{"+r.String()+"}")
	}
	return fmt.Sprintf("[%s]", strings.Join(elems, ", "))
}
