// Package lib provides functionality for spam detection. The primary type in this package
// is the Detector, which runs a set of named checks over a text and aggregates their results.
// It is initialized with parameters defined in the Config struct.
//
// The Detector is designed to be thread-safe and supports concurrent usage.
//
// Checks are looked up by name in a registry. NewDetector registers the built-in checks:
//
//   - blacklist: looks for blacklisted words. Params: "words" (list), "max_hits" (int).
//   - links: counts http(s) links. Params: "max_links" (int).
//   - phone: finds phone numbers of supported countries (ru, kz, uz, bl) and detects fake ones.
//     Params: "country" (string) restricts the search to a single country.
//   - telegram_nick: finds telegram nicknames like @some_name.
//   - message_length: checks the length in characters. Params: "min_length", "max_length" (int).
//   - email_addresses: finds email addresses.
//   - emoji: counts emojis. Params: "max_emoji" (int).
//
// Extra checks, i.e. checks.External, checks.OpenAI, checks.Gemini or Lua scripts from the checks/lua package,
// can be passed to NewDetector as well.
//
// A Request lists the checks to run, in order, and optional params for each of them. Unknown check names are
// skipped. The Response has a result per known check, in the requested order, the mean score of all results,
// and IsSpam set if any of the checks failed:
//
//   - Config.Workers limits the number of blocking (local) checks running at the same time.
//     Non-blocking checks, waiting on network, don't take a worker.
//
//   - Config.Defaults sets default params per check name. Params of the request override them key by key.
package lib

import (
	"github.com/spamd/spamd/lib/checks"
	"github.com/spamd/spamd/lib/detector"
	"github.com/spamd/spamd/lib/spamcheck"
)

// type aliases for library users, to avoid importing sub-packages for the basic usage
type (
	Detector = detector.Detector
	Config   = detector.Config
	Request  = spamcheck.Request
	Response = spamcheck.Response
	Result   = spamcheck.Result
	Params   = spamcheck.Params
)

// NewDetector makes a Detector with the built-in checks and the extra ones.
// An extra check replaces the built-in one with the same name.
func NewDetector(cfg Config, extra ...checks.Check) *Detector {
	reg := checks.NewRegistry(checks.Builtin()...)
	for _, c := range extra {
		reg.Register(c)
	}
	return detector.New(reg, cfg)
}
