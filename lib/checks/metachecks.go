package checks

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/forPelevin/gomoji"

	"github.com/spamd/spamd/lib/phone"
	"github.com/spamd/spamd/lib/spamcheck"
)

// names of built-in checks
const (
	BlacklistName    = "blacklist"
	LinksName        = "links"
	PhoneName        = "phone"
	TelegramNickName = "telegram_nick"
	LengthName       = "message_length"
	EmailName        = "email_addresses"
	EmojiName        = "emoji"
)

// defaults of built-in checks, each can be overridden per call
const (
	DefaultMaxHits   = 3
	DefaultMaxLinks  = 3
	DefaultMinLength = 10
	DefaultMaxLength = 2000
	DefaultMaxEmoji  = 2
)

// DefaultBlacklist returns the default list of blacklisted words. A new slice on each call.
func DefaultBlacklist() []string { return []string{"free", "viagra", "casino"} }

var (
	reLink  = regexp.MustCompile(`https?://\S+`)
	reNick  = regexp.MustCompile(`@[A-Za-z0-9_]{5,32}`)
	reEmail = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
)

// Blacklist checks the text for blacklisted words, case-insensitive.
// Params: "words" (list, default DefaultBlacklist), "max_hits" (number, default 3) - number of hits for the max score.
func Blacklist(text string, params spamcheck.Params) spamcheck.Result {
	words := params.Strings("words", DefaultBlacklist())
	maxHits := params.Float("max_hits", DefaultMaxHits)

	lowerText := strings.ToLower(text)
	hits := []string{}
	for _, w := range words {
		if w != "" && strings.Contains(lowerText, strings.ToLower(w)) {
			hits = append(hits, w)
		}
	}
	return spamcheck.Result{
		Name:    BlacklistName,
		Passed:  len(hits) == 0,
		Score:   ratio(float64(len(hits)), maxHits),
		Details: map[string]any{"hits": hits, "count": len(hits), "max_hits": maxHits},
	}
}

// Links counts http(s) links in the text. The check passes only if at least one link found.
// Params: "max_links" (number, default 3) - number of links for the max score.
func Links(text string, params spamcheck.Params) spamcheck.Result {
	maxLinks := params.Float("max_links", DefaultMaxLinks)
	links := reLink.FindAllString(text, -1)
	if links == nil {
		links = []string{}
	}
	return spamcheck.Result{
		Name:    LinksName,
		Passed:  len(links) > 0,
		Score:   ratio(float64(len(links)), maxLinks),
		Details: map[string]any{"links": links, "count": len(links), "max_links": maxLinks},
	}
}

// Phone looks for phone numbers of supported countries, both valid and fake ones.
// The check passes if any phone-like match found, the score is 1.0 in this case.
// Params: "country" (string, optional) - restrict the search to a single country code.
func Phone(text string, params spamcheck.Params) spamcheck.Result {
	findings := phone.Analyze(text, params.String("country", ""))
	var total, valid, fake int
	for _, f := range findings {
		total += f.CountTotal
		valid += f.CountValid
		fake += f.CountFake
	}
	score := 0.0
	if total > 0 {
		score = 1.0
	}
	return spamcheck.Result{
		Name:    PhoneName,
		Passed:  total > 0,
		Score:   score,
		Details: map[string]any{"phones": findings, "count_total": total, "count_valid": valid, "count_fake": fake},
	}
}

// TelegramNick looks for telegram nicknames, @ followed by 5-32 letters, digits or underscores.
// The check passes if any nickname found.
func TelegramNick(text string, _ spamcheck.Params) spamcheck.Result {
	nicks := reNick.FindAllString(text, -1)
	if nicks == nil {
		nicks = []string{}
	}
	return spamcheck.Result{Name: TelegramNickName, Passed: len(nicks) > 0, Score: presence(len(nicks)),
		Details: map[string]any{"nicknames": nicks}}
}

// Email looks for email addresses. The check passes if any address found.
func Email(text string, _ spamcheck.Params) spamcheck.Result {
	emails := reEmail.FindAllString(text, -1)
	if emails == nil {
		emails = []string{}
	}
	return spamcheck.Result{Name: EmailName, Passed: len(emails) > 0, Score: presence(len(emails)),
		Details: map[string]any{"emails": emails}}
}

// Length checks the text length in characters is within the bounds.
// Params: "min_length" (number, default 10), "max_length" (number, default 2000).
// The score grows with the distance from the violated bound, relative to the bound.
func Length(text string, params spamcheck.Params) spamcheck.Result {
	minLen := params.Float("min_length", DefaultMinLength)
	maxLen := params.Float("max_length", DefaultMaxLength)
	length := utf8.RuneCountInString(text)

	res := spamcheck.Result{Name: LengthName, Passed: true, Score: 0,
		Details: map[string]any{"length": length, "min_length": minLen, "max_length": maxLen}}
	switch {
	case float64(length) < minLen:
		res.Passed = false
		res.Score = ratio(minLen-float64(length), minLen)
	case float64(length) > maxLen:
		res.Passed = false
		res.Score = ratio(float64(length)-maxLen, maxLen)
	}
	return res
}

// Emoji counts emojis in the text and fails if there are more than allowed.
// Params: "max_emoji" (number, default 2).
func Emoji(text string, params spamcheck.Params) spamcheck.Result {
	maxEmoji := params.Float("max_emoji", DefaultMaxEmoji)
	count := len(gomoji.CollectAll(text))
	res := spamcheck.Result{Name: EmojiName, Passed: float64(count) <= maxEmoji, Score: 0,
		Details: map[string]any{"count": count, "max_emoji": maxEmoji}}
	if !res.Passed {
		res.Score = ratio(float64(count)-maxEmoji, maxEmoji)
	}
	return res
}

// ratio returns n/limit capped to 1.0, limit below 1 treated as 1. Fractional limits are kept as is.
func ratio(n, limit float64) float64 {
	return math.Min(n/math.Max(limit, 1), 1.0)
}

func presence(n int) float64 {
	if n > 0 {
		return 1.0
	}
	return 0.0
}

// clampScore keeps a score reported by an external source within 0.0 - 1.0
func clampScore(s float64) float64 {
	if math.IsNaN(s) || s < 0 {
		return 0
	}
	return math.Min(s, 1)
}
