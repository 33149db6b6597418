// Package phone extracts phone numbers from a text for a set of supported countries,
// normalizes them to the international form and detects fake (degenerate) numbers.
// Analyzer is stateless and safe for concurrent use.
package phone

import (
	"regexp"
	"sort"
	"strings"
)

// supported country codes
const (
	Russia     = "ru"
	Kazakhstan = "kz"
	Uzbekistan = "uz"
	Belarus    = "bl"
)

// patterns matches phone-like substrings per country, with or without parentheses, spaces and hyphens.
// Spaces include unicode ones, i.e. non-breaking space often used by messengers.
var patterns = map[string]*regexp.Regexp{
	Russia:     regexp.MustCompile(`(?:\+7|8|7)[\s\p{Zs}]?(?:\(?\d{3}\)?|\d{3})[\s\p{Zs}-]?\d{3}[\s\p{Zs}-]?\d{2}[\s\p{Zs}-]?\d{2}`),
	Kazakhstan: regexp.MustCompile(`\+7[\s\p{Zs}]?(?:\(7\d{2}\)|7\d{2})[\s\p{Zs}-]?\d{3}[\s\p{Zs}-]?\d{2}[\s\p{Zs}-]?\d{2}`),
	Uzbekistan: regexp.MustCompile(`\+998[\s\p{Zs}]?(?:\(?\d{2}\)?|\d{2})[\s\p{Zs}-]?\d{3}[\s\p{Zs}-]?\d{2}[\s\p{Zs}-]?\d{2}`),
	Belarus:    regexp.MustCompile(`\+375[\s\p{Zs}]?(?:\(?\d{2}\)?|\d{2})[\s\p{Zs}-]?\d{3}[\s\p{Zs}-]?\d{2}[\s\p{Zs}-]?\d{2}`),
}

// Finding is a result of phone extraction for a single country.
type Finding struct {
	Raw        []string  `json:"phones_raw"`        // matches as found in the text
	Normalized []*string `json:"phones_normalized"` // normalized form of each raw match, nil if normalization failed
	Valid      []string  `json:"valid"`             // normalized numbers not flagged as fake
	Fake       []string  `json:"fake"`              // normalized fake numbers and raw matches failed to normalize
	CountValid int       `json:"count_valid"`
	CountFake  int       `json:"count_fake"`
	CountTotal int       `json:"count_total"`
}

// Countries returns all supported country codes, sorted.
func Countries() []string {
	res := make([]string, 0, len(patterns))
	for c := range patterns {
		res = append(res, c)
	}
	sort.Strings(res)
	return res
}

// IsSupported checks if the country code has an extraction pattern.
func IsSupported(country string) bool {
	_, ok := patterns[country]
	return ok
}

// Analyze finds phone numbers in the text and classifies them per country.
// If country is empty, all supported patterns are applied independently, and the same number may show up
// under more than one country. If country is set, only its pattern is applied, unsupported codes fall back
// to the Russia pattern. A country is present in the result only if at least one raw match was found for it.
func Analyze(text, country string) map[string]Finding {
	countries := Countries()
	if country != "" {
		if !IsSupported(country) {
			country = Russia
		}
		countries = []string{country}
	}

	res := map[string]Finding{}
	for _, c := range countries {
		raw := patterns[c].FindAllString(text, -1)
		if len(raw) == 0 {
			continue
		}
		res[c] = classify(raw)
	}
	return res
}

// classify normalizes raw matches and splits them into valid and fake numbers
func classify(raw []string) Finding {
	f := Finding{
		Raw:        raw,
		Normalized: make([]*string, 0, len(raw)),
		Valid:      []string{},
		Fake:       []string{},
		CountTotal: len(raw),
	}
	for _, phone := range raw {
		norm, ok := Normalize(phone)
		if !ok {
			f.Normalized = append(f.Normalized, nil)
			f.Fake = append(f.Fake, phone)
			continue
		}
		f.Normalized = append(f.Normalized, &norm)
		if IsFake(norm) {
			f.Fake = append(f.Fake, norm)
			continue
		}
		f.Valid = append(f.Valid, norm)
	}
	f.CountValid, f.CountFake = len(f.Valid), len(f.Fake)
	return f
}

// Normalize converts a phone number to the +<country-code><national-number> form.
// Returns false if the number doesn't fit any supported country.
func Normalize(phone string) (string, bool) {
	digits := onlyDigits(phone)
	switch {
	case len(digits) == 11 && (digits[0] == '8' || digits[0] == '7'):
		return "+7" + digits[1:], true // russia and kazakhstan
	case len(digits) == 12 && strings.HasPrefix(digits, "998"):
		return "+" + digits, true
	case len(digits) == 12 && strings.HasPrefix(digits, "375"):
		return "+" + digits, true
	}
	return "", false
}

// IsFake checks if a phone number is implausible. A number is fake if it doesn't fit any supported country,
// or its national part is a single repeated digit, has 7+ digits made of at most two distinct digits,
// or all but one of its digits are 9 (or 0).
func IsFake(phone string) bool {
	national, ok := nationalPart(onlyDigits(phone))
	if !ok || national == "" {
		return true
	}

	distinct := map[rune]struct{}{}
	for _, r := range national {
		distinct[r] = struct{}{}
	}
	if len(distinct) == 1 {
		return true
	}
	if len(national) >= 7 && len(distinct) <= 2 {
		return true
	}
	if strings.Count(national, "9") >= len(national)-1 || strings.Count(national, "0") >= len(national)-1 {
		return true
	}
	return false
}

// nationalPart strips the country prefix from a digits-only number
func nationalPart(digits string) (string, bool) {
	switch {
	case len(digits) == 11 && (digits[0] == '7' || digits[0] == '8'):
		return digits[1:], true
	case len(digits) == 12 && (strings.HasPrefix(digits, "998") || strings.HasPrefix(digits, "375")):
		return digits[3:], true
	}
	return "", false
}

func onlyDigits(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
