// Package secrets redacts credential-shaped substrings from note text before
// it leaves the device.
package secrets

import (
	"regexp"
	"sort"
	"strings"
)

// Marker replaces every redacted span. It never matches any rule.
const Marker = "[REDACTED]"

// maxPasses bounds the fixed-point loop in Filter.
const maxPasses = 4

type span struct{ start, end int }

// rule finds the spans to redact for one secret shape.
type rule struct {
	name string
	find func(text string) []span
}

// regexRule redacts capture group `group` of every match of re (0 = whole match).
func regexRule(name string, re *regexp.Regexp, group int) rule {
	return rule{name: name, find: func(text string) []span {
		var out []span
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			s, e := m[2*group], m[2*group+1]
			if s >= 0 && e > s {
				out = append(out, span{s, e})
			}
		}
		return out
	}}
}

// Rules run in order; wider shapes come first so narrower ones never leave a
// partially redacted tail behind.
var rules = []rule{
	regexRule("private_key", regexp.MustCompile(
		`-----BEGIN (?:[A-Z0-9]+ )*PRIVATE KEY(?: BLOCK)?-----(?:[\s\S]*?-----END (?:[A-Z0-9]+ )*PRIVATE KEY(?: BLOCK)?-----)?`), 0),
	regexRule("database_url", regexp.MustCompile(
		`(?i)\b(?:postgres(?:ql)?|mysql|mariadb|mongodb(?:\+srv)?|rediss?|amqps?|mssql|sqlserver)://[^\s/@'"<>]+@[^\s'"<>]+`), 0),
	regexRule("bearer_token", regexp.MustCompile(
		`(?i)\bbearer\s+([A-Za-z0-9\-._~+/]{16,}=*)`), 1),
	regexRule("generic_secret", regexp.MustCompile(
		`(?i)\b(?:api[_-]?key|apikey|secret(?:[_-]?key)?|client[_-]?secret|access[_-]?token|auth[_-]?token|refresh[_-]?token|token|password|passwd|pwd|private[_-]?key)["']?\s*[:=]\s*["']?([^\s"'\[\]<>,;]{6,})`), 1),
	regexRule("jwt", regexp.MustCompile(
		`\beyJ[A-Za-z0-9_-]{8,}\.eyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}`), 0),
	regexRule("aws_access_key_id", regexp.MustCompile(
		`\b(?:AKIA|ASIA|AGPA|AIDA|AROA|ANPA)[0-9A-Z]{16}\b`), 0),
	regexRule("github_token", regexp.MustCompile(
		`\b(?:gh[pousr]_[A-Za-z0-9]{36,}|github_pat_[A-Za-z0-9_]{22,})\b`), 0),
	regexRule("stripe_key", regexp.MustCompile(
		`\b(?:sk|rk|pk)_(?:live|test)_[A-Za-z0-9]{16,}\b`), 0),
	regexRule("slack_token", regexp.MustCompile(
		`\bxox[abposr]-[A-Za-z0-9-]{10,}`), 0),
	regexRule("openai_key", regexp.MustCompile(
		`\bsk-(?:proj-|ant-)?[A-Za-z0-9_-]{20,}`), 0),
	regexRule("google_api_key", regexp.MustCompile(
		`\bAIza[0-9A-Za-z_-]{35}`), 0),
	{name: "aws_secret_access_key", find: findAWSSecrets},
}

// findAWSSecrets finds standalone 40-character base64-alphabet tokens that mix
// upper case, lower case, and digits. Hex digests (lower case only) are left alone.
func findAWSSecrets(text string) []span {
	var out []span
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		if end-start == 40 && mixedClasses(text[start:end]) {
			out = append(out, span{start, end})
		}
		start = -1
	}
	for i := 0; i < len(text); i++ {
		if isSecretChar(text[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(text))
	return out
}

func isSecretChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '/' || c == '+'
}

func mixedClasses(s string) bool {
	var upper, lower, digit bool
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
			upper = true
		case c >= 'a' && c <= 'z':
			lower = true
		case c >= '0' && c <= '9':
			digit = true
		}
	}
	return upper && lower && digit
}

// Filter returns text with every detected secret replaced by Marker.
// It is deterministic and idempotent.
func Filter(text string) string {
	out, _ := scan(text)
	return out
}

// Detect returns the sorted names of the rules that fire on text. An empty
// result guarantees Filter(text) == text.
func Detect(text string) []string {
	_, found := scan(text)
	return found
}

// Contains reports whether Filter would change text.
func Contains(text string) bool {
	return len(Detect(text)) > 0
}

func scan(text string) (string, []string) {
	seen := map[string]struct{}{}
	for pass := 0; pass < maxPasses; pass++ {
		changed := false
		for _, r := range rules {
			spans := r.find(text)
			if len(spans) == 0 {
				continue
			}
			seen[r.name] = struct{}{}
			text = redact(text, spans)
			changed = true
		}
		if !changed {
			break
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return text, names
}

func redact(text string, spans []span) string {
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, s := range spans {
		if s.start < last {
			continue
		}
		b.WriteString(text[last:s.start])
		b.WriteString(Marker)
		last = s.end
	}
	b.WriteString(text[last:])
	return b.String()
}
