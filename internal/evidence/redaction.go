// Copyright 2025 James Ross
package evidence

import "regexp"

// RedactionMatch is one applied redaction, recorded for audit.
type RedactionMatch struct {
	Rule     string
	Match    string
	Position int
}

// RedactionRule is one ordered find-and-replace pass over evidence text.
type RedactionRule struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement string
}

// NewRule compiles pattern under name, defaulting Replacement to
// "[REDACTED]" like the reference rule set.
func NewRule(name, pattern, replacement string) RedactionRule {
	if replacement == "" {
		replacement = "[REDACTED]"
	}
	return RedactionRule{Name: name, Pattern: regexp.MustCompile(pattern), Replacement: replacement}
}

// Apply runs the rule once over text, returning the redacted text and a
// record for every match (in source order).
func (r RedactionRule) Apply(text string) (string, []RedactionMatch) {
	locs := r.Pattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return text, nil
	}
	records := make([]RedactionMatch, 0, len(locs))
	var out []byte
	last := 0
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		out = append(out, text[last:start]...)
		out = append(out, r.Replacement...)
		records = append(records, RedactionMatch{
			Rule:     r.Name,
			Match:    text[start:end],
			Position: start,
		})
		last = end
	}
	out = append(out, text[last:]...)
	return string(out), records
}

// DefaultRules is the standard redaction set: email, phone, JWT-like
// tokens, Authorization/Cookie headers, and api_key=/password= markers.
func DefaultRules() []RedactionRule {
	return []RedactionRule{
		NewRule("email", `[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`, ""),
		NewRule("phone", `\+?\d{1,2}[\s.\-]?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}`, ""),
		NewRule("jwt", `eyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+`, ""),
		NewRule("authorization_header", `(?i)authorization:\s*\S+`, ""),
		NewRule("cookie_header", `(?i)cookie:\s*\S+`, ""),
		NewRule("api_key_marker", `(?i)api_key\s*=\s*\S+`, ""),
		NewRule("password_marker", `(?i)password\s*=\s*\S+`, ""),
	}
}

// RedactionMeta summarizes a redaction pass over one piece of evidence.
type RedactionMeta struct {
	Enabled    bool
	Redactions []RedactionMatch
}

// Redact applies rules in order over text when enabled is true. When
// disabled, text passes through unmodified and Enabled is false in Meta —
// callers still get back the same (text, meta) shape either way.
func Redact(text string, enabled bool, rules []RedactionRule) (string, RedactionMeta) {
	if !enabled {
		return text, RedactionMeta{Enabled: false}
	}
	var all []RedactionMatch
	current := text
	for _, rule := range rules {
		redacted, matches := rule.Apply(current)
		current = redacted
		all = append(all, matches...)
	}
	return current, RedactionMeta{Enabled: true, Redactions: all}
}
