package dateparse

import (
	"regexp"
	"strings"
)

const naturalPhrase = `today|tomorrow|\d+\s*(?:days?|weeks?|months?|years?|[dwmy])`

var absolutePhrases = []string{
	`\d{1,2}/\d{1,2}/\d{2,4}`,
	`\d{1,2}-\d{1,2}-\d{2,4}`,
	`\d{4}-\d{1,2}-\d{1,2}`,
	`\d{4}/\d{1,2}/\d{1,2}`,
	`\d{1,2}\.\d{1,2}\.\d{2,4}`,
}

// prefixRule matches a connector before a phrase. The phrase is capture group 1.
type prefixRule struct {
	re *regexp.Regexp
}

// prefixRules holds every compound ": in" form before any single connector
// form, whatever the phrase shape. A single form tried first leaves a
// dangling colon behind for "wash dog: in 5d".
var prefixRules = buildPrefixRules()

func buildPrefixRules() []prefixRule {
	phrases := append([]string{naturalPhrase}, absolutePhrases...)
	rules := make([]prefixRule, 0, 2*len(phrases))
	for _, p := range phrases {
		rules = append(rules, prefixRule{re: regexp.MustCompile(`(?i)\s*:\s*in\s+((?:` + p + `)\b)`)})
	}
	for _, p := range phrases {
		rules = append(rules, prefixRule{re: regexp.MustCompile(`(?i)\s*(?:\bin|:)\s+((?:` + p + `)\b)`)})
	}
	return rules
}

// RemovePrefixes drops an "in", ":", or ": in" connector sitting directly in
// front of a date phrase, keeping the phrase itself. Only the first match is
// rewritten. Titles without such a connector come back unchanged.
func RemovePrefixes(title string) string {
	for _, r := range prefixRules {
		loc := r.re.FindStringSubmatchIndex(title)
		if loc == nil {
			continue
		}
		return collapse(title[:loc[0]] + " " + title[loc[2]:])
	}
	return title
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
