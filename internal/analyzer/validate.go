package analyzer

import (
	"fmt"
	"regexp"
	"strings"

	"litgate/internal/core"
)

// fieldTagRe matches PubMed-style field qualifiers like [tiab] or [mh].
var fieldTagRe = regexp.MustCompile(`\[([A-Za-z ]+)\]`)

// knownFieldTags are the qualifiers the biomedical source understands.
var knownFieldTags = map[string]bool{
	"ti": true, "tiab": true, "ab": true, "mh": true, "mesh": true,
	"au": true, "dp": true, "la": true, "sb": true, "pt": true,
	"tw": true, "all": true, "majr": true, "ta": true,
	"mesh terms": true, "publication type": true, "author": true,
}

// ValidationResult is the outcome of checking one query string. Fixed
// holds the repaired query; Warnings list problems that were repaired or
// could not be fixed safely.
type ValidationResult struct {
	Fixed    string   `json:"fixed"`
	Warnings []string `json:"warnings,omitempty"`
}

// ValidateQuery checks a raw query for syntax problems and repairs the
// ones with a safe automatic fix: unbalanced parentheses and quotes are
// closed, leading boolean operators dropped. Unknown or mis-cased field
// tags only produce warnings. An empty query is an error.
func ValidateQuery(query string) (ValidationResult, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return ValidationResult{}, core.NewError(core.KindInvalidInput, "query is empty")
	}

	var res ValidationResult

	q, res.Warnings = dropLeadingBoolean(q, res.Warnings)
	q, res.Warnings = balanceQuotes(q, res.Warnings)
	q, res.Warnings = balanceParens(q, res.Warnings)
	res.Warnings = append(res.Warnings, checkFieldTags(q)...)

	res.Fixed = q
	return res, nil
}

func dropLeadingBoolean(q string, warnings []string) (string, []string) {
	for {
		upper := strings.ToUpper(q)
		var dropped bool
		for _, op := range []string{"AND ", "OR ", "NOT "} {
			if strings.HasPrefix(upper, op) {
				warnings = append(warnings, fmt.Sprintf("dropped leading boolean operator %q", strings.TrimSpace(op)))
				q = strings.TrimSpace(q[len(op):])
				dropped = true
				break
			}
		}
		if !dropped || q == "" {
			return q, warnings
		}
	}
}

func balanceQuotes(q string, warnings []string) (string, []string) {
	if strings.Count(q, `"`)%2 != 0 {
		warnings = append(warnings, "closed unbalanced quote")
		q += `"`
	}
	return q, warnings
}

func balanceParens(q string, warnings []string) (string, []string) {
	depth := 0
	for _, r := range q {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		}
	}
	switch {
	case depth > 0:
		warnings = append(warnings, fmt.Sprintf("closed %d unbalanced parenthesis(es)", depth))
		q += strings.Repeat(")", depth)
	case depth < 0:
		warnings = append(warnings, fmt.Sprintf("added %d opening parenthesis(es)", -depth))
		q = strings.Repeat("(", -depth) + q
	}
	return q, warnings
}

// checkFieldTags warns about tags the biomedical source will not
// understand. Mis-cased known tags warn rather than fix: rewriting the
// user's query text is not safe.
func checkFieldTags(q string) []string {
	var warnings []string
	for _, m := range fieldTagRe.FindAllStringSubmatch(q, -1) {
		tag := m[1]
		lower := strings.ToLower(tag)
		switch {
		case knownFieldTags[lower] && tag != lower:
			warnings = append(warnings, fmt.Sprintf("field tag [%s] should be lowercase [%s]", tag, lower))
		case !knownFieldTags[lower]:
			warnings = append(warnings, fmt.Sprintf("unknown field tag [%s]", tag))
		}
	}
	return warnings
}
