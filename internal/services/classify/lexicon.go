package classify

import "strings"

// reportLexicon maps each report type to the terms that an authentic request
// for that report is expected to use. Lowercase; matching is case-insensitive
// substring.
var reportLexicon = map[string][]string{
	"acoustic": {
		"acoustic", "noise", "sound", "vibration", "decibel", "db(a)",
	},
	"transport": {
		"transport", "traffic", "parking", "travel", "highway", "vehicular",
	},
	"ecological": {
		"ecological", "ecology", "biodiversity", "habitat", "species", "wildlife",
	},
	"ecology": {
		"ecological", "ecology", "biodiversity", "habitat", "species", "wildlife",
	},
	"flood": {
		"flood", "drainage", "suds", "hydrology", "surface water", "foul water",
	},
	"heritage": {
		"heritage", "archaeological", "historic", "conservation", "listed building",
	},
	"lighting": {
		"lighting", "light pollution", "illumination", "luminance",
	},
}

// LexiconTerms returns the terms for a report type, nil for unknown types.
func LexiconTerms(reportType string) []string {
	return reportLexicon[strings.ToLower(strings.TrimSpace(reportType))]
}

// ContainsLexiconTerm reports whether the passage mentions at least one term
// from the report type's lexicon. Types with no lexicon pass vacuously so a
// newly added report type is not silently unreachable.
func ContainsLexiconTerm(passage, reportType string) bool {
	terms := LexiconTerms(reportType)
	if len(terms) == 0 {
		return true
	}
	lower := strings.ToLower(passage)
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// QuoteInText reports whether the model's validation quote appears verbatim
// in the source text, after whitespace normalisation. Quotes that fail this
// check are treated as hallucinated and the match is rejected.
func QuoteInText(quote, text string) bool {
	q := normaliseWhitespace(quote)
	if q == "" {
		return false
	}
	return strings.Contains(normaliseWhitespace(text), q)
}

// normaliseWhitespace collapses runs of whitespace to single spaces so line
// wrapping in the extracted text does not defeat verbatim matching.
func normaliseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
