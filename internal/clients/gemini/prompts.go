package gemini

import "fmt"

// buildCheapFilterPrompt creates the pre-filter prompt. Only the opening
// portion of the document is supplied; the question is deliberately coarse.
func buildCheapFilterPrompt(textPrefix string) string {
	return fmt.Sprintf(`You are screening planning application documents.

A "further information (FI) request" is a letter from a planning authority
asking the applicant to submit additional information, reports, or
clarifications before the application can be decided.

Read the following document excerpt and decide whether this document is
likely to be a further information request letter. Consultant reports,
application forms, drawings, and third-party submissions are NOT FI requests.

Document excerpt:
---
%s
---

Answer with JSON: {"likely_fi": true} or {"likely_fi": false}.`, textPrefix)
}

// buildClassifyPrompt creates the full FI detection and type-matching prompt.
func buildClassifyPrompt(text, targetType string) string {
	return fmt.Sprintf(`You are analysing a planning application document.

Task 1 - FI detection: decide whether this document is a further information
(FI) request letter, i.e. a letter from a planning authority requiring the
applicant to submit additional information before the application is decided.

Task 2 - report-type matching: if it is an FI request, decide whether it
requests a report or assessment of this type: "%s".

Rules:
- "matches_type" may only be true when "is_fi" is true AND the letter
  explicitly requests a "%s" report or assessment.
- "validation_quote" must be a short passage copied VERBATIM from the
  document that contains the request for the "%s" report. Do not paraphrase,
  correct, or invent text. Leave it empty when matches_type is false.
- "confidence" is your confidence in the matches_type decision, 0.0 to 1.0.

Document text:
---
%s
---

Answer with JSON only:
{"is_fi": bool, "matches_type": bool, "validation_quote": string, "confidence": number}`, targetType, targetType, targetType, text)
}
