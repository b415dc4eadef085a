package compose

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sells-group/outreach-cli/internal/model"
)

// DisclosureLine must appear verbatim in every message sent to a company
// where more than one attendee is being contacted, and nowhere else.
const DisclosureLine = "We're also reaching out to a couple of your colleagues attending."

// UngroundedClaimError reports generated content citing facts absent from
// the supplied payload. The composer retries once with stricter
// constraints, then escalates to failed/pending-review.
type UngroundedClaimError struct {
	Tokens []string // numeric tokens with no matching supplied fact
	Fields []string // claimed source fields outside the whitelist
	Reason string   // non-numeric violations (disclosure line misuse)
}

func (e *UngroundedClaimError) Error() string {
	var parts []string
	if len(e.Tokens) > 0 {
		parts = append(parts, fmt.Sprintf("ungrounded numbers %v", e.Tokens))
	}
	if len(e.Fields) > 0 {
		parts = append(parts, fmt.Sprintf("unknown source fields %v", e.Fields))
	}
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	return "ungrounded claim: " + strings.Join(parts, "; ")
}

var numberPattern = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

// ValidateGrounding checks a generated message against its fact payload.
// It is a pure function so the grounding contract can be tested without
// any generation call. Rules:
//
//   - every numeric token in subject and body must appear in the payload
//   - every claimed fact must cite a whitelisted, populated payload field
//   - the disclosure line appears iff the payload says to disclose
//
// Returns nil when the message is sendable.
func ValidateGrounding(p FactPayload, msg *model.GeneratedMessage) error {
	verdict := &UngroundedClaimError{}

	allowed := allowedNumbers(p)
	for _, tok := range numberPattern.FindAllString(msg.Subject+"\n"+msg.Body, -1) {
		if !allowed[normalizeNumber(tok)] {
			verdict.Tokens = append(verdict.Tokens, tok)
		}
	}

	for _, fact := range msg.Facts {
		if !p.allowedField(fact.SourceField) {
			verdict.Fields = append(verdict.Fields, fact.SourceField)
		}
	}

	hasDisclosure := strings.Contains(msg.Body, DisclosureLine)
	if p.Disclose && !hasDisclosure {
		verdict.Reason = "missing required disclosure line"
	} else if !p.Disclose && hasDisclosure {
		verdict.Reason = "disclosure line present for a single-contact company"
	}

	if len(verdict.Tokens) > 0 || len(verdict.Fields) > 0 || verdict.Reason != "" {
		return verdict
	}
	return nil
}

// allowedNumbers collects every number present in the supplied facts. The
// sourced count is allowed as an exact value; numbers embedded in the
// overview, hook, and bullets are allowed because they arrived sourced from
// research.
func allowedNumbers(p FactPayload) map[string]bool {
	allowed := make(map[string]bool)
	if p.Count > 0 {
		allowed[normalizeNumber(fmt.Sprint(p.Count))] = true
	}
	texts := []string{p.Overview, p.Hook, p.CompanyName}
	texts = append(texts, p.Bullets...)
	for _, text := range texts {
		for _, tok := range numberPattern.FindAllString(text, -1) {
			allowed[normalizeNumber(tok)] = true
		}
	}
	return allowed
}

func normalizeNumber(tok string) string {
	return strings.ReplaceAll(tok, ",", "")
}
