// Package compose builds generation requests for outreach messages and
// validates the structured responses against the supplied research facts
// before anything is allowed to leave the system.
package compose

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
)

// SuppressedTreatmentError marks a caller error: suppressed attendees must
// never reach the composer.
type SuppressedTreatmentError struct {
	AttendeeID string
}

func (e *SuppressedTreatmentError) Error() string {
	return fmt.Sprintf("compose: attendee %s has a suppressed treatment", e.AttendeeID)
}

// Config tunes the composer.
type Config struct {
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	RateBurst   int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

const composeSystemText = `You write short B2B outreach emails for a conference. You are given a strict fact sheet. Every factual statement in your email must come from the fact sheet; never invent numbers, dates, or company details. If the fact sheet has no count, write the email without any numeric claims. Return a valid JSON object:
{"subject": "...", "body": "...", "facts": [{"claim": "...", "source_field": "<fact sheet field name>"}]}
List in "facts" every factual claim the body makes and the fact sheet field it came from.`

const strictSystemText = composeSystemText + `
STRICT MODE: your previous draft cited facts outside the fact sheet. This time use ONLY the fact sheet verbatim. Prefer omitting a detail over approximating it. Do not write any number that does not appear in the fact sheet.`

const composePrompt = `Write a conference outreach email.

Recipient: %s at %s
Variant tone: %s
Framing: %s
Subject guidance: %s

Fact sheet (the only permitted facts):
%s
%s`

const meetPrivatelyFraming = "Offer a short private meeting during the conference. Propose finding a time, not a specific slot."
const boothExpoFraming = "Invite them to stop by the booth during expo hours. No private meeting offer."

// Composer turns treatment assignments into validated outreach messages.
type Composer struct {
	ai        anthropic.Client
	templates *Registry
	cfg       Config
	limiter   *rate.Limiter
}

// New creates a Composer. The rate limiter bounds generation calls across
// concurrent workers to respect the provider's limits.
func New(ai anthropic.Client, templates *Registry, cfg Config) *Composer {
	perSec := cfg.RatePerSec
	if perSec <= 0 {
		perSec = 5
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 5
	}
	return &Composer{
		ai:        ai,
		templates: templates,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(perSec), burst),
	}
}

// Compose generates and validates a message for one non-suppressed
// assignment. contactedCount is how many attendees at the company are being
// contacted this wave; the company-wide disclosure line is required exactly
// when it exceeds one. On an ungrounded result the generation is retried
// once with stricter constraints; a second failure returns the message with
// a failed validation outcome and an UngroundedClaimError for the caller to
// escalate.
func (c *Composer) Compose(ctx context.Context, att model.Attendee, co model.Company, treatment model.Treatment, contactedCount int) (*model.GeneratedMessage, error) {
	if !treatment.Personalized() {
		return nil, &SuppressedTreatmentError{AttendeeID: att.ID}
	}

	tmpl, err := c.templates.Lookup(treatment)
	if err != nil {
		return nil, err
	}

	payload := BuildPayload(att, co, contactedCount)

	msg, err := c.generate(ctx, payload, tmpl, composeSystemText)
	if err != nil {
		return nil, err
	}

	if vErr := ValidateGrounding(payload, msg); vErr != nil {
		zap.L().Warn("compose: draft failed grounding, retrying strict",
			zap.String("attendee", att.ID),
			zap.String("company", co.ID),
			zap.Error(vErr),
		)
		msg, err = c.generate(ctx, payload, tmpl, strictSystemText)
		if err != nil {
			return nil, err
		}
		if vErr = ValidateGrounding(payload, msg); vErr != nil {
			msg.Validation = model.ValidationFailed
			return msg, vErr
		}
	}

	msg.Validation = model.ValidationPassed
	return msg, nil
}

func (c *Composer) generate(ctx context.Context, payload FactPayload, tmpl Template, systemText string) (*model.GeneratedMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "compose: rate limit wait")
	}

	timeout := time.Duration(c.cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	framing := boothExpoFraming
	if tmpl.Framing == "meet_privately" {
		framing = meetPrivatelyFraming
	}

	disclosure := "Do NOT include any line about contacting colleagues."
	if payload.Disclose {
		disclosure = fmt.Sprintf("Include this exact sentence in the body: %q", DisclosureLine)
	}

	prompt := fmt.Sprintf(composePrompt,
		payload.FirstName,
		payload.CompanyName,
		tmpl.Tone,
		framing,
		tmpl.SubjectHint,
		payload.FactContext(),
		disclosure,
	)

	maxTokens := c.cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	resp, err := c.ai.CreateMessage(callCtx, anthropic.MessageRequest{
		Model:     c.cfg.Model,
		MaxTokens: maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(systemText),
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "compose: generation call")
	}

	return parseMessage(anthropic.ExtractText(resp))
}

type generatedJSON struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Facts   []struct {
		Claim       string `json:"claim"`
		SourceField string `json:"source_field"`
	} `json:"facts"`
}

func parseMessage(text string) (*model.GeneratedMessage, error) {
	var raw generatedJSON
	if err := json.Unmarshal([]byte(cleanJSON(text)), &raw); err != nil {
		return nil, eris.Wrap(err, "compose: parse generation response")
	}
	if raw.Subject == "" || raw.Body == "" {
		return nil, eris.New("compose: generation response missing subject or body")
	}

	msg := &model.GeneratedMessage{Subject: raw.Subject, Body: raw.Body}
	for _, f := range raw.Facts {
		msg.Facts = append(msg.Facts, model.ClaimedFact{Claim: f.Claim, SourceField: f.SourceField})
	}
	return msg, nil
}

// cleanJSON strips markdown fences and surrounding prose from a model
// response, keeping the outermost JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
