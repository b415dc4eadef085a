// Package engine orchestrates a wave of outreach: ranking budgets,
// assigning treatments, composing messages, sending, and sweeping
// follow-ups. One attendee's failure never blocks the rest of a wave.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outreach-cli/internal/budget"
	"github.com/sells-group/outreach-cli/internal/classify"
	"github.com/sells-group/outreach-cli/internal/compose"
	"github.com/sells-group/outreach-cli/internal/delivery"
	"github.com/sells-group/outreach-cli/internal/lifecycle"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/research"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/internal/store"
)

// Composer produces a validated message for one assignment.
type Composer interface {
	Compose(ctx context.Context, att model.Attendee, co model.Company, treatment model.Treatment, contactedCount int) (*model.GeneratedMessage, error)
}

// StageError ties a failure to the attempt it belongs to so wave-level
// callers can report per-contact outcomes.
type StageError struct {
	Stage      string
	AttendeeID string
	CompanyID  string
	Err        error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("engine: %s for attendee %s (company %s): %v", e.Stage, e.AttendeeID, e.CompanyID, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Config tunes wave processing.
type Config struct {
	Workers       int                             `yaml:"workers" mapstructure:"workers"`
	MaxPerCompany int                             `yaml:"max_per_company" mapstructure:"max_per_company"`
	FollowUpDelay time.Duration                   `yaml:"follow_up_delay" mapstructure:"follow_up_delay"`
	Classify      classify.Config                 `yaml:"classify" mapstructure:"classify"`
	SendRetry     resilience.RetryConfig          `yaml:"-" mapstructure:"-"`
	Breaker       resilience.CircuitBreakerConfig `yaml:"-" mapstructure:"-"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Workers:       8,
		MaxPerCompany: budget.DefaultMaxPerCompany,
		FollowUpDelay: lifecycle.DefaultFollowUpDelay,
		Classify:      classify.DefaultConfig(),
		SendRetry: resilience.RetryConfig{
			MaxAttempts:    2,
			InitialBackoff: time.Second,
		},
		Breaker: resilience.DefaultCircuitBreakerConfig(),
	}
}

// Engine runs the outreach decision pipeline against a store.
type Engine struct {
	store     store.Store
	research  *research.Adapter
	composer  Composer
	deliverer delivery.Deliverer
	breakers  *resilience.ServiceBreakers
	cfg       Config
}

func New(s store.Store, r *research.Adapter, c Composer, d delivery.Deliverer, cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.MaxPerCompany <= 0 {
		cfg.MaxPerCompany = budget.DefaultMaxPerCompany
	}
	if cfg.FollowUpDelay <= 0 {
		cfg.FollowUpDelay = lifecycle.DefaultFollowUpDelay
	}
	if cfg.Breaker.FailureThreshold <= 0 {
		cfg.Breaker = resilience.DefaultCircuitBreakerConfig()
	}
	return &Engine{
		store:     s,
		research:  r,
		composer:  c,
		deliverer: d,
		breakers:  resilience.NewServiceBreakers(cfg.Breaker),
		cfg:       cfg,
	}
}

// ClassifyWave assigns a treatment to every attendee of every researched
// company and persists one attempt row per (attendee, wave). Re-running a
// wave leaves existing attempts untouched. Returns the number of attempts
// created and any per-company failures joined together.
func (e *Engine) ClassifyWave(ctx context.Context, wave string) (int, error) {
	companies, err := e.research.Companies(ctx)
	if err != nil {
		return 0, err
	}
	topTargets := classify.TopTargets(companies, e.cfg.Classify.TopN)

	var (
		mu      sync.Mutex
		created int
		errs    []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for _, co := range companies {
		g.Go(func() error {
			n, err := e.classifyCompany(gctx, co, wave, topTargets[co.ID])
			mu.Lock()
			defer mu.Unlock()
			created += n
			if err != nil {
				zap.L().Error("engine: classify company failed",
					zap.String("company", co.ID), zap.Error(err))
				errs = append(errs, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return created, err
	}
	return created, errors.Join(errs...)
}

// ClassifyCompany runs classification for one company within a wave. The
// top-target check still ranks against the full company list so a one-off
// run agrees with a full wave run.
func (e *Engine) ClassifyCompany(ctx context.Context, companyID, wave string) (int, error) {
	co, err := e.research.Company(ctx, companyID)
	if err != nil {
		return 0, err
	}
	companies, err := e.research.Companies(ctx)
	if err != nil {
		return 0, err
	}
	topTargets := classify.TopTargets(companies, e.cfg.Classify.TopN)
	return e.classifyCompany(ctx, *co, wave, topTargets[companyID])
}

func (e *Engine) classifyCompany(ctx context.Context, co model.Company, wave string, topTarget bool) (int, error) {
	attendees, err := e.research.Attendees(ctx, co.ID)
	if err != nil {
		return 0, err
	}
	if len(attendees) == 0 {
		return 0, nil
	}

	b, err := budget.Compute(co.ID, attendees, wave, e.cfg.MaxPerCompany)
	if err != nil {
		return 0, err
	}
	if err := e.store.SaveBudget(ctx, *b); err != nil {
		return 0, err
	}
	// The stored ranking wins over the freshly computed one: a re-run after
	// a roster change must not reshuffle ranks mid-wave.
	b, err = e.store.GetBudget(ctx, co.ID, wave)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, att := range attendees {
		existing, err := e.store.GetAttemptByAttendee(ctx, att.ID, wave)
		if err != nil {
			return created, err
		}
		if existing != nil {
			continue
		}

		asg := classify.Classify(att, co, b.RankOf(att.ID), b.Cap, topTarget, e.cfg.Classify)
		if err := e.store.CreateAttempt(ctx, model.OutreachAttempt{
			ID:             uuid.New().String(),
			AttendeeID:     att.ID,
			CompanyID:      co.ID,
			Wave:           wave,
			Treatment:      asg.Treatment,
			SuppressReason: asg.Reason,
			Rank:           asg.Rank,
			State:          model.StatePending,
		}); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// ComposeAttempt generates and validates the message for one pending
// personalized attempt. Validation failure after the strict retry marks the
// attempt failed for human review; the draft is kept on the row.
func (e *Engine) ComposeAttempt(ctx context.Context, attemptID string) error {
	att, err := e.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if att.State != model.StatePending {
		return nil
	}
	if !att.Treatment.Personalized() {
		return &StageError{Stage: "compose", AttendeeID: att.AttendeeID, CompanyID: att.CompanyID,
			Err: eris.Errorf("treatment %s is not composable", att.Treatment)}
	}

	attendee, err := e.store.GetAttendee(ctx, att.AttendeeID)
	if err != nil {
		return err
	}
	company, err := e.research.Company(ctx, att.CompanyID)
	if err != nil {
		return err
	}
	contacted, err := e.contactedCount(ctx, att.CompanyID, att.Wave)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	breaker := e.breakers.Get("compose")
	msg, composeErr := resilience.ExecuteVal(ctx, breaker, func(ctx context.Context) (*model.GeneratedMessage, error) {
		return e.composer.Compose(ctx, *attendee, *company, att.Treatment, contacted)
	})
	if composeErr != nil {
		att.Message = msg
		att.SendError = composeErr.Error()
		if err := lifecycle.Transition(att, model.StateFailed, now); err != nil {
			return err
		}
		if err := e.store.UpdateAttempt(ctx, *att); err != nil {
			return err
		}
		return &StageError{Stage: "compose", AttendeeID: att.AttendeeID, CompanyID: att.CompanyID, Err: composeErr}
	}

	att.Message = msg
	if err := lifecycle.Transition(att, model.StateGenerated, now); err != nil {
		return err
	}
	return e.store.UpdateAttempt(ctx, *att)
}

// ComposeWave composes every pending personalized attempt in a wave.
func (e *Engine) ComposeWave(ctx context.Context, wave string) (int, error) {
	attempts, err := e.store.ListAttempts(ctx, store.AttemptFilter{Wave: wave, State: model.StatePending, Limit: 10000})
	if err != nil {
		return 0, err
	}

	var (
		mu       sync.Mutex
		composed int
		errs     []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for _, att := range attempts {
		if !att.Treatment.Personalized() {
			continue
		}
		g.Go(func() error {
			err := e.ComposeAttempt(gctx, att.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
			} else {
				composed++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return composed, err
	}
	return composed, errors.Join(errs...)
}

// SendAttempt delivers one generated attempt. The company budget slot is
// consumed before the send; a failed send keeps its slot so the cap can
// never be exceeded, and the attempt stays re-sendable.
func (e *Engine) SendAttempt(ctx context.Context, attemptID string) error {
	att, err := e.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	switch att.State {
	case model.StateGenerated:
	case model.StateSent, model.StateAwaitingReply:
		return nil
	default:
		return &StageError{Stage: "send", AttendeeID: att.AttendeeID, CompanyID: att.CompanyID,
			Err: eris.Errorf("attempt in state %s is not sendable", att.State)}
	}
	if att.Message == nil || att.Message.Validation != model.ValidationPassed {
		return &StageError{Stage: "send", AttendeeID: att.AttendeeID, CompanyID: att.CompanyID,
			Err: eris.New("attempt has no validated message")}
	}

	attendee, err := e.store.GetAttendee(ctx, att.AttendeeID)
	if err != nil {
		return err
	}

	// A retry after a failed send already holds its slot.
	if att.SendError == "" {
		ok, err := e.store.ConsumeBudget(ctx, att.CompanyID, att.Wave)
		if err != nil {
			return err
		}
		if !ok {
			return &StageError{Stage: "send", AttendeeID: att.AttendeeID, CompanyID: att.CompanyID,
				Err: eris.New("company budget exhausted")}
		}
	}

	now := time.Now().UTC()
	breaker := e.breakers.Get("delivery")
	deliveryID, sendErr := resilience.ExecuteVal(ctx, breaker, func(ctx context.Context) (string, error) {
		return resilience.DoVal(ctx, e.cfg.SendRetry, func(ctx context.Context) (string, error) {
			return e.deliverer.Send(ctx, delivery.Message{
				To:      attendee.Email,
				ToName:  attendee.FullName(),
				Subject: att.Message.Subject,
				Body:    att.Message.Body,
				Wave:    att.Wave,
				Rep:     attendee.Rep,
			})
		})
	})
	if sendErr != nil {
		lifecycle.MarkSendFailed(att, sendErr, now)
		if err := e.store.UpdateAttempt(ctx, *att); err != nil {
			return err
		}
		return &StageError{Stage: "send", AttendeeID: att.AttendeeID, CompanyID: att.CompanyID, Err: sendErr}
	}

	if err := lifecycle.MarkSent(att, deliveryID, e.cfg.FollowUpDelay, now); err != nil {
		return err
	}
	return e.store.UpdateAttempt(ctx, *att)
}

// SendWave delivers every generated attempt in a wave.
func (e *Engine) SendWave(ctx context.Context, wave string) (int, error) {
	attempts, err := e.store.ListAttempts(ctx, store.AttemptFilter{Wave: wave, State: model.StateGenerated, Limit: 10000})
	if err != nil {
		return 0, err
	}

	sent := 0
	var errs []error
	for _, att := range attempts {
		if err := e.SendAttempt(ctx, att.ID); err != nil {
			zap.L().Error("engine: send failed",
				zap.String("attempt", att.ID), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// ApplySignal records a reply or claim for an attendee's attempt in a wave.
// Signals for attendees with no attempt are logged and dropped.
func (e *Engine) ApplySignal(ctx context.Context, attendeeID, wave string, sig model.Signal, at time.Time) error {
	att, err := e.store.GetAttemptByAttendee(ctx, attendeeID, wave)
	if err != nil {
		return err
	}
	if att == nil {
		zap.L().Warn("engine: signal for unknown attempt",
			zap.String("attendee", attendeeID), zap.String("wave", wave), zap.String("signal", string(sig)))
		return nil
	}

	before := att.State
	if err := lifecycle.ApplySignal(att, sig, at); err != nil {
		return err
	}
	if att.State == before {
		return nil
	}
	return e.store.UpdateAttempt(ctx, *att)
}

// SweepFollowUps sends the fixed follow-up to every attempt whose reply
// window has lapsed. An attempt gets at most one follow-up; a failed send
// leaves the attempt due for the next sweep. Returns the number sent.
func (e *Engine) SweepFollowUps(ctx context.Context, asOf time.Time) (int, error) {
	due, err := e.store.DueForFollowUp(ctx, asOf)
	if err != nil {
		return 0, err
	}

	sent := 0
	var errs []error
	for _, att := range due {
		ok, err := e.sendFollowUp(ctx, att, asOf)
		if err != nil {
			zap.L().Error("engine: follow-up failed",
				zap.String("attempt", att.ID), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if ok {
			sent++
		}
	}
	return sent, errors.Join(errs...)
}

func (e *Engine) sendFollowUp(ctx context.Context, att model.OutreachAttempt, now time.Time) (bool, error) {
	attendee, err := e.store.GetAttendee(ctx, att.AttendeeID)
	if err != nil {
		return false, err
	}
	company, err := e.research.Company(ctx, att.CompanyID)
	if err != nil {
		return false, err
	}

	msg, err := compose.FollowUp(*attendee, *company)
	if err != nil {
		return false, err
	}

	// The follow_up_sent state is persisted before the delivery call. An
	// overlapping sweep that re-selects this attempt loses the claim and
	// skips it, so at most one follow-up ever goes out.
	claimed, err := e.store.ClaimFollowUp(ctx, att.ID, now)
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}

	deliveryID, err := resilience.DoVal(ctx, e.cfg.SendRetry, func(ctx context.Context) (string, error) {
		return e.deliverer.Send(ctx, delivery.Message{
			To:      attendee.Email,
			ToName:  attendee.FullName(),
			Subject: msg.Subject,
			Body:    msg.Body,
			Wave:    att.Wave,
			Rep:     attendee.Rep,
		})
	})
	if err != nil {
		// Release the claim so the next sweep retries the send.
		att.State = model.StateFollowUpDue
		att.FollowUpSentAt = nil
		if uerr := e.store.UpdateAttempt(ctx, att); uerr != nil {
			return false, errors.Join(err, uerr)
		}
		return false, &StageError{Stage: "follow_up", AttendeeID: att.AttendeeID, CompanyID: att.CompanyID, Err: err}
	}

	t := now
	att.State = model.StateFollowUpSent
	att.FollowUpSentAt = &t
	att.DeliveryID = deliveryID
	return true, e.store.UpdateAttempt(ctx, att)
}

// contactedCount is how many attendees at a company will actually be
// contacted this wave, which decides whether messages carry the
// multiple-contacts disclosure. Suppressed attempts hold a row but no
// message, so only non-suppressed attempts count.
func (e *Engine) contactedCount(ctx context.Context, companyID, wave string) (int, error) {
	attempts, err := e.store.ListAttempts(ctx, store.AttemptFilter{CompanyID: companyID, Wave: wave, Limit: 10000})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range attempts {
		if a.Treatment != model.TreatmentSuppressed {
			n++
		}
	}
	if n == 0 {
		n = 1
	}
	return n, nil
}
