// Package store persists companies, attendees, per-company budgets, and
// outreach attempts. Two backends are provided: SQLite for local runs and
// Postgres for the shared deployment.
package store

import (
	"context"
	"time"

	"github.com/sells-group/outreach-cli/internal/model"
)

// AttemptFilter specifies criteria for listing outreach attempts.
type AttemptFilter struct {
	Wave      string             `json:"wave,omitempty"`
	CompanyID string             `json:"company_id,omitempty"`
	State     model.AttemptState `json:"state,omitempty"`
	Limit     int                `json:"limit,omitempty"`
	Offset    int                `json:"offset,omitempty"`
}

// Store defines the persistence interface for the outreach engine.
type Store interface {
	// Roster
	UpsertCompany(ctx context.Context, co model.Company) error
	GetCompany(ctx context.Context, id string) (*model.Company, error)
	ListCompanies(ctx context.Context) ([]model.Company, error)
	UpsertAttendee(ctx context.Context, att model.Attendee) error
	GetAttendee(ctx context.Context, id string) (*model.Attendee, error)
	ListAttendees(ctx context.Context) ([]model.Attendee, error)
	ListCompanyAttendees(ctx context.Context, companyID string) ([]model.Attendee, error)

	// Budgets. SaveBudget inserts only if no budget exists for the
	// (company, wave) pair; an existing ranking is never recomputed.
	// ConsumeBudget atomically takes one send slot and reports whether a
	// slot was available.
	SaveBudget(ctx context.Context, b model.CompanyBudget) error
	GetBudget(ctx context.Context, companyID, wave string) (*model.CompanyBudget, error)
	ConsumeBudget(ctx context.Context, companyID, wave string) (bool, error)
	ListBudgetUsage(ctx context.Context, wave string) ([]model.BudgetUsage, error)

	// Attempts. One row per (attendee, wave); rows are never deleted.
	CreateAttempt(ctx context.Context, att model.OutreachAttempt) error
	GetAttempt(ctx context.Context, id string) (*model.OutreachAttempt, error)
	GetAttemptByAttendee(ctx context.Context, attendeeID, wave string) (*model.OutreachAttempt, error)
	UpdateAttempt(ctx context.Context, att model.OutreachAttempt) error
	ListAttempts(ctx context.Context, filter AttemptFilter) ([]model.OutreachAttempt, error)
	DueForFollowUp(ctx context.Context, asOf time.Time) ([]model.OutreachAttempt, error)
	// ClaimFollowUp atomically marks a due attempt follow_up_sent and
	// reports whether this caller won the row. Overlapping sweeps race
	// here; exactly one claims each attempt.
	ClaimFollowUp(ctx context.Context, attemptID string, at time.Time) (bool, error)
	PendingReview(ctx context.Context, wave string) ([]model.OutreachAttempt, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
