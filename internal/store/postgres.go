package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. Tests substitute a
// pgxmock pool.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"get_budget":     `SELECT company_id, wave, ranking, cap, consumed FROM company_budgets WHERE company_id = $1 AND wave = $2`,
	"consume_budget": `UPDATE company_budgets SET consumed = consumed + 1 WHERE company_id = $1 AND wave = $2 AND consumed < cap`,
	"get_attempt":    `SELECT ` + pgAttemptColumns + ` FROM outreach_attempts WHERE id = $1`,
	"update_attempt": pgUpdateAttempt,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	website          TEXT NOT NULL DEFAULT '',
	primary_industry TEXT NOT NULL DEFAULT '',
	num_locations    INTEGER NOT NULL DEFAULT 0,
	employees        INTEGER NOT NULL DEFAULT 0,
	revenue          TEXT NOT NULL DEFAULT '',
	overview         TEXT NOT NULL DEFAULT '',
	dc_count         INTEGER NOT NULL DEFAULT 0,
	dc_source        TEXT NOT NULL DEFAULT '',
	truck_count      INTEGER NOT NULL DEFAULT 0,
	truck_source     TEXT NOT NULL DEFAULT '',
	bullets          JSONB NOT NULL DEFAULT '[]',
	hook             TEXT NOT NULL DEFAULT '',
	gate_fit_score   INTEGER NOT NULL DEFAULT 0,
	truck_fit_score  INTEGER NOT NULL DEFAULT 0,
	combined_score   INTEGER NOT NULL DEFAULT 0,
	category         TEXT NOT NULL DEFAULT 'other',
	researched_at    TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS attendees (
	id               TEXT PRIMARY KEY,
	first_name       TEXT NOT NULL,
	last_name        TEXT NOT NULL DEFAULT '',
	company_id       TEXT NOT NULL REFERENCES companies(id),
	job_title        TEXT NOT NULL DEFAULT '',
	job_function     TEXT NOT NULL DEFAULT '',
	management_level TEXT NOT NULL DEFAULT '',
	ticket_type      TEXT NOT NULL DEFAULT 'unknown',
	email            TEXT NOT NULL DEFAULT '',
	linkedin_url     TEXT NOT NULL DEFAULT '',
	rep              TEXT NOT NULL DEFAULT '',
	gate_fit_score   INTEGER NOT NULL DEFAULT 0,
	truck_fit_score  INTEGER NOT NULL DEFAULT 0,
	combined_score   INTEGER NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS company_budgets (
	company_id TEXT NOT NULL,
	wave       TEXT NOT NULL,
	ranking    JSONB NOT NULL,
	cap        INTEGER NOT NULL,
	consumed   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (company_id, wave)
);

CREATE TABLE IF NOT EXISTS outreach_attempts (
	id                TEXT PRIMARY KEY,
	attendee_id       TEXT NOT NULL REFERENCES attendees(id),
	company_id        TEXT NOT NULL,
	wave              TEXT NOT NULL,
	treatment         TEXT NOT NULL,
	suppress_reason   TEXT NOT NULL DEFAULT '',
	rank              INTEGER NOT NULL DEFAULT 0,
	state             TEXT NOT NULL DEFAULT 'pending',
	message           JSONB,
	send_error        TEXT NOT NULL DEFAULT '',
	delivery_id       TEXT NOT NULL DEFAULT '',
	sent_at           TIMESTAMPTZ,
	signal            TEXT NOT NULL DEFAULT '',
	signal_at         TIMESTAMPTZ,
	follow_up_due_at  TIMESTAMPTZ,
	follow_up_sent_at TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (attendee_id, wave)
);

CREATE INDEX IF NOT EXISTS idx_attendees_company ON attendees(company_id);
CREATE INDEX IF NOT EXISTS idx_attempts_wave ON outreach_attempts(wave);
CREATE INDEX IF NOT EXISTS idx_attempts_company ON outreach_attempts(company_id, wave);
CREATE INDEX IF NOT EXISTS idx_attempts_state ON outreach_attempts(state);
CREATE INDEX IF NOT EXISTS idx_attempts_follow_up ON outreach_attempts(follow_up_due_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const pgCompanyColumns = `id, name, website, primary_industry, num_locations, employees, revenue,
	overview, dc_count, dc_source, truck_count, truck_source, bullets, hook,
	gate_fit_score, truck_fit_score, combined_score, category, researched_at, created_at`

func (s *PostgresStore) UpsertCompany(ctx context.Context, co model.Company) error {
	bullets, err := json.Marshal(co.Bullets)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal bullets")
	}
	if co.CreatedAt.IsZero() {
		co.CreatedAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO companies (`+pgCompanyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, website = excluded.website,
			primary_industry = excluded.primary_industry,
			num_locations = excluded.num_locations, employees = excluded.employees,
			revenue = excluded.revenue, overview = excluded.overview,
			dc_count = excluded.dc_count, dc_source = excluded.dc_source,
			truck_count = excluded.truck_count, truck_source = excluded.truck_source,
			bullets = excluded.bullets, hook = excluded.hook,
			gate_fit_score = excluded.gate_fit_score,
			truck_fit_score = excluded.truck_fit_score,
			combined_score = excluded.combined_score, category = excluded.category,
			researched_at = excluded.researched_at`,
		co.ID, co.Name, co.Website, co.PrimaryIndustry, co.NumLocations, co.Employees,
		co.Revenue, co.Overview, co.DCCount, co.DCSource, co.TruckCount, co.TruckSource,
		bullets, co.Hook, co.GateFitScore, co.TruckFitScore, co.CombinedScore,
		string(co.Category), nullTime(co.ResearchedAt), co.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert company %s", co.ID)
}

func (s *PostgresStore) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgCompanyColumns+` FROM companies WHERE id = $1`, id)
	co, err := scanCompany(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: company not found: %s", id)
	}
	return co, err
}

func (s *PostgresStore) ListCompanies(ctx context.Context) ([]model.Company, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgCompanyColumns+` FROM companies ORDER BY combined_score DESC, dc_count DESC, id ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list companies")
	}
	defer rows.Close()

	var out []model.Company
	for rows.Next() {
		co, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *co)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list companies iterate")
}

const pgAttendeeColumns = `id, first_name, last_name, company_id, job_title, job_function,
	management_level, ticket_type, email, linkedin_url, rep,
	gate_fit_score, truck_fit_score, combined_score, created_at`

func (s *PostgresStore) UpsertAttendee(ctx context.Context, att model.Attendee) error {
	if att.CreatedAt.IsZero() {
		att.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO attendees (`+pgAttendeeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			first_name = excluded.first_name, last_name = excluded.last_name,
			company_id = excluded.company_id, job_title = excluded.job_title,
			job_function = excluded.job_function,
			management_level = excluded.management_level,
			ticket_type = excluded.ticket_type, email = excluded.email,
			linkedin_url = excluded.linkedin_url, rep = excluded.rep,
			gate_fit_score = excluded.gate_fit_score,
			truck_fit_score = excluded.truck_fit_score,
			combined_score = excluded.combined_score`,
		att.ID, att.FirstName, att.LastName, att.CompanyID, att.JobTitle, att.JobFunction,
		att.ManagementLevel, string(att.TicketType), att.Email, att.LinkedInURL, att.Rep,
		att.GateFitScore, att.TruckFitScore, att.CombinedScore, att.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert attendee %s", att.ID)
}

func (s *PostgresStore) GetAttendee(ctx context.Context, id string) (*model.Attendee, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgAttendeeColumns+` FROM attendees WHERE id = $1`, id)
	a, err := scanAttendee(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: attendee not found: %s", id)
	}
	return a, err
}

func (s *PostgresStore) ListAttendees(ctx context.Context) ([]model.Attendee, error) {
	return s.queryAttendees(ctx,
		`SELECT `+pgAttendeeColumns+` FROM attendees ORDER BY company_id, id`)
}

func (s *PostgresStore) ListCompanyAttendees(ctx context.Context, companyID string) ([]model.Attendee, error) {
	return s.queryAttendees(ctx,
		`SELECT `+pgAttendeeColumns+` FROM attendees WHERE company_id = $1 ORDER BY id`, companyID)
}

func (s *PostgresStore) queryAttendees(ctx context.Context, query string, args ...any) ([]model.Attendee, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query attendees")
	}
	defer rows.Close()

	var out []model.Attendee
	for rows.Next() {
		a, err := scanAttendee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: attendees iterate")
}

func (s *PostgresStore) SaveBudget(ctx context.Context, b model.CompanyBudget) error {
	ranking, err := json.Marshal(b.Ranking)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal ranking")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO company_budgets (company_id, wave, ranking, cap, consumed)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (company_id, wave) DO NOTHING`,
		b.CompanyID, b.Wave, ranking, b.Cap, b.Consumed,
	)
	return eris.Wrapf(err, "postgres: save budget %s/%s", b.CompanyID, b.Wave)
}

func (s *PostgresStore) GetBudget(ctx context.Context, companyID, wave string) (*model.CompanyBudget, error) {
	var b model.CompanyBudget
	var ranking []byte
	err := s.pool.QueryRow(ctx,
		`SELECT company_id, wave, ranking, cap, consumed FROM company_budgets
		 WHERE company_id = $1 AND wave = $2`, companyID, wave,
	).Scan(&b.CompanyID, &b.Wave, &ranking, &b.Cap, &b.Consumed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get budget %s/%s", companyID, wave)
	}
	if err := json.Unmarshal(ranking, &b.Ranking); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal ranking")
	}
	return &b, nil
}

func (s *PostgresStore) ConsumeBudget(ctx context.Context, companyID, wave string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE company_budgets SET consumed = consumed + 1
		WHERE company_id = $1 AND wave = $2 AND consumed < cap`,
		companyID, wave,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: consume budget %s/%s", companyID, wave)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListBudgetUsage(ctx context.Context, wave string) ([]model.BudgetUsage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT company_id, wave, cap, consumed FROM company_budgets
		 WHERE wave = $1 ORDER BY company_id`, wave)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list budget usage")
	}
	defer rows.Close()

	var out []model.BudgetUsage
	for rows.Next() {
		var u model.BudgetUsage
		if err := rows.Scan(&u.CompanyID, &u.Wave, &u.Cap, &u.Consumed); err != nil {
			return nil, eris.Wrap(err, "postgres: scan budget usage")
		}
		out = append(out, u)
	}
	return out, eris.Wrap(rows.Err(), "postgres: budget usage iterate")
}

const pgAttemptColumns = `id, attendee_id, company_id, wave, treatment, suppress_reason, rank,
	state, message, send_error, delivery_id, sent_at, signal, signal_at,
	follow_up_due_at, follow_up_sent_at, created_at, updated_at`

const pgUpdateAttempt = `
	UPDATE outreach_attempts SET
		treatment = $1, suppress_reason = $2, rank = $3, state = $4, message = $5,
		send_error = $6, delivery_id = $7, sent_at = $8, signal = $9, signal_at = $10,
		follow_up_due_at = $11, follow_up_sent_at = $12, updated_at = $13
	WHERE id = $14`

func (s *PostgresStore) CreateAttempt(ctx context.Context, att model.OutreachAttempt) error {
	msg, err := marshalMessage(att.Message)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if att.CreatedAt.IsZero() {
		att.CreatedAt = now
	}
	if att.UpdatedAt.IsZero() {
		att.UpdatedAt = now
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO outreach_attempts (`+pgAttemptColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		att.ID, att.AttendeeID, att.CompanyID, att.Wave, string(att.Treatment),
		string(att.SuppressReason), att.Rank, string(att.State), msg, att.SendError,
		att.DeliveryID, att.SentAt, string(att.Signal), att.SignalAt,
		att.FollowUpDueAt, att.FollowUpSentAt, att.CreatedAt, att.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert attempt %s", att.ID)
}

func (s *PostgresStore) GetAttempt(ctx context.Context, id string) (*model.OutreachAttempt, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgAttemptColumns+` FROM outreach_attempts WHERE id = $1`, id)
	att, err := scanAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: attempt not found: %s", id)
	}
	return att, err
}

func (s *PostgresStore) GetAttemptByAttendee(ctx context.Context, attendeeID, wave string) (*model.OutreachAttempt, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgAttemptColumns+` FROM outreach_attempts WHERE attendee_id = $1 AND wave = $2`,
		attendeeID, wave)
	att, err := scanAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return att, err
}

func (s *PostgresStore) UpdateAttempt(ctx context.Context, att model.OutreachAttempt) error {
	msg, err := marshalMessage(att.Message)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, pgUpdateAttempt,
		string(att.Treatment), string(att.SuppressReason), att.Rank, string(att.State),
		msg, att.SendError, att.DeliveryID, att.SentAt, string(att.Signal), att.SignalAt,
		att.FollowUpDueAt, att.FollowUpSentAt, time.Now().UTC(), att.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update attempt %s", att.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("attempt not found: %s", att.ID)
	}
	return nil
}

func (s *PostgresStore) ListAttempts(ctx context.Context, filter AttemptFilter) ([]model.OutreachAttempt, error) {
	query := `SELECT ` + pgAttemptColumns + ` FROM outreach_attempts WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Wave != "" {
		query += fmt.Sprintf(` AND wave = $%d`, argIdx)
		args = append(args, filter.Wave)
		argIdx++
	}
	if filter.CompanyID != "" {
		query += fmt.Sprintf(` AND company_id = $%d`, argIdx)
		args = append(args, filter.CompanyID)
		argIdx++
	}
	if filter.State != "" {
		query += fmt.Sprintf(` AND state = $%d`, argIdx)
		args = append(args, string(filter.State))
		argIdx++
	}
	query += ` ORDER BY created_at DESC, id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	return s.queryAttempts(ctx, query, args...)
}

func (s *PostgresStore) DueForFollowUp(ctx context.Context, asOf time.Time) ([]model.OutreachAttempt, error) {
	return s.queryAttempts(ctx, `
		SELECT `+pgAttemptColumns+` FROM outreach_attempts
		WHERE (state = 'awaiting_reply' AND follow_up_due_at IS NOT NULL AND follow_up_due_at <= $1)
		   OR state = 'follow_up_due'
		ORDER BY follow_up_due_at`, asOf)
}

func (s *PostgresStore) ClaimFollowUp(ctx context.Context, attemptID string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE outreach_attempts SET state = 'follow_up_sent', follow_up_sent_at = $1, updated_at = $1
		WHERE id = $2 AND state IN ('awaiting_reply', 'follow_up_due')`,
		at, attemptID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: claim follow-up %s", attemptID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) PendingReview(ctx context.Context, wave string) ([]model.OutreachAttempt, error) {
	return s.queryAttempts(ctx, `
		SELECT `+pgAttemptColumns+` FROM outreach_attempts
		WHERE wave = $1 AND (state = 'failed' OR suppress_reason = 'ambiguous_role')
		ORDER BY company_id, id`, wave)
}

func (s *PostgresStore) queryAttempts(ctx context.Context, query string, args ...any) ([]model.OutreachAttempt, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query attempts")
	}
	defer rows.Close()

	var out []model.OutreachAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: attempts iterate")
}
