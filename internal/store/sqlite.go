package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/outreach-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
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
	bullets          TEXT NOT NULL DEFAULT '[]',
	hook             TEXT NOT NULL DEFAULT '',
	gate_fit_score   INTEGER NOT NULL DEFAULT 0,
	truck_fit_score  INTEGER NOT NULL DEFAULT 0,
	combined_score   INTEGER NOT NULL DEFAULT 0,
	category         TEXT NOT NULL DEFAULT 'other',
	researched_at    DATETIME,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
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
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS company_budgets (
	company_id TEXT NOT NULL,
	wave       TEXT NOT NULL,
	ranking    TEXT NOT NULL,
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
	message           TEXT,
	send_error        TEXT NOT NULL DEFAULT '',
	delivery_id       TEXT NOT NULL DEFAULT '',
	sent_at           DATETIME,
	signal            TEXT NOT NULL DEFAULT '',
	signal_at         DATETIME,
	follow_up_due_at  DATETIME,
	follow_up_sent_at DATETIME,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (attendee_id, wave)
);

CREATE INDEX IF NOT EXISTS idx_attendees_company ON attendees(company_id);
CREATE INDEX IF NOT EXISTS idx_attempts_wave ON outreach_attempts(wave);
CREATE INDEX IF NOT EXISTS idx_attempts_company ON outreach_attempts(company_id, wave);
CREATE INDEX IF NOT EXISTS idx_attempts_state ON outreach_attempts(state);
CREATE INDEX IF NOT EXISTS idx_attempts_follow_up ON outreach_attempts(follow_up_due_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const companyColumns = `id, name, website, primary_industry, num_locations, employees, revenue,
	overview, dc_count, dc_source, truck_count, truck_source, bullets, hook,
	gate_fit_score, truck_fit_score, combined_score, category, researched_at, created_at`

func (s *SQLiteStore) UpsertCompany(ctx context.Context, co model.Company) error {
	bullets, err := json.Marshal(co.Bullets)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal bullets")
	}
	if co.CreatedAt.IsZero() {
		co.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO companies (`+companyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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
		string(bullets), co.Hook, co.GateFitScore, co.TruckFitScore, co.CombinedScore,
		string(co.Category), nullTime(co.ResearchedAt), co.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert company %s", co.ID)
}

func (s *SQLiteStore) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE id = ?`, id)
	co, err := scanCompany(row)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("sqlite: company not found: %s", id)
	}
	return co, err
}

func (s *SQLiteStore) ListCompanies(ctx context.Context) ([]model.Company, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+companyColumns+` FROM companies ORDER BY combined_score DESC, dc_count DESC, id ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list companies")
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
	return out, eris.Wrap(rows.Err(), "sqlite: list companies iterate")
}

const attendeeColumns = `id, first_name, last_name, company_id, job_title, job_function,
	management_level, ticket_type, email, linkedin_url, rep,
	gate_fit_score, truck_fit_score, combined_score, created_at`

func (s *SQLiteStore) UpsertAttendee(ctx context.Context, att model.Attendee) error {
	if att.CreatedAt.IsZero() {
		att.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attendees (`+attendeeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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
	return eris.Wrapf(err, "sqlite: upsert attendee %s", att.ID)
}

func (s *SQLiteStore) GetAttendee(ctx context.Context, id string) (*model.Attendee, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+attendeeColumns+` FROM attendees WHERE id = ?`, id)
	a, err := scanAttendee(row)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("sqlite: attendee not found: %s", id)
	}
	return a, err
}

func (s *SQLiteStore) ListAttendees(ctx context.Context) ([]model.Attendee, error) {
	return s.queryAttendees(ctx,
		`SELECT `+attendeeColumns+` FROM attendees ORDER BY company_id, id`)
}

func (s *SQLiteStore) ListCompanyAttendees(ctx context.Context, companyID string) ([]model.Attendee, error) {
	return s.queryAttendees(ctx,
		`SELECT `+attendeeColumns+` FROM attendees WHERE company_id = ? ORDER BY id`, companyID)
}

func (s *SQLiteStore) queryAttendees(ctx context.Context, query string, args ...any) ([]model.Attendee, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query attendees")
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
	return out, eris.Wrap(rows.Err(), "sqlite: attendees iterate")
}

func (s *SQLiteStore) SaveBudget(ctx context.Context, b model.CompanyBudget) error {
	ranking, err := json.Marshal(b.Ranking)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal ranking")
	}
	// Existing rankings stay fixed for the wave, so conflicts are no-ops.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO company_budgets (company_id, wave, ranking, cap, consumed)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (company_id, wave) DO NOTHING`,
		b.CompanyID, b.Wave, string(ranking), b.Cap, b.Consumed,
	)
	return eris.Wrapf(err, "sqlite: save budget %s/%s", b.CompanyID, b.Wave)
}

func (s *SQLiteStore) GetBudget(ctx context.Context, companyID, wave string) (*model.CompanyBudget, error) {
	var b model.CompanyBudget
	var ranking string
	err := s.db.QueryRowContext(ctx,
		`SELECT company_id, wave, ranking, cap, consumed FROM company_budgets
		 WHERE company_id = ? AND wave = ?`, companyID, wave,
	).Scan(&b.CompanyID, &b.Wave, &ranking, &b.Cap, &b.Consumed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get budget %s/%s", companyID, wave)
	}
	if err := json.Unmarshal([]byte(ranking), &b.Ranking); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal ranking")
	}
	return &b, nil
}

func (s *SQLiteStore) ConsumeBudget(ctx context.Context, companyID, wave string) (bool, error) {
	// Guarded increment: concurrent consumers can never push consumed past cap.
	res, err := s.db.ExecContext(ctx, `
		UPDATE company_budgets SET consumed = consumed + 1
		WHERE company_id = ? AND wave = ? AND consumed < cap`,
		companyID, wave,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: consume budget %s/%s", companyID, wave)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListBudgetUsage(ctx context.Context, wave string) ([]model.BudgetUsage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT company_id, wave, cap, consumed FROM company_budgets
		 WHERE wave = ? ORDER BY company_id`, wave)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list budget usage")
	}
	defer rows.Close()

	var out []model.BudgetUsage
	for rows.Next() {
		var u model.BudgetUsage
		if err := rows.Scan(&u.CompanyID, &u.Wave, &u.Cap, &u.Consumed); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan budget usage")
		}
		out = append(out, u)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: budget usage iterate")
}

const attemptColumns = `id, attendee_id, company_id, wave, treatment, suppress_reason, rank,
	state, message, send_error, delivery_id, sent_at, signal, signal_at,
	follow_up_due_at, follow_up_sent_at, created_at, updated_at`

func (s *SQLiteStore) CreateAttempt(ctx context.Context, att model.OutreachAttempt) error {
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
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO outreach_attempts (`+attemptColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		att.ID, att.AttendeeID, att.CompanyID, att.Wave, string(att.Treatment),
		string(att.SuppressReason), att.Rank, string(att.State), msg, att.SendError,
		att.DeliveryID, att.SentAt, string(att.Signal), att.SignalAt,
		att.FollowUpDueAt, att.FollowUpSentAt, att.CreatedAt, att.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert attempt %s", att.ID)
}

func (s *SQLiteStore) GetAttempt(ctx context.Context, id string) (*model.OutreachAttempt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM outreach_attempts WHERE id = ?`, id)
	att, err := scanAttempt(row)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("sqlite: attempt not found: %s", id)
	}
	return att, err
}

func (s *SQLiteStore) GetAttemptByAttendee(ctx context.Context, attendeeID, wave string) (*model.OutreachAttempt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM outreach_attempts WHERE attendee_id = ? AND wave = ?`,
		attendeeID, wave)
	att, err := scanAttempt(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return att, err
}

func (s *SQLiteStore) UpdateAttempt(ctx context.Context, att model.OutreachAttempt) error {
	msg, err := marshalMessage(att.Message)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE outreach_attempts SET
			treatment = ?, suppress_reason = ?, rank = ?, state = ?, message = ?,
			send_error = ?, delivery_id = ?, sent_at = ?, signal = ?, signal_at = ?,
			follow_up_due_at = ?, follow_up_sent_at = ?, updated_at = ?
		WHERE id = ?`,
		string(att.Treatment), string(att.SuppressReason), att.Rank, string(att.State),
		msg, att.SendError, att.DeliveryID, att.SentAt, string(att.Signal), att.SignalAt,
		att.FollowUpDueAt, att.FollowUpSentAt, time.Now().UTC(), att.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update attempt %s", att.ID)
	}
	return checkRowsAffected(res, "attempt", att.ID)
}

func (s *SQLiteStore) ListAttempts(ctx context.Context, filter AttemptFilter) ([]model.OutreachAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM outreach_attempts WHERE 1=1`
	var args []any

	if filter.Wave != "" {
		query += ` AND wave = ?`
		args = append(args, filter.Wave)
	}
	if filter.CompanyID != "" {
		query += ` AND company_id = ?`
		args = append(args, filter.CompanyID)
	}
	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, string(filter.State))
	}
	query += ` ORDER BY created_at DESC, id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	return s.queryAttempts(ctx, query, args...)
}

func (s *SQLiteStore) DueForFollowUp(ctx context.Context, asOf time.Time) ([]model.OutreachAttempt, error) {
	return s.queryAttempts(ctx, `
		SELECT `+attemptColumns+` FROM outreach_attempts
		WHERE (state = 'awaiting_reply' AND follow_up_due_at IS NOT NULL AND follow_up_due_at <= ?)
		   OR state = 'follow_up_due'
		ORDER BY follow_up_due_at`, asOf)
}

func (s *SQLiteStore) ClaimFollowUp(ctx context.Context, attemptID string, at time.Time) (bool, error) {
	// Guarded transition: only one of several overlapping sweeps can move
	// the row out of a due state.
	res, err := s.db.ExecContext(ctx, `
		UPDATE outreach_attempts SET state = 'follow_up_sent', follow_up_sent_at = ?, updated_at = ?
		WHERE id = ? AND state IN ('awaiting_reply', 'follow_up_due')`,
		at, at, attemptID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: claim follow-up %s", attemptID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) PendingReview(ctx context.Context, wave string) ([]model.OutreachAttempt, error) {
	return s.queryAttempts(ctx, `
		SELECT `+attemptColumns+` FROM outreach_attempts
		WHERE wave = ? AND (state = 'failed' OR suppress_reason = 'ambiguous_role')
		ORDER BY company_id, id`, wave)
}

func (s *SQLiteStore) queryAttempts(ctx context.Context, query string, args ...any) ([]model.OutreachAttempt, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query attempts")
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
	return out, eris.Wrap(rows.Err(), "sqlite: attempts iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func marshalMessage(m *model.GeneratedMessage) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, eris.Wrap(err, "marshal message")
	}
	return string(b), nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCompany(row scannable) (*model.Company, error) {
	var co model.Company
	var bullets, category string
	var researchedAt sql.NullTime

	err := row.Scan(&co.ID, &co.Name, &co.Website, &co.PrimaryIndustry, &co.NumLocations,
		&co.Employees, &co.Revenue, &co.Overview, &co.DCCount, &co.DCSource,
		&co.TruckCount, &co.TruckSource, &bullets, &co.Hook,
		&co.GateFitScore, &co.TruckFitScore, &co.CombinedScore, &category,
		&researchedAt, &co.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(bullets), &co.Bullets); err != nil {
		return nil, eris.Wrap(err, "unmarshal bullets")
	}
	co.Category = model.Category(category)
	if researchedAt.Valid {
		co.ResearchedAt = researchedAt.Time
	}
	return &co, nil
}

func scanAttendee(row scannable) (*model.Attendee, error) {
	var a model.Attendee
	var ticket string
	err := row.Scan(&a.ID, &a.FirstName, &a.LastName, &a.CompanyID, &a.JobTitle,
		&a.JobFunction, &a.ManagementLevel, &ticket, &a.Email, &a.LinkedInURL, &a.Rep,
		&a.GateFitScore, &a.TruckFitScore, &a.CombinedScore, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.TicketType = model.TicketType(ticket)
	return &a, nil
}

func scanAttempt(row scannable) (*model.OutreachAttempt, error) {
	var a model.OutreachAttempt
	var treatment, reason, state, signal string
	var msg sql.NullString
	var sentAt, signalAt, dueAt, fupSentAt sql.NullTime

	err := row.Scan(&a.ID, &a.AttendeeID, &a.CompanyID, &a.Wave, &treatment, &reason,
		&a.Rank, &state, &msg, &a.SendError, &a.DeliveryID, &sentAt, &signal, &signalAt,
		&dueAt, &fupSentAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	a.Treatment = model.Treatment(treatment)
	a.SuppressReason = model.SuppressReason(reason)
	a.State = model.AttemptState(state)
	a.Signal = model.Signal(signal)

	if msg.Valid && msg.String != "" {
		a.Message = &model.GeneratedMessage{}
		if err := json.Unmarshal([]byte(msg.String), a.Message); err != nil {
			return nil, eris.Wrap(err, "unmarshal message")
		}
	}
	if sentAt.Valid {
		a.SentAt = &sentAt.Time
	}
	if signalAt.Valid {
		a.SignalAt = &signalAt.Time
	}
	if dueAt.Valid {
		a.FollowUpDueAt = &dueAt.Time
	}
	if fupSentAt.Valid {
		a.FollowUpSentAt = &fupSentAt.Time
	}
	return &a, nil
}
