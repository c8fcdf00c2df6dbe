package residents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const residentColumns = `id, facility_id, name, status, call_consent, phone_number,
	target_calls_per_week, min_days_between_calls, max_days_between_calls, preferred_call_times,
	last_outbound_call_at, last_inbound_call_at, unavailable_until, created_at, updated_at`

// PostgresRepo stores residents in the residents table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Resident, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+residentColumns+` FROM residents WHERE id = $1`, id)
	return scanResident(row)
}

func (r *PostgresRepo) ListSchedulable(ctx context.Context, now time.Time) ([]Resident, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+residentColumns+` FROM residents
		WHERE status = 'active' AND call_consent = true
		  AND (unavailable_until IS NULL OR unavailable_until <= $1)
		ORDER BY id`, now)
	if err != nil {
		return nil, fmt.Errorf("list schedulable residents: %w", err)
	}
	defer rows.Close()

	var out []Resident
	for rows.Next() {
		res, err := scanResident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) FindByPhone(ctx context.Context, phone string) (Resident, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+residentColumns+` FROM residents WHERE phone_number = $1 LIMIT 1`, phone)
	return scanResident(row)
}

func (r *PostgresRepo) SetLastOutboundCall(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, `UPDATE residents SET last_outbound_call_at = $2, updated_at = now() WHERE id = $1`, id, at)
}

func (r *PostgresRepo) SetLastInboundCall(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, `UPDATE residents SET last_inbound_call_at = $2, updated_at = now() WHERE id = $1`, id, at)
}

func (r *PostgresRepo) exec(ctx context.Context, q string, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, q, id, at)
	if err != nil {
		return fmt.Errorf("update resident %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResident(s rowScanner) (Resident, error) {
	var (
		res       Resident
		status    string
		prefs     []byte
		lastOut   sql.NullTime
		lastIn    sql.NullTime
		unavailTo sql.NullTime
	)
	err := s.Scan(
		&res.ID, &res.FacilityID, &res.Name, &status, &res.CallConsent, &res.PhoneNumber,
		&res.TargetCallsPerWeek, &res.MinDaysBetweenCalls, &res.MaxDaysBetweenCalls, &prefs,
		&lastOut, &lastIn, &unavailTo, &res.CreatedAt, &res.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Resident{}, ErrNotFound
	}
	if err != nil {
		return Resident{}, fmt.Errorf("scan resident: %w", err)
	}
	res.Status = Status(status)
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &res.PreferredCallTimes); err != nil {
			return Resident{}, fmt.Errorf("decode preferred call times for %s: %w", res.ID, err)
		}
	}
	res.LastOutboundCallAt = nullTime(lastOut)
	res.LastInboundCallAt = nullTime(lastIn)
	res.UnavailableUntil = nullTime(unavailTo)
	return res, nil
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
