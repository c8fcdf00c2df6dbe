package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"carecall-platform/pkg/utils"
)

const callColumns = `id, resident_id, facility_id, direction, status, provider_call_id, call_number,
	started_at, ended_at, duration_seconds, end_reason, transcript_raw, transcript,
	recording_url, permanent_recording_url, recording_object_key,
	summary, sentiment, topics, processed, processed_at, created_at, updated_at`

// PostgresRepo stores calls in the calls table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, c Call) error {
	if c.ID == "" || c.ResidentID == "" || !c.Status.Valid() {
		return ErrInvalidArgument
	}
	topics, err := json.Marshal(c.Topics)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO calls (
		id, resident_id, facility_id, direction, status, provider_call_id, call_number,
		started_at, transcript_raw, transcript, topics, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, '', '', $9, now(), now())`,
		c.ID, c.ResidentID, c.FacilityID, string(c.Direction), string(c.Status), c.ProviderCallID, c.CallNumber,
		c.StartedAt, topics,
	)
	if err != nil {
		return fmt.Errorf("insert call %s: %w", c.ID, err)
	}
	return nil
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Call, error) {
	return scanCall(r.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls WHERE id = $1`, id))
}

func (r *PostgresRepo) GetByProviderCallID(ctx context.Context, providerCallID string) (Call, error) {
	if providerCallID == "" {
		return Call{}, ErrNotFound
	}
	return scanCall(r.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls WHERE provider_call_id = $1`, providerCallID))
}

func (r *PostgresRepo) Update(ctx context.Context, id string, fn func(*Call) error) (Call, error) {
	var out Call
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		c, err := scanCall(tx.QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if err := fn(&c); err != nil {
			return err
		}
		topics, err := json.Marshal(c.Topics)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE calls SET
			status = $2, provider_call_id = NULLIF($3, ''), started_at = $4, ended_at = $5,
			duration_seconds = $6, end_reason = $7, transcript_raw = $8, transcript = $9,
			recording_url = $10, permanent_recording_url = $11, recording_object_key = $12,
			summary = $13, sentiment = $14, topics = $15, processed = $16, processed_at = $17,
			updated_at = now()
			WHERE id = $1`,
			c.ID, string(c.Status), c.ProviderCallID, c.StartedAt, c.EndedAt,
			c.DurationSeconds, c.EndReason, c.TranscriptRaw, c.Transcript,
			c.RecordingURL, c.PermanentRecordingURL, c.RecordingObjectKey,
			c.Summary, c.Sentiment, topics, c.Processed, c.ProcessedAt,
		)
		if err != nil {
			return fmt.Errorf("update call %s: %w", id, err)
		}
		out = c
		return nil
	})
	return out, err
}

func (r *PostgresRepo) HasActiveCall(ctx context.Context, residentID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (
		SELECT 1 FROM calls WHERE resident_id = $1 AND status IN ('scheduled', 'initiating', 'in_progress')
	)`, residentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active call for %s: %w", residentID, err)
	}
	return exists, nil
}

func (r *PostgresRepo) CompletedSince(ctx context.Context, residentID string, since time.Time) ([]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT ended_at FROM calls
		WHERE resident_id = $1 AND status = 'completed' AND ended_at >= $2
		ORDER BY ended_at`, residentID, since)
	if err != nil {
		return nil, fmt.Errorf("list completed calls for %s: %w", residentID, err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) CountForResident(ctx context.Context, residentID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM calls WHERE resident_id = $1`, residentID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count calls for %s: %w", residentID, err)
	}
	return n, nil
}

func (r *PostgresRepo) ListByFacility(ctx context.Context, facilityID string, from, to time.Time) ([]Call, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+callColumns+` FROM calls
		WHERE facility_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at`, facilityID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list calls for facility %s: %w", facilityID, err)
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(s rowScanner) (Call, error) {
	var (
		c           Call
		direction   string
		status      string
		providerID  sql.NullString
		startedAt   sql.NullTime
		endedAt     sql.NullTime
		topics      []byte
		processedAt sql.NullTime
	)
	err := s.Scan(
		&c.ID, &c.ResidentID, &c.FacilityID, &direction, &status, &providerID, &c.CallNumber,
		&startedAt, &endedAt, &c.DurationSeconds, &c.EndReason, &c.TranscriptRaw, &c.Transcript,
		&c.RecordingURL, &c.PermanentRecordingURL, &c.RecordingObjectKey,
		&c.Summary, &c.Sentiment, &topics, &c.Processed, &processedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	if err != nil {
		return Call{}, fmt.Errorf("scan call: %w", err)
	}
	c.Direction = Direction(direction)
	c.Status = Status(status)
	c.ProviderCallID = providerID.String
	c.StartedAt = nullTime(startedAt)
	c.EndedAt = nullTime(endedAt)
	c.ProcessedAt = nullTime(processedAt)
	if len(topics) > 0 && string(topics) != "null" {
		if err := json.Unmarshal(topics, &c.Topics); err != nil {
			return Call{}, fmt.Errorf("decode topics for call %s: %w", c.ID, err)
		}
	}
	return c, nil
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
