package segments

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"carecall-platform/pkg/utils"
)

const segmentColumns = `id, call_id, resident_id, start_time_ms, end_time_ms, title, transcript,
	category, quality_score, tone, flags, audio_clip_status, audio_clip_url, audio_clip_error,
	created_at, updated_at`

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// CreateMany inserts all segments of one pipeline pass in a single transaction.
func (r *PostgresRepo) CreateMany(ctx context.Context, segs []Segment) error {
	for _, s := range segs {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("segment %s: %w", s.ID, err)
		}
	}
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		for _, s := range segs {
			flags, err := json.Marshal(s.Flags)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `INSERT INTO story_segments (
				id, call_id, resident_id, start_time_ms, end_time_ms, title, transcript,
				category, quality_score, tone, flags, audio_clip_status, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'pending', now(), now())`,
				s.ID, s.CallID, s.ResidentID, s.StartTimeMs, s.EndTimeMs, s.Title, s.Transcript,
				s.Category, s.QualityScore, s.Tone, flags,
			)
			if err != nil {
				return fmt.Errorf("insert segment %s: %w", s.ID, err)
			}
		}
		return nil
	})
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Segment, error) {
	return scanSegment(r.db.QueryRowContext(ctx, `SELECT `+segmentColumns+` FROM story_segments WHERE id = $1`, id))
}

func (r *PostgresRepo) ListByCall(ctx context.Context, callID string) ([]Segment, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+segmentColumns+` FROM story_segments
		WHERE call_id = $1 ORDER BY start_time_ms`, callID)
	if err != nil {
		return nil, fmt.Errorf("list segments for call %s: %w", callID, err)
	}
	defer rows.Close()

	var out []Segment
	for rows.Next() {
		s, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) SetClipStatus(ctx context.Context, id string, status ClipStatus, errMsg string) error {
	if status == ClipCompleted {
		return ErrInvalidArgument
	}
	res, err := r.db.ExecContext(ctx, `UPDATE story_segments
		SET audio_clip_status = $2, audio_clip_error = $3, updated_at = now()
		WHERE id = $1`, id, string(status), errMsg)
	return affected(res, err, id)
}

func (r *PostgresRepo) CompleteClip(ctx context.Context, id, url string) error {
	if url == "" {
		return ErrInvalidArgument
	}
	res, err := r.db.ExecContext(ctx, `UPDATE story_segments
		SET audio_clip_status = 'completed', audio_clip_url = $2, audio_clip_error = '', updated_at = now()
		WHERE id = $1`, id, url)
	return affected(res, err, id)
}

func affected(res sql.Result, err error, id string) error {
	if err != nil {
		return fmt.Errorf("update segment %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSegment(s rowScanner) (Segment, error) {
	var (
		seg    Segment
		flags  []byte
		status string
		url    sql.NullString
	)
	err := s.Scan(
		&seg.ID, &seg.CallID, &seg.ResidentID, &seg.StartTimeMs, &seg.EndTimeMs, &seg.Title, &seg.Transcript,
		&seg.Category, &seg.QualityScore, &seg.Tone, &flags, &status, &url, &seg.AudioClipError,
		&seg.CreatedAt, &seg.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Segment{}, ErrNotFound
	}
	if err != nil {
		return Segment{}, fmt.Errorf("scan segment: %w", err)
	}
	seg.AudioClipStatus = ClipStatus(status)
	seg.AudioClipURL = url.String
	if len(flags) > 0 && string(flags) != "null" {
		if err := json.Unmarshal(flags, &seg.Flags); err != nil {
			return Segment{}, fmt.Errorf("decode flags for segment %s: %w", seg.ID, err)
		}
	}
	return seg, nil
}
