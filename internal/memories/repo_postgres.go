package memories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Upsert applies the same merge as Merge inside a single statement so concurrent
// pipelines for the same resident cannot drop a mention.
func (r *PostgresRepo) Upsert(ctx context.Context, m Memory) (Memory, error) {
	m = m.Normalize()
	if err := m.Validate(); err != nil {
		return Memory{}, err
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.LastSeenAt.IsZero() {
		m.LastSeenAt = time.Now().UTC()
	}

	var out Memory
	var source sql.NullString
	err := r.db.QueryRowContext(ctx, `INSERT INTO resident_memories (
		id, resident_id, category, key, value, confidence, mention_count, source_call_id, first_seen_at, last_seen_at
	) VALUES ($1, $2, $3, $4, $5, $6, 1, NULLIF($7, ''), $8, $8)
	ON CONFLICT (resident_id, category, key) DO UPDATE SET
		mention_count = resident_memories.mention_count + 1,
		value = CASE WHEN EXCLUDED.confidence >= resident_memories.confidence THEN EXCLUDED.value ELSE resident_memories.value END,
		source_call_id = CASE WHEN EXCLUDED.confidence >= resident_memories.confidence THEN EXCLUDED.source_call_id ELSE resident_memories.source_call_id END,
		confidence = GREATEST(resident_memories.confidence, EXCLUDED.confidence),
		last_seen_at = GREATEST(resident_memories.last_seen_at, EXCLUDED.last_seen_at)
	RETURNING id, resident_id, category, key, value, confidence, mention_count, source_call_id, first_seen_at, last_seen_at`,
		m.ID, m.ResidentID, m.Category, m.Key, m.Value, m.Confidence, m.SourceCallID, m.LastSeenAt,
	).Scan(&out.ID, &out.ResidentID, &out.Category, &out.Key, &out.Value, &out.Confidence, &out.MentionCount, &source, &out.FirstSeenAt, &out.LastSeenAt)
	if err != nil {
		return Memory{}, fmt.Errorf("upsert memory %s/%s: %w", m.Category, m.Key, err)
	}
	out.SourceCallID = source.String
	return out, nil
}

func (r *PostgresRepo) ListByResident(ctx context.Context, residentID string) ([]Memory, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, resident_id, category, key, value, confidence, mention_count,
		source_call_id, first_seen_at, last_seen_at
		FROM resident_memories WHERE resident_id = $1 ORDER BY category, key`, residentID)
	if err != nil {
		return nil, fmt.Errorf("list memories for %s: %w", residentID, err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		var m Memory
		var source sql.NullString
		if err := rows.Scan(&m.ID, &m.ResidentID, &m.Category, &m.Key, &m.Value, &m.Confidence, &m.MentionCount, &source, &m.FirstSeenAt, &m.LastSeenAt); err != nil {
			return nil, err
		}
		m.SourceCallID = source.String
		out = append(out, m)
	}
	return out, rows.Err()
}
