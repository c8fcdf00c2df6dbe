package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRepo appends to audit_events. The table carries no UPDATE or DELETE grants.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO audit_events (
		id, facility_id, type, actor_user_id, actor_role, ip_address,
		call_id, provider_call_id, segment_id, job_id, message, metadata, created_at
	) VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''),
		NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), $11, NULLIF($12, '')::jsonb, $13)`,
		e.ID, e.FacilityID, string(e.Type), e.ActorUserID, e.ActorRole, e.IPAddress,
		e.CallID, e.ProviderCallID, e.SegmentID, e.JobID, e.Message, e.Metadata, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append audit event %s: %w", e.Type, err)
	}
	return nil
}
