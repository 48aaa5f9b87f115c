package audit

import (
	"context"
	"database/sql"
	"encoding/json"

	"opsuite.io/internal/ids"
)

// PGStore persists audit records in Postgres.
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps a database handle for audit persistence.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Append inserts one audit record.
func (s *PGStore) Append(ctx context.Context, rec *Record) error {
	var fields []byte
	if len(rec.Fields) > 0 {
		var err error
		fields, err = json.Marshal(rec.Fields)
		if err != nil {
			return err
		}
	} else {
		fields = []byte("{}")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_log (id, occurred_at, event, request_id, user_id, organization_id, module, resource, action, outcome, reason, fields)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		ids.New(), rec.OccurredAt, rec.Event,
		nullable(rec.RequestID), nullable(rec.UserID), nullable(rec.OrganizationID),
		nullable(rec.Module), nullable(rec.Resource), nullable(rec.Action),
		rec.Outcome, nullable(rec.Reason), fields,
	)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
