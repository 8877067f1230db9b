package calllog

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sabihealth/outreach/internal/shared/errors"
	"github.com/sabihealth/outreach/internal/shared/types"
)

// PostgresRepository stores entries in outreach.call_logs. The table
// rejects UPDATE and DELETE.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new call log repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Append inserts an entry; the unique session_id makes duplicates a conflict
func (r *PostgresRepository) Append(ctx context.Context, e *Entry) error {
	query := `
		INSERT INTO outreach.call_logs (
			id, session_id, recipient_id, location, region, recorded_at,
			trigger_type, risk_level, final_state, script, response, referral_name
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	var referralName *string
	if e.ReferralName != "" {
		referralName = &e.ReferralName
	}

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.SessionID, e.RecipientID, e.Location.Name, e.Location.Region, e.Timestamp,
		e.TriggerType, e.RiskLevel, e.FinalState, e.Script, e.Response, referralName,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("call log entry already recorded for session " + e.SessionID.String())
		}
		return errors.Wrap(err, "failed to append call log entry")
	}
	return nil
}

const selectEntries = `
	SELECT id, session_id, recipient_id, location, region, recorded_at,
		trigger_type, risk_level, final_state, script, response, referral_name
	FROM outreach.call_logs`

// FindBySession returns the entry for a session
func (r *PostgresRepository) FindBySession(ctx context.Context, sessionID types.ID) (*Entry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, selectEntries+` WHERE session_id = $1`, sessionID))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("call log entry", sessionID.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get call log entry")
	}
	return e, nil
}

// List returns entries newest first
func (r *PostgresRepository) List(ctx context.Context, filter Filter) ([]Entry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var (
		rows pgx.Rows
		err  error
	)
	if filter.RecipientID.IsZero() {
		rows, err = r.pool.Query(ctx, selectEntries+` ORDER BY recorded_at DESC LIMIT $1`, limit)
	} else {
		rows, err = r.pool.Query(ctx,
			selectEntries+` WHERE recipient_id = $1 ORDER BY recorded_at DESC LIMIT $2`,
			filter.RecipientID, limit)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to list call log entries")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan call log entry")
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read call log entries")
	}
	return out, nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	e := &Entry{}
	var referralName *string
	err := row.Scan(
		&e.ID, &e.SessionID, &e.RecipientID, &e.Location.Name, &e.Location.Region, &e.Timestamp,
		&e.TriggerType, &e.RiskLevel, &e.FinalState, &e.Script, &e.Response, &referralName,
	)
	if err != nil {
		return nil, err
	}
	if referralName != nil {
		e.ReferralName = *referralName
	}
	return e, nil
}
