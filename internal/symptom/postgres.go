package symptom

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sabihealth/outreach/internal/shared/errors"
	"github.com/sabihealth/outreach/internal/shared/types"
)

// PostgresRepository stores reports in outreach.symptom_reports
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new symptom report repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Save appends a report
func (r *PostgresRepository) Save(ctx context.Context, report *Report) error {
	query := `
		INSERT INTO outreach.symptom_reports (
			id, recipient_id, fever, cough, headache, fatigue, diarrhea, vomiting, notes, reported_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	s := report.Symptoms
	_, err := r.pool.Exec(ctx, query,
		report.ID, report.RecipientID,
		int16(s.Fever), int16(s.Cough), int16(s.Headache),
		int16(s.Fatigue), int16(s.Diarrhea), int16(s.Vomiting),
		report.Notes, report.ReportedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("symptom report already saved")
		}
		return errors.Wrap(err, "failed to save symptom report")
	}
	return nil
}

// ListByRecipient returns a recipient's reports, newest first
func (r *PostgresRepository) ListByRecipient(ctx context.Context, recipientID types.ID, limit int) ([]Report, error) {
	query := `
		SELECT id, recipient_id, fever, cough, headache, fatigue, diarrhea, vomiting, notes, reported_at
		FROM outreach.symptom_reports
		WHERE recipient_id = $1
		ORDER BY reported_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, recipientID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list symptom reports")
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		var (
			rep                                              Report
			fever, cough, headache, fatigue, diarrhea, vomit int16
		)
		err := rows.Scan(
			&rep.ID, &rep.RecipientID,
			&fever, &cough, &headache, &fatigue, &diarrhea, &vomit,
			&rep.Notes, &rep.ReportedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan symptom report")
		}
		rep.Symptoms = Symptoms{
			Fever:    Intensity(fever),
			Cough:    Intensity(cough),
			Headache: Intensity(headache),
			Fatigue:  Intensity(fatigue),
			Diarrhea: Intensity(diarrhea),
			Vomiting: Intensity(vomit),
		}
		out = append(out, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read symptom reports")
	}
	return out, nil
}
