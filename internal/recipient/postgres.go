package recipient

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sabihealth/outreach/internal/risk"
	"github.com/sabihealth/outreach/internal/shared/errors"
	"github.com/sabihealth/outreach/internal/shared/types"
)

// PostgresDirectory reads recipients from outreach.recipients
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory creates a new recipient directory
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

const selectRecipients = `
	SELECT id, name, phone, location, region, preferred_persona, registered_at
	FROM outreach.recipients`

// FindByID returns a recipient by ID
func (d *PostgresDirectory) FindByID(ctx context.Context, id types.ID) (*Recipient, error) {
	r, err := scanRecipient(d.pool.QueryRow(ctx, selectRecipients+` WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("recipient", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get recipient")
	}
	return r, nil
}

// List returns all recipients ordered by registration time
func (d *PostgresDirectory) List(ctx context.Context) ([]Recipient, error) {
	rows, err := d.pool.Query(ctx, selectRecipients+` ORDER BY registered_at, id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list recipients")
	}
	return collect(rows)
}

// ListByLocation returns recipients registered in a location
func (d *PostgresDirectory) ListByLocation(ctx context.Context, location risk.LocationUnit) ([]Recipient, error) {
	query := selectRecipients + `
		WHERE lower(location) = lower($1)
		  AND ($2 = '' OR lower(region) = lower($2))
		ORDER BY registered_at, id`

	rows, err := d.pool.Query(ctx, query, location.Name, location.Region)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list recipients by location")
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]Recipient, error) {
	defer rows.Close()

	var out []Recipient
	for rows.Next() {
		r, err := scanRecipient(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan recipient")
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read recipients")
	}
	return out, nil
}

func scanRecipient(row pgx.Row) (*Recipient, error) {
	r := &Recipient{}
	err := row.Scan(
		&r.ID, &r.Name, &r.Phone, &r.Location.Name, &r.Location.Region,
		&r.PreferredPersona, &r.RegisteredAt,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}
