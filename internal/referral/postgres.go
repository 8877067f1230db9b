package referral

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sabihealth/outreach/internal/risk"
	"github.com/sabihealth/outreach/internal/shared/errors"
)

// PostgresDirectory looks facilities up in outreach.facilities
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory creates a new Postgres facility directory
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

// LookupNearest returns the nearest registered facility
func (d *PostgresDirectory) LookupNearest(ctx context.Context, location risk.LocationUnit) (*FacilityRef, error) {
	query := `
		SELECT id, name, address, phone, location, region
		FROM outreach.facilities
		WHERE lower(region) = lower($2)
		   OR lower(location) = lower($1)
		ORDER BY (lower(location) = lower($1)) DESC, tier, name
		LIMIT 1`

	ref := &FacilityRef{}
	err := d.pool.QueryRow(ctx, query, location.Name, location.Region).Scan(
		&ref.ID, &ref.Name, &ref.Address, &ref.Phone, &ref.Location.Name, &ref.Location.Region,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("facility", location.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up facility")
	}
	return ref, nil
}

// Add registers a facility
func (d *PostgresDirectory) Add(ctx context.Context, f Facility) error {
	query := `
		INSERT INTO outreach.facilities (id, name, address, phone, location, region, tier)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`

	_, err := d.pool.Exec(ctx, query,
		f.ID, f.Name, f.Address, f.Phone, f.Location.Name, f.Location.Region, f.Tier,
	)
	if err != nil {
		return errors.Wrap(err, "failed to add facility")
	}
	return nil
}
