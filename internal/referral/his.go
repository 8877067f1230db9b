package referral

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver
	"github.com/sabihealth/outreach/internal/risk"
	"github.com/sabihealth/outreach/internal/shared/config"
	"github.com/sabihealth/outreach/internal/shared/errors"
	"github.com/sabihealth/outreach/internal/shared/types"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// HISDirectory reads facilities from a hospital information system on SQL Server.
// The facility table carries FacilityID, Name, Address, Phone, Lga, State and Tier columns.
type HISDirectory struct {
	db    *sql.DB
	table string
}

// NewHISDirectory opens the HIS database and verifies the connection
func NewHISDirectory(ctx context.Context, cfg config.HISConfig) (*HISDirectory, error) {
	if !tableName.MatchString(cfg.FacilityTable) {
		return nil, fmt.Errorf("invalid facility table name %q", cfg.FacilityTable)
	}

	db, err := sql.Open("sqlserver", connectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open HIS database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping HIS database: %w", err)
	}

	return &HISDirectory{db: db, table: cfg.FacilityTable}, nil
}

func connectionString(cfg config.HISConfig) string {
	connStr := fmt.Sprintf("server=%s;port=%d;database=%s;user id=%s;password=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password,
	)
	if cfg.Encrypt {
		connStr += ";encrypt=true;TrustServerCertificate=true"
	}
	return connStr
}

// LookupNearest returns the nearest active facility in the HIS registry
func (d *HISDirectory) LookupNearest(ctx context.Context, location risk.LocationUnit) (*FacilityRef, error) {
	query := fmt.Sprintf(`
		SELECT TOP 1 FacilityID, Name, Address, Phone, Lga, State
		FROM %s
		WHERE Active = 1
		  AND (LOWER(Lga) = LOWER(@lga) OR LOWER(State) = LOWER(@state))
		ORDER BY CASE WHEN LOWER(Lga) = LOWER(@lga) THEN 0 ELSE 1 END, Tier, Name`, d.table)

	var (
		id             string
		address, phone sql.NullString
		ref            FacilityRef
	)
	err := d.db.QueryRowContext(ctx, query,
		sql.Named("lga", location.Name),
		sql.Named("state", location.Region),
	).Scan(&id, &ref.Name, &address, &phone, &ref.Location.Name, &ref.Location.Region)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("facility", location.String())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query HIS facilities: %w", err)
	}

	ref.ID = types.NewDeterministicID("his-facility", id)
	ref.Address = address.String
	ref.Phone = phone.String
	return &ref, nil
}

// Health pings the HIS database
func (d *HISDirectory) Health(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the HIS connection pool
func (d *HISDirectory) Close() error {
	return d.db.Close()
}
