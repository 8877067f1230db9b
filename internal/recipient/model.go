package recipient

import (
	"context"
	"strings"
	"time"

	"github.com/sabihealth/outreach/internal/risk"
	"github.com/sabihealth/outreach/internal/shared/types"
)

// Recipient is a registered person who receives advisory calls
type Recipient struct {
	ID               types.ID          `json:"id"`
	Name             string            `json:"name"`
	Phone            string            `json:"phone"`
	Location         risk.LocationUnit `json:"location"`
	PreferredPersona string            `json:"preferred_persona,omitempty"`
	RegisteredAt     time.Time         `json:"registered_at"`
}

// Directory is read-only access to registered recipients
type Directory interface {
	FindByID(ctx context.Context, id types.ID) (*Recipient, error)
	List(ctx context.Context) ([]Recipient, error)
	ListByLocation(ctx context.Context, location risk.LocationUnit) ([]Recipient, error)
}

func sameLocation(a, b risk.LocationUnit) bool {
	return strings.EqualFold(strings.TrimSpace(a.Name), strings.TrimSpace(b.Name)) &&
		(b.Region == "" || strings.EqualFold(strings.TrimSpace(a.Region), strings.TrimSpace(b.Region)))
}
