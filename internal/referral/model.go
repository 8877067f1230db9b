package referral

import (
	"context"
	"sort"
	"strings"

	"github.com/sabihealth/outreach/internal/risk"
	"github.com/sabihealth/outreach/internal/shared/types"
)

// FallbackName is referred when no facility is registered for a location
const FallbackName = "Nearest Primary Health Center"

// FacilityRef is the facility attached to a call session on a FEVER response
type FacilityRef struct {
	ID       types.ID          `json:"id,omitempty"`
	Name     string            `json:"name"`
	Address  string            `json:"address,omitempty"`
	Phone    string            `json:"phone,omitempty"`
	Location risk.LocationUnit `json:"location"`
	Fallback bool              `json:"fallback"`
}

// String renders the facility the way it is read out to the recipient
func (f FacilityRef) String() string {
	if f.Address == "" {
		return f.Name
	}
	return f.Name + ", " + f.Address
}

// Fallback returns the generic placeholder facility for a location
func Fallback(location risk.LocationUnit) FacilityRef {
	return FacilityRef{
		Name:     FallbackName,
		Location: location,
		Fallback: true,
	}
}

// Facility is a directory record
type Facility struct {
	ID       types.ID          `json:"id"`
	Name     string            `json:"name"`
	Address  string            `json:"address"`
	Phone    string            `json:"phone"`
	Location risk.LocationUnit `json:"location"`
	// Tier orders candidates in the same area; 1 is referred first.
	Tier int `json:"tier"`
}

// Ref converts a directory record into a referral
func (f Facility) Ref() FacilityRef {
	return FacilityRef{
		ID:       f.ID,
		Name:     f.Name,
		Address:  f.Address,
		Phone:    f.Phone,
		Location: f.Location,
	}
}

// Directory looks up the nearest registered facility. Implementations
// return an errors.NotFound AppError when nothing is registered.
type Directory interface {
	LookupNearest(ctx context.Context, location risk.LocationUnit) (*FacilityRef, error)
}

// pickNearest prefers a facility in the same LGA, then any in the same
// region, ordered by tier then name.
func pickNearest(facilities []Facility, location risk.LocationUnit) (Facility, bool) {
	name := strings.ToLower(strings.TrimSpace(location.Name))
	region := strings.ToLower(strings.TrimSpace(location.Region))

	var exact, sameRegion []Facility
	for _, f := range facilities {
		fName := strings.ToLower(f.Location.Name)
		fRegion := strings.ToLower(f.Location.Region)
		switch {
		case fName == name && (region == "" || fRegion == region):
			exact = append(exact, f)
		case region != "" && fRegion == region:
			sameRegion = append(sameRegion, f)
		}
	}

	for _, group := range [][]Facility{exact, sameRegion} {
		if len(group) == 0 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].Tier != group[j].Tier {
				return group[i].Tier < group[j].Tier
			}
			return group[i].Name < group[j].Name
		})
		return group[0], true
	}
	return Facility{}, false
}
