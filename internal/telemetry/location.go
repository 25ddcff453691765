package telemetry

import (
	"fmt"
	"strconv"

	"cropwatch/internal/models"
)

const (
	UnknownLocationID   = "unknown"
	UnknownLocationName = "Unknown location"
)

// FacilityID derives the facility key of a location: its owner, or a
// synthetic id when the location has no owner.
func FacilityID(loc *models.LocationRow) string {
	if loc == nil {
		return "facility-" + UnknownLocationID
	}
	if loc.OwnerID != nil && *loc.OwnerID != "" {
		return *loc.OwnerID
	}
	return "facility-" + strconv.FormatInt(loc.LocationID, 10)
}

func MapLocation(loc models.LocationRow) models.Location {
	name := UnknownLocationName
	if loc.Name != nil {
		name = *loc.Name
	}
	return models.Location{
		ID:         strconv.FormatInt(loc.LocationID, 10),
		Name:       name,
		FacilityID: FacilityID(&loc),
	}
}

func MapFacility(loc models.LocationRow) models.Facility {
	id := FacilityID(&loc)
	code := id
	if len(code) > 4 {
		code = code[:4]
	}
	return models.Facility{
		ID:   id,
		Name: fmt.Sprintf("Facility %s", id),
		Code: "F-" + code,
	}
}
