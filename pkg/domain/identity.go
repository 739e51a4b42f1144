// Package domain defines the value types shared by every layer of the
// crosswalk: municipality identities, mutation records, roster entries,
// resolved mappings and the scope of a resolution run.
package domain

import (
	"fmt"
	"strings"
)

// Identity identifies a municipality at a point in time. Two identities are
// equal iff all four fields match, which is exactly Go struct equality, so
// Identity is usable as a map key.
type Identity struct {
	Canton             string `json:"canton"`
	DistrictNumber     int    `json:"district_nr"`
	MunicipalityNumber int    `json:"municipality_nr"`
	Name               string `json:"municipality"`
}

// Validate reports whether every field of the identity is populated.
func (id Identity) Validate() error {
	var missing []string
	if strings.TrimSpace(id.Canton) == "" {
		missing = append(missing, "canton")
	}
	if id.DistrictNumber <= 0 {
		missing = append(missing, "district_nr")
	}
	if id.MunicipalityNumber <= 0 {
		missing = append(missing, "municipality_nr")
	}
	if strings.TrimSpace(id.Name) == "" {
		missing = append(missing, "municipality")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncompleteRecord, strings.Join(missing, ", "))
	}
	return nil
}

// IsZero reports whether no field is set.
func (id Identity) IsZero() bool { return id == Identity{} }

func (id Identity) String() string {
	return fmt.Sprintf("%s/%d/%d/%q", id.Canton, id.DistrictNumber, id.MunicipalityNumber, id.Name)
}

// Less orders identities by canton, district, municipality number, then name.
func (id Identity) Less(other Identity) bool {
	if id.Canton != other.Canton {
		return id.Canton < other.Canton
	}
	if id.DistrictNumber != other.DistrictNumber {
		return id.DistrictNumber < other.DistrictNumber
	}
	if id.MunicipalityNumber != other.MunicipalityNumber {
		return id.MunicipalityNumber < other.MunicipalityNumber
	}
	return id.Name < other.Name
}
