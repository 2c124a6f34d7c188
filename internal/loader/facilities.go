package loader

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provision-cli/internal/provision"
)

// ParseFacilities reads a facility table already joined to blocks. Columns:
// block_id, capacity and an optional service column. When the service column
// is present only rows matching service are returned.
func ParseFacilities(rows [][]string, service string) ([]provision.Facility, error) {
	byService, err := parseFacilityRows(rows, service)
	if err != nil {
		return nil, err
	}
	return byService[service], nil
}

// ParseFacilitiesByService splits a facility table with a service column into
// one facility list per service type.
func ParseFacilitiesByService(rows [][]string) (map[string][]provision.Facility, error) {
	if len(rows) > 0 {
		if _, ok := parseHeader(rows[0]).find("service", "service_type"); !ok {
			return nil, eris.New(`loader: facilities table has no "service" column`)
		}
	}
	return parseFacilityRows(rows, "")
}

// parseFacilityRows groups rows by service. Without a service column every row
// belongs to fallback.
func parseFacilityRows(rows [][]string, fallback string) (map[string][]provision.Facility, error) {
	out := make(map[string][]provision.Facility)
	if len(rows) == 0 {
		return out, nil
	}
	h := parseHeader(rows[0])

	blockCol, err := h.require("facilities", "block_id", "id")
	if err != nil {
		return nil, err
	}
	capCol, err := h.require("facilities", "capacity")
	if err != nil {
		return nil, err
	}
	svcCol, hasSvc := h.find("service", "service_type")

	for n, row := range rows[1:] {
		line := n + 2

		service := fallback
		if hasSvc {
			rowSvc := strings.ToLower(cell(row, svcCol))
			switch {
			case fallback != "":
				if rowSvc != strings.ToLower(fallback) {
					continue
				}
			case rowSvc == "":
				return nil, cellError(eris.New("service is required"), "facilities", line, "service", "")
			default:
				service = rowSvc
			}
		}

		var f provision.Facility
		raw := cell(row, blockCol)
		if f.BlockID, err = parseID(raw); err != nil {
			return nil, cellError(err, "facilities", line, "block_id", raw)
		}
		raw = cell(row, capCol)
		if f.Capacity, err = strconv.ParseFloat(raw, 64); err != nil {
			return nil, cellError(err, "facilities", line, "capacity", raw)
		}
		if math.IsNaN(f.Capacity) || math.IsInf(f.Capacity, 0) || f.Capacity < 0 {
			return nil, cellError(eris.New("capacity must be a non-negative number"), "facilities", line, "capacity", raw)
		}

		out[service] = append(out[service], f)
	}
	return out, nil
}
