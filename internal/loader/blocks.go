package loader

import (
	"encoding/hex"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provision-cli/internal/provision"
)

// ParseBlocks reads a block table. Columns: id, population, optional
// is_living and optional geometry (hex-encoded WKB/EWKB). When is_living is
// absent a block is living if it has residents.
func ParseBlocks(rows [][]string) ([]provision.Block, error) {
	if len(rows) == 0 {
		return nil, eris.New("loader: blocks table is empty")
	}
	h := parseHeader(rows[0])

	idCol, err := h.require("blocks", "id", "block_id")
	if err != nil {
		return nil, err
	}
	popCol, err := h.require("blocks", "population", "pop")
	if err != nil {
		return nil, err
	}
	livingCol, hasLiving := h.find("is_living", "living")
	geomCol, hasGeom := h.find("geometry", "geom", "wkb")

	blocks := make([]provision.Block, 0, len(rows)-1)
	for n, row := range rows[1:] {
		line := n + 2

		var b provision.Block
		raw := cell(row, idCol)
		if b.ID, err = parseID(raw); err != nil {
			return nil, cellError(err, "blocks", line, "id", raw)
		}

		raw = cell(row, popCol)
		if raw == "" {
			b.Population = 0
		} else if b.Population, err = strconv.ParseFloat(raw, 64); err != nil {
			return nil, cellError(err, "blocks", line, "population", raw)
		}
		if math.IsNaN(b.Population) || math.IsInf(b.Population, 0) || b.Population < 0 {
			return nil, cellError(eris.New("population must be a non-negative number"), "blocks", line, "population", raw)
		}

		if hasLiving {
			raw = cell(row, livingCol)
			if b.IsLiving, err = parseBool(raw); err != nil {
				return nil, cellError(err, "blocks", line, "is_living", raw)
			}
		} else {
			b.IsLiving = b.Population > 0
		}

		if hasGeom {
			raw = strings.TrimPrefix(cell(row, geomCol), "\\x")
			if raw != "" {
				if b.Geometry, err = hex.DecodeString(raw); err != nil {
					return nil, cellError(err, "blocks", line, "geometry", truncate(raw, 16))
				}
			}
		}

		blocks = append(blocks, b)
	}
	return blocks, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
