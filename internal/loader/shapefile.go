package loader

import (
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/provision-cli/internal/provision"
)

// LoadShapefileBlocks reads blocks from a polygon shapefile. The DBF must
// carry id and population fields and may carry is_living; field names are
// matched case-insensitively and DBF's 10-character limit is accounted for.
func LoadShapefileBlocks(shpPath string) ([]provision.Block, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}
	h := parseHeader(names)

	idCol, err := h.require("shapefile", "id", "block_id")
	if err != nil {
		return nil, err
	}
	popCol, err := h.require("shapefile", "population", "populatio", "pop")
	if err != nil {
		return nil, err
	}
	livingCol, hasLiving := h.find("is_living", "living")

	attrOf := func(i int) string {
		return strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
	}

	var blocks []provision.Block
	var noGeom, rowNum int
	for reader.Next() {
		rowNum++
		_, shape := reader.Shape()

		var b provision.Block
		raw := attrOf(idCol)
		if b.ID, err = parseID(raw); err != nil {
			return nil, cellError(err, "shapefile", rowNum, "id", raw)
		}
		raw = attrOf(popCol)
		if raw != "" {
			if b.Population, err = strconv.ParseFloat(raw, 64); err != nil || b.Population < 0 {
				if err == nil {
					err = eris.New("population must be non-negative")
				}
				return nil, cellError(err, "shapefile", rowNum, "population", raw)
			}
		}
		if hasLiving {
			raw = attrOf(livingCol)
			if b.IsLiving, err = parseBool(raw); err != nil {
				return nil, cellError(err, "shapefile", rowNum, "is_living", raw)
			}
		} else {
			b.IsLiving = b.Population > 0
		}

		if b.Geometry, err = EncodeWKB(shape); err != nil {
			return nil, eris.Wrapf(err, "loader: shapefile record %d", rowNum)
		}
		if b.Geometry == nil {
			noGeom++
		}
		blocks = append(blocks, b)
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "loader: read shapefile %s", shpPath)
	}

	if noGeom > 0 {
		zap.L().Debug("loader: shapefile records without usable geometry",
			zap.String("path", shpPath),
			zap.Int("records", noGeom),
		)
	}
	return blocks, nil
}
