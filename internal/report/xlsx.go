package report

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/provision-cli/internal/provision"
)

// Excel rejects longer sheet names.
const maxSheetName = 31

// WriteXLSX saves tables to one workbook at path, one sheet per service type,
// plus a leading "summary" sheet when summaries are given.
func WriteXLSX(path string, tables []provision.Table, summaries []provision.Summary) error {
	if len(tables) == 0 {
		return eris.New("report: no tables to write")
	}

	f := xlsx.NewFile()

	if len(summaries) > 0 {
		if err := addSummarySheet(f, summaries); err != nil {
			return err
		}
	}

	for _, t := range tables {
		sheet, err := f.AddSheet(sheetName(t.Service))
		if err != nil {
			return eris.Wrapf(err, "report: add sheet %s", t.Service)
		}

		header := sheet.AddRow()
		for _, col := range Columns(t.Service) {
			header.AddCell().SetString(col)
		}
		for _, r := range t.Rows {
			row := sheet.AddRow()
			for _, v := range []int{r.BlockID, r.Provision, r.ServingID, r.PopulationProvided, r.PopulationUnprovided, r.Population} {
				row.AddCell().SetInt(v)
			}
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}

func addSummarySheet(f *xlsx.File, summaries []provision.Summary) error {
	sheet, err := f.AddSheet("summary")
	if err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}

	header := sheet.AddRow()
	for _, col := range []string{"service", "living_blocks", "facility_blocks", "served_blocks", "population", "provided", "unprovided", "provision_pct", "capacity_initial", "capacity_remaining"} {
		header.AddCell().SetString(col)
	}
	for _, s := range summaries {
		row := sheet.AddRow()
		row.AddCell().SetString(s.Service)
		row.AddCell().SetInt(s.LivingBlocks)
		row.AddCell().SetInt(s.FacilityBlocks)
		row.AddCell().SetInt(s.ServedBlocks)
		row.AddCell().SetFloat(s.TotalPopulation)
		row.AddCell().SetFloat(s.ProvidedPopulation)
		row.AddCell().SetFloat(s.UnprovidedPopulation)
		row.AddCell().SetFloat(s.ProvisionRate())
		row.AddCell().SetFloat(s.InitialCapacity)
		row.AddCell().SetFloat(s.RemainingCapacity)
	}
	return nil
}

func sheetName(service string) string {
	if service == "" {
		return "provision"
	}
	if len(service) > maxSheetName {
		return service[:maxSheetName]
	}
	return service
}
