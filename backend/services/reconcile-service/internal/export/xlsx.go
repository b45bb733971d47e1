package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"expolis/backend/services/reconcile-service/internal/models"
)

// SheetName is the worksheet holding missing records.
const SheetName = "Missing"

var headers = []string{"Line", "Sensor", "When", "Latitude", "Longitude"}

// WriteMissing saves the missing records of a run into an Excel workbook.
func WriteMissing(filename string, records []models.CandidateRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("export: name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("export: create header style: %w", err)
	}

	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, header); err != nil {
			return fmt.Errorf("export: write header: %w", err)
		}
		if err := f.SetCellStyle(SheetName, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("export: style header: %w", err)
		}
	}

	for i, rec := range records {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{rec.Line, rec.SensorID, rec.Timestamp, rec.Latitude, rec.Longitude}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("export: write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(SheetName, "C", "C", 28); err != nil {
		return fmt.Errorf("export: set width: %w", err)
	}

	if err := f.SaveAs(filename); err != nil {
		return fmt.Errorf("export: save %s: %w", filename, err)
	}
	return nil
}
