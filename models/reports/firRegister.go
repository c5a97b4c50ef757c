package reports

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"bitbucket.org/mmdatafocus/fir_backend/config"
	"bitbucket.org/mmdatafocus/fir_backend/models"
)

// BuildFIRRegister renders the station register of approved FIRs as an
// xlsx workbook, most recent approvals first.
func BuildFIRRegister(ctx context.Context) (*excelize.File, error) {

	db := config.GetDB()
	var firs []*models.FinalFIR
	if err := db.WithContext(ctx).
		Order("approved_at DESC").
		Find(&firs).Error; err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheetName := "FIR Register"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{
		"FIR Number", "Date", "Time", "Location",
		"Victim", "Accused", "IPC Sections",
		"Created By", "Approved By", "Approved At",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, h)
	}

	for row, fir := range firs {
		values := []interface{}{
			fir.FIRNumber,
			fir.Date,
			fir.Time,
			fir.Location,
			fir.Victim,
			fir.Accused,
			joinSections(fir.IPCPredictions),
			fir.CreatedBy,
			fir.ApprovedBy,
			fir.ApprovedAt.Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheetName, cell, v)
		}
	}

	return f, nil
}

func joinSections(predictions models.IPCPredictionList) string {
	parts := make([]string, 0, len(predictions))
	for _, p := range predictions {
		parts = append(parts, fmt.Sprintf("%s: %s", p.Section, p.Offense))
	}
	return strings.Join(parts, "; ")
}
