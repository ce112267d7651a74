package report

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	apperrors "github.com/cavim/platform/internal/shared/errors"
)

const sheetName = "Casos"

var excelHeaders = []string{
	"Caso", "Víctima", "Documento", "Área", "Estado", "Motivo", "Creado", "Actualizado", "Transiciones",
}

// BuildExcel renders report rows into a spreadsheet.
func BuildExcel(rows []Row) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, apperrors.Internal(err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDDDDD"}, Pattern: 1},
	})
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	for i, h := range excelHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, apperrors.Internal(err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return nil, apperrors.Internal(err)
		}
	}

	for i, row := range rows {
		values := []interface{}{
			row.CaseID,
			row.VictimName,
			row.Document,
			row.AreaName,
			string(row.Status),
			row.Motive,
			row.CreatedAt.Format("2006-01-02 15:04"),
			row.UpdatedAt.Format("2006-01-02 15:04"),
			row.Transitions,
		}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, apperrors.Internal(err)
			}
		}
	}

	if err := f.SetColWidth(sheetName, "B", "F", 30); err != nil {
		return nil, apperrors.Internal(err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, apperrors.Wrap(err, fmt.Sprintf("failed to render %d report rows", len(rows)))
	}
	return buf, nil
}
