package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/cavim/platform/internal/case/domain"
)

func sampleRows() []Row {
	created := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	return []Row{
		{
			CaseID:      1,
			VictimName:  "Ana López",
			Document:    "001-1234567-8",
			AreaName:    "Trabajo Social",
			Status:      domain.StatusCompleted,
			Motive:      "violencia física",
			CreatedAt:   created,
			UpdatedAt:   created.Add(72 * time.Hour),
			Transitions: 4,
		},
		{
			CaseID:      2,
			VictimName:  "Rosa Pérez",
			Document:    "",
			AreaName:    "Legal",
			Status:      domain.StatusCompleted,
			Motive:      "amenazas",
			CreatedAt:   created,
			UpdatedAt:   created,
			Transitions: 5,
		},
	}
}

func TestBuildExcel(t *testing.T) {
	buf, err := BuildExcel(sampleRows())
	require.NoError(t, err)
	require.NotZero(t, buf.Len())

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetName}, f.GetSheetList())

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus two data rows")

	assert.Equal(t, excelHeaders, rows[0][:len(excelHeaders)])
	assert.Equal(t, "Ana López", rows[1][1])
	assert.Equal(t, "Trabajo Social", rows[1][3])
	assert.Equal(t, "completado", rows[1][4])
	assert.Equal(t, "Rosa Pérez", rows[2][1])
}

func TestBuildExcelEmpty(t *testing.T) {
	buf, err := BuildExcel(nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 1, "header only")
}
