// File: internal/records/excel_test.go
package records

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/wjleong/zxgkquery/internal/config"
)

func writeInputFile(t *testing.T, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow(sheet, cellRef, &r))
	}

	path := filepath.Join(t.TempDir(), "input.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func testExcelConfig() config.ExcelConfig {
	return config.ExcelConfig{IDColumn: "身份证号码", NameColumn: "姓名"}
}

func TestExcelSourceLoad(t *testing.T) {
	path := writeInputFile(t, [][]interface{}{
		{"姓名", "身份证号码", "备注"},
		{"张三", "110101199001011234", "x"},
		{"", "", ""}, // blank row
		{"李四", "11010119900101123X", ""},
		{"王五", "12345", ""}, // malformed ID
	})

	src := NewExcelSource(testExcelConfig(), zap.NewNop())
	recs, err := src.Load(path)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "张三", recs[0].Name)
	assert.Equal(t, "110101199001011234", recs[0].IDNumber)
	assert.Equal(t, 2, recs[0].Row)
	assert.Equal(t, "11010119900101123X", recs[1].IDNumber)
	assert.Equal(t, 4, recs[1].Row)
}

func TestExcelSourceLoadRejectsMissingColumns(t *testing.T) {
	path := writeInputFile(t, [][]interface{}{
		{"name", "id"},
		{"张三", "110101199001011234"},
	})

	src := NewExcelSource(testExcelConfig(), zap.NewNop())
	_, err := src.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "身份证号码")
}

func TestExcelSourceLoadEmptyIsFatal(t *testing.T) {
	path := writeInputFile(t, [][]interface{}{
		{"姓名", "身份证号码"},
		{"王五", "12345"}, // only a malformed row
	})

	src := NewExcelSource(testExcelConfig(), zap.NewNop())
	_, err := src.Load(path)
	assert.ErrorIs(t, err, ErrNoRecords)
}

func TestExcelSourceLoadMissingFile(t *testing.T) {
	src := NewExcelSource(testExcelConfig(), zap.NewNop())
	_, err := src.Load(filepath.Join(t.TempDir(), "nope.xlsx"))
	require.Error(t, err)
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID("110101199001011234"))
	assert.True(t, ValidID("11010119900101123X"))
	assert.True(t, ValidID("11010119900101123x"))
	assert.False(t, ValidID("1101011990010112"))
	assert.False(t, ValidID("1101011990010112345"))
	assert.False(t, ValidID("11010119900101123Y"))
	assert.False(t, ValidID(""))
}

func TestExcelSinkExportRoundTrip(t *testing.T) {
	results := []QueryResult{
		{
			Record:    QueryRecord{Name: "张三", IDNumber: "110101199001011234", Row: 2},
			QueriedAt: time.Date(2026, 8, 28, 10, 30, 0, 0, time.Local),
			Success:   true,
			CaseCount: 7,
			Detail:    "enforcement records found",
		},
		{
			Record:  QueryRecord{Name: "李四", IDNumber: "11010119900101123X", Row: 3},
			Success: false,
			Detail:  "captcha recognition failed",
		},
	}

	path := filepath.Join(t.TempDir(), "out", "results.xlsx")
	sink := NewExcelSink(zap.NewNop())
	require.NoError(t, sink.Export(results, path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "姓名", rows[0][0])
	assert.Equal(t, "张三", rows[1][0])
	assert.Equal(t, "成功", rows[1][3])
	assert.Equal(t, "7", rows[1][4])
	assert.Equal(t, "失败", rows[2][3])
	assert.Equal(t, "captcha recognition failed", rows[2][5])
}

func TestDefaultExportPathIsTimestamped(t *testing.T) {
	path := DefaultExportPath("out")
	assert.Equal(t, "out", filepath.Dir(path))
	assert.Contains(t, filepath.Base(path), "查询结果_")
	assert.Contains(t, path, ".xlsx")
}
