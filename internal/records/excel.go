// File: internal/records/excel.go
package records

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/wjleong/zxgkquery/internal/config"
)

// exportHeader is the fixed column set of the result spreadsheet.
var exportHeader = []interface{}{"姓名", "身份证号码", "查询时间", "状态", "案件数", "详情"}

// ExcelSource reads query records from an .xlsx file, locating the ID and
// name columns by their header text.
type ExcelSource struct {
	cfg    config.ExcelConfig
	logger *zap.Logger
}

// NewExcelSource creates a source with the configured column headers.
func NewExcelSource(cfg config.ExcelConfig, logger *zap.Logger) *ExcelSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExcelSource{cfg: cfg, logger: logger.Named("records")}
}

// Load parses the first sheet of path. Blank rows are skipped, rows with a
// malformed ID are skipped with a warning, and an empty yield is ErrNoRecords.
func (s *ExcelSource) Load(path string) ([]QueryRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening input file %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("input file %s has no sheets", path)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, ErrNoRecords
	}

	idCol, nameCol := -1, -1
	for i, header := range rows[0] {
		switch strings.TrimSpace(header) {
		case s.cfg.IDColumn:
			idCol = i
		case s.cfg.NameColumn:
			nameCol = i
		}
	}
	if idCol < 0 || nameCol < 0 {
		return nil, fmt.Errorf("input file %s is missing the %q or %q column",
			path, s.cfg.IDColumn, s.cfg.NameColumn)
	}

	var out []QueryRecord
	for i, row := range rows[1:] {
		excelRow := i + 2
		id := strings.TrimSpace(cell(row, idCol))
		name := strings.TrimSpace(cell(row, nameCol))
		if id == "" && name == "" {
			continue
		}
		if !ValidID(id) {
			s.logger.Warn("Skipping row with malformed ID number.",
				zap.Int("row", excelRow), zap.Int("id_length", len(id)))
			continue
		}
		out = append(out, QueryRecord{IDNumber: id, Name: name, Row: excelRow})
	}

	if len(out) == 0 {
		return nil, ErrNoRecords
	}
	s.logger.Info("Input records loaded.",
		zap.String("path", path), zap.Int("count", len(out)))
	return out, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// ExcelSink writes query results to an .xlsx file.
type ExcelSink struct {
	logger *zap.Logger
}

// NewExcelSink creates a sink.
func NewExcelSink(logger *zap.Logger) *ExcelSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExcelSink{logger: logger.Named("records")}
}

// DefaultExportPath builds a timestamped result filename under dir.
func DefaultExportPath(dir string) string {
	return filepath.Join(dir, fmt.Sprintf("查询结果_%s.xlsx", time.Now().Format("20060102_150405")))
}

// Export writes results (possibly partial) to path, creating parent
// directories as needed.
func (s *ExcelSink) Export(results []QueryResult, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating export directory: %w", err)
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	if err := f.SetSheetRow(sheet, "A1", &exportHeader); err != nil {
		return fmt.Errorf("writing export header: %w", err)
	}

	for i, r := range results {
		status := "失败"
		if r.Success {
			status = "成功"
		}
		row := []interface{}{
			r.Record.Name,
			r.Record.IDNumber,
			r.QueriedAt.Format("2006-01-02 15:04:05"),
			status,
			r.CaseCount,
			r.Detail,
		}
		cellRef, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("addressing export row %d: %w", i+2, err)
		}
		if err := f.SetSheetRow(sheet, cellRef, &row); err != nil {
			return fmt.Errorf("writing export row %d: %w", i+2, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving export file %s: %w", path, err)
	}
	s.logger.Info("Results exported.",
		zap.String("path", path), zap.Int("count", len(results)))
	return nil
}
