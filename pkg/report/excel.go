package report

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExcelGenerator renders a Data snapshot as an .xlsx workbook. Grounded on
// services/report-svc/internal/generator/excel.go's sheet-per-section,
// cellAddr/headerStyle pattern.
type ExcelGenerator struct{}

func NewExcelGenerator() *ExcelGenerator { return &ExcelGenerator{} }

func (g *ExcelGenerator) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (g *ExcelGenerator) Generate(data *Data) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"2C3E50"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	g.writeStatusSheet(f, data, headerStyle)
	g.writeInvalidationSheet(f, data, headerStyle)
	g.writeDispatchSheet(f, data, headerStyle)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("report: excel write failed: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *ExcelGenerator) writeStatusSheet(f *excelize.File, data *Data, headerStyle int) {
	sheet := "Status"
	f.NewSheet(sheet)

	row := 1
	f.SetCellValue(sheet, cellAddr("A", row), "Rcache Control Plane Status")
	f.MergeCell(sheet, cellAddr("A", row), cellAddr("B", row))
	row++
	f.SetCellValue(sheet, cellAddr("A", row), "Generated")
	f.SetCellValue(sheet, cellAddr("B", row), data.GeneratedAt.Format("2006-01-02 15:04:05"))
	row += 2

	s := data.Status
	rows := []struct {
		label string
		value any
	}{
		{"Up Time", formatDuration(s.UpTime)},
		{"DB Connected", s.DBConnected},
		{"All Tasks Running", s.AllTasksRunning},
		{"Invalidation Enabled", s.InvalidationEnabled},
		{"Precomputation Enabled", s.PrecomputationEnabled},
		{"Update Enabled", s.UpdateEnabled},
		{"Precomputation Quota", s.PrecomputationQuota},
		{"Valid Entries", s.NumValidEntries},
		{"Invalid Entries", s.NumInvalidEntries},
		{"Update Queue Length", s.UpdateQueueLen},
		{"Update Count", s.UpdateCount},
		{"Avg Update Write Rate", formatFloat(s.AvgUpdateWriteRate, 3)},
		{"Avg Update Queue Length", formatFloat(s.AvgUpdateQueueLen, 3)},
		{"Active Precomputations", s.ActivePrecomputations},
		{"Avg Precomputation Rate", formatFloat(s.AvgPrecomputationRate, 3)},
		{"Avg Schedule Lag (s)", formatFloat(s.AvgScheduleLag, 3)},
	}
	f.SetCellStyle(sheet, cellAddr("A", row), cellAddr("B", row), headerStyle)
	f.SetCellValue(sheet, cellAddr("A", row), "Metric")
	f.SetCellValue(sheet, cellAddr("B", row), "Value")
	row++
	for _, r := range rows {
		f.SetCellValue(sheet, cellAddr("A", row), r.label)
		f.SetCellValue(sheet, cellAddr("B", row), r.value)
		row++
	}
	row++

	if len(data.Switches) > 0 {
		f.SetCellValue(sheet, cellAddr("A", row), "Switches")
		f.SetCellStyle(sheet, cellAddr("A", row), cellAddr("B", row), headerStyle)
		row++
		for _, sw := range data.Switches {
			f.SetCellValue(sheet, cellAddr("A", row), sw.Name)
			f.SetCellValue(sheet, cellAddr("B", row), sw.Enabled)
			row++
		}
	}

	f.SetColWidth(sheet, "A", "B", 24)
}

func (g *ExcelGenerator) writeInvalidationSheet(f *excelize.File, data *Data, headerStyle int) {
	if len(data.RecentInvalid) == 0 {
		return
	}
	sheet := "Invalidations"
	f.NewSheet(sheet)

	headers := []string{"Timestamp", "Scope", "Count"}
	for i, h := range headers {
		f.SetCellValue(sheet, cellAddr(string(rune('A'+i)), 1), h)
	}
	f.SetCellStyle(sheet, "A1", "C1", headerStyle)

	for i, e := range data.RecentInvalid {
		row := i + 2
		f.SetCellValue(sheet, cellAddr("A", row), e.Timestamp.Format("2006-01-02 15:04:05"))
		f.SetCellValue(sheet, cellAddr("B", row), e.Scope)
		f.SetCellValue(sheet, cellAddr("C", row), e.Count)
	}
	f.SetColWidth(sheet, "A", "C", 20)
}

func (g *ExcelGenerator) writeDispatchSheet(f *excelize.File, data *Data, headerStyle int) {
	if len(data.DispatchStats) == 0 {
		return
	}
	sheet := "Dispatch History"
	f.NewSheet(sheet)

	headers := []string{"Ruleset", "Total", "Avg Duration (ms)", "Completed", "Timed Out", "Error"}
	for i, h := range headers {
		f.SetCellValue(sheet, cellAddr(string(rune('A'+i)), 1), h)
	}
	f.SetCellStyle(sheet, "A1", "F1", headerStyle)

	row := 2
	for ruleset, stats := range data.DispatchStats {
		f.SetCellValue(sheet, cellAddr("A", row), ruleset)
		f.SetCellValue(sheet, cellAddr("B", row), stats.Total)
		f.SetCellValue(sheet, cellAddr("C", row), formatFloat(stats.AverageDurationMs, 2))
		f.SetCellValue(sheet, cellAddr("D", row), stats.CountByOutcome["COMPLETED"])
		f.SetCellValue(sheet, cellAddr("E", row), stats.CountByOutcome["TIMED_OUT"])
		f.SetCellValue(sheet, cellAddr("F", row), stats.CountByOutcome["ERROR"])
		row++
	}
	f.SetColWidth(sheet, "A", "F", 18)
}

func cellAddr(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
