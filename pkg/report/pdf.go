package report

import (
	"fmt"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/border"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// PDFGenerator renders a Data snapshot as a one-page pdf brief. Grounded
// on services/report-svc/internal/generator/pdf.go's maroto section/
// metric-card/table helpers.
type PDFGenerator struct{}

func NewPDFGenerator() *PDFGenerator { return &PDFGenerator{} }

func (g *PDFGenerator) ContentType() string { return "application/pdf" }

var (
	primaryColor   = &props.Color{Red: 52, Green: 152, Blue: 219}
	headerBgColor  = &props.Color{Red: 44, Green: 62, Blue: 80}
	successColor   = &props.Color{Red: 39, Green: 174, Blue: 96}
	dangerColor    = &props.Color{Red: 231, Green: 76, Blue: 60}
	lightGrayColor = &props.Color{Red: 236, Green: 240, Blue: 241}
	darkGrayColor  = &props.Color{Red: 127, Green: 140, Blue: 141}

	titleStyle = props.Text{Size: 22, Style: fontstyle.Bold, Align: align.Center, Color: headerBgColor}
	h2Style    = props.Text{Size: 14, Style: fontstyle.Bold, Color: headerBgColor, Top: 4}
	smallStyle = props.Text{Size: 8, Color: darkGrayColor}
	boldStyle  = props.Text{Size: 10, Style: fontstyle.Bold}
	normStyle  = props.Text{Size: 10}

	metricValueStyle = props.Text{Size: 18, Style: fontstyle.Bold, Align: align.Center, Color: primaryColor}
	metricLabelStyle = props.Text{Size: 9, Align: align.Center, Color: darkGrayColor}

	tableHeaderCellStyle = &props.Cell{BackgroundColor: primaryColor}
	tableHeaderTextStyle = props.Text{Size: 9, Style: fontstyle.Bold, Color: &props.Color{Red: 255, Green: 255, Blue: 255}, Align: align.Center}
	tableCellStyle       = &props.Cell{BorderType: border.Bottom, BorderColor: lightGrayColor}
	tableCellTextStyle   = props.Text{Size: 9, Align: align.Center}
)

func (g *PDFGenerator) Generate(data *Data) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber().
		WithLeftMargin(15).
		WithTopMargin(15).
		WithRightMargin(15).
		Build()

	m := maroto.New(cfg)

	g.addHeader(m, data)
	g.addStatusSection(m, data)
	if len(data.Switches) > 0 {
		g.addSwitchesSection(m, data)
	}
	if len(data.RecentInvalid) > 0 {
		g.addInvalidationSection(m, data)
	}
	if len(data.DispatchStats) > 0 {
		g.addDispatchSection(m, data)
	}
	g.addFooter(m)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("report: pdf generate failed: %w", err)
	}
	return doc.GetBytes(), nil
}

func (g *PDFGenerator) addHeader(m core.Maroto, data *Data) {
	m.AddRow(14, text.NewCol(12, "Rcache Control Plane Status", titleStyle))
	m.AddRow(4, line.NewCol(12))
	m.AddRow(6, text.NewCol(12, fmt.Sprintf("Generated: %s", data.GeneratedAt.Format("2006-01-02 15:04:05")),
		props.Text{Size: 8, Color: darkGrayColor, Align: align.Right}))
	m.AddRow(6)
}

func (g *PDFGenerator) addStatusSection(m core.Maroto, data *Data) {
	s := data.Status
	g.addSection(m, "Operational Summary")

	m.AddRow(18,
		col.New(4).Add(text.New(formatDuration(s.UpTime), metricValueStyle), text.New("Up Time", metricLabelStyle)),
		col.New(4).Add(text.New(fmt.Sprintf("%d", s.NumValidEntries), metricValueStyle), text.New("Valid Entries", metricLabelStyle)),
		col.New(4).Add(text.New(fmt.Sprintf("%d", s.NumInvalidEntries), metricValueStyle), text.New("Invalid Entries", metricLabelStyle)),
	)

	m.AddRow(6,
		text.NewCol(6, "DB Connected", boldStyle),
		text.NewCol(6, fmt.Sprintf("%v", s.DBConnected), normStyle),
	)
	m.AddRow(6,
		text.NewCol(6, "All Tasks Running", boldStyle),
		text.NewCol(6, fmt.Sprintf("%v", s.AllTasksRunning), normStyle),
	)
	m.AddRow(6,
		text.NewCol(6, "Precomputation Quota", boldStyle),
		text.NewCol(6, fmt.Sprintf("%d", s.PrecomputationQuota), normStyle),
	)
	m.AddRow(6,
		text.NewCol(6, "Avg Update Write Rate", boldStyle),
		text.NewCol(6, formatFloat(s.AvgUpdateWriteRate, 3), normStyle),
	)
	m.AddRow(6,
		text.NewCol(6, "Avg Precomputation Rate", boldStyle),
		text.NewCol(6, formatFloat(s.AvgPrecomputationRate, 3), normStyle),
	)
	m.AddRow(6,
		text.NewCol(6, "Avg Schedule Lag (s)", boldStyle),
		text.NewCol(6, formatFloat(s.AvgScheduleLag, 3), normStyle),
	)
}

func (g *PDFGenerator) addSwitchesSection(m core.Maroto, data *Data) {
	g.addSection(m, "Switches")
	for _, sw := range data.Switches {
		valueStyle := tableCellTextStyle
		if sw.Enabled {
			valueStyle.Color = successColor
		} else {
			valueStyle.Color = dangerColor
		}
		state := "disabled"
		if sw.Enabled {
			state = "enabled"
		}
		m.AddRow(6,
			text.NewCol(8, sw.Name, normStyle),
			text.NewCol(4, state, valueStyle),
		)
	}
}

func (g *PDFGenerator) addInvalidationSection(m core.Maroto, data *Data) {
	g.addSection(m, "Recent Invalidations")
	m.AddRow(8,
		text.NewCol(5, "Timestamp", tableHeaderTextStyle).WithStyle(tableHeaderCellStyle),
		text.NewCol(4, "Scope", tableHeaderTextStyle).WithStyle(tableHeaderCellStyle),
		text.NewCol(3, "Count", tableHeaderTextStyle).WithStyle(tableHeaderCellStyle),
	)

	maxRows := 25
	events := data.RecentInvalid
	if len(events) > maxRows {
		events = events[:maxRows]
	}
	for _, e := range events {
		m.AddRow(6,
			text.NewCol(5, e.Timestamp.Format("2006-01-02 15:04:05"), tableCellTextStyle).WithStyle(tableCellStyle),
			text.NewCol(4, e.Scope, tableCellTextStyle).WithStyle(tableCellStyle),
			text.NewCol(3, fmt.Sprintf("%d", e.Count), tableCellTextStyle).WithStyle(tableCellStyle),
		)
	}
	if len(data.RecentInvalid) > maxRows {
		m.AddRow(6, text.NewCol(12, fmt.Sprintf("... and %d more", len(data.RecentInvalid)-maxRows), smallStyle))
	}
}

func (g *PDFGenerator) addDispatchSection(m core.Maroto, data *Data) {
	g.addSection(m, "Dispatch History by Ruleset")
	m.AddRow(8,
		text.NewCol(4, "Ruleset", tableHeaderTextStyle).WithStyle(tableHeaderCellStyle),
		text.NewCol(2, "Total", tableHeaderTextStyle).WithStyle(tableHeaderCellStyle),
		text.NewCol(3, "Avg Duration", tableHeaderTextStyle).WithStyle(tableHeaderCellStyle),
		text.NewCol(3, "Timed Out", tableHeaderTextStyle).WithStyle(tableHeaderCellStyle),
	)
	for ruleset, stats := range data.DispatchStats {
		m.AddRow(6,
			text.NewCol(4, ruleset, tableCellTextStyle).WithStyle(tableCellStyle),
			text.NewCol(2, fmt.Sprintf("%d", stats.Total), tableCellTextStyle).WithStyle(tableCellStyle),
			text.NewCol(3, fmt.Sprintf("%.2f ms", stats.AverageDurationMs), tableCellTextStyle).WithStyle(tableCellStyle),
			text.NewCol(3, fmt.Sprintf("%d", stats.CountByOutcome["TIMED_OUT"]), tableCellTextStyle).WithStyle(tableCellStyle),
		)
	}
}

func (g *PDFGenerator) addSection(m core.Maroto, title string) {
	m.AddRow(9, text.NewCol(12, title, h2Style))
	m.AddRow(2, line.NewCol(12, props.Line{Color: primaryColor}))
	m.AddRow(3)
}

func (g *PDFGenerator) addFooter(m core.Maroto) {
	m.AddRow(8)
	m.AddRow(2, line.NewCol(12, props.Line{Color: lightGrayColor}))
	m.AddRow(5, text.NewCol(12,
		fmt.Sprintf("Generated by afc-coordinator | %s", time.Now().Format("2006-01-02 15:04:05")),
		props.Text{Size: 8, Color: darkGrayColor, Align: align.Center}))
}
