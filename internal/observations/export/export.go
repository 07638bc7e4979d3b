package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	observations "signalwatch/internal/observations/domain"
)

// Supported export formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
)

// ErrUnsupportedFormat is returned for an unknown export format.
var ErrUnsupportedFormat = errors.New("export: unsupported format")

// Report is a history window prepared for export.
type Report struct {
	Signal       string
	From         time.Time
	To           time.Time
	GeneratedAt  time.Time
	Observations []observations.Observation
}

// Summary counts observations per state.
func (r Report) Summary() map[observations.SignalState]int {
	counts := make(map[observations.SignalState]int, len(observations.States))
	for _, state := range observations.States {
		counts[state] = 0
	}
	for _, obs := range r.Observations {
		counts[obs.State]++
	}
	return counts
}

// ContentType returns the MIME type for format.
func ContentType(format string) string {
	switch format {
	case FormatCSV:
		return "text/csv"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// Build renders the report in the requested format.
func Build(format string, report Report) ([]byte, error) {
	switch format {
	case FormatCSV:
		return BuildCSV(report)
	case FormatXLSX:
		return BuildXLSX(report)
	case FormatPDF:
		return BuildPDF(report)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

var header = []string{"sequence_id", "timestamp", "state", "confidence", "source", "detail"}

func row(obs observations.Observation) []string {
	return []string{
		strconv.FormatInt(obs.SequenceID, 10),
		obs.Timestamp.UTC().Format(time.RFC3339Nano),
		string(obs.State),
		strconv.FormatFloat(obs.Confidence, 'f', 3, 64),
		obs.Source,
		obs.Detail,
	}
}

// BuildCSV renders one row per observation, oldest first.
func BuildCSV(report Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, obs := range report.Observations {
		if err := w.Write(row(obs)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildXLSX renders a summary sheet and an observations sheet.
func BuildXLSX(report Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	itemsSheet := "observations"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Signal Observation History")
	_ = f.SetCellValue(summarySheet, "A3", "Signal")
	_ = f.SetCellValue(summarySheet, "B3", signalName(report.Signal))
	_ = f.SetCellValue(summarySheet, "A4", "From")
	_ = f.SetCellValue(summarySheet, "B4", report.From.UTC().Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A5", "To")
	_ = f.SetCellValue(summarySheet, "B5", report.To.UTC().Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A6", "Observations")
	_ = f.SetCellValue(summarySheet, "B6", len(report.Observations))
	summary := report.Summary()
	for i, state := range observations.States {
		r := 8 + i
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", r), state.Label())
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", r), summary[state])
	}

	for i, title := range header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(itemsSheet, cell, title)
	}
	for i, obs := range report.Observations {
		r := i + 2
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("A%d", r), obs.SequenceID)
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("B%d", r), obs.Timestamp.UTC().Format(time.RFC3339))
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("C%d", r), string(obs.State))
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("D%d", r), obs.Confidence)
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("E%d", r), obs.Source)
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("F%d", r), obs.Detail)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildPDF renders a summary page followed by the observation table.
func BuildPDF(report Report) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Signal Observation History")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Signal: %s", signalName(report.Signal)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("From: %s", report.From.UTC().Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("To: %s", report.To.UTC().Format(time.RFC3339)))
	pdf.Ln(5)
	if !report.GeneratedAt.IsZero() {
		pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", report.GeneratedAt.UTC().Format(time.RFC3339)))
		pdf.Ln(5)
	}
	summary := report.Summary()
	pdf.Ln(4)
	for _, state := range observations.States {
		pdf.Cell(0, 6, fmt.Sprintf("%s: %d", state.Label(), summary[state]))
		pdf.Ln(5)
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(20, 6, "Seq", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Timestamp", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "State", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Confidence", "1", 0, "C", false, 0, "")
	pdf.CellFormat(65, 6, "Detail", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, obs := range report.Observations {
		pdf.CellFormat(20, 6, strconv.FormatInt(obs.SequenceID, 10), "1", 0, "R", false, 0, "")
		pdf.CellFormat(50, 6, obs.Timestamp.UTC().Format(time.RFC3339), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, obs.State.Label(), "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%.2f", obs.Confidence), "1", 0, "R", false, 0, "")
		pdf.CellFormat(65, 6, truncate(obs.Detail, 40), "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func signalName(name string) string {
	if name == "" {
		return "traffic signal"
	}
	return name
}

func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max-3]) + "..."
}
