package formatter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/tealeg/xlsx/v2"

	"github.com/fentz26/leaddesk/internal/models"
)

// FormatXLSX is only available for reports.
const FormatXLSX = "xlsx"

// ReportContentType returns the MIME type for a report format.
func ReportContentType(format string) string {
	switch strings.ToLower(format) {
	case FormatCSV:
		return "text/csv"
	case FormatJSON:
		return "application/json"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// ReportFilename names a downloaded report, e.g. calls_report_2026-10-01_2026-10-18.xlsx.
func ReportFilename(r *models.Report, format string) string {
	if format == "" {
		format = FormatXLSX
	}
	return fmt.Sprintf("%s_report_%s_%s.%s", r.Kind, r.Start, r.End, strings.ToLower(format))
}

// WriteReport writes r to w as xlsx (the default), csv or json.
func WriteReport(w io.Writer, r *models.Report, format string) error {
	switch strings.ToLower(format) {
	case "", FormatXLSX:
		return writeReportXLSX(w, r)
	case FormatCSV:
		cw := csv.NewWriter(w)
		cw.Write(r.Columns)
		cw.WriteAll(r.Rows)
		return cw.Error()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	return fmt.Errorf("unknown report format %q (want xlsx, csv or json)", format)
}

func writeReportXLSX(w io.Writer, r *models.Report) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(r.Kind)
	if err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}
	addRow(sheet, r.Columns)
	for _, row := range r.Rows {
		addRow(sheet, row)
	}
	return f.Write(w)
}

func addRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}
