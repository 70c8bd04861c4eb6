// Package importer reads lead batches from spreadsheet uploads.
//
// Columns are positional: name, phone and an optional property type. The
// first row is treated as a header.
package importer

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/fentz26/leaddesk/internal/models"
)

// ErrUnsupportedFormat is returned for files that are neither .xlsx nor .csv.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Options configures the readers.
type Options struct {
	SheetIndex int // xlsx only; default 0
	SkipRows   int // header rows to skip
}

// DefaultOptions skips a single header row on the first sheet.
func DefaultOptions() Options {
	return Options{SkipRows: 1}
}

// Row is one usable lead from the file.
type Row struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	PropertyType string `json:"property_type,omitempty"`
}

// Result holds the rows read and how many were dropped.
type Result struct {
	Rows    []Row `json:"rows"`
	Skipped int   `json:"skipped"`
}

// NewLeads converts the rows for batch creation.
func (r *Result) NewLeads() []models.NewLead {
	out := make([]models.NewLead, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = models.NewLead{Name: row.Name, Phone: row.Phone, PropertyType: row.PropertyType}
	}
	return out
}

// ReadFile dispatches on the file extension.
func ReadFile(path string, opts Options) (*Result, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadXLSX(path, opts)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "csv: open file")
		}
		defer f.Close()
		return ReadCSV(f, opts)
	}
	return nil, eris.Wrapf(ErrUnsupportedFormat, "importer: %s", filepath.Base(path))
}

// ReadUpload parses an uploaded file's contents, using name for the format.
func ReadUpload(name string, data []byte, opts Options) (*Result, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		f, err := xlsx.OpenBinary(data)
		if err != nil {
			return nil, eris.Wrap(err, "xlsx: open upload")
		}
		return readWorkbook(f, opts)
	case ".csv":
		return ReadCSV(strings.NewReader(string(data)), opts)
	}
	return nil, eris.Wrapf(ErrUnsupportedFormat, "importer: %s", name)
}

// ReadXLSX reads leads from an XLSX file.
func ReadXLSX(path string, opts Options) (*Result, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	return readWorkbook(f, opts)
}

func readWorkbook(f *xlsx.File, opts Options) (*Result, error) {
	if opts.SheetIndex < 0 || opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	sheet := f.Sheets[opts.SheetIndex]

	res := &Result{}
	for i, row := range sheet.Rows {
		if i < opts.SkipRows {
			continue
		}
		if row == nil {
			res.Skipped++
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		res.add(cells)
	}
	return res, nil
}

// ReadCSV reads leads from CSV. Rows may have differing column counts.
func ReadCSV(r io.Reader, opts Options) (*Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	res := &Result{}
	for i := 0; ; i++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "csv: read row %d", i+1)
		}
		if i < opts.SkipRows {
			continue
		}
		res.add(record)
	}
	return res, nil
}

func (r *Result) add(cells []string) {
	row, ok := parseRow(cells)
	if !ok {
		r.Skipped++
		return
	}
	r.Rows = append(r.Rows, row)
}

func parseRow(cells []string) (Row, bool) {
	if len(cells) < 2 {
		return Row{}, false
	}
	name := NormalizeName(cells[0])
	phone := NormalizePhone(cells[1])
	if name == "" || phone == "" {
		return Row{}, false
	}
	row := Row{Name: name, Phone: phone}
	if len(cells) > 2 {
		row.PropertyType = strings.TrimSpace(cells[2])
	}
	return row, true
}

// NormalizeName collapses whitespace and title-cases the name.
func NormalizeName(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	// Casers keep state, so each call gets its own.
	return cases.Title(language.Und).String(s)
}

// NormalizePhone trims the number and drops the ".0" suffix spreadsheets
// add to numeric cells.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ".0")
	return strings.ReplaceAll(s, " ", "")
}
