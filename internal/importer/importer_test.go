package importer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Leads")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "leads.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX(t *testing.T) {
	path := createTestXLSX(t, [][]string{
		{"Name", "Phone", "Property"},
		{"  ravi   kumar ", "9876543210.0", "2BHK"},
		{"ANITA SHAH", "9123456789"},
		{"", "9000000000"},
		{"No Phone", ""},
	})

	res, err := ReadXLSX(path, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, 2, res.Skipped)

	assert.Equal(t, Row{Name: "Ravi Kumar", Phone: "9876543210", PropertyType: "2BHK"}, res.Rows[0])
	assert.Equal(t, Row{Name: "Anita Shah", Phone: "9123456789"}, res.Rows[1])
}

func TestReadXLSX_SheetOutOfRange(t *testing.T) {
	path := createTestXLSX(t, [][]string{{"Name", "Phone"}})
	_, err := ReadXLSX(path, Options{SheetIndex: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestReadXLSX_MissingFile(t *testing.T) {
	_, err := ReadXLSX(filepath.Join(t.TempDir(), "nope.xlsx"), DefaultOptions())
	require.Error(t, err)
}

func TestReadCSV(t *testing.T) {
	input := "name,phone,type\nasha rao,98450 12345,villa\nshort\n,123\nmohan,9988776655.0\n"

	res, err := ReadCSV(strings.NewReader(input), DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, Row{Name: "Asha Rao", Phone: "9845012345", PropertyType: "villa"}, res.Rows[0])
	assert.Equal(t, "9988776655", res.Rows[1].Phone)

	leads := res.NewLeads()
	require.Len(t, leads, 2)
	assert.Equal(t, "Mohan", leads[1].Name)
}

func TestReadCSV_NoHeader(t *testing.T) {
	res, err := ReadCSV(strings.NewReader("a,1\nb,2\n"), Options{})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "leads.CSV")
	require.NoError(t, os.WriteFile(csvPath, []byte("Name,Phone\nx,1\n"), 0o644))

	res, err := ReadFile(csvPath, DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, res.Rows, 1)

	_, err = ReadFile(filepath.Join(dir, "leads.pdf"), DefaultOptions())
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestReadUpload(t *testing.T) {
	path := createTestXLSX(t, [][]string{{"Name", "Phone"}, {"priya", "9000011111"}})
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	res, err := ReadUpload("march.xlsx", data, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "Priya", res.Rows[0].Name)

	res, err = ReadUpload("march.csv", []byte("Name,Phone\nz,5\n"), DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, res.Rows, 1)

	_, err = ReadUpload("march.txt", nil, DefaultOptions())
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestNormalize(t *testing.T) {
	tests := map[string]struct {
		fn   func(string) string
		in   string
		want string
	}{
		"name collapse":      {fn: NormalizeName, in: "  a   b  ", want: "A B"},
		"name upper":         {fn: NormalizeName, in: "JOHN DOE", want: "John Doe"},
		"name blank":         {fn: NormalizeName, in: "   ", want: ""},
		"phone float suffix": {fn: NormalizePhone, in: "9876543210.0", want: "9876543210"},
		"phone spaces":       {fn: NormalizePhone, in: " 98765 43210 ", want: "9876543210"},
		"phone plain":        {fn: NormalizePhone, in: "+919876543210", want: "+919876543210"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.fn(tc.in))
		})
	}
}
