package fetcher

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "census.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX_HeaderAndRows(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"G04": {
			{"SA1_CODE_2021", "Age_0_4_yr_M", "Age_0_4_yr_F"},
			{"10102100701", "12", "9"},
			{"10102100702", "3", "4"},
		},
	})

	header, rows, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"SA1_CODE_2021", "Age_0_4_yr_M", "Age_0_4_yr_F"}, header)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"10102100701", "12", "9"}, rows[0])
}

func TestReadXLSX_SkipTitleRowsAndBlanks(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"G04": {
			{"Census 2021 G04 Age by sex"},
			{"SA1_CODE_2021", "Age_0_4_yr_M", ""},
			{"", "", ""},
			{"10102100701", "12"},
		},
	})

	header, rows, err := ReadXLSX(path, XLSXOptions{SkipRows: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"SA1_CODE_2021", "Age_0_4_yr_M"}, header)
	assert.Equal(t, [][]string{{"10102100701", "12"}}, rows)
}

func TestReadXLSX_SheetByName(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Notes": {{"ignore me"}},
		"Data":  {{"SA1_CODE_2021"}, {"1"}},
	})

	header, rows, err := ReadXLSX(path, XLSXOptions{SheetName: "Data"})
	require.NoError(t, err)
	assert.Equal(t, []string{"SA1_CODE_2021"}, header)
	assert.Len(t, rows, 1)
}

func TestReadXLSX_Errors(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Data": {{"a"}}})

	_, _, err := ReadXLSX(path, XLSXOptions{SheetName: "Missing"})
	assert.ErrorContains(t, err, `sheet "Missing" not found`)

	_, _, err = ReadXLSX(path, XLSXOptions{SheetIndex: 3})
	assert.ErrorContains(t, err, "out of range")

	_, _, err = ReadXLSX(filepath.Join(t.TempDir(), "nope.xlsx"), XLSXOptions{})
	assert.ErrorContains(t, err, "xlsx: open file")

	empty := createTestXLSX(t, map[string][][]string{"Data": {}})
	_, _, err = ReadXLSX(empty, XLSXOptions{})
	assert.ErrorContains(t, err, "no header row")
}
