package ingest

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"goharmonic/domain/catalog"
	"goharmonic/internal/errors"
)

func workbook(t *testing.T, rows ...[]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestParseSheet(t *testing.T) {
	buf := workbook(t,
		[]interface{}{"KIC", "numax", "Delnu"},
		[]interface{}{10001234, 120.5, 10.25},
		[]interface{}{10001235, 80, 7.5},
	)

	set, err := ParseSheet("table1", "KIC", "", buf)
	require.NoError(t, err)
	require.Equal(t, 2, set.Len())

	assert.Equal(t, catalog.IntValue(10001234), set.Records[0]["KIC"])
	assert.Equal(t, catalog.FloatValue(120.5), set.Records[0]["numax"])
	assert.Equal(t, catalog.IntValue(80), set.Records[1]["numax"])
}

func TestParseSheet_HeaderOnly(t *testing.T) {
	buf := workbook(t, []interface{}{"KIC", "numax"})

	_, err := ParseSheet("table1", "KIC", "", buf)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeSourceUnavailable))
}

func TestParseSheet_UnknownSheet(t *testing.T) {
	buf := workbook(t, []interface{}{"KIC"}, []interface{}{1})

	_, err := ParseSheet("table1", "KIC", "Missing", buf)
	require.Error(t, err)
}
