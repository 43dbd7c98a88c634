package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goharmonic/domain/catalog"
	"goharmonic/internal/config"
	"goharmonic/internal/errors"
)

func TestFileReader_MissingFile(t *testing.T) {
	r := NewFileReader(config.SourceConfig{
		Name:    "table1",
		Format:  config.FormatFixed,
		Path:    filepath.Join(t.TempDir(), "absent.dat"),
		IDField: "KIC",
	}, nil)

	set, err := r.Read(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeSourceUnavailable))
	require.NotNil(t, set)
	assert.Equal(t, "table1", set.Source)
	assert.Equal(t, 0, set.Len())
}

func TestFileReader_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stars.csv")
	require.NoError(t, os.WriteFile(path, []byte("ID, Per\n1, 3.5\n2, 4\n"), 0o644))

	r := NewFileReader(config.SourceConfig{Name: "stars", Format: config.FormatCSV, Path: path, IDField: "ID"}, nil)
	assert.Equal(t, "stars", r.Name())

	set, err := r.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, set.Len())
	assert.Equal(t, catalog.FloatValue(3.5), set.Records[0]["Per"])
}

func TestFileReader_FixedWidthTakesIdentifierFromSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.dat")
	require.NoError(t, os.WriteFile(path, []byte("0042 3.5\n"), 0o644))

	r := NewFileReader(config.SourceConfig{
		Name:    "t",
		Format:  config.FormatFixed,
		Path:    path,
		IDField: "id",
		Layout: catalog.Layout{Fields: []catalog.FieldSpec{
			{Name: "id", Start: 0, End: 4, Type: catalog.FieldInt},
			{Name: "x", Start: 5, End: 8, Type: catalog.FieldFloat},
		}},
	}, nil)

	set, err := r.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, catalog.IntValue(42), set.Records[0]["id"])
}

func TestFileReader_UnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.fits")
	require.NoError(t, os.WriteFile(path, []byte("SIMPLE"), 0o644))

	r := NewFileReader(config.SourceConfig{Name: "x", Format: "fits", Path: path, IDField: "ID"}, nil)
	set, err := r.Read(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeSourceUnavailable))
	assert.Equal(t, 0, set.Len())
}

func TestFileReader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewFileReader(config.SourceConfig{Name: "x", Format: config.FormatCSV, Path: "unused"}, nil)
	_, err := r.Read(ctx)
	require.Error(t, err)
}

func TestDelimiterFor(t *testing.T) {
	assert.Equal(t, '\t', delimiterFor(config.SourceConfig{Format: config.FormatTSV}))
	assert.Equal(t, '\t', delimiterFor(config.SourceConfig{Format: config.FormatDelimited, Delimiter: `\t`}))
	assert.Equal(t, '|', delimiterFor(config.SourceConfig{Format: config.FormatDelimited, Delimiter: "|"}))
	assert.Equal(t, ',', delimiterFor(config.SourceConfig{Format: config.FormatCSV}))
}

func TestReadersFollowConfigOrder(t *testing.T) {
	cfg := config.DefaultRunConfig()
	readers := Readers(cfg, nil)
	require.Len(t, readers, 2)
	assert.Equal(t, "table1", readers[0].Name())
	assert.Equal(t, "table2", readers[1].Name())
}

func TestTableReader(t *testing.T) {
	r := NewTableReader("mem", "ID", catalog.Table{Columns: []string{"ID", "v"}, Rows: [][]string{{"1", "2"}}})
	set, err := r.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "mem", r.Name())
	assert.Equal(t, 1, set.Len())
}

func TestInspect(t *testing.T) {
	set, err := FromTable("hb", "ID", catalog.Table{
		Columns: []string{"ID", "Name", "Period", "Freq_peak", "Amp"},
		Rows: [][]string{
			{"1", "a", "10", "0.1", "-1"},
			{"2", "b", "20", "", "-2"},
			{"3", "c", "30", "0.3", "-3"},
		},
	}, DefaultColumnTyper())
	require.NoError(t, err)

	p := Inspect(set)
	assert.Equal(t, 3, p.Records)
	assert.Equal(t, []string{"Period", "Freq_peak"}, p.PeriodColumns)
	require.Len(t, p.Columns, 5)

	period := p.Columns[2]
	assert.True(t, period.Numeric)
	assert.Equal(t, 3, period.Count)
	assert.Equal(t, 10.0, period.Min)
	assert.Equal(t, 30.0, period.Max)
	assert.Equal(t, 20.0, period.Median)

	assert.False(t, p.Columns[1].Numeric)
	assert.Equal(t, 2, p.Columns[3].NonNull)
	assert.Equal(t, 0, p.Columns[4].Count, "only positive values are summarised")
}
