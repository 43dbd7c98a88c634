package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goharmonic/domain/catalog"
	"goharmonic/internal/errors"
)

const sampleVOTable = `<?xml version="1.0" encoding="UTF-8"?>
<VOTABLE version="1.3" xmlns="http://www.ivoa.net/xml/VOTable/v1.3">
  <RESOURCE name="results">
    <RESOURCE>
      <TABLE name="heartbeats">
        <FIELD name="ID" datatype="long"/>
        <FIELD name="Name" datatype="char" arraysize="*"/>
        <FIELD ID="Per" datatype="double" unit="d"/>
        <DATA>
          <TABLEDATA>
            <TR><TD>101</TD><TD>OGLE-LMC-HB-0001</TD><TD>12.5</TD></TR>
            <TR><TD>102</TD><TD>OGLE-LMC-HB-0002</TD><TD/></TR>
          </TABLEDATA>
        </DATA>
      </TABLE>
    </RESOURCE>
  </RESOURCE>
</VOTABLE>`

func TestReadVOTable(t *testing.T) {
	table, err := ReadVOTable(strings.NewReader(sampleVOTable))
	require.NoError(t, err)

	assert.Equal(t, []string{"ID", "Name", "Per"}, table.Columns)
	assert.Equal(t, catalog.TypeNumeric, table.Types["ID"])
	assert.Equal(t, catalog.TypeText, table.Types["Name"])
	assert.Equal(t, catalog.TypeNumeric, table.Types["Per"], "ID attribute names the column when name is absent")
	require.Len(t, table.Rows, 2)
}

func TestParseVOTable(t *testing.T) {
	set, err := ParseVOTable("ogle", "ID", strings.NewReader(sampleVOTable))
	require.NoError(t, err)
	require.Equal(t, 2, set.Len())

	assert.Equal(t, catalog.IntValue(101), set.Records[0]["ID"])
	assert.Equal(t, catalog.TextValue("OGLE-LMC-HB-0001"), set.Records[0]["Name"])
	assert.Equal(t, catalog.FloatValue(12.5), set.Records[0]["Per"])
	assert.True(t, set.Records[1]["Per"].IsNull())
}

func TestParseVOTable_BinaryUnsupported(t *testing.T) {
	doc := `<VOTABLE><RESOURCE><TABLE name="b"><FIELD name="ID" datatype="int"/><DATA><BINARY/></DATA></TABLE></RESOURCE></VOTABLE>`

	set, err := ParseVOTable("b", "ID", strings.NewReader(doc))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeSourceUnavailable))
	assert.Contains(t, err.Error(), "TABLEDATA")
	assert.Equal(t, 0, set.Len())
}

func TestReadVOTable_NoTable(t *testing.T) {
	_, err := ReadVOTable(strings.NewReader(`<VOTABLE><RESOURCE/></VOTABLE>`))
	require.Error(t, err)
}
