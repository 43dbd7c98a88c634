package ingest

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"goharmonic/domain/catalog"
	"goharmonic/internal/errors"
)

type voTable struct {
	XMLName   xml.Name     `xml:"VOTABLE"`
	Resources []voResource `xml:"RESOURCE"`
}

type voResource struct {
	Resources []voResource `xml:"RESOURCE"`
	Tables    []voTableDef `xml:"TABLE"`
}

type voTableDef struct {
	Name   string    `xml:"name,attr"`
	Fields []voField `xml:"FIELD"`
	Data   *voData   `xml:"DATA"`
}

type voField struct {
	Name     string `xml:"name,attr"`
	ID       string `xml:"ID,attr"`
	Datatype string `xml:"datatype,attr"`
}

type voData struct {
	TableData *voTableData `xml:"TABLEDATA"`
	Binary    *struct{}    `xml:"BINARY"`
	Binary2   *struct{}    `xml:"BINARY2"`
	FITS      *struct{}    `xml:"FITS"`
}

type voTableData struct {
	Rows []voRow `xml:"TR"`
}

type voRow struct {
	Cells []string `xml:"TD"`
}

// ReadVOTable returns the first table of a VOTable document. Only the
// TABLEDATA serialisation is supported.
func ReadVOTable(r io.Reader) (catalog.Table, error) {
	var doc voTable
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return catalog.Table{}, fmt.Errorf("decode votable: %w", err)
	}

	def, ok := firstTable(doc.Resources)
	if !ok {
		return catalog.Table{}, fmt.Errorf("votable has no TABLE element")
	}
	if def.Data == nil || def.Data.TableData == nil {
		return catalog.Table{}, fmt.Errorf("votable table %q has no TABLEDATA (binary serialisations are not supported)", def.Name)
	}

	table := catalog.Table{
		Columns: make([]string, len(def.Fields)),
		Types:   make(map[string]string, len(def.Fields)),
		Rows:    make([][]string, 0, len(def.Data.TableData.Rows)),
	}
	for i, f := range def.Fields {
		name := f.Name
		if name == "" {
			name = f.ID
		}
		table.Columns[i] = name
		table.Types[name] = voColumnType(f.Datatype)
	}
	for _, row := range def.Data.TableData.Rows {
		table.Rows = append(table.Rows, row.Cells)
	}
	return table, nil
}

// ParseVOTable reads a VOTable catalog into a record set
func ParseVOTable(source, idField string, r io.Reader) (*catalog.RecordSet, error) {
	table, err := ReadVOTable(r)
	if err != nil {
		wrapped := errors.SourceUnavailable(source, err)
		return catalog.Empty(source, idField, wrapped), wrapped
	}
	return FromTable(source, idField, table, DefaultColumnTyper())
}

func firstTable(resources []voResource) (voTableDef, bool) {
	for _, res := range resources {
		if len(res.Tables) > 0 {
			return res.Tables[0], true
		}
		if t, ok := firstTable(res.Resources); ok {
			return t, true
		}
	}
	return voTableDef{}, false
}

func voColumnType(datatype string) string {
	switch strings.ToLower(datatype) {
	case "double", "float", "int", "long", "short", "unsignedbyte":
		return catalog.TypeNumeric
	}
	return catalog.TypeText
}
