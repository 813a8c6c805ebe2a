package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pstore "github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/store"
)

// catalogFromExpected：把期望结构摊平成目录行，作为"无漂移"基线
func catalogFromExpected(expected map[string]map[string]string) []CatalogColumn {
	var out []CatalogColumn
	for table, cols := range expected {
		for col, typ := range cols {
			out = append(out, CatalogColumn{Table: table, Column: col, DataType: typ})
		}
	}
	return out
}

func TestDiffSchemaCleanCatalog(t *testing.T) {
	expected := ExpectedColumns()
	findings := DiffSchema(catalogFromExpected(expected), expected)
	assert.Empty(t, findings)
}

func TestDiffSchemaMissingTable(t *testing.T) {
	expected := ExpectedColumns()
	catalog := catalogFromExpected(expected)
	var trimmed []CatalogColumn
	for _, c := range catalog {
		if c.Table != "_pl_agg_tract" {
			trimmed = append(trimmed, c)
		}
	}
	findings := DiffSchema(trimmed, expected)
	require.Len(t, findings, 1)
	assert.Equal(t, "missing_table", findings[0].Kind)
	assert.Equal(t, "error", findings[0].Severity)
	assert.Equal(t, "_pl_agg_tract", findings[0].Table)
}

func TestDiffSchemaOptionalColumnWarns(t *testing.T) {
	expected := ExpectedColumns()
	catalog := catalogFromExpected(expected)
	var trimmed []CatalogColumn
	for _, c := range catalog {
		if c.Table == "_pl_parcel_forecasts" && c.Column == "is_outlier" {
			continue
		}
		trimmed = append(trimmed, c)
	}
	findings := DiffSchema(trimmed, expected)
	require.Len(t, findings, 1)
	assert.Equal(t, "missing_column", findings[0].Kind)
	// 可选列缺失只告警，和重建器的降级行为一致
	assert.Equal(t, "warn", findings[0].Severity)
}

func TestDiffSchemaTypeMismatchAndExtras(t *testing.T) {
	expected := ExpectedColumns()
	catalog := catalogFromExpected(expected)
	for i := range catalog {
		if catalog[i].Table == "_pl_parcel_geo" && catalog[i].Column == "tract_id" {
			catalog[i].DataType = "integer"
		}
	}
	catalog = append(catalog, CatalogColumn{Table: "_pl_parcel_geo", Column: "added_by_hand", DataType: "text"})

	findings := DiffSchema(catalog, expected)
	require.Len(t, findings, 2)
	kinds := map[string]Finding{}
	for _, f := range findings {
		kinds[f.Kind] = f
	}
	mismatch := kinds["type_mismatch"]
	assert.Equal(t, "text", mismatch.Want)
	assert.Equal(t, "integer", mismatch.Got)
	assert.Equal(t, "error", mismatch.Severity)
	extra := kinds["unexpected_column"]
	assert.Equal(t, "added_by_hand", extra.Column)
	assert.Equal(t, "info", extra.Severity)
}

func TestCrossCheck(t *testing.T) {
	registry := []pstore.SourceFile{
		{ObjectName: "traviscad/roll.csv", Bytes: 100, Uploaded: true},
		{ObjectName: "traviscad/lost.csv", Bytes: 50, Uploaded: true},
		{ObjectName: "traviscad/local-only.csv", Bytes: 10, Uploaded: false},
	}
	objects := []ObjectInfo{
		{Name: "traviscad/roll.csv", Bytes: 120},
		{Name: "traviscad/manual.csv", Bytes: 5},
	}
	findings := CrossCheck(objects, registry)
	require.Len(t, findings, 3)
	byKind := map[string]Finding{}
	for _, f := range findings {
		byKind[f.Kind] = f
	}
	assert.Equal(t, "traviscad/lost.csv", byKind["object_missing"].Table)
	assert.Equal(t, "error", byKind["object_missing"].Severity)
	assert.Equal(t, "traviscad/roll.csv", byKind["size_drift"].Table)
	assert.Equal(t, "100", byKind["size_drift"].Want)
	assert.Equal(t, "120", byKind["size_drift"].Got)
	assert.Equal(t, "traviscad/manual.csv", byKind["object_unregistered"].Table)
}

func TestCrossCheckSkipsNotUploaded(t *testing.T) {
	registry := []pstore.SourceFile{{ObjectName: "x.csv", Bytes: 1, Uploaded: false}}
	assert.Empty(t, CrossCheck(nil, registry))
}
