package store

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/geo"
)

func TestForecastRowsSQLBindsValues(t *testing.T) {
	for _, lv := range geo.Levels() {
		q := forecastRowsSQL(lv, false)
		// 业务值只以占位符出现，不拼进文本
		assert.Contains(t, q, "f.series_kind = $1")
		assert.Contains(t, q, "f.variant_id = $2")
		assert.Contains(t, q, "f.horizon_months = $3")
		assert.NotContains(t, q, "$4")
		// 标识符来自白名单
		assert.Contains(t, q, "g."+lv.KeyColumn)
		assert.Contains(t, q, "JOIN "+LadderTable)
		assert.Contains(t, q, "FROM "+FactTable)
		assert.Contains(t, q, lv.KeyColumn+" IS NOT NULL")
		assert.Contains(t, q, "ORDER BY")
	}
}

func TestForecastRowsSQLOutlierClause(t *testing.T) {
	lv, ok := geo.ByName("tract")
	require.True(t, ok)
	with := forecastRowsSQL(lv, true)
	without := forecastRowsSQL(lv, false)
	assert.Contains(t, with, "COALESCE(f.is_outlier, FALSE) = FALSE")
	assert.NotContains(t, without, "is_outlier")
}

func TestDeleteAndCountSQLTargetLevelTable(t *testing.T) {
	for _, lv := range geo.Levels() {
		assert.Equal(t, 1, strings.Count(deleteAggregatesSQL(lv), lv.AggTable))
		assert.Contains(t, deleteAggregatesSQL(lv), "series_kind = $1 AND variant_id = $2")
		assert.Contains(t, countAggregatesSQL(lv), lv.AggTable)
	}
}

func TestInsertAggregateSQLPlaceholderCount(t *testing.T) {
	lv, ok := geo.ByName("neighborhood")
	require.True(t, ok)
	q := insertAggregateSQL(lv)
	assert.Equal(t, 19, strings.Count(q, "$"))
	assert.Contains(t, q, lv.AggTable)
}

func TestWhitelistRejectsUnknownLevel(t *testing.T) {
	s := AttachDB(nil)
	bogus := geo.Level{Name: "tract", KeyColumn: "tract_id; DROP TABLE _pl_parcel_geo", AggTable: "_pl_agg_tract"}
	ctx := context.Background()

	_, err := s.DeleteAggregates(ctx, bogus, "forecast", "canonical")
	assert.ErrorIs(t, err, ErrUnknownLevel)
	_, err = s.ForecastRows(ctx, bogus, ForecastQuery{})
	assert.ErrorIs(t, err, ErrUnknownLevel)
	_, err = s.InsertAggregates(ctx, bogus, "forecast", "canonical", nil)
	assert.ErrorIs(t, err, ErrUnknownLevel)
	_, err = s.CountAggregates(ctx, bogus, "forecast")
	assert.ErrorIs(t, err, ErrUnknownLevel)
}
