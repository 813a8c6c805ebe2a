package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelsCopyIsIsolated(t *testing.T) {
	a := Levels()
	a[0].AggTable = "mutated"
	b := Levels()
	assert.NotEqual(t, "mutated", b[0].AggTable)
}

func TestByName(t *testing.T) {
	lv, ok := ByName("school_district")
	require.True(t, ok)
	assert.Equal(t, "school_district_id", lv.KeyColumn)
	assert.Equal(t, "_pl_agg_school_district", lv.AggTable)

	_, ok = ByName("county")
	assert.False(t, ok)
}

func TestValidRequiresExactMatch(t *testing.T) {
	lv, _ := ByName("tract")
	assert.True(t, Valid(lv))

	lv.KeyColumn = "zcta_id" // 名字对但列窜了
	assert.False(t, Valid(lv))
	assert.False(t, Valid(Level{}))
}
