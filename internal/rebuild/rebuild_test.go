package rebuild

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/aggregate"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/geo"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/store"
)

// fact：假库中的一条 parcel 级预测
type fact struct {
	parcel   string
	horizon  int
	est      float64
	series   string
	variant  string
	outlier  bool
	origin   int
	forecast int
}

// storedAgg：假库聚合表中的一行
type storedAgg struct {
	series  string
	variant string
	row     aggregate.Row
}

type unitKey struct {
	level   string
	horizon int
}

// fakeStore：内存实现，阶梯用 parcel -> 层级名 -> 地理键 表达，缺键即 NULL
type fakeStore struct {
	hasOutlier bool
	probeErr   error
	facts      []fact
	ladder     map[string]map[string]string
	aggs       map[string][]storedAgg
	failDelete map[string]error
	failFetch  map[unitKey]error
	failInsert map[unitKey]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		hasOutlier: true,
		ladder:     make(map[string]map[string]string),
		aggs:       make(map[string][]storedAgg),
		failDelete: make(map[string]error),
		failFetch:  make(map[unitKey]error),
		failInsert: make(map[unitKey]error),
	}
}

func (s *fakeStore) addFact(parcel string, horizon int, est float64) {
	s.facts = append(s.facts, fact{
		parcel: parcel, horizon: horizon, est: est,
		series: SeriesForecast, variant: VariantCanonical,
		origin: 2025, forecast: 2025 + horizon/12,
	})
}

func (s *fakeStore) mapParcel(parcel, level, geoID string) {
	if s.ladder[parcel] == nil {
		s.ladder[parcel] = make(map[string]string)
	}
	s.ladder[parcel][level] = geoID
}

func (s *fakeStore) HasColumn(_ context.Context, _, _ string) (bool, error) {
	return s.hasOutlier, s.probeErr
}

func (s *fakeStore) DeleteAggregates(_ context.Context, l geo.Level, seriesKind, variantID string) (int64, error) {
	if err := s.failDelete[l.Name]; err != nil {
		return 0, err
	}
	var kept []storedAgg
	var n int64
	for _, a := range s.aggs[l.Name] {
		if a.series == seriesKind && a.variant == variantID {
			n++
			continue
		}
		kept = append(kept, a)
	}
	s.aggs[l.Name] = kept
	return n, nil
}

func (s *fakeStore) ForecastRows(_ context.Context, l geo.Level, q store.ForecastQuery) ([]aggregate.ParcelRow, error) {
	if err := s.failFetch[unitKey{l.Name, q.HorizonMonths}]; err != nil {
		return nil, err
	}
	var out []aggregate.ParcelRow
	for _, f := range s.facts {
		if f.series != q.SeriesKind || f.variant != q.VariantID || f.horizon != q.HorizonMonths {
			continue
		}
		if q.ExcludeOutliers && f.outlier {
			continue
		}
		geoID := s.ladder[f.parcel][l.Name]
		if geoID == "" {
			continue
		}
		out = append(out, aggregate.ParcelRow{
			ParcelID:      f.parcel,
			GeoID:         geoID,
			OriginYear:    f.origin,
			HorizonMonths: f.horizon,
			ForecastYear:  f.forecast,
			ValueEst:      sql.NullFloat64{Float64: f.est, Valid: true},
			P10:           sql.NullFloat64{Float64: f.est, Valid: true},
			P25:           sql.NullFloat64{Float64: f.est, Valid: true},
			P50:           sql.NullFloat64{Float64: f.est, Valid: true},
			P75:           sql.NullFloat64{Float64: f.est, Valid: true},
			P90:           sql.NullFloat64{Float64: f.est, Valid: true},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParcelID < out[j].ParcelID })
	return out, nil
}

func (s *fakeStore) InsertAggregates(_ context.Context, l geo.Level, seriesKind, variantID string, rows []aggregate.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := s.failInsert[unitKey{l.Name, rows[0].HorizonMonths}]; err != nil {
		return 0, err
	}
	for _, r := range rows {
		s.aggs[l.Name] = append(s.aggs[l.Name], storedAgg{series: seriesKind, variant: variantID, row: r})
	}
	return int64(len(rows)), nil
}

func (s *fakeStore) CountAggregates(_ context.Context, l geo.Level, seriesKind string) (int64, error) {
	var n int64
	for _, a := range s.aggs[l.Name] {
		if a.series == seriesKind {
			n++
		}
	}
	return n, nil
}

func tractLevel(t *testing.T) geo.Level {
	lv, ok := geo.ByName("tract")
	require.True(t, ok)
	return lv
}

func fixedNow() func() time.Time {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return now }
}

func TestRunMeanCorrectness(t *testing.T) {
	fs := newFakeStore()
	fs.addFact("A", 12, 100)
	fs.addFact("B", 12, 200)
	fs.addFact("C", 12, 300)
	fs.mapParcel("A", "tract", "unit1")
	fs.mapParcel("B", "tract", "unit1")
	fs.mapParcel("C", "tract", "unit2")

	r := New(Config{Levels: []geo.Level{tractLevel(t)}, Horizons: []int{12}, Now: fixedNow()}, fs)
	sum := r.Run(context.Background())
	require.Empty(t, sum.Errors)

	rows := fs.aggs["tract"]
	require.Len(t, rows, 2)
	byGeo := map[string]aggregate.Row{}
	for _, a := range rows {
		byGeo[a.row.GeoID] = a.row
	}
	assert.InDelta(t, 150.0, byGeo["unit1"].ValueMean, 1e-9)
	assert.Equal(t, 2, byGeo["unit1"].ParcelN)
	assert.InDelta(t, 300.0, byGeo["unit2"].ValueMean, 1e-9)
	assert.Equal(t, 1, byGeo["unit2"].ParcelN)
	assert.Equal(t, int64(2), sum.Levels[0].Verified)
}

func TestRunOneRowPerKey(t *testing.T) {
	fs := newFakeStore()
	for _, p := range []string{"A", "B", "C", "D"} {
		fs.addFact(p, 12, 100)
		fs.addFact(p, 24, 110)
		fs.mapParcel(p, "tract", "unit1")
	}
	r := New(Config{Levels: []geo.Level{tractLevel(t)}, Horizons: []int{12, 24}, Now: fixedNow()}, fs)
	sum := r.Run(context.Background())
	require.Empty(t, sum.Errors)

	seen := map[[4]interface{}]int{}
	for _, a := range fs.aggs["tract"] {
		k := [4]interface{}{a.row.GeoID, a.row.OriginYear, a.row.HorizonMonths, a.row.ForecastYear}
		seen[k]++
	}
	for k, n := range seen {
		assert.Equal(t, 1, n, "duplicate aggregate key %v", k)
	}
	assert.Len(t, seen, 2) // 一个单元 x 两个期限
}

func TestRunIdempotent(t *testing.T) {
	fs := newFakeStore()
	fs.addFact("A", 12, 100)
	fs.addFact("B", 12, 200)
	fs.mapParcel("A", "tract", "unit1")
	fs.mapParcel("B", "tract", "unit1")

	cfg := Config{Levels: []geo.Level{tractLevel(t)}, Horizons: []int{12}, Now: fixedNow(), RunID: "r1"}
	New(cfg, fs).Run(context.Background())
	first := append([]storedAgg(nil), fs.aggs["tract"]...)
	New(cfg, fs).Run(context.Background())
	assert.Equal(t, first, fs.aggs["tract"])
}

func TestRunNullGeographyExclusion(t *testing.T) {
	fs := newFakeStore()
	fs.addFact("A", 12, 100)
	// A 在 tract 层无归属，但有 zcta 归属
	fs.mapParcel("A", "zcta", "78701")

	tract := tractLevel(t)
	zcta, ok := geo.ByName("zcta")
	require.True(t, ok)
	sum := New(Config{Levels: []geo.Level{tract, zcta}, Horizons: []int{12}, Now: fixedNow()}, fs).Run(context.Background())
	require.Empty(t, sum.Errors)

	assert.Empty(t, fs.aggs["tract"])
	require.Len(t, fs.aggs["zcta"], 1)
	assert.Equal(t, "78701", fs.aggs["zcta"][0].row.GeoID)
}

func TestRunOutlierToggle(t *testing.T) {
	build := func(hasColumn bool) *fakeStore {
		fs := newFakeStore()
		fs.hasOutlier = hasColumn
		fs.addFact("A", 12, 100)
		fs.addFact("B", 12, 200)
		fs.facts[1].outlier = true
		fs.mapParcel("A", "tract", "unit1")
		fs.mapParcel("B", "tract", "unit1")
		return fs
	}

	// 列存在：离群行不进均值也不计数
	fs := build(true)
	sum := New(Config{Levels: []geo.Level{tractLevel(t)}, Horizons: []int{12}, Now: fixedNow()}, fs).Run(context.Background())
	assert.True(t, sum.OutlierExclusion)
	require.Len(t, fs.aggs["tract"], 1)
	assert.InDelta(t, 100.0, fs.aggs["tract"][0].row.ValueMean, 1e-9)
	assert.Equal(t, 1, fs.aggs["tract"][0].row.ParcelN)

	// 列缺失：全部行参与，不管概念上是否离群
	fs = build(false)
	sum = New(Config{Levels: []geo.Level{tractLevel(t)}, Horizons: []int{12}, Now: fixedNow()}, fs).Run(context.Background())
	assert.False(t, sum.OutlierExclusion)
	require.Len(t, fs.aggs["tract"], 1)
	assert.InDelta(t, 150.0, fs.aggs["tract"][0].row.ValueMean, 1e-9)
	assert.Equal(t, 2, fs.aggs["tract"][0].row.ParcelN)
}

func TestRunOutlierProbeErrorDegrades(t *testing.T) {
	fs := newFakeStore()
	fs.probeErr = errors.New("catalog unavailable")
	fs.addFact("A", 12, 100)
	fs.mapParcel("A", "tract", "unit1")
	sum := New(Config{Levels: []geo.Level{tractLevel(t)}, Horizons: []int{12}, Now: fixedNow()}, fs).Run(context.Background())
	assert.False(t, sum.OutlierExclusion)
	assert.Empty(t, sum.Errors)
	assert.Len(t, fs.aggs["tract"], 1)
}

func TestRunPartialFailureIsolation(t *testing.T) {
	fs := newFakeStore()
	fs.addFact("A", 12, 100)
	fs.addFact("A", 24, 110)
	fs.mapParcel("A", "tract", "unit1")
	fs.failInsert[unitKey{"tract", 24}] = errors.New("disk full")

	sum := New(Config{Levels: []geo.Level{tractLevel(t)}, Horizons: []int{12, 24}, Now: fixedNow()}, fs).Run(context.Background())

	require.Len(t, sum.Errors, 1)
	assert.Equal(t, "tract", sum.Errors[0].Level)
	assert.Equal(t, 24, sum.Errors[0].Horizon)
	assert.Equal(t, "insert", sum.Errors[0].Stage)

	// H1 的行完好保留
	require.Len(t, fs.aggs["tract"], 1)
	assert.Equal(t, 12, fs.aggs["tract"][0].row.HorizonMonths)
	assert.Equal(t, int64(1), sum.Levels[0].Inserted[12])
	_, has24 := sum.Levels[0].Inserted[24]
	assert.False(t, has24)
}

func TestRunDeleteFailureSkipsLevelInserts(t *testing.T) {
	fs := newFakeStore()
	fs.addFact("A", 12, 100)
	fs.mapParcel("A", "tract", "unit1")
	fs.mapParcel("A", "zcta", "78701")
	fs.failDelete["tract"] = errors.New("lock timeout")

	tract := tractLevel(t)
	zcta, _ := geo.ByName("zcta")
	sum := New(Config{Levels: []geo.Level{tract, zcta}, Horizons: []int{12}, Now: fixedNow()}, fs).Run(context.Background())

	require.Len(t, sum.Errors, 1)
	assert.Equal(t, "delete", sum.Errors[0].Stage)
	// 删除失败的层级不写入，避免新旧混存；后续层级照常处理
	assert.Empty(t, fs.aggs["tract"])
	assert.Len(t, fs.aggs["zcta"], 1)
}

func TestRunFullReplaceKeepsOtherVariants(t *testing.T) {
	fs := newFakeStore()
	fs.addFact("A", 12, 100)
	fs.mapParcel("A", "tract", "unit1")
	// 预置：一行待置换的 canonical 旧数据和一行实验 variant
	fs.aggs["tract"] = []storedAgg{
		{series: SeriesForecast, variant: VariantCanonical, row: aggregate.Row{GeoID: "stale"}},
		{series: SeriesForecast, variant: "experimental", row: aggregate.Row{GeoID: "exp"}},
	}

	sum := New(Config{Levels: []geo.Level{tractLevel(t)}, Horizons: []int{12}, Now: fixedNow()}, fs).Run(context.Background())
	require.Empty(t, sum.Errors)
	assert.Equal(t, int64(1), sum.Levels[0].Deleted)

	geoIDs := []string{}
	for _, a := range fs.aggs["tract"] {
		geoIDs = append(geoIDs, a.row.GeoID)
	}
	sort.Strings(geoIDs)
	assert.Equal(t, []string{"exp", "unit1"}, geoIDs)
}

func TestNewDefaults(t *testing.T) {
	r := New(Config{}, newFakeStore())
	assert.Equal(t, geo.Levels(), r.cfg.Levels)
	assert.Equal(t, DefaultHorizons, r.cfg.Horizons)
	assert.Equal(t, SeriesForecast, r.cfg.SeriesKind)
	assert.Equal(t, VariantCanonical, r.cfg.VariantID)
	assert.NotEmpty(t, r.cfg.RunID)
}
