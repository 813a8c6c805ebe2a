package ingest

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func TestHeaderIndexCaseInsensitive(t *testing.T) {
	idx, err := headerIndex(ladderColumns, []string{"Parcel_ID", " TRACT_ID ", "zcta_id", "ignored_extra"})
	require.NoError(t, err)
	assert.Equal(t, 0, idx["parcel_id"])
	assert.Equal(t, 1, idx["tract_id"])
	assert.Equal(t, 2, idx["zcta_id"])
	_, ok := idx["neighborhood_id"]
	assert.False(t, ok)
}

func TestHeaderIndexMissingRequired(t *testing.T) {
	_, err := headerIndex(forecastColumns, []string{"parcel_id", "origin_year", "value_est"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "horizon_months")
	assert.Contains(t, err.Error(), "forecast_year")
}

func TestParseForecastRow(t *testing.T) {
	header := []string{"parcel_id", "origin_year", "horizon_months", "forecast_year", "value_est", "value_p50", "as_of", "is_outlier"}
	idx, err := headerIndex(forecastColumns, header)
	require.NoError(t, err)

	args, err := parseForecastRow(idx, []string{"100001", "2025", "12", "2026", "350000.5", "351000", "2026-08-01", "true"})
	require.NoError(t, err)
	require.Len(t, args, 19)
	assert.Equal(t, "100001", args[0])
	assert.Equal(t, 2025, args[1])
	assert.Equal(t, 350000.5, args[4])
	assert.Nil(t, args[5]) // value_p10 不在表头，落 NULL
	assert.Equal(t, 351000.0, args[7])
	// series/variant 缺省补齐
	assert.Equal(t, "forecast", args[16])
	assert.Equal(t, "canonical", args[17])
	assert.Equal(t, true, args[18])
}

func TestParseForecastRowBadData(t *testing.T) {
	header := []string{"parcel_id", "origin_year", "horizon_months", "forecast_year", "value_est"}
	idx, err := headerIndex(forecastColumns, header)
	require.NoError(t, err)

	_, err = parseForecastRow(idx, []string{"100001", "twenty", "12", "2026", "1"})
	assert.Error(t, err)
	_, err = parseForecastRow(idx, []string{"", "2025", "12", "2026", "1"})
	assert.Error(t, err)
	_, err = parseForecastRow(idx, []string{"100001", "2025", "12", "2026", "not-a-number"})
	assert.Error(t, err)
}

func TestParseLadderRowNullKeys(t *testing.T) {
	header := []string{"parcel_id", "tract_id", "zcta_id"}
	idx, err := headerIndex(ladderColumns, header)
	require.NoError(t, err)

	args, err := parseLadderRow(idx, []string{"100001", "", "78701"})
	require.NoError(t, err)
	require.Len(t, args, 6)
	assert.Equal(t, "100001", args[0])
	assert.Nil(t, args[1]) // tax_block_id 列不存在
	assert.Nil(t, args[2]) // tract_id 空串落 NULL
	assert.Equal(t, "78701", args[3])
}

func TestDecodeReaderLatin1(t *testing.T) {
	// "Peña" 的 Latin-1 字节
	raw := []byte{'P', 'e', 0xF1, 'a'}
	r, err := DecodeReader(strings.NewReader(string(raw)), "latin1")
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "Peña", string(got))
}

func TestDecodeReaderWindows1252(t *testing.T) {
	enc, err := charmap.Windows1252.NewEncoder().String("Boerne–Fair Oaks")
	require.NoError(t, err)
	r, err := DecodeReader(strings.NewReader(enc), "windows-1252")
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "Boerne–Fair Oaks", string(got))
}

func TestDecodeReaderUnsupported(t *testing.T) {
	_, err := DecodeReader(strings.NewReader(""), "ebcdic")
	assert.Error(t, err)
}

func TestColumnsFor(t *testing.T) {
	_, err := columnsFor(KindForecasts)
	assert.NoError(t, err)
	_, err = columnsFor(KindLadder)
	assert.NoError(t, err)
	_, err = columnsFor(Kind("parcels"))
	assert.Error(t, err)
}
