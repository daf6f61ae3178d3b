package backtest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsj9346/spock-backtest/pkg/types"
)

func TestLoadCSVDataProvider_ParsesPerTickerFiles(t *testing.T) {
	dir := t.TempDir()
	csv := "date,open,high,low,close,volume,sector,listed_from,listed_to\n" +
		"2020-01-02,1000,1020,990,1010,500000,tech,2019-01-01,\n" +
		"2020-01-03,1010,1030,1005,1025,600000,tech,2019-01-01,\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "005930.csv"), []byte(csv), 0644))

	provider, err := LoadCSVDataProvider(dir, types.RegionKR)
	require.NoError(t, err)

	snap, err := provider.Snapshot("005930", types.RegionKR, day(2020, 1, 3))
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.True(t, snap.Close.Equal(decimal.NewFromInt(1025)))

	universe, err := provider.Universe(types.RegionKR, day(2020, 1, 3), nil)
	require.NoError(t, err)
	assert.True(t, universe["005930"])
}

func TestLoadCSVDataProvider_MalformedNumericCellFailsLoad(t *testing.T) {
	dir := t.TempDir()
	csv := "date,open,high,low,close,volume,sector,listed_from,listed_to\n" +
		"2020-01-02,1000,1020,990,N/A,500000,tech,2019-01-01,\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "005930.csv"), []byte(csv), 0644))

	_, err := LoadCSVDataProvider(dir, types.RegionKR)
	require.Error(t, err)
}

func TestLoadCSVDataProvider_SkipsNonCSVFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("not a data file"), 0644))

	provider, err := LoadCSVDataProvider(dir, types.RegionKR)
	require.NoError(t, err)

	universe, err := provider.Universe(types.RegionKR, day(2020, 1, 3), nil)
	require.NoError(t, err)
	assert.Empty(t, universe)
}
