package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jsj9346/spock-backtest/pkg/types"
)

// LoadCSVDataProvider builds an InMemoryDataProvider from a directory of
// per-ticker CSV files, one file per ticker named "<ticker>.csv" with
// header "date,open,high,low,close,volume[,sector,listed_from,listed_to]".
// On-disk format preserves row order and exact numeric values: columns are
// parsed straight into decimal.Decimal, no float round-trip (spec §6
// on-disk compatibility requirement).
func LoadCSVDataProvider(dir string, region types.Region) (*InMemoryDataProvider, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading data dir: %w", err)
	}

	provider := NewInMemoryDataProvider()

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}
		ticker := strings.TrimSuffix(entry.Name(), ".csv")
		path := filepath.Join(dir, entry.Name())

		bars, sectorTag, listedFrom, listedTo, err := readTickerCSV(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", ticker, err)
		}
		provider.LoadSeries(ticker, region, bars, sectorTag, listedFrom, listedTo, nil)
	}

	return provider, nil
}

func readTickerCSV(path string) ([]types.OHLCV, string, time.Time, time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", time.Time{}, time.Time{}, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, "", time.Time{}, time.Time{}, fmt.Errorf("reading header: %w", err)
	}
	col := columnIndex(header)

	var bars []types.OHLCV
	var sectorTag string
	var listedFrom, listedTo time.Time

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", time.Time{}, time.Time{}, fmt.Errorf("reading row: %w", err)
		}

		date, err := time.Parse("2006-01-02", row[col["date"]])
		if err != nil {
			return nil, "", time.Time{}, time.Time{}, fmt.Errorf("parsing date %q: %w", row[col["date"]], err)
		}

		open, err := parseDecimal(row[col["open"]])
		if err != nil {
			return nil, "", time.Time{}, time.Time{}, fmt.Errorf("parsing open %q: %w", row[col["open"]], err)
		}
		high, err := parseDecimal(row[col["high"]])
		if err != nil {
			return nil, "", time.Time{}, time.Time{}, fmt.Errorf("parsing high %q: %w", row[col["high"]], err)
		}
		low, err := parseDecimal(row[col["low"]])
		if err != nil {
			return nil, "", time.Time{}, time.Time{}, fmt.Errorf("parsing low %q: %w", row[col["low"]], err)
		}
		close, err := parseDecimal(row[col["close"]])
		if err != nil {
			return nil, "", time.Time{}, time.Time{}, fmt.Errorf("parsing close %q: %w", row[col["close"]], err)
		}
		volume, err := parseDecimal(row[col["volume"]])
		if err != nil {
			return nil, "", time.Time{}, time.Time{}, fmt.Errorf("parsing volume %q: %w", row[col["volume"]], err)
		}

		bars = append(bars, types.OHLCV{
			Date: date, Open: open, High: high, Low: low, Close: close, Volume: volume,
		})

		if idx, ok := col["sector"]; ok && sectorTag == "" {
			sectorTag = row[idx]
		}
		if idx, ok := col["listed_from"]; ok {
			if lf, err := time.Parse("2006-01-02", row[idx]); err == nil && listedFrom.IsZero() {
				listedFrom = lf
			}
		}
		if idx, ok := col["listed_to"]; ok {
			if lt, err := time.Parse("2006-01-02", row[idx]); err == nil {
				listedTo = lt
			}
		}
	}

	return bars, sectorTag, listedFrom, listedTo, nil
}

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(strings.ToLower(name))] = i
	}
	return idx
}

// parseDecimal rejects malformed numeric cells rather than silently
// substituting zero: a stray non-numeric value in a price column must fail
// the load, not become a real $0 price (spec §4.1, §6 exact-value contract).
func parseDecimal(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(s))
}
