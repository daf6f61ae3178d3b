package backtest

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jsj9346/spock-backtest/pkg/types"
)

// DataProvider serves point-in-time OHLCV and fundamentals, and enumerates
// the tradable universe as of a date. Every method must depend only on
// facts observable strictly on or before its as_of/end parameter — an
// implementation that reads a full series and returns the tail is a bug.
//
// Implementations must be safe for concurrent read access: multiple
// independent backtest runs share one DataProvider instance.
type DataProvider interface {
	OHLCV(ticker string, region types.Region, start, end time.Time) ([]types.OHLCV, error)
	OHLCVBatch(tickers []string, region types.Region, start, end time.Time) (map[string][]types.OHLCV, error)
	Snapshot(ticker string, region types.Region, asOf time.Time) (*types.Snapshot, error)
	Universe(region types.Region, asOf time.Time, filters map[string]string) (map[string]bool, error)
	Sector(ticker string, region types.Region, asOf time.Time) (string, error)
	Fundamentals(ticker string, region types.Region, asOf time.Time, fields []string) (types.Fundamentals, error)
	TradingDays(region types.Region, start, end time.Time) ([]time.Time, error)
}

// symbolTable is the column-oriented table spec §9's Design Notes call for:
// one vector per column, all of equal length, a sorted date index, and
// row-at-date lookup by binary search. Rows are never copied on read when
// the backing store permits slicing.
type symbolTable struct {
	dates  []time.Time
	opens  []decimal.Decimal
	highs  []decimal.Decimal
	lows   []decimal.Decimal
	closes []decimal.Decimal
	vols   []decimal.Decimal

	// indicators[name] is parallel to dates; populated by whatever
	// precomputation the caller supplied at load time.
	indicators map[string][]decimal.Decimal

	sectorTag string

	// listedFrom/listedTo bound the dates on which the ticker was live,
	// independent of how much price history happens to be loaded — the
	// survivorship-bias contract in §4.1.
	listedFrom time.Time
	listedTo   time.Time
}

// rowAt returns the index of the last row whose date is <= asOf, or -1.
func (t *symbolTable) rowAt(asOf time.Time) int {
	idx := sort.Search(len(t.dates), func(i int) bool {
		return t.dates[i].After(asOf)
	})
	if idx == 0 {
		return -1
	}
	return idx - 1
}

// fundamentalRecord is one published fundamental observation.
type fundamentalRecord struct {
	publicationDate time.Time
	fields          types.Fundamentals
}

// InMemoryDataProvider backs the column-oriented tables entirely in
// memory; the natural fit for property tests and synthesized scenarios.
type InMemoryDataProvider struct {
	tables       map[tableKey]*symbolTable
	fundamentals map[tableKey][]fundamentalRecord
	calendars    map[types.Region][]time.Time
}

type tableKey struct {
	ticker string
	region types.Region
}

// NewInMemoryDataProvider constructs an empty provider; use LoadSeries,
// LoadFundamentals, and SetCalendar to populate it before a run.
func NewInMemoryDataProvider() *InMemoryDataProvider {
	return &InMemoryDataProvider{
		tables:       make(map[tableKey]*symbolTable),
		fundamentals: make(map[tableKey][]fundamentalRecord),
		calendars:    make(map[types.Region][]time.Time),
	}
}

// LoadSeries installs the OHLCV history for one ticker. bars must already
// be sorted ascending by date; listedFrom/listedTo bound the ticker's live
// window for universe() survivorship checks.
func (p *InMemoryDataProvider) LoadSeries(ticker string, region types.Region, bars []types.OHLCV, sectorTag string, listedFrom, listedTo time.Time, indicators map[string][]decimal.Decimal) {
	t := &symbolTable{
		dates:      make([]time.Time, len(bars)),
		opens:      make([]decimal.Decimal, len(bars)),
		highs:      make([]decimal.Decimal, len(bars)),
		lows:       make([]decimal.Decimal, len(bars)),
		closes:     make([]decimal.Decimal, len(bars)),
		vols:       make([]decimal.Decimal, len(bars)),
		indicators: indicators,
		sectorTag:  sectorTag,
		listedFrom: listedFrom,
		listedTo:   listedTo,
	}
	for i, b := range bars {
		t.dates[i] = b.Date
		t.opens[i] = b.Open
		t.highs[i] = b.High
		t.lows[i] = b.Low
		t.closes[i] = b.Close
		t.vols[i] = b.Volume
	}
	p.tables[tableKey{ticker, region}] = t
}

// LoadFundamentals installs a ticker's fundamental record history, sorted
// ascending by publication date.
func (p *InMemoryDataProvider) LoadFundamentals(ticker string, region types.Region, records []fundamentalRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].publicationDate.Before(records[j].publicationDate)
	})
	p.fundamentals[tableKey{ticker, region}] = records
}

// SetCalendar installs the sorted trading-day calendar for a region.
func (p *InMemoryDataProvider) SetCalendar(region types.Region, days []time.Time) {
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	p.calendars[region] = days
}

func (p *InMemoryDataProvider) OHLCV(ticker string, region types.Region, start, end time.Time) ([]types.OHLCV, error) {
	if end.Before(start) {
		return nil, &DataError{Ticker: ticker, Reason: ErrInvalidRange}
	}
	t, ok := p.tables[tableKey{ticker, region}]
	if !ok {
		return nil, &DataError{Ticker: ticker, Reason: ErrDataMissing}
	}
	lo := sort.Search(len(t.dates), func(i int) bool { return !t.dates[i].Before(start) })
	hi := sort.Search(len(t.dates), func(i int) bool { return t.dates[i].After(end) })
	if lo >= hi {
		return nil, &DataError{Ticker: ticker, Reason: ErrDataMissing}
	}
	out := make([]types.OHLCV, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, types.OHLCV{
			Date: t.dates[i], Open: t.opens[i], High: t.highs[i],
			Low: t.lows[i], Close: t.closes[i], Volume: t.vols[i],
		})
	}
	return out, nil
}

func (p *InMemoryDataProvider) OHLCVBatch(tickers []string, region types.Region, start, end time.Time) (map[string][]types.OHLCV, error) {
	out := make(map[string][]types.OHLCV, len(tickers))
	for _, tk := range tickers {
		rows, err := p.OHLCV(tk, region, start, end)
		if err != nil {
			continue // batch tolerates individual gaps; callers checking a specific ticker use OHLCV directly
		}
		out[tk] = rows
	}
	return out, nil
}

func (p *InMemoryDataProvider) Snapshot(ticker string, region types.Region, asOf time.Time) (*types.Snapshot, error) {
	t, ok := p.tables[tableKey{ticker, region}]
	if !ok {
		return nil, nil
	}
	idx := t.rowAt(asOf)
	if idx < 0 || !t.dates[idx].Equal(asOf) {
		return nil, nil
	}
	snap := &types.Snapshot{
		Ticker: ticker, Region: region, Date: t.dates[idx],
		Open: t.opens[idx], High: t.highs[idx], Low: t.lows[idx],
		Close: t.closes[idx], Volume: t.vols[idx],
	}
	if len(t.indicators) > 0 {
		snap.Indicators = make(map[string]decimal.Decimal, len(t.indicators))
		for name, series := range t.indicators {
			if idx < len(series) {
				snap.Indicators[name] = series[idx]
			}
		}
	}
	return snap, nil
}

func (p *InMemoryDataProvider) Universe(region types.Region, asOf time.Time, filters map[string]string) (map[string]bool, error) {
	out := make(map[string]bool)
	for key, t := range p.tables {
		if key.region != region {
			continue
		}
		if !t.listedFrom.IsZero() && asOf.Before(t.listedFrom) {
			continue
		}
		if !t.listedTo.IsZero() && asOf.After(t.listedTo) {
			continue
		}
		if sector, ok := filters["sector"]; ok && sector != t.sectorTag {
			continue
		}
		out[key.ticker] = true
	}
	return out, nil
}

// Sector returns the ticker's sector tag as loaded by LoadSeries/
// LoadCSVDataProvider — the bucket the position/sector exposure limits key
// on — rather than requiring a caller to already know the sector to find it
// through Universe's filters.
func (p *InMemoryDataProvider) Sector(ticker string, region types.Region, asOf time.Time) (string, error) {
	t, ok := p.tables[tableKey{ticker, region}]
	if !ok {
		return "", nil
	}
	return t.sectorTag, nil
}

func (p *InMemoryDataProvider) Fundamentals(ticker string, region types.Region, asOf time.Time, fields []string) (types.Fundamentals, error) {
	records, ok := p.fundamentals[tableKey{ticker, region}]
	if !ok {
		return nil, nil
	}
	idx := sort.Search(len(records), func(i int) bool {
		return records[i].publicationDate.After(asOf)
	})
	if idx == 0 {
		return nil, nil
	}
	rec := records[idx-1].fields
	if len(fields) == 0 {
		return rec, nil
	}
	out := make(types.Fundamentals, len(fields))
	for _, f := range fields {
		if v, ok := rec[f]; ok {
			out[f] = v
		}
	}
	return out, nil
}

func (p *InMemoryDataProvider) TradingDays(region types.Region, start, end time.Time) ([]time.Time, error) {
	cal, ok := p.calendars[region]
	if !ok {
		return nil, &DataError{Reason: ErrDataMissing}
	}
	lo := sort.Search(len(cal), func(i int) bool { return !cal[i].Before(start) })
	hi := sort.Search(len(cal), func(i int) bool { return cal[i].After(end) })
	if lo >= hi {
		return nil, nil
	}
	out := make([]time.Time, hi-lo)
	copy(out, cal[lo:hi])
	return out, nil
}
