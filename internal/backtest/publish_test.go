package backtest

import (
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// TestResultPublisher_PublishRunCompleted requires a reachable NATS server
// and is skipped unless BACKTEST_NATS_URL names one, so it opts in rather
// than fails in CI.
func TestResultPublisher_PublishRunCompleted(t *testing.T) {
	url := os.Getenv("BACKTEST_NATS_URL")
	if url == "" {
		t.Skip("BACKTEST_NATS_URL not set, skipping live NATS test")
	}

	pub, err := NewResultPublisher(url, nil)
	require.NoError(t, err)
	defer pub.Close()

	result := sampleResult()
	result.Metrics = NewPerformanceAnalyzer(decimal.Zero).Analyze(result.Trades, result.EquityCurve)
	require.NoError(t, pub.PublishRunCompleted(result))
}
