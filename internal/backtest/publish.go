package backtest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const runCompletedSubject = "backtest.run.completed"

// RunCompletedEvent is the best-effort notification published after a
// successful run, carrying just enough for an out-of-scope parameter-sweep
// orchestrator to decide whether to schedule follow-up runs without this
// core depending on it.
type RunCompletedEvent struct {
	RunID      string    `json:"run_id"`
	ConfigHash string    `json:"config_hash"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	Metrics    Metrics   `json:"metrics"`
}

// ResultPublisher publishes RunCompletedEvent to a single NATS subject.
// Connection failures are non-fatal to a run: publishing is best-effort
// notification, not part of the backtest's correctness contract.
type ResultPublisher struct {
	conn   *nats.Conn
	logger *logrus.Entry
}

// NewResultPublisher connects to url and returns a publisher. Callers that
// don't want result-bus notification simply never construct one.
func NewResultPublisher(url string, logger *logrus.Entry) (*ResultPublisher, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	conn, err := nats.Connect(url,
		nats.Name("spock-backtest"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Errorf("nats disconnected: %v", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return &ResultPublisher{conn: conn, logger: logger.WithField("component", "publisher")}, nil
}

// PublishRunCompleted emits a run.completed event for result.
func (p *ResultPublisher) PublishRunCompleted(result *BacktestResult) error {
	event := RunCompletedEvent{
		RunID:      result.ID,
		ConfigHash: result.ConfigHash,
		StartDate:  result.StartDate,
		EndDate:    result.EndDate,
		Metrics:    result.Metrics,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling run-completed event: %w", err)
	}
	if err := p.conn.Publish(runCompletedSubject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", runCompletedSubject, err)
	}
	p.logger.WithField("run_id", result.ID).Debug("published run.completed")
	return nil
}

// Close releases the NATS connection.
func (p *ResultPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
