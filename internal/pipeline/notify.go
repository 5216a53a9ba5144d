package pipeline

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/fashionstore/salepipe/internal/load"
)

// Status is the terminal outcome of a pipeline run.
type Status string

const (
	StatusLoaded        Status = "loaded"
	StatusAlreadyLoaded Status = "already_loaded"
	StatusNoData        Status = "no_data"
	StatusFailed        Status = "failed"
)

// Summary is the run record handed to the observability sink. Skips are
// defined outcomes, not failures; a run always produces exactly one
// summary even when a stage fails.
type Summary struct {
	RunID      string       `json:"run_id"`
	Date       string       `json:"date"`
	Status     Status       `json:"status"`
	Message    string       `json:"message"`
	Result     *load.Result `json:"result,omitempty"`
	TotalRead  int          `json:"total_read,omitempty"`
	Duplicates int          `json:"duplicates,omitempty"`
	Dropped    int          `json:"dropped,omitempty"`
	StagedPath string       `json:"staged_path,omitempty"`
}

// Sink receives run summaries. The default sink logs; deployments wire
// whatever their monitoring surface needs.
type Sink interface {
	Notify(ctx context.Context, summary *Summary) error
}

// LogSink emits summaries as structured log records.
type LogSink struct {
	log *logrus.Entry
}

// NewLogSink creates a sink writing to the given logger.
func NewLogSink(log *logrus.Entry) *LogSink {
	return &LogSink{log: log}
}

// Notify logs the summary at a level matching its status.
func (s *LogSink) Notify(ctx context.Context, summary *Summary) error {
	entry := s.log.WithFields(logrus.Fields{
		"run_id": summary.RunID,
		"date":   summary.Date,
		"status": summary.Status,
	})
	if summary.Result != nil {
		entry = entry.WithFields(logrus.Fields{
			"rows_loaded":   summary.Result.RowsLoaded,
			"rows_rejected": summary.Result.RowsRejected,
		})
	}

	switch summary.Status {
	case StatusLoaded:
		entry.Info(summary.Message)
	case StatusAlreadyLoaded, StatusNoData:
		entry.Info(summary.Message)
	default:
		entry.Error(summary.Message)
	}
	return nil
}

// MultiSink fans a summary out to several sinks; the first error wins but
// every sink is attempted.
type MultiSink []Sink

// Notify delivers the summary to each sink in order.
func (m MultiSink) Notify(ctx context.Context, summary *Summary) error {
	var firstErr error
	for _, sink := range m {
		if err := sink.Notify(ctx, summary); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// summarize builds the terminal summary for a run.
func summarize(runID string, date LoadDate, status Status, result *load.Result) *Summary {
	s := &Summary{
		RunID:  runID,
		Date:   date.ISO(),
		Status: status,
		Result: result,
	}
	switch status {
	case StatusLoaded:
		s.Message = fmt.Sprintf("loaded %d rows for %s", result.RowsLoaded, date.ISO())
	case StatusAlreadyLoaded:
		s.Message = fmt.Sprintf("data for %s already loaded, nothing to do", date.ISO())
	case StatusNoData:
		s.Message = fmt.Sprintf("no rows found for %s", date.ISO())
	}
	return s
}
