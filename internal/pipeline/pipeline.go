package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fashionstore/salepipe/internal/errors"
	"github.com/fashionstore/salepipe/internal/extract"
	"github.com/fashionstore/salepipe/internal/load"
)

// Params are the invocation inputs supplied by the orchestrator.
type Params struct {
	// Date is the explicit target date, YYYYMMDD. Optional.
	Date string
	// ContextDate is the execution-context fallback date, YYYYMMDD.
	ContextDate string
	// Bucket and ObjectKey locate the raw feed object.
	Bucket    string
	ObjectKey string
}

// Pipeline wires the stages of one daily load run.
type Pipeline struct {
	guard     *LoadGuard
	extractor *extract.Extractor
	stager    *extract.Stager // nil disables staging
	loader    *load.Loader
	sink      Sink
	log       *logrus.Entry
}

// New assembles a pipeline. stager may be nil to disable the batch spool.
func New(guard *LoadGuard, extractor *extract.Extractor, stager *extract.Stager, loader *load.Loader, sink Sink, log *logrus.Entry) *Pipeline {
	return &Pipeline{
		guard:     guard,
		extractor: extractor,
		stager:    stager,
		loader:    loader,
		sink:      sink,
		log:       log,
	}
}

// Run executes one load for the resolved date. Every run ends with
// exactly one summary delivered to the sink; skip outcomes are successes.
// The returned error is non-nil only for genuine failures.
func (p *Pipeline) Run(ctx context.Context, params Params) (*Summary, error) {
	runID := uuid.NewString()
	log := p.log.WithField("run_id", runID)

	date, err := ResolveDate(params.Date, params.ContextDate)
	if err != nil {
		return p.fail(ctx, runID, "", err)
	}
	log = log.WithField("date", date.ISO())
	log.Info("starting load run")

	outcome, err := p.guard.Check(ctx, date)
	if err != nil {
		return p.fail(ctx, runID, date.ISO(), err)
	}
	if outcome == AlreadyLoaded {
		return p.finish(ctx, summarize(runID, date, StatusAlreadyLoaded, nil))
	}

	batch, err := p.extractor.Extract(ctx, params.Bucket, params.ObjectKey, date.ISO())
	if err != nil {
		return p.fail(ctx, runID, date.ISO(), err)
	}
	if batch.Empty() {
		summary := summarize(runID, date, StatusNoData, nil)
		summary.TotalRead = batch.TotalRead
		summary.Dropped = batch.Dropped
		return p.finish(ctx, summary)
	}

	var stagedPath string
	if p.stager != nil {
		stagedPath, err = p.stager.Spool(date.Compact(), runID, batch)
		if err != nil {
			// Staging is diagnostic only, never blocks the load
			log.WithError(err).Warn("failed to spool batch to staging")
			stagedPath = ""
		}
	}

	result, err := p.loader.Load(ctx, date.ISO(), runID, batch)
	if err != nil {
		// A concurrent run won the ledger race: the date is loaded,
		// which is the outcome this run wanted.
		if errors.GetCode(err) == errors.CodeDuplicateLoad {
			log.WithError(err).Warn("concurrent run loaded this date first")
			return p.finish(ctx, summarize(runID, date, StatusAlreadyLoaded, nil))
		}
		return p.fail(ctx, runID, date.ISO(), err)
	}

	summary := summarize(runID, date, StatusLoaded, result)
	summary.TotalRead = batch.TotalRead
	summary.Duplicates = batch.Duplicates
	summary.Dropped = batch.Dropped
	summary.StagedPath = stagedPath
	return p.finish(ctx, summary)
}

// finish delivers a success or skip summary.
func (p *Pipeline) finish(ctx context.Context, summary *Summary) (*Summary, error) {
	if err := p.sink.Notify(ctx, summary); err != nil {
		p.log.WithError(err).Warn("failed to deliver run summary")
	}
	return summary, nil
}

// fail delivers a failure summary and propagates the error.
func (p *Pipeline) fail(ctx context.Context, runID, dateISO string, cause error) (*Summary, error) {
	summary := &Summary{
		RunID:   runID,
		Date:    dateISO,
		Status:  StatusFailed,
		Message: fmt.Sprintf("run failed: %v", cause),
	}
	if err := p.sink.Notify(ctx, summary); err != nil {
		p.log.WithError(err).Warn("failed to deliver run summary")
	}
	return summary, cause
}
