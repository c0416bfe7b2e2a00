package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"coinsnap/internal/domain"
)

// RunObserver is told about every finished run (metrics, notifications).
type RunObserver interface {
	ObserveRun(ctx context.Context, report *domain.RunReport)
}

// PipelineUsecase runs fetch, normalize and both persistence steps as an
// explicit state machine:
//
//	fetch -> normalize -> persist_relational -> persist_spreadsheet -> done
//	fetch -> empty_input
//
// Fetch and normalize failures go straight to done. A relational failure is
// recorded and the spreadsheet step still runs.
type PipelineUsecase struct {
	source      domain.AssetSource
	relational  domain.DatasetSink
	spreadsheet domain.DatasetSink
	observers   []RunObserver
	limit       int
}

// pipelineRun carries the state of one Run through its steps.
type pipelineRun struct {
	report  *domain.RunReport
	records []domain.AssetRecord
}

func NewPipelineUsecase(source domain.AssetSource, relational, spreadsheet domain.DatasetSink, limit int, observers ...RunObserver) *PipelineUsecase {
	return &PipelineUsecase{
		source:      source,
		relational:  relational,
		spreadsheet: spreadsheet,
		observers:   observers,
		limit:       limit,
	}
}

// Run performs one full pipeline run. It never panics on component failure;
// the outcome is in the report.
func (uc *PipelineUsecase) Run(ctx context.Context) *domain.RunReport {
	report := &domain.RunReport{
		RunID:      uuid.NewString(),
		StartedAt:  time.Now(),
		State:      domain.StateFetch,
		SinkErrors: map[string]error{},
	}
	logger := log.With().Str("run_id", report.RunID).Logger()
	ctx = logger.WithContext(ctx)
	logger.Info().Msg("Starting snapshot run")

	run := &pipelineRun{report: report}
	for !report.State.Terminal() {
		from := report.State
		report.State = uc.step(ctx, run)
		logger.Debug().Str("from", string(from)).Str("to", string(report.State)).Msg("Transition")
	}

	report.Duration = time.Since(report.StartedAt)
	report.Outcome = outcomeOf(report)

	ev := logger.Info()
	if report.Outcome != domain.OutcomeSuccess && report.Outcome != domain.OutcomeEmpty {
		ev = logger.Error()
	}
	ev.Str("state", string(report.State)).
		Str("outcome", string(report.Outcome)).
		Int("fetched", report.Fetched).
		Int("valid", report.Valid()).
		Int("top_tier", len(report.Partition.TopTier)).
		Int("remainder", len(report.Partition.Remainder)).
		Dur("duration", report.Duration).
		Msg("Snapshot run finished")
	logSummary(&logger, report)

	for _, o := range uc.observers {
		o.ObserveRun(ctx, report)
	}
	return report
}

func (uc *PipelineUsecase) step(ctx context.Context, run *pipelineRun) domain.RunState {
	report := run.report
	switch report.State {
	case domain.StateFetch:
		records, err := uc.source.ListAssets(ctx, uc.limit)
		if err != nil {
			report.Err = fmt.Errorf("fetch: %w", err)
			return domain.StateDone
		}
		report.Fetched = len(records)
		if len(records) == 0 {
			zerolog.Ctx(ctx).Warn().Msg("No asset records returned, nothing to persist")
			return domain.StateEmptyInput
		}
		run.records = records
		return domain.StateNormalize

	case domain.StateNormalize:
		partition, err := Normalize(run.records)
		run.records = nil
		if err != nil {
			report.Err = fmt.Errorf("normalize: %w", err)
			return domain.StateDone
		}
		report.Partition = partition
		if dropped := report.Fetched - partition.Len(); dropped > 0 {
			zerolog.Ctx(ctx).Info().Int("dropped", dropped).Msg("Dropped records without a numeric rank")
		}
		return domain.StatePersistRelational

	case domain.StatePersistRelational:
		uc.persist(ctx, report, uc.relational)
		return domain.StatePersistSpreadsheet

	case domain.StatePersistSpreadsheet:
		uc.persist(ctx, report, uc.spreadsheet)
		return domain.StateDone
	}

	report.Err = fmt.Errorf("unexpected state %q", report.State)
	return domain.StateDone
}

func (uc *PipelineUsecase) persist(ctx context.Context, report *domain.RunReport, sink domain.DatasetSink) {
	report.SinksAttempted = append(report.SinksAttempted, sink.Name())
	if err := PersistPartition(ctx, sink, report.Partition); err != nil {
		report.SinkErrors[sink.Name()] = err
		zerolog.Ctx(ctx).Error().Err(err).Str("sink", sink.Name()).Msg("Persisting snapshot failed, continuing")
		return
	}
	zerolog.Ctx(ctx).Info().Str("sink", sink.Name()).Msg("Snapshot persisted")
}

// PersistPartition writes both datasets to sink. Each dataset is attempted
// even if the other fails; failures are joined.
func PersistPartition(ctx context.Context, sink domain.DatasetSink, p domain.PartitionedDataset) error {
	var errs []error
	for _, name := range domain.Datasets {
		assets, err := p.Dataset(name)
		if err == nil {
			err = sink.ReplaceDataset(ctx, name, assets)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func outcomeOf(r *domain.RunReport) domain.RunOutcome {
	switch {
	case r.State == domain.StateEmptyInput:
		return domain.OutcomeEmpty
	case r.Err != nil:
		return domain.OutcomeFailed
	case len(r.SinkErrors) == 0:
		return domain.OutcomeSuccess
	case len(r.SinkErrors) < len(r.SinksAttempted):
		return domain.OutcomePartial
	}
	return domain.OutcomeFailed
}

const summaryRemainderRows = 10

func logSummary(logger *zerolog.Logger, r *domain.RunReport) {
	if r.Partition.Len() == 0 {
		return
	}
	logger.Info().Strs("symbols", symbols(r.Partition.TopTier)).Msg("Top tier")

	rest := r.Partition.Remainder
	if len(rest) == 0 {
		return
	}
	shown := rest[:min(summaryRemainderRows, len(rest))]
	ev := logger.Info().Int64("from_rank", rest[0].Rank).Strs("symbols", symbols(shown))
	if more := len(rest) - len(shown); more > 0 {
		ev = ev.Int("more", more)
	}
	ev.Msg("Remainder")
}

func symbols(assets []domain.NormalizedAsset) []string {
	out := make([]string, len(assets))
	for i, a := range assets {
		out[i] = strings.TrimSpace(a.Symbol)
	}
	return out
}
