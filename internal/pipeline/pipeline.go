package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ammosight/catalog-cli/internal/config"
	"github.com/ammosight/catalog-cli/internal/model"
	"github.com/ammosight/catalog-cli/internal/store"
	"github.com/ammosight/catalog-cli/internal/vocab"
)

// Stage names as recorded on run_stages rows.
const (
	StageClassify  = "1_classify"
	StageMatch     = "2_match"
	StageBenchmark = "3_benchmark"
	StageInsights  = "4_insights"
)

// Pipeline orchestrates the four reconciliation stages for one feed snapshot.
type Pipeline struct {
	cfg   *config.Config
	store store.Store
	vocab *vocab.Vocabulary
}

// New creates a new Pipeline with all dependencies.
func New(cfg *config.Config, st store.Store, v *vocab.Vocabulary) *Pipeline {
	return &Pipeline{
		cfg:   cfg,
		store: st,
		vocab: v,
	}
}

// Run executes the full reconciliation pipeline for a single feed snapshot.
// Stages run strictly in sequence; a stage failure marks the run failed and
// preserves everything committed so far.
func (p *Pipeline) Run(ctx context.Context, fd model.Feed, rows []model.RawRow) (*model.FeedRun, error) {
	log := zap.L().With(zap.String("retailer", fd.RetailerID), zap.String("feed", fd.ID))
	log.Info("pipeline: starting run", zap.Int("rows", len(rows)))

	run, err := p.store.CreateRun(ctx, fd.RetailerID, fd.ID, fd.Format)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	result := &model.RunResult{LastBatchDone: -1}
	run.Result = result

	setStatus := func(status model.RunStatus) {
		run.Status = status
		if statusErr := p.store.UpdateRunStatus(ctx, run.ID, status); statusErr != nil {
			log.Warn("pipeline: failed to update status", zap.Error(statusErr))
		}
	}

	trackStage := func(name string, fn func() (*model.StageResult, error)) error {
		stage, stageErr := p.store.CreateStage(ctx, run.ID, name)
		if stageErr != nil {
			log.Warn("pipeline: failed to create stage", zap.String("stage", name), zap.Error(stageErr))
		}

		start := time.Now()
		stageResult, fnErr := fn()
		duration := time.Since(start).Milliseconds()

		if stageResult == nil {
			stageResult = &model.StageResult{}
		}
		stageResult.Name = name
		stageResult.Duration = duration

		if fnErr != nil {
			stageResult.Status = model.StageStatusFailed
			stageResult.Error = fnErr.Error()
			log.Error("pipeline: stage failed",
				zap.String("stage", name),
				zap.Int64("duration_ms", duration),
				zap.Error(fnErr),
			)
		} else {
			if stageResult.Status == "" {
				stageResult.Status = model.StageStatusComplete
			}
			log.Info("pipeline: stage complete",
				zap.String("stage", name),
				zap.Int64("duration_ms", duration),
			)
		}
		if budget := p.cfg.Pipeline.StageBudget; budget > 0 && duration > budget.Milliseconds() {
			log.Warn("pipeline: stage exceeded budget",
				zap.String("stage", name),
				zap.Int64("duration_ms", duration),
				zap.Duration("budget", budget),
			)
		}

		if stage != nil {
			_ = p.store.CompleteStage(ctx, stage.ID, stageResult)
		}
		result.Stages = append(result.Stages, *stageResult)
		return fnErr
	}

	fail := func(name string, failErr error) (*model.FeedRun, error) {
		result.FailedStage = name
		result.Error = failErr.Error()
		status := model.RunStatusFailed
		if committedAnything(result) {
			status = model.RunStatusPartialFailure
		}
		run.Status = status
		if updErr := p.store.UpdateRunResult(ctx, run.ID, status, result); updErr != nil {
			log.Warn("pipeline: failed to record run result", zap.Error(updErr))
		}
		return run, eris.Wrap(failErr, "pipeline: "+name)
	}

	// ===== Stage 1: Classification =====
	if err := ctx.Err(); err != nil {
		return fail(StageClassify, err)
	}
	setStatus(model.RunStatusClassifying)

	var classified *ClassifyOutput
	err = trackStage(StageClassify, func() (*model.StageResult, error) {
		out, classifyErr := ClassifyStage(ctx, p.store, run, rows)
		if classifyErr != nil {
			return nil, classifyErr
		}
		classified = out
		result.Indexable = len(out.Indexable)
		result.Quarantined = len(out.Quarantined)
		result.Rejected = out.Rejected
		result.Deactivated = out.Deactivated
		return &model.StageResult{
			Metadata: map[string]any{
				"indexable":   len(out.Indexable),
				"quarantined": len(out.Quarantined),
				"rejected":    out.Rejected,
				"deactivated": out.Deactivated,
			},
		}, nil
	})
	if err != nil {
		return fail(StageClassify, err)
	}

	// ===== Stage 2: Canonical matching =====
	if err := ctx.Err(); err != nil {
		return fail(StageMatch, err)
	}
	setStatus(model.RunStatusMatching)

	matcher := NewMatcher(p.store, p.vocab, p.cfg.Pipeline.ChunkSize)
	err = trackStage(StageMatch, func() (*model.StageResult, error) {
		out, matchErr := matcher.Run(ctx, run, classified.Indexable)
		if out != nil {
			result.AutoCreated = out.AutoCreated
			result.BatchJobs = out.BatchJobs
			result.LastBatchDone = out.LastBatchDone
		}
		if matchErr != nil {
			return nil, matchErr
		}
		return &model.StageResult{
			Metadata: map[string]any{
				"assigned":     out.Assigned,
				"auto_created": out.AutoCreated,
				"batch_jobs":   out.BatchJobs,
			},
		}, nil
	})
	if err != nil {
		return fail(StageMatch, err)
	}

	// ===== Stage 3: Benchmarks =====
	if err := ctx.Err(); err != nil {
		return fail(StageBenchmark, err)
	}
	setStatus(model.RunStatusBenchmarking)

	var benchmarks []model.Benchmark
	err = trackStage(StageBenchmark, func() (*model.StageResult, error) {
		bm, benchErr := BenchmarkStage(ctx, p.store, run.ID)
		if benchErr != nil {
			return nil, benchErr
		}
		benchmarks = bm
		result.Benchmarks = len(bm)
		return &model.StageResult{
			Metadata: map[string]any{"benchmarks": len(bm)},
		}, nil
	})
	if err != nil {
		return fail(StageBenchmark, err)
	}

	// ===== Stage 4: Insights =====
	if err := ctx.Err(); err != nil {
		return fail(StageInsights, err)
	}
	setStatus(model.RunStatusInsights)

	err = trackStage(StageInsights, func() (*model.StageResult, error) {
		insights, insightErr := InsightStage(ctx, p.store, run.ID, benchmarks)
		if insightErr != nil {
			return nil, insightErr
		}
		result.Insights = len(insights)
		return &model.StageResult{
			Metadata: map[string]any{"insights": len(insights)},
		}, nil
	})
	if err != nil {
		return fail(StageInsights, err)
	}

	// Finalize.
	run.Status = model.RunStatusComplete
	if err := p.store.UpdateRunResult(ctx, run.ID, model.RunStatusComplete, result); err != nil {
		return run, eris.Wrap(err, "pipeline: record run result")
	}

	log.Info("pipeline: run complete",
		zap.String("run_id", run.ID),
		zap.Int("indexable", result.Indexable),
		zap.Int("quarantined", result.Quarantined),
		zap.Int("rejected", result.Rejected),
		zap.Int("auto_created", result.AutoCreated),
		zap.Int("benchmarks", result.Benchmarks),
		zap.Int("insights", result.Insights),
	)
	return run, nil
}

// committedAnything reports whether any stage output reached the store before
// a failure: a completed earlier stage or at least one committed matcher
// batch. Such runs are partial failures rather than total ones.
func committedAnything(result *model.RunResult) bool {
	if result.LastBatchDone >= 0 {
		return true
	}
	for _, s := range result.Stages {
		if s.Status == model.StageStatusComplete {
			return true
		}
	}
	return false
}

// Recompute runs only the analytics stages (benchmarks and insights) against
// the current active catalog, recording them under a fresh run row. Used by
// the benchmarks command to refresh analytics without re-ingesting feeds.
func (p *Pipeline) Recompute(ctx context.Context, retailerID string) (*model.FeedRun, error) {
	run, err := p.store.CreateRun(ctx, retailerID, "recompute", model.FeedFormatCSV)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create recompute run")
	}
	result := &model.RunResult{LastBatchDone: -1}
	run.Result = result

	if err := p.store.UpdateRunStatus(ctx, run.ID, model.RunStatusBenchmarking); err != nil {
		zap.L().Warn("pipeline: failed to update status", zap.Error(err))
	}
	benchmarks, err := BenchmarkStage(ctx, p.store, run.ID)
	if err != nil {
		result.FailedStage = StageBenchmark
		result.Error = err.Error()
		_ = p.store.UpdateRunResult(ctx, run.ID, model.RunStatusFailed, result)
		return run, eris.Wrap(err, "pipeline: recompute benchmarks")
	}
	result.Benchmarks = len(benchmarks)

	if err := p.store.UpdateRunStatus(ctx, run.ID, model.RunStatusInsights); err != nil {
		zap.L().Warn("pipeline: failed to update status", zap.Error(err))
	}
	insights, err := InsightStage(ctx, p.store, run.ID, benchmarks)
	if err != nil {
		result.FailedStage = StageInsights
		result.Error = err.Error()
		// Benchmarks are already committed at this point.
		_ = p.store.UpdateRunResult(ctx, run.ID, model.RunStatusPartialFailure, result)
		return run, eris.Wrap(err, "pipeline: recompute insights")
	}
	result.Insights = len(insights)

	run.Status = model.RunStatusComplete
	if err := p.store.UpdateRunResult(ctx, run.ID, model.RunStatusComplete, result); err != nil {
		return run, eris.Wrap(err, "pipeline: record recompute result")
	}
	return run, nil
}
