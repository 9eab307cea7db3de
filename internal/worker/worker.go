// Package worker implements the Worker Pool: a fixed number of goroutines,
// each pinned to its own sandbox slot, draining a bounded queue of job ids
// and driving each through the Judger.
package worker

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/Mapleshade20/online-judge/internal/config"
	"github.com/Mapleshade20/online-judge/internal/judge"
	"github.com/Mapleshade20/online-judge/internal/model"
	"github.com/Mapleshade20/online-judge/internal/sandbox"
	"github.com/Mapleshade20/online-judge/pkg/logger"
)

// Registry is the subset of internal/registry the pool depends on.
type Registry interface {
	GetJob(id int64) (*model.Job, error)
	ApplyUpdate(ctx context.Context, jobID int64, u judge.Update) error
	CancelFlag(jobID int64) bool
	BestMetric(problemID int64) float64
	RecordMetric(ctx context.Context, problemID int64, metric float64) error
}

// Sandbox is the subset of sandbox.Driver a Pool's per-slot lifecycle needs.
type Sandbox interface {
	judge.Sandbox
	Init(ctx context.Context) error
	Cleanup(ctx context.Context) error
}

// SlotFactory constructs the Sandbox for slot index i, so tests can inject
// fakes without shelling out to isolate.
type SlotFactory func(slot int) Sandbox

// Pool owns N worker goroutines, each pinned to one sandbox slot.
type Pool struct {
	size     int
	jobs     chan int64
	registry Registry
	doc      *config.Document
	casesDir string
	tmpDir   string
	factory  SlotFactory
	cancel   context.CancelFunc
	done     chan struct{}
}

// New constructs a Pool of size workers. casesDir is the host directory
// holding every problem's input/answer files; tmpDir is scratch space for
// copied-out case output.
func New(size int, queueDepth int, registry Registry, doc *config.Document, casesDir, tmpDir string, factory SlotFactory) *Pool {
	return &Pool{
		size:     size,
		jobs:     make(chan int64, queueDepth),
		registry: registry,
		doc:      doc,
		casesDir: casesDir,
		tmpDir:   tmpDir,
		factory:  factory,
		done:     make(chan struct{}),
	}
}

// DefaultSandboxFactory builds real isolate-backed sandboxes, one box id per
// slot.
func DefaultSandboxFactory(slot int) Sandbox { return sandbox.New(slot) }

// Submit enqueues jobID for judging. Blocks if every worker is busy and the
// queue is full.
func (p *Pool) Submit(jobID int64) { p.jobs <- jobID }

// Start spins up the worker goroutines. Call Stop to drain and shut down.
func (p *Pool) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.size; i++ {
		sb := p.factory(i)
		if err := sb.Init(runCtx); err != nil {
			cancel()
			return fmt.Errorf("init sandbox slot %d: %w", i, err)
		}
		go p.runWorker(runCtx, i, sb)
	}
	return nil
}

// Stop cancels in-flight work and waits for every worker to exit.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	close(p.jobs)
	<-p.done
}

func (p *Pool) runWorker(ctx context.Context, slot int, sb Sandbox) {
	defer func() {
		_ = sb.Cleanup(context.Background())
		if slot == p.size-1 {
			close(p.done)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case jobID, ok := <-p.jobs:
			if !ok {
				return
			}
			p.process(ctx, slot, sb, jobID)
		}
	}
}

// process judges one job, recovering from a panic in the Judger so one bad
// submission (e.g. a sandbox driver bug triggered by unusual input) never
// takes the whole worker goroutine down; the job is reported System Error
// and the worker resumes its loop for the next job.
func (p *Pool) process(ctx context.Context, slot int, sb Sandbox, jobID int64) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "worker panic recovered",
				zap.Int("slot", slot), zap.Int64("job_id", jobID), zap.Any("panic", r), zap.String("stack", string(debug.Stack())))
			_ = p.registry.ApplyUpdate(ctx, jobID, judge.Update{
				Kind:   judge.Finished,
				Result: model.ResultSystemError,
				Score:  0,
			})
		}
	}()

	if p.registry.CancelFlag(jobID) {
		return
	}

	job, err := p.registry.GetJob(jobID)
	if err != nil {
		logger.Error(ctx, "worker could not load job", zap.Int64("job_id", jobID), zap.Error(err))
		return
	}

	problem, ok := p.doc.Problems[job.Submission.ProblemID]
	if !ok {
		p.finishSystemError(ctx, jobID, "unknown problem id")
		return
	}
	language, ok := p.doc.Languages[job.Submission.Language]
	if !ok {
		p.finishSystemError(ctx, jobID, "unknown language")
		return
	}

	params := judge.Params{
		JobID:      jobID,
		Submission: job.Submission,
		Problem:    problem,
		Language:   language,
		CasesDir:   filepath.Join(p.casesDir, fmt.Sprintf("%d", problem.ID)),
		TmpDir:     p.tmpDir,
		Sandbox:    sb,
		BestMetric: p.registry.BestMetric,
	}

	outcome, err := judge.Run(ctx, params, func(u judge.Update) {
		if applyErr := p.registry.ApplyUpdate(ctx, jobID, u); applyErr != nil {
			logger.Error(ctx, "failed to persist job update", zap.Int64("job_id", jobID), zap.Error(applyErr))
		}
	})
	if err != nil {
		logger.Error(ctx, "judge run returned error", zap.Int64("job_id", jobID), zap.Error(err))
	}

	if problem.Type == model.ProblemDynamicRanking && outcome.Result == model.ResultAccepted {
		p.recordBestMetric(ctx, problem, outcome)
	}
}

func (p *Pool) recordBestMetric(ctx context.Context, problem *model.Problem, outcome judge.Outcome) {
	for _, c := range outcome.Cases[1:] {
		if c.Result != model.ResultAccepted {
			continue
		}
		metric := float64(c.TimeUs)
		switch problem.Misc.MetricField {
		case "memory":
			metric = float64(c.MemoryBytes)
		case "score":
			metric = float64(problem.Cases[c.CaseIndex-1].Score)
		}
		if err := p.registry.RecordMetric(ctx, problem.ID, metric); err != nil {
			logger.Error(ctx, "failed to record best metric", zap.Int64("problem_id", problem.ID), zap.Error(err))
		}
	}
}

func (p *Pool) finishSystemError(ctx context.Context, jobID int64, msg string) {
	logger.Error(ctx, "job configuration error", zap.Int64("job_id", jobID), zap.String("message", msg))
	_ = p.registry.ApplyUpdate(ctx, jobID, judge.Update{
		Kind: judge.BeginRunning,
		Case: model.JobCase{CaseIndex: 0, Result: model.ResultSystemError, Info: msg},
	})
	_ = p.registry.ApplyUpdate(ctx, jobID, judge.Update{
		Kind:   judge.Finished,
		Result: model.ResultSystemError,
		Score:  0,
	})
}
