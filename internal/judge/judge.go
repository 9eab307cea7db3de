// Package judge implements the Judger: a stateless per-job procedure that
// drives one submission through compile-then-cases against a Sandbox slot,
// emitting JobUpdate events as it goes.
package judge

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/Mapleshade20/online-judge/internal/config"
	"github.com/Mapleshade20/online-judge/internal/model"
	"github.com/Mapleshade20/online-judge/internal/sandbox"
)

const (
	compileWallTimeUs = 30_000_000
	compileMemoryKB   = 256 * 1024
	compileOpenFiles  = 512
	compileProcesses  = 10
	defaultCaseMemKB  = 256 * 1024
)

// Params bundles everything judge() needs for one job.
type Params struct {
	JobID      int64
	Submission model.Submission
	Problem    *model.Problem
	Language   *model.Language
	CasesDir   string // host directory containing problem.Cases' input/answer files
	TmpDir     string // host scratch directory for copied-out case output
	Sandbox    Sandbox
	BestMetric func(problemID int64) float64 // rank-list collaborator, §4.6
}

// Outcome is the final state judge() settled on; also derivable from the
// last Finished Update, kept separately so callers that only want the end
// result don't need to replay the event stream.
type Outcome struct {
	Result model.Result
	Score  float64
	Cases  []model.JobCase
}

// Run drives one job through compile-then-cases, emitting Updates to sink.
func Run(ctx context.Context, p Params, sink Sink) (Outcome, error) {
	cases := make([]model.JobCase, len(p.Problem.Cases)+1)
	for i := range cases {
		cases[i] = model.JobCase{CaseIndex: i, Result: model.ResultWaiting}
	}
	cases[0].Result = model.ResultRunning

	sink(Update{Kind: BeginRunning, State: model.StateRunning, Result: model.ResultRunning, Case: cases[0]})

	compileCase, compileErr := runCompile(ctx, p)
	cases[0] = compileCase
	sink(Update{Kind: CaseUpdate, Case: compileCase})

	if compileCase.Result != model.ResultCompilationSucc {
		result := model.ResultCompilationError
		if compileCase.Result == model.ResultSystemError {
			result = model.ResultSystemError
		}
		outcome := Outcome{Result: result, Score: 0, Cases: cases}
		sink(Update{Kind: Finished, State: model.StateFinished, Result: outcome.Result, Score: outcome.Score})
		return outcome, compileErr
	}

	var score float64
	firstBad := model.Result("")

	for i, c := range p.Problem.Cases {
		idx := i + 1

		jc, caseScore := runCase(ctx, p, idx, c)
		cases[idx] = jc
		sink(Update{Kind: CaseUpdate, Case: jc})

		score += caseScore
		if jc.Result != model.ResultAccepted && firstBad == "" {
			firstBad = jc.Result
		}
	}

	result := model.ResultAccepted
	if firstBad != "" {
		result = firstBad
	}

	outcome := Outcome{Result: result, Score: score, Cases: cases}
	sink(Update{Kind: Finished, State: model.StateFinished, Result: result, Score: score})
	return outcome, nil
}

func runCompile(ctx context.Context, p Params) (model.JobCase, error) {
	srcName := p.Language.FileName
	if err := writeSource(p.Sandbox.Path(), srcName, p.Submission.SourceCode); err != nil {
		return model.JobCase{CaseIndex: 0, Result: model.ResultSystemError, Info: err.Error()}, err
	}

	argv := config.SubstituteCommand(p.Language.CommandTemplate, srcName, "main")

	spec := sandbox.RunSpec{
		WallTimeUs: compileWallTimeUs,
		CPUTimeUs:  compileWallTimeUs,
		MemoryKB:   compileMemoryKB,
		OpenFiles:  compileOpenFiles,
		Processes:  compileProcesses,
		Argv:       argv,
	}

	res, err := p.Sandbox.Run(ctx, spec)
	if err != nil {
		return model.JobCase{CaseIndex: 0, Result: model.ResultSystemError, Info: err.Error()}, err
	}

	jc := model.JobCase{CaseIndex: 0, TimeUs: res.CPUTimeUs, MemoryBytes: res.MemoryKB * 1024}
	if res.Outcome == sandbox.Ok && res.ExitCode == 0 {
		jc.Result = model.ResultCompilationSucc
	} else if res.Outcome == sandbox.InternalError {
		jc.Result = model.ResultSystemError
		jc.Info = res.Message
	} else {
		jc.Result = model.ResultCompilationError
		jc.Info = res.Message
	}
	return jc, nil
}

func runCase(ctx context.Context, p Params, idx int, c model.Case) (model.JobCase, float64) {
	inputHost := filepath.Join(p.CasesDir, c.InputFile)
	answerHost := filepath.Join(p.CasesDir, c.AnswerFile)
	inputName := fmt.Sprintf("case_%d.in", idx)
	outputName := fmt.Sprintf("case_%d.out", idx)

	if err := p.Sandbox.CopyIn(inputHost, inputName); err != nil {
		return model.JobCase{CaseIndex: idx, Result: model.ResultSystemError, Info: err.Error()}, 0
	}

	memKB := c.MemoryLimitKB
	if memKB <= 0 {
		memKB = defaultCaseMemKB
	}

	spec := sandbox.RunSpec{
		CPUTimeUs:  c.TimeLimitUs,
		WallTimeUs: 2*c.TimeLimitUs + 1_000_000,
		MemoryKB:   memKB,
		OpenFiles:  compileOpenFiles,
		Processes:  compileProcesses,
		StdinPath:  filepath.Join("/box", inputName),
		StdoutPath: filepath.Join("/box", outputName),
		Argv:       []string{"./main"},
	}

	res, err := p.Sandbox.Run(ctx, spec)
	if err != nil {
		return model.JobCase{CaseIndex: idx, Result: model.ResultSystemError, Info: err.Error()}, 0
	}

	jc := model.JobCase{CaseIndex: idx, TimeUs: res.CPUTimeUs, MemoryBytes: res.MemoryKB * 1024}

	switch res.Outcome {
	case sandbox.TimeLimitExceeded:
		jc.Result = model.ResultTimeLimitExceeded
	case sandbox.MemoryLimitExceeded:
		jc.Result = model.ResultMemoryLimitExc
	case sandbox.OutputLimitExceeded:
		jc.Result = model.ResultOutputLimitExc
	case sandbox.RuntimeError:
		jc.Result = model.ResultRuntimeError
	case sandbox.InternalError:
		jc.Result = model.ResultSystemError
		jc.Info = res.Message
		return jc, 0
	case sandbox.Ok:
		outputHost := filepath.Join(p.TmpDir, outputName)
		_ = p.Sandbox.CopyOut(outputName, outputHost)
		cmp, cmpErr := compare(ctx, p.Problem.Type, inputHost, outputHost, answerHost)
		if cmpErr != nil {
			jc.Result = model.ResultSystemError
			jc.Info = cmpErr.Error()
			return jc, 0
		}
		if cmp.SPJError {
			jc.Result = model.ResultSPJError
			jc.Info = cmp.Info
			return jc, 0
		}
		if cmp.Accepted {
			jc.Result = model.ResultAccepted
		} else {
			jc.Result = model.ResultWrongAnswer
		}
		jc.Info = cmp.Info
	}

	jc.Info = withMetric(jc.Info, p, c, jc)

	if jc.Result != model.ResultAccepted {
		return jc, 0
	}

	if p.Problem.Type == model.ProblemDynamicRanking {
		return jc, dynamicRankingScore(p, c, jc)
	}
	return jc, float64(c.Score)
}

func writeSource(boxPath, fileName, source string) error {
	return writeFile(filepath.Join(boxPath, fileName), source)
}
