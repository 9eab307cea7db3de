package judge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Mapleshade20/online-judge/internal/model"
	"github.com/Mapleshade20/online-judge/internal/sandbox"
)

type fakeSandbox struct {
	boxDir   string
	outcomes []sandbox.RunOutcome
	call     int
	copyOuts map[string]string // srcName -> content written on CopyOut
}

func newFakeSandbox(t *testing.T) *fakeSandbox {
	t.Helper()
	return &fakeSandbox{boxDir: t.TempDir(), copyOuts: map[string]string{}}
}

func (f *fakeSandbox) Path() string { return f.boxDir }

func (f *fakeSandbox) CopyIn(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(f.boxDir, dst), data, 0o644)
}

func (f *fakeSandbox) CopyOut(srcName, dstHostPath string) error {
	content, ok := f.copyOuts[srcName]
	if !ok {
		content = ""
	}
	return os.WriteFile(dstHostPath, []byte(content), 0o644)
}

func (f *fakeSandbox) Run(ctx context.Context, spec sandbox.RunSpec) (sandbox.RunOutcome, error) {
	idx := f.call
	f.call++
	if idx < len(f.outcomes) {
		return f.outcomes[idx], nil
	}
	return sandbox.RunOutcome{Outcome: sandbox.Ok}, nil
}

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunHelloWorldAccept(t *testing.T) {
	casesDir := t.TempDir()
	writeTestFile(t, casesDir, "1.in", "1 2\n")
	writeTestFile(t, casesDir, "1.ans", "3\n")

	sb := newFakeSandbox(t)
	sb.outcomes = []sandbox.RunOutcome{
		{Outcome: sandbox.Ok, ExitCode: 0}, // compile
		{Outcome: sandbox.Ok},              // case 1
	}
	sb.copyOuts["case_1.out"] = "3\n"

	p := Params{
		JobID:      0,
		Submission: model.Submission{SourceCode: "fn main() {}", Language: "rust"},
		Problem: &model.Problem{
			ID:   0,
			Type: model.ProblemStandard,
			Cases: []model.Case{
				{Score: 100, InputFile: "1.in", AnswerFile: "1.ans", TimeLimitUs: 1_000_000},
			},
		},
		Language: &model.Language{FileName: "main.rs", CommandTemplate: []string{"rustc", "%INPUT%", "-o", "%OUTPUT%"}},
		CasesDir: casesDir,
		TmpDir:   t.TempDir(),
		Sandbox:  sb,
	}

	var updates []Update
	outcome, err := Run(context.Background(), p, func(u Update) { updates = append(updates, u) })
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if outcome.Result != model.ResultAccepted {
		t.Errorf("Result = %v, want Accepted", outcome.Result)
	}
	if outcome.Score != 100 {
		t.Errorf("Score = %v, want 100", outcome.Score)
	}
	if len(outcome.Cases) != 2 {
		t.Fatalf("len(Cases) = %d, want 2", len(outcome.Cases))
	}
	if updates[0].Kind != BeginRunning {
		t.Errorf("first update kind = %v, want BeginRunning", updates[0].Kind)
	}
	if updates[len(updates)-1].Kind != Finished {
		t.Errorf("last update kind = %v, want Finished", updates[len(updates)-1].Kind)
	}
}

func TestRunCompileError(t *testing.T) {
	casesDir := t.TempDir()
	writeTestFile(t, casesDir, "1.in", "1 2\n")
	writeTestFile(t, casesDir, "1.ans", "3\n")

	sb := newFakeSandbox(t)
	sb.outcomes = []sandbox.RunOutcome{
		{Outcome: sandbox.Ok, ExitCode: 1, Message: "syntax error"},
	}

	p := Params{
		Submission: model.Submission{SourceCode: "fn main() { syntax error }", Language: "rust"},
		Problem: &model.Problem{
			Type:  model.ProblemStandard,
			Cases: []model.Case{{Score: 100, InputFile: "1.in", AnswerFile: "1.ans", TimeLimitUs: 1_000_000}},
		},
		Language: &model.Language{FileName: "main.rs", CommandTemplate: []string{"rustc", "%INPUT%", "-o", "%OUTPUT%"}},
		CasesDir: casesDir,
		TmpDir:   t.TempDir(),
		Sandbox:  sb,
	}

	outcome, _ := Run(context.Background(), p, func(Update) {})
	if outcome.Result != model.ResultCompilationError {
		t.Errorf("Result = %v, want Compilation Error", outcome.Result)
	}
	if outcome.Score != 0 {
		t.Errorf("Score = %v, want 0", outcome.Score)
	}
	if outcome.Cases[0].Result != model.ResultCompilationError {
		t.Errorf("Cases[0].Result = %v, want Compilation Error", outcome.Cases[0].Result)
	}
	for _, c := range outcome.Cases[1:] {
		if c.Result != model.ResultWaiting {
			t.Errorf("Cases[%d].Result = %v, want Waiting", c.CaseIndex, c.Result)
		}
	}
}

func TestRunTimeLimitExceeded(t *testing.T) {
	casesDir := t.TempDir()
	writeTestFile(t, casesDir, "1.in", "")
	writeTestFile(t, casesDir, "1.ans", "")

	sb := newFakeSandbox(t)
	sb.outcomes = []sandbox.RunOutcome{
		{Outcome: sandbox.Ok, ExitCode: 0},
		{Outcome: sandbox.TimeLimitExceeded, CPUTimeUs: 2_000_000},
	}

	p := Params{
		Problem: &model.Problem{
			Type:  model.ProblemStandard,
			Cases: []model.Case{{Score: 100, InputFile: "1.in", AnswerFile: "1.ans", TimeLimitUs: 1_000_000}},
		},
		Language: &model.Language{FileName: "main.rs", CommandTemplate: []string{"rustc", "%INPUT%", "-o", "%OUTPUT%"}},
		CasesDir: casesDir,
		TmpDir:   t.TempDir(),
		Sandbox:  sb,
	}

	outcome, _ := Run(context.Background(), p, func(Update) {})
	if outcome.Result != model.ResultTimeLimitExceeded {
		t.Errorf("Result = %v, want Time Limit Exceeded", outcome.Result)
	}
	if outcome.Cases[1].TimeUs < p.Problem.Cases[0].TimeLimitUs {
		t.Errorf("TimeUs = %d, want >= %d", outcome.Cases[1].TimeUs, p.Problem.Cases[0].TimeLimitUs)
	}
}
