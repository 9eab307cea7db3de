package worker

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Mapleshade20/online-judge/internal/config"
	"github.com/Mapleshade20/online-judge/internal/judge"
	"github.com/Mapleshade20/online-judge/internal/model"
	"github.com/Mapleshade20/online-judge/internal/sandbox"
)

type fakeRegistry struct {
	mu      sync.Mutex
	jobs    map[int64]*model.Job
	flags   map[int64]bool
	metrics map[int64]float64
	updates []judge.Update
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{jobs: map[int64]*model.Job{}, flags: map[int64]bool{}, metrics: map[int64]float64{}}
}

func (r *fakeRegistry) GetJob(id int64) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id].Clone(), nil
}

func (r *fakeRegistry) ApplyUpdate(_ context.Context, jobID int64, u judge.Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
	j := r.jobs[jobID]
	switch u.Kind {
	case judge.BeginRunning:
		j.State = model.StateRunning
		j.Cases = append(j.Cases, u.Case)
	case judge.CaseUpdate:
		j.Cases = append(j.Cases, u.Case)
	case judge.Finished:
		j.State = model.StateFinished
		j.Result = u.Result
		j.Score = u.Score
	}
	return nil
}

func (r *fakeRegistry) CancelFlag(jobID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flags[jobID]
}

func (r *fakeRegistry) BestMetric(problemID int64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics[problemID]
}

func (r *fakeRegistry) RecordMetric(_ context.Context, problemID int64, metric float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics[problemID] = metric
	return nil
}

type fakeSandbox struct {
	dir      string
	outcomes []sandbox.RunOutcome
	call     int
	copyOuts map[string]string
}

func (f *fakeSandbox) Init(context.Context) error    { return nil }
func (f *fakeSandbox) Cleanup(context.Context) error { return nil }
func (f *fakeSandbox) Path() string                  { return f.dir }

func (f *fakeSandbox) CopyIn(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(f.dir, dst), data, 0o644)
}

func (f *fakeSandbox) CopyOut(srcName, dstHostPath string) error {
	content := f.copyOuts[srcName]
	return os.WriteFile(dstHostPath, []byte(content), 0o644)
}

func (f *fakeSandbox) Run(context.Context, sandbox.RunSpec) (sandbox.RunOutcome, error) {
	idx := f.call
	f.call++
	if idx < len(f.outcomes) {
		return f.outcomes[idx], nil
	}
	return sandbox.RunOutcome{Outcome: sandbox.Ok}, nil
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestPoolProcessesJobToAccepted(t *testing.T) {
	casesRoot := t.TempDir()
	problemDir := filepath.Join(casesRoot, "1")
	os.MkdirAll(problemDir, 0o755)
	writeFile(t, problemDir, "1.in", "1 2\n")
	writeFile(t, problemDir, "1.ans", "3\n")

	doc := &config.Document{
		Problems: map[int64]*model.Problem{
			1: {ID: 1, Type: model.ProblemStandard, Cases: []model.Case{
				{Score: 100, InputFile: "1.in", AnswerFile: "1.ans", TimeLimitUs: 1_000_000},
			}},
		},
		Languages: map[string]*model.Language{
			"rust": {FileName: "main.rs", CommandTemplate: []string{"rustc", "%INPUT%", "-o", "%OUTPUT%"}},
		},
	}

	reg := newFakeRegistry()
	reg.jobs[0] = &model.Job{ID: 0, State: model.StateQueueing, Submission: model.Submission{ProblemID: 1, Language: "rust"}}

	sb := &fakeSandbox{dir: t.TempDir(), copyOuts: map[string]string{"case_1.out": "3\n"}}
	sb.outcomes = []sandbox.RunOutcome{
		{Outcome: sandbox.Ok, ExitCode: 0},
		{Outcome: sandbox.Ok},
	}

	pool := New(1, 4, reg, doc, casesRoot, t.TempDir(), func(int) Sandbox { return sb })
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	pool.Submit(0)

	waitForState(t, reg, 0, model.StateFinished)
	pool.Stop()

	got, _ := reg.GetJob(0)
	if got.Result != model.ResultAccepted || got.Score != 100 {
		t.Errorf("job = %+v, want Accepted/100", got)
	}
}

func TestPoolSkipsCanceledJob(t *testing.T) {
	doc := &config.Document{Problems: map[int64]*model.Problem{}, Languages: map[string]*model.Language{}}
	reg := newFakeRegistry()
	reg.jobs[0] = &model.Job{ID: 0, State: model.StateCanceled}
	reg.flags[0] = true

	sb := &fakeSandbox{dir: t.TempDir()}
	pool := New(1, 4, reg, doc, t.TempDir(), t.TempDir(), func(int) Sandbox { return sb })
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	pool.Submit(0)
	time.Sleep(50 * time.Millisecond)
	pool.Stop()

	if sb.call != 0 {
		t.Errorf("sandbox.Run called %d times, want 0 for a canceled job", sb.call)
	}
}

func waitForState(t *testing.T, reg *fakeRegistry, jobID int64, want model.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		j, _ := reg.GetJob(jobID)
		if j != nil && j.State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %d did not reach state %v in time", jobID, want)
}
