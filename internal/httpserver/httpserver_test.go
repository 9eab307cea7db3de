package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Mapleshade20/online-judge/internal/api"
	"github.com/Mapleshade20/online-judge/internal/config"
	"github.com/Mapleshade20/online-judge/internal/model"
	"github.com/Mapleshade20/online-judge/internal/registry"
)

type fakeRegistry struct {
	jobs      []*model.Job
	nextJobID int64
	users     map[int64]model.User
	contests  map[int64]model.Contest
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{users: map[int64]model.User{}, contests: map[int64]model.Contest{}}
}

func (f *fakeRegistry) CreateJob(_ context.Context, sub model.Submission) (*model.Job, error) {
	j := &model.Job{ID: f.nextJobID, Submission: sub, State: model.StateQueueing}
	f.nextJobID++
	f.jobs = append(f.jobs, j)
	return j.Clone(), nil
}

func (f *fakeRegistry) GetJob(id int64) (*model.Job, error) {
	for _, j := range f.jobs {
		if j.ID == id {
			return j.Clone(), nil
		}
	}
	return nil, errNotFound(id)
}

func (f *fakeRegistry) ListJobs(registry.Filter) []*model.Job {
	out := make([]*model.Job, len(f.jobs))
	for i, j := range f.jobs {
		out[i] = j.Clone()
	}
	return out
}

func (f *fakeRegistry) SetCancelFlag(context.Context, int64) error { return nil }

func (f *fakeRegistry) Rejudge(_ context.Context, jobID int64) (*model.Job, error) {
	return f.GetJob(jobID)
}

func (f *fakeRegistry) UpsertUser(_ context.Context, u model.User) error {
	f.users[u.ID] = u
	return nil
}

func (f *fakeRegistry) GetUser(id int64) (model.User, bool) { u, ok := f.users[id]; return u, ok }

func (f *fakeRegistry) ListUsers() []model.User {
	var out []model.User
	for _, u := range f.users {
		out = append(out, u)
	}
	return out
}

func (f *fakeRegistry) UserByName(name string) (model.User, bool) {
	for _, u := range f.users {
		if u.Name == name {
			return u, true
		}
	}
	return model.User{}, false
}

func (f *fakeRegistry) NextUserID() int64 { return int64(len(f.users)) }

func (f *fakeRegistry) UpsertContest(_ context.Context, c model.Contest) error {
	f.contests[c.ID] = c
	return nil
}

func (f *fakeRegistry) GetContest(id int64) (model.Contest, bool) {
	c, ok := f.contests[id]
	return c, ok
}

func (f *fakeRegistry) ListContests() []model.Contest {
	var out []model.Contest
	for _, c := range f.contests {
		out = append(out, c)
	}
	return out
}

func (f *fakeRegistry) NextContestID() int64 { return int64(len(f.contests)) }

type notFoundErr struct{ id int64 }

func (e notFoundErr) Error() string { return "not found" }
func errNotFound(id int64) error    { return notFoundErr{id} }

type fakePool struct{ submitted []int64 }

func (f *fakePool) Submit(jobID int64) { f.submitted = append(f.submitted, jobID) }

func newTestServer() (*Server, *fakeRegistry) {
	reg := newFakeRegistry()
	reg.users[0] = model.User{ID: 0, Name: "alice"}
	doc := &config.Document{
		Problems:  map[int64]*model.Problem{0: {ID: 0, Name: "aplusb"}},
		Languages: map[string]*model.Language{"rust": {Name: "rust"}},
	}
	a := api.New(reg, &fakePool{}, doc)
	return New("127.0.0.1:0", a), reg
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
}

func TestSubmitAndGetJob(t *testing.T) {
	s, _ := newTestServer()

	payload, _ := json.Marshal(map[string]any{
		"source_code": "fn main() {}",
		"language":    "rust",
		"user_id":     0,
		"problem_id":  0,
	})
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("POST /jobs status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var job model.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("unmarshal job: %v", err)
	}
	if job.State != model.StateQueueing {
		t.Errorf("State = %v, want Queueing", job.State)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/jobs/0", nil)
	rec2 := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("GET /jobs/0 status = %d, body = %s", rec2.Code, rec2.Body.String())
	}
}

func TestSubmitInvalidLanguageReturnsErrorBody(t *testing.T) {
	s, _ := newTestServer()

	payload, _ := json.Marshal(map[string]any{
		"source_code": "x",
		"language":    "cobol",
		"user_id":     0,
		"problem_id":  0,
	})
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body = %s", rec.Code, rec.Body.String())
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Reason != "ERR_NOT_FOUND" {
		t.Errorf("Reason = %q, want ERR_NOT_FOUND", body.Reason)
	}
}

func TestCreateUserThenList(t *testing.T) {
	s, _ := newTestServer()

	payload, _ := json.Marshal(map[string]any{"name": "bob"})
	req := httptest.NewRequest(http.MethodPost, "/users", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /users status = %d, body = %s", rec.Code, rec.Body.String())
	}

	req2 := httptest.NewRequest(http.MethodGet, "/users", nil)
	rec2 := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec2, req2)

	var users []model.User
	if err := json.Unmarshal(rec2.Body.Bytes(), &users); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("len(users) = %d, want 2 (alice + bob)", len(users))
	}
}
