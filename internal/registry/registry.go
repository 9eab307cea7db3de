// Package registry is the Job Registry: the single in-memory source of
// truth for jobs, users, contests, and best-metric tracking, with every
// mutation written through to a persistent store inside the same critical
// section that changes the in-memory copy.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Mapleshade20/online-judge/internal/judge"
	"github.com/Mapleshade20/online-judge/internal/model"
	"github.com/Mapleshade20/online-judge/pkg/ojerr"
)

// Persister is the subset of internal/store's Store the registry depends
// on, named as an interface so tests can substitute an in-memory fake
// instead of opening a real SQLite file.
type Persister interface {
	SaveJob(ctx context.Context, job *model.Job) error
	LoadAllJobs(ctx context.Context) ([]model.Job, error)
	SaveUser(ctx context.Context, u model.User) error
	LoadAllUsers(ctx context.Context) ([]model.User, error)
	SaveContest(ctx context.Context, c model.Contest) error
	LoadAllContests(ctx context.Context) ([]model.Contest, error)
	SaveBestMetric(ctx context.Context, problemID int64, metric float64) error
	LoadBestMetrics(ctx context.Context) (map[int64]float64, error)
}

// Registry owns every mutable table the Control API and Worker Pool touch.
// A single sync.RWMutex enforces the single-writer/many-readers discipline;
// write paths hold it exclusively for the duration of the store call so an
// in-memory mutation and its persisted counterpart never diverge.
type Registry struct {
	mu sync.RWMutex

	store Persister

	jobs        map[int64]*model.Job
	cancelFlags map[int64]bool
	nextJobID   int64

	users    map[int64]model.User
	contests map[int64]model.Contest

	bestMetric map[int64]float64
}

// New constructs an empty Registry backed by store.
func New(store Persister) *Registry {
	return &Registry{
		store:       store,
		jobs:        make(map[int64]*model.Job),
		cancelFlags: make(map[int64]bool),
		users:       make(map[int64]model.User),
		contests:    make(map[int64]model.Contest),
		bestMetric:  make(map[int64]float64),
	}
}

// Rehydrate loads every table from the store on startup. Jobs that were
// Queueing or Running when the process last stopped are reset to Queueing
// (§4.4's "never resume mid-judge"); their ids are returned so the caller
// can re-enqueue them onto the Worker Pool.
func (r *Registry) Rehydrate(ctx context.Context) ([]int64, error) {
	jobs, err := r.store.LoadAllJobs(ctx)
	if err != nil {
		return nil, err
	}
	users, err := r.store.LoadAllUsers(ctx)
	if err != nil {
		return nil, err
	}
	contests, err := r.store.LoadAllContests(ctx)
	if err != nil {
		return nil, err
	}
	metrics, err := r.store.LoadBestMetrics(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var toRequeue []int64
	for i := range jobs {
		j := jobs[i]
		if j.State == model.StateQueueing || j.State == model.StateRunning {
			j.State = model.StateQueueing
			j.Result = model.ResultWaiting
			j.UpdatedTime = model.Timestamp(now())
			for ci := range j.Cases {
				j.Cases[ci].Result = model.ResultWaiting
			}
			toRequeue = append(toRequeue, j.ID)
		}
		jc := j
		r.jobs[j.ID] = &jc
		if j.ID >= r.nextJobID {
			r.nextJobID = j.ID + 1
		}
	}
	for _, u := range users {
		r.users[u.ID] = u
	}
	for _, c := range contests {
		r.contests[c.ID] = c
	}
	for id, m := range metrics {
		r.bestMetric[id] = m
	}

	sort.Slice(toRequeue, func(i, j int) bool { return toRequeue[i] < toRequeue[j] })
	return toRequeue, nil
}

func now() time.Time { return time.Now().UTC() }

// CreateJob assigns the next job id, stores a Queueing job, and returns a
// deep copy safe for the caller to hand back over HTTP.
func (r *Registry) CreateJob(ctx context.Context, sub model.Submission) (*model.Job, error) {
	r.mu.Lock()
	id := r.nextJobID
	r.nextJobID++
	t := model.Timestamp(now())
	job := &model.Job{
		ID:          id,
		CreatedTime: t,
		UpdatedTime: t,
		Submission:  sub,
		State:       model.StateQueueing,
		Result:      model.ResultWaiting,
		Score:       0,
		Cases:       nil,
	}
	r.jobs[id] = job
	err := r.store.SaveJob(ctx, job)
	clone := job.Clone()
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return clone, nil
}

// GetJob returns a deep copy of the job with id, or ojerr.NotFound.
func (r *Registry) GetJob(id int64) (*model.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, ojerr.NotFoundf("job %d not found", id)
	}
	return j.Clone(), nil
}

// Filter narrows ListJobs' result set; a nil/zero field is unconstrained.
type Filter struct {
	UserID    *int64
	ContestID *int64
	ProblemID *int64
	Language  string
	State     model.State
	Result    model.Result
	From      *time.Time
	To        *time.Time
}

func (f Filter) matches(j *model.Job) bool {
	if f.UserID != nil && j.Submission.UserID != *f.UserID {
		return false
	}
	if f.ContestID != nil && j.Submission.ContestID != *f.ContestID {
		return false
	}
	if f.ProblemID != nil && j.Submission.ProblemID != *f.ProblemID {
		return false
	}
	if f.Language != "" && j.Submission.Language != f.Language {
		return false
	}
	if f.State != "" && j.State != f.State {
		return false
	}
	if f.Result != "" && j.Result != f.Result {
		return false
	}
	if f.From != nil && j.CreatedTime.Time().Before(*f.From) {
		return false
	}
	if f.To != nil && j.CreatedTime.Time().After(*f.To) {
		return false
	}
	return true
}

// ListJobs returns deep copies of every job matching f, ordered by id.
func (r *Registry) ListJobs(f Filter) []*model.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		if f.matches(j) {
			out = append(out, j.Clone())
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// ApplyUpdate folds one judge.Update into the stored job and persists the
// delta, all under the write lock so readers never see a half-applied
// transition.
func (r *Registry) ApplyUpdate(ctx context.Context, jobID int64, u judge.Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[jobID]
	if !ok {
		return ojerr.NotFoundf("job %d not found", jobID)
	}

	switch u.Kind {
	case judge.BeginRunning:
		j.State = model.StateRunning
		j.Result = model.ResultRunning
		j.Cases = append(j.Cases, u.Case)
	case judge.CaseUpdate:
		for j.Cases == nil || len(j.Cases) <= u.Case.CaseIndex {
			j.Cases = append(j.Cases, model.JobCase{CaseIndex: len(j.Cases), Result: model.ResultWaiting})
		}
		j.Cases[u.Case.CaseIndex] = u.Case
	case judge.Finished:
		j.State = model.StateFinished
		j.Result = u.Result
		j.Score = u.Score
	}
	j.UpdatedTime = model.Timestamp(now())

	return r.store.SaveJob(ctx, j)
}

// SetCancelFlag marks jobID for cooperative cancellation. Only valid while
// the job is still Queueing (§4's "Queueing to Canceled" transition); any
// other state is InvalidState.
func (r *Registry) SetCancelFlag(ctx context.Context, jobID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[jobID]
	if !ok {
		return ojerr.NotFoundf("job %d not found", jobID)
	}
	if j.State != model.StateQueueing {
		return ojerr.InvalidStatef("job %d is %s, cannot cancel", jobID, j.State)
	}

	r.cancelFlags[jobID] = true
	j.State = model.StateCanceled
	j.Result = model.ResultSkipped
	j.UpdatedTime = model.Timestamp(now())
	for i := range j.Cases {
		j.Cases[i].Result = model.ResultSkipped
	}

	return r.store.SaveJob(ctx, j)
}

// CancelFlag reports whether jobID was marked canceled while queued; the
// Worker Pool checks this right before dispatching a job to a slot.
func (r *Registry) CancelFlag(jobID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cancelFlags[jobID]
}

// Rejudge resets a Finished job back to Queueing with every case reset to
// Waiting, returning the reset job so the caller can re-enqueue it.
func (r *Registry) Rejudge(ctx context.Context, jobID int64) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[jobID]
	if !ok {
		return nil, ojerr.NotFoundf("job %d not found", jobID)
	}
	if j.State != model.StateFinished {
		return nil, ojerr.InvalidStatef("job %d is %s, cannot rejudge", jobID, j.State)
	}

	j.State = model.StateQueueing
	j.Result = model.ResultWaiting
	j.Score = 0
	for i := range j.Cases {
		j.Cases[i] = model.JobCase{CaseIndex: i, Result: model.ResultWaiting}
	}
	j.UpdatedTime = model.Timestamp(now())
	delete(r.cancelFlags, jobID)

	if err := r.store.SaveJob(ctx, j); err != nil {
		return nil, err
	}
	return j.Clone(), nil
}

// UpsertUser writes u by id, first-write-wins on name collision being the
// caller's concern (Control API validates uniqueness before calling in).
func (r *Registry) UpsertUser(ctx context.Context, u model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.SaveUser(ctx, u); err != nil {
		return err
	}
	r.users[u.ID] = u
	return nil
}

// GetUser returns the user with id, if any.
func (r *Registry) GetUser(id int64) (model.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	return u, ok
}

// ListUsers returns every user, ordered by id.
func (r *Registry) ListUsers() []model.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UserByName finds a user by exact name match, used by the Control API to
// enforce the "names are unique" invariant before assigning an id.
func (r *Registry) UserByName(name string) (model.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Name == name {
			return u, true
		}
	}
	return model.User{}, false
}

// NextUserID returns one more than the largest assigned user id, or 0 when
// there are no users.
func (r *Registry) NextUserID() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var max int64 = -1
	for id := range r.users {
		if id > max {
			max = id
		}
	}
	return max + 1
}

// UpsertContest writes c by id.
func (r *Registry) UpsertContest(ctx context.Context, c model.Contest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.SaveContest(ctx, c); err != nil {
		return err
	}
	r.contests[c.ID] = c
	return nil
}

// GetContest returns the contest with id, if any.
func (r *Registry) GetContest(id int64) (model.Contest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contests[id]
	return c, ok
}

// ListContests returns every contest, ordered by id.
func (r *Registry) ListContests() []model.Contest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Contest, 0, len(r.contests))
	for _, c := range r.contests {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NextContestID returns one more than the largest assigned contest id, or 1
// when there are no contests (id 0 is reserved for "no contest").
func (r *Registry) NextContestID() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var max int64
	for id := range r.contests {
		if id > max {
			max = id
		}
	}
	return max + 1
}

// BestMetric returns the best metric recorded so far for problemID, or 0
// if no Accepted dynamic_ranking submission has completed yet.
func (r *Registry) BestMetric(problemID int64) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bestMetric[problemID]
}

// RecordMetric replaces the stored best metric for problemID when metric is
// lower (lower is better: time/memory minimized), persisting the change.
func (r *Registry) RecordMetric(ctx context.Context, problemID int64, metric float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.bestMetric[problemID]
	if ok && cur <= metric {
		return nil
	}
	r.bestMetric[problemID] = metric
	return r.store.SaveBestMetric(ctx, problemID, metric)
}
