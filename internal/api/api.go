// Package api implements the Control API: the synchronous, in-process
// entry points the HTTP layer binds to. Every exported method validates
// its input against the configuration document and the registry, mapping
// failures to pkg/ojerr codes, and every side effect flows through the
// registry so state and persistence never drift apart.
package api

import (
	"context"
	"time"

	"github.com/Mapleshade20/online-judge/internal/config"
	"github.com/Mapleshade20/online-judge/internal/model"
	"github.com/Mapleshade20/online-judge/internal/ranklist"
	"github.com/Mapleshade20/online-judge/internal/registry"
	"github.com/Mapleshade20/online-judge/pkg/ojerr"
)

// Registry is the subset of internal/registry the Control API depends on.
type Registry interface {
	CreateJob(ctx context.Context, sub model.Submission) (*model.Job, error)
	GetJob(id int64) (*model.Job, error)
	ListJobs(f registry.Filter) []*model.Job
	SetCancelFlag(ctx context.Context, jobID int64) error
	Rejudge(ctx context.Context, jobID int64) (*model.Job, error)

	UpsertUser(ctx context.Context, u model.User) error
	GetUser(id int64) (model.User, bool)
	ListUsers() []model.User
	UserByName(name string) (model.User, bool)
	NextUserID() int64

	UpsertContest(ctx context.Context, c model.Contest) error
	GetContest(id int64) (model.Contest, bool)
	ListContests() []model.Contest
	NextContestID() int64
}

// Pool is the subset of internal/worker the Control API depends on, to
// enqueue newly created or rejudged jobs.
type Pool interface {
	Submit(jobID int64)
}

// API wires the registry, the worker pool, and the configuration document
// into the five job operations and the user/contest/ranklist pass-through
// of the Control API.
type API struct {
	registry Registry
	pool     Pool
	doc      *config.Document
}

// New constructs an API.
func New(reg Registry, pool Pool, doc *config.Document) *API {
	return &API{registry: reg, pool: pool, doc: doc}
}

// SubmitInput is the validated payload for Submit.
type SubmitInput struct {
	SourceCode string
	Language   string
	UserID     int64
	ContestID  int64
	ProblemID  int64
}

// Submit validates a submission against the configuration document and the
// contest window/membership/submission-limit rules, creates a Queueing
// job, and enqueues it onto the worker pool.
func (a *API) Submit(ctx context.Context, in SubmitInput) (*model.Job, error) {
	if in.SourceCode == "" {
		return nil, ojerr.InvalidArgumentf("source_code must not be empty")
	}
	if _, ok := a.doc.Languages[in.Language]; !ok {
		return nil, ojerr.NotFoundf("unknown language %q", in.Language)
	}
	if _, ok := a.doc.Problems[in.ProblemID]; !ok {
		return nil, ojerr.NotFoundf("unknown problem id %d", in.ProblemID)
	}
	if _, ok := a.registry.GetUser(in.UserID); !ok {
		return nil, ojerr.NotFoundf("unknown user id %d", in.UserID)
	}

	if in.ContestID != 0 {
		if err := a.validateContestSubmission(in); err != nil {
			return nil, err
		}
	}

	job, err := a.registry.CreateJob(ctx, model.Submission{
		SourceCode: in.SourceCode,
		Language:   in.Language,
		UserID:     in.UserID,
		ContestID:  in.ContestID,
		ProblemID:  in.ProblemID,
	})
	if err != nil {
		return nil, ojerr.From(err)
	}

	a.pool.Submit(job.ID)
	return job, nil
}

func (a *API) validateContestSubmission(in SubmitInput) error {
	contest, ok := a.registry.GetContest(in.ContestID)
	if !ok {
		return ojerr.NotFoundf("unknown contest id %d", in.ContestID)
	}

	now := time.Now().UTC()
	if now.Before(contest.From.Time()) || now.After(contest.To.Time()) {
		return ojerr.InvalidArgumentf("contest %d is not currently running", in.ContestID)
	}
	if !containsInt64(contest.ProblemIDs, in.ProblemID) {
		return ojerr.InvalidArgumentf("problem %d is not part of contest %d", in.ProblemID, in.ContestID)
	}
	if !containsInt64(contest.UserIDs, in.UserID) {
		return ojerr.InvalidArgumentf("user %d is not registered for contest %d", in.UserID, in.ContestID)
	}

	if contest.SubmissionLimit > 0 {
		existing := a.registry.ListJobs(registry.Filter{
			UserID:    &in.UserID,
			ContestID: &in.ContestID,
			ProblemID: &in.ProblemID,
		})
		if int64(len(existing)) >= contest.SubmissionLimit {
			return ojerr.Newf(ojerr.RateLimit, "submission limit %d reached for problem %d in contest %d",
				contest.SubmissionLimit, in.ProblemID, in.ContestID)
		}
	}
	return nil
}

func containsInt64(haystack []int64, needle int64) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

// GetJob returns one job by id.
func (a *API) GetJob(id int64) (*model.Job, error) {
	return a.registry.GetJob(id)
}

// QueryJobs lists jobs matching f.
func (a *API) QueryJobs(f registry.Filter) []*model.Job {
	return a.registry.ListJobs(f)
}

// Rejudge resets a Finished job to Queueing and re-enqueues it.
func (a *API) Rejudge(ctx context.Context, jobID int64) (*model.Job, error) {
	job, err := a.registry.Rejudge(ctx, jobID)
	if err != nil {
		return nil, err
	}
	a.pool.Submit(job.ID)
	return job, nil
}

// Cancel marks a Queueing job Canceled.
func (a *API) Cancel(ctx context.Context, jobID int64) error {
	return a.registry.SetCancelFlag(ctx, jobID)
}

// CreateUser assigns the next free user id to name, rejecting duplicates.
func (a *API) CreateUser(ctx context.Context, name string) (model.User, error) {
	if name == "" {
		return model.User{}, ojerr.InvalidArgumentf("name must not be empty")
	}
	if _, ok := a.registry.UserByName(name); ok {
		return model.User{}, ojerr.InvalidArgumentf("user name %q already exists", name)
	}
	u := model.User{ID: a.registry.NextUserID(), Name: name}
	if err := a.registry.UpsertUser(ctx, u); err != nil {
		return model.User{}, ojerr.From(err)
	}
	return u, nil
}

// UpdateUser renames the user with id, or creates one at that id if absent.
func (a *API) UpdateUser(ctx context.Context, id int64, name string) (model.User, error) {
	if name == "" {
		return model.User{}, ojerr.InvalidArgumentf("name must not be empty")
	}
	if existing, ok := a.registry.UserByName(name); ok && existing.ID != id {
		return model.User{}, ojerr.InvalidArgumentf("user name %q already exists", name)
	}
	u := model.User{ID: id, Name: name}
	if err := a.registry.UpsertUser(ctx, u); err != nil {
		return model.User{}, ojerr.From(err)
	}
	return u, nil
}

// ListUsers returns every user.
func (a *API) ListUsers() []model.User { return a.registry.ListUsers() }

// CreateContest assigns the next free contest id.
func (a *API) CreateContest(ctx context.Context, c model.Contest) (model.Contest, error) {
	if err := a.validateContest(c); err != nil {
		return model.Contest{}, err
	}
	c.ID = a.registry.NextContestID()
	if err := a.registry.UpsertContest(ctx, c); err != nil {
		return model.Contest{}, ojerr.From(err)
	}
	return c, nil
}

// UpdateContest replaces the contest with id c.ID, or creates one if absent.
// Id 0 is reserved and rejected.
func (a *API) UpdateContest(ctx context.Context, c model.Contest) (model.Contest, error) {
	if c.ID == 0 {
		return model.Contest{}, ojerr.InvalidArgumentf("contest id 0 is reserved")
	}
	if err := a.validateContest(c); err != nil {
		return model.Contest{}, err
	}
	if err := a.registry.UpsertContest(ctx, c); err != nil {
		return model.Contest{}, ojerr.From(err)
	}
	return c, nil
}

func (a *API) validateContest(c model.Contest) error {
	if c.Name == "" {
		return ojerr.InvalidArgumentf("contest name must not be empty")
	}
	if c.To.Time().Before(c.From.Time()) {
		return ojerr.InvalidArgumentf("contest \"to\" must not precede \"from\"")
	}
	seenProblems := make(map[int64]bool, len(c.ProblemIDs))
	for _, pid := range c.ProblemIDs {
		if seenProblems[pid] {
			return ojerr.InvalidArgumentf("contest lists problem id %d more than once", pid)
		}
		seenProblems[pid] = true
		if _, ok := a.doc.Problems[pid]; !ok {
			return ojerr.InvalidArgumentf("contest references unknown problem id %d", pid)
		}
	}
	seenUsers := make(map[int64]bool, len(c.UserIDs))
	for _, uid := range c.UserIDs {
		if seenUsers[uid] {
			return ojerr.InvalidArgumentf("contest lists user id %d more than once", uid)
		}
		seenUsers[uid] = true
		if _, ok := a.registry.GetUser(uid); !ok {
			return ojerr.InvalidArgumentf("contest references unknown user id %d", uid)
		}
	}
	return nil
}

// GetContest returns one contest by id.
func (a *API) GetContest(id int64) (model.Contest, error) {
	c, ok := a.registry.GetContest(id)
	if !ok {
		return model.Contest{}, ojerr.NotFoundf("contest %d not found", id)
	}
	return c, nil
}

// ListContests returns every contest.
func (a *API) ListContests() []model.Contest { return a.registry.ListContests() }

// RankList computes the rank-list for contestID using the jobs currently in
// the registry.
func (a *API) RankList(contestID int64, opts ranklist.Options) ([]ranklist.Row, error) {
	contest, ok := a.registry.GetContest(contestID)
	if !ok {
		return nil, ojerr.NotFoundf("contest %d not found", contestID)
	}

	userIDs := contest.UserIDs
	if contestID == 0 {
		userIDs = allUserIDs(a.registry.ListUsers())
	}

	jobs := a.registry.ListJobs(registry.Filter{ContestID: &contestID})
	rows := ranklist.Compute(jobs, userIDs, contest.ProblemIDs, contestID, opts)
	for i := range rows {
		if u, ok := a.registry.GetUser(rows[i].UserID); ok {
			rows[i].UserName = u.Name
		}
	}
	return rows, nil
}

func allUserIDs(users []model.User) []int64 {
	out := make([]int64, len(users))
	for i, u := range users {
		out[i] = u.ID
	}
	return out
}

// ErrOf normalizes err into the uniform *ojerr.Error the HTTP layer expects.
func ErrOf(err error) *ojerr.Error {
	return ojerr.From(err)
}
