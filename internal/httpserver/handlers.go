package httpserver

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Mapleshade20/online-judge/internal/api"
	"github.com/Mapleshade20/online-judge/internal/model"
	"github.com/Mapleshade20/online-judge/internal/ranklist"
	"github.com/Mapleshade20/online-judge/internal/registry"
	"github.com/Mapleshade20/online-judge/pkg/ojerr"
)

type submitRequest struct {
	SourceCode string `json:"source_code" binding:"required"`
	Language   string `json:"language" binding:"required"`
	UserID     int64  `json:"user_id"`
	ContestID  int64  `json:"contest_id"`
	ProblemID  int64  `json:"problem_id"`
}

func (s *Server) handleSubmit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, ojerr.InvalidArgumentf("%v", err))
		return
	}

	job, err := s.api.Submit(c.Request.Context(), apiSubmitInputFrom(req))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, job)
}

func apiSubmitInputFrom(req submitRequest) api.SubmitInput {
	return api.SubmitInput{
		SourceCode: req.SourceCode,
		Language:   req.Language,
		UserID:     req.UserID,
		ContestID:  req.ContestID,
		ProblemID:  req.ProblemID,
	}
}

func (s *Server) handleGetJob(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	job, err := s.api.GetJob(id)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, job)
}

func (s *Server) handleQueryJobs(c *gin.Context) {
	f, err := filterFromQuery(c)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, s.api.QueryJobs(f))
}

func filterFromQuery(c *gin.Context) (registry.Filter, error) {
	var f registry.Filter
	if v := c.Query("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, ojerr.InvalidArgumentf("invalid user_id %q", v)
		}
		f.UserID = &id
	}
	if v := c.Query("contest_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, ojerr.InvalidArgumentf("invalid contest_id %q", v)
		}
		f.ContestID = &id
	}
	if v := c.Query("problem_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, ojerr.InvalidArgumentf("invalid problem_id %q", v)
		}
		f.ProblemID = &id
	}
	f.Language = c.Query("language")
	if v := c.Query("state"); v != "" {
		f.State = model.State(v)
	}
	if v := c.Query("result"); v != "" {
		f.Result = model.Result(v)
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(timeLayout, v)
		if err != nil {
			return f, ojerr.InvalidArgumentf("invalid from %q", v)
		}
		f.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(timeLayout, v)
		if err != nil {
			return f, ojerr.InvalidArgumentf("invalid to %q", v)
		}
		f.To = &t
	}
	return f, nil
}

const timeLayout = "2006-01-02T15:04:05.000Z"

func (s *Server) handleRejudge(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	job, err := s.api.Rejudge(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, job)
}

func (s *Server) handleCancel(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if err := s.api.Cancel(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	success(c, gin.H{})
}

type userRequest struct {
	ID   *int64 `json:"id"`
	Name string `json:"name" binding:"required"`
}

func (s *Server) handleCreateOrUpdateUser(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, ojerr.InvalidArgumentf("%v", err))
		return
	}

	var (
		u   model.User
		err error
	)
	if req.ID == nil {
		u, err = s.api.CreateUser(c.Request.Context(), req.Name)
	} else {
		u, err = s.api.UpdateUser(c.Request.Context(), *req.ID, req.Name)
	}
	if err != nil {
		fail(c, err)
		return
	}
	success(c, u)
}

func (s *Server) handleListUsers(c *gin.Context) {
	success(c, s.api.ListUsers())
}

type contestRequest struct {
	ID              *int64  `json:"id"`
	Name            string  `json:"name" binding:"required"`
	From            string  `json:"from" binding:"required"`
	To              string  `json:"to" binding:"required"`
	ProblemIDs      []int64 `json:"problem_ids"`
	UserIDs         []int64 `json:"user_ids"`
	SubmissionLimit int64   `json:"submission_limit"`
}

func (s *Server) handleCreateOrUpdateContest(c *gin.Context) {
	var req contestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, ojerr.InvalidArgumentf("%v", err))
		return
	}

	from, err := time.Parse(timeLayout, req.From)
	if err != nil {
		fail(c, ojerr.InvalidArgumentf("invalid from %q", req.From))
		return
	}
	to, err := time.Parse(timeLayout, req.To)
	if err != nil {
		fail(c, ojerr.InvalidArgumentf("invalid to %q", req.To))
		return
	}

	contest := model.Contest{
		Name:            req.Name,
		From:            model.Timestamp(from),
		To:              model.Timestamp(to),
		ProblemIDs:      req.ProblemIDs,
		UserIDs:         req.UserIDs,
		SubmissionLimit: req.SubmissionLimit,
	}

	var c2 model.Contest
	if req.ID == nil {
		c2, err = s.api.CreateContest(c.Request.Context(), contest)
	} else {
		contest.ID = *req.ID
		c2, err = s.api.UpdateContest(c.Request.Context(), contest)
	}
	if err != nil {
		fail(c, err)
		return
	}
	success(c, c2)
}

func (s *Server) handleListContests(c *gin.Context) {
	success(c, s.api.ListContests())
}

func (s *Server) handleGetContest(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	contest, err := s.api.GetContest(id)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, contest)
}

func (s *Server) handleRankList(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	opts := ranklist.Options{
		ScoringRule: ranklist.ScoringRule(c.Query("scoring_rule")),
		TieBreaker:  ranklist.TieBreaker(c.Query("tie_breaker")),
	}

	rows, err := s.api.RankList(id, opts)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, rows)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, ojerr.InvalidArgumentf("invalid id %q", raw)
	}
	return id, nil
}
