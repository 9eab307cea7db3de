// Package ranklist computes a contest rank-list as a pure function over a
// snapshot of jobs, with no dependency on the registry's locking.
package ranklist

import (
	"sort"

	"github.com/Mapleshade20/online-judge/internal/model"
)

// ScoringRule selects how a user's per-problem score is picked among their
// submissions.
type ScoringRule string

const (
	ScoringHighest ScoringRule = "highest"
	ScoringLatest  ScoringRule = "latest"
)

// TieBreaker selects the secondary sort key when total scores tie.
type TieBreaker string

const (
	TieBySubmissionTime TieBreaker = "submission_time"
	TieByUserID         TieBreaker = "user_id"
)

// Options configures Compute.
type Options struct {
	ScoringRule ScoringRule
	TieBreaker  TieBreaker
}

func (o Options) scoringRuleOrDefault() ScoringRule {
	if o.ScoringRule == "" {
		return ScoringHighest
	}
	return o.ScoringRule
}

func (o Options) tieBreakerOrDefault() TieBreaker {
	if o.TieBreaker == "" {
		return TieBySubmissionTime
	}
	return o.TieBreaker
}

// Row is one entry of the computed rank-list. Scores is aligned with the
// problemIDs slice passed to Compute. UserName is left blank by Compute (it
// has no access to the user table) and filled in by the caller.
type Row struct {
	UserID     int64     `json:"user_id"`
	UserName   string    `json:"user_name"`
	Rank       int       `json:"rank"`
	TotalScore float64   `json:"total_score"`
	Scores     []float64 `json:"scores"`
	TieBreakAt int64     `json:"tie_break_at"` // unix nanos of the submission that fixed this user's total, for stable sort
}

type candidate struct {
	job   *model.Job
	score float64
}

// Compute builds the rank-list for userIDs over the given problemIDs, using
// only jobs whose ContestID == contestID.
func Compute(jobs []*model.Job, userIDs, problemIDs []int64, contestID int64, opts Options) []Row {
	rule := opts.scoringRuleOrDefault()
	tie := opts.tieBreakerOrDefault()

	problemSet := make(map[int64]bool, len(problemIDs))
	for _, id := range problemIDs {
		problemSet[id] = true
	}

	// best[user][problem] = winning candidate under rule
	best := make(map[int64]map[int64]candidate)
	for _, j := range jobs {
		if j.Submission.ContestID != contestID || !problemSet[j.Submission.ProblemID] {
			continue
		}
		if j.State != model.StateFinished {
			continue
		}
		uid, pid := j.Submission.UserID, j.Submission.ProblemID
		if best[uid] == nil {
			best[uid] = make(map[int64]candidate)
		}
		cur, ok := best[uid][pid]
		cand := candidate{job: j, score: j.Score}
		if !ok {
			best[uid][pid] = cand
			continue
		}
		switch rule {
		case ScoringLatest:
			if j.CreatedTime.Time().After(cur.job.CreatedTime.Time()) {
				best[uid][pid] = cand
			}
		default: // ScoringHighest
			if cand.score > cur.score {
				best[uid][pid] = cand
			}
		}
	}

	rows := make([]Row, 0, len(userIDs))
	for _, uid := range userIDs {
		row := Row{UserID: uid, Scores: make([]float64, len(problemIDs))}
		var latest int64
		for i, pid := range problemIDs {
			cand, ok := best[uid][pid]
			if !ok {
				continue
			}
			row.Scores[i] = cand.score
			row.TotalScore += cand.score
			if t := cand.job.CreatedTime.Time().UnixNano(); t > latest {
				latest = t
			}
		}
		row.TieBreakAt = latest
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, k int) bool {
		if rows[i].TotalScore != rows[k].TotalScore {
			return rows[i].TotalScore > rows[k].TotalScore
		}
		switch tie {
		case TieByUserID:
			return rows[i].UserID < rows[k].UserID
		default: // TieBySubmissionTime
			return rows[i].TieBreakAt < rows[k].TieBreakAt
		}
	})

	rank := 0
	var prevScore float64
	var havePrev bool
	for i := range rows {
		if !havePrev || rows[i].TotalScore != prevScore {
			rank = i + 1
			prevScore = rows[i].TotalScore
			havePrev = true
		}
		rows[i].Rank = rank
	}

	return rows
}
