// Package store is the persistent-store adapter: SQLite schema, WAL
// pragmas, and the read/write surface the Job Registry's write-through path
// and the Control API's query() operation consume.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Mapleshade20/online-judge/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS contests (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	from_time TEXT NOT NULL,
	to_time TEXT NOT NULL,
	problem_ids_json TEXT NOT NULL,
	user_ids_json TEXT NOT NULL,
	submission_limit INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS jobs (
	id INTEGER PRIMARY KEY,
	created_time TEXT NOT NULL,
	updated_time TEXT NOT NULL,
	user_id INTEGER NOT NULL,
	contest_id INTEGER NOT NULL,
	problem_id INTEGER NOT NULL,
	source_code TEXT NOT NULL,
	language TEXT NOT NULL,
	state TEXT NOT NULL,
	result TEXT NOT NULL,
	score REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS job_case (
	job_id INTEGER NOT NULL,
	case_index INTEGER NOT NULL,
	result TEXT NOT NULL,
	time_us INTEGER NOT NULL,
	memory_bytes INTEGER NOT NULL,
	info TEXT NOT NULL,
	PRIMARY KEY (job_id, case_index)
);
CREATE TABLE IF NOT EXISTS ranking_metrics (
	problem_id INTEGER PRIMARY KEY,
	best_metric REAL NOT NULL
);
`

// Querier abstracts *sql.DB and *sql.Tx so callers can run the same queries
// inside or outside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store owns the SQLite connection pool.
type Store struct {
	db   *sql.DB
	path string
}

// GetQuerier returns tx if non-nil, otherwise db — letting call sites share
// one code path for transactional and non-transactional queries.
func GetQuerier(db *sql.DB, tx *sql.Tx) Querier {
	if tx != nil {
		return tx
	}
	return db
}

// Open opens (creating if absent) the SQLite database at path, applying
// WAL journaling with synchronous=NORMAL, and ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer discipline matches the registry's single-writer lock

	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return nil, fmt.Errorf("set journal_mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA synchronous=NORMAL;`); err != nil {
		return nil, fmt.Errorf("set synchronous: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Flush drops and recreates the store in place, per --flush-data.
func (s *Store) Flush(ctx context.Context) error {
	if err := s.db.Close(); err != nil {
		return err
	}
	if s.path != ":memory:" {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove store file: %w", err)
		}
		for _, suffix := range []string{"-wal", "-shm"} {
			_ = os.Remove(s.path + suffix)
		}
	}
	reopened, err := Open(s.path)
	if err != nil {
		return err
	}
	s.db = reopened.db
	return nil
}

const timeLayout = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) { return time.Parse(timeLayout, s) }

// SaveJob upserts job and its cases in a single transaction (write-through).
func (s *Store) SaveJob(ctx context.Context, job *model.Job) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO jobs (id, created_time, updated_time, user_id, contest_id, problem_id, source_code, language, state, result, score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_time=excluded.updated_time, state=excluded.state, result=excluded.result, score=excluded.score
	`, job.ID, formatTime(job.CreatedTime.Time()), formatTime(job.UpdatedTime.Time()), job.Submission.UserID, job.Submission.ContestID,
		job.Submission.ProblemID, job.Submission.SourceCode, job.Submission.Language, job.State, job.Result, job.Score)
	if err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}

	for _, c := range job.Cases {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO job_case (job_id, case_index, result, time_us, memory_bytes, info)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(job_id, case_index) DO UPDATE SET result=excluded.result, time_us=excluded.time_us, memory_bytes=excluded.memory_bytes, info=excluded.info
		`, job.ID, c.CaseIndex, c.Result, c.TimeUs, c.MemoryBytes, c.Info)
		if err != nil {
			return fmt.Errorf("upsert job_case: %w", err)
		}
	}

	return tx.Commit()
}

// LoadAllJobs rehydrates every job and its cases, ordered by id.
func (s *Store) LoadAllJobs(ctx context.Context) ([]model.Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, created_time, updated_time, user_id, contest_id, problem_id, source_code, language, state, result, score FROM jobs ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var j model.Job
		var created, updated string
		if err := rows.Scan(&j.ID, &created, &updated, &j.Submission.UserID, &j.Submission.ContestID,
			&j.Submission.ProblemID, &j.Submission.SourceCode, &j.Submission.Language, &j.State, &j.Result, &j.Score); err != nil {
			return nil, err
		}
		createdAt, err := parseTime(created)
		if err != nil {
			return nil, err
		}
		updatedAt, err := parseTime(updated)
		if err != nil {
			return nil, err
		}
		j.CreatedTime = model.Timestamp(createdAt)
		j.UpdatedTime = model.Timestamp(updatedAt)
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range jobs {
		cases, err := s.loadCases(ctx, jobs[i].ID)
		if err != nil {
			return nil, err
		}
		jobs[i].Cases = cases
	}
	return jobs, nil
}

func (s *Store) loadCases(ctx context.Context, jobID int64) ([]model.JobCase, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT case_index, result, time_us, memory_bytes, info FROM job_case WHERE job_id = ? ORDER BY case_index`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []model.JobCase
	for rows.Next() {
		var c model.JobCase
		if err := rows.Scan(&c.CaseIndex, &c.Result, &c.TimeUs, &c.MemoryBytes, &c.Info); err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

// SaveUser upserts a user by id.
func (s *Store) SaveUser(ctx context.Context, u model.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name
	`, u.ID, u.Name)
	return err
}

// LoadAllUsers rehydrates every user, ordered by id.
func (s *Store) LoadAllUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Name); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SaveContest upserts a contest by id.
func (s *Store) SaveContest(ctx context.Context, c model.Contest) error {
	problemIDs, err := json.Marshal(c.ProblemIDs)
	if err != nil {
		return err
	}
	userIDs, err := json.Marshal(c.UserIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contests (id, name, from_time, to_time, problem_ids_json, user_ids_json, submission_limit)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, from_time=excluded.from_time, to_time=excluded.to_time,
			problem_ids_json=excluded.problem_ids_json, user_ids_json=excluded.user_ids_json, submission_limit=excluded.submission_limit
	`, c.ID, c.Name, formatTime(c.From.Time()), formatTime(c.To.Time()), string(problemIDs), string(userIDs), c.SubmissionLimit)
	return err
}

// LoadAllContests rehydrates every contest, ordered by id.
func (s *Store) LoadAllContests(ctx context.Context) ([]model.Contest, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, from_time, to_time, problem_ids_json, user_ids_json, submission_limit FROM contests ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contests []model.Contest
	for rows.Next() {
		var c model.Contest
		var from, to, problemIDs, userIDs string
		if err := rows.Scan(&c.ID, &c.Name, &from, &to, &problemIDs, &userIDs, &c.SubmissionLimit); err != nil {
			return nil, err
		}
		fromAt, err := parseTime(from)
		if err != nil {
			return nil, err
		}
		toAt, err := parseTime(to)
		if err != nil {
			return nil, err
		}
		c.From = model.Timestamp(fromAt)
		c.To = model.Timestamp(toAt)
		if err := json.Unmarshal([]byte(problemIDs), &c.ProblemIDs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(userIDs), &c.UserIDs); err != nil {
			return nil, err
		}
		contests = append(contests, c)
	}
	return contests, rows.Err()
}

// SaveBestMetric upserts the best metric seen so far for a problem.
func (s *Store) SaveBestMetric(ctx context.Context, problemID int64, metric float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ranking_metrics (problem_id, best_metric) VALUES (?, ?)
		ON CONFLICT(problem_id) DO UPDATE SET best_metric=excluded.best_metric
	`, problemID, metric)
	return err
}

// LoadBestMetrics rehydrates the problem_id -> best_metric side table.
func (s *Store) LoadBestMetrics(ctx context.Context) (map[int64]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT problem_id, best_metric FROM ranking_metrics`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]float64)
	for rows.Next() {
		var id int64
		var metric float64
		if err := rows.Scan(&id, &metric); err != nil {
			return nil, err
		}
		out[id] = metric
	}
	return out, rows.Err()
}
