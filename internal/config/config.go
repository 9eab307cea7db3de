// Package config loads and validates the JSON configuration document named
// by the -c/--config CLI flag: server bind address, problem definitions,
// and language command templates.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Mapleshade20/online-judge/internal/model"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	BindAddress string `json:"bind_address,omitempty"`
	BindPort    int    `json:"bind_port,omitempty"`
}

func (s ServerConfig) addrOrDefault() string {
	addr := s.BindAddress
	if addr == "" {
		addr = "127.0.0.1"
	}
	port := s.BindPort
	if port == 0 {
		port = 12345
	}
	return fmt.Sprintf("%s:%d", addr, port)
}

// rawCase/rawProblem mirror the on-disk problem schema, which names fields
// in snake_case and stores time limits in microseconds and memory limits in
// bytes; validate converts memory to the kilobytes model.Case holds.
type rawCase struct {
	Score       int64  `json:"score"`
	InputFile   string `json:"input_file"`
	AnswerFile  string `json:"answer_file"`
	TimeLimit   int64  `json:"time_limit"`   // microseconds
	MemoryLimit int64  `json:"memory_limit"` // bytes
}

type rawMisc struct {
	SpecialJudge        string  `json:"special_judge,omitempty"`
	DynamicRankingRatio float64 `json:"dynamic_ranking_ratio,omitempty"`
	MetricField         string  `json:"metric_field,omitempty"`
}

type rawProblem struct {
	ID    int64     `json:"id"`
	Name  string    `json:"name"`
	Type  string    `json:"type"`
	Cases []rawCase `json:"cases"`
	Misc  rawMisc   `json:"misc"`
}

type rawLanguage struct {
	Name    string   `json:"name"`
	File    string   `json:"file_name"`
	Command []string `json:"command"`
}

type rawDocument struct {
	Server    ServerConfig  `json:"server"`
	Problems  []rawProblem  `json:"problems"`
	Languages []rawLanguage `json:"languages"`
}

// Document is the parsed, validated, immutable configuration in effect for
// the lifetime of the process.
type Document struct {
	Server    ServerConfig
	Problems  map[int64]*model.Problem
	Languages map[string]*model.Language
}

// Addr returns the host:port the HTTP server should bind.
func (d *Document) Addr() string { return d.Server.addrOrDefault() }

// Load reads and validates the configuration document at path.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var doc rawDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return validate(&doc)
}

func validate(doc *rawDocument) (*Document, error) {
	languages := make(map[string]*model.Language, len(doc.Languages))
	for _, l := range doc.Languages {
		if l.Name == "" {
			return nil, fmt.Errorf("language with empty name")
		}
		if _, dup := languages[l.Name]; dup {
			return nil, fmt.Errorf("duplicate language name %q", l.Name)
		}
		languages[l.Name] = &model.Language{
			Name:            l.Name,
			FileName:        l.File,
			CommandTemplate: append([]string(nil), l.Command...),
		}
	}

	problems := make(map[int64]*model.Problem, len(doc.Problems))
	for _, p := range doc.Problems {
		if _, dup := problems[p.ID]; dup {
			return nil, fmt.Errorf("duplicate problem id %d", p.ID)
		}
		ptype := model.ProblemType(p.Type)
		switch ptype {
		case model.ProblemStandard, model.ProblemStrict, model.ProblemSPJ, model.ProblemDynamicRanking:
		case "":
			ptype = model.ProblemStandard
		default:
			return nil, fmt.Errorf("problem %d: unknown type %q", p.ID, p.Type)
		}

		cases := make([]model.Case, len(p.Cases))
		for i, c := range p.Cases {
			cases[i] = model.Case{
				Score:         c.Score,
				InputFile:     c.InputFile,
				AnswerFile:    c.AnswerFile,
				TimeLimitUs:   c.TimeLimit,
				MemoryLimitKB: c.MemoryLimit / 1024,
			}
		}

		problems[p.ID] = &model.Problem{
			ID:    p.ID,
			Name:  p.Name,
			Type:  ptype,
			Cases: cases,
			Misc: model.ProblemMisc{
				SpecialJudge:        p.Misc.SpecialJudge,
				DynamicRankingRatio: p.Misc.DynamicRankingRatio,
				MetricField:         p.Misc.MetricField,
			},
		}
	}

	return &Document{Server: doc.Server, Problems: problems, Languages: languages}, nil
}

// SubstituteCommand expands %INPUT% and %OUTPUT% placeholders in a command
// template, following the teacher's convention of leaving unrecognized
// tokens untouched.
func SubstituteCommand(template []string, input, output string) []string {
	out := make([]string, len(template))
	for i, tok := range template {
		out[i] = substituteToken(tok, input, output)
	}
	return out
}

func substituteToken(tok, input, output string) string {
	result := make([]byte, 0, len(tok))
	for i := 0; i < len(tok); i++ {
		switch {
		case tok[i] == '%' && hasPrefixAt(tok, i, "%INPUT%"):
			result = append(result, input...)
			i += len("%INPUT%") - 1
		case tok[i] == '%' && hasPrefixAt(tok, i, "%OUTPUT%"):
			result = append(result, output...)
			i += len("%OUTPUT%") - 1
		default:
			result = append(result, tok[i])
		}
	}
	return string(result)
}

func hasPrefixAt(s string, i int, prefix string) bool {
	if i+len(prefix) > len(s) {
		return false
	}
	return s[i:i+len(prefix)] == prefix
}
