package judge

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/google/shlex"

	"github.com/Mapleshade20/online-judge/internal/model"
)

// compareResult is the outcome of running a comparator over one case.
type compareResult struct {
	Accepted bool
	Info     string
	SPJError bool
}

// compare dispatches to the comparator named by problem.Type.
func compare(ctx context.Context, problemType model.ProblemType, inputPath, userOutputPath, answerPath string) (compareResult, error) {
	switch problemType {
	case model.ProblemStrict:
		return compareStrict(userOutputPath, answerPath)
	case model.ProblemSPJ:
		return compareSPJ(ctx, answerPath, inputPath, userOutputPath)
	default: // standard, dynamic_ranking
		return compareStandard(userOutputPath, answerPath)
	}
}

func compareStrict(userOutputPath, answerPath string) (compareResult, error) {
	user, err := readAll(userOutputPath)
	if err != nil {
		return compareResult{}, err
	}
	answer, err := readAll(answerPath)
	if err != nil {
		return compareResult{}, err
	}
	return compareResult{Accepted: bytes.Equal(user, answer)}, nil
}

func compareStandard(userOutputPath, answerPath string) (compareResult, error) {
	user, err := readAll(userOutputPath)
	if err != nil {
		return compareResult{}, err
	}
	answer, err := readAll(answerPath)
	if err != nil {
		return compareResult{}, err
	}
	return compareResult{Accepted: normalizeStandard(string(user)) == normalizeStandard(string(answer))}, nil
}

// normalizeStandard implements the "standard" comparator normalization:
// line endings to \n, trailing whitespace per line dropped, trailing empty
// lines at end-of-file dropped.
func normalizeStandard(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// compareSPJ invokes the answer file's named helper program outside the
// sandbox, trusted, with (input, user_output, answer) paths.
func compareSPJ(ctx context.Context, answerPath, inputPath, userOutputPath string) (compareResult, error) {
	helperLine, err := firstLine(answerPath)
	if err != nil {
		return compareResult{}, err
	}
	argv, err := shlex.Split(strings.TrimSpace(helperLine))
	if err != nil || len(argv) == 0 {
		return compareResult{SPJError: true, Info: "special judge program not named"}, nil
	}

	cmd := exec.CommandContext(ctx, argv[0], append(argv[1:], inputPath, userOutputPath, answerPath)...)
	out, err := cmd.Output()
	if err != nil {
		return compareResult{SPJError: true, Info: err.Error()}, nil
	}

	lines := strings.SplitN(string(out), "\n", 2)
	verdict := strings.TrimSpace(lines[0])
	info := ""
	if len(lines) > 1 {
		info = strings.TrimSpace(lines[1])
	}

	switch verdict {
	case "Accepted":
		return compareResult{Accepted: true, Info: info}, nil
	case "Wrong Answer":
		return compareResult{Accepted: false, Info: info}, nil
	default:
		return compareResult{SPJError: true, Info: "unrecognized special judge verdict: " + verdict}, nil
	}
}
