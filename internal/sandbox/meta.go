package sandbox

import "strconv"

// mapOutcome implements the meta-report interpretation table: given the
// parsed meta-report keys and the RunSpec that produced them, decide the
// Outcome and populate the reported resource-usage fields.
func mapOutcome(meta map[string]string, spec RunSpec) RunOutcome {
	out := RunOutcome{
		CPUTimeUs:  microsFloat(meta["time"]),
		WallTimeUs: microsFloat(meta["time-wall"]),
		MemoryKB:   int64(maxInt(intOr(meta["max-rss"], 0), intOr(meta["cg-mem"], 0))),
		ExitCode:   intOr(meta["exitcode"], 0),
		StatusTag:  meta["status"],
		Message:    meta["message"],
	}

	switch {
	case meta["status"] == "TO":
		out.Outcome = TimeLimitExceeded

	case meta["cg-oom-killed"] == "1":
		out.Outcome = MemoryLimitExceeded

	case out.ExitCode == 153:
		out.Outcome = OutputLimitExceeded

	case out.ExitCode == 137:
		limit := spec.MemoryKB
		cgMem := intOr(meta["cg-mem"], 0)
		if limit > 0 && int64(cgMem) >= int64(float64(limit)*0.9) {
			out.Outcome = MemoryLimitExceeded
		} else {
			out.Outcome = RuntimeError
		}

	case out.ExitCode == 134:
		out.Outcome = RuntimeError

	case meta["status"] == "RE", out.ExitCode != 0:
		out.Outcome = RuntimeError

	default:
		out.Outcome = Ok
	}

	return out
}

func intOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func microsFloat(s string) int64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(f * 1e6)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
