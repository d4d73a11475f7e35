package watch

import (
	"context"
	"fmt"
	"strings"
	"time"

	ssmexec "github.com/cjmanca/ssmergerd/internal/exec"
)

// OneShotReader runs a single timeout-bounded `inotifywait` invocation
// per Poll call and parses its line-oriented output.
type OneShotReader struct {
	executor *ssmexec.Executor
}

func NewOneShotReader(executor *ssmexec.Executor) *OneShotReader {
	return &OneShotReader{executor: executor}
}

// Poll runs `inotifywait -r <roots...>` bounded by timeout and parses
// each "<path>|<mask_tokens>" line of stdout into an EventRecord.
// Malformed or unrecognized lines are recorded as a warning and
// skipped rather than aborting the poll.
func (r *OneShotReader) Poll(ctx context.Context, watchRoots []string, timeout time.Duration, cancel <-chan struct{}) PollResult {
	args := append([]string{"-r"}, watchRoots...)
	res := r.executor.Run(ctx, ssmexec.Request{
		FileName:            "inotifywait",
		Arguments:           args,
		Timeout:             timeout,
		PollInterval:        50 * time.Millisecond,
		MaxOutputCharacters: 1 << 20,
		Cancel:              cancel,
	})

	switch res.Outcome {
	case ssmexec.TimedOut:
		return parseLines(res.Stdout, Success) // the executor's timeout ended the run; treat captured lines as a normal batch
	case ssmexec.StartFailed:
		if res.FailureKind == ssmexec.FailureToolNotFound {
			return PollResult{Outcome: ToolNotFound}
		}
		return PollResult{Outcome: CommandFailed, Warnings: []string{fmt.Sprintf("inotifywait failed to start: %v", res.FailureKind)}}
	case ssmexec.Cancelled:
		return PollResult{Outcome: TimedOut}
	case ssmexec.NonZeroExit:
		return PollResult{Outcome: CommandFailed, Warnings: []string{fmt.Sprintf("inotifywait exited %d: %s", res.ExitCode, res.Stderr)}}
	default:
		return parseLines(res.Stdout, Success)
	}
}

func parseLines(stdout string, outcome Outcome) PollResult {
	result := PollResult{Outcome: outcome}
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		idx := strings.LastIndex(line, "|")
		if idx == -1 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("malformed inotify line: %q", line))
			continue
		}
		path := line[:idx]
		maskTokens := strings.Split(line[idx+1:], ",")
		if path == "" || line[idx+1:] == "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("malformed inotify line: %q", line))
			continue
		}
		result.Events = append(result.Events, EventRecord{
			Path:           path,
			EventMaskFlags: maskTokens,
			RawEventTokens: line[idx+1:],
		})
	}
	return result
}
