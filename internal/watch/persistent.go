package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	ssmexec "github.com/cjmanca/ssmergerd/internal/exec"
)

type sessionKey struct {
	root      string
	recursive bool
}

type session struct {
	key     sessionKey
	process *ssmexec.PersistentProcess
	failed  bool
}

// PersistentReader maintains one long-running `inotifywait -m` session
// per (watch_root, recursive) key, reconciling the desired session set
// on every poll and gating restarts of failed sessions.
type PersistentReader struct {
	startupMode             StartupMode
	restartDelay            time.Duration
	maxDeepSessionsPerStart int

	mu               sync.Mutex
	sessions         map[sessionKey]*session
	restartNotBefore map[sessionKey]time.Time
	knownDeepRoots   map[string]map[string]bool // parent root -> set of deep child absolute paths
	pendingDeep      []string
}

// NewPersistentReader constructs a reader. maxDeepSessionsPerStart
// bounds how many new deep (recursive) sessions Progressive mode may
// start in a single poll.
func NewPersistentReader(mode StartupMode, restartDelay time.Duration, maxDeepSessionsPerStart int) *PersistentReader {
	if restartDelay <= 0 {
		restartDelay = DefaultRestartDelay
	}
	if maxDeepSessionsPerStart <= 0 {
		maxDeepSessionsPerStart = 4
	}
	return &PersistentReader{
		startupMode:             mode,
		restartDelay:            restartDelay,
		maxDeepSessionsPerStart: maxDeepSessionsPerStart,
		sessions:                make(map[sessionKey]*session),
		restartNotBefore:        make(map[sessionKey]time.Time),
		knownDeepRoots:          make(map[string]map[string]bool),
	}
}

// Poll reconciles sessions against watchRoots, drains whatever lines
// have arrived since the last poll, and returns a bounded batch of
// events and warnings.
func (r *PersistentReader) Poll(watchRoots []string, timeout time.Duration, cancel <-chan struct{}) PollResult {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	existingRoots := filterExisting(watchRoots)
	r.pruneLostChildren(existingRoots)

	desired := r.desiredKeys(existingRoots)
	r.disposeUndesired(desired)
	r.pruneRestartGate(desired, now)

	outcome := Success
	var warnings []string

	for key := range desired {
		if _, ok := r.sessions[key]; ok {
			continue
		}
		if gate, ok := r.restartNotBefore[key]; ok && now.Before(gate) {
			continue
		}
		proc, err := ssmexec.StartPersistentProcess("inotifywait", inotifyArgsFor(key))
		if err != nil {
			if isNotFound(err) {
				outcome = ToolNotFound
			} else if outcome != ToolNotFound {
				outcome = CommandFailed
			}
			r.restartNotBefore[key] = now.Add(r.restartDelay)
			warnings = append(warnings, fmt.Sprintf("failed to start inotify session for %s: %v", key.root, err))
			continue
		}
		r.sessions[key] = &session{key: key, process: proc}
	}

	var events []EventRecord
	droppedEvents := 0
	droppedWarnings := 0

	for key, sess := range r.sessions {
		if exited, err := sess.process.Exited(); exited {
			delete(r.sessions, key)
			r.restartNotBefore[key] = now.Add(r.restartDelay)
			if err != nil && outcome == Success {
				outcome = CommandFailed
			}
			warnings = appendWarningBounded(warnings, fmt.Sprintf("inotify session for %s exited: %v", key.root, err), &droppedWarnings)
			continue
		}

		drained := drainAvailable(sess.process.Lines)
		for _, line := range drained {
			rec, ok := parseLine(line)
			if !ok {
				warnings = appendWarningBounded(warnings, fmt.Sprintf("malformed inotify line on %s: %q", key.root, line), &droppedWarnings)
				continue
			}
			events = appendEventBounded(events, rec, &droppedEvents)

			if r.startupMode == StartupProgressive && !key.recursive {
				r.considerDeepPromotion(key.root, rec)
			}
		}
	}

	r.startQueuedDeepSessions(now)

	if droppedEvents > 0 || droppedWarnings > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"overflow: dropped_events='%d' dropped_warnings='%d' policy='drop_oldest'", droppedEvents, droppedWarnings))
	}

	return PollResult{Outcome: outcome, Events: events, Warnings: warnings}
}

// Close disposes every running session, bounding each session's
// shutdown wait to 250ms (spec.md §5 concurrency: "dispose all sessions
// within a bounded wait (<=250ms per session task)").
func (r *PersistentReader) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, sess := range r.sessions {
		sess.process.Stop(250 * time.Millisecond)
		delete(r.sessions, key)
	}
}

func (r *PersistentReader) desiredKeys(existingRoots []string) map[sessionKey]bool {
	desired := make(map[sessionKey]bool)
	for _, root := range existingRoots {
		switch r.startupMode {
		case StartupFull:
			desired[sessionKey{root: root, recursive: true}] = true
		case StartupProgressive:
			desired[sessionKey{root: root, recursive: false}] = true
			for child := range r.knownDeepRoots[root] {
				if dirExists(child) {
					desired[sessionKey{root: child, recursive: true}] = true
				}
			}
		}
	}
	return desired
}

func (r *PersistentReader) disposeUndesired(desired map[sessionKey]bool) {
	for key, sess := range r.sessions {
		if !desired[key] {
			sess.process.Stop(250 * time.Millisecond)
			delete(r.sessions, key)
		}
	}
}

func (r *PersistentReader) pruneRestartGate(desired map[sessionKey]bool, now time.Time) {
	for key, gate := range r.restartNotBefore {
		if !desired[key] || now.After(gate) {
			delete(r.restartNotBefore, key)
		}
	}
}

// pruneLostChildren removes knowledge of deep roots whose parent no
// longer exists among the current watch roots.
func (r *PersistentReader) pruneLostChildren(existingRoots []string) {
	existing := make(map[string]bool, len(existingRoots))
	for _, root := range existingRoots {
		existing[root] = true
	}
	for root := range r.knownDeepRoots {
		if !existing[root] {
			delete(r.knownDeepRoots, root)
		}
	}
	kept := r.pendingDeep[:0]
	for _, p := range r.pendingDeep {
		if dirExists(p) {
			kept = append(kept, p)
		}
	}
	r.pendingDeep = kept
}

func (r *PersistentReader) considerDeepPromotion(root string, rec EventRecord) {
	if !isCreateOrMovedIn(rec) {
		return
	}
	if !dirExists(rec.Path) {
		return
	}
	if filepath.Dir(strings.TrimRight(rec.Path, "/")) != strings.TrimRight(root, "/") {
		return
	}
	if r.knownDeepRoots[root] == nil {
		r.knownDeepRoots[root] = make(map[string]bool)
	}
	if r.knownDeepRoots[root][rec.Path] {
		return
	}
	r.pendingDeep = append(r.pendingDeep, rec.Path)
}

func (r *PersistentReader) startQueuedDeepSessions(now time.Time) {
	started := 0
	var remaining []string
	for _, path := range r.pendingDeep {
		if started >= r.maxDeepSessionsPerStart {
			remaining = append(remaining, path)
			continue
		}
		root := filepath.Dir(strings.TrimRight(path, "/"))
		if r.knownDeepRoots[root] == nil {
			r.knownDeepRoots[root] = make(map[string]bool)
		}
		r.knownDeepRoots[root][path] = true
		started++
	}
	r.pendingDeep = remaining
}

func inotifyArgsFor(key sessionKey) []string {
	args := []string{"-m"}
	if key.recursive {
		args = append(args, "-r")
	}
	args = append(args, key.root)
	return args
}

func isCreateOrMovedIn(rec EventRecord) bool {
	isDir, createdOrMovedIn := false, false
	for _, tok := range rec.EventMaskFlags {
		switch tok {
		case "ISDIR":
			isDir = true
		case "CREATE", "MOVED_TO":
			createdOrMovedIn = true
		}
	}
	return isDir && createdOrMovedIn
}

func parseLine(line string) (EventRecord, bool) {
	idx := strings.LastIndex(line, "|")
	if idx == -1 || line[:idx] == "" || line[idx+1:] == "" {
		return EventRecord{}, false
	}
	return EventRecord{
		Path:           line[:idx],
		EventMaskFlags: strings.Split(line[idx+1:], ","),
		RawEventTokens: line[idx+1:],
	}, true
}

func drainAvailable(lines chan string) []string {
	var out []string
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return out
			}
			out = append(out, line)
		default:
			return out
		}
	}
}

func filterExisting(roots []string) []string {
	var out []string
	for _, root := range roots {
		if dirExists(root) {
			out = append(out, root)
		}
	}
	return out
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func appendWarningBounded(warnings []string, msg string, dropped *int) []string {
	if len(warnings) >= maxWarningsPerPoll {
		*dropped++
		warnings = warnings[1:]
	}
	return append(warnings, msg)
}

// appendEventBounded appends rec to events, evicting the oldest entry
// once maxEventsPerPoll is reached so a burst drops the earliest
// arrivals rather than the newest.
func appendEventBounded(events []EventRecord, rec EventRecord, dropped *int) []EventRecord {
	if len(events) >= maxEventsPerPoll {
		*dropped++
		events = events[1:]
	}
	return append(events, rec)
}

func isNotFound(err error) bool {
	return strings.Contains(err.Error(), "executable file not found") || strings.Contains(err.Error(), "no such file or directory")
}
