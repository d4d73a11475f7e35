// Package rename implements the chapter rename queue processor
// (spec.md §4.8): newly observed chapter directories are held for a
// quiet period, sanitized, and moved into place under a
// collision-resistant name, with a persisted ordered queue so pending
// entries survive a restart.
package rename

import (
	"os"
	"path/filepath"
	"time"
)

// QueueEntry is one pending rename.
type QueueEntry struct {
	Path    string    `yaml:"path"`
	AllowAt time.Time `yaml:"allow_at"`
}

// IChapterRenameSanitizer owns the chapter-name sanitization rules.
// Sanitize returns the cleaned name and whether it differs from raw.
type IChapterRenameSanitizer interface {
	Sanitize(rawName string) (sanitized string, changed bool)
}

// IChapterRenameFileSystem is the filesystem collaborator the processor
// uses for every interaction with a candidate chapter directory.
type IChapterRenameFileSystem interface {
	Stat(path string) (os.FileInfo, error)
	ReadDir(path string) ([]os.DirEntry, error)
	Rename(oldPath, newPath string) error
}

type osFileSystem struct{}

func (osFileSystem) Stat(path string) (os.FileInfo, error)  { return os.Stat(path) }
func (osFileSystem) ReadDir(path string) ([]os.DirEntry, error) { return os.ReadDir(path) }
func (osFileSystem) Rename(oldPath, newPath string) error   { return os.Rename(oldPath, newPath) }

// DefaultFileSystem is the production IChapterRenameFileSystem.
func DefaultFileSystem() IChapterRenameFileSystem { return osFileSystem{} }

// PassCounters is the per-pass summary ProcessOnce returns.
type PassCounters struct {
	Processed        int
	Renamed          int
	Unchanged        int
	DeferredMissing  int
	DroppedMissing   int
	DeferredNotReady int
	DeferredNotQuiet int
	CollisionSkipped int
	MoveFailed       int
	Remaining        int
}

// Warner receives one diagnostic line per notable outcome.
type Warner interface {
	Warn(message string)
	Debug(message string)
}

// Processor owns the persisted queue and the config knobs controlling
// rename timing.
type Processor struct {
	fs         IChapterRenameFileSystem
	sanitizer  IChapterRenameSanitizer
	warner     Warner
	sourcesRoot string

	renameDelay  time.Duration
	quietWindow  time.Duration
	rescanAfter  time.Duration

	queue []QueueEntry
}

// NewProcessor constructs a Processor with an empty queue.
func NewProcessor(fs IChapterRenameFileSystem, sanitizer IChapterRenameSanitizer, warner Warner, sourcesRoot string, renameDelay, quietWindow, rescanAfter time.Duration) *Processor {
	return &Processor{
		fs:          fs,
		sanitizer:   sanitizer,
		warner:      warner,
		sourcesRoot: sourcesRoot,
		renameDelay: renameDelay,
		quietWindow: quietWindow,
		rescanAfter: rescanAfter,
	}
}

// LoadQueue replaces the in-memory queue with a previously persisted
// one (e.g. read from state by the caller).
func (p *Processor) LoadQueue(entries []QueueEntry) {
	p.queue = append([]QueueEntry(nil), entries...)
}

// Snapshot returns a copy of the current queue for persistence.
func (p *Processor) Snapshot() []QueueEntry {
	return append([]QueueEntry(nil), p.queue...)
}

// EnqueueChapterPath enqueues a depth-3 chapter path discovered under
// sourcesRoot. Paths under an excluded source must be filtered by the
// caller before calling this.
func (p *Processor) EnqueueChapterPath(path string, now time.Time) {
	for _, e := range p.queue {
		if e.Path == path {
			return
		}
	}
	p.queue = append(p.queue, QueueEntry{
		Path:    path,
		AllowAt: now.Add(p.renameDelay),
	})
}

// ProcessOnce runs a single pass over the queue, replacing it with the
// entries that stay queued, and returns the per-pass counters. Total
// work is O(len(queue)). The Processor holds no lock of its own.
func (p *Processor) ProcessOnce(now time.Time) PassCounters {
	var counters PassCounters
	var remaining []QueueEntry

	for _, entry := range p.queue {
		counters.Processed++
		keep, outcome := p.processEntry(entry, now)
		applyOutcome(&counters, outcome)
		if keep {
			remaining = append(remaining, entry)
		}
	}

	p.queue = remaining
	counters.Remaining = len(p.queue)
	return counters
}

type entryOutcome int

const (
	outcomeRenamed entryOutcome = iota
	outcomeUnchanged
	outcomeDeferredMissing
	outcomeDroppedMissing
	outcomeDeferredNotReady
	outcomeDeferredNotQuiet
	outcomeCollisionSkipped
	outcomeMoveFailed
)

func applyOutcome(c *PassCounters, o entryOutcome) {
	switch o {
	case outcomeRenamed:
		c.Renamed++
	case outcomeUnchanged:
		c.Unchanged++
	case outcomeDeferredMissing:
		c.DeferredMissing++
	case outcomeDroppedMissing:
		c.DroppedMissing++
	case outcomeDeferredNotReady:
		c.DeferredNotReady++
	case outcomeDeferredNotQuiet:
		c.DeferredNotQuiet++
	case outcomeCollisionSkipped:
		c.CollisionSkipped++
	case outcomeMoveFailed:
		c.MoveFailed++
	}
}

// processEntry returns whether the entry stays in the queue and its
// outcome classification.
func (p *Processor) processEntry(entry QueueEntry, now time.Time) (bool, entryOutcome) {
	info, err := p.fs.Stat(entry.Path)
	if err != nil || info == nil {
		if now.Sub(entry.AllowAt) > p.rescanAfter {
			p.warner.Debug("rename: dropping missing path " + entry.Path)
			return false, outcomeDroppedMissing
		}
		return true, outcomeDeferredMissing
	}

	if now.Before(entry.AllowAt) {
		return true, outcomeDeferredNotReady
	}

	latest, err := p.latestChildMTime(entry.Path, info)
	if err != nil {
		return true, outcomeDeferredNotReady
	}
	if now.Sub(latest) < p.quietWindow {
		return true, outcomeDeferredNotQuiet
	}

	dirName := filepath.Base(entry.Path)
	sanitized, changed := p.sanitizer.Sanitize(dirName)
	if !changed {
		return false, outcomeUnchanged
	}

	destination, ok := p.resolveDestination(entry.Path, sanitized)
	if !ok {
		p.warner.Warn("rename: collision suffixes exhausted for " + entry.Path)
		return false, outcomeCollisionSkipped
	}

	if err := p.fs.Rename(entry.Path, destination); err != nil {
		p.warner.Warn("rename: move failed for " + entry.Path + ": " + err.Error())
		return false, outcomeMoveFailed
	}
	return false, outcomeRenamed
}

func (p *Processor) latestChildMTime(path string, dirInfo os.FileInfo) (time.Time, error) {
	entries, err := p.fs.ReadDir(path)
	if err != nil {
		return time.Time{}, err
	}
	latest := dirInfo.ModTime()
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
	}
	return latest, nil
}

func (p *Processor) resolveDestination(originalPath, sanitized string) (string, bool) {
	parent := filepath.Dir(originalPath)
	candidate := filepath.Join(parent, sanitized)
	if !p.collides(candidate, originalPath) {
		return candidate, true
	}
	for c := 'a'; c <= 'z'; c++ {
		attempt := filepath.Join(parent, sanitized+"_alt-"+string(c))
		if !p.collides(attempt, originalPath) {
			return attempt, true
		}
	}
	return "", false
}

func (p *Processor) collides(candidate, originalPath string) bool {
	if candidate == originalPath {
		return false
	}
	_, err := p.fs.Stat(candidate)
	return err == nil
}

// RescanAndEnqueue walks sources/*/*/* and enqueues every directory
// that the sanitizer would rename and that is not already queued, with
// allow_at = max(now, lastWrite+renameDelay) + renameDelay.
func (p *Processor) RescanAndEnqueue(now time.Time) error {
	sourceDirs, err := p.fs.ReadDir(p.sourcesRoot)
	if err != nil {
		return err
	}
	queued := make(map[string]bool, len(p.queue))
	for _, e := range p.queue {
		queued[e.Path] = true
	}

	for _, sourceEntry := range sourceDirs {
		if !sourceEntry.IsDir() {
			continue
		}
		sourceDir := filepath.Join(p.sourcesRoot, sourceEntry.Name())
		mangaDirs, err := p.fs.ReadDir(sourceDir)
		if err != nil {
			continue
		}
		for _, mangaEntry := range mangaDirs {
			if !mangaEntry.IsDir() {
				continue
			}
			mangaDir := filepath.Join(sourceDir, mangaEntry.Name())
			chapterDirs, err := p.fs.ReadDir(mangaDir)
			if err != nil {
				continue
			}
			for _, chapterEntry := range chapterDirs {
				if !chapterEntry.IsDir() {
					continue
				}
				chapterPath := filepath.Join(mangaDir, chapterEntry.Name())
				if queued[chapterPath] {
					continue
				}
				if _, changed := p.sanitizer.Sanitize(chapterEntry.Name()); !changed {
					continue
				}
				info, err := chapterEntry.Info()
				lastWrite := now
				if err == nil {
					lastWrite = info.ModTime()
				}
				allowAt := lastWrite.Add(p.renameDelay)
				if now.After(allowAt) {
					allowAt = now
				}
				allowAt = allowAt.Add(p.renameDelay)
				p.queue = append(p.queue, QueueEntry{Path: chapterPath, AllowAt: allowAt})
				queued[chapterPath] = true
			}
		}
	}
	return nil
}
