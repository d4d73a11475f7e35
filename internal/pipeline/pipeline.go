// Package pipeline drives the per-tick filesystem event pipeline
// (spec.md §4.7): polling the watcher, classifying observed events by
// depth under the sources root, enqueuing renames, and dispatching the
// coalesced merge request.
package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/cjmanca/ssmergerd/internal/merge"
	"github.com/cjmanca/ssmergerd/internal/normalize"
	"github.com/cjmanca/ssmergerd/internal/rename"
	"github.com/cjmanca/ssmergerd/internal/watch"
)

// Watcher polls for filesystem events across one or more watch roots.
type Watcher interface {
	Poll(watchRoots []string, timeout time.Duration, cancel <-chan struct{}) watch.PollResult
}

// RenameProcessor drives the rename queue's periodic quiet-window pass.
type RenameProcessor interface {
	ProcessOnce(now time.Time) rename.PassCounters
}

// ChapterEnqueuer accepts newly observed depth-3 chapter paths.
type ChapterEnqueuer interface {
	EnqueueChapterPath(path string, now time.Time)
}

// MergeCoalescer is the merge request coalescer's view used by the
// pipeline.
type MergeCoalescer interface {
	RequestMerge(reason string, force bool)
	HasPending() bool
	Dispatch(ctx context.Context) merge.PassResult
}

// Warner receives diagnostic output.
type Warner interface {
	Warn(message string)
}

// DirLister lists the immediate subdirectories of a directory.
type DirLister func(dir string) ([]string, error)

// Pipeline drives one tick of the event pipeline.
type Pipeline struct {
	SourcesRoot     string
	ExcludedSources map[string]bool

	Watcher   Watcher
	Rename    RenameProcessor
	Enqueuer  ChapterEnqueuer
	Coalescer MergeCoalescer
	Warner    Warner
	ListDirs  DirLister

	firstTick bool
	started   bool
}

// NewPipeline constructs a Pipeline ready for its first Tick.
func NewPipeline(sourcesRoot string, excludedSources map[string]bool, watcher Watcher, renameProc RenameProcessor, enqueuer ChapterEnqueuer, coalescer MergeCoalescer, warner Warner, listDirs DirLister) *Pipeline {
	return &Pipeline{
		SourcesRoot:     sourcesRoot,
		ExcludedSources: excludedSources,
		Watcher:         watcher,
		Rename:          renameProc,
		Enqueuer:        enqueuer,
		Coalescer:       coalescer,
		Warner:          warner,
		ListDirs:        listDirs,
		firstTick:       true,
	}
}

// TickResult is the outcome of one Tick call.
type TickResult struct {
	Outcome  merge.DispatchOutcome
	Warnings []string
}

// Tick runs one pass of the event pipeline.
func (p *Pipeline) Tick(ctx context.Context, now time.Time, watchRoots []string, pollTimeout time.Duration, cancel <-chan struct{}) TickResult {
	if p.firstTick {
		p.firstTick = false
		if !p.Coalescer.HasPending() {
			p.Coalescer.RequestMerge("startup", false)
		}
		p.Coalescer.Dispatch(ctx) // failures here are non-fatal by design
	}

	if ctx.Err() != nil {
		return TickResult{Outcome: merge.DispatchNoPendingRequest}
	}

	pollResult := p.Watcher.Poll(watchRoots, pollTimeout, cancel)
	var warnings []string
	for _, w := range pollResult.Warnings {
		warnings = append(warnings, w)
		p.Warner.Warn(w)
	}
	p.Rename.ProcessOnce(now)

	for _, event := range pollResult.Events {
		p.handleEvent(event, now)
	}

	result := p.Coalescer.Dispatch(ctx)
	warnings = append(warnings, result.Warnings...)
	return TickResult{Outcome: result.Outcome, Warnings: warnings}
}

func (p *Pipeline) handleEvent(event watch.EventRecord, now time.Time) {
	rel, err := filepath.Rel(p.SourcesRoot, event.Path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")

	sourceName := parts[0]
	if p.ExcludedSources[normalize.NormalizeTokenKey(sourceName)] {
		return
	}

	switch len(parts) {
	case 1:
		p.enqueueNestedChapters(event.Path, now)
		p.Coalescer.RequestMerge("new-source:"+sourceName, false)
	case 2:
		mangaName := parts[1]
		p.enqueueChaptersUnderManga(event.Path, now)
		p.Coalescer.RequestMerge("new-manga:"+sourceName+"/"+mangaName, false)
	case 3:
		if !isDirEvent(event) {
			return
		}
		mangaName := parts[1]
		p.Enqueuer.EnqueueChapterPath(event.Path, now)
		p.Coalescer.RequestMerge("chapter-implied-new:"+sourceName+"/"+mangaName, false)
	}
}

func isDirEvent(event watch.EventRecord) bool {
	for _, tok := range event.EventMaskFlags {
		if tok == "ISDIR" {
			return true
		}
	}
	return false
}

func (p *Pipeline) enqueueNestedChapters(sourcePath string, now time.Time) {
	mangaDirs, err := p.ListDirs(sourcePath)
	if err != nil {
		return
	}
	for _, mangaDir := range mangaDirs {
		p.enqueueChaptersUnderManga(mangaDir, now)
	}
}

func (p *Pipeline) enqueueChaptersUnderManga(mangaDir string, now time.Time) {
	chapterDirs, err := p.ListDirs(mangaDir)
	if err != nil {
		return
	}
	for _, chapterDir := range chapterDirs {
		p.Enqueuer.EnqueueChapterPath(chapterDir, now)
	}
}
