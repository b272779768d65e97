package batch

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Status is the outcome of one source file.
type Status string

const (
	StatusTranslated Status = "translated"
	StatusCached     Status = "cached"
	StatusSkipped    Status = "skipped"
	StatusFailed     Status = "failed"
)

// Stage names the step a failed file got stuck in.
type Stage string

const (
	StageRead      Stage = "read"
	StageTranslate Stage = "translate"
	StageMkdir     Stage = "mkdir"
	StageWrite     Stage = "write"
)

// FileResult describes what happened to one source file.
type FileResult struct {
	SourcePath string
	OutputPath string
	Status     Status
	Stage      Stage
	Err        error
	Service    string
	Latency    time.Duration

	seq int
}

func (r FileResult) Failed() bool {
	return r.Status == StatusFailed
}

// Report collects the file results of a batch. It is safe for concurrent use
// while the batch runs; results are sorted into walk order when it ends.
type Report struct {
	mu      sync.Mutex
	results []FileResult

	Translated int
	Cached     int
	Skipped    int
	Failed     int
}

func (r *Report) add(res FileResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.results = append(r.results, res)
	switch res.Status {
	case StatusTranslated:
		r.Translated++
	case StatusCached:
		r.Cached++
	case StatusSkipped:
		r.Skipped++
	case StatusFailed:
		r.Failed++
	}
}

func (r *Report) sort() {
	r.mu.Lock()
	defer r.mu.Unlock()

	slices.SortStableFunc(r.results, func(a, b FileResult) int {
		return a.seq - b.seq
	})
}

// Results returns a copy of every file result.
func (r *Report) Results() []FileResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.results)
}

// Failures returns the failed file results.
func (r *Report) Failures() []FileResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var failed []FileResult
	for _, res := range r.results {
		if res.Failed() {
			failed = append(failed, res)
		}
	}
	return failed
}

// Total is the number of files the batch looked at.
func (r *Report) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.results)
}

// Err joins the errors of all failed files, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Failures() {
		errs = append(errs, fmt.Errorf("%s (%s): %w", res.SourcePath, res.Stage, res.Err))
	}
	return errors.Join(errs...)
}
