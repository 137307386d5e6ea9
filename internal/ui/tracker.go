package ui

import (
	"sync"
	"time"
)

// TrackerStats is a snapshot of build progress.
type TrackerStats struct {
	Stage      Stage
	Current    int
	Total      int
	DocID      string
	Progress   float64
	Elapsed    time.Duration
	WarnCount  int
	ErrorCount int
}

// ProgressTracker accumulates progress events. Safe for concurrent use.
type ProgressTracker struct {
	mu         sync.Mutex
	stage      Stage
	current    int
	total      int
	docID      string
	startTime  time.Time
	warnCount  int
	errorCount int
	now        func() time.Time
}

// NewProgressTracker creates a tracker starting at StageLoading.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{
		startTime: time.Now(),
		now:       time.Now,
	}
}

// Apply records a progress event. A stage change resets the counters.
func (t *ProgressTracker) Apply(event ProgressEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if event.Stage != t.stage {
		t.stage = event.Stage
		t.current = 0
	}
	t.total = event.Total
	t.current = event.Current
	if t.total > 0 && t.current > t.total {
		t.current = t.total
	}
	t.docID = event.DocID
}

// AddError counts a warning or error.
func (t *ProgressTracker) AddError(event ErrorEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if event.IsWarn {
		t.warnCount++
	} else {
		t.errorCount++
	}
}

// Stats returns a snapshot.
func (t *ProgressTracker) Stats() TrackerStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	var progress float64
	if t.total > 0 {
		progress = float64(t.current) / float64(t.total)
	}
	return TrackerStats{
		Stage:      t.stage,
		Current:    t.current,
		Total:      t.total,
		DocID:      t.docID,
		Progress:   progress,
		Elapsed:    t.now().Sub(t.startTime),
		WarnCount:  t.warnCount,
		ErrorCount: t.errorCount,
	}
}
