// Package async runs index builds in the background and tracks their state
// so readers can report whether a generation is being built.
package async

import (
	"context"
	"errors"
	"sync"
	"time"

	mserrors "github.com/Aman-CERP/mixsearch/internal/errors"
	"github.com/Aman-CERP/mixsearch/internal/index"
)

// BuildState is the overall build state.
type BuildState string

const (
	// StateIdle means no build has run in this process.
	StateIdle BuildState = "idle"
	// StateBuilding means a build is in progress.
	StateBuilding BuildState = "building"
	// StateReady means the last build committed a generation.
	StateReady BuildState = "ready"
	// StateError means the last build failed; the previous generation, if
	// any, is still served.
	StateError BuildState = "error"
)

// Snapshot is an immutable copy of the build state.
type Snapshot struct {
	State        BuildState `json:"state"`
	Builds       int        `json:"builds"`
	Generation   string     `json:"generation,omitempty"`
	IndexedCount int        `json:"indexedCount"`
	StartedAt    time.Time  `json:"startedAt,omitzero"`
	FinishedAt   time.Time  `json:"finishedAt,omitzero"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
}

// BuildStatus provides thread-safe tracking of index builds.
type BuildStatus struct {
	mu sync.RWMutex

	state        BuildState
	prevState    BuildState
	active       int
	builds       int
	generation   string
	indexedCount int
	startedAt    time.Time
	finishedAt   time.Time
	errorMessage string
}

// NewBuildStatus creates an idle status.
func NewBuildStatus() *BuildStatus {
	return &BuildStatus{state: StateIdle}
}

// Begin marks a build as started.
func (s *BuildStatus) Begin(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == 0 {
		s.prevState = s.state
	}
	s.active++
	s.state = StateBuilding
	s.startedAt = now
}

// Finish records the outcome of a build started with Begin. A build turned
// away by the rebuild lock or cancelled does not change the recorded
// outcome.
func (s *BuildStatus) Finish(res *index.BuildResult, err error, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active > 0 {
		s.active--
	}
	switch {
	case err == nil:
		s.builds++
		s.state = StateReady
		s.generation = res.Generation
		s.indexedCount = res.IndexedCount
		s.finishedAt = now
		s.errorMessage = ""
	case mserrors.GetCode(err) == mserrors.ErrCodeIndexLocked, errors.Is(err, context.Canceled):
		s.state = s.prevState
	default:
		s.state = StateError
		s.finishedAt = now
		s.errorMessage = err.Error()
	}
	if s.active > 0 {
		s.state = StateBuilding
	}
}

// IsBuilding reports whether a build is in progress.
func (s *BuildStatus) IsBuilding() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active > 0
}

// Snapshot returns a copy of the current state.
func (s *BuildStatus) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		State:        s.state,
		Builds:       s.builds,
		Generation:   s.generation,
		IndexedCount: s.indexedCount,
		StartedAt:    s.startedAt,
		FinishedAt:   s.finishedAt,
		ErrorMessage: s.errorMessage,
	}
}
