package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// PollingWatcher detects changes by rescanning the directory on an interval.
// Used when fsnotify cannot be initialized, for example on network mounts.
type PollingWatcher struct {
	interval time.Duration
	filter   func(rel string, isDir bool) bool

	mu       sync.Mutex
	root     string
	snapshot map[string]fileState
	events   chan FileEvent
	errors   chan error
	stopCh   chan struct{}
	stopped  bool
}

type fileState struct {
	modTime time.Time
	size    int64
}

// NewPollingWatcher creates a polling watcher. filter reports whether a
// relative path is relevant; nil accepts everything.
func NewPollingWatcher(interval time.Duration, filter func(rel string, isDir bool) bool) *PollingWatcher {
	if filter == nil {
		filter = func(string, bool) bool { return true }
	}
	return &PollingWatcher{
		interval: interval,
		filter:   filter,
		snapshot: make(map[string]fileState),
		events:   make(chan FileEvent, 100),
		errors:   make(chan error, 10),
		stopCh:   make(chan struct{}),
	}
}

// Start takes a baseline snapshot of path and polls until ctx is done or
// Stop is called.
func (p *PollingWatcher) Start(ctx context.Context, path string) error {
	root, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}

	p.mu.Lock()
	p.root = root
	baseline, err := p.scan()
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("perform initial scan: %w", err)
	}
	p.snapshot = baseline
	p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if err := p.poll(); err != nil {
				p.mu.Lock()
				if !p.stopped {
					select {
					case p.errors <- err:
					default:
					}
				}
				p.mu.Unlock()
			}
		}
	}
}

// scan records every relevant file. Caller holds p.mu.
func (p *PollingWatcher) scan() (map[string]fileState, error) {
	state := make(map[string]fileState)
	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(p.root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if !p.filter(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		state[rel] = fileState{modTime: info.ModTime(), size: info.Size()}
		return nil
	})
	return state, err
}

// poll diffs a fresh scan against the last snapshot.
func (p *PollingWatcher) poll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}

	current, err := p.scan()
	if err != nil {
		return fmt.Errorf("walk directory for changes: %w", err)
	}

	now := time.Now()
	for rel, st := range current {
		prev, seen := p.snapshot[rel]
		switch {
		case !seen:
			p.emit(FileEvent{Path: rel, Operation: OpCreate, Timestamp: now})
		case prev != st:
			p.emit(FileEvent{Path: rel, Operation: OpModify, Timestamp: now})
		}
	}
	for rel := range p.snapshot {
		if _, ok := current[rel]; !ok {
			p.emit(FileEvent{Path: rel, Operation: OpDelete, Timestamp: now})
		}
	}
	p.snapshot = current
	return nil
}

// emit sends without blocking. Caller holds p.mu.
func (p *PollingWatcher) emit(e FileEvent) {
	select {
	case p.events <- e:
	default:
		slog.Warn("polling_event_dropped",
			slog.String("path", e.Path),
			slog.String("op", e.Operation.String()))
	}
}

// Events returns the change events. Closed by Stop.
func (p *PollingWatcher) Events() <-chan FileEvent { return p.events }

// Errors returns non-fatal scan errors. Closed by Stop.
func (p *PollingWatcher) Errors() <-chan error { return p.errors }

// Stop ends polling. Safe to call more than once.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	close(p.errors)
	return nil
}
